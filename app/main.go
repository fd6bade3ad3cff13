package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/recapio/recap/app/ai"
	"github.com/recapio/recap/app/analysis"
	"github.com/recapio/recap/app/api"
	"github.com/recapio/recap/app/cfg"
	"github.com/recapio/recap/app/database"
	"github.com/recapio/recap/app/extract"
	"github.com/recapio/recap/app/feeds"
	"github.com/recapio/recap/app/notify"
	"github.com/recapio/recap/app/quota"
	"github.com/recapio/recap/app/tasks"
	"github.com/recapio/recap/app/transcribe"
	"github.com/recapio/recap/app/translate"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Recap server", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBHost, appCfg.DBPort, appCfg.DBUser,
		appCfg.DBPassword, appCfg.DBName)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "schema_version", version, "dirty", dirty)

	contentRepo := database.NewContentRepo(db)
	summaryRepo := database.NewSummaryRepo(db)
	subscriptionRepo := database.NewSubscriptionRepo(db)
	usageRepo := database.NewUsageRepo(db)
	userRepo := database.NewUserRepo(db)

	httpClient := &http.Client{Timeout: 60 * time.Second}

	chains, err := ai.LoadChains(appCfg.ModelsFile)
	if err != nil {
		slog.Error("Failed to load model chains", "error", err)
		os.Exit(1)
	}
	aiClient := ai.NewClient(httpClient, appCfg.AIBaseUrl, appCfg.AIAPIKey, 0)
	runner := ai.NewRunner(aiClient)

	videoClient := extract.NewVideoClient(httpClient, appCfg.VideoBaseUrl, appCfg.VideoAPIKey)
	scrapeClient := extract.NewScrapeClient(httpClient, appCfg.ScrapeBaseUrl, appCfg.ScrapeAPIKey)
	dispatcher := extract.NewDispatcher(videoClient, scrapeClient, httpClient, appCfg.UserAgent)

	searchClient := analysis.NewSearchClient(httpClient, appCfg.SearchBaseUrl, appCfg.SearchAPIKey)
	orchestrator := analysis.NewOrchestrator(contentRepo, summaryRepo, runner, chains,
		searchClient, appCfg.DefaultLanguage)

	transcriber := transcribe.NewClient(httpClient, appCfg.TranscriptionBaseUrl, appCfg.TranscriptionAPIKey)
	completer := transcribe.NewCompleter(contentRepo, summaryRepo, orchestrator, appCfg.DefaultLanguage)
	reconciler := transcribe.NewReconciler(contentRepo, transcriber, completer)

	gate := quota.NewGate(userRepo, usageRepo)
	translator := translate.NewService(contentRepo, summaryRepo, userRepo, gate, runner,
		chains.Translation, appCfg.DefaultLanguage)

	fetcher := feeds.NewFetcher(httpClient, appCfg.UserAgent)

	var notifier notify.Notifier = notify.NopNotifier{}
	if appCfg.NATSUrl != "" {
		natsNotifier, err := notify.NewNATSNotifier(appCfg.NATSUrl)
		if err != nil {
			slog.Error("Failed to connect to NATS", "url", appCfg.NATSUrl, "error", err)
			os.Exit(1)
		}
		defer natsNotifier.Close()
		notifier = natsNotifier
	}

	webhookURL := ""
	if appCfg.BaseUrl != "" && appCfg.WebhookSecret != "" {
		webhookURL = appCfg.BaseUrl + "/webhooks/transcription?token=" + appCfg.WebhookSecret
	}

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount,
		"interval", appCfg.SchedulerInterval)
	scheduler := tasks.NewScheduler(contentRepo, summaryRepo, subscriptionRepo, dispatcher,
		transcriber, reconciler, orchestrator, fetcher, notifier, webhookURL)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(contentRepo, summaryRepo, gate, scheduler, completer,
		translator, appCfg.WebhookSecret, appCfg.DefaultLanguage, appCfg.Version)
	server := api.NewServer(handler, appCfg.APIAccessKey, api.NewMemoryStore())

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler and NATS connection are stopped via defer
	slog.Info("Shutdown complete")
}
