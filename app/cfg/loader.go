package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"recap_user" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" default:"recap_password" description:"Database password (required)" required:"true"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"recap" description:"Database name"`

	// Application configuration
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl           string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service, used for webhook callbacks (e.g., https://api.example.com)"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for pipeline processing"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"300" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	ModelsFile        string `long:"models-file" env:"MODELS_FILE" default:"./models.yml" description:"YAML file with model fallback chains"`
	DefaultLanguage   string `long:"default-language" env:"DEFAULT_LANGUAGE" default:"en" description:"Default analysis language"`

	// Provider configuration
	AIBaseUrl            string `long:"ai-base-url" env:"AI_BASE_URL" default:"https://openrouter.ai/api/v1" description:"Chat completion provider base URL"`
	AIAPIKey             string `long:"ai-api-key" env:"AI_API_KEY" description:"Chat completion provider API key"`
	ScrapeBaseUrl        string `long:"scrape-base-url" env:"SCRAPE_BASE_URL" default:"https://api.firecrawl.dev/v1" description:"Web scraping provider base URL"`
	ScrapeAPIKey         string `long:"scrape-api-key" env:"SCRAPE_API_KEY" description:"Web scraping provider API key"`
	VideoBaseUrl         string `long:"video-base-url" env:"VIDEO_BASE_URL" default:"https://api.supadata.ai/v1" description:"Video transcript provider base URL"`
	VideoAPIKey          string `long:"video-api-key" env:"VIDEO_API_KEY" description:"Video transcript provider API key"`
	TranscriptionBaseUrl string `long:"transcription-base-url" env:"TRANSCRIPTION_BASE_URL" default:"https://api.assemblyai.com" description:"Audio transcription provider base URL"`
	TranscriptionAPIKey  string `long:"transcription-api-key" env:"TRANSCRIPTION_API_KEY" description:"Audio transcription provider API key"`
	SearchBaseUrl        string `long:"search-base-url" env:"SEARCH_BASE_URL" default:"https://api.search.brave.com/res/v1" description:"Web search provider base URL"`
	SearchAPIKey         string `long:"search-api-key" env:"SEARCH_API_KEY" description:"Web search provider API key"`
	WebhookSecret        string `long:"webhook-secret" env:"WEBHOOK_SECRET" description:"Shared secret expected on transcription webhook callbacks"`

	// Feed polling configuration
	FeedCredentialKey string `long:"feed-credential-key" env:"FEED_CREDENTIAL_KEY" description:"Hex-encoded 32-byte key for encrypting private feed credentials"`
	NATSUrl           string `long:"nats-url" env:"NATS_URL" description:"NATS server URL for new-item notifications (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Recap/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBHost:               raw.DBHost,
		DBPort:               raw.DBPort,
		DBUser:               raw.DBUser,
		DBPassword:           raw.DBPassword,
		DBName:               raw.DBName,
		Port:                 raw.Port,
		BaseUrl:              raw.BaseUrl,
		WorkerCount:          raw.WorkerCount,
		SchedulerInterval:    raw.SchedulerInterval,
		APIAccessKey:         raw.APIAccessKey,
		ModelsFile:           raw.ModelsFile,
		DefaultLanguage:      raw.DefaultLanguage,
		AIBaseUrl:            raw.AIBaseUrl,
		AIAPIKey:             raw.AIAPIKey,
		ScrapeBaseUrl:        raw.ScrapeBaseUrl,
		ScrapeAPIKey:         raw.ScrapeAPIKey,
		VideoBaseUrl:         raw.VideoBaseUrl,
		VideoAPIKey:          raw.VideoAPIKey,
		TranscriptionBaseUrl: raw.TranscriptionBaseUrl,
		TranscriptionAPIKey:  raw.TranscriptionAPIKey,
		SearchBaseUrl:        raw.SearchBaseUrl,
		SearchAPIKey:         raw.SearchAPIKey,
		WebhookSecret:        raw.WebhookSecret,
		FeedCredentialKey:    raw.FeedCredentialKey,
		NATSUrl:              raw.NATSUrl,
		UserAgent:            raw.UserAgent,
		Timezone:             raw.Timezone,
		Debug:                raw.Debug,
		Version:              GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// Set replaces the global configuration. Intended for tests.
func Set(c *Cfg) {
	globalCfg = c
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
