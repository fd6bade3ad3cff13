package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/recapio/recap/app/cfg"
	"github.com/recapio/recap/app/database"
	"github.com/recapio/recap/app/extract"
	"github.com/recapio/recap/app/feeds"
	"github.com/recapio/recap/app/notify"
	"github.com/recapio/recap/app/transcribe"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	contents      database.ContentRepository
	summaries     database.SummaryRepository
	subs          database.SubscriptionRepository
	dispatcher    *extract.Dispatcher
	transcriber   *transcribe.Client
	reconciler    *transcribe.Reconciler
	analyzer      transcribe.Analyzer
	fetcher       *feeds.Fetcher
	notifier      notify.Notifier
	webhookURL    string
	language      string
	credentialKey string
	interval      time.Duration
	workerCount   int
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	taskQueue     chan TaskInterface
}

func NewScheduler(contents database.ContentRepository, summaries database.SummaryRepository,
	subs database.SubscriptionRepository, dispatcher *extract.Dispatcher,
	transcriber *transcribe.Client, reconciler *transcribe.Reconciler,
	analyzer transcribe.Analyzer, fetcher *feeds.Fetcher, notifier notify.Notifier,
	webhookURL string) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		contents:      contents,
		summaries:     summaries,
		subs:          subs,
		dispatcher:    dispatcher,
		transcriber:   transcriber,
		reconciler:    reconciler,
		analyzer:      analyzer,
		fetcher:       fetcher,
		notifier:      notifier,
		webhookURL:    webhookURL,
		language:      cfg.DefaultLanguage,
		credentialKey: cfg.FeedCredentialKey,
		interval:      time.Duration(cfg.SchedulerInterval) * time.Second,
		workerCount:   cfg.WorkerCount,
		ctx:           ctx,
		cancel:        cancel,
		taskQueue:     make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueScheduledTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueScheduledTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// EnqueueProcessContent schedules pipeline processing for one content item.
// Called by the API on submission.
func (s *Scheduler) EnqueueProcessContent(contentID string) {
	task := NewProcessContentTask(contentID, s.contents, s.summaries, s.dispatcher,
		s.transcriber, s.analyzer, s.webhookURL, s.language)
	if err := s.EnqueueTask(task); err != nil {
		slog.Error("Failed to enqueue ProcessContentTask", "content_id", contentID, "error", err)
	}
}

// enqueueScheduledTasks runs each tick: one poll task per feed type plus the
// transcription recovery sweep.
func (s *Scheduler) enqueueScheduledTasks() {
	for _, feedType := range []database.FeedType{database.FeedTypePodcast, database.FeedTypeYouTube} {
		task := NewPollFeedsTask(feedType, s.subs, s.fetcher, s.notifier, s.credentialKey)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue PollFeedsTask", "feed_type", feedType, "error", err)
		}
	}

	if err := s.EnqueueTask(NewRecoverTranscriptionsTask(s.reconciler)); err != nil {
		slog.Warn("Failed to enqueue RecoverTranscriptionsTask", "error", err)
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "ref", task.GetRef(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}
