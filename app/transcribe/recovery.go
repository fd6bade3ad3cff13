package transcribe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/recapio/recap/app/database"
)

const (
	// graceWindow is how long a webhook gets to arrive before the recovery
	// path starts polling the provider.
	graceWindow = 20 * time.Minute

	// abandonAfter bounds recovery: past this age the job is marked
	// permanently failed. Polling indefinitely wastes provider quota; polling
	// earlier produces false failures for jobs that are merely slow.
	abandonAfter = 2 * time.Hour

	// recoveryBatchSize caps work per scheduled run so a backlog cannot blow
	// the cron's time budget. Excess items wait for the next run.
	recoveryBatchSize = 5
)

// Reconciler is the recovery path for transcriptions whose webhook never
// arrived. It is invoked idempotently from the scheduler; selection excludes
// any content whose full text is already set, so a recovered or
// webhook-completed job is never re-queried.
type Reconciler struct {
	contents  database.ContentRepository
	client    *Client
	completer *Completer
}

func NewReconciler(contents database.ContentRepository, client *Client, completer *Completer) *Reconciler {
	return &Reconciler{
		contents:  contents,
		client:    client,
		completer: completer,
	}
}

// Run reconciles one batch of stuck transcriptions. Batch members are
// processed concurrently and independently; one member's failure never aborts
// its siblings.
func (r *Reconciler) Run(ctx context.Context) error {
	now := time.Now().UTC()

	stuck, err := r.contents.GetStuckTranscriptions(ctx, now.Add(-graceWindow), recoveryBatchSize)
	if err != nil {
		return err
	}
	if len(stuck) == 0 {
		return nil
	}

	slog.Info("Reconciling stuck transcriptions", "count", len(stuck))

	var wg sync.WaitGroup
	for i := range stuck {
		content := stuck[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.reconcile(ctx, &content, now); err != nil {
				slog.Error("Transcription reconcile failed",
					"content_id", content.ID, "error", err)
			}
		}()
	}
	wg.Wait()

	return nil
}

func (r *Reconciler) reconcile(ctx context.Context, content *database.Content, now time.Time) error {
	age := now.Sub(*content.TranscriptSubmittedAt)

	// Past the recovery window, or with no credentials to poll with, the job
	// is abandoned outright.
	if age >= abandonAfter || !r.client.Configured() {
		slog.Warn("Abandoning stuck transcription",
			"content_id", content.ID, "age", age, "provider_configured", r.client.Configured())
		return r.completer.Fail(ctx, content.ID, "RECOVERY_TIMEOUT")
	}

	job, err := r.client.GetStatus(ctx, *content.TranscriptJobID)
	if err != nil {
		// Transient poll failure; the next scheduled run retries.
		return err
	}

	switch job.Status {
	case JobStatusCompleted:
		// The webhook was lost but the job succeeded. Recover silently.
		slog.Info("Recovering lost-webhook transcription", "content_id", content.ID, "job_id", job.ID)
		return r.completer.Complete(ctx, content.ID, job.Utterances, job.AudioDuration)
	case JobStatusError:
		return r.completer.Fail(ctx, content.ID, "PROVIDER_ERROR")
	default:
		// Still processing; retry on the next scheduled run.
		slog.Debug("Transcription still processing", "content_id", content.ID, "age", age)
		return nil
	}
}
