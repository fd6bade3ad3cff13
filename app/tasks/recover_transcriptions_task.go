package tasks

import (
	"context"
	"log/slog"

	"github.com/recapio/recap/app/transcribe"
)

// RecoverTranscriptionsTask runs one batch of the transcription recovery
// reconciler on each scheduler tick.
type RecoverTranscriptionsTask struct {
	Task
	reconciler *transcribe.Reconciler
}

var _ TaskInterface = (*RecoverTranscriptionsTask)(nil)

func NewRecoverTranscriptionsTask(reconciler *transcribe.Reconciler) *RecoverTranscriptionsTask {
	return &RecoverTranscriptionsTask{
		Task:       NewTask(TaskTypeRecoverTranscriptions, "batch"),
		reconciler: reconciler,
	}
}

func (t *RecoverTranscriptionsTask) Execute(ctx context.Context) error {
	if err := t.reconciler.Run(ctx); err != nil {
		return err
	}

	slog.Debug("Task completed",
		"type", string(TaskTypeRecoverTranscriptions),
		"duration", t.GetDuration())
	return nil
}
