package tasks

// TaskSchedulerInterface is what the rest of the application sees of the
// scheduler: lifecycle control plus enqueueing. EnqueueProcessContent is the
// API's entry point for freshly-submitted content.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	EnqueueProcessContent(contentID string)
}
