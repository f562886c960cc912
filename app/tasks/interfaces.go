package tasks

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to manage background ingest processing.
// Example usage:
//
//	scheduler := NewScheduler(registry, adapters, extractor, detector, enricher, sink, opts)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewRetentionTask(...))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
