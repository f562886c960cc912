package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storysift/storysift/app/adapters"
	"github.com/storysift/storysift/app/dedup"
	"github.com/storysift/storysift/app/enrich"
	"github.com/storysift/storysift/app/extract"
	"github.com/storysift/storysift/app/metrics"
	"github.com/storysift/storysift/app/sink"
	"github.com/storysift/storysift/app/sources"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// taskTimeout bounds a single task execution. Sources slower than this are
// treated as failed attempts.
const taskTimeout = 5 * time.Minute

type Options struct {
	Interval     time.Duration
	WorkerCount  int
	DrainTimeout time.Duration
}

// Scheduler runs a fixed worker pool over a task queue and dispatches due
// sources on every tick. Dispatch claims sources through the registry so a
// source is never worked on twice concurrently, and weighted in-flight
// accounting keeps the combined weight of queued and running tasks within
// the worker count.
type Scheduler struct {
	registry  *sources.Registry
	adapters  *adapters.Registry
	extractor *extract.Extractor
	detector  *dedup.Detector
	enricher  enrich.Enricher
	sink      *sink.Sink

	interval     time.Duration
	workerCount  int
	drainTimeout time.Duration

	jobCtx     context.Context
	jobCancel  context.CancelFunc
	tickCtx    context.Context
	tickCancel context.CancelFunc

	wg     sync.WaitGroup
	tickWg sync.WaitGroup

	taskQueue chan TaskInterface
	closeMu   sync.RWMutex
	closed    bool

	inFlightMu sync.Mutex
	inFlight   int
}

func NewScheduler(registry *sources.Registry, adapterRegistry *adapters.Registry, extractor *extract.Extractor,
	detector *dedup.Detector, enricher enrich.Enricher, articleSink *sink.Sink, opts Options) *Scheduler {
	if opts.WorkerCount < 1 {
		opts.WorkerCount = 1
	}
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}

	jobCtx, jobCancel := context.WithCancel(context.Background())
	tickCtx, tickCancel := context.WithCancel(context.Background())

	return &Scheduler{
		registry:     registry,
		adapters:     adapterRegistry,
		extractor:    extractor,
		detector:     detector,
		enricher:     enricher,
		sink:         articleSink,
		interval:     opts.Interval,
		workerCount:  opts.WorkerCount,
		drainTimeout: opts.DrainTimeout,
		jobCtx:       jobCtx,
		jobCancel:    jobCancel,
		tickCtx:      tickCtx,
		tickCancel:   tickCancel,
		taskQueue:    make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.tickWg.Add(1)
	go func() {
		defer s.tickWg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.dispatchDue()

		for {
			select {
			case <-s.tickCtx.Done():
				return
			case <-ticker.C:
				s.dispatchDue()
			}
		}
	}()
}

// Stop shuts the scheduler down: the tick loop first so nothing new is
// dispatched, then the queue is closed and workers drain it. Tasks still
// running after the drain timeout are canceled.
func (s *Scheduler) Stop() {
	s.tickCancel()
	s.tickWg.Wait()

	s.closeMu.Lock()
	s.closed = true
	s.closeMu.Unlock()

	close(s.taskQueue)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.drainTimeout):
		slog.Warn("Shutdown drain timed out, canceling in-flight tasks", "timeout", s.drainTimeout.String())
		s.jobCancel()
		<-done
	}

	s.jobCancel()
}

// EnqueueTask adds a task to the queue without blocking. The task's weight
// is reserved before the send so a tick between enqueue and execution sees
// the slots as taken.
func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()

	if s.closed {
		return fmt.Errorf("scheduler is stopped")
	}

	s.addInFlight(task.GetWeight())

	select {
	case s.taskQueue <- task:
		return nil
	default:
		s.addInFlight(-task.GetWeight())
		return fmt.Errorf("task queue is full")
	}
}

// dispatchDue asks the registry for due sources that fit in the free worker
// slots and enqueues one ingest task per source. BeginAttempt marks the
// source running, so a source whose task is still queued or executing is
// skipped on later ticks.
func (s *Scheduler) dispatchDue() {
	slots := s.workerCount - s.inFlightWeight()
	if slots < 1 {
		slog.Debug("All worker slots busy, skipping dispatch")
		return
	}

	now := time.Now().UTC()

	due := s.registry.ListDue(now, slots)
	if len(due) == 0 {
		return
	}

	slog.Debug("Dispatching due sources", "count", len(due), "slots", slots)

	for _, src := range due {
		if !s.registry.BeginAttempt(src.ID, now) {
			continue
		}

		task := NewIngestTask(src, s.registry, s.adapters, s.extractor, s.detector, s.enricher, s.sink)
		if err := s.EnqueueTask(task); err != nil {
			s.registry.AbortAttempt(src.ID)
			slog.Warn("Failed to enqueue ingest task", "source", src.ID, "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for task := range s.taskQueue {
		s.executeTask(id, task)
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	defer s.addInFlight(-task.GetWeight())

	task.Start()

	taskCtx, cancel := context.WithTimeout(s.jobCtx, taskTimeout)
	defer cancel()

	if err := task.Execute(taskCtx); err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()),
			"id", task.GetID(), "source", task.GetSourceID(), "error", err)
	}
}

func (s *Scheduler) addInFlight(delta int) {
	s.inFlightMu.Lock()
	s.inFlight += delta
	s.inFlightMu.Unlock()

	metrics.InFlightJobs.Add(float64(delta))
}

func (s *Scheduler) inFlightWeight() int {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()

	return s.inFlight
}
