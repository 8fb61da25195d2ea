package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"newswatch/internal/logging"
)

// Handler processes one claimed job. A nil return completes the job; an
// error returns it to the queue (or fails it once attempts are exhausted).
type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *Job) error

// Handle calls fn.
func (fn HandlerFunc) Handle(ctx context.Context, job *Job) error {
	return fn(ctx, job)
}

// Result describes one finished job execution.
type Result struct {
	Job      *Job
	Err      error
	Duration time.Duration
}

type registration struct {
	queue       string
	handler     Handler
	concurrency int
}

// Runtime drives registered handlers against their queues with bounded
// per-queue worker pools.
type Runtime struct {
	store        *Store
	logger       *slog.Logger
	pollInterval time.Duration

	mu            sync.Mutex
	registrations []registration
	running       bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup

	results chan Result
}

// NewRuntime builds a runtime polling at the given interval.
func NewRuntime(store *Store, logger *slog.Logger, pollInterval time.Duration) *Runtime {
	if logger == nil {
		logger = logging.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Runtime{
		store:        store,
		logger:       logger,
		pollInterval: pollInterval,
		results:      make(chan Result, 64),
	}
}

// Register attaches a handler to a queue with the given worker count.
// Registration must happen before Start.
func (r *Runtime) Register(queue string, handler Handler, concurrency int) error {
	if handler == nil {
		return fmt.Errorf("queue %s: nil handler", queue)
	}
	if concurrency < 1 {
		concurrency = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("runtime already running")
	}
	for _, reg := range r.registrations {
		if reg.queue == queue {
			return fmt.Errorf("queue %s already registered", queue)
		}
	}
	r.registrations = append(r.registrations, registration{queue: queue, handler: handler, concurrency: concurrency})
	return nil
}

// Results exposes finished executions for subscribers such as the completion
// log. The channel closes after Stop returns.
func (r *Runtime) Results() <-chan Result {
	return r.results
}

// Start launches the worker pools. Stalled running jobs are reclaimed once
// up front so work interrupted by a crash resumes.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("runtime already running")
	}
	if len(r.registrations) == 0 {
		r.mu.Unlock()
		return errors.New("no queues registered")
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	for _, reg := range r.registrations {
		if reclaimed, err := r.store.ReclaimExpired(runCtx, reg.queue); err != nil {
			r.logger.Warn("startup lease reclaim failed; stalled jobs may remain",
				logging.String(logging.FieldQueue, reg.queue),
				logging.Error(err),
			)
		} else if reclaimed > 0 {
			r.logger.Info("reclaimed stalled jobs",
				logging.String(logging.FieldQueue, reg.queue),
				logging.Int("reclaimed", int(reclaimed)),
			)
		}
	}

	total := 0
	for _, reg := range r.registrations {
		total += reg.concurrency
	}
	r.wg.Add(total)
	registrations := r.registrations
	r.mu.Unlock()

	for _, reg := range registrations {
		for i := 0; i < reg.concurrency; i++ {
			go r.runWorker(runCtx, reg, i)
		}
	}
	return nil
}

// Stop cancels the workers, waits for in-flight jobs, and closes the results
// channel.
func (r *Runtime) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	close(r.results)
}

func (r *Runtime) runWorker(ctx context.Context, reg registration, index int) {
	defer r.wg.Done()

	logger := r.logger.With(logging.String(logging.FieldQueue, reg.queue))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Worker zero keeps the lease reclaimer running for its queue.
		if index == 0 {
			if _, err := r.store.ReclaimExpired(ctx, reg.queue); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("lease reclaim failed; stalled jobs may remain", logging.Error(err))
			}
		}

		job, err := r.store.Claim(ctx, reg.queue)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("failed to claim next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_claim_failed"),
				logging.String(logging.FieldErrorHint, "check database access"),
			)
			r.waitOrShutdown(ctx)
			continue
		}
		if job == nil {
			r.waitOrShutdown(ctx)
			continue
		}

		r.processJob(ctx, logger, reg, job)
	}
}

func (r *Runtime) processJob(ctx context.Context, logger *slog.Logger, reg registration, job *Job) {
	jobCtx := logging.WithQueue(logging.WithJobID(ctx, job.ID), reg.queue)
	started := time.Now()

	err := reg.handler.Handle(jobCtx, job)
	duration := time.Since(started)

	// Persist the outcome against a fresh context so shutdown does not
	// strand the job as running until its lease expires.
	persistCtx, cancelPersist := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelPersist()

	if err != nil {
		if failErr := r.store.Fail(persistCtx, job, err); failErr != nil {
			logger.Error("failed to record job failure",
				logging.Int64(logging.FieldJobID, job.ID),
				logging.Error(failErr),
			)
		}
	} else {
		if completeErr := r.store.Complete(persistCtx, job); completeErr != nil {
			logger.Error("failed to record job completion",
				logging.Int64(logging.FieldJobID, job.ID),
				logging.Error(completeErr),
			)
		}
	}

	result := Result{Job: job, Err: err, Duration: duration}
	select {
	case r.results <- result:
	default:
		// A slow subscriber must not stall the workers.
	}
}

func (r *Runtime) waitOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(r.pollInterval):
	}
}
