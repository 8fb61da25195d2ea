// Package daemon wires the stores, workers, and queue runtime into a
// single-instance background process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"newswatch/internal/classify"
	"newswatch/internal/config"
	"newswatch/internal/dedup"
	"newswatch/internal/feed"
	"newswatch/internal/generate"
	"newswatch/internal/logging"
	"newswatch/internal/queue"
	"newswatch/internal/ratelimit"
	"newswatch/internal/retry"
	"newswatch/internal/scanner"
	"newswatch/internal/store"
)

// Daemon runs the scan pipeline and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	queue   *queue.Store
	runtime *queue.Runtime
	cache   *dedup.RedisCache

	lockPath string
	lock     *flock.Flock

	running    atomic.Bool
	cancel     context.CancelFunc
	subscriber sync.WaitGroup
}

// New builds a daemon and all its workers. Redis being unreachable is not
// fatal: deduplication degrades to store-only checks.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	qs := queue.NewStore(st, queue.Options{
		LeaseDuration: time.Duration(cfg.Queues.LeaseSeconds) * time.Second,
		BackoffBase:   time.Duration(cfg.Queues.RetryBackoffBaseSecs) * time.Second,
	})

	var cache *dedup.RedisCache
	if cfg.Redis.Addr != "" {
		cache, err = dedup.NewRedisCache(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable; deduplication degrades to store checks",
				logging.Error(err))
			cache = nil
		}
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		queue:    qs,
		cache:    cache,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.runtime = queue.NewRuntime(qs, logger,
		time.Duration(cfg.Queues.PollIntervalSeconds)*time.Second)

	if err := d.registerWorkers(logger); err != nil {
		_ = st.Close()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) registerWorkers(logger *slog.Logger) error {
	cfg := d.cfg

	fetchLimiter := ratelimit.New(cfg.Fetch.RatePerInterval,
		time.Duration(cfg.Fetch.RateIntervalSeconds)*time.Second)
	breaker := retry.NewBreaker(cfg.Fetch.BreakerThreshold,
		time.Duration(cfg.Fetch.BreakerCooldownSecs)*time.Second)
	fetchPolicy := retry.Policy{
		MaxAttempts:  cfg.Fetch.RetryMaxAttempts,
		InitialDelay: time.Duration(cfg.Fetch.RetryInitialDelayMS) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Fetch.RetryMaxDelayMS) * time.Millisecond,
	}
	fetcher := feed.NewFetcher(
		feed.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout()}),
		feed.WithLimiter(fetchLimiter),
		feed.WithBreaker(breaker),
		feed.WithRetryPolicy(fetchPolicy),
	)

	var hashCache dedup.Cache
	if d.cache != nil {
		hashCache = d.cache
	}
	deduper := dedup.New(hashCache, d.store, logger,
		dedup.WithNewTTL(time.Duration(cfg.Redis.NewTTLSeconds)*time.Second),
		dedup.WithExistsTTL(time.Duration(cfg.Redis.ExistsTTLDays)*24*time.Hour),
	)

	orchestrator := scanner.NewOrchestrator(d.store, d.queue, cfg, logger)
	fetchWorker := scanner.NewFetchWorker(d.store, d.queue, fetcher, deduper, cfg, logger)

	scorer := classify.NewClient(classify.Config{
		BaseURL:        cfg.Classifier.BaseURL,
		APIKey:         cfg.Classifier.APIKey,
		TimeoutSeconds: cfg.Classifier.TimeoutSeconds,
	})
	classifyLimiter := ratelimit.PerMinute(cfg.Queues.ClassifyPerMinute)
	classifyWorker := classify.NewWorker(d.store, d.queue, scorer, classifyLimiter, cfg, logger)

	drafter := generate.NewClient(generate.Config{
		BaseURL:        cfg.Generator.BaseURL,
		APIKey:         cfg.Generator.APIKey,
		TimeoutSeconds: cfg.Generator.TimeoutSeconds,
		Platforms:      cfg.Generator.Platforms,
	})
	generateWorker := generate.NewWorker(d.store, drafter, logger)
	digestWorker := generate.NewDigestWorker(d.store, logger)

	registrations := []struct {
		queue       string
		handler     queue.Handler
		concurrency int
	}{
		{queue.QueueScan, orchestrator.Handler(), 1},
		{queue.QueueFetch, fetchWorker, cfg.Queues.FetchConcurrency},
		{queue.QueueClassify, classifyWorker, cfg.Queues.ClassifyConcurrency},
		{queue.QueueGenerate, generateWorker, cfg.Queues.GenerateConcurrency},
		{queue.QueueDigest, digestWorker, 1},
	}
	for _, reg := range registrations {
		if err := d.runtime.Register(reg.queue, reg.handler, reg.concurrency); err != nil {
			return fmt.Errorf("register %s: %w", reg.queue, err)
		}
	}
	return nil
}

// Start acquires the instance lock and launches the worker pools.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another newswatch daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.runtime.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start runtime: %w", err)
	}

	d.subscriber.Add(1)
	go d.consumeResults()

	d.running.Store(true)
	d.logger.Info("newswatch daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()),
	)
	return nil
}

// consumeResults is the completion-log subscriber: every finished job leaves
// one structured line.
func (d *Daemon) consumeResults() {
	defer d.subscriber.Done()
	for result := range d.runtime.Results() {
		attrs := []logging.Attr{
			logging.String(logging.FieldQueue, result.Job.Queue),
			logging.Int64(logging.FieldJobID, result.Job.ID),
			logging.Duration("duration", result.Duration),
			logging.Int("attempt", result.Job.Attempts),
		}
		if result.Err != nil {
			attrs = append(attrs, logging.Error(result.Err))
			d.logger.Warn("job failed", logging.Args(attrs...)...)
			continue
		}
		d.logger.Info("job completed", logging.Args(attrs...)...)
	}
}

// Stop drains the workers and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.runtime.Stop()
	d.subscriber.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("newswatch daemon stopped")
}

// Close stops the daemon and releases held resources.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.cache != nil {
		if err := d.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Running reports whether the daemon is processing jobs.
func (d *Daemon) Running() bool {
	return d.running.Load()
}
