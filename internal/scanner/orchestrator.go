package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"newswatch/internal/config"
	"newswatch/internal/logging"
	"newswatch/internal/queue"
	"newswatch/internal/store"
)

// Request asks the orchestrator for one scan run.
type Request struct {
	Type store.ScanType `json:"scan_type"`
	// SourceID restricts a full scan to one source.
	SourceID *int64 `json:"source_id,omitempty"`
}

// FetchJob is the source-fetch queue payload.
type FetchJob struct {
	SourceID int64          `json:"source_id"`
	RunID    string         `json:"run_id"`
	ScanType store.ScanType `json:"scan_type"`
}

// Summary reports what one scan run did.
type Summary struct {
	RunID            string
	SourcesProcessed int
	JobsQueued       int
	Cleanup          store.CleanupCounts
	Errors           []string
}

// priorityBoost orders fetch jobs for the configured priority category ahead
// of the rest of a full scan.
const priorityBoost = 10

// Orchestrator turns scan requests into per-source fetch jobs.
type Orchestrator struct {
	store  *store.Store
	queue  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// NewOrchestrator builds an orchestrator.
func NewOrchestrator(st *store.Store, qs *queue.Store, cfg *config.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		store:  st,
		queue:  qs,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "scanner"),
		now:    time.Now,
	}
}

// Run executes one scan run. Individual enqueue failures accumulate in the
// summary and mark the run partial; only source selection failures abort it.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Summary, error) {
	runID := uuid.NewString()
	summary := Summary{RunID: runID}
	ctx = logging.WithScanRun(ctx, runID)
	logger := logging.WithContext(ctx, o.logger)

	scanLog, err := o.store.StartScanLog(ctx, runID, req.Type, req.SourceID)
	if err != nil {
		return summary, fmt.Errorf("start scan log: %w", err)
	}

	if req.Type == store.ScanCleanup {
		return o.runCleanup(ctx, logger, scanLog, summary)
	}

	sources, err := o.selectSources(ctx, req)
	if err != nil {
		o.closeLog(ctx, logger, scanLog.ID, store.ScanLogClose{
			Status:      store.ScanFailed,
			ErrorDetail: err.Error(),
		})
		return summary, fmt.Errorf("select sources: %w", err)
	}

	for _, src := range sources {
		summary.SourcesProcessed++
		opts := []queue.EnqueueOption{}
		if req.Type == store.ScanFull && src.Category == store.Category(o.cfg.Scan.PriorityCategory) {
			opts = append(opts, queue.WithPriority(priorityBoost))
		}
		opts = append(opts, queue.WithMaxAttempts(o.cfg.Queues.FetchMaxAttempts))

		payload := FetchJob{SourceID: src.ID, RunID: runID, ScanType: req.Type}
		if _, err := o.queue.Enqueue(ctx, queue.QueueFetch, payload, opts...); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("source %s: %v", src.Name, err))
			logger.Warn("failed to enqueue fetch job",
				logging.String(logging.FieldSource, src.Name),
				logging.Error(err),
			)
			continue
		}
		summary.JobsQueued++
	}

	status := store.ScanCompleted
	if len(summary.Errors) > 0 {
		status = store.ScanPartial
	}
	o.closeLog(ctx, logger, scanLog.ID, store.ScanLogClose{
		Status:      status,
		Found:       summary.SourcesProcessed,
		ErrorDetail: strings.Join(summary.Errors, "; "),
	})

	logger.Info("scan run dispatched",
		logging.String("scan_type", string(req.Type)),
		logging.Int("sources", summary.SourcesProcessed),
		logging.Int("jobs_queued", summary.JobsQueued),
		logging.Int("errors", len(summary.Errors)),
	)
	return summary, nil
}

func (o *Orchestrator) selectSources(ctx context.Context, req Request) ([]*store.Source, error) {
	if req.SourceID != nil {
		src, err := o.store.GetSource(ctx, *req.SourceID)
		if err != nil {
			return nil, err
		}
		if !src.Active {
			return nil, nil
		}
		return []*store.Source{src}, nil
	}
	switch req.Type {
	case store.ScanIncremental:
		return o.store.DueSources(ctx, o.now(), o.cfg.Scan.IncrementalBatchLimit)
	default:
		return o.store.ActiveSources(ctx, store.Category(o.cfg.Scan.PriorityCategory))
	}
}

func (o *Orchestrator) runCleanup(ctx context.Context, logger *slog.Logger, scanLog *store.ScanLog, summary Summary) (Summary, error) {
	windows := store.RetentionWindows{
		ArticleAge: time.Duration(o.cfg.Retention.ArticleDays) * 24 * time.Hour,
		ScanLogAge: time.Duration(o.cfg.Retention.ScanLogDays) * 24 * time.Hour,
		SummaryAge: time.Duration(o.cfg.Retention.SummaryDays) * 24 * time.Hour,
	}
	counts, err := o.store.Cleanup(ctx, o.now(), windows)
	if err != nil {
		o.closeLog(ctx, logger, scanLog.ID, store.ScanLogClose{
			Status:      store.ScanFailed,
			ErrorDetail: err.Error(),
		})
		return summary, fmt.Errorf("cleanup: %w", err)
	}
	summary.Cleanup = counts

	// Completed queue jobs age out on the same schedule as scan logs.
	if pruned, err := o.queue.PruneCompleted(ctx, windows.ScanLogAge); err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("prune jobs: %v", err))
	} else if pruned > 0 {
		logger.Info("pruned completed jobs", logging.Int("pruned", int(pruned)))
	}

	status := store.ScanCompleted
	if len(summary.Errors) > 0 {
		status = store.ScanPartial
	}
	o.closeLog(ctx, logger, scanLog.ID, store.ScanLogClose{
		Status:      status,
		ErrorDetail: strings.Join(summary.Errors, "; "),
	})

	logger.Info("cleanup run finished",
		logging.Int64("articles_purged", counts.Articles),
		logging.Int64("scan_logs_purged", counts.ScanLogs),
		logging.Int64("summaries_purged", counts.Summaries),
	)
	return summary, nil
}

func (o *Orchestrator) closeLog(ctx context.Context, logger *slog.Logger, id int64, close store.ScanLogClose) {
	if err := o.store.CloseScanLog(ctx, id, close); err != nil {
		logger.Error("failed to close scan log", logging.Error(err))
	}
}

// Handler adapts the orchestrator to the scan-orchestration queue.
func (o *Orchestrator) Handler() queue.Handler {
	return queue.HandlerFunc(func(ctx context.Context, job *queue.Job) error {
		var req Request
		if err := job.DecodePayload(&req); err != nil {
			return err
		}
		_, err := o.Run(ctx, req)
		return err
	})
}
