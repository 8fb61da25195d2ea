package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"newswatch/internal/classify"
	"newswatch/internal/config"
	"newswatch/internal/dedup"
	"newswatch/internal/feed"
	"newswatch/internal/logging"
	"newswatch/internal/queue"
	"newswatch/internal/store"
	"newswatch/internal/topics"
)

// Fetcher retrieves one feed. Satisfied by feed.Fetcher; tests substitute
// canned results.
type Fetcher interface {
	Fetch(ctx context.Context, url, sourceKey string) (feed.FetchResult, error)
}

// FetchWorker handles source-fetch jobs: fetch, normalize, dedup, match,
// persist, fan out classification work.
type FetchWorker struct {
	store   *store.Store
	queue   *queue.Store
	fetcher Fetcher
	dedup   *dedup.Deduplicator
	cfg     *config.Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewFetchWorker builds a fetch worker.
func NewFetchWorker(st *store.Store, qs *queue.Store, fetcher Fetcher, dd *dedup.Deduplicator, cfg *config.Config, logger *slog.Logger) *FetchWorker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FetchWorker{
		store:   st,
		queue:   qs,
		fetcher: fetcher,
		dedup:   dd,
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "fetch"),
		now:     time.Now,
	}
}

// Handle processes one fetch job. Transient fetch failures return an error so
// the queue retries; malformed feeds complete the job after recording the
// source failure.
func (w *FetchWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload FetchJob
	if err := job.DecodePayload(&payload); err != nil {
		return err
	}

	src, err := w.store.GetSource(ctx, payload.SourceID)
	if err != nil {
		return fmt.Errorf("load source %d: %w", payload.SourceID, err)
	}

	ctx = logging.WithScanRun(logging.WithSource(ctx, src.Name), payload.RunID)
	logger := logging.WithContext(ctx, w.logger)

	scanLog, err := w.store.StartScanLog(ctx, payload.RunID, payload.ScanType, &src.ID)
	if err != nil {
		return fmt.Errorf("start scan log: %w", err)
	}

	result, err := w.fetcher.Fetch(ctx, src.FeedURL, sourceKey(src))
	if err != nil {
		// Context errors only. A retry opens a fresh scan log, so close this
		// one instead of stranding it in the running state.
		closeCtx, cancelClose := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelClose()
		if closeErr := w.store.CloseScanLog(closeCtx, scanLog.ID, store.ScanLogClose{
			Status:      store.ScanFailed,
			ErrorDetail: err.Error(),
		}); closeErr != nil {
			logger.Error("failed to close scan log", logging.Error(closeErr))
		}
		return err
	}
	if result.Failure != nil {
		return w.recordFetchFailure(ctx, logger, src, scanLog, result.Failure)
	}

	now := w.now()
	candidates, stats := feed.Normalize(result.Feed.Items, src.ID, now, feed.NormalizeOptions{
		MaxLedeChars:     w.cfg.Fetch.MaxLedeChars,
		FreshnessHorizon: w.cfg.FreshnessHorizon(),
	})

	hashes := make([]string, len(candidates))
	byHash := make(map[string]feed.Candidate, len(candidates))
	for i, candidate := range candidates {
		hashes[i] = candidate.ContentHash
		byHash[candidate.ContentHash] = candidate
	}

	partition, err := w.dedup.Partition(ctx, hashes)
	if err != nil {
		return fmt.Errorf("partition hashes: %w", err)
	}

	activeTopics, err := w.store.ActiveTopics(ctx)
	if err != nil {
		return fmt.Errorf("load topics: %w", err)
	}
	topicSet := make([]store.Topic, len(activeTopics))
	for i, topic := range activeTopics {
		topicSet[i] = *topic
	}

	var (
		inserted   int
		duplicates = len(partition.Duplicate)
		queued     int
		itemErrors []string
		stored     []string
	)
	for _, hash := range partition.New {
		candidate := byHash[hash]
		published := candidate.PublishedAt
		article, ok, err := w.store.InsertArticle(ctx, store.NewArticle{
			SourceID:    candidate.SourceID,
			ExternalID:  candidate.ExternalID,
			URL:         candidate.CanonicalURL,
			ContentHash: candidate.ContentHash,
			Title:       candidate.Title,
			Lede:        candidate.Lede,
			Author:      candidate.Author,
			PublishedAt: &published,
		})
		if err != nil {
			itemErrors = append(itemErrors, fmt.Sprintf("insert %s: %v", candidate.CanonicalURL, err))
			continue
		}
		if !ok {
			// Another worker stored the same hash between partition and
			// insert.
			duplicates++
			continue
		}
		inserted++
		stored = append(stored, hash)

		matched := topics.Match(article.Title, article.Lede, topicSet)
		if len(matched) == 0 {
			if err := w.store.SetArticleStatus(ctx, article.ID, store.ArticleIrrelevant); err != nil {
				itemErrors = append(itemErrors, fmt.Sprintf("status %s: %v", candidate.CanonicalURL, err))
			}
			continue
		}
		_, err = w.queue.Enqueue(ctx, queue.QueueClassify,
			classify.Job{ArticleID: article.ID, TopicIDs: matched},
			queue.WithMaxAttempts(w.cfg.Queues.ClassifyMaxAttempts))
		if err != nil {
			itemErrors = append(itemErrors, fmt.Sprintf("enqueue classify %d: %v", article.ID, err))
			continue
		}
		queued++
	}

	w.dedup.MarkStored(ctx, stored)

	if err := w.store.ApplyFetchOutcome(ctx, src.ID, store.SourceFetchUpdate{
		FetchedAt: now,
		Success:   true,
	}); err != nil {
		itemErrors = append(itemErrors, fmt.Sprintf("fetch outcome: %v", err))
	}

	status := store.ScanCompleted
	if len(itemErrors) > 0 {
		status = store.ScanPartial
	}
	if err := w.store.CloseScanLog(ctx, scanLog.ID, store.ScanLogClose{
		Status:      status,
		Found:       stats.Found,
		NewArticles: inserted,
		Duplicates:  duplicates,
		ErrorDetail: strings.Join(itemErrors, "; "),
	}); err != nil {
		logger.Error("failed to close scan log", logging.Error(err))
	}

	logger.Info("source scanned",
		logging.Int("found", stats.Found),
		logging.Int("normalized", stats.Normalized),
		logging.Int("new", inserted),
		logging.Int("duplicates", duplicates),
		logging.Int("classify_jobs", queued),
		logging.Int("item_errors", len(itemErrors)),
	)
	return nil
}

func (w *FetchWorker) recordFetchFailure(ctx context.Context, logger *slog.Logger, src *store.Source, scanLog *store.ScanLog, failure *feed.Failure) error {
	if err := w.store.ApplyFetchOutcome(ctx, src.ID, store.SourceFetchUpdate{
		FetchedAt: w.now(),
		Success:   false,
		Error:     failure.Err.Error(),
	}); err != nil {
		logger.Error("failed to record fetch outcome", logging.Error(err))
	}
	if err := w.store.CloseScanLog(ctx, scanLog.ID, store.ScanLogClose{
		Status:      store.ScanFailed,
		ErrorDetail: failure.Err.Error(),
	}); err != nil {
		logger.Error("failed to close scan log", logging.Error(err))
	}

	logger.Warn("source fetch failed",
		logging.String("failure_kind", string(failure.Kind)),
		logging.Error(failure.Err),
	)
	if failure.Kind == feed.FailureMalformed {
		// Retrying an unparseable document gains nothing.
		return nil
	}
	return failure.Err
}

// sourceKey scopes rate limiting and circuit breaking to the feed host.
func sourceKey(src *store.Source) string {
	if parsed, err := url.Parse(src.FeedURL); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return src.FeedURL
}
