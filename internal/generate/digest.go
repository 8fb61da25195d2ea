package generate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"newswatch/internal/logging"
	"newswatch/internal/queue"
	"newswatch/internal/store"
)

// DigestJob is the daily-digest queue payload. Date is a YYYY-MM-DD day in
// UTC; empty means today.
type DigestJob struct {
	Date string `json:"date"`
}

// DigestJobKey derives the deterministic job key that keeps one digest job
// per day active at a time.
func DigestJobKey(day time.Time) string {
	return "digest:" + day.UTC().Format(time.DateOnly)
}

// DigestWorker assembles the daily summary of relevant articles.
type DigestWorker struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewDigestWorker builds a digest worker.
func NewDigestWorker(st *store.Store, logger *slog.Logger) *DigestWorker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &DigestWorker{
		store:  st,
		logger: logging.NewComponentLogger(logger, "digest"),
		now:    time.Now,
	}
}

// Handle composes the digest for the job's date. Running it again for the
// same date replaces the stored summary.
func (w *DigestWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload DigestJob
	if err := job.DecodePayload(&payload); err != nil {
		return err
	}
	logger := logging.WithContext(ctx, w.logger)

	day := w.now().UTC()
	if payload.Date != "" {
		parsed, err := time.Parse(time.DateOnly, payload.Date)
		if err != nil {
			return fmt.Errorf("parse digest date %q: %w", payload.Date, err)
		}
		day = parsed
	}
	date := day.Format(time.DateOnly)

	articles, err := w.store.RelevantArticlesOn(ctx, day)
	if err != nil {
		return fmt.Errorf("collect relevant articles: %w", err)
	}

	body := w.compose(ctx, date, articles)
	if err := w.store.UpsertDailySummary(ctx, date, len(articles), body); err != nil {
		return fmt.Errorf("store digest: %w", err)
	}

	logger.Info("daily digest stored",
		logging.String("date", date),
		logging.Int("articles", len(articles)),
	)
	return nil
}

func (w *DigestWorker) compose(ctx context.Context, date string, articles []*store.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily digest for %s: %d relevant article(s).\n", date, len(articles))
	for _, article := range articles {
		fmt.Fprintf(&b, "\n- %s\n  %s\n", article.Title, article.URL)
		if top := topResultLine(ctx, w.store, article.ID); top != "" {
			fmt.Fprintf(&b, "  %s\n", top)
		}
	}
	return b.String()
}

func topResultLine(ctx context.Context, st *store.Store, articleID int64) string {
	results, err := st.ResultsForArticle(ctx, articleID)
	if err != nil || len(results) == 0 {
		return ""
	}
	best := results[0]
	for _, result := range results[1:] {
		if result.Score > best.Score {
			best = result
		}
	}
	if best.Reasoning == "" {
		return fmt.Sprintf("score %.2f", best.Score)
	}
	return fmt.Sprintf("score %.2f: %s", best.Score, best.Reasoning)
}
