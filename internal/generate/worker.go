package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"newswatch/internal/logging"
	"newswatch/internal/queue"
	"newswatch/internal/store"
)

// Job is the content-generation queue payload.
type Job struct {
	ArticleID int64 `json:"article_id"`
}

// Drafter produces platform drafts. Satisfied by Client; tests substitute
// canned drafts.
type Drafter interface {
	Drafts(ctx context.Context, req Request) ([]Draft, error)
}

// Worker handles content-generation jobs. Draft failures never touch the
// article's classification outcome.
type Worker struct {
	store   *store.Store
	drafter Drafter
	logger  *slog.Logger
}

// NewWorker builds a generation worker.
func NewWorker(st *store.Store, drafter Drafter, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		store:   st,
		drafter: drafter,
		logger:  logging.NewComponentLogger(logger, "generate"),
	}
}

// Handle drafts one article and stores the rendered content on it.
func (w *Worker) Handle(ctx context.Context, job *queue.Job) error {
	var payload Job
	if err := job.DecodePayload(&payload); err != nil {
		return err
	}
	logger := logging.WithContext(ctx, w.logger)

	article, err := w.store.GetArticle(ctx, payload.ArticleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("article gone before generation",
				logging.Int64("article_id", payload.ArticleID))
			return nil
		}
		return fmt.Errorf("load article %d: %w", payload.ArticleID, err)
	}

	angle := topAngle(ctx, w.store, article.ID)

	drafts, err := w.drafter.Drafts(ctx, Request{
		Title: article.Title,
		Lede:  article.Lede,
		URL:   article.URL,
		Angle: angle,
	})
	if err != nil {
		return fmt.Errorf("draft article %d: %w", article.ID, err)
	}
	if len(drafts) == 0 {
		logger.Warn("generation returned no drafts",
			logging.Int64("article_id", article.ID))
		return nil
	}

	if err := w.store.SetArticleBody(ctx, article.ID, renderDrafts(drafts)); err != nil {
		return fmt.Errorf("store drafts: %w", err)
	}

	logger.Info("drafts generated",
		logging.Int64("article_id", article.ID),
		logging.Int("drafts", len(drafts)),
	)
	return nil
}

// topAngle picks the highest-scoring topic's suggested angle, if any.
func topAngle(ctx context.Context, st *store.Store, articleID int64) string {
	results, err := st.ResultsForArticle(ctx, articleID)
	if err != nil {
		return ""
	}
	best := ""
	bestScore := -1.0
	for _, result := range results {
		if result.Score > bestScore && result.Angle != "" {
			best = result.Angle
			bestScore = result.Score
		}
	}
	return best
}

func renderDrafts(drafts []Draft) string {
	var b strings.Builder
	for i, draft := range drafts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s]\n%s", draft.Platform, strings.TrimSpace(draft.Content))
	}
	return b.String()
}
