package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"newswatch/internal/config"
	"newswatch/internal/generate"
	"newswatch/internal/logging"
	"newswatch/internal/queue"
	"newswatch/internal/ratelimit"
	"newswatch/internal/store"
)

// limiterKey paces all classification calls against one shared budget.
const limiterKey = "classifier"

// Scorer judges an article against topics. Satisfied by Client; tests
// substitute canned scores.
type Scorer interface {
	Score(ctx context.Context, req Request) (map[int64]TopicScore, error)
}

// Worker handles classification jobs.
type Worker struct {
	store   *store.Store
	queue   *queue.Store
	scorer  Scorer
	limiter *ratelimit.Limiter
	cfg     *config.Config
	logger  *slog.Logger
}

// NewWorker builds a classification worker.
func NewWorker(st *store.Store, qs *queue.Store, scorer Scorer, limiter *ratelimit.Limiter, cfg *config.Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		store:   st,
		queue:   qs,
		scorer:  scorer,
		limiter: limiter,
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "classify"),
	}
}

// Handle scores one article. A scorer failure flips the article to error
// status and returns the error so the queue retries; a later attempt resets
// the article to analyzing before calling out again.
func (w *Worker) Handle(ctx context.Context, job *queue.Job) error {
	var payload Job
	if err := job.DecodePayload(&payload); err != nil {
		return err
	}
	logger := logging.WithContext(ctx, w.logger)

	article, err := w.store.GetArticle(ctx, payload.ArticleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Purged between enqueue and claim; nothing left to score.
			logger.Warn("article gone before classification",
				logging.Int64("article_id", payload.ArticleID))
			return nil
		}
		return fmt.Errorf("load article %d: %w", payload.ArticleID, err)
	}

	judged, err := w.store.TopicsByIDs(ctx, payload.TopicIDs)
	if err != nil {
		return fmt.Errorf("load topics: %w", err)
	}
	if len(judged) == 0 {
		// Every matched topic was deleted before the job ran.
		return w.store.SetArticleStatus(ctx, article.ID, store.ArticleIrrelevant)
	}

	if err := w.store.SetArticleStatus(ctx, article.ID, store.ArticleAnalyzing); err != nil {
		return fmt.Errorf("mark analyzing: %w", err)
	}

	if w.limiter != nil {
		if err := w.limiter.Acquire(ctx, limiterKey); err != nil {
			return err
		}
	}

	scores, err := w.scorer.Score(ctx, Request{
		Title:  article.Title,
		Lede:   article.Lede,
		Topics: judged,
	})
	if err != nil {
		if statusErr := w.store.SetArticleStatus(ctx, article.ID, store.ArticleError); statusErr != nil {
			logger.Error("failed to record error status", logging.Error(statusErr))
		}
		return fmt.Errorf("score article %d: %w", article.ID, err)
	}

	maxScore := 0.0
	for _, topic := range judged {
		score := scores[topic.ID]
		if err := w.store.UpsertTopicResult(ctx, store.TopicResult{
			ArticleID: article.ID,
			TopicID:   topic.ID,
			Score:     score.Score,
			Reasoning: score.Reasoning,
			Angle:     score.Angle,
		}); err != nil {
			return fmt.Errorf("persist result: %w", err)
		}
		if score.Score > maxScore {
			maxScore = score.Score
		}
	}

	status := store.ArticleIrrelevant
	if maxScore >= w.cfg.Classifier.RelevanceThreshold {
		status = store.ArticleRelevant
	}
	if err := w.store.SetArticleStatus(ctx, article.ID, status); err != nil {
		return fmt.Errorf("finalize status: %w", err)
	}

	if w.cfg.Generator.Enabled && maxScore >= w.cfg.Classifier.GenerateThreshold {
		_, err := w.queue.Enqueue(ctx, queue.QueueGenerate,
			generate.Job{ArticleID: article.ID},
			queue.WithMaxAttempts(w.cfg.Queues.GenerateMaxAttempts))
		if err != nil && !errors.Is(err, queue.ErrDuplicateJob) {
			logger.Warn("failed to enqueue generation job",
				logging.Int64("article_id", article.ID),
				logging.Error(err),
			)
		}
	}

	logger.Info("article classified",
		logging.Int64("article_id", article.ID),
		logging.String("status", string(status)),
		logging.Float64("max_score", maxScore),
		logging.Int("topics", len(judged)),
	)
	return nil
}
