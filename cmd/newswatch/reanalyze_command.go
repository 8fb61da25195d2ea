package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"newswatch/internal/classify"
	"newswatch/internal/config"
	"newswatch/internal/queue"
	"newswatch/internal/store"
	"newswatch/internal/topics"
)

func newReanalyzeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reanalyze <article-id>",
		Short: "Re-run topic matching and classification for one article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			articleID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parse article id: %w", err)
			}

			return ctx.withQueue(func(cfg *config.Config, st *store.Store, qs *queue.Store) error {
				cmdCtx := cmd.Context()
				out := cmd.OutOrStdout()

				article, err := st.GetArticle(cmdCtx, articleID)
				if err != nil {
					return err
				}

				reset, err := st.ResetForReanalysis(cmdCtx, articleID)
				if err != nil {
					return err
				}
				if !reset {
					return fmt.Errorf("article %d is %s; only relevant or irrelevant articles can be reanalyzed",
						articleID, article.Status)
				}

				active, err := st.ActiveTopics(cmdCtx)
				if err != nil {
					return fmt.Errorf("load topics: %w", err)
				}
				candidates := make([]store.Topic, 0, len(active))
				for _, topic := range active {
					candidates = append(candidates, *topic)
				}

				matched := topics.Match(article.Title, article.Lede, candidates)
				if len(matched) == 0 {
					if err := st.SetArticleStatus(cmdCtx, articleID, store.ArticleIrrelevant); err != nil {
						return err
					}
					fmt.Fprintf(out, "Article %d matches no active topic; marked irrelevant\n", articleID)
					return nil
				}

				job, err := qs.Enqueue(cmdCtx, queue.QueueClassify,
					classify.Job{ArticleID: articleID, TopicIDs: matched},
					queue.WithMaxAttempts(cfg.Queues.ClassifyMaxAttempts),
					queue.WithJobKey(fmt.Sprintf("reanalyze:%d", articleID)))
				if errors.Is(err, queue.ErrDuplicateJob) {
					fmt.Fprintf(out, "Article %d already has a classification job queued\n", articleID)
					return nil
				}
				if err != nil {
					return fmt.Errorf("enqueue classification: %w", err)
				}
				fmt.Fprintf(out, "Queued classification of article %d against %d topic(s) as job %d\n",
					articleID, len(matched), job.ID)
				return nil
			})
		},
	}
}
