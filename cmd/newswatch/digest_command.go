package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"newswatch/internal/config"
	"newswatch/internal/generate"
	"newswatch/internal/queue"
	"newswatch/internal/store"
)

func newDigestCommand(ctx *commandContext) *cobra.Command {
	var dateFlag string

	digestCmd := &cobra.Command{
		Use:   "digest",
		Short: "Queue a daily digest build",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := resolveDigestDate(dateFlag)
			if err != nil {
				return err
			}

			return ctx.withQueue(func(cfg *config.Config, st *store.Store, qs *queue.Store) error {
				job, err := qs.Enqueue(cmd.Context(), queue.QueueDigest,
					generate.DigestJob{Date: day.Format(time.DateOnly)},
					queue.WithJobKey(generate.DigestJobKey(day)))
				if errors.Is(err, queue.ErrDuplicateJob) {
					fmt.Fprintf(cmd.OutOrStdout(), "A digest for %s is already queued\n", day.Format(time.DateOnly))
					return nil
				}
				if err != nil {
					return fmt.Errorf("enqueue digest: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued digest for %s as job %d\n", day.Format(time.DateOnly), job.ID)
				return nil
			})
		},
	}

	digestCmd.PersistentFlags().StringVar(&dateFlag, "date", "", "Digest date as YYYY-MM-DD (defaults to today, UTC)")
	digestCmd.AddCommand(newDigestShowCommand(ctx, &dateFlag))

	return digestCmd
}

func newDigestShowCommand(ctx *commandContext, dateFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print a stored daily digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := resolveDigestDate(*dateFlag)
			if err != nil {
				return err
			}
			date := day.Format(time.DateOnly)

			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				summary, err := st.DailySummaryFor(cmd.Context(), date)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no digest stored for %s; queue one with `newswatch digest --date %s`", date, date)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), summary.Body)
				return nil
			})
		},
	}
}

func resolveDigestDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().UTC(), nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return day, nil
}
