package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"newswatch/internal/config"
	"newswatch/internal/queue"
	"newswatch/internal/scanner"
	"newswatch/internal/store"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Enqueue scan runs for the daemon to execute",
	}

	scanCmd.AddCommand(newScanRequestCommand(ctx, store.ScanFull,
		"Fetch every active source, priority category first"))
	scanCmd.AddCommand(newScanRequestCommand(ctx, store.ScanIncremental,
		"Fetch only sources due per their fetch interval"))
	scanCmd.AddCommand(newScanRequestCommand(ctx, store.ScanCleanup,
		"Purge expired articles, scan logs, summaries, and finished jobs"))

	return scanCmd
}

func newScanRequestCommand(ctx *commandContext, scanType store.ScanType, short string) *cobra.Command {
	var sourceID int64

	cmd := &cobra.Command{
		Use:   string(scanType),
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(cfg *config.Config, st *store.Store, qs *queue.Store) error {
				request := scanner.Request{Type: scanType}
				if sourceID > 0 {
					if scanType == store.ScanCleanup {
						return errors.New("cleanup scans do not take a source")
					}
					if _, err := st.GetSource(cmd.Context(), sourceID); err != nil {
						return err
					}
					request.SourceID = &sourceID
				}

				job, err := qs.Enqueue(cmd.Context(), queue.QueueScan, request)
				if err != nil {
					return fmt.Errorf("enqueue scan: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s scan as job %d\n", scanType, job.ID)
				return nil
			})
		},
	}

	if scanType != store.ScanCleanup {
		cmd.Flags().Int64Var(&sourceID, "source", 0, "Restrict the scan to one source id")
	}
	return cmd
}
