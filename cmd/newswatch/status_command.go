package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"newswatch/internal/config"
	"newswatch/internal/queue"
	"newswatch/internal/store"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var scanLimit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue depths and recent scan runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(cfg *config.Config, st *store.Store, qs *queue.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				counts, err := qs.CountsByQueue(cmd.Context())
				if err != nil {
					return fmt.Errorf("queue counts: %w", err)
				}
				fmt.Fprintln(out, renderQueueTable(counts))

				logs, err := st.RecentScanLogs(cmd.Context(), scanLimit)
				if err != nil {
					return fmt.Errorf("recent scan logs: %w", err)
				}
				fmt.Fprintln(out, renderScanLogTable(logs, colorize))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&scanLimit, "scans", 10, "How many recent scan runs to show")
	return cmd
}

func renderQueueTable(counts map[string]queue.Counts) string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		c := counts[name]
		rows = append(rows, []string{
			name,
			strconv.Itoa(c.Pending),
			strconv.Itoa(c.Running),
			strconv.Itoa(c.Completed),
			strconv.Itoa(c.Failed),
		})
	}
	if len(rows) == 0 {
		rows = append(rows, []string{"(no jobs)", "0", "0", "0", "0"})
	}
	return renderTable([]string{"Queue", "Pending", "Running", "Completed", "Failed"}, rows, 1, 2, 3, 4)
}

func renderScanLogTable(logs []*store.ScanLog, colorize bool) string {
	rows := make([][]string, 0, len(logs))
	for _, entry := range logs {
		source := "-"
		if entry.SourceID != nil {
			source = strconv.FormatInt(*entry.SourceID, 10)
		}
		rows = append(rows, []string{
			entry.StartedAt.Local().Format(time.DateTime),
			string(entry.ScanType),
			source,
			colorizeStatus(entry.Status, colorize),
			strconv.Itoa(entry.Found),
			strconv.Itoa(entry.NewArticles),
			strconv.Itoa(entry.Duplicates),
		})
	}
	if len(rows) == 0 {
		return "No scan runs recorded yet."
	}
	return renderTable([]string{"Started", "Type", "Source", "Status", "Found", "New", "Dupes"}, rows, 4, 5, 6)
}

func colorizeStatus(status store.ScanStatus, colorize bool) string {
	if !colorize {
		return string(status)
	}
	switch status {
	case store.ScanCompleted:
		return ansiGreen + string(status) + ansiReset
	case store.ScanPartial:
		return ansiYellow + string(status) + ansiReset
	case store.ScanFailed:
		return ansiRed + string(status) + ansiReset
	default:
		return string(status)
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
