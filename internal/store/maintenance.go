package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RetentionWindows configures what a cleanup run purges.
type RetentionWindows struct {
	ArticleAge time.Duration
	ScanLogAge time.Duration
	SummaryAge time.Duration
}

// Cleanup purges expired rows: non-relevant articles past the article window,
// scan logs past the scan-log window, daily summaries past the summary
// window. Relevant articles survive regardless of age.
func (s *Store) Cleanup(ctx context.Context, now time.Time, windows RetentionWindows) (CleanupCounts, error) {
	var counts CleanupCounts

	res, err := s.Exec(ctx,
		`DELETE FROM articles WHERE status != ? AND created_at < ?`,
		string(ArticleRelevant), formatTime(now.Add(-windows.ArticleAge)))
	if err != nil {
		return counts, fmt.Errorf("purge articles: %w", err)
	}
	counts.Articles, _ = res.RowsAffected()

	res, err = s.Exec(ctx,
		`DELETE FROM scan_logs WHERE started_at < ?`,
		formatTime(now.Add(-windows.ScanLogAge)))
	if err != nil {
		return counts, fmt.Errorf("purge scan logs: %w", err)
	}
	counts.ScanLogs, _ = res.RowsAffected()

	res, err = s.Exec(ctx,
		`DELETE FROM daily_summaries WHERE created_at < ?`,
		formatTime(now.Add(-windows.SummaryAge)))
	if err != nil {
		return counts, fmt.Errorf("purge summaries: %w", err)
	}
	counts.Summaries, _ = res.RowsAffected()

	return counts, nil
}

// UpsertDailySummary records a digest for one day, replacing any prior body
// for the same date.
func (s *Store) UpsertDailySummary(ctx context.Context, date string, articleCount int, body string) error {
	_, err := s.Exec(ctx,
		`INSERT INTO daily_summaries (summary_date, article_count, body, created_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(summary_date) DO UPDATE
         SET article_count = excluded.article_count,
             body = excluded.body`,
		date, articleCount, body, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("upsert daily summary: %w", err)
	}
	return nil
}

// DailySummaryFor fetches the digest for a date string (YYYY-MM-DD).
func (s *Store) DailySummaryFor(ctx context.Context, date string) (*DailySummary, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, summary_date, article_count, body, created_at
         FROM daily_summaries WHERE summary_date = ?`, date)

	var (
		summary    DailySummary
		createdRaw string
	)
	err := row.Scan(&summary.ID, &summary.SummaryDate, &summary.ArticleCount, &summary.Body, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("summary %s: %w", date, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan daily summary: %w", err)
	}
	summary.CreatedAt = parseTime(createdRaw)
	return &summary, nil
}
