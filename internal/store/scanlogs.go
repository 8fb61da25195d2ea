package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const scanLogColumns = "id, run_id, scan_type, source_id, status, found, new_articles, duplicates, analyzed, relevant, error_detail, started_at, finished_at"

// ErrScanLogTerminal indicates an attempt to close an already-terminal scan log.
var ErrScanLogTerminal = errors.New("scan log already terminal")

// StartScanLog opens a running scan log entry for an orchestration run or a
// per-source fetch. sourceID may be nil for run-level entries.
func (s *Store) StartScanLog(ctx context.Context, runID string, scanType ScanType, sourceID *int64) (*ScanLog, error) {
	timestamp := formatTime(time.Now())
	var sourceArg any
	if sourceID != nil {
		sourceArg = *sourceID
	}
	res, err := s.Exec(ctx,
		`INSERT INTO scan_logs (run_id, scan_type, source_id, status, started_at)
         VALUES (?, ?, ?, ?, ?)`,
		runID, string(scanType), sourceArg, string(ScanRunning), timestamp)
	if err != nil {
		return nil, fmt.Errorf("insert scan log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetScanLog(ctx, id)
}

// CloseScanLog moves a running scan log to a terminal state. Terminal entries
// are never re-opened or re-closed.
func (s *Store) CloseScanLog(ctx context.Context, id int64, close ScanLogClose) error {
	switch close.Status {
	case ScanCompleted, ScanPartial, ScanFailed:
	default:
		return fmt.Errorf("close status %q is not terminal", close.Status)
	}

	res, err := s.Exec(ctx,
		`UPDATE scan_logs
         SET status = ?, found = ?, new_articles = ?, duplicates = ?, analyzed = ?, relevant = ?,
             error_detail = ?, finished_at = ?
         WHERE id = ? AND status = ?`,
		string(close.Status), close.Found, close.NewArticles, close.Duplicates,
		close.Analyzed, close.Relevant, nullableString(close.ErrorDetail),
		formatTime(time.Now()), id, string(ScanRunning))
	if err != nil {
		return fmt.Errorf("close scan log: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		existing, err := s.GetScanLog(ctx, id)
		if err != nil {
			return err
		}
		if existing.Terminal() {
			return fmt.Errorf("scan log %d: %w", id, ErrScanLogTerminal)
		}
		return fmt.Errorf("scan log %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetScanLog fetches one scan log by id.
func (s *Store) GetScanLog(ctx context.Context, id int64) (*ScanLog, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+scanLogColumns+" FROM scan_logs WHERE id = ?", id)
	entry, err := scanScanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan log %d: %w", id, ErrNotFound)
	}
	return entry, err
}

// RecentScanLogs returns the newest entries first.
func (s *Store) RecentScanLogs(ctx context.Context, limit int) ([]*ScanLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+scanLogColumns+" FROM scan_logs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query scan logs: %w", err)
	}
	defer rows.Close()

	var entries []*ScanLog
	for rows.Next() {
		entry, err := scanScanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scan log: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan logs: %w", err)
	}
	return entries, nil
}

func scanScanLog(scanner interface{ Scan(dest ...any) error }) (*ScanLog, error) {
	var (
		id          int64
		runID       string
		scanType    string
		sourceID    sql.NullInt64
		status      string
		found       int
		newArticles int
		duplicates  int
		analyzed    int
		relevant    int
		errorDetail sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(&id, &runID, &scanType, &sourceID, &status, &found,
		&newArticles, &duplicates, &analyzed, &relevant, &errorDetail, &startedRaw, &finishedRaw); err != nil {
		return nil, err
	}
	entry := &ScanLog{
		ID:          id,
		RunID:       runID,
		ScanType:    ScanType(scanType),
		Status:      ScanStatus(status),
		Found:       found,
		NewArticles: newArticles,
		Duplicates:  duplicates,
		Analyzed:    analyzed,
		Relevant:    relevant,
		ErrorDetail: errorDetail.String,
		StartedAt:   parseTime(startedRaw),
		FinishedAt:  parseTimePtr(finishedRaw),
	}
	if sourceID.Valid {
		entry.SourceID = &sourceID.Int64
	}
	return entry, nil
}
