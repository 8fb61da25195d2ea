package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

const sourceColumns = "id, name, category, feed_url, fetch_interval_seconds, active, last_fetched_at, error_count, last_error, created_at, updated_at"

// NewSource describes a source to create. Configuration surfaces own source
// CRUD; the store exposes creation for seeding and tests.
type NewSource struct {
	Name                 string
	Category             Category
	FeedURL              string
	FetchIntervalSeconds int
	Active               bool
}

// CreateSource inserts a source and returns the stored row.
func (s *Store) CreateSource(ctx context.Context, src NewSource) (*Source, error) {
	if strings.TrimSpace(src.Name) == "" {
		return nil, errors.New("source name required")
	}
	if strings.TrimSpace(src.FeedURL) == "" {
		return nil, errors.New("source feed url required")
	}
	if src.Category == "" {
		src.Category = CategoryRegional
	}
	if src.FetchIntervalSeconds <= 0 {
		src.FetchIntervalSeconds = 3600
	}

	timestamp := formatTime(time.Now())
	res, err := s.Exec(ctx,
		`INSERT INTO sources (name, category, feed_url, fetch_interval_seconds, active, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		src.Name, string(src.Category), src.FeedURL, src.FetchIntervalSeconds, boolToInt(src.Active), timestamp, timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert source: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetSource(ctx, id)
}

// GetSource fetches one source by id.
func (s *Store) GetSource(ctx context.Context, id int64) (*Source, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+sourceColumns+" FROM sources WHERE id = ?", id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %d: %w", id, ErrNotFound)
	}
	return src, err
}

// ActiveSources returns every active source, priority category first, then by
// name for stable ordering.
func (s *Store) ActiveSources(ctx context.Context, priorityCategory Category) ([]*Source, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+sourceColumns+` FROM sources WHERE active = 1
         ORDER BY CASE WHEN category = ? THEN 0 ELSE 1 END, name`,
		string(priorityCategory))
	if err != nil {
		return nil, fmt.Errorf("query active sources: %w", err)
	}
	return collectSources(rows)
}

// ListSources returns every source, active or not, ordered by id.
func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+sourceColumns+" FROM sources ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	return collectSources(rows)
}

// DueSources returns active sources never fetched or past their interval,
// never-fetched first, then oldest fetch first, capped at limit. The caller
// supplies now so selection is deterministic under test.
func (s *Store) DueSources(ctx context.Context, now time.Time, limit int) ([]*Source, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+sourceColumns+` FROM sources
         WHERE active = 1
           AND (last_fetched_at IS NULL
                OR strftime('%s', last_fetched_at) + fetch_interval_seconds <= strftime('%s', ?))
         ORDER BY last_fetched_at IS NOT NULL, last_fetched_at, name
         LIMIT ?`,
		formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("query due sources: %w", err)
	}
	return collectSources(rows)
}

// ApplyFetchOutcome records the result of a fetch attempt against a source.
// These are the only source fields the pipeline mutates.
func (s *Store) ApplyFetchOutcome(ctx context.Context, sourceID int64, update SourceFetchUpdate) error {
	timestamp := formatTime(time.Now())
	if update.Success {
		_, err := s.Exec(ctx,
			`UPDATE sources SET last_fetched_at = ?, error_count = 0, last_error = NULL, updated_at = ? WHERE id = ?`,
			formatTime(update.FetchedAt), timestamp, sourceID)
		if err != nil {
			return fmt.Errorf("record fetch success: %w", err)
		}
		return nil
	}
	_, err := s.Exec(ctx,
		`UPDATE sources SET error_count = error_count + 1, last_error = ?, updated_at = ? WHERE id = ?`,
		nullableString(update.Error), timestamp, sourceID)
	if err != nil {
		return fmt.Errorf("record fetch failure: %w", err)
	}
	return nil
}

// SetSourceActive flips the activity flag.
func (s *Store) SetSourceActive(ctx context.Context, sourceID int64, active bool) error {
	res, err := s.Exec(ctx,
		"UPDATE sources SET active = ?, updated_at = ? WHERE id = ?",
		boolToInt(active), formatTime(time.Now()), sourceID)
	if err != nil {
		return fmt.Errorf("set source active: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("source %d: %w", sourceID, ErrNotFound)
	}
	return nil
}

func collectSources(rows *sql.Rows) ([]*Source, error) {
	defer rows.Close()
	var sources []*Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return sources, nil
}

func scanSource(scanner interface{ Scan(dest ...any) error }) (*Source, error) {
	var (
		id          int64
		name        string
		category    string
		feedURL     string
		interval    int
		active      int
		lastFetched sql.NullString
		errorCount  int
		lastError   sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(&id, &name, &category, &feedURL, &interval, &active,
		&lastFetched, &errorCount, &lastError, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	return &Source{
		ID:                   id,
		Name:                 name,
		Category:             Category(category),
		FeedURL:              feedURL,
		FetchIntervalSeconds: interval,
		Active:               active != 0,
		LastFetchedAt:        parseTimePtr(lastFetched),
		ErrorCount:           errorCount,
		LastError:            lastError.String,
		CreatedAt:            parseTime(createdRaw),
		UpdatedAt:            parseTime(updatedRaw),
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
