package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const articleColumns = "id, source_id, external_id, url, content_hash, title, lede, body, author, published_at, status, created_at, updated_at"

// hashProbeBatchSize bounds the parameter list of a single existence query.
const hashProbeBatchSize = 100

// NewArticle describes a normalized candidate ready for persistence.
type NewArticle struct {
	SourceID    int64
	ExternalID  string
	URL         string
	ContentHash string
	Title       string
	Lede        string
	Body        string
	Author      string
	PublishedAt *time.Time
}

// InsertArticle persists a candidate. A duplicate content hash is not an
// error: concurrent fetches race on overlapping feeds, so the insert resolves
// to a no-op and inserted reports false.
func (s *Store) InsertArticle(ctx context.Context, candidate NewArticle) (*Article, bool, error) {
	if strings.TrimSpace(candidate.ContentHash) == "" {
		return nil, false, errors.New("content hash required")
	}

	timestamp := formatTime(time.Now())
	res, err := s.Exec(ctx,
		`INSERT INTO articles (source_id, external_id, url, content_hash, title, lede, body, author, published_at, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(content_hash) DO NOTHING`,
		candidate.SourceID,
		candidate.ExternalID,
		candidate.URL,
		candidate.ContentHash,
		candidate.Title,
		candidate.Lede,
		nullableString(candidate.Body),
		nullableString(candidate.Author),
		nullableTime(candidate.PublishedAt),
		string(ArticlePending),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert article: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		existing, err := s.ArticleByHash(ctx, candidate.ContentHash)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}
	article, err := s.GetArticle(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return article, true, nil
}

// GetArticle fetches one article by id.
func (s *Store) GetArticle(ctx context.Context, id int64) (*Article, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+articleColumns+" FROM articles WHERE id = ?", id)
	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	return article, err
}

// ArticleByHash fetches one article by content hash.
func (s *Store) ArticleByHash(ctx context.Context, hash string) (*Article, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+articleColumns+" FROM articles WHERE content_hash = ?", hash)
	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("article hash %s: %w", hash, ErrNotFound)
	}
	return article, err
}

// ExistingHashes returns the subset of hashes already stored, querying in
// bounded batches so a large fetch cannot produce an unbounded parameter list.
func (s *Store) ExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	ctx = ensureContext(ctx)
	existing := make(map[string]bool)
	for start := 0; start < len(hashes); start += hashProbeBatchSize {
		end := start + hashProbeBatchSize
		if end > len(hashes) {
			end = len(hashes)
		}
		batch := hashes[start:end]

		placeholders := strings.Repeat("?,", len(batch))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]any, len(batch))
		for i, h := range batch {
			args[i] = h
		}

		rows, err := s.db.QueryContext(ctx,
			"SELECT content_hash FROM articles WHERE content_hash IN ("+placeholders+")", args...)
		if err != nil {
			return nil, fmt.Errorf("probe hashes: %w", err)
		}
		for rows.Next() {
			var hash string
			if err := rows.Scan(&hash); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan hash: %w", err)
			}
			existing[hash] = true
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("iterate hashes: %w", err)
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("close hash rows: %w", err)
		}
	}
	return existing, nil
}

// SetArticleStatus transitions an article's classification state.
func (s *Store) SetArticleStatus(ctx context.Context, articleID int64, status ArticleStatus) error {
	res, err := s.Exec(ctx,
		"UPDATE articles SET status = ?, updated_at = ? WHERE id = ?",
		string(status), formatTime(time.Now()), articleID)
	if err != nil {
		return fmt.Errorf("set article status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("article %d: %w", articleID, ErrNotFound)
	}
	return nil
}

// SetArticleBody stores generated draft content on an article.
func (s *Store) SetArticleBody(ctx context.Context, articleID int64, body string) error {
	res, err := s.Exec(ctx,
		"UPDATE articles SET body = ?, updated_at = ? WHERE id = ?",
		body, formatTime(time.Now()), articleID)
	if err != nil {
		return fmt.Errorf("set article body: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("article %d: %w", articleID, ErrNotFound)
	}
	return nil
}

// ResetForReanalysis moves a relevant or irrelevant article back to pending.
// Articles in other states are left untouched and reported as such.
func (s *Store) ResetForReanalysis(ctx context.Context, articleID int64) (bool, error) {
	res, err := s.Exec(ctx,
		`UPDATE articles SET status = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(ArticlePending), formatTime(time.Now()), articleID,
		string(ArticleRelevant), string(ArticleIrrelevant))
	if err != nil {
		return false, fmt.Errorf("reset article: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RelevantArticlesOn returns relevant articles whose classification finished
// on the given day (UTC), for digest assembly.
func (s *Store) RelevantArticlesOn(ctx context.Context, day time.Time) ([]*Article, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+articleColumns+` FROM articles
         WHERE status = ? AND updated_at >= ? AND updated_at < ?
         ORDER BY updated_at`,
		string(ArticleRelevant), formatTime(dayStart), formatTime(dayEnd))
	if err != nil {
		return nil, fmt.Errorf("query relevant articles: %w", err)
	}
	defer rows.Close()

	var articles []*Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return articles, nil
}

func scanArticle(scanner interface{ Scan(dest ...any) error }) (*Article, error) {
	var (
		id           int64
		sourceID     int64
		externalID   string
		url          string
		contentHash  string
		title        string
		lede         string
		body         sql.NullString
		author       sql.NullString
		publishedRaw sql.NullString
		status       string
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(&id, &sourceID, &externalID, &url, &contentHash, &title,
		&lede, &body, &author, &publishedRaw, &status, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	return &Article{
		ID:          id,
		SourceID:    sourceID,
		ExternalID:  externalID,
		URL:         url,
		ContentHash: contentHash,
		Title:       title,
		Lede:        lede,
		Body:        body.String,
		Author:      author.String,
		PublishedAt: parseTimePtr(publishedRaw),
		Status:      ArticleStatus(status),
		CreatedAt:   parseTime(createdRaw),
		UpdatedAt:   parseTime(updatedRaw),
	}, nil
}
