package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const topicColumns = "id, name, keywords, prompt, active, builtin, created_at, updated_at"

// ErrBuiltinTopic indicates an attempt to delete a system-provided topic.
var ErrBuiltinTopic = errors.New("builtin topics cannot be deleted")

// NewTopic describes a topic to create.
type NewTopic struct {
	Name     string
	Keywords []string
	Prompt   string
	Active   bool
	Builtin  bool
}

// CreateTopic inserts a topic. Active topics must carry at least one keyword.
func (s *Store) CreateTopic(ctx context.Context, topic NewTopic) (*Topic, error) {
	if strings.TrimSpace(topic.Name) == "" {
		return nil, errors.New("topic name required")
	}
	if topic.Active && len(topic.Keywords) == 0 {
		return nil, errors.New("active topic requires keywords")
	}

	keywordsJSON, err := json.Marshal(topic.Keywords)
	if err != nil {
		return nil, fmt.Errorf("marshal keywords: %w", err)
	}

	timestamp := formatTime(time.Now())
	res, err := s.Exec(ctx,
		`INSERT INTO topics (name, keywords, prompt, active, builtin, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		topic.Name, string(keywordsJSON), topic.Prompt, boolToInt(topic.Active), boolToInt(topic.Builtin), timestamp, timestamp)
	if err != nil {
		return nil, fmt.Errorf("insert topic: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetTopic(ctx, id)
}

// GetTopic fetches one topic by id.
func (s *Store) GetTopic(ctx context.Context, id int64) (*Topic, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+topicColumns+" FROM topics WHERE id = ?", id)
	topic, err := scanTopic(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("topic %d: %w", id, ErrNotFound)
	}
	return topic, err
}

// ActiveTopics returns every active topic ordered by id.
func (s *Store) ActiveTopics(ctx context.Context) ([]*Topic, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+topicColumns+" FROM topics WHERE active = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query active topics: %w", err)
	}
	defer rows.Close()

	var topics []*Topic
	for rows.Next() {
		topic, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}

// ListTopics returns every topic, active or not, ordered by id.
func (s *Store) ListTopics(ctx context.Context) ([]*Topic, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+topicColumns+" FROM topics ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []*Topic
	for rows.Next() {
		topic, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}

// TopicsByIDs returns the topics matching ids, skipping any that no longer exist.
func (s *Store) TopicsByIDs(ctx context.Context, ids []int64) ([]*Topic, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+topicColumns+" FROM topics WHERE id IN ("+placeholders+") ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []*Topic
	for rows.Next() {
		topic, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}

// SetTopicActive flips a topic's activity flag. Deactivation is the only way
// to retire builtin topics.
func (s *Store) SetTopicActive(ctx context.Context, topicID int64, active bool) error {
	res, err := s.Exec(ctx,
		"UPDATE topics SET active = ?, updated_at = ? WHERE id = ?",
		boolToInt(active), formatTime(time.Now()), topicID)
	if err != nil {
		return fmt.Errorf("set topic active: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("topic %d: %w", topicID, ErrNotFound)
	}
	return nil
}

// DeleteTopic removes a non-builtin topic.
func (s *Store) DeleteTopic(ctx context.Context, topicID int64) error {
	topic, err := s.GetTopic(ctx, topicID)
	if err != nil {
		return err
	}
	if topic.Builtin {
		return fmt.Errorf("topic %d: %w", topicID, ErrBuiltinTopic)
	}
	if _, err := s.Exec(ctx, "DELETE FROM topics WHERE id = ?", topicID); err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}
	return nil
}

// UpsertTopicResult records the outcome of scoring one article against one
// topic. Re-analysis overwrites rather than duplicates.
func (s *Store) UpsertTopicResult(ctx context.Context, result TopicResult) error {
	analyzedAt := result.AnalyzedAt
	if analyzedAt.IsZero() {
		analyzedAt = time.Now()
	}
	_, err := s.Exec(ctx,
		`INSERT INTO article_topics (article_id, topic_id, score, reasoning, angle, analyzed_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(article_id, topic_id) DO UPDATE
         SET score = excluded.score,
             reasoning = excluded.reasoning,
             angle = excluded.angle,
             analyzed_at = excluded.analyzed_at`,
		result.ArticleID, result.TopicID, result.Score, result.Reasoning, result.Angle, formatTime(analyzedAt))
	if err != nil {
		return fmt.Errorf("upsert topic result: %w", err)
	}
	return nil
}

// ResultsForArticle returns every per-topic result for an article, topic id order.
func (s *Store) ResultsForArticle(ctx context.Context, articleID int64) ([]*TopicResult, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT article_id, topic_id, score, reasoning, angle, analyzed_at
         FROM article_topics WHERE article_id = ? ORDER BY topic_id`, articleID)
	if err != nil {
		return nil, fmt.Errorf("query topic results: %w", err)
	}
	defer rows.Close()

	var results []*TopicResult
	for rows.Next() {
		var (
			result      TopicResult
			analyzedRaw string
		)
		if err := rows.Scan(&result.ArticleID, &result.TopicID, &result.Score,
			&result.Reasoning, &result.Angle, &analyzedRaw); err != nil {
			return nil, fmt.Errorf("scan topic result: %w", err)
		}
		result.AnalyzedAt = parseTime(analyzedRaw)
		results = append(results, &result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topic results: %w", err)
	}
	return results, nil
}

func scanTopic(scanner interface{ Scan(dest ...any) error }) (*Topic, error) {
	var (
		id          int64
		name        string
		keywordsRaw string
		prompt      string
		active      int
		builtin     int
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(&id, &name, &keywordsRaw, &prompt, &active, &builtin, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	var keywords []string
	if err := json.Unmarshal([]byte(keywordsRaw), &keywords); err != nil {
		return nil, fmt.Errorf("decode keywords for topic %d: %w", id, err)
	}
	return &Topic{
		ID:        id,
		Name:      name,
		Keywords:  keywords,
		Prompt:    prompt,
		Active:    active != 0,
		Builtin:   builtin != 0,
		CreatedAt: parseTime(createdRaw),
		UpdatedAt: parseTime(updatedRaw),
	}, nil
}
