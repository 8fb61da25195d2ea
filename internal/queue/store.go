package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"newswatch/internal/store"
)

// ErrDuplicateJob indicates an enqueue was suppressed because an active job
// with the same key already exists on the queue.
var ErrDuplicateJob = errors.New("duplicate job key")

const jobColumns = "id, queue, job_key, payload, priority, status, attempts, max_attempts, run_after, last_error, lease_expires_at, created_at, updated_at"

// Store persists jobs in the shared SQLite database.
type Store struct {
	st          *store.Store
	lease       time.Duration
	backoffBase time.Duration
}

// Options tunes lease and retry timing.
type Options struct {
	// LeaseDuration is how long a claimed job may run before it is
	// considered stalled and reclaimed.
	LeaseDuration time.Duration
	// BackoffBase is the first retry delay; subsequent retries double it.
	BackoffBase time.Duration
}

// NewStore wraps the shared store with queue semantics.
func NewStore(st *store.Store, opts Options) *Store {
	if opts.LeaseDuration <= 0 {
		opts.LeaseDuration = 2 * time.Minute
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 30 * time.Second
	}
	return &Store{st: st, lease: opts.LeaseDuration, backoffBase: opts.BackoffBase}
}

// EnqueueOption customizes one enqueue.
type EnqueueOption func(*enqueueParams)

type enqueueParams struct {
	priority    int
	key         string
	maxAttempts int
	delay       time.Duration
}

// WithPriority raises (or lowers) claim order; higher claims first.
func WithPriority(priority int) EnqueueOption {
	return func(p *enqueueParams) { p.priority = priority }
}

// WithJobKey sets a deterministic key; while a job with the same key is
// pending or running on the queue, further enqueues are suppressed.
func WithJobKey(key string) EnqueueOption {
	return func(p *enqueueParams) { p.key = key }
}

// WithMaxAttempts overrides the default attempt limit.
func WithMaxAttempts(attempts int) EnqueueOption {
	return func(p *enqueueParams) { p.maxAttempts = attempts }
}

// WithDelay defers the first claim.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *enqueueParams) { p.delay = delay }
}

// Enqueue adds a job carrying the JSON-encoded payload.
func (s *Store) Enqueue(ctx context.Context, queue string, payload any, opts ...EnqueueOption) (*Job, error) {
	params := enqueueParams{maxAttempts: 3}
	for _, opt := range opts {
		opt(&params)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	runAfter := now.Add(params.delay).Format(time.RFC3339Nano)

	var keyArg any
	if strings.TrimSpace(params.key) != "" {
		keyArg = params.key
	}

	res, err := s.st.Exec(ctx,
		`INSERT INTO jobs (queue, job_key, payload, priority, status, attempts, max_attempts, run_after, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
         ON CONFLICT DO NOTHING`,
		queue, keyArg, string(body), params.priority, string(StatusPending),
		params.maxAttempts, runAfter, timestamp, timestamp)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", queue, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("enqueue %s key %q: %w", queue, params.key, ErrDuplicateJob)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches one job.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.st.DB().QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %d: %w", id, store.ErrNotFound)
	}
	return job, err
}

// Claim atomically moves the best pending job to running and returns it, or
// nil when the queue is idle. Claim order is priority descending, then oldest
// first. Attempts count claims, so a job claimed for the third time carries
// Attempts == 3.
func (s *Store) Claim(ctx context.Context, queue string) (*Job, error) {
	now := time.Now().UTC()

	tx, err := s.st.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT id FROM jobs
         WHERE queue = ? AND status = ? AND run_after <= ?
         ORDER BY priority DESC, id
         LIMIT 1`,
		queue, string(StatusPending), now.Format(time.RFC3339Nano))

	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select claimable job: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE jobs
         SET status = ?, attempts = attempts + 1, lease_expires_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(StatusRunning),
		now.Add(s.lease).Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id, string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("claim job %d: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		// Another worker won the race; the caller just polls again.
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Complete marks a running job done.
func (s *Store) Complete(ctx context.Context, job *Job) error {
	_, err := s.st.Exec(ctx,
		`UPDATE jobs SET status = ?, lease_expires_at = NULL, updated_at = ? WHERE id = ?`,
		string(StatusCompleted), time.Now().UTC().Format(time.RFC3339Nano), job.ID)
	if err != nil {
		return fmt.Errorf("complete job %d: %w", job.ID, err)
	}
	return nil
}

// Fail records a failed execution. Jobs with attempts remaining return to
// pending with exponential backoff; exhausted jobs become failed.
func (s *Store) Fail(ctx context.Context, job *Job, jobErr error) error {
	now := time.Now().UTC()
	message := ""
	if jobErr != nil {
		message = jobErr.Error()
	}

	if job.Attempts >= job.MaxAttempts {
		_, err := s.st.Exec(ctx,
			`UPDATE jobs SET status = ?, last_error = ?, lease_expires_at = NULL, updated_at = ? WHERE id = ?`,
			string(StatusFailed), message, now.Format(time.RFC3339Nano), job.ID)
		if err != nil {
			return fmt.Errorf("fail job %d: %w", job.ID, err)
		}
		return nil
	}

	delay := s.backoffBase
	for i := 1; i < job.Attempts; i++ {
		delay *= 2
	}
	_, err := s.st.Exec(ctx,
		`UPDATE jobs SET status = ?, last_error = ?, run_after = ?, lease_expires_at = NULL, updated_at = ? WHERE id = ?`,
		string(StatusPending), message, now.Add(delay).Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano), job.ID)
	if err != nil {
		return fmt.Errorf("requeue job %d: %w", job.ID, err)
	}
	return nil
}

// ReclaimExpired hands stalled running jobs back to pending so another worker
// can pick them up. Returns how many were reclaimed.
func (s *Store) ReclaimExpired(ctx context.Context, queue string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.st.Exec(ctx,
		`UPDATE jobs SET status = ?, lease_expires_at = NULL, updated_at = ?
         WHERE queue = ? AND status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?`,
		string(StatusPending), now, queue, string(StatusRunning), now)
	if err != nil {
		return 0, fmt.Errorf("reclaim %s: %w", queue, err)
	}
	reclaimed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return reclaimed, nil
}

// CountsByQueue aggregates job totals per queue for status display.
func (s *Store) CountsByQueue(ctx context.Context) (map[string]Counts, error) {
	rows, err := s.st.DB().QueryContext(ctx,
		"SELECT queue, status, COUNT(1) FROM jobs GROUP BY queue, status")
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]Counts)
	for rows.Next() {
		var (
			queue  string
			status string
			n      int
		)
		if err := rows.Scan(&queue, &status, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		c := counts[queue]
		switch Status(status) {
		case StatusPending:
			c.Pending = n
		case StatusRunning:
			c.Running = n
		case StatusCompleted:
			c.Completed = n
		case StatusFailed:
			c.Failed = n
		}
		counts[queue] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// PruneCompleted removes completed jobs older than the given age so the jobs
// table does not grow without bound.
func (s *Store) PruneCompleted(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age).Format(time.RFC3339Nano)
	res, err := s.st.Exec(ctx,
		`DELETE FROM jobs WHERE status = ? AND updated_at < ?`,
		string(StatusCompleted), cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return pruned, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id          int64
		queue       string
		key         sql.NullString
		payload     string
		priority    int
		status      string
		attempts    int
		maxAttempts int
		runAfterRaw string
		lastError   sql.NullString
		leaseRaw    sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(&id, &queue, &key, &payload, &priority, &status,
		&attempts, &maxAttempts, &runAfterRaw, &lastError, &leaseRaw, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	job := &Job{
		ID:          id,
		Queue:       queue,
		Key:         key.String,
		Payload:     []byte(payload),
		Priority:    priority,
		Status:      Status(status),
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		RunAfter:    parseTimestamp(runAfterRaw),
		LastError:   lastError.String,
		CreatedAt:   parseTimestamp(createdRaw),
		UpdatedAt:   parseTimestamp(updatedRaw),
	}
	if leaseRaw.Valid {
		lease := parseTimestamp(leaseRaw.String)
		job.LeaseExpiresAt = &lease
	}
	return job, nil
}

func parseTimestamp(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
