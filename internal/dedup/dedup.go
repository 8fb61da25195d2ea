// Package dedup decides whether fetched article hashes are new using a
// two-tier check: a Redis cache fronting the durable store. The cache is an
// accelerator only; when it misbehaves the store answer wins.
package dedup

import (
	"context"
	"log/slog"
	"time"

	"newswatch/internal/logging"
)

const (
	markerNew    = "new"
	markerExists = "exists"

	defaultNewTTL    = 10 * time.Minute
	defaultExistsTTL = 7 * 24 * time.Hour
)

// Cache is the hash-marker cache. The Redis implementation lives in this
// package; tests substitute in-memory fakes.
type Cache interface {
	// GetMarkers resolves cached markers for hashes; absent hashes map to
	// the empty string.
	GetMarkers(ctx context.Context, hashes []string) (map[string]string, error)
	// SetMarkers writes marker values with a TTL for every given hash.
	SetMarkers(ctx context.Context, hashes []string, marker string, ttl time.Duration) error
}

// HashStore answers which content hashes are already persisted.
type HashStore interface {
	ExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error)
}

// Partition splits a batch of hashes into new and duplicate.
type Partition struct {
	New       []string
	Duplicate []string
}

// Deduplicator partitions content hashes against the cache and store.
type Deduplicator struct {
	cache     Cache
	store     HashStore
	logger    *slog.Logger
	newTTL    time.Duration
	existsTTL time.Duration
}

// Option customizes a Deduplicator.
type Option func(*Deduplicator)

// WithNewTTL bounds how long a hash stays marked pending-insert.
func WithNewTTL(ttl time.Duration) Option {
	return func(d *Deduplicator) {
		if ttl > 0 {
			d.newTTL = ttl
		}
	}
}

// WithExistsTTL bounds how long a confirmed hash stays cached.
func WithExistsTTL(ttl time.Duration) Option {
	return func(d *Deduplicator) {
		if ttl > 0 {
			d.existsTTL = ttl
		}
	}
}

// New builds a Deduplicator. cache may be nil, in which case every hash is
// resolved against the store.
func New(cache Cache, store HashStore, logger *slog.Logger, opts ...Option) *Deduplicator {
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Deduplicator{
		cache:     cache,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "dedup"),
		newTTL:    defaultNewTTL,
		existsTTL: defaultExistsTTL,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Partition classifies hashes as new or duplicate. Cached markers answer
// first; cache misses fall through to the store. Hashes the store does not
// know are marked pending-insert in the cache so a concurrent batch sees them
// as duplicates. Cache failures degrade to store answers and never fail the
// call.
func (d *Deduplicator) Partition(ctx context.Context, hashes []string) (Partition, error) {
	var result Partition
	if len(hashes) == 0 {
		return result, nil
	}

	misses := hashes
	if d.cache != nil {
		markers, err := d.cache.GetMarkers(ctx, hashes)
		if err != nil {
			d.logger.Warn("dedup cache read failed; falling back to store", logging.Error(err))
		} else {
			misses = misses[:0:0]
			for _, hash := range hashes {
				switch markers[hash] {
				case markerExists, markerNew:
					result.Duplicate = append(result.Duplicate, hash)
				default:
					misses = append(misses, hash)
				}
			}
		}
	}

	if len(misses) == 0 {
		return result, nil
	}

	stored, err := d.store.ExistingHashes(ctx, misses)
	if err != nil {
		return Partition{}, err
	}

	fresh := make([]string, 0, len(misses))
	for _, hash := range misses {
		if stored[hash] {
			result.Duplicate = append(result.Duplicate, hash)
		} else {
			result.New = append(result.New, hash)
			fresh = append(fresh, hash)
		}
	}

	if d.cache != nil && len(fresh) > 0 {
		if err := d.cache.SetMarkers(ctx, fresh, markerNew, d.newTTL); err != nil {
			d.logger.Warn("dedup cache mark-new failed", logging.Error(err))
		}
	}
	return result, nil
}

// MarkStored promotes hashes to the terminal cached state after their
// articles are confirmed in the store. Cache failures are advisory.
func (d *Deduplicator) MarkStored(ctx context.Context, hashes []string) {
	if d.cache == nil || len(hashes) == 0 {
		return
	}
	if err := d.cache.SetMarkers(ctx, hashes, markerExists, d.existsTTL); err != nil {
		d.logger.Warn("dedup cache mark-stored failed", logging.Error(err))
	}
}
