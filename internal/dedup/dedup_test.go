package dedup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"newswatch/internal/logging"
)

type fakeCache struct {
	mu      sync.Mutex
	markers map[string]string
	getErr  error
	setErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{markers: make(map[string]string)}
}

func (c *fakeCache) GetMarkers(ctx context.Context, hashes []string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	out := make(map[string]string)
	for _, hash := range hashes {
		if marker, ok := c.markers[hash]; ok {
			out[hash] = marker
		}
	}
	return out, nil
}

func (c *fakeCache) SetMarkers(ctx context.Context, hashes []string, marker string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	for _, hash := range hashes {
		c.markers[hash] = marker
	}
	return nil
}

type fakeHashStore struct {
	mu     sync.Mutex
	stored map[string]bool
	err    error
	probes int
}

func newFakeHashStore(hashes ...string) *fakeHashStore {
	stored := make(map[string]bool)
	for _, hash := range hashes {
		stored[hash] = true
	}
	return &fakeHashStore{stored: stored}
}

func (s *fakeHashStore) ExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.probes++
	out := make(map[string]bool)
	for _, hash := range hashes {
		if s.stored[hash] {
			out[hash] = true
		}
	}
	return out, nil
}

func TestPartitionSplitsNewAndStored(t *testing.T) {
	cache := newFakeCache()
	store := newFakeHashStore("stored-hash")
	dedup := New(cache, store, logging.NewNop())

	result, err := dedup.Partition(context.Background(), []string{"fresh-hash", "stored-hash"})
	if err != nil {
		t.Fatalf("Partition returned error: %v", err)
	}
	if len(result.New) != 1 || result.New[0] != "fresh-hash" {
		t.Fatalf("unexpected new set: %v", result.New)
	}
	if len(result.Duplicate) != 1 || result.Duplicate[0] != "stored-hash" {
		t.Fatalf("unexpected duplicate set: %v", result.Duplicate)
	}
	if cache.markers["fresh-hash"] != markerNew {
		t.Fatalf("expected fresh hash marked new, got %q", cache.markers["fresh-hash"])
	}
}

func TestPartitionTreatsPendingMarkerAsDuplicate(t *testing.T) {
	cache := newFakeCache()
	store := newFakeHashStore()
	dedup := New(cache, store, logging.NewNop())
	ctx := context.Background()

	first, err := dedup.Partition(ctx, []string{"h1"})
	if err != nil {
		t.Fatalf("Partition returned error: %v", err)
	}
	if len(first.New) != 1 {
		t.Fatalf("expected h1 new on first sight, got %+v", first)
	}

	second, err := dedup.Partition(ctx, []string{"h1"})
	if err != nil {
		t.Fatalf("Partition returned error: %v", err)
	}
	if len(second.Duplicate) != 1 || len(second.New) != 0 {
		t.Fatalf("expected h1 duplicate on second sight, got %+v", second)
	}
	if store.probes != 1 {
		t.Fatalf("expected a single store probe, got %d", store.probes)
	}
}

func TestMarkStoredPromotesMarker(t *testing.T) {
	cache := newFakeCache()
	store := newFakeHashStore()
	dedup := New(cache, store, logging.NewNop())
	ctx := context.Background()

	if _, err := dedup.Partition(ctx, []string{"h1"}); err != nil {
		t.Fatalf("Partition returned error: %v", err)
	}
	if cache.markers["h1"] != markerNew {
		t.Fatalf("expected pending marker, got %q", cache.markers["h1"])
	}

	dedup.MarkStored(ctx, []string{"h1"})
	if cache.markers["h1"] != markerExists {
		t.Fatalf("expected terminal marker, got %q", cache.markers["h1"])
	}

	result, err := dedup.Partition(ctx, []string{"h1"})
	if err != nil {
		t.Fatalf("Partition returned error: %v", err)
	}
	if len(result.Duplicate) != 1 {
		t.Fatalf("expected stored hash duplicate, got %+v", result)
	}
}

func TestPartitionSurvivesCacheReadFailure(t *testing.T) {
	cache := newFakeCache()
	cache.getErr = errors.New("connection refused")
	store := newFakeHashStore("stored-hash")
	dedup := New(cache, store, logging.NewNop())

	result, err := dedup.Partition(context.Background(), []string{"fresh-hash", "stored-hash"})
	if err != nil {
		t.Fatalf("Partition returned error despite cache degradation: %v", err)
	}
	if len(result.New) != 1 || len(result.Duplicate) != 1 {
		t.Fatalf("store answers lost under cache failure: %+v", result)
	}
}

func TestPartitionSurvivesCacheWriteFailure(t *testing.T) {
	cache := newFakeCache()
	cache.setErr = errors.New("connection refused")
	store := newFakeHashStore()
	dedup := New(cache, store, logging.NewNop())

	result, err := dedup.Partition(context.Background(), []string{"h1"})
	if err != nil {
		t.Fatalf("Partition returned error despite cache degradation: %v", err)
	}
	if len(result.New) != 1 {
		t.Fatalf("expected new hash despite mark failure, got %+v", result)
	}
}

func TestPartitionPropagatesStoreFailure(t *testing.T) {
	cache := newFakeCache()
	store := newFakeHashStore()
	store.err = errors.New("database locked")
	dedup := New(cache, store, logging.NewNop())

	if _, err := dedup.Partition(context.Background(), []string{"h1"}); err == nil {
		t.Fatal("expected store failure to propagate")
	}
}

func TestPartitionWithoutCache(t *testing.T) {
	store := newFakeHashStore("stored-hash")
	dedup := New(nil, store, logging.NewNop())

	result, err := dedup.Partition(context.Background(), []string{"fresh-hash", "stored-hash"})
	if err != nil {
		t.Fatalf("Partition returned error: %v", err)
	}
	if len(result.New) != 1 || len(result.Duplicate) != 1 {
		t.Fatalf("unexpected partition: %+v", result)
	}
}

func TestPartitionEmptyInput(t *testing.T) {
	dedup := New(newFakeCache(), newFakeHashStore(), logging.NewNop())
	result, err := dedup.Partition(context.Background(), nil)
	if err != nil {
		t.Fatalf("Partition returned error: %v", err)
	}
	if len(result.New) != 0 || len(result.Duplicate) != 0 {
		t.Fatalf("expected empty partition, got %+v", result)
	}
}
