package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"newswatch/internal/queue"
	"newswatch/internal/testsupport"
)

type fetchPayload struct {
	SourceID int64  `json:"source_id"`
	ScanRun  string `json:"scan_run"`
}

func newQueueStore(t *testing.T, opts queue.Options) *queue.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	return queue.NewStore(st, opts)
}

func TestEnqueueAndClaim(t *testing.T) {
	qs := newQueueStore(t, queue.Options{})
	ctx := context.Background()

	job, err := qs.Enqueue(ctx, queue.QueueFetch, fetchPayload{SourceID: 7, ScanRun: "run-1"})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if job.Status != queue.StatusPending {
		t.Fatalf("expected pending status, got %s", job.Status)
	}
	if job.Attempts != 0 {
		t.Fatalf("expected zero attempts before claim, got %d", job.Attempts)
	}

	claimed, err := qs.Claim(ctx, queue.QueueFetch)
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a claimable job")
	}
	if claimed.ID != job.ID {
		t.Fatalf("claimed job %d, expected %d", claimed.ID, job.ID)
	}
	if claimed.Status != queue.StatusRunning {
		t.Fatalf("expected running status, got %s", claimed.Status)
	}
	if claimed.Attempts != 1 {
		t.Fatalf("expected one attempt after claim, got %d", claimed.Attempts)
	}
	if claimed.LeaseExpiresAt == nil {
		t.Fatal("expected lease on claimed job")
	}

	var payload fetchPayload
	if err := claimed.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload returned error: %v", err)
	}
	if payload.SourceID != 7 || payload.ScanRun != "run-1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	next, err := qs.Claim(ctx, queue.QueueFetch)
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if next != nil {
		t.Fatalf("expected empty queue, claimed job %d", next.ID)
	}
}

func TestClaimOrderPriorityThenAge(t *testing.T) {
	qs := newQueueStore(t, queue.Options{})
	ctx := context.Background()

	low, err := qs.Enqueue(ctx, queue.QueueFetch, fetchPayload{SourceID: 1})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	high, err := qs.Enqueue(ctx, queue.QueueFetch, fetchPayload{SourceID: 2}, queue.WithPriority(10))
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	alsoHigh, err := qs.Enqueue(ctx, queue.QueueFetch, fetchPayload{SourceID: 3}, queue.WithPriority(10))
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	order := make([]int64, 0, 3)
	for i := 0; i < 3; i++ {
		job, err := qs.Claim(ctx, queue.QueueFetch)
		if err != nil {
			t.Fatalf("Claim returned error: %v", err)
		}
		if job == nil {
			t.Fatalf("expected job on claim %d", i)
		}
		order = append(order, job.ID)
	}

	want := []int64{high.ID, alsoHigh.ID, low.ID}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("claim order %v, expected %v", order, want)
		}
	}
}

func TestDuplicateJobKeySuppressed(t *testing.T) {
	qs := newQueueStore(t, queue.Options{})
	ctx := context.Background()

	first, err := qs.Enqueue(ctx, queue.QueueDigest, map[string]string{"date": "2026-09-01"},
		queue.WithJobKey("digest:2026-09-01"))
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	if _, err := qs.Enqueue(ctx, queue.QueueDigest, map[string]string{"date": "2026-09-01"},
		queue.WithJobKey("digest:2026-09-01")); !errors.Is(err, queue.ErrDuplicateJob) {
		t.Fatalf("expected ErrDuplicateJob, got %v", err)
	}

	// The same key on a different queue is unrelated work.
	if _, err := qs.Enqueue(ctx, queue.QueueScan, map[string]string{"date": "2026-09-01"},
		queue.WithJobKey("digest:2026-09-01")); err != nil {
		t.Fatalf("Enqueue on other queue returned error: %v", err)
	}

	// Once the keyed job finishes, the key is reusable.
	claimed, err := qs.Claim(ctx, queue.QueueDigest)
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected to claim job %d", first.ID)
	}
	if err := qs.Complete(ctx, claimed); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if _, err := qs.Enqueue(ctx, queue.QueueDigest, map[string]string{"date": "2026-09-01"},
		queue.WithJobKey("digest:2026-09-01")); err != nil {
		t.Fatalf("Enqueue after completion returned error: %v", err)
	}
}

func TestDelayedJobNotClaimableEarly(t *testing.T) {
	qs := newQueueStore(t, queue.Options{})
	ctx := context.Background()

	if _, err := qs.Enqueue(ctx, queue.QueueFetch, fetchPayload{SourceID: 1},
		queue.WithDelay(time.Hour)); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	job, err := qs.Claim(ctx, queue.QueueFetch)
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if job != nil {
		t.Fatalf("claimed delayed job %d before its run time", job.ID)
	}
}

func TestFailRetriesThenExhausts(t *testing.T) {
	qs := newQueueStore(t, queue.Options{BackoffBase: time.Millisecond})
	ctx := context.Background()

	if _, err := qs.Enqueue(ctx, queue.QueueClassify, fetchPayload{SourceID: 1},
		queue.WithMaxAttempts(2)); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	job, err := qs.Claim(ctx, queue.QueueClassify)
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if err := qs.Fail(ctx, job, errors.New("provider unavailable")); err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}

	requeued, err := qs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if requeued.Status != queue.StatusPending {
		t.Fatalf("expected pending after first failure, got %s", requeued.Status)
	}
	if requeued.LastError != "provider unavailable" {
		t.Fatalf("unexpected last error %q", requeued.LastError)
	}

	time.Sleep(10 * time.Millisecond)
	job, err = qs.Claim(ctx, queue.QueueClassify)
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if job == nil {
		t.Fatal("expected job claimable after backoff")
	}
	if job.Attempts != 2 {
		t.Fatalf("expected second attempt, got %d", job.Attempts)
	}
	if err := qs.Fail(ctx, job, errors.New("provider unavailable")); err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}

	exhausted, err := qs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if exhausted.Status != queue.StatusFailed {
		t.Fatalf("expected failed after exhausting attempts, got %s", exhausted.Status)
	}
}

func TestReclaimExpiredLeases(t *testing.T) {
	qs := newQueueStore(t, queue.Options{LeaseDuration: time.Millisecond})
	ctx := context.Background()

	job, err := qs.Enqueue(ctx, queue.QueueFetch, fetchPayload{SourceID: 1})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if _, err := qs.Claim(ctx, queue.QueueFetch); err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	reclaimed, err := qs.ReclaimExpired(ctx, queue.QueueFetch)
	if err != nil {
		t.Fatalf("ReclaimExpired returned error: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected one reclaimed job, got %d", reclaimed)
	}

	again, err := qs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if again.Status != queue.StatusPending {
		t.Fatalf("expected pending after reclaim, got %s", again.Status)
	}
	if again.LeaseExpiresAt != nil {
		t.Fatal("expected cleared lease after reclaim")
	}
}

func TestCountsByQueue(t *testing.T) {
	qs := newQueueStore(t, queue.Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := qs.Enqueue(ctx, queue.QueueFetch, fetchPayload{SourceID: int64(i)}); err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
	}
	job, err := qs.Claim(ctx, queue.QueueFetch)
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if err := qs.Complete(ctx, job); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if _, err := qs.Claim(ctx, queue.QueueFetch); err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}

	counts, err := qs.CountsByQueue(ctx)
	if err != nil {
		t.Fatalf("CountsByQueue returned error: %v", err)
	}
	fetch := counts[queue.QueueFetch]
	if fetch.Pending != 1 || fetch.Running != 1 || fetch.Completed != 1 || fetch.Failed != 0 {
		t.Fatalf("unexpected counts: %+v", fetch)
	}
	if fetch.Total() != 3 {
		t.Fatalf("expected total 3, got %d", fetch.Total())
	}
}

func TestPruneCompleted(t *testing.T) {
	qs := newQueueStore(t, queue.Options{})
	ctx := context.Background()

	job, err := qs.Enqueue(ctx, queue.QueueFetch, fetchPayload{SourceID: 1})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	claimed, err := qs.Claim(ctx, queue.QueueFetch)
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if err := qs.Complete(ctx, claimed); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}

	pruned, err := qs.PruneCompleted(ctx, 0)
	if err != nil {
		t.Fatalf("PruneCompleted returned error: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected one pruned job, got %d", pruned)
	}
	if _, err := qs.GetByID(ctx, job.ID); err == nil {
		t.Fatal("expected pruned job to be gone")
	}
}
