package main

import (
	"context"
	"testing"

	"newswatch/internal/queue"
	"newswatch/internal/store"
)

func TestStatusShowsQueueCountsAndScanLogs(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := runCLI(t, env, "scan", "incremental"); err != nil {
		t.Fatalf("scan incremental: %v", err)
	}

	st := env.openStore(t)
	log, err := st.StartScanLog(context.Background(), "run-status-test", store.ScanFull, nil)
	if err != nil {
		t.Fatalf("StartScanLog: %v", err)
	}
	if err := st.CloseScanLog(context.Background(), log.ID, store.ScanLogClose{
		Status: store.ScanCompleted,
		Found:  4,
	}); err != nil {
		t.Fatalf("CloseScanLog: %v", err)
	}

	out, err := runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, queue.QueueScan)
	requireContains(t, out, "full")
	requireContains(t, out, "completed")
}

func TestStatusWithEmptyDatabase(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "No scan runs recorded yet.")
}
