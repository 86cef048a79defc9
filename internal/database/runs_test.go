package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *DB {
	tmpfile, err := os.CreateTemp("", "test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpfile.Close()

	t.Cleanup(func() {
		os.Remove(tmpfile.Name())
	})

	db, err := Open(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func sampleRun(taskID, state string) *Run {
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &Run{
		TaskID:        taskID,
		Trigger:       TriggerAPI,
		State:         state,
		EmailsScanned: 120,
		EmailsMatched: 80,
		RulesApplied:  map[string]int{"rule-1": 50, "rule-2": 30},
		ActionTotals:  map[string]int{"trash": 50, "add_label:News": 30},
		ErrorCount:    1,
		Errors:        json.RawMessage(`[{"rule_id":"rule-2","error_type":"not_found"}]`),
		StartedAt:     started,
		FinishedAt:    started.Add(40 * time.Second),
	}
}

func TestRunStore_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)

	run := sampleRun("task_abc123", "completed")
	if err := db.Runs.Create(run); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if run.ID == 0 {
		t.Fatal("Create should fill in the generated id")
	}

	got, err := db.Runs.GetByID(run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	if got.TaskID != "task_abc123" || got.State != "completed" || got.Trigger != TriggerAPI {
		t.Errorf("run = %+v", got)
	}
	if got.EmailsScanned != 120 || got.EmailsMatched != 80 {
		t.Errorf("counts = %d/%d", got.EmailsScanned, got.EmailsMatched)
	}
	if got.RulesApplied["rule-1"] != 50 || got.RulesApplied["rule-2"] != 30 {
		t.Errorf("rules applied = %v", got.RulesApplied)
	}
	if got.ActionTotals["trash"] != 50 || got.ActionTotals["add_label:News"] != 30 {
		t.Errorf("action totals = %v", got.ActionTotals)
	}

	var entries []map[string]any
	if err := json.Unmarshal(got.Errors, &entries); err != nil {
		t.Fatalf("errors column: %v", err)
	}
	if len(entries) != 1 || entries[0]["error_type"] != "not_found" {
		t.Errorf("errors = %v", entries)
	}
	if !got.StartedAt.Equal(run.StartedAt) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, run.StartedAt)
	}
}

func TestRunStore_GetByTaskID(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Runs.Create(sampleRun("task_one", "completed")); err != nil {
		t.Fatal(err)
	}
	if err := db.Runs.Create(sampleRun("task_two", "failed")); err != nil {
		t.Fatal(err)
	}

	got, err := db.Runs.GetByTaskID("task_two")
	if err != nil {
		t.Fatalf("GetByTaskID: %v", err)
	}
	if got.State != "failed" {
		t.Errorf("state = %s", got.State)
	}
}

func TestRunStore_GetMissing(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.Runs.GetByID(999); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetByID error = %v, want sql.ErrNoRows", err)
	}
	if _, err := db.Runs.GetByTaskID("task_missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetByTaskID error = %v, want sql.ErrNoRows", err)
	}
}

func TestRunStore_ListNewestFirst(t *testing.T) {
	db := setupTestDB(t)

	for _, id := range []string{"task_a", "task_b", "task_c"} {
		if err := db.Runs.Create(sampleRun(id, "completed")); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := db.Runs.List(2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len = %d", len(runs))
	}
	if runs[0].TaskID != "task_c" || runs[1].TaskID != "task_b" {
		t.Errorf("order = %s, %s", runs[0].TaskID, runs[1].TaskID)
	}
	if runs[0].ActionTotals["trash"] != 50 {
		t.Errorf("listed runs should carry action totals: %v", runs[0].ActionTotals)
	}

	all, err := db.Runs.List(0)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len = %d, want 3", len(all))
	}
}

func TestRunStore_Prune(t *testing.T) {
	db := setupTestDB(t)

	for i := 0; i < 5; i++ {
		if err := db.Runs.Create(sampleRun("task_prune", "completed")); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := db.Runs.Prune(2)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}

	runs, err := db.Runs.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("remaining = %d", len(runs))
	}

	// Pruned runs take their action totals with them.
	var orphans int
	err = db.QueryRow(`
		SELECT COUNT(*) FROM run_action_totals
		WHERE run_id NOT IN (SELECT id FROM runs)`).Scan(&orphans)
	if err != nil {
		t.Fatal(err)
	}
	if orphans != 0 {
		t.Errorf("orphaned action totals = %d", orphans)
	}
}

func TestRunStore_GetStats(t *testing.T) {
	db := setupTestDB(t)

	stats, err := db.Runs.GetStats()
	if err != nil {
		t.Fatalf("GetStats empty: %v", err)
	}
	if stats.TotalRuns != 0 || stats.LastRunAt != nil {
		t.Errorf("empty stats = %+v", stats)
	}

	if err := db.Runs.Create(sampleRun("task_a", "completed")); err != nil {
		t.Fatal(err)
	}
	if err := db.Runs.Create(sampleRun("task_b", "failed")); err != nil {
		t.Fatal(err)
	}
	if err := db.Runs.Create(sampleRun("task_c", "cancelled")); err != nil {
		t.Fatal(err)
	}

	stats, err = db.Runs.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalRuns != 3 || stats.CompletedRuns != 1 || stats.FailedRuns != 1 || stats.CancelledRuns != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.LastRunAt == nil {
		t.Error("LastRunAt should be set")
	}
}

func TestRunStore_EmptyCollections(t *testing.T) {
	db := setupTestDB(t)

	run := &Run{
		TaskID:     "task_bare",
		Trigger:    TriggerAutopilot,
		State:      "completed",
		StartedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
	}
	if err := db.Runs.Create(run); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := db.Runs.GetByID(run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.RulesApplied) != 0 {
		t.Errorf("rules applied = %v", got.RulesApplied)
	}
	if len(got.ActionTotals) != 0 {
		t.Errorf("action totals = %v", got.ActionTotals)
	}
	if string(got.Errors) != "[]" {
		t.Errorf("errors = %s", got.Errors)
	}
}

func TestIsHealthy(t *testing.T) {
	db := setupTestDB(t)
	if err := db.IsHealthy(); err != nil {
		t.Errorf("IsHealthy: %v", err)
	}
}
