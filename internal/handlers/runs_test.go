package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"email-automation/internal/database"

	"github.com/go-chi/chi/v5"
)

func newRunsRouter(h *RunHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/runs", h.GetRuns)
	r.Get("/api/runs/stats", h.GetRunStats)
	r.Get("/api/runs/{id}", h.GetRunByID)
	return r
}

func insertTestRun(t *testing.T, db *database.DB, taskID, state string) *database.Run {
	t.Helper()
	now := time.Now()
	run := &database.Run{
		TaskID:        taskID,
		Trigger:       database.TriggerAPI,
		State:         state,
		EmailsScanned: 10,
		EmailsMatched: 4,
		ActionTotals:  map[string]int{"trash": 4},
		StartedAt:     now.Add(-time.Minute),
		FinishedAt:    now,
	}
	if err := db.Runs.Create(run); err != nil {
		t.Fatalf("Failed to insert test run: %v", err)
	}
	return run
}

func TestGetRuns(t *testing.T) {
	db := setupHistoryDB(t)
	defer db.Close()
	router := newRunsRouter(NewRunHandler(db.Runs))

	t.Run("EmptyList", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/runs", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
		if body := w.Body.String(); body != "[]\n" {
			t.Errorf("Expected empty JSON array, got %q", body)
		}
	})

	insertTestRun(t, db, "task_1", "completed")
	insertTestRun(t, db, "task_2", "failed")
	insertTestRun(t, db, "task_3", "completed")

	t.Run("NewestFirst", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/runs", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		var runs []database.Run
		if err := json.NewDecoder(w.Body).Decode(&runs); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if len(runs) != 3 {
			t.Fatalf("Expected 3 runs, got %d", len(runs))
		}
		if runs[0].TaskID != "task_3" {
			t.Errorf("Expected newest run first, got %s", runs[0].TaskID)
		}
	})

	t.Run("Limit", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/runs?limit=2", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		var runs []database.Run
		if err := json.NewDecoder(w.Body).Decode(&runs); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if len(runs) != 2 {
			t.Errorf("Expected 2 runs, got %d", len(runs))
		}
	})

	t.Run("InvalidLimit", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/runs?limit=abc", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})
}

func TestGetRunByID(t *testing.T) {
	db := setupHistoryDB(t)
	defer db.Close()
	router := newRunsRouter(NewRunHandler(db.Runs))

	run := insertTestRun(t, db, "task_abc", "completed")

	t.Run("Found", func(t *testing.T) {
		req := httptest.NewRequest("GET", fmt.Sprintf("/api/runs/%d", run.ID), nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}

		var got database.Run
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if got.TaskID != "task_abc" {
			t.Errorf("Expected task_abc, got %s", got.TaskID)
		}
		if got.ActionTotals["trash"] != 4 {
			t.Errorf("Expected action totals to round-trip, got %+v", got.ActionTotals)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/runs/9999", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})

	t.Run("InvalidID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/runs/abc", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})
}

func TestGetRunStats(t *testing.T) {
	db := setupHistoryDB(t)
	defer db.Close()
	router := newRunsRouter(NewRunHandler(db.Runs))

	insertTestRun(t, db, "task_1", "completed")
	insertTestRun(t, db, "task_2", "completed")
	insertTestRun(t, db, "task_3", "failed")

	req := httptest.NewRequest("GET", "/api/runs/stats", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var stats database.RunStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if stats.TotalRuns != 3 {
		t.Errorf("Expected 3 total runs, got %d", stats.TotalRuns)
	}
	if stats.CompletedRuns != 2 {
		t.Errorf("Expected 2 completed runs, got %d", stats.CompletedRuns)
	}
	if stats.FailedRuns != 1 {
		t.Errorf("Expected 1 failed run, got %d", stats.FailedRuns)
	}
}
