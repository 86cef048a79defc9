package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Trigger sources recorded with each run.
const (
	TriggerAPI       = "api"
	TriggerCLI       = "cli"
	TriggerAutopilot = "autopilot"
)

// Run is one persisted rule-run record: what was scanned, what matched,
// which actions were taken, and how it ended.
type Run struct {
	ID            int64          `json:"id"`
	TaskID        string         `json:"task_id"`
	Trigger       string         `json:"trigger"`
	State         string         `json:"state"`
	DryRun        bool           `json:"dry_run"`
	EmailsScanned int            `json:"emails_scanned"`
	EmailsMatched int            `json:"emails_matched"`
	RulesApplied  map[string]int `json:"rules_applied"`
	// ActionTotals maps action keys (for example "add_label:News") to the
	// number of emails the action covered.
	ActionTotals map[string]int `json:"action_totals"`
	ErrorCount   int            `json:"error_count"`
	// Errors holds the run's serialized error list verbatim.
	Errors     json.RawMessage `json:"errors,omitempty"`
	Message    string          `json:"message,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

// RunStats summarizes the stored history.
type RunStats struct {
	TotalRuns     int        `json:"total_runs"`
	CompletedRuns int        `json:"completed_runs"`
	FailedRuns    int        `json:"failed_runs"`
	CancelledRuns int        `json:"cancelled_runs"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
}

// RunStore handles database operations for run history
type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Create persists a run and its per-action totals in one transaction and
// fills in the generated id.
func (s *RunStore) Create(run *Run) error {
	rulesJSON, err := json.Marshal(orEmptyMap(run.RulesApplied))
	if err != nil {
		return fmt.Errorf("failed to encode rule counts: %w", err)
	}
	errorsJSON := run.Errors
	if len(errorsJSON) == 0 {
		errorsJSON = json.RawMessage("[]")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO runs (task_id, trigger_source, state, dry_run,
			  emails_scanned, emails_matched, rules_applied_json,
			  error_count, errors_json, message, started_at, finished_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := tx.Exec(query, run.TaskID, run.Trigger, run.State, run.DryRun,
		run.EmailsScanned, run.EmailsMatched, string(rulesJSON),
		run.ErrorCount, string(errorsJSON), run.Message,
		run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	run.ID = id

	for key, count := range run.ActionTotals {
		if _, err := tx.Exec(
			"INSERT INTO run_action_totals (run_id, action_key, email_count) VALUES (?, ?, ?)",
			id, key, count,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByID returns a run by ID
func (s *RunStore) GetByID(id int64) (*Run, error) {
	query := `SELECT id, task_id, trigger_source, state, dry_run,
			  emails_scanned, emails_matched, rules_applied_json,
			  error_count, errors_json, message, started_at, finished_at, created_at
			  FROM runs WHERE id = ?`

	run, err := scanRun(s.db.QueryRow(query, id))
	if err != nil {
		return nil, err
	}

	if err := s.loadActionTotals(run); err != nil {
		return nil, err
	}
	return run, nil
}

// GetByTaskID returns the run persisted for a task id
func (s *RunStore) GetByTaskID(taskID string) (*Run, error) {
	query := `SELECT id, task_id, trigger_source, state, dry_run,
			  emails_scanned, emails_matched, rules_applied_json,
			  error_count, errors_json, message, started_at, finished_at, created_at
			  FROM runs WHERE task_id = ? ORDER BY id DESC LIMIT 1`

	run, err := scanRun(s.db.QueryRow(query, taskID))
	if err != nil {
		return nil, err
	}

	if err := s.loadActionTotals(run); err != nil {
		return nil, err
	}
	return run, nil
}

// List returns the newest runs first, capped at limit. A non-positive limit
// returns everything.
func (s *RunStore) List(limit int) ([]Run, error) {
	query := `SELECT id, task_id, trigger_source, state, dry_run,
			  emails_scanned, emails_matched, rules_applied_json,
			  error_count, errors_json, message, started_at, finished_at, created_at
			  FROM runs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		if err := s.loadActionTotals(&runs[i]); err != nil {
			return nil, err
		}
	}

	return runs, nil
}

// Prune deletes the oldest runs beyond keep and returns how many were
// removed. Action totals are deleted in the same transaction; the foreign
// key pragma is per-connection in SQLite, so cascades alone are not enough.
func (s *RunStore) Prune(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM run_action_totals WHERE run_id NOT IN (
			SELECT id FROM runs ORDER BY id DESC LIMIT ?
		)`, keep); err != nil {
		return 0, err
	}

	result, err := tx.Exec(`
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, err
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(deleted), tx.Commit()
}

// GetStats returns history statistics
func (s *RunStore) GetStats() (*RunStats, error) {
	stats := &RunStats{}

	query := `SELECT
			  COUNT(*),
			  COALESCE(SUM(CASE WHEN state = 'completed' THEN 1 ELSE 0 END), 0),
			  COALESCE(SUM(CASE WHEN state = 'failed' THEN 1 ELSE 0 END), 0),
			  COALESCE(SUM(CASE WHEN state = 'cancelled' THEN 1 ELSE 0 END), 0),
			  MAX(finished_at)
			  FROM runs`

	var lastRun sql.NullTime
	err := s.db.QueryRow(query).Scan(&stats.TotalRuns, &stats.CompletedRuns,
		&stats.FailedRuns, &stats.CancelledRuns, &lastRun)
	if err != nil {
		return nil, err
	}
	if lastRun.Valid {
		stats.LastRunAt = &lastRun.Time
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var rulesJSON, errorsJSON string

	err := row.Scan(&run.ID, &run.TaskID, &run.Trigger, &run.State, &run.DryRun,
		&run.EmailsScanned, &run.EmailsMatched, &rulesJSON,
		&run.ErrorCount, &errorsJSON, &run.Message,
		&run.StartedAt, &run.FinishedAt, &run.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(rulesJSON), &run.RulesApplied); err != nil {
		return nil, fmt.Errorf("failed to decode rule counts for run %d: %w", run.ID, err)
	}
	run.Errors = json.RawMessage(errorsJSON)

	return &run, nil
}

func (s *RunStore) loadActionTotals(run *Run) error {
	rows, err := s.db.Query(
		"SELECT action_key, email_count FROM run_action_totals WHERE run_id = ?",
		run.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	run.ActionTotals = make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		run.ActionTotals[key] = count
	}
	return rows.Err()
}

func orEmptyMap(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}
