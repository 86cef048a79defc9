package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"email-automation/internal/database"
	"email-automation/internal/jobs"
	"email-automation/internal/pipeline"
)

// Runner submits executor runs as managed background jobs and records every
// finished run in the history store, regardless of outcome.
type Runner struct {
	manager  *jobs.Manager
	executor *pipeline.Executor
	history  *database.RunStore
	keepRuns int
	logger   *slog.Logger
}

// NewRunner wires a runner. history may be nil when run persistence is
// disabled; keepRuns bounds how much history is retained after each run.
func NewRunner(manager *jobs.Manager, executor *pipeline.Executor, history *database.RunStore, keepRuns int, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		manager:  manager,
		executor: executor,
		history:  history,
		keepRuns: keepRuns,
		logger:   logger,
	}
}

// Submit queues an automation run and returns its task id immediately.
func (r *Runner) Submit(trigger string, opts pipeline.RunOptions) string {
	// The task body needs its own id for the history row, but the id is
	// only assigned at submission: hand it over through a buffered channel
	// so the goroutine never races the assignment.
	idReady := make(chan string, 1)

	taskID := r.manager.Submit(runName(opts), func(ctx context.Context, report jobs.ProgressFunc) (any, error) {
		id := <-idReady
		started := time.Now()

		summary, err := r.executor.Run(ctx, opts, pipeline.ProgressFn(report))
		r.record(id, trigger, summary, err, started, time.Now())

		if err != nil {
			return nil, err
		}
		return summary, nil
	})

	idReady <- taskID
	return taskID
}

// Wait polls the job until it reaches a terminal state or ctx expires. The
// last observed snapshot is returned alongside the context error when the
// wait is abandoned.
func (r *Runner) Wait(ctx context.Context, taskID string, poll time.Duration) (*jobs.Snapshot, error) {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		snap := r.manager.Status(taskID)
		if snap == nil {
			return nil, fmt.Errorf("task %s is not tracked", taskID)
		}
		if snap.State.Terminal() {
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}

// record persists one finished run. Failures to record never affect the run
// itself.
func (r *Runner) record(taskID, trigger string, summary *pipeline.RunSummary, runErr error, started, finished time.Time) {
	if r.history == nil {
		return
	}

	state := jobs.StateCompleted
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		state = jobs.StateCancelled
	default:
		state = jobs.StateFailed
	}

	run := &database.Run{
		TaskID:     taskID,
		Trigger:    trigger,
		State:      string(state),
		StartedAt:  started,
		FinishedAt: finished,
	}
	if summary != nil {
		run.DryRun = summary.DryRun
		run.EmailsScanned = summary.TotalEmailsScanned
		run.EmailsMatched = summary.EmailsMatchingAnyRule
		run.RulesApplied = summary.RulesApplied
		run.ActionTotals = make(map[string]int, len(summary.Actions))
		for key, result := range summary.Actions {
			run.ActionTotals[key] = result.Count
		}
		run.ErrorCount = len(summary.Errors)
		run.Message = summary.Message
		if len(summary.Errors) > 0 {
			if encoded, err := json.Marshal(summary.Errors); err == nil {
				run.Errors = encoded
			}
		}
	}
	if runErr != nil && run.Message == "" {
		run.Message = runErr.Error()
	}

	if err := r.history.Create(run); err != nil {
		r.logger.Error("Failed to record run", "task_id", taskID, "error", err)
		return
	}

	if r.keepRuns > 0 {
		if pruned, err := r.history.Prune(r.keepRuns); err != nil {
			r.logger.Warn("Failed to prune run history", "error", err)
		} else if pruned > 0 {
			r.logger.Debug("Pruned run history", "removed", pruned)
		}
	}
}

func runName(opts pipeline.RunOptions) string {
	if opts.DryRun {
		return "automation run (dry-run)"
	}
	return "automation run"
}
