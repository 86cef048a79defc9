package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"email-automation/internal/config"
	"email-automation/internal/database"
	"email-automation/internal/jobs"
	"email-automation/internal/pipeline"
)

// SweepMetrics is a snapshot of the sweeper's cumulative counters.
type SweepMetrics struct {
	Cycles        int64 `json:"cycles"`
	EmailsScanned int64 `json:"emails_scanned"`
	EmailsMatched int64 `json:"emails_matched"`
	ActionsTaken  int64 `json:"actions_taken"`
	Errors        int64 `json:"errors"`
}

// Sweeper periodically submits a full enabled-rule run through the runner.
// Each cycle is one managed job; its summary feeds the cumulative metrics.
type Sweeper struct {
	ctx    context.Context
	cancel context.CancelFunc
	runner *Runner
	cfg    config.SweepConfig
	paused atomic.Bool
	logger *slog.Logger

	cycles  atomic.Int64
	scanned atomic.Int64
	matched atomic.Int64
	actions atomic.Int64
	errors  atomic.Int64
}

// NewSweeper creates a new sweep scheduler.
func NewSweeper(runner *Runner, cfg config.SweepConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		ctx:    ctx,
		cancel: cancel,
		runner: runner,
		cfg:    cfg,
		logger: logger,
	}
}

// Start begins the background sweep loop.
func (s *Sweeper) Start() {
	s.logger.Info("Starting automation sweeper",
		"interval", s.cfg.SweepInterval,
		"initial_delay", s.cfg.InitialDelay,
		"dry_run", s.cfg.DryRun)

	go s.sweepLoop()
}

// Stop gracefully stops the sweep loop. An in-flight cycle observes the
// cancelled context and winds down through the job manager.
func (s *Sweeper) Stop() {
	s.logger.Info("Stopping automation sweeper")
	s.cancel()
}

// Pause temporarily skips sweep cycles without stopping the loop.
func (s *Sweeper) Pause() {
	s.paused.Store(true)
	s.logger.Info("Automation sweeper paused")
}

// Resume re-enables sweep cycles.
func (s *Sweeper) Resume() {
	s.paused.Store(false)
	s.logger.Info("Automation sweeper resumed")
}

// IsPaused returns true if the sweeper is currently paused.
func (s *Sweeper) IsPaused() bool {
	return s.paused.Load()
}

// IsRunning returns true until Stop is called.
func (s *Sweeper) IsRunning() bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
		return true
	}
}

// Metrics returns the cumulative counters across all cycles so far.
func (s *Sweeper) Metrics() SweepMetrics {
	return SweepMetrics{
		Cycles:        s.cycles.Load(),
		EmailsScanned: s.scanned.Load(),
		EmailsMatched: s.matched.Load(),
		ActionsTaken:  s.actions.Load(),
		Errors:        s.errors.Load(),
	}
}

// sweepLoop is the main background loop that schedules sweep cycles.
func (s *Sweeper) sweepLoop() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	// Perform the first sweep after a short delay
	initialDelay := time.NewTimer(s.cfg.InitialDelay)
	defer initialDelay.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Automation sweeper stopped", "cycles", s.cycles.Load())
			return

		case <-initialDelay.C:
			s.sweep()

		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep runs one full enabled-rule cycle and waits for it to finish.
func (s *Sweeper) sweep() {
	if s.paused.Load() {
		s.logger.Debug("Sweeper paused, skipping cycle")
		return
	}

	startTime := time.Now()
	s.logger.Info("Starting sweep cycle", "dry_run", s.cfg.DryRun)

	taskID := s.runner.Submit(database.TriggerAutopilot, pipeline.RunOptions{
		DryRun: s.cfg.DryRun,
	})

	snap, err := s.runner.Wait(s.ctx, taskID, 0)
	if err != nil {
		s.logger.Warn("Sweep cycle abandoned", "task_id", taskID, "error", err)
		return
	}

	s.cycles.Add(1)
	s.accumulate(snap)

	s.logger.Info("Completed sweep cycle",
		"task_id", taskID,
		"state", snap.State,
		"duration", time.Since(startTime))
}

// accumulate folds one finished cycle's summary into the counters.
func (s *Sweeper) accumulate(snap *jobs.Snapshot) {
	if snap.State != jobs.StateCompleted {
		s.errors.Add(1)
		return
	}

	summary, ok := snap.Result.(*pipeline.RunSummary)
	if !ok {
		return
	}

	s.scanned.Add(int64(summary.TotalEmailsScanned))
	s.matched.Add(int64(summary.EmailsMatchingAnyRule))
	for _, result := range summary.Actions {
		s.actions.Add(int64(result.Count))
	}
	s.errors.Add(int64(len(summary.Errors)))
}
