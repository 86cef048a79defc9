package progress

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Operation states.
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

// DefaultSnapshotInterval throttles how often snapshots are recorded;
// DefaultMaxSnapshots bounds the per-operation history ring.
const (
	DefaultSnapshotInterval = time.Second
	DefaultMaxSnapshots     = 1000
)

// Step is one weighted phase of an operation. Weights are relative: a step
// with weight 2 counts twice as much toward the overall percentage as a step
// with weight 1.
type Step struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Snapshot is a point-in-time view of an operation, safe to retain after the
// operation finishes.
type Snapshot struct {
	OperationID    string    `json:"operation_id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	State          string    `json:"state"`
	StepIndex      int       `json:"step_index"`
	StepName       string    `json:"step_name"`
	StepPercent    float64   `json:"step_percent"`
	OverallPercent float64   `json:"overall_percent"`
	ItemsProcessed int       `json:"items_processed"`
	TotalItems     int       `json:"total_items"`
	Message        string    `json:"message,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Callback receives a snapshot after every update. Callbacks run inline on
// the updating goroutine and must not block.
type Callback func(Snapshot)

// Tracker manages progress-tracked operations and global callbacks.
type Tracker struct {
	mu               sync.RWMutex
	operations       map[string]*Operation
	callbacks        []Callback
	snapshotInterval time.Duration
	maxSnapshots     int
	logger           *slog.Logger
}

// NewTracker creates a tracker. Non-positive interval or ring size fall back
// to the defaults.
func NewTracker(snapshotInterval time.Duration, maxSnapshots int, logger *slog.Logger) *Tracker {
	if snapshotInterval <= 0 {
		snapshotInterval = DefaultSnapshotInterval
	}
	if maxSnapshots <= 0 {
		maxSnapshots = DefaultMaxSnapshots
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		operations:       make(map[string]*Operation),
		snapshotInterval: snapshotInterval,
		maxSnapshots:     maxSnapshots,
		logger:           logger,
	}
}

// OnUpdate registers a callback fired for every update of every operation.
func (t *Tracker) OnUpdate(cb Callback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}

// StartOperation registers a new running operation. Steps without a positive
// weight are normalized to weight 1 so a lazy caller still gets sensible
// percentages.
func (t *Tracker) StartOperation(name, opType string, totalItems int, steps []Step) *Operation {
	if len(steps) == 0 {
		steps = []Step{{Name: "work", Weight: 1}}
	}
	normalized := make([]Step, len(steps))
	copy(normalized, steps)
	for i := range normalized {
		if normalized[i].Weight <= 0 {
			normalized[i].Weight = 1
		}
	}

	op := &Operation{
		id:         "op_" + strings.Split(uuid.New().String(), "-")[0],
		name:       name,
		opType:     opType,
		state:      StateRunning,
		totalItems: totalItems,
		steps:      normalized,
		startedAt:  time.Now(),
		tracker:    t,
	}

	t.mu.Lock()
	t.operations[op.id] = op
	t.mu.Unlock()

	t.logger.Debug("operation started", "id", op.id, "name", name, "steps", len(normalized))
	return op
}

// Get returns a registered operation by id.
func (t *Tracker) Get(id string) (*Operation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	op, ok := t.operations[id]
	return op, ok
}

// Remove forgets an operation and its snapshot history.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.operations, id)
}

func (t *Tracker) globalCallbacks() []Callback {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.callbacks
}

// Operation is a progress-tracked unit of work with weighted steps. All
// methods are safe for concurrent use, though updates normally come from the
// single goroutine doing the work.
type Operation struct {
	mu             sync.Mutex
	id             string
	name           string
	opType         string
	state          string
	totalItems     int
	itemsProcessed int
	steps          []Step
	currentStep    int
	stepPercent    float64
	message        string
	startedAt      time.Time
	lastSnapshot   time.Time
	snapshots      []Snapshot
	callbacks      []Callback
	tracker        *Tracker
}

// ID returns the operation identifier.
func (o *Operation) ID() string { return o.id }

// OnUpdate registers a callback fired for every update of this operation.
func (o *Operation) OnUpdate(cb Callback) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.callbacks = append(o.callbacks, cb)
}

// UpdateStep sets the completion percentage of the current step. The message
// is kept when empty.
func (o *Operation) UpdateStep(percent float64, message string) {
	o.mu.Lock()
	if o.terminalLocked() {
		o.mu.Unlock()
		return
	}
	o.stepPercent = clampPercent(percent)
	if message != "" {
		o.message = message
	}
	snap := o.snapshotLocked(false)
	cbs := o.fanoutLocked()
	o.mu.Unlock()

	fire(cbs, snap)
}

// AddItems increments the processed-items counter without touching step
// percentages.
func (o *Operation) AddItems(n int) {
	o.mu.Lock()
	if o.terminalLocked() {
		o.mu.Unlock()
		return
	}
	o.itemsProcessed += n
	snap := o.snapshotLocked(false)
	cbs := o.fanoutLocked()
	o.mu.Unlock()

	fire(cbs, snap)
}

// AdvanceStep completes the current step and moves to the next one. Advancing
// past the last step leaves the operation at 100% of its final step; callers
// still finish it with Complete.
func (o *Operation) AdvanceStep(message string) {
	o.mu.Lock()
	if o.terminalLocked() {
		o.mu.Unlock()
		return
	}
	if o.currentStep < len(o.steps)-1 {
		o.currentStep++
		o.stepPercent = 0
	} else {
		o.stepPercent = 100
	}
	if message != "" {
		o.message = message
	}
	snap := o.snapshotLocked(true)
	cbs := o.fanoutLocked()
	o.mu.Unlock()

	fire(cbs, snap)
}

// Complete marks the operation finished and fires a final callback.
func (o *Operation) Complete(message string) {
	o.finish(StateCompleted, message)
}

// Fail marks the operation failed and fires a final callback.
func (o *Operation) Fail(message string) {
	o.finish(StateFailed, message)
}

// Cancel transitions the operation to cancelled. The transition is
// irreversible and idempotent.
func (o *Operation) Cancel(message string) {
	o.finish(StateCancelled, message)
}

func (o *Operation) finish(state, message string) {
	o.mu.Lock()
	if o.terminalLocked() {
		o.mu.Unlock()
		return
	}
	o.state = state
	if state == StateCompleted {
		o.currentStep = len(o.steps) - 1
		o.stepPercent = 100
	}
	if message != "" {
		o.message = message
	}
	snap := o.snapshotLocked(true)
	cbs := o.fanoutLocked()
	o.mu.Unlock()

	fire(cbs, snap)
}

// Snapshot returns the operation's current state.
func (o *Operation) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buildSnapshotLocked()
}

// History returns the recorded snapshot ring, oldest first.
func (o *Operation) History() []Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	history := make([]Snapshot, len(o.snapshots))
	copy(history, o.snapshots)
	return history
}

// State returns the current state string.
func (o *Operation) State() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Operation) terminalLocked() bool {
	return o.state != StateRunning
}

// snapshotLocked builds the current snapshot and appends it to the ring,
// rate-limited by the tracker's snapshot interval. Transitions (step
// advances, terminal states) always record.
func (o *Operation) snapshotLocked(transition bool) Snapshot {
	snap := o.buildSnapshotLocked()

	interval := DefaultSnapshotInterval
	maxSnapshots := DefaultMaxSnapshots
	if o.tracker != nil {
		interval = o.tracker.snapshotInterval
		maxSnapshots = o.tracker.maxSnapshots
	}

	if transition || o.lastSnapshot.IsZero() || snap.Timestamp.Sub(o.lastSnapshot) >= interval {
		o.snapshots = append(o.snapshots, snap)
		if len(o.snapshots) > maxSnapshots {
			o.snapshots = o.snapshots[len(o.snapshots)-maxSnapshots:]
		}
		o.lastSnapshot = snap.Timestamp
	}
	return snap
}

func (o *Operation) buildSnapshotLocked() Snapshot {
	return Snapshot{
		OperationID:    o.id,
		Name:           o.name,
		Type:           o.opType,
		State:          o.state,
		StepIndex:      o.currentStep,
		StepName:       o.steps[o.currentStep].Name,
		StepPercent:    o.stepPercent,
		OverallPercent: o.overallPercentLocked(),
		ItemsProcessed: o.itemsProcessed,
		TotalItems:     o.totalItems,
		Message:        o.message,
		Timestamp:      time.Now(),
	}
}

// overallPercentLocked is the weighted overall completion: the full weight of
// every finished step plus the pro-rated weight of the current one, over the
// total weight.
func (o *Operation) overallPercentLocked() float64 {
	var total, done float64
	for i, step := range o.steps {
		total += step.Weight
		if i < o.currentStep {
			done += step.Weight
		}
	}
	done += o.steps[o.currentStep].Weight * o.stepPercent / 100

	if total == 0 {
		return 0
	}
	return clampPercent(done / total * 100)
}

func (o *Operation) fanoutLocked() []Callback {
	cbs := make([]Callback, 0, len(o.callbacks)+4)
	cbs = append(cbs, o.callbacks...)
	if o.tracker != nil {
		cbs = append(cbs, o.tracker.globalCallbacks()...)
	}
	return cbs
}

func fire(cbs []Callback, snap Snapshot) {
	for _, cb := range cbs {
		cb(snap)
	}
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
