package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task states. Transitions are monotonic: pending, running, then exactly one
// terminal state that never changes afterwards.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether s is an end state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// DefaultMaxCompleted bounds how many finished tasks are retained for
// Status/Result lookups before the oldest are evicted.
const DefaultMaxCompleted = 1000

var (
	// ErrNotFound means no task with that id is known (it may have been
	// evicted from the completed ring).
	ErrNotFound = errors.New("task not found")

	// ErrNotCompleted means Result was called before the task finished
	// successfully.
	ErrNotCompleted = errors.New("task has not completed")
)

// ProgressFunc lets a running task report 0-100 progress with a message.
type ProgressFunc func(percent float64, message string)

// Func is the body of a task. It must watch ctx and return promptly once the
// context is cancelled; returning an error wrapping context.Canceled marks
// the task cancelled rather than failed. Results are retained until the task
// is evicted, so they should be summaries rather than references to large
// fetched data.
type Func func(ctx context.Context, report ProgressFunc) (any, error)

// Snapshot is a point-in-time copy of a task's externally visible state.
type Snapshot struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	State     State      `json:"state"`
	Progress  float64    `json:"progress_percent"`
	Message   string     `json:"message,omitempty"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Result    any        `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
}

type task struct {
	mu        sync.Mutex
	id        string
	name      string
	state     State
	progress  float64
	message   string
	startTime time.Time
	endTime   *time.Time
	result    any
	errMsg    string
	cancel    context.CancelFunc
}

func (t *task) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		ID:        t.id,
		Name:      t.name,
		State:     t.state,
		Progress:  t.progress,
		Message:   t.message,
		StartTime: t.startTime,
		EndTime:   t.endTime,
		Error:     t.errMsg,
	}
	if t.state == StateCompleted {
		snap.Result = t.result
	}
	return snap
}

func (t *task) setRunning() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StatePending {
		t.state = StateRunning
	}
}

func (t *task) report(percent float64, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	t.progress = percent
	if message != "" {
		t.message = message
	}
}

func (t *task) finish(state State, result any, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return
	}
	now := time.Now()
	t.state = state
	t.endTime = &now
	t.result = result
	t.errMsg = errMsg
	if state == StateCompleted {
		t.progress = 100
	}
}

// Manager runs submitted functions as tracked background tasks. Each task
// gets its own goroutine and a context derived from the manager's; Shutdown
// cancels them all and waits.
type Manager struct {
	mu           sync.Mutex
	active       map[string]*task
	completed    []*task
	maxCompleted int

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewManager creates a task manager retaining up to maxCompleted finished
// tasks (DefaultMaxCompleted when non-positive).
func NewManager(maxCompleted int, logger *slog.Logger) *Manager {
	if maxCompleted <= 0 {
		maxCompleted = DefaultMaxCompleted
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		active:       make(map[string]*task),
		maxCompleted: maxCompleted,
		baseCtx:      ctx,
		baseCancel:   cancel,
		logger:       logger,
	}
}

// Submit registers a new task and starts it immediately. The returned id is
// opaque; callers must not parse it.
func (m *Manager) Submit(name string, fn Func) string {
	ctx, cancel := context.WithCancel(m.baseCtx)
	t := &task{
		id:        newTaskID(),
		name:      name,
		state:     StatePending,
		startTime: time.Now(),
		cancel:    cancel,
	}

	m.mu.Lock()
	m.active[t.id] = t
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx, t, fn)

	m.logger.Info("task submitted", "task_id", t.id, "name", name)
	return t.id
}

func (m *Manager) run(ctx context.Context, t *task, fn Func) {
	defer m.wg.Done()

	t.setRunning()

	// A panicking task must not take the process down with it.
	result, err := func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		return fn(ctx, t.report)
	}()

	switch {
	case err == nil:
		t.finish(StateCompleted, result, "")
		m.logger.Info("task completed", "task_id", t.id)
	case errors.Is(err, context.Canceled):
		t.finish(StateCancelled, nil, err.Error())
		m.logger.Info("task cancelled", "task_id", t.id)
	default:
		t.finish(StateFailed, nil, err.Error())
		m.logger.Error("task failed", "task_id", t.id, "error", err)
	}

	m.retire(t)
}

// retire moves a finished task from the active map into the bounded
// completed ring, evicting the oldest entries past the cap.
func (m *Manager) retire(t *task) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.active, t.id)
	m.completed = append(m.completed, t)
	if len(m.completed) > m.maxCompleted {
		m.completed = m.completed[len(m.completed)-m.maxCompleted:]
	}
}

// Status returns the task's current snapshot, or nil when the id is unknown
// or already evicted.
func (m *Manager) Status(id string) *Snapshot {
	t := m.find(id)
	if t == nil {
		return nil
	}
	snap := t.snapshot()
	return &snap
}

// Result returns the result of a successfully completed task.
func (m *Manager) Result(id string) (any, error) {
	t := m.find(id)
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	snap := t.snapshot()
	switch snap.State {
	case StateCompleted:
		return snap.Result, nil
	case StateFailed:
		return nil, fmt.Errorf("task %s failed: %s", id, snap.Error)
	case StateCancelled:
		return nil, fmt.Errorf("task %s was cancelled", id)
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrNotCompleted, id, snap.State)
	}
}

// Cancel requests cooperative cancellation of an active task. It returns true
// when the request was delivered; the task only transitions to cancelled once
// its function observes the context and returns.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	t, ok := m.active[id]
	m.mu.Unlock()

	if !ok {
		return false
	}
	t.cancel()
	m.logger.Info("task cancellation requested", "task_id", id)
	return true
}

// ListActive returns snapshots of all non-terminal tasks, oldest first.
func (m *Manager) ListActive() []Snapshot {
	m.mu.Lock()
	tasks := make([]*task, 0, len(m.active))
	for _, t := range m.active {
		tasks = append(tasks, t)
	}
	m.mu.Unlock()

	snaps := make([]Snapshot, 0, len(tasks))
	for _, t := range tasks {
		snaps = append(snaps, t.snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].StartTime.Before(snaps[j].StartTime) })
	return snaps
}

// List returns snapshots of active tasks followed by retained finished ones,
// newest finished first.
func (m *Manager) List() []Snapshot {
	active := m.ListActive()

	m.mu.Lock()
	finished := make([]*task, len(m.completed))
	copy(finished, m.completed)
	m.mu.Unlock()

	snaps := active
	for i := len(finished) - 1; i >= 0; i-- {
		snaps = append(snaps, finished[i].snapshot())
	}
	return snaps
}

// Shutdown cancels every task and waits for them to finish or for ctx to
// expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.baseCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (m *Manager) find(id string) *task {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.active[id]; ok {
		return t
	}
	for _, t := range m.completed {
		if t.id == id {
			return t
		}
	}
	return nil
}

func newTaskID() string {
	return "task_" + strings.Split(uuid.New().String(), "-")[0]
}
