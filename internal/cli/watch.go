package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"email-automation/internal/api"
	"email-automation/internal/jobs"
)

// watchPollInterval controls how often the watcher asks the server for a
// fresh job snapshot.
const watchPollInterval = 500 * time.Millisecond

// JobWatcher is a bubbletea model that follows a single job until it reaches
// a terminal state, rendering a progress bar and the job's latest message.
type JobWatcher struct {
	client   *api.Client
	taskID   string
	snapshot *jobs.Snapshot
	bar      progress.Model
	spinner  spinner.Model
	useColor bool
	err      error
	stopped  bool
}

// NewJobWatcher creates a watcher for the given task id.
func NewJobWatcher(client *api.Client, taskID string, noColor bool) JobWatcher {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	bar := progress.New(progress.WithDefaultGradient())
	if noColor {
		bar = progress.New(progress.WithSolidFill("7"))
	}

	return JobWatcher{
		client:   client,
		taskID:   taskID,
		bar:      bar,
		spinner:  s,
		useColor: !noColor,
	}
}

type jobSnapshotMsg struct {
	snap *jobs.Snapshot
	err  error
}

type jobPollMsg struct{}

// Init starts the spinner and the first status fetch.
func (m JobWatcher) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchStatus())
}

// Update handles poll results and keyboard interrupts.
func (m JobWatcher) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			// Stop watching; the job keeps running on the server.
			m.stopped = true
			return m, tea.Quit
		}
		return m, nil

	case jobSnapshotMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.snapshot = msg.snap
		if msg.snap.State.Terminal() {
			return m, tea.Quit
		}
		return m, tea.Tick(watchPollInterval, func(time.Time) tea.Msg {
			return jobPollMsg{}
		})

	case jobPollMsg:
		return m, m.fetchStatus()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the current job state.
func (m JobWatcher) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error watching task %s: %v\n", m.taskID, m.err)
	}
	if m.snapshot == nil {
		return fmt.Sprintf("%s Fetching status for %s...\n", m.spinner.View(), m.taskID)
	}

	var b strings.Builder

	header := fmt.Sprintf("Automation run %s - %s", m.snapshot.ID, m.snapshot.State)
	if m.useColor {
		headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
		header = headerStyle.Render(header)
	}
	if m.snapshot.State.Terminal() {
		b.WriteString(header)
	} else {
		b.WriteString(fmt.Sprintf("%s %s", m.spinner.View(), header))
	}
	b.WriteString("\n")

	b.WriteString(m.bar.ViewAs(m.snapshot.Progress / 100))
	b.WriteString("\n")

	if m.snapshot.Message != "" {
		message := m.snapshot.Message
		if m.useColor {
			message = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render(message)
		}
		b.WriteString(message)
		b.WriteString("\n")
	}
	if m.snapshot.Error != "" {
		errLine := m.snapshot.Error
		if m.useColor {
			errLine = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render(errLine)
		}
		b.WriteString(errLine)
		b.WriteString("\n")
	}

	if !m.snapshot.State.Terminal() {
		b.WriteString("Press q to stop watching\n")
	}

	return b.String()
}

// fetchStatus asks the server for the job's current snapshot.
func (m JobWatcher) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.client.GetJob(m.taskID)
		return jobSnapshotMsg{snap: snap, err: err}
	}
}

// WatchJob follows a job interactively and returns its last observed
// snapshot. A nil snapshot with nil error means the user stopped watching
// before the first status arrived.
func WatchJob(client *api.Client, taskID string, noColor bool) (*jobs.Snapshot, error) {
	prog := tea.NewProgram(NewJobWatcher(client, taskID, noColor))
	final, err := prog.Run()
	if err != nil {
		return nil, err
	}

	watcher, ok := final.(JobWatcher)
	if !ok {
		return nil, fmt.Errorf("unexpected watcher model %T", final)
	}
	if watcher.err != nil {
		return nil, watcher.err
	}
	return watcher.snapshot, nil
}

// AwaitJob polls a job without any terminal UI until it reaches a terminal
// state. It is the non-interactive counterpart of WatchJob.
func AwaitJob(client *api.Client, taskID string, interval time.Duration) (*jobs.Snapshot, error) {
	if interval <= 0 {
		interval = watchPollInterval
	}
	for {
		snap, err := client.GetJob(taskID)
		if err != nil {
			return nil, err
		}
		if snap.State.Terminal() {
			return snap, nil
		}
		time.Sleep(interval)
	}
}
