package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"email-automation/internal/api"
	"email-automation/internal/cli"
	"email-automation/internal/database"
	"email-automation/internal/jobs"
	"email-automation/internal/pipeline"
	"email-automation/internal/rules"
)

// isTerminalFunc reports whether stdout is a terminal. Swappable in tests.
var isTerminalFunc = func() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

// shouldUseInteractiveMode decides whether the rules list runs as an
// interactive table. An explicit flag always wins; otherwise the table
// renders only for table-format, non-quiet output on a real terminal
// outside CI.
func shouldUseInteractiveMode(config *cli.Config, explicitFlag bool) bool {
	if explicitFlag {
		return true
	}
	if config.Format != "table" || config.Quiet {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	return isTerminalFunc()
}

// KeyMap represents the key bindings for the interactive table
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Preview key.Binding
	Toggle  key.Binding
	Delete  key.Binding
	Details key.Binding
	History key.Binding
	Help    key.Binding
	Quit    key.Binding
	Confirm key.Binding
	Cancel  key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Preview: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "dry run"),
		),
		Toggle: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "enable/disable"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		Details: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "details"),
		),
		History: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "run history"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("n", "N", "esc"),
			key.WithHelp("n/esc", "cancel"),
		),
	}
}

// InteractiveTable represents the interactive rules table model
type InteractiveTable struct {
	table             table.Model
	rules             []rules.Rule
	client            *api.Client
	fields            []string
	keys              KeyMap
	loading           bool
	spinner           spinner.Model
	err               error
	message           string
	showHelp          bool
	quitting          bool
	config            *cli.Config
	useColor          bool
	showDeleteConfirm bool
	deleteTarget      string
	deleteName        string
	showRuns          bool
	runsData          []database.Run
	runsScroll        int
}

// NewInteractiveTable creates a new interactive rules table
func NewInteractiveTable(list []rules.Rule, client *api.Client, fieldsFlag string, config *cli.Config) (*InteractiveTable, error) {
	// Parse and validate fields
	fields := parseFields(fieldsFlag)
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	// Create table columns
	columns := make([]table.Column, len(fields))
	for i, field := range fields {
		columns[i] = table.Column{
			Title: getFieldDisplayName(field),
			Width: calculateColumnWidth(field, list),
		}
	}

	// Create table rows
	rows := make([]table.Row, len(list))
	for i, rule := range list {
		rows[i] = ruleToRow(rule, fields)
	}

	// Create table
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	// Create spinner
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	// Determine if colors should be used
	useColor := !config.NoColor && isatty.IsTerminal(os.Stdout.Fd())

	// Apply styling
	if useColor {
		styles := table.DefaultStyles()
		styles.Header = styles.Header.
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			BorderBottom(true).
			Bold(false)
		styles.Selected = styles.Selected.
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Bold(false)
		t.SetStyles(styles)
	}

	return &InteractiveTable{
		table:    t,
		rules:    list,
		client:   client,
		fields:   fields,
		keys:     DefaultKeyMap(),
		spinner:  s,
		config:   config,
		useColor: useColor,
	}, nil
}

// Init initializes the interactive table
func (m InteractiveTable) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model
func (m InteractiveTable) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Handle confirmation dialog first
		if m.showDeleteConfirm {
			switch {
			case key.Matches(msg, m.keys.Confirm):
				return m.confirmDelete()
			case key.Matches(msg, m.keys.Cancel):
				m.showDeleteConfirm = false
				m.deleteTarget = ""
				m.deleteName = ""
				m.message = "Delete cancelled"
				return m, nil
			}
			// Don't process other keys when in confirmation mode
			return m, nil
		}

		// Handle run history navigation
		if m.showRuns {
			switch {
			case key.Matches(msg, m.keys.Up):
				if m.runsScroll > 0 {
					m.runsScroll--
				}
				return m, nil
			case key.Matches(msg, m.keys.Down):
				maxScroll := len(m.runsData) - 10 // Show 10 runs at a time
				if maxScroll < 0 {
					maxScroll = 0
				}
				if m.runsScroll < maxScroll {
					m.runsScroll++
				}
				return m, nil
			case key.Matches(msg, m.keys.Cancel), key.Matches(msg, m.keys.Quit):
				// Close the history view
				m.showRuns = false
				m.runsData = nil
				m.runsScroll = 0
				m.message = ""
				return m, nil
			}
			// Don't process other keys when in history view
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, m.keys.Preview):
			return m.handlePreview()

		case key.Matches(msg, m.keys.Up):
			m.table, cmd = m.table.Update(msg)
			return m, cmd

		case key.Matches(msg, m.keys.Down):
			m.table, cmd = m.table.Update(msg)
			return m, cmd

		case key.Matches(msg, m.keys.Details):
			return m.handleDetails()

		case key.Matches(msg, m.keys.History):
			return m.handleHistory()

		case key.Matches(msg, m.keys.Toggle):
			return m.handleToggle()

		case key.Matches(msg, m.keys.Delete):
			return m.handleDelete()
		}

	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		return m, nil

	case previewCompleteMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.message = fmt.Sprintf("Error previewing rule: %v", msg.err)
		} else {
			m.err = nil
			m.message = fmt.Sprintf("Dry run: %d of %d scanned emails match",
				msg.summary.EmailsMatchingAnyRule, msg.summary.TotalEmailsScanned)
		}
		return m, nil

	case toggleCompleteMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.message = fmt.Sprintf("Error toggling rule: %v", msg.err)
		} else {
			m = m.replaceRuleInTable(msg.rule)
			m.err = nil
			if msg.rule.Enabled {
				m.message = fmt.Sprintf("Rule %q enabled", msg.rule.Name)
			} else {
				m.message = fmt.Sprintf("Rule %q disabled", msg.rule.Name)
			}
		}
		return m, nil

	case deleteRuleCompleteMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.message = fmt.Sprintf("Error deleting rule: %v", msg.err)
		} else {
			// Remove the deleted rule from the table
			m = m.removeRuleFromTable(msg.ruleID)
			m.err = nil
			m.message = "Rule deleted successfully"
		}
		return m, nil

	case runsCompleteMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.message = fmt.Sprintf("Error fetching run history: %v", msg.err)
		} else {
			// Show the history view
			m.showRuns = true
			m.runsData = msg.runs
			m.runsScroll = 0
			m.message = ""
			m.err = nil
		}
		return m, nil

	case spinner.TickMsg:
		if m.loading {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

// View renders the interactive table
func (m InteractiveTable) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	var b strings.Builder

	// Show help if requested
	if m.showHelp {
		b.WriteString(m.helpView())
		b.WriteString("\n")
	}

	// Show spinner if loading
	if m.loading {
		b.WriteString(fmt.Sprintf("%s Working...\n", m.spinner.View()))
	}

	// Show run history if active
	if m.showRuns {
		b.WriteString(m.runsView())
		b.WriteString("\n")
	} else {
		// Show table
		b.WriteString(m.table.View())
		b.WriteString("\n")
	}

	// Show confirmation dialog if needed
	if m.showDeleteConfirm {
		confirmMsg := fmt.Sprintf("Delete rule %q? (y/N): ", m.deleteName)
		if m.useColor {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Render(confirmMsg))
		} else {
			b.WriteString(confirmMsg)
		}
		b.WriteString("\n")
	}

	// Show message if any
	if m.message != "" {
		if m.err != nil {
			if m.useColor {
				b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render(m.message))
			} else {
				b.WriteString(m.message)
			}
		} else {
			if m.useColor {
				b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render(m.message))
			} else {
				b.WriteString(m.message)
			}
		}
		b.WriteString("\n")
	}

	// Show status line
	b.WriteString(m.statusLine())

	return b.String()
}

// helpView returns the help view
func (m InteractiveTable) helpView() string {
	help := strings.Builder{}
	help.WriteString("Help:\n")
	help.WriteString("  ↑/k         - Move up\n")
	help.WriteString("  ↓/j         - Move down\n")
	help.WriteString("  r           - Dry run selected rule\n")
	help.WriteString("  e           - Enable/disable rule\n")
	help.WriteString("  d           - Delete rule\n")
	help.WriteString("  enter       - View details\n")
	help.WriteString("  v           - View run history\n")
	help.WriteString("  ?           - Toggle help\n")
	help.WriteString("  q/ctrl+c    - Quit\n")
	return help.String()
}

// statusLine returns the status line
func (m InteractiveTable) statusLine() string {
	if m.showRuns {
		return "Run History | Press q/esc to return to the rules list"
	}

	if len(m.rules) == 0 {
		return "No rules found"
	}

	selected := m.table.Cursor()
	total := len(m.rules)
	return fmt.Sprintf("Rule %d of %d | Press ? for help", selected+1, total)
}

// calculateColumnWidth calculates the width for a column based on its content
func calculateColumnWidth(field string, list []rules.Rule) int {
	// Base width on field display name
	width := len(getFieldDisplayName(field))

	// Check a few sample rows to determine appropriate width
	samples := len(list)
	if samples > 10 {
		samples = 10
	}

	for i := 0; i < samples; i++ {
		value := getFieldValue(list[i], field)
		if len(value) > width {
			width = len(value)
		}
	}

	// Set reasonable limits
	if width < 8 {
		width = 8
	}
	if width > 50 {
		width = 50
	}

	return width
}

// ruleToRow converts a rule to a table row
func ruleToRow(rule rules.Rule, fields []string) table.Row {
	row := make(table.Row, len(fields))
	for i, field := range fields {
		row[i] = getFieldValue(rule, field)
	}
	return row
}

// getFieldValue returns the value for a specific field from a rule
func getFieldValue(rule rules.Rule, field string) string {
	switch field {
	case "id":
		if len(rule.ID) > 8 {
			return rule.ID[:8]
		}
		return rule.ID
	case "name":
		return rule.Name
	case "enabled":
		if rule.Enabled {
			return "Yes"
		}
		return "No"
	case "conjunction":
		return string(rule.Conjunction)
	case "conditions":
		return conditionsSummary(rule)
	case "actions":
		return actionsSummary(rule)
	default:
		return ""
	}
}

// conditionsSummary renders a rule's conditions on one line
func conditionsSummary(rule rules.Rule) string {
	parts := make([]string, len(rule.Conditions))
	for i, cond := range rule.Conditions {
		parts[i] = fmt.Sprintf("%s %s %s", cond.Field, cond.Operator, cond.Value)
	}
	sep := " AND "
	if rule.Conjunction == rules.ConjunctionOr {
		sep = " OR "
	}
	return strings.Join(parts, sep)
}

// actionsSummary renders a rule's actions on one line
func actionsSummary(rule rules.Rule) string {
	parts := make([]string, len(rule.Actions))
	for i, action := range rule.Actions {
		parts[i] = action.Key()
	}
	return strings.Join(parts, ", ")
}

// previewCompleteMsg is sent when a dry-run preview completes
type previewCompleteMsg struct {
	summary *pipeline.RunSummary
	err     error
}

// toggleCompleteMsg is sent when an enable/disable operation completes
type toggleCompleteMsg struct {
	rule *rules.Rule
	err  error
}

// deleteRuleCompleteMsg is sent when a delete operation completes
type deleteRuleCompleteMsg struct {
	ruleID string
	err    error
}

// runsCompleteMsg is sent when a run history fetch completes
type runsCompleteMsg struct {
	runs []database.Run
	err  error
}

// handlePreview submits a dry run for the selected rule
func (m InteractiveTable) handlePreview() (InteractiveTable, tea.Cmd) {
	if len(m.rules) == 0 {
		m.message = "No rules to preview"
		return m, nil
	}

	selected := m.table.Cursor()
	if selected >= len(m.rules) {
		m.message = "Invalid selection"
		return m, nil
	}

	rule := m.rules[selected]
	m.loading = true
	m.message = ""
	m.err = nil

	return m, tea.Batch(
		m.spinner.Tick,
		m.previewRule(rule.ID),
	)
}

// previewRule runs a single rule in dry-run mode and waits for the summary
func (m InteractiveTable) previewRule(id string) tea.Cmd {
	return func() tea.Msg {
		snap, err := m.client.SubmitRun(&api.RunRequest{RuleIDs: []string{id}, DryRun: true})
		if err != nil {
			return previewCompleteMsg{err: err}
		}

		final, err := cli.AwaitJob(m.client, snap.ID, 0)
		if err != nil {
			return previewCompleteMsg{err: err}
		}
		if final.State != jobs.StateCompleted {
			return previewCompleteMsg{err: fmt.Errorf("dry run %s: %s", final.State, final.Error)}
		}

		summary, err := m.client.GetJobResult(snap.ID)
		if err != nil {
			return previewCompleteMsg{err: err}
		}
		return previewCompleteMsg{summary: summary}
	}
}

// handleDetails handles viewing rule details
func (m InteractiveTable) handleDetails() (InteractiveTable, tea.Cmd) {
	if len(m.rules) == 0 {
		m.message = "No rules to view"
		return m, nil
	}

	selected := m.table.Cursor()
	if selected >= len(m.rules) {
		m.message = "Invalid selection"
		return m, nil
	}

	rule := m.rules[selected]

	// Format rule details
	details := fmt.Sprintf(`
Rule Details:
ID: %s
Name: %s
Enabled: %v
Conjunction: %s
Conditions: %s
Actions: %s
`,
		rule.ID,
		rule.Name,
		rule.Enabled,
		rule.Conjunction,
		conditionsSummary(rule),
		actionsSummary(rule),
	)

	m.message = details
	return m, nil
}

// handleHistory fetches the recent run history
func (m InteractiveTable) handleHistory() (InteractiveTable, tea.Cmd) {
	m.loading = true
	m.message = ""
	m.err = nil

	return m, tea.Batch(
		m.spinner.Tick,
		m.fetchRuns(),
	)
}

// handleToggle flips the enabled state of the selected rule
func (m InteractiveTable) handleToggle() (InteractiveTable, tea.Cmd) {
	if len(m.rules) == 0 {
		m.message = "No rules to toggle"
		return m, nil
	}

	selected := m.table.Cursor()
	if selected >= len(m.rules) {
		m.message = "Invalid selection"
		return m, nil
	}

	rule := m.rules[selected]
	m.loading = true
	m.message = ""
	m.err = nil

	return m, tea.Batch(
		m.spinner.Tick,
		m.toggleRule(rule),
	)
}

// toggleRule enables or disables a specific rule
func (m InteractiveTable) toggleRule(rule rules.Rule) tea.Cmd {
	return func() tea.Msg {
		var updated *rules.Rule
		var err error
		if rule.Enabled {
			updated, err = m.client.DisableRule(rule.ID)
		} else {
			updated, err = m.client.EnableRule(rule.ID)
		}
		return toggleCompleteMsg{rule: updated, err: err}
	}
}

// handleDelete handles deleting a rule
func (m InteractiveTable) handleDelete() (InteractiveTable, tea.Cmd) {
	if len(m.rules) == 0 {
		m.message = "No rules to delete"
		return m, nil
	}

	selected := m.table.Cursor()
	if selected >= len(m.rules) {
		m.message = "Invalid selection"
		return m, nil
	}

	rule := m.rules[selected]
	m.showDeleteConfirm = true
	m.deleteTarget = rule.ID
	m.deleteName = rule.Name
	m.message = ""
	m.err = nil

	return m, nil
}

// confirmDelete executes the delete operation after confirmation
func (m InteractiveTable) confirmDelete() (InteractiveTable, tea.Cmd) {
	m.showDeleteConfirm = false
	m.loading = true
	m.message = ""
	m.err = nil

	return m, tea.Batch(
		m.spinner.Tick,
		m.deleteRule(m.deleteTarget),
	)
}

// deleteRule deletes a specific rule
func (m InteractiveTable) deleteRule(id string) tea.Cmd {
	return func() tea.Msg {
		err := m.client.DeleteRule(id)
		return deleteRuleCompleteMsg{ruleID: id, err: err}
	}
}

// replaceRuleInTable swaps an updated rule into the table
func (m InteractiveTable) replaceRuleInTable(rule *rules.Rule) InteractiveTable {
	if rule == nil {
		return m
	}

	for i := range m.rules {
		if m.rules[i].ID == rule.ID {
			m.rules[i] = *rule
			break
		}
	}

	rows := make([]table.Row, len(m.rules))
	for i, r := range m.rules {
		rows[i] = ruleToRow(r, m.fields)
	}
	m.table.SetRows(rows)

	return m
}

// removeRuleFromTable removes a rule from the table after successful deletion
func (m InteractiveTable) removeRuleFromTable(ruleID string) InteractiveTable {
	// Find the rule to remove
	newRules := make([]rules.Rule, 0, len(m.rules))
	for _, rule := range m.rules {
		if rule.ID != ruleID {
			newRules = append(newRules, rule)
		}
	}

	// Update the rules slice
	m.rules = newRules

	// Recreate table rows
	rows := make([]table.Row, len(m.rules))
	for i, rule := range m.rules {
		rows[i] = ruleToRow(rule, m.fields)
	}

	// Update the table
	m.table.SetRows(rows)

	return m
}

// fetchRuns fetches the recent run history
func (m InteractiveTable) fetchRuns() tea.Cmd {
	return func() tea.Msg {
		runs, err := m.client.GetRuns(25)
		return runsCompleteMsg{runs: runs, err: err}
	}
}

// runsView renders the run history view
func (m InteractiveTable) runsView() string {
	var b strings.Builder

	// Header
	title := "Recent Automation Runs"
	if m.useColor {
		titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
		b.WriteString(titleStyle.Render(title))
	} else {
		b.WriteString(title)
	}
	b.WriteString("\n")

	// Instructions
	instructions := "Use ↑/↓ to scroll, q/esc to close"
	if m.useColor {
		instrStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
		b.WriteString(instrStyle.Render(instructions))
	} else {
		b.WriteString(instructions)
	}
	b.WriteString("\n\n")

	if len(m.runsData) == 0 {
		b.WriteString("No runs recorded yet.\n")
		return b.String()
	}

	// Table header
	header := "ID      TRIGGER     STATE       DRY  SCANNED  MATCHED  STARTED"
	if m.useColor {
		headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("240"))
		b.WriteString(headerStyle.Render(header))
	} else {
		b.WriteString(header)
	}
	b.WriteString("\n")

	// Add separator line
	separator := strings.Repeat("-", len(header))
	if m.useColor {
		sepStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
		b.WriteString(sepStyle.Render(separator))
	} else {
		b.WriteString(separator)
	}
	b.WriteString("\n")

	// Show runs with scrolling
	maxVisible := 10
	start := m.runsScroll
	end := start + maxVisible
	if end > len(m.runsData) {
		end = len(m.runsData)
	}

	for i := start; i < end; i++ {
		run := m.runsData[i]

		dry := ""
		if run.DryRun {
			dry = "yes"
		}

		// Pad before coloring so ANSI escapes don't skew the columns
		state := fmt.Sprintf("%-11s", run.State)
		if m.useColor {
			state = m.colorRunState(run.State, state)
		}

		row := fmt.Sprintf("%-7d %-11s %s %-4s %-8d %-8d %s",
			run.ID,
			truncateString(run.Trigger, 11),
			state,
			dry,
			run.EmailsScanned,
			run.EmailsMatched,
			run.StartedAt.Format("2006-01-02 15:04"))

		b.WriteString(row)
		b.WriteString("\n")
	}

	// Show scroll indicator if there are more runs
	if len(m.runsData) > maxVisible {
		scrollInfo := fmt.Sprintf("\nShowing %d-%d of %d runs", start+1, end, len(m.runsData))
		if m.useColor {
			scrollStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
			b.WriteString(scrollStyle.Render(scrollInfo))
		} else {
			b.WriteString(scrollInfo)
		}
	}

	return b.String()
}

// truncateString truncates a string to the specified length with ellipsis
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// colorRunState returns the padded state cell with a state-specific color
func (m InteractiveTable) colorRunState(state, cell string) string {
	var color lipgloss.Color
	switch strings.ToLower(state) {
	case "completed":
		color = lipgloss.Color("82") // Green
	case "running":
		color = lipgloss.Color("226") // Yellow
	case "pending":
		color = lipgloss.Color("75") // Blue
	case "failed", "error":
		color = lipgloss.Color("196") // Red
	default:
		color = lipgloss.Color("244") // Gray
	}
	return lipgloss.NewStyle().Foreground(color).Render(cell)
}

// runInteractiveTable runs the interactive rules table
func runInteractiveTable(list []rules.Rule, client *api.Client, fieldsFlag string, config *cli.Config) error {
	interactiveTable, err := NewInteractiveTable(list, client, fieldsFlag, config)
	if err != nil {
		return err
	}

	p := tea.NewProgram(interactiveTable, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
