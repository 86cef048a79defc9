package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"email-automation/internal/api"
	"email-automation/internal/database"
	"email-automation/internal/gmail"
	"email-automation/internal/jobs"
	"email-automation/internal/pipeline"
	"email-automation/internal/rules"
)

// OutputFormatter handles different output formats
type OutputFormatter struct {
	format   string
	quiet    bool
	useColor bool
	profile  termenv.Profile
}

// NewOutputFormatter creates a new output formatter
func NewOutputFormatter(format string, quiet bool) *OutputFormatter {
	return NewOutputFormatterWithColor(format, quiet, false)
}

// NewOutputFormatterWithColor creates a formatter with explicit color control.
// Colors are only emitted on a terminal, and never under CI or NO_COLOR.
func NewOutputFormatterWithColor(format string, quiet, noColor bool) *OutputFormatter {
	useColor := !noColor &&
		os.Getenv("CI") == "" &&
		isatty.IsTerminal(os.Stdout.Fd())

	return &OutputFormatter{
		format:   format,
		quiet:    quiet,
		useColor: useColor,
		profile:  termenv.ColorProfile(),
	}
}

// colorize wraps s in the given ANSI color when color output is active.
func (f *OutputFormatter) colorize(s, color string) string {
	if !f.useColor {
		return s
	}
	return termenv.String(s).Foreground(f.profile.Color(color)).String()
}

// stateColor maps job and run states onto terminal colors.
func stateColor(state string) string {
	switch state {
	case "completed", "healthy":
		return "2" // green
	case "failed", "error":
		return "1" // red
	case "running":
		return "3" // yellow
	case "cancelled":
		return "8" // gray
	default:
		return "4" // blue
	}
}

// PrintRules prints a list of rules
func (f *OutputFormatter) PrintRules(list []rules.Rule) error {
	if f.quiet {
		for _, rule := range list {
			fmt.Printf("%s\n", rule.ID)
		}
		return nil
	}

	switch f.format {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(list)
	case "table":
		return f.printRulesTable(list)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintRule prints a single rule
func (f *OutputFormatter) PrintRule(rule *rules.Rule) error {
	if f.quiet {
		fmt.Printf("%s\n", rule.ID)
		return nil
	}

	switch f.format {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(rule)
	case "table":
		return f.printRuleDetail(rule)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintJobs prints job snapshots
func (f *OutputFormatter) PrintJobs(snaps []jobs.Snapshot) error {
	if f.quiet {
		for _, snap := range snaps {
			fmt.Printf("%s\n", snap.ID)
		}
		return nil
	}

	switch f.format {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(snaps)
	case "table":
		return f.printJobsTable(snaps)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintJob prints a single job snapshot
func (f *OutputFormatter) PrintJob(snap *jobs.Snapshot) error {
	if f.quiet {
		fmt.Printf("%s\n", snap.ID)
		return nil
	}

	switch f.format {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(snap)
	case "table":
		return f.printJobDetail(snap)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintRuns prints recorded run history
func (f *OutputFormatter) PrintRuns(runs []database.Run) error {
	if f.quiet {
		for _, run := range runs {
			fmt.Printf("%d\n", run.ID)
		}
		return nil
	}

	switch f.format {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(runs)
	case "table":
		return f.printRunsTable(runs)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintRun prints a single recorded run
func (f *OutputFormatter) PrintRun(run *database.Run) error {
	if f.quiet {
		fmt.Printf("%d\n", run.ID)
		return nil
	}

	switch f.format {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(run)
	case "table":
		return f.printRunDetail(run)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintRunStats prints aggregate run history counters
func (f *OutputFormatter) PrintRunStats(stats *database.RunStats) error {
	switch f.format {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(stats)
	case "table":
		fmt.Printf("Total runs: %d\n", stats.TotalRuns)
		fmt.Printf("Completed: %d\n", stats.CompletedRuns)
		fmt.Printf("Failed: %d\n", stats.FailedRuns)
		fmt.Printf("Cancelled: %d\n", stats.CancelledRuns)
		if stats.LastRunAt != nil {
			fmt.Printf("Last run: %s\n", stats.LastRunAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintRunSummary prints the outcome of one automation run
func (f *OutputFormatter) PrintRunSummary(summary *pipeline.RunSummary) error {
	if f.quiet {
		fmt.Printf("%d %d\n", summary.TotalEmailsScanned, summary.EmailsMatchingAnyRule)
		return nil
	}

	if f.format == "json" {
		return json.NewEncoder(os.Stdout).Encode(summary)
	}

	if summary.DryRun {
		fmt.Println(f.colorize("Dry run - no actions were executed", "3"))
	}
	fmt.Printf("Emails scanned: %d\n", summary.TotalEmailsScanned)
	fmt.Printf("Emails matched: %d\n", summary.EmailsMatchingAnyRule)

	if len(summary.RulesApplied) > 0 {
		fmt.Println("Rules applied:")
		for name, count := range summary.RulesApplied {
			fmt.Printf("  %s: %d\n", name, count)
		}
	}

	if len(summary.Actions) > 0 {
		fmt.Println("Actions:")
		for key, result := range summary.Actions {
			fmt.Printf("  %s: %d\n", key, result.Count)
			for _, id := range result.EmailIDs {
				fmt.Printf("    %s\n", id)
			}
		}
	}

	if len(summary.Errors) > 0 {
		fmt.Printf("%s\n", f.colorize(fmt.Sprintf("Errors: %d", len(summary.Errors)), "1"))
		for _, runErr := range summary.Errors {
			fmt.Printf("  [%s] %s\n", runErr.Kind, runErr.Details)
		}
	}

	if summary.Message != "" {
		fmt.Printf("Note: %s\n", summary.Message)
	}

	return nil
}

// PrintLabels prints mailbox labels
func (f *OutputFormatter) PrintLabels(labels []gmail.Label) error {
	if f.quiet {
		for _, label := range labels {
			fmt.Printf("%s\n", label.ID)
		}
		return nil
	}

	switch f.format {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(labels)
	case "table":
		if len(labels) == 0 {
			fmt.Println("No labels found.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, "ID\tNAME")
		for _, label := range labels {
			fmt.Fprintf(w, "%s\t%s\n", label.ID, label.Name)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintHealth prints the server health report
func (f *OutputFormatter) PrintHealth(health *api.HealthStatus) error {
	if f.format == "json" {
		return json.NewEncoder(os.Stdout).Encode(health)
	}

	fmt.Printf("Status: %s\n", f.colorize(health.Status, stateColor(health.Status)))
	fmt.Printf("Database: %s\n", health.Database)
	fmt.Printf("Rules: %s\n", health.Rules)
	if health.Message != "" {
		fmt.Printf("Message: %s\n", health.Message)
	}
	return nil
}

// PrintSuccess prints a success message
func (f *OutputFormatter) PrintSuccess(message string) {
	if !f.quiet {
		fmt.Printf("%s %s\n", f.colorize("✓", "2"), message)
	}
}

// PrintError prints an error message
func (f *OutputFormatter) PrintError(err error) {
	if !f.quiet {
		fmt.Fprintf(os.Stderr, "%s Error: %v\n", f.colorize("✗", "1"), err)
	}
}

// PrintInfo prints an informational message
func (f *OutputFormatter) PrintInfo(message string) {
	if !f.quiet {
		fmt.Printf("%s %s\n", f.colorize("ℹ", "4"), message)
	}
}

// printRulesTable prints rules in table format
func (f *OutputFormatter) printRulesTable(list []rules.Rule) error {
	if len(list) == 0 {
		fmt.Println("No rules found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	// Header
	fmt.Fprintln(w, "ID\tNAME\tENABLED\tWHEN\tACTIONS")

	// Data
	for _, rule := range list {
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n",
			shortID(rule.ID),
			truncate(rule.Name, 25),
			rule.Enabled,
			truncate(describeConditions(&rule), 45),
			truncate(describeActions(&rule), 30))
	}

	return nil
}

// printRuleDetail prints a single rule in table format
func (f *OutputFormatter) printRuleDetail(rule *rules.Rule) error {
	fmt.Printf("Rule ID: %s\n", rule.ID)
	fmt.Printf("Name: %s\n", rule.Name)
	fmt.Printf("Enabled: %v\n", rule.Enabled)
	fmt.Printf("Conjunction: %s\n", rule.Conjunction)

	fmt.Println("Conditions:")
	for _, cond := range rule.Conditions {
		fmt.Printf("  %s %s %s\n", cond.Field, cond.Operator, cond.Value)
	}

	fmt.Println("Actions:")
	for _, action := range rule.Actions {
		fmt.Printf("  %s\n", action.Key())
	}

	return nil
}

// printJobsTable prints job snapshots in table format
func (f *OutputFormatter) printJobsTable(snaps []jobs.Snapshot) error {
	if len(snaps) == 0 {
		fmt.Println("No jobs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	// Header
	fmt.Fprintln(w, "ID\tSTATE\tPROGRESS\tSTARTED\tMESSAGE")

	// Data
	for _, snap := range snaps {
		fmt.Fprintf(w, "%s\t%s\t%.0f%%\t%s\t%s\n",
			snap.ID,
			f.colorize(string(snap.State), stateColor(string(snap.State))),
			snap.Progress,
			snap.StartTime.Format("2006-01-02 15:04:05"),
			truncate(snap.Message, 40))
	}

	return nil
}

// printJobDetail prints a single job snapshot in table format
func (f *OutputFormatter) printJobDetail(snap *jobs.Snapshot) error {
	fmt.Printf("Task ID: %s\n", snap.ID)
	fmt.Printf("Name: %s\n", snap.Name)
	fmt.Printf("State: %s\n", f.colorize(string(snap.State), stateColor(string(snap.State))))
	fmt.Printf("Progress: %.0f%%\n", snap.Progress)
	if snap.Message != "" {
		fmt.Printf("Message: %s\n", snap.Message)
	}
	fmt.Printf("Started: %s\n", snap.StartTime.Format("2006-01-02 15:04:05"))
	if snap.EndTime != nil {
		fmt.Printf("Finished: %s\n", snap.EndTime.Format("2006-01-02 15:04:05"))
	}
	if snap.Error != "" {
		fmt.Printf("Error: %s\n", f.colorize(snap.Error, "1"))
	}
	return nil
}

// printRunsTable prints run history in table format
func (f *OutputFormatter) printRunsTable(runs []database.Run) error {
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	// Header
	fmt.Fprintln(w, "ID\tTRIGGER\tSTATE\tDRY\tSCANNED\tMATCHED\tERRORS\tSTARTED")

	// Data
	for _, run := range runs {
		dry := ""
		if run.DryRun {
			dry = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			run.ID,
			run.Trigger,
			f.colorize(run.State, stateColor(run.State)),
			dry,
			run.EmailsScanned,
			run.EmailsMatched,
			run.ErrorCount,
			run.StartedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}

// printRunDetail prints a single run in table format
func (f *OutputFormatter) printRunDetail(run *database.Run) error {
	fmt.Printf("Run ID: %d\n", run.ID)
	fmt.Printf("Task ID: %s\n", run.TaskID)
	fmt.Printf("Trigger: %s\n", run.Trigger)
	fmt.Printf("State: %s\n", f.colorize(run.State, stateColor(run.State)))
	fmt.Printf("Dry run: %v\n", run.DryRun)
	fmt.Printf("Emails scanned: %d\n", run.EmailsScanned)
	fmt.Printf("Emails matched: %d\n", run.EmailsMatched)

	if len(run.RulesApplied) > 0 {
		fmt.Println("Rules applied:")
		for name, count := range run.RulesApplied {
			fmt.Printf("  %s: %d\n", name, count)
		}
	}
	if len(run.ActionTotals) > 0 {
		fmt.Println("Actions:")
		for key, count := range run.ActionTotals {
			fmt.Printf("  %s: %d\n", key, count)
		}
	}

	fmt.Printf("Errors: %d\n", run.ErrorCount)
	if run.Message != "" {
		fmt.Printf("Message: %s\n", run.Message)
	}
	fmt.Printf("Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Finished: %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))

	return nil
}

// describeConditions renders a rule's conditions as one line, e.g.
// "from contains promo@ AND subject contains sale".
func describeConditions(rule *rules.Rule) string {
	parts := make([]string, 0, len(rule.Conditions))
	for _, cond := range rule.Conditions {
		parts = append(parts, fmt.Sprintf("%s %s %s", cond.Field, cond.Operator, cond.Value))
	}
	return strings.Join(parts, " "+string(rule.Conjunction)+" ")
}

// describeActions renders a rule's actions as a comma-separated list.
func describeActions(rule *rules.Rule) string {
	parts := make([]string, 0, len(rule.Actions))
	for _, action := range rule.Actions {
		parts = append(parts, action.Key())
	}
	return strings.Join(parts, ", ")
}

// shortID returns a display-friendly prefix of a rule id.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate truncates a string to the specified length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
