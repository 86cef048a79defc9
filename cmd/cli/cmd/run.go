package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"email-automation/internal/api"
	"email-automation/internal/cli"
	"email-automation/internal/jobs"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Trigger an automation run",
	Long: `Trigger an automation run on the server. By default the run covers all
enabled rules; --rule restricts it to specific rules, and --query runs an
ad-hoc Gmail query instead of the stored rule set.

The run executes asynchronously. Pass --follow to stay attached and print
the result summary when it finishes.`,
	RunE: runRun,
}

var (
	runRules       []string
	runQuery       string
	runDryRun      bool
	runScanLimit   int
	runDetailedIDs bool
	runFollow      bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringArrayVarP(&runRules, "rule", "r", nil, "Rule ID or name to run (repeatable; default: all enabled rules)")
	runCmd.Flags().StringVar(&runQuery, "query", "", "Ad-hoc Gmail query to run instead of stored rules")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Evaluate rules without executing any action")
	runCmd.Flags().IntVar(&runScanLimit, "scan-limit", 0, "Maximum number of messages to scan (0 = server default)")
	runCmd.Flags().BoolVar(&runDetailedIDs, "detailed-ids", false, "Include per-action message IDs in the result")
	runCmd.Flags().BoolVarP(&runFollow, "follow", "F", false, "Stay attached and report progress until the run finishes")
}

func runRun(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	req := &api.RunRequest{
		RuleIDs:            runRules,
		UserQuery:          runQuery,
		DryRun:             runDryRun,
		ScanLimit:          runScanLimit,
		IncludeDetailedIDs: runDetailedIDs,
		Source:             "cli",
	}

	snap, err := client.SubmitRun(req)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if !runFollow {
		if !config.Quiet {
			formatter.PrintSuccess("Automation run submitted")
			formatter.PrintInfo(fmt.Sprintf("Follow progress with: email-automation jobs watch %s", snap.ID))
		}
		return formatter.PrintJob(snap)
	}

	final, err := followJob(config, client, snap.ID)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	switch final.State {
	case jobs.StateCompleted:
		summary, err := client.GetJobResult(final.ID)
		if err != nil {
			formatter.PrintError(err)
			return err
		}
		if !config.Quiet {
			formatter.PrintSuccess("Automation run completed")
		}
		return formatter.PrintRunSummary(summary)

	case jobs.StateFailed:
		err := fmt.Errorf("automation run failed: %s", final.Error)
		formatter.PrintError(err)
		return err

	case jobs.StateCancelled:
		formatter.PrintInfo("Automation run was cancelled")
		return nil

	default:
		// Watcher only stops early when the user detaches.
		formatter.PrintInfo(fmt.Sprintf("Run still in progress; check it with: email-automation jobs status %s", final.ID))
		return nil
	}
}

// followJob tracks a job to completion, interactively when stdout is a
// terminal and with a plain poll otherwise.
func followJob(config *cli.Config, client *api.Client, taskID string) (*jobs.Snapshot, error) {
	if shouldUseInteractiveMode(config, false) {
		return cli.WatchJob(client, taskID, config.NoColor)
	}

	if !config.Quiet {
		spinner := cli.NewProgressSpinner("Running automation", config.NoColor)
		spinner.Start()
		defer spinner.Stop()
	}

	return cli.AwaitJob(client, taskID, 0)
}
