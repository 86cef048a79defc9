package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"email-automation/internal/jobs"
)

var jobsCmd = &cobra.Command{
	Use:     "jobs",
	Aliases: []string{"job"},
	Short:   "Inspect and control automation jobs",
	Long:    `Inspect running and recently finished automation jobs, wait on them, or cancel them.`,
}

var jobsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List jobs",
	Long:    `List active jobs. With --all, finished jobs the server still remembers are included.`,
	RunE:    runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's status",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsResultCmd = &cobra.Command{
	Use:   "result <job-id>",
	Short: "Show a finished job's run summary",
	Long:  `Show the run summary of a completed job. Fails if the job is still running.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsResult,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a running job",
	Long:  `Ask the server to cancel a job. The job stops at the next safe point and keeps the partial result.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

var jobsWatchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Follow a job until it finishes",
	Long:  `Follow a job's progress until it reaches a terminal state, then print its run summary.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsWatch,
}

var jobsListAll bool

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsResultCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	jobsCmd.AddCommand(jobsWatchCmd)

	jobsListCmd.Flags().BoolVarP(&jobsListAll, "all", "A", false, "Include finished jobs")
}

func runJobsList(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	snaps, err := client.GetJobs(jobsListAll)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	return formatter.PrintJobs(snaps)
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	snap, err := client.GetJob(args[0])
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	return formatter.PrintJob(snap)
}

func runJobsResult(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	summary, err := client.GetJobResult(args[0])
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	return formatter.PrintRunSummary(summary)
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	snap, err := client.CancelJob(args[0])
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if config.Quiet {
		return formatter.PrintJob(snap)
	}

	formatter.PrintSuccess("Cancellation requested")
	return formatter.PrintJob(snap)
}

func runJobsWatch(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	final, err := followJob(config, client, args[0])
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
			formatter.PrintSuccess("Job completed")
		}
		return formatter.PrintRunSummary(summary)

	case jobs.StateFailed:
		err := fmt.Errorf("job failed: %s", final.Error)
		formatter.PrintError(err)
		return err

	case jobs.StateCancelled:
		formatter.PrintInfo("Job was cancelled")
		return nil

	default:
		return formatter.PrintJob(final)
	}
}
