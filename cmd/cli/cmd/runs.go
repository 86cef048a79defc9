package cmd

import (
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Browse the run history",
	Long:  `Browse the automation run history the server has recorded.`,
}

var runsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recorded runs",
	Long:    `List recorded runs, newest first.`,
	RunE:    runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a recorded run",
	Long:  `Show one recorded run, including its per-rule match counts and action totals.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE:  runRunsStats,
}

var runsListLimit int

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)

	runsListCmd.Flags().IntVarP(&runsListLimit, "limit", "l", 20, "Maximum number of runs to list")
}

func runRunsList(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	runs, err := client.GetRuns(runsListLimit)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	return formatter.PrintRuns(runs)
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	id, err := validateAndParseRunID(args[0])
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	run, err := client.GetRun(id)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	return formatter.PrintRun(run)
}

func runRunsStats(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	stats, err := client.GetRunStats()
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	return formatter.PrintRunStats(stats)
}
