package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	Long:  `Check the server's health endpoint and report the state of its database and rule store.`,
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := buildClient()
	if err != nil {
		return err
	}

	health, err := client.Health()
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if err := formatter.PrintHealth(health); err != nil {
		return err
	}

	if health.Status != "healthy" {
		return fmt.Errorf("server is %s", health.Status)
	}
	return nil
}
