package cmd

import (
	"github.com/spf13/cobra"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List mailbox labels",
	Long:  `List the labels of the connected mailbox, as seen by the server.`,
	RunE:  runLabels,
}

func init() {
	rootCmd.AddCommand(labelsCmd)
}

func runLabels(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	labels, err := client.GetLabels()
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	return formatter.PrintLabels(labels)
}
