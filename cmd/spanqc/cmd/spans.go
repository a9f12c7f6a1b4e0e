package cmd

import (
	"github.com/spf13/cobra"
)

var spansCmd = &cobra.Command{
	Use:   "spans",
	Short: "Run only the span-count reconciliation pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		rows, err := eng.SpanCounts(cmd.Context())
		if err != nil {
			return err
		}
		return writeSpanCountCSV(cmd.OutOrStdout(), rows)
	},
}

func init() {
	rootCmd.AddCommand(spansCmd)
}
