package cmd

import (
	"github.com/spf13/cobra"
)

var wirespecCmd = &cobra.Command{
	Use:   "wirespec",
	Short: "Run only the wire-spec comparison pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		rows, err := eng.WireSpecs(cmd.Context())
		if err != nil {
			return err
		}
		return writeWireSpecCSV(cmd.OutOrStdout(), rows)
	},
}

func init() {
	rootCmd.AddCommand(wirespecCmd)
}
