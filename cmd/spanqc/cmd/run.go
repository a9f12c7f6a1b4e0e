package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/utiliqc/spanqc/pkg/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run both passes and write wire-spec and span-count CSVs",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		res, err := eng.Run(cmd.Context())
		if err != nil {
			return err
		}

		outDir, _ := cmd.Flags().GetString("out")
		if outDir == "" {
			if err := writeWireSpecCSV(cmd.OutOrStdout(), res.WireSpecs); err != nil {
				return err
			}
			return writeSpanCountCSV(cmd.OutOrStdout(), res.SpanCounts)
		}

		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
		wirePath := filepath.Join(outDir, "wire_specs.csv")
		spanPath := filepath.Join(outDir, "span_counts.csv")
		if err := writeCSVFile(wirePath, func(f *os.File) error {
			return writeWireSpecCSV(f, res.WireSpecs)
		}); err != nil {
			return err
		}
		if err := writeCSVFile(spanPath, func(f *os.File) error {
			return writeSpanCountCSV(f, res.SpanCounts)
		}); err != nil {
			return err
		}
		logging.Info().
			Str("wire_specs", wirePath).
			Str("span_counts", spanPath).
			Msg("reports written")
		return nil
	},
}

func writeCSVFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func init() {
	runCmd.Flags().String("out", "", "directory for the two CSV reports (default stdout)")
	rootCmd.AddCommand(runCmd)
}
