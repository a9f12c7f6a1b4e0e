// Package cmd implements the spanqc command line interface.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/utiliqc/spanqc"
	"github.com/utiliqc/spanqc/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "spanqc",
	Short: "Reconcile a pole survey against design files and GIS line layers",
	Long: `spanqc cross-checks three independent descriptions of an overhead pole
network: the field survey workbook, the per-pole PPLX design files, and
the GIS line-layer shapefiles. It reports, per connection, whether the
recorded wire specs and span counts agree.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; flags and SPANQC_* env vars win over it.
		_ = godotenv.Load()

		switch {
		case viper.GetBool("quiet"):
			zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		case viper.GetBool("verbose"):
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		return nil
	},
}

// Execute runs the CLI with a signal-aware context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Err(err).Msg("command failed")
		return err
	}
	return nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "job config YAML file")
	pf.StringP("workbook", "w", "", "survey workbook (.xlsx)")
	pf.StringP("designs", "d", "", "directory of per-pole PPLX design files")
	pf.StringP("shapes", "s", "", "directory of line layer shapefiles")
	pf.String("heights", "", "midspan heights workbook (.xlsx), bounds comm counts")
	pf.Int("workers", 0, "design preload workers (default min(8, CPUs))")
	pf.BoolP("verbose", "v", false, "debug logging")
	pf.BoolP("quiet", "q", false, "errors only")

	viper.SetEnvPrefix("SPANQC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	cobra.CheckErr(viper.BindPFlags(pf))
}

// newEngine builds an Engine from the resolved flag/env configuration.
func newEngine() (*spanqc.Engine, error) {
	opts := []spanqc.Option{
		spanqc.WithWorkbook(viper.GetString("workbook")),
	}
	if v := viper.GetString("config"); v != "" {
		opts = append(opts, spanqc.WithConfigFile(v))
	}
	if v := viper.GetString("designs"); v != "" {
		opts = append(opts, spanqc.WithDesignDir(v))
	}
	if v := viper.GetString("shapes"); v != "" {
		opts = append(opts, spanqc.WithShapeDir(v))
	}
	if v := viper.GetString("heights"); v != "" {
		opts = append(opts, spanqc.WithMidspanHeights(v))
	}
	if v := viper.GetInt("workers"); v > 0 {
		opts = append(opts, spanqc.WithWorkers(v))
	}
	return spanqc.New(opts...)
}
