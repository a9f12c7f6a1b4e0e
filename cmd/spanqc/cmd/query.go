package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Look up the line feature nearest a point or segment",
	Long: `query projects one WGS84 point (or the segment between two) into the
primary layer's coordinate system and prints the best-matching feature's
attributes, for spot-checking the layer against field observations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, _ := cmd.Flags().GetFloat64("lat")
		lon, _ := cmd.Flags().GetFloat64("lon")
		lat2, _ := cmd.Flags().GetFloat64("lat2")
		lon2, _ := cmd.Flags().GetFloat64("lon2")
		if !cmd.Flags().Changed("lat2") {
			lat2, lon2 = lat, lon
		}

		eng, err := newEngine()
		if err != nil {
			return err
		}
		m, err := eng.Query(cmd.Context(), lat, lon, lat2, lon2)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !m.OK {
			fmt.Fprintln(out, "no matching feature")
			return nil
		}
		fmt.Fprintf(out, "feature:     %d\n", m.Feature)
		fmt.Fprintf(out, "master:      %s\n", m.Attrs.Master)
		fmt.Fprintf(out, "neutral:     %s\n", m.Attrs.Neutral)
		fmt.Fprintf(out, "orientation: %s\n", m.Attrs.Orientation)
		fmt.Fprintf(out, "run type:    %s\n", m.Attrs.RunType)
		fmt.Fprintf(out, "distance:    %.1f / %.1f layer units\n", m.Dist1, m.Dist2)
		return nil
	},
}

func init() {
	queryCmd.Flags().Float64("lat", 0, "point latitude (WGS84)")
	queryCmd.Flags().Float64("lon", 0, "point longitude (WGS84)")
	queryCmd.Flags().Float64("lat2", 0, "optional second point latitude")
	queryCmd.Flags().Float64("lon2", 0, "optional second point longitude")
	cobra.CheckErr(queryCmd.MarkFlagRequired("lat"))
	cobra.CheckErr(queryCmd.MarkFlagRequired("lon"))
	rootCmd.AddCommand(queryCmd)
}
