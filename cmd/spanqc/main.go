// Command spanqc reconciles a surveyed pole network against per-pole
// design files and a GIS line layer, reporting wire-spec and span-count
// disagreements as CSV.
package main

import (
	"os"

	"github.com/utiliqc/spanqc/cmd/spanqc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
