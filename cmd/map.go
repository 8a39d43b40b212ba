package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/cnp-delivery/config"
	"github.com/kilianp07/cnp-delivery/core/roadmap"
)

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Print statistics about the configured region",
	RunE:  describeMap,
}

func init() {
	rootCmd.AddCommand(mapCmd)
}

func describeMap(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	g, err := roadmap.Open(cfg.Map, cfg.Simulation.Seed)
	if err != nil {
		return err
	}
	info, err := roadmap.Describe(g)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	_, err = fmt.Fprintf(w, "region:  %s\nnodes:   %d\nedges:   %d\ncenter:  %.6f, %.6f\nbounds:  N %.6f  S %.6f  E %.6f  W %.6f\n",
		cfg.Map.Region, info.Nodes, g.Edges(),
		info.Center.Lat, info.Center.Lng,
		info.Bounds.North, info.Bounds.South, info.Bounds.East, info.Bounds.West)
	return err
}
