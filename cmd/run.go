package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kilianp07/cnp-delivery/core/sim"
)

var (
	runAgents   int
	runPackages int
	runSeed     int64
	runJSON     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one simulation to completion and print a summary",
	RunE:  runHeadless,
}

func init() {
	runCmd.Flags().IntVar(&runAgents, "agents", 0, "number of agents (overrides config)")
	runCmd.Flags().IntVar(&runPackages, "packages", 0, "number of packages (overrides config)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "random seed (overrides config)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the summary as JSON")
	rootCmd.AddCommand(runCmd)
}

func runHeadless(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	svc, err := newService()
	if err != nil {
		return err
	}
	defer closeService(svc)

	cfg := svc.Config()
	if cmd.Flags().Changed("agents") {
		cfg.Simulation.NumAgents = runAgents
	}
	if cmd.Flags().Changed("packages") {
		cfg.Simulation.NumPackages = runPackages
	}
	if cmd.Flags().Changed("seed") {
		cfg.Simulation.Seed = runSeed
	}

	res, err := svc.RunOnce(ctx)
	if perr := printResult(cmd.OutOrStdout(), res, err, runJSON); perr != nil {
		return perr
	}
	if err != nil && !errors.Is(err, sim.ErrTickLimit) {
		return err
	}
	return nil
}

func printResult(w io.Writer, res sim.Result, runErr error, asJSON bool) error {
	if asJSON {
		out := struct {
			sim.Result
			Error string `json:"error,omitempty"`
		}{Result: res}
		if runErr != nil {
			out.Error = runErr.Error()
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	_, err := fmt.Fprintf(w, "run %s: %d/%d packages delivered in %d ticks\n", res.RunID, res.Delivered, res.Total, res.Ticks)
	if err == nil && runErr != nil {
		_, err = fmt.Fprintf(w, "ended early: %v\n", runErr)
	}
	return err
}
