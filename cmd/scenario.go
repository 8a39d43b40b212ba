package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/cnp-delivery/infra/logger"
	"github.com/kilianp07/cnp-delivery/qa/scenarios"
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario <file>...",
	Short: "Run scenario files and check their expected outcome",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScenarios,
}

func init() {
	rootCmd.AddCommand(scenarioCmd)
}

func runScenarios(cmd *cobra.Command, args []string) error {
	log := logger.New("scenario")
	failed := 0
	for _, path := range args {
		sc, err := scenarios.Load(path)
		if err != nil {
			return err
		}
		out, err := scenarios.Run(cmd.Context(), sc, log)
		if err != nil {
			return err
		}
		status := "PASS"
		if verr := scenarios.Verify(sc, out); verr != nil {
			status = "FAIL"
			failed++
			log.Errorf("%v", verr)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d/%d delivered, %d ticks)\n",
			status, sc.Name, out.Result.Delivered, out.Result.Total, out.Result.Ticks)
	}
	if failed > 0 {
		return fmt.Errorf("%d scenario(s) failed", failed)
	}
	return nil
}
