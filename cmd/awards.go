package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/cnp-delivery/config"
	"github.com/kilianp07/cnp-delivery/core/awardlog"
	"github.com/kilianp07/cnp-delivery/core/model"
	"github.com/kilianp07/cnp-delivery/pkg/export"
)

var (
	awardsRun    string
	awardsAgent  int
	awardsFormat string
)

var awardsCmd = &cobra.Command{
	Use:   "awards",
	Short: "Export recorded awards from the award log",
	RunE:  exportAwards,
}

func init() {
	awardsCmd.Flags().StringVar(&awardsRun, "run", "", "only awards of this run id")
	awardsCmd.Flags().IntVar(&awardsAgent, "agent", 0, "only awards won by this agent id")
	awardsCmd.Flags().StringVar(&awardsFormat, "format", "csv", "output format: csv or json")
	rootCmd.AddCommand(awardsCmd)
}

func exportAwards(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.AwardLog.Backend == "none" {
		return fmt.Errorf("award log disabled: set award_log.backend to jsonl or sqlite")
	}
	store, err := awardlog.Open(cfg.AwardLog)
	if err != nil {
		return err
	}
	defer store.Close()

	q := awardlog.Query{RunID: awardsRun}
	if awardsAgent > 0 {
		id := model.AgentID(awardsAgent)
		q.AgentID = &id
	}
	recs, err := store.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	switch awardsFormat {
	case "csv":
		return export.WriteCSV(cmd.OutOrStdout(), recs)
	case "json":
		return export.WriteJSON(cmd.OutOrStdout(), recs)
	default:
		return fmt.Errorf("unknown format %q", awardsFormat)
	}
}
