package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest every target that still needs work",
		Long: `Walks the eligible targets in order. Each target is measured, compared with
its ledger row and, when items remain, paginated until exhausted or capped.
SIGINT or SIGTERM stops the run after the current item; the ledger keeps what
was collected.`,
		RunE: withInvocation(true, runHarvest),
	}
	addHarvestFlags(cmd)
	cmd.Flags().Int("max-pages", 0, "override harvest.max_pages")
	return cmd
}

func addHarvestFlags(cmd *cobra.Command) {
	cmd.Flags().Int("min-priority", 0, "override harvest.min_priority")
	cmd.Flags().Int("limit", 0, "override harvest.limit_targets (0 = all)")
}

func runHarvest(cmd *cobra.Command, rt *invocation) error {
	summary, err := rt.app.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run harvest: %w", err)
	}
	if summary.Interrupted {
		rt.logger.Warn("run interrupted; rerun to resume", zap.String("run_id", summary.RunID))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
