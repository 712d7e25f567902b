package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTargetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "List targets with their ledger decision without fetching anything",
		RunE:  withInvocation(true, runTargets),
	}
	addHarvestFlags(cmd)
	cmd.Flags().Bool("json", false, "print one JSON object per target")
	cmd.Flags().Bool("pending", false, "only print targets that need work")
	return cmd
}

type targetRow struct {
	URL       string `json:"url"`
	AreaCode  string `json:"area_code"`
	GenreCode string `json:"genre_code"`
	NeedsWork bool   `json:"needs_work"`
	Retired   bool   `json:"retired,omitempty"`
	GetCount  int    `json:"get_count"`
	SkipCount int    `json:"skip_count"`
	Total     int    `json:"total_count"`
}

func runTargets(cmd *cobra.Command, rt *invocation) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	pendingOnly, _ := cmd.Flags().GetBool("pending")

	decisions, err := rt.app.Plan(cmd.Context())
	if err != nil {
		return fmt.Errorf("plan targets: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		for _, d := range decisions {
			if pendingOnly && !d.Progress.NeedsWork {
				continue
			}
			row := targetRow{
				URL:       d.Target.URL,
				AreaCode:  d.Target.AreaCode,
				GenreCode: d.Target.GenreCode,
				NeedsWork: d.Progress.NeedsWork,
				Retired:   d.Progress.Retired,
				GetCount:  d.Progress.GetCount,
				SkipCount: d.Progress.SkipCount,
				Total:     d.Progress.TotalCount,
			}
			if err := enc.Encode(row); err != nil {
				return fmt.Errorf("write target: %w", err)
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "URL\tAREA\tGENRE\tNEEDS_WORK\tGET\tSKIP\tTOTAL")
	pending := 0
	for _, d := range decisions {
		if d.Progress.NeedsWork {
			pending++
		} else if pendingOnly {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\t%d\t%d\n",
			d.Target.URL, d.Target.AreaCode, d.Target.GenreCode,
			d.Progress.NeedsWork, d.Progress.GetCount, d.Progress.SkipCount, d.Progress.TotalCount)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write targets: %w", err)
	}
	fmt.Fprintf(out, "%d targets, %d need work\n", len(decisions), pending)
	return nil
}
