package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PolloDK/FK01-Encuestas/internal/db"
	"github.com/PolloDK/FK01-Encuestas/internal/frame"
	"github.com/PolloDK/FK01-Encuestas/internal/pipeline"
)

var (
	statusJSON bool
	statusRuns int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show record counts, label coverage and recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.db.Stats(ctx)
		if err != nil {
			return err
		}
		runs, err := a.db.RecentRuns(ctx, statusRuns)
		if err != nil {
			return err
		}

		if statusJSON {
			if runs == nil {
				runs = []db.Run{}
			}
			data, _ := json.MarshalIndent(struct {
				Stats *db.Stats `json:"stats"`
				Runs  []db.Run  `json:"runs"`
			}{stats, runs}, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Record store: %s\n", a.cfg.DBPath)
		fmt.Printf("  Raw posts:   %d (%d pending, %d processed, %d rejected)\n",
			stats.Raw, stats.Pending, stats.Processed, stats.Rejected)
		fmt.Printf("  Enriched:    %d\n", stats.Enriched)
		if stats.FirstDay != nil {
			fmt.Printf("  Days:        %s to %s\n", stats.FirstDay.Format(frame.DateLayout), stats.LastDay.Format(frame.DateLayout))
		}
		fmt.Printf("  Labels:      %d\n", stats.Labels)

		if len(runs) == 0 {
			fmt.Println("\nNo runs recorded yet.")
			return nil
		}
		fmt.Println("\nRecent runs:")
		for _, r := range runs {
			took := "running"
			if r.FinishedAt != nil {
				took = pipeline.FormatDurationShort(r.FinishedAt.Sub(r.StartedAt).Milliseconds())
			}
			fmt.Printf("  %s  %s  %-9s %s\n", shortID(r.ID), r.StartedAt.Format("2006-01-02 15:04"), r.Status, took)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	statusCmd.Flags().IntVar(&statusRuns, "runs", 5, "Number of recent runs to show")
	rootCmd.AddCommand(statusCmd)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
