package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PolloDK/FK01-Encuestas/internal/artifact"
	"github.com/PolloDK/FK01-Encuestas/internal/pipeline"
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Score the stored feature table with the configured models",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		store, err := a.artifacts(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		p := pipeline.New(a.db, store, nil, nil, a.predictor(), a.log, a.metrics)
		rows, paths, err := p.Predict(ctx)
		if err != nil {
			return err
		}
		for _, pr := range paths {
			if pr.Error != "" {
				fmt.Fprintf(os.Stderr, "[predict] %s: FAILED %s\n", pr.Target, pipeline.TruncateMiddle(pr.Error, 70))
				continue
			}
			fmt.Fprintf(os.Stderr, "[predict] %s: %d of %d eligible rows scored\n", pr.Target, pr.Scored, pr.Eligible)
		}
		if _, err := p.WriteIndicators(ctx, rows); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "[predict] Wrote %d row(s) to %s\n", len(rows), store.Location(artifact.Predictions))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(predictCmd)
}
