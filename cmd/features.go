package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PolloDK/FK01-Encuestas/internal/artifact"
	"github.com/PolloDK/FK01-Encuestas/internal/frame"
)

var featuresRefitScaler bool

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Rebuild daily aggregates and the feature table",
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

		_, rep, err := a.featureStage(store, featuresRefitScaler).Run(ctx)
		if err != nil {
			return err
		}
		if rep.Skipped {
			fmt.Fprintf(os.Stderr, "[features] No enriched records yet. Nothing to build.\n")
			return nil
		}
		fmt.Fprintf(os.Stderr, "[features] %d records over %d days (%s to %s), %d filled, %d labeled\n",
			rep.Records, rep.Days, rep.FirstDay.Format(frame.DateLayout), rep.LastDay.Format(frame.DateLayout),
			rep.FilledDays, rep.LabeledDays)
		if rep.ScalerFit {
			fmt.Fprintf(os.Stderr, "[features] Engagement scaler fitted and stored\n")
		}
		fmt.Fprintf(os.Stderr, "[features] Wrote %s\n", store.Location(artifact.Features))
		return nil
	},
}

func init() {
	featuresCmd.Flags().BoolVar(&featuresRefitScaler, "refit-scaler", false, "Refit the engagement scaler on all stored records")
	rootCmd.AddCommand(featuresCmd)
}
