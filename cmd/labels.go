package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PolloDK/FK01-Encuestas/internal/frame"
	"github.com/PolloDK/FK01-Encuestas/internal/source"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Manage weekly survey labels",
}

var labelsImportCmd = &cobra.Command{
	Use:   "import <csv>",
	Short: "Import survey publications (date,approval,disapproval)",
	Long: `Reads a CSV with columns date, approval and disapproval. The columns
fecha, aprobacion_boric and desaprobacion_boric are accepted as well. Values
may be shares in [0,1] or percentages. A report date already stored is
replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		labels, err := source.ParseLabels(f)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.db.UpsertLabels(cmd.Context(), labels); err != nil {
			return err
		}
		if len(labels) == 0 {
			fmt.Fprintf(os.Stderr, "[labels] No rows in %s\n", args[0])
			return nil
		}
		fmt.Fprintf(os.Stderr, "[labels] Imported %d report(s), %s to %s\n", len(labels),
			labels[0].ReportDate.Format(frame.DateLayout), labels[len(labels)-1].ReportDate.Format(frame.DateLayout))
		return nil
	},
}

func init() {
	labelsCmd.AddCommand(labelsImportCmd)
	rootCmd.AddCommand(labelsCmd)
}
