package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/PolloDK/FK01-Encuestas/internal/pipeline"
)

var (
	runRefitScaler bool
	runJSON        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run enrich, features, predict and indicators, then write the summary",
	Long: `Runs the whole daily pipeline once. A failing stage is reported and the
stages after it skip what they cannot do. The command fails only when the
record store cannot be read while posts are pending, when the daily date
index is corrupt, or when interrupted.

Each run is recorded with its summary; see "encuestas status".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		p, cleanup, err := a.pipeline(ctx, runRefitScaler)
		if err != nil {
			return err
		}
		defer cleanup()

		rep, err := p.Run(ctx)
		if rep != nil {
			pipeline.PrintSummary(summaryWriter(), rep, runJSON)
		}
		return err
	},
}

// summaryWriter sends JSON to stdout for piping and the human summary to stderr.
func summaryWriter() *os.File {
	if runJSON {
		return os.Stdout
	}
	return os.Stderr
}

func init() {
	runCmd.Flags().BoolVar(&runRefitScaler, "refit-scaler", false, "Refit the engagement scaler before building features")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the run summary as JSON on stdout")
	rootCmd.AddCommand(runCmd)
}
