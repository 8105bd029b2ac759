package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PolloDK/FK01-Encuestas/internal/pipeline"
)

var (
	enrichChunkSize  int
	enrichMinPending int
	enrichWorkers    int
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Clean, classify and embed pending posts in committed chunks",
	Long: `Processes every post pending at start in chunks. Each chunk is committed
in one transaction; interrupting the command discards only the chunk in
flight. Runs are skipped while fewer than --min-pending posts wait.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if cmd.Flags().Changed("chunk-size") {
			a.cfg.Enrich.ChunkSize = enrichChunkSize
		}
		if cmd.Flags().Changed("min-pending") {
			a.cfg.Enrich.MinPending = enrichMinPending
		}
		if cmd.Flags().Changed("workers") {
			a.cfg.Enrich.Workers = enrichWorkers
		}

		backend, err := a.backend()
		if err != nil {
			return err
		}
		defer backend.Close()

		rep, err := a.enrichStage(backend).Run(ctx)
		fmt.Fprintf(os.Stderr, "[enrich] %s: pending %d, chunks %d, enriched %d, rejected %d, substituted %d/%d in %s\n",
			rep.Status, rep.Pending, rep.Chunks, rep.Enriched, rep.Rejected,
			rep.SubstitutedSentiment, rep.SubstitutedEmbedding,
			pipeline.FormatDurationShort(rep.Duration.Milliseconds()))
		return err
	},
}

func init() {
	enrichCmd.Flags().IntVar(&enrichChunkSize, "chunk-size", 5000, "Records per committed chunk")
	enrichCmd.Flags().IntVar(&enrichMinPending, "min-pending", 500, "Skip when fewer records are pending (0 disables)")
	enrichCmd.Flags().IntVar(&enrichWorkers, "workers", 4, "Concurrent backend calls per chunk")
	rootCmd.AddCommand(enrichCmd)
}
