package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/PolloDK/FK01-Encuestas/internal/frame"
	"github.com/PolloDK/FK01-Encuestas/internal/source"
)

var (
	ingestFile  string
	ingestApify bool
	ingestFrom  string
	ingestTo    string
	ingestToday bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Append raw posts from a JSONL export or the Apify scraper",
	Long: `Appends posts to the record store. Posts whose id is already stored are
skipped, so re-ingesting an export is harmless.

--today collects the current UTC day and does nothing if the store already
has posts from it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (ingestFile == "") == !ingestApify {
			return fmt.Errorf("specify exactly one of --file <path> or --apify")
		}
		from, to, err := ingestRange()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var provider source.Provider
		if ingestFile != "" {
			provider = source.FileProvider{Path: ingestFile}
		} else {
			ac := a.cfg.Apify
			provider, err = source.NewApifyProvider(source.ApifyConfig{
				BaseURL:     ac.BaseURL,
				Actor:       ac.Actor,
				Token:       ac.Token,
				SearchTerms: ac.SearchTerms,
				MaxItems:    ac.MaxItems,
				Lang:        ac.Lang,
				Retry:       a.retryPolicy(),
			}, a.log, a.metrics)
			if err != nil {
				return err
			}
		}

		var rep source.IngestReport
		if ingestToday {
			rep, err = source.IngestDay(ctx, provider, a.db, time.Now().UTC())
		} else {
			rep, err = source.Ingest(ctx, provider, a.db, from, to)
		}
		if err != nil {
			return err
		}
		a.metrics.Ingested(rep.Inserted, rep.Duplicates)

		if rep.Skipped {
			fmt.Fprintf(os.Stderr, "[ingest] Posts for today already stored. Skipped.\n")
			return nil
		}
		fmt.Fprintf(os.Stderr, "[ingest] Fetched %d, inserted %d, duplicates %d\n",
			rep.Fetched, rep.Inserted, rep.Duplicates)
		return nil
	},
}

// ingestRange parses --from/--to as UTC days; --to is inclusive.
func ingestRange() (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if ingestFrom != "" {
		if from, err = time.Parse(frame.DateLayout, ingestFrom); err != nil {
			return from, to, fmt.Errorf("--from: %w", err)
		}
	}
	if ingestTo != "" {
		if to, err = time.Parse(frame.DateLayout, ingestTo); err != nil {
			return from, to, fmt.Errorf("--to: %w", err)
		}
		to = to.AddDate(0, 0, 1)
	}
	if ingestApify && !ingestToday && (from.IsZero() || to.IsZero()) {
		return from, to, fmt.Errorf("--apify needs --from and --to, or --today")
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return from, to, fmt.Errorf("--from must not be after --to")
	}
	return from, to, nil
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "JSONL export to import")
	ingestCmd.Flags().BoolVar(&ingestApify, "apify", false, "Collect posts with the Apify tweet scraper")
	ingestCmd.Flags().StringVar(&ingestFrom, "from", "", "First day to collect (YYYY-MM-DD, UTC)")
	ingestCmd.Flags().StringVar(&ingestTo, "to", "", "Last day to collect, inclusive (YYYY-MM-DD, UTC)")
	ingestCmd.Flags().BoolVar(&ingestToday, "today", false, "Collect today unless already stored")
	rootCmd.AddCommand(ingestCmd)
}
