package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PolloDK/FK01-Encuestas/internal/db"
	"github.com/PolloDK/FK01-Encuestas/internal/httpx"
	"github.com/PolloDK/FK01-Encuestas/internal/logger"
	"github.com/PolloDK/FK01-Encuestas/internal/telemetry"
)

type ApifyConfig struct {
	BaseURL     string
	Actor       string
	Token       string
	SearchTerms []string
	MaxItems    int
	Lang        string
	Timeout     time.Duration
	Retry       httpx.Policy
}

// ApifyProvider runs the tweet-scraper actor synchronously and reads its
// dataset items in one call.
type ApifyProvider struct {
	cfg    ApifyConfig
	client *httpx.Client
	log    *logger.Logger
}

func NewApifyProvider(cfg ApifyConfig, log *logger.Logger, metrics *telemetry.Metrics) (*ApifyProvider, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("apify token is required (set APIFY_TOKEN)")
	}
	if cfg.Actor == "" || len(cfg.SearchTerms) == 0 {
		return nil, fmt.Errorf("apify actor and search terms are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.apify.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("provider", "apify")

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.Token)
	return &ApifyProvider{
		cfg: cfg,
		log: log,
		client: &httpx.Client{
			HTTP:   &http.Client{Timeout: cfg.Timeout},
			Policy: cfg.Retry,
			Header: header,
			OnRetry: func(err error, wait time.Duration) {
				metrics.Retry("apify")
				log.Warn("Apify call failed, retrying", "error", err.Error(), "wait", wait.String())
			},
		},
	}, nil
}

// runInput builds the actor input. The search operators take UTC day bounds.
func (a *ApifyProvider) runInput(from, to time.Time) map[string]any {
	since := from.UTC().Format("2006-01-02_15:04:05_UTC")
	until := to.UTC().Format("2006-01-02_15:04:05_UTC")
	terms := make([]string, len(a.cfg.SearchTerms))
	for i, t := range a.cfg.SearchTerms {
		terms[i] = fmt.Sprintf("%s since:%s until:%s", t, since, until)
	}
	return map[string]any{
		"searchTerms":     terms,
		"maxItems":        a.cfg.MaxItems,
		"queryType":       "Latest",
		"lang":            a.cfg.Lang,
		"filter:verified": false,
		"filter:replies":  false,
		"filter:quote":    false,
	}
}

func (a *ApifyProvider) Fetch(ctx context.Context, from, to time.Time) ([]db.RawRecord, error) {
	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?format=json",
		strings.TrimRight(a.cfg.BaseURL, "/"), url.PathEscape(a.cfg.Actor))

	var items []item
	if err := a.client.DoJSON(ctx, http.MethodPost, endpoint, a.runInput(from, to), &items); err != nil {
		return nil, fmt.Errorf("running apify actor: %w", err)
	}

	records := make([]db.RawRecord, 0, len(items))
	for _, it := range items {
		r, err := it.record()
		if err != nil {
			a.log.Warn("Skipping malformed item", "error", err.Error())
			continue
		}
		records = append(records, r)
	}
	records = inRange(records, from, to)
	a.log.Info("Fetched posts", "items", len(items), "kept", len(records))
	return records, nil
}
