package db

import "time"

// Enrichment outcomes stamped on a raw record when it leaves the pending queue.
const (
	OutcomeEnriched = "enriched"
	OutcomeRejected = "rejected" // failed the cleaning policy; final, never retried
)

// SentimentLabel is the classifier's argmax class.
type SentimentLabel string

const (
	LabelNegative SentimentLabel = "Negative"
	LabelNeutral  SentimentLabel = "Neutral"
	LabelPositive SentimentLabel = "Positive"
)

// ArgmaxLabel returns the class with the highest score. Any tie for the
// top score resolves to Neutral.
func ArgmaxLabel(neg, neu, pos float64) SentimentLabel {
	switch {
	case neg > neu && neg > pos:
		return LabelNegative
	case pos > neu && pos > neg:
		return LabelPositive
	default:
		return LabelNeutral
	}
}

// Engagement holds the provider's non-negative interaction counters.
type Engagement struct {
	Retweets int64 `json:"retweet_count"`
	Replies  int64 `json:"reply_count"`
	Likes    int64 `json:"like_count"`
	Quotes   int64 `json:"quote_count"`
}

// RawRecord represents a row in the raw_records table
type RawRecord struct {
	ID         string     `json:"id"`
	AuthorID   string     `json:"author_id"`
	CreatedAt  time.Time  `json:"created_at"`
	Text       string     `json:"text"`
	Engagement Engagement `json:"engagement"`
	Processed  bool       `json:"processed"`
	Outcome    *string    `json:"outcome"` // nil while pending
}

// Sentiment is a classifier output: label plus (negative, neutral, positive) probabilities.
type Sentiment struct {
	Label    SentimentLabel `json:"label"`
	Negative float64        `json:"negative"`
	Neutral  float64        `json:"neutral"`
	Positive float64        `json:"positive"`
}

// NeutralSentiment is substituted when classification fails for an item.
func NeutralSentiment() Sentiment {
	return Sentiment{Label: LabelNeutral}
}

// EnrichedRecord represents a row in the enriched_records table
type EnrichedRecord struct {
	ID          string     `json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	CleanedText string     `json:"cleaned_text"`
	Sentiment   Sentiment  `json:"sentiment"`
	Embedding   []float32  `json:"-"`
	Engagement  Engagement `json:"engagement"`
}

// ChunkResult is everything the enrichment stage learned about one chunk of
// pending records. Every ID in Enriched or Rejected is flipped to processed.
type ChunkResult struct {
	Enriched []EnrichedRecord
	Rejected []string
}

// Label is one weekly survey publication.
type Label struct {
	ReportDate  time.Time `json:"report_date"`
	Approval    float64   `json:"approval"`
	Disapproval float64   `json:"disapproval"`
}

// ScalerParam is the persisted robust-scaler fit for one engagement counter.
type ScalerParam struct {
	Counter  string    `json:"counter"`
	Center   float64   `json:"center"`
	Scale    float64   `json:"scale"`
	FittedAt time.Time `json:"fitted_at"`
}

// Run represents a row in the pipeline_runs table
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Status     string     `json:"status"`
	Summary    *string    `json:"summary"` // JSON string
}

// Stats summarizes the record store.
type Stats struct {
	Raw       int        `json:"raw"`
	Pending   int        `json:"pending"`
	Processed int        `json:"processed"`
	Enriched  int        `json:"enriched"`
	Rejected  int        `json:"rejected"`
	Labels    int        `json:"labels"`
	FirstDay  *time.Time `json:"first_day"`
	LastDay   *time.Time `json:"last_day"`
}

func unixMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
