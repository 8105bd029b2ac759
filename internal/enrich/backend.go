// Package enrich turns pending raw records into enriched records: cleaned
// text, sentiment probabilities and a fixed-length embedding.
package enrich

import (
	"context"
	"fmt"
	"math"

	"github.com/PolloDK/FK01-Encuestas/internal/db"
)

// DefaultDimensions is the embedding length every backend must return.
const DefaultDimensions = 768

// Backend is the sentiment/embedding service. Implementations own their
// connections and release them in Close.
type Backend interface {
	Classify(ctx context.Context, text string) (db.Sentiment, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	Close() error
}

// normalizeSentiment validates raw class probabilities, renormalizes them to
// sum to 1 and derives the argmax label. Ties resolve to Neutral.
func normalizeSentiment(neg, neu, pos float64) (db.Sentiment, error) {
	for _, p := range []float64{neg, neu, pos} {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return db.Sentiment{}, fmt.Errorf("invalid sentiment probability %v", p)
		}
	}
	sum := neg + neu + pos
	if sum <= 0 {
		return db.Sentiment{}, fmt.Errorf("sentiment probabilities sum to %v", sum)
	}
	s := db.Sentiment{Negative: neg / sum, Neutral: neu / sum, Positive: pos / sum}
	s.Label = db.ArgmaxLabel(s.Negative, s.Neutral, s.Positive)
	return s, nil
}

func checkDimensions(v []float32, dims int) error {
	if len(v) != dims {
		return fmt.Errorf("embedding has %d dimensions, want %d", len(v), dims)
	}
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return fmt.Errorf("embedding dimension %d is not finite", i)
		}
	}
	return nil
}
