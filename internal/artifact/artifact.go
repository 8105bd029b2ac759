// Package artifact persists the pipeline's tabular outputs on the local
// filesystem or in a GCS bucket.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/PolloDK/FK01-Encuestas/internal/frame"
)

// Logical artifact names.
const (
	DailyAggregates = "daily_aggregates.csv"
	Features        = "features.csv"
	Predictions     = "predictions.csv"
	Indicators      = "indicators.csv"
	RunSummary      = "run_summary.md"
)

// ErrNotFound is returned when an artifact has never been written.
var ErrNotFound = errors.New("artifact not found")

// Store reads and replaces whole artifacts. Put must be atomic: readers see
// either the previous or the new content, never a partial write.
type Store interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
	// Location describes where name lives, for logs and reports.
	Location(name string) string
	Close() error
}

// ReadFrame loads a CSV artifact. A missing artifact yields ErrNotFound.
func ReadFrame(ctx context.Context, s Store, name string) (*frame.Frame, error) {
	data, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	f, err := frame.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return f, nil
}

// WriteFrame replaces a CSV artifact with f.
func WriteFrame(ctx context.Context, s Store, name string, f *frame.Frame) error {
	var buf bytes.Buffer
	if err := f.WriteCSV(&buf); err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	return s.Put(ctx, name, buf.Bytes())
}

// MergeFrame reads the current artifact (if any), replaces the rows whose
// dates appear in fresh, and writes the whole artifact back.
func MergeFrame(ctx context.Context, s Store, name string, fresh *frame.Frame) (*frame.Frame, error) {
	existing, err := ReadFrame(ctx, s, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	merged := frame.MergeByDate(existing, fresh)
	if err := WriteFrame(ctx, s, name, merged); err != nil {
		return nil, err
	}
	return merged, nil
}
