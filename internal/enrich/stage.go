package enrich

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PolloDK/FK01-Encuestas/internal/db"
	"github.com/PolloDK/FK01-Encuestas/internal/logger"
	"github.com/PolloDK/FK01-Encuestas/internal/telemetry"
	"github.com/PolloDK/FK01-Encuestas/internal/textclean"
)

// Default batching policy.
const (
	DefaultChunkSize  = 5000
	DefaultMinPending = 500
	DefaultWorkers    = 4
)

// Store is the slice of the record store the stage needs.
type Store interface {
	CountPending(ctx context.Context) (int, error)
	PendingRecords(ctx context.Context, limit int) ([]db.RawRecord, error)
	CommitChunk(ctx context.Context, chunk db.ChunkResult) error
}

type Options struct {
	ChunkSize  int
	MinPending int
	Workers    int
	Dimensions int
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.MinPending < 0 {
		o.MinPending = 0
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Dimensions <= 0 {
		o.Dimensions = DefaultDimensions
	}
	return o
}

// Status is the outcome of one Run.
type Status string

const (
	StatusOK        Status = "ok"
	StatusNoop      Status = "noop"      // nothing pending
	StatusSkipped   Status = "skipped"   // below the minimum pending threshold
	StatusCancelled Status = "cancelled" // stopped between or inside chunks
)

// Report counts what a Run did. Only committed chunks are counted.
type Report struct {
	Status               Status        `json:"status"`
	Pending              int           `json:"pending"`
	Chunks               int           `json:"chunks"`
	Enriched             int           `json:"enriched"`
	Rejected             int           `json:"rejected"`
	SubstitutedSentiment int           `json:"substituted_sentiment"`
	SubstitutedEmbedding int           `json:"substituted_embedding"`
	Duration             time.Duration `json:"duration"`
}

// Stage consumes pending records in chunks and commits each chunk atomically.
type Stage struct {
	store   Store
	cleaner *textclean.Cleaner
	backend Backend
	opts    Options
	log     *logger.Logger
	metrics *telemetry.Metrics
}

func NewStage(store Store, cleaner *textclean.Cleaner, backend Backend, opts Options, log *logger.Logger, metrics *telemetry.Metrics) *Stage {
	if log == nil {
		log = logger.Nop()
	}
	return &Stage{
		store:   store,
		cleaner: cleaner,
		backend: backend,
		opts:    opts.withDefaults(),
		log:     log.With("stage", "enrich"),
		metrics: metrics,
	}
}

// Run enriches everything pending at call time. On cancellation the chunk in
// flight is discarded and ctx.Err() is returned with a cancelled report;
// chunks committed before that stay committed.
func (s *Stage) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	rep := Report{Status: StatusOK}
	defer func() { rep.Duration = time.Since(start) }()

	pending, err := s.store.CountPending(ctx)
	if err != nil {
		return rep, fmt.Errorf("counting pending records: %w", err)
	}
	rep.Pending = pending
	s.metrics.Pending(pending)

	if pending == 0 {
		rep.Status = StatusNoop
		s.log.Info("No pending records")
		return rep, nil
	}
	if pending < s.opts.MinPending {
		rep.Status = StatusSkipped
		s.log.Info("Pending below threshold, skipping", "pending", pending, "min_pending", s.opts.MinPending)
		return rep, nil
	}

	// Bounded by the count observed at start so the loop always terminates.
	remaining := pending
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			rep.Status = StatusCancelled
			return rep, err
		}

		limit := s.opts.ChunkSize
		if remaining < limit {
			limit = remaining
		}
		records, err := s.store.PendingRecords(ctx, limit)
		if err != nil {
			return rep, fmt.Errorf("loading pending chunk: %w", err)
		}
		if len(records) == 0 {
			break
		}

		chunk, subs, err := s.processChunk(ctx, records)
		if err != nil {
			rep.Status = StatusCancelled
			s.log.Warn("Chunk discarded", "records", len(records), "error", err.Error())
			return rep, err
		}
		if err := s.store.CommitChunk(ctx, chunk); err != nil {
			return rep, fmt.Errorf("committing chunk: %w", err)
		}

		rep.Chunks++
		rep.Enriched += len(chunk.Enriched)
		rep.Rejected += len(chunk.Rejected)
		rep.SubstitutedSentiment += subs.sentiment
		rep.SubstitutedEmbedding += subs.embedding
		remaining -= len(records)
		s.metrics.ChunkCommitted(len(chunk.Enriched), len(chunk.Rejected))
		s.log.Info("Chunk committed",
			"chunk", rep.Chunks,
			"enriched", len(chunk.Enriched),
			"rejected", len(chunk.Rejected),
			"remaining", remaining,
		)
	}
	return rep, nil
}

type substitutions struct {
	sentiment int
	embedding int
}

// processChunk cleans every record and calls the backend for accepted ones.
// Backend failures are substituted per item; only cancellation aborts.
func (s *Stage) processChunk(ctx context.Context, records []db.RawRecord) (db.ChunkResult, substitutions, error) {
	var result db.ChunkResult

	type job struct {
		raw     db.RawRecord
		cleaned string
	}
	var jobs []job
	for _, r := range records {
		cleaned, ok := s.cleaner.Clean(r.Text)
		if !ok {
			result.Rejected = append(result.Rejected, r.ID)
			continue
		}
		jobs = append(jobs, job{raw: r, cleaned: cleaned})
	}

	out := make([]db.EnrichedRecord, len(jobs))
	var subSent, subEmb atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			sent, err := s.backend.Classify(gctx, j.cleaned)
			if err != nil {
				if cerr := gctx.Err(); cerr != nil {
					return cerr
				}
				s.log.Debug("Classification failed, using neutral", "id", j.raw.ID, "error", err.Error())
				s.metrics.Substituted("classify")
				subSent.Add(1)
				sent = db.NeutralSentiment()
			}

			vec, err := s.backend.Embed(gctx, j.cleaned)
			if err != nil {
				if cerr := gctx.Err(); cerr != nil {
					return cerr
				}
				s.log.Debug("Embedding failed, using zero vector", "id", j.raw.ID, "error", err.Error())
				s.metrics.Substituted("embed")
				subEmb.Add(1)
				vec = make([]float32, s.opts.Dimensions)
			}

			out[i] = db.EnrichedRecord{
				ID:          j.raw.ID,
				CreatedAt:   j.raw.CreatedAt,
				CleanedText: j.cleaned,
				Sentiment:   sent,
				Embedding:   vec,
				Engagement:  j.raw.Engagement,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return db.ChunkResult{}, substitutions{}, err
	}
	// A cancellation that raced the last worker still discards the chunk.
	if err := ctx.Err(); err != nil {
		return db.ChunkResult{}, substitutions{}, err
	}

	result.Enriched = out
	return result, substitutions{sentiment: int(subSent.Load()), embedding: int(subEmb.Load())}, nil
}
