package embed

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"insight/internal/domain"
	"insight/internal/platform/metrics"
)

const (
	DefaultBatchSize   = 32
	defaultConcurrency = 4
	defaultTimeout     = 2 * time.Minute
)

// EmbeddingWriter persists a generated vector for an event.
type EmbeddingWriter interface {
	SetEmbedding(ctx context.Context, id string, embedding []float32) error
}

// Backfiller generates vectors for events stored without one.
type Backfiller struct {
	embedder    Embedder
	store       EmbeddingWriter
	batchSize   int
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// BackfillOption configures a Backfiller.
type BackfillOption func(*Backfiller)

func WithBatchSize(n int) BackfillOption {
	return func(b *Backfiller) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

func WithConcurrency(n int) BackfillOption {
	return func(b *Backfiller) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithTimeout bounds the whole backfill.
func WithTimeout(d time.Duration) BackfillOption {
	return func(b *Backfiller) {
		if d > 0 {
			b.timeout = d
		}
	}
}

func WithBackfillLogger(logger *slog.Logger) BackfillOption {
	return func(b *Backfiller) { b.logger = logger }
}

func WithMetrics(m *metrics.Metrics) BackfillOption {
	return func(b *Backfiller) { b.metrics = m }
}

// NewBackfiller creates a Backfiller.
func NewBackfiller(embedder Embedder, store EmbeddingWriter, opts ...BackfillOption) *Backfiller {
	b := &Backfiller{
		embedder:    embedder,
		store:       store,
		batchSize:   DefaultBatchSize,
		concurrency: defaultConcurrency,
		timeout:     defaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Backfill returns a copy of events in which every event missing an
// embedding has one, where generation succeeded. A failed batch leaves its
// events unembedded; the run continues without them. A vector that was
// generated but could not be persisted is still returned for this run.
func (b *Backfiller) Backfill(ctx context.Context, events []domain.Event) ([]domain.Event, int) {
	out := make([]domain.Event, len(events))
	copy(out, events)

	var missing []int
	for i, e := range out {
		if !e.HasEmbedding() {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 || b.embedder == nil {
		return out, len(missing)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for start := 0; start < len(missing); start += b.batchSize {
		batch := missing[start:min(start+b.batchSize, len(missing))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for j, idx := range batch {
				texts[j] = out[idx].EmbeddingText()
			}

			vectors, err := b.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				failed.Add(int64(len(batch)))
				b.metrics.IncEmbedding("backfill", "error")
				b.logger.WarnContext(gctx, "embedding batch failed",
					"events", len(batch),
					"error", err,
				)
				return nil
			}
			b.metrics.IncEmbedding("backfill", "ok")

			for j, idx := range batch {
				out[idx].Embedding = vectors[j]
				if err := b.store.SetEmbedding(gctx, out[idx].ID, vectors[j]); err != nil {
					b.logger.WarnContext(gctx, "failed to persist embedding",
						"event_id", out[idx].ID,
						"error", err,
					)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(failed.Load())
	b.logger.InfoContext(ctx, "embedding backfill finished",
		"missing", len(missing),
		"failed", n,
	)
	return out, n
}
