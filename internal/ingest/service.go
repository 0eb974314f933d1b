// Package ingest accepts canonical events from upstream collectors, embeds
// them and stores them.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"insight/internal/domain"
	"insight/internal/platform/metrics"
	"insight/internal/storage"
	dErrors "insight/pkg/domain-errors"
	"insight/pkg/platform/circuit"
	"insight/pkg/requestcontext"
)

// Embedder generates the vector stored alongside an event.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result reports what happened to one ingested event.
type Result struct {
	ID       string
	Embedded bool
}

// Service validates, embeds and upserts events.
type Service struct {
	events       storage.EventStore
	briefs       storage.BriefStore
	embedder     Embedder
	embedTimeout time.Duration
	breaker      *circuit.Breaker
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Service)

func WithEmbedder(e Embedder, timeout time.Duration) Option {
	return func(s *Service) {
		s.embedder = e
		if timeout > 0 {
			s.embedTimeout = timeout
		}
	}
}

// WithBreaker replaces the default embedding circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) { s.breaker = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(events storage.EventStore, briefs storage.BriefStore, opts ...Option) *Service {
	s := &Service{
		events:       events,
		briefs:       briefs,
		embedTimeout: 30 * time.Second,
		breaker:      circuit.New("embedding", circuit.WithFailureThreshold(5), circuit.WithCooldown(time.Minute)),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest stores event, overwriting any earlier version with the same id.
// An embedding failure is logged and the event is stored without a vector;
// the weekly run backfills it. While the embedding breaker is open the call
// is skipped altogether.
func (s *Service) Ingest(ctx context.Context, event domain.Event) (Result, error) {
	if err := event.Validate(); err != nil {
		return Result{}, err
	}
	event.Timestamp = event.Timestamp.UTC()
	event.Embedding = nil

	if s.embedder != nil {
		event.Embedding = s.embed(ctx, event)
	}

	if err := s.events.Upsert(ctx, event); err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store event")
	}
	s.metrics.IncIngested(string(event.Source))
	return Result{ID: event.ID, Embedded: event.HasEmbedding()}, nil
}

// Stats returns stored event counts by source.
func (s *Service) Stats(ctx context.Context) (storage.EventCounts, error) {
	counts, err := s.events.Counts(ctx)
	if err != nil {
		return storage.EventCounts{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count events")
	}
	return counts, nil
}

// Brief returns the stored brief for the week starting on weekStart.
func (s *Service) Brief(ctx context.Context, weekStart time.Time) (domain.WeeklyBrief, error) {
	brief, err := s.briefs.Get(ctx, storage.WeekKey(weekStart))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.WeeklyBrief{}, dErrors.New(dErrors.CodeNotFound,
				fmt.Sprintf("no brief for week starting %s", weekStart.Format("2006-01-02")))
		}
		return domain.WeeklyBrief{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load brief")
	}
	return brief, nil
}

func (s *Service) embed(ctx context.Context, event domain.Event) []float32 {
	if !s.breaker.Allow() {
		s.metrics.IncEmbedding("ingest", "skipped")
		return nil
	}

	ectx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	vec, err := s.embedder.Embed(ectx, event.EmbeddingText())
	cancel()
	if err != nil {
		s.metrics.IncEmbedding("ingest", "error")
		_, change := s.breaker.RecordFailure()
		s.logger.WarnContext(ctx, "embedding failed, storing event without vector",
			"event_id", event.ID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		if change.Opened {
			s.logger.ErrorContext(ctx, "embedding circuit opened, skipping embedding until cooldown",
				"breaker", s.breaker.Name(),
			)
		}
		return nil
	}

	s.metrics.IncEmbedding("ingest", "ok")
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "embedding circuit closed", "breaker", s.breaker.Name())
	}
	return vec
}
