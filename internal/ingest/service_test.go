package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"insight/internal/domain"
	"insight/internal/storage"
	dErrors "insight/pkg/domain-errors"
	"insight/pkg/platform/circuit"
)

// =============================================================================
// Ingest Service Test Suite
// =============================================================================
// Justification for unit tests: an embedding failure must never lose the
// event, and re-ingestion must overwrite rather than duplicate.

type stubEmbedder struct {
	vec   []float32
	err   error
	texts []string
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.texts = append(e.texts, text)
	return e.vec, e.err
}

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	db       *storage.MemoryDB
	embedder *stubEmbedder
	service  *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = storage.NewMemoryDB()
	s.embedder = &stubEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	s.service = NewService(s.db.Events(), s.db.Briefs(), WithEmbedder(s.embedder, time.Second))
}

func validEvent(id string) domain.Event {
	return domain.Event{
		ID:           id,
		Source:       domain.SourceEmail,
		Timestamp:    time.Date(2026, 3, 4, 9, 0, 0, 0, time.FixedZone("CET", 3600)),
		Actor:        "alice@example.com",
		Direction:    domain.DirectionInbound,
		Subject:      "Pricing",
		Text:         "Can we revisit pricing?",
		Decision:     domain.DecisionDeferred,
		UrgencyScore: 7,
		Sentiment:    domain.SentimentUnknown,
		RawRef:       "gmail:" + id,
	}
}

func (s *ServiceSuite) TestIngestEmbedsAndStores() {
	result, err := s.service.Ingest(s.ctx, validEvent("m1"))
	s.Require().NoError(err)
	s.Equal(Result{ID: "m1", Embedded: true}, result)
	s.Equal([]string{"Pricing Can we revisit pricing?"}, s.embedder.texts)

	stored, err := s.db.Events().Get(s.ctx, "m1")
	s.Require().NoError(err)
	s.Equal([]float32{0.1, 0.2, 0.3}, stored.Embedding)
	s.Equal(time.UTC, stored.Timestamp.Location())
}

func (s *ServiceSuite) TestEmbeddingFailureStillStores() {
	s.embedder.err = errors.New("ollama unreachable")

	result, err := s.service.Ingest(s.ctx, validEvent("m1"))
	s.Require().NoError(err)
	s.False(result.Embedded)

	stored, err := s.db.Events().Get(s.ctx, "m1")
	s.Require().NoError(err)
	s.False(stored.HasEmbedding())
}

func (s *ServiceSuite) TestReingestOverwrites() {
	_, err := s.service.Ingest(s.ctx, validEvent("m1"))
	s.Require().NoError(err)

	updated := validEvent("m1")
	updated.UrgencyScore = 2
	_, err = s.service.Ingest(s.ctx, updated)
	s.Require().NoError(err)

	stored, err := s.db.Events().Get(s.ctx, "m1")
	s.Require().NoError(err)
	s.Equal(2, stored.UrgencyScore)

	counts, err := s.service.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(storage.EventCounts{Total: 1, Email: 1}, counts)
}

func (s *ServiceSuite) TestInvalidEventRejected() {
	bad := validEvent("m1")
	bad.UrgencyScore = 11
	_, err := s.service.Ingest(s.ctx, bad)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Empty(s.embedder.texts)
}

func (s *ServiceSuite) TestWithoutEmbedder() {
	svc := NewService(s.db.Events(), s.db.Briefs())
	result, err := svc.Ingest(s.ctx, validEvent("m1"))
	s.Require().NoError(err)
	s.False(result.Embedded)
}

func (s *ServiceSuite) TestBriefLookup() {
	week := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.db.Briefs().Upsert(s.ctx, domain.WeeklyBrief{WeekStart: week, WeekEnd: week.AddDate(0, 0, 7), Markdown: "# brief"}))

	brief, err := s.service.Brief(s.ctx, week.Add(15*time.Hour))
	s.Require().NoError(err)
	s.Equal("# brief", brief.Markdown)

	_, err = s.service.Brief(s.ctx, week.AddDate(0, 0, 7))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestOpenBreakerSkipsEmbedding() {
	s.embedder.err = errors.New("ollama unreachable")
	svc := NewService(s.db.Events(), s.db.Briefs(),
		WithEmbedder(s.embedder, time.Second),
		WithBreaker(circuit.New("embedding", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))),
	)

	for _, id := range []string{"m1", "m2", "m3"} {
		_, err := svc.Ingest(s.ctx, validEvent(id))
		s.Require().NoError(err)
	}
	s.Len(s.embedder.texts, 2, "third call skipped while the breaker is open")

	counts, err := svc.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, counts.Total)
}
