package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"insight/internal/domain"
)

type MemoryDBSuite struct {
	suite.Suite
	ctx context.Context
	db  *MemoryDB
}

func TestMemoryDBSuite(t *testing.T) {
	suite.Run(t, new(MemoryDBSuite))
}

func (s *MemoryDBSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = NewMemoryDB()
}

func testEvent(id string, ts time.Time, source domain.Source) domain.Event {
	return domain.Event{ID: id, Source: source, Timestamp: ts, Actor: "alice", Text: "body"}
}

func (s *MemoryDBSuite) TestEventUpsertOverwrites() {
	events := s.db.Events()
	ts := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)

	s.Require().NoError(events.Upsert(s.ctx, testEvent("gmail:1", ts, domain.SourceEmail)))
	first, err := events.Get(s.ctx, "gmail:1")
	s.Require().NoError(err)

	updated := testEvent("gmail:1", ts, domain.SourceEmail)
	updated.Subject = "changed"
	s.Require().NoError(events.Upsert(s.ctx, updated))

	got, err := events.Get(s.ctx, "gmail:1")
	s.Require().NoError(err)
	s.Equal("changed", got.Subject)
	s.Equal(first.CreatedAt, got.CreatedAt)

	counts, err := events.Counts(s.ctx)
	s.Require().NoError(err)
	s.Equal(EventCounts{Total: 1, Email: 1}, counts)
}

func (s *MemoryDBSuite) TestListBetweenIsHalfOpen() {
	events := s.db.Events()
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)
	s.Require().NoError(events.Upsert(s.ctx, testEvent("at-start", start, domain.SourceEmail)))
	s.Require().NoError(events.Upsert(s.ctx, testEvent("inside", start.Add(time.Hour), domain.SourceMeeting)))
	s.Require().NoError(events.Upsert(s.ctx, testEvent("at-end", end, domain.SourceEmail)))

	got, err := events.ListBetween(s.ctx, start, end)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("at-start", got[0].ID)
	s.Equal("inside", got[1].ID)
}

func (s *MemoryDBSuite) TestSetEmbedding() {
	events := s.db.Events()
	s.ErrorIs(events.SetEmbedding(s.ctx, "missing", []float32{1}), ErrNotFound)

	s.Require().NoError(events.Upsert(s.ctx, testEvent("e", time.Now(), domain.SourceEmail)))
	vec := []float32{0.1, 0.2}
	s.Require().NoError(events.SetEmbedding(s.ctx, "e", vec))
	vec[0] = 9

	got, err := events.Get(s.ctx, "e")
	s.Require().NoError(err)
	s.Equal([]float32{0.1, 0.2}, got.Embedding)
}

func (s *MemoryDBSuite) TestLinksIgnoreDuplicates() {
	links := s.db.Links()
	topic := uuid.New()
	n, err := links.Insert(s.ctx, []domain.EventTopicLink{{EventID: "a", TopicID: topic}, {EventID: "b", TopicID: topic}})
	s.Require().NoError(err)
	s.Equal(2, n)

	n, err = links.Insert(s.ctx, []domain.EventTopicLink{{EventID: "a", TopicID: topic}})
	s.Require().NoError(err)
	s.Equal(0, n)

	got, err := links.ListForEvents(s.ctx, []string{"a"})
	s.Require().NoError(err)
	s.Len(got, 1)
}

func (s *MemoryDBSuite) TestTopicSaveKeepsCreatedAt() {
	topics := s.db.Topics()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t := domain.Topic{ID: uuid.New(), Centroid: []float32{1, 0}, PointCount: 3, CreatedAt: created}
	s.Require().NoError(topics.Save(s.ctx, []domain.Topic{t}))

	t.PointCount = 5
	t.CreatedAt = time.Now()
	s.Require().NoError(topics.Save(s.ctx, []domain.Topic{t}))

	got, err := topics.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(5, got[0].PointCount)
	s.Equal(created, got[0].CreatedAt)
}

func (s *MemoryDBSuite) TestBriefUpsertIsKeyedByWeek() {
	briefs := s.db.Briefs()
	week := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(briefs.Upsert(s.ctx, domain.WeeklyBrief{WeekStart: week, Markdown: "v1"}))
	s.Require().NoError(briefs.Upsert(s.ctx, domain.WeeklyBrief{WeekStart: week.Add(3 * time.Hour), Markdown: "v2"}))

	got, err := briefs.Get(s.ctx, week)
	s.Require().NoError(err)
	s.Equal("v2", got.Markdown)
	s.Len(s.db.briefs, 1)

	_, err = briefs.Get(s.ctx, week.AddDate(0, 0, 7))
	s.ErrorIs(err, ErrNotFound)
}

func (s *MemoryDBSuite) TestRunInTxRollsBack() {
	boom := errors.New("boom")
	topic := domain.Topic{ID: uuid.New(), PointCount: 1}

	err := s.db.RunInTx(s.ctx, func(ctx context.Context) error {
		s.Require().NoError(s.db.Topics().Save(ctx, []domain.Topic{topic}))
		_, err := s.db.Links().Insert(ctx, []domain.EventTopicLink{{EventID: "a", TopicID: topic.ID}})
		s.Require().NoError(err)
		return boom
	})
	s.ErrorIs(err, boom)

	topics, err := s.db.Topics().List(s.ctx)
	s.Require().NoError(err)
	s.Empty(topics)
	links, err := s.db.Links().ListForEvents(s.ctx, []string{"a"})
	s.Require().NoError(err)
	s.Empty(links)
}

func (s *MemoryDBSuite) TestRunInTxCommits() {
	topic := domain.Topic{ID: uuid.New(), PointCount: 1}
	err := s.db.RunInTx(s.ctx, func(ctx context.Context) error {
		return s.db.Topics().Save(ctx, []domain.Topic{topic})
	})
	s.Require().NoError(err)
	topics, err := s.db.Topics().List(s.ctx)
	s.Require().NoError(err)
	s.Len(topics, 1)
}
