package topics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"insight/internal/domain"
	"insight/internal/topics/cluster"
	dErrors "insight/pkg/domain-errors"
)

// =============================================================================
// Reconciler Test Suite
// =============================================================================
// Justification for unit tests: reconciliation is pure and its weighting,
// matching order and timestamp rules are invariants that a full pipeline run
// only observes indirectly.

type ReconcilerSuite struct {
	suite.Suite
	ctx        context.Context
	now        time.Time
	reconciler *Reconciler
}

func TestReconcilerSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerSuite))
}

func (s *ReconcilerSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	s.reconciler = NewReconciler(DefaultSimilarityThreshold)
}

func event(id string, ts time.Time, vec ...float32) domain.Event {
	return domain.Event{ID: id, Timestamp: ts, Embedding: vec}
}

// =============================================================================
// Match vs Create
// =============================================================================

func (s *ReconcilerSuite) TestMatchOrCreate() {
	day := s.now.Add(-48 * time.Hour)

	s.Run("similar cluster merges into existing topic", func() {
		existing := domain.Topic{
			ID:         uuid.New(),
			Centroid:   []float32{1, 0},
			PointCount: 4,
			CreatedAt:  s.now.Add(-30 * 24 * time.Hour),
			LastSeenAt: s.now.Add(-10 * 24 * time.Hour),
		}
		events := []domain.Event{
			event("a", day, 1, 0.1),
			event("b", day.Add(time.Hour), 1, 0),
			event("c", day.Add(2*time.Hour), 1, -0.1),
		}

		plan, err := s.reconciler.Reconcile(s.ctx, events, []int{0, 0, 0}, []domain.Topic{existing}, s.now)
		s.Require().NoError(err)

		s.Equal(1, plan.Matched)
		s.Equal(0, plan.Created)
		s.Require().Len(plan.Topics, 1)
		got := plan.Topics[0]
		s.Equal(existing.ID, got.ID)
		s.Equal(7, got.PointCount)
		s.Equal(existing.CreatedAt, got.CreatedAt)
		s.Equal(day.Add(2*time.Hour), got.LastSeenAt)
		s.Len(plan.Links, 3)
		for _, id := range []string{"a", "b", "c"} {
			s.Equal(existing.ID, plan.Assignments[id])
		}
	})

	s.Run("dissimilar cluster creates a topic", func() {
		existing := domain.Topic{ID: uuid.New(), Centroid: []float32{1, 0}, PointCount: 4}
		events := []domain.Event{
			event("a", day, 0, 1),
			event("b", day, 0.1, 1),
			event("c", day.Add(time.Hour), -0.1, 1),
		}

		plan, err := s.reconciler.Reconcile(s.ctx, events, []int{0, 0, 0}, []domain.Topic{existing}, s.now)
		s.Require().NoError(err)

		s.Equal(0, plan.Matched)
		s.Equal(1, plan.Created)
		s.Require().Len(plan.Topics, 1)
		created := plan.Topics[0]
		s.NotEqual(existing.ID, created.ID)
		s.Equal(3, created.PointCount)
		s.Equal(s.now, created.CreatedAt)
		s.Equal(day.Add(time.Hour), created.LastSeenAt)
		s.InDeltaSlice([]float32{0, 1}, created.Centroid, 1e-6)
	})

	s.Run("no existing topics creates one per cluster", func() {
		events := []domain.Event{
			event("a", day, 1, 0), event("b", day, 1, 0),
			event("c", day, 0, 1), event("d", day, 0, 1),
		}
		plan, err := s.reconciler.Reconcile(s.ctx, events, []int{0, 0, 1, 1}, nil, s.now)
		s.Require().NoError(err)
		s.Equal(2, plan.Created)
		s.Len(plan.Topics, 2)
		s.NotEqual(plan.Assignments["a"], plan.Assignments["c"])
	})

	s.Run("threshold is inclusive", func() {
		existing := domain.Topic{ID: uuid.New(), Centroid: []float32{1, 0}, PointCount: 1}
		r := NewReconciler(1.0)
		plan, err := r.Reconcile(s.ctx, []domain.Event{event("a", day, 2, 0)}, []int{0}, []domain.Topic{existing}, s.now)
		s.Require().NoError(err)
		s.Equal(1, plan.Matched)
	})
}

// =============================================================================
// Centroid Weighting
// =============================================================================
// Justification: the blended centroid must equal the mean of every vector
// ever merged into the topic, which requires weighting the incoming cluster
// by its member count.

func (s *ReconcilerSuite) TestCentroidWeighting() {
	existing := domain.Topic{ID: uuid.New(), Centroid: []float32{1, 0}, PointCount: 1}
	events := []domain.Event{
		event("a", s.now, 1, 0.2),
		event("b", s.now, 1, 0.2),
		event("c", s.now, 1, 0.2),
	}

	plan, err := s.reconciler.Reconcile(s.ctx, events, []int{0, 0, 0}, []domain.Topic{existing}, s.now)
	s.Require().NoError(err)
	s.Require().Equal(1, plan.Matched)

	// (1*[1,0] + 3*[1,0.2]) / 4
	s.InDeltaSlice([]float32{1, 0.15}, plan.Topics[0].Centroid, 1e-6)
	s.Equal(4, plan.Topics[0].PointCount)
}

func (s *ReconcilerSuite) TestExistingTopicsAreNotMutated() {
	existing := []domain.Topic{{ID: uuid.New(), Centroid: []float32{1, 0}, PointCount: 2}}
	_, err := s.reconciler.Reconcile(s.ctx, []domain.Event{event("a", s.now, 1, 0.2)}, []int{0}, existing, s.now)
	s.Require().NoError(err)
	s.Equal([]float32{1, 0}, existing[0].Centroid)
	s.Equal(2, existing[0].PointCount)
}

// =============================================================================
// Ordering and Non-exclusive Matching
// =============================================================================

func (s *ReconcilerSuite) TestTwoClustersCanMatchOneTopic() {
	existing := domain.Topic{ID: uuid.New(), Centroid: []float32{1, 0}, PointCount: 10}
	events := []domain.Event{
		event("a", s.now, 1, 0.05),
		event("b", s.now, 1, 0.05),
		event("c", s.now, 1, -0.05),
		event("d", s.now, 1, -0.05),
	}

	plan, err := s.reconciler.Reconcile(s.ctx, events, []int{1, 1, 0, 0}, []domain.Topic{existing}, s.now)
	s.Require().NoError(err)

	s.Equal(2, plan.Matched)
	s.Require().Len(plan.Topics, 1)
	s.Equal(14, plan.Topics[0].PointCount)
	s.Require().Len(plan.Decisions, 2)
	s.Equal(0, plan.Decisions[0].Label)
	s.Equal(1, plan.Decisions[1].Label)
}

func (s *ReconcilerSuite) TestTopicCreatedEarlierInRunIsMatchable() {
	events := []domain.Event{
		event("a", s.now, 0, 1),
		event("b", s.now, 0, 1),
		event("c", s.now, 0.01, 1),
	}
	plan, err := s.reconciler.Reconcile(s.ctx, events, []int{0, 0, 1}, nil, s.now)
	s.Require().NoError(err)

	s.Equal(1, plan.Created)
	s.Equal(1, plan.Matched)
	s.Require().Len(plan.Topics, 1)
	s.Equal(3, plan.Topics[0].PointCount)
}

func (s *ReconcilerSuite) TestNoiseIsNeverLinked() {
	events := []domain.Event{
		event("a", s.now, 1, 0),
		event("noise", s.now, 0, 1),
		event("b", s.now, 1, 0),
	}
	plan, err := s.reconciler.Reconcile(s.ctx, events, []int{0, cluster.Noise, 0}, nil, s.now)
	s.Require().NoError(err)

	s.Len(plan.Links, 2)
	_, linked := plan.Assignments["noise"]
	s.False(linked)
}

func (s *ReconcilerSuite) TestLastSeenNeverMovesBackwards() {
	recent := s.now.Add(-time.Hour)
	existing := domain.Topic{ID: uuid.New(), Centroid: []float32{1, 0}, PointCount: 3, LastSeenAt: recent}
	plan, err := s.reconciler.Reconcile(s.ctx,
		[]domain.Event{event("old", s.now.Add(-72*time.Hour), 1, 0)},
		[]int{0}, []domain.Topic{existing}, s.now)
	s.Require().NoError(err)
	s.Equal(recent, plan.Topics[0].LastSeenAt)
}

func (s *ReconcilerSuite) TestLabelCountMismatch() {
	_, err := s.reconciler.Reconcile(s.ctx, []domain.Event{event("a", s.now, 1)}, nil, nil, s.now)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantBroken))
}

func (s *ReconcilerSuite) TestDeterministicIDs() {
	var n int
	r := NewReconciler(0, WithIDGenerator(func() uuid.UUID {
		n++
		return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
	}))
	plan, err := r.Reconcile(s.ctx, []domain.Event{event("a", s.now, 1, 0), event("b", s.now, 0, 1)}, []int{0, 1}, nil, s.now)
	s.Require().NoError(err)
	s.Equal("00000000-0000-0000-0000-000000000001", plan.Assignments["a"].String())
	s.Equal("00000000-0000-0000-0000-000000000002", plan.Assignments["b"].String())
}
