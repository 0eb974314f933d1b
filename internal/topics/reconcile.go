// Package topics maintains the persistent topic set: it clusters a window's
// embedded events and reconciles the clusters against previously known
// topics by centroid similarity.
package topics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"insight/internal/domain"
	"insight/internal/topics/cluster"
	"insight/internal/vector"
	dErrors "insight/pkg/domain-errors"
)

// DefaultSimilarityThreshold is the minimum cosine similarity for a cluster
// to be merged into an existing topic.
const DefaultSimilarityThreshold = 0.85

// ClusterDecision records how one cluster was reconciled.
type ClusterDecision struct {
	Label      int       `json:"cluster"`
	Members    int       `json:"members"`
	TopicID    uuid.UUID `json:"topic_id"`
	Similarity float64   `json:"similarity"`
	Matched    bool      `json:"matched"`
}

// Plan is the outcome of reconciliation. Nothing is persisted until the
// caller commits it.
type Plan struct {
	// Assignments maps event id to the topic it was assigned to. Noise events
	// are absent.
	Assignments map[string]uuid.UUID
	// Topics holds the final state of every topic created or updated, in the
	// order they were first touched.
	Topics    []domain.Topic
	Links     []domain.EventTopicLink
	Created   int
	Matched   int
	Decisions []ClusterDecision
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool {
	return len(p.Topics) == 0 && len(p.Links) == 0
}

// Reconciler merges clusters into the topic set.
type Reconciler struct {
	threshold float64
	newID     func() uuid.UUID
	logger    *slog.Logger
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcilerLogger sets the logger.
func WithReconcilerLogger(logger *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithIDGenerator overrides topic id generation.
func WithIDGenerator(fn func() uuid.UUID) ReconcilerOption {
	return func(r *Reconciler) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewReconciler creates a reconciler. A non-positive threshold selects
// DefaultSimilarityThreshold.
func NewReconciler(threshold float64, opts ...ReconcilerOption) *Reconciler {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	r := &Reconciler{
		threshold: threshold,
		newID:     uuid.New,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type group struct {
	label   int
	members []domain.Event
}

// Reconcile matches each cluster to the most similar known topic or creates
// a new one. labels[i] is the cluster label of events[i].
//
// Clusters are processed in ascending label order. Topics created or updated
// earlier in the same call take part in later comparisons, so two clusters
// may both land on one topic.
func (r *Reconciler) Reconcile(ctx context.Context, events []domain.Event, labels []int, existing []domain.Topic, now time.Time) (Plan, error) {
	if len(events) != len(labels) {
		return Plan{}, dErrors.New(dErrors.CodeInvariantBroken,
			fmt.Sprintf("label count %d does not match event count %d", len(labels), len(events)))
	}

	plan := Plan{Assignments: make(map[string]uuid.UUID)}
	known := make([]domain.Topic, 0, len(existing))
	for _, t := range existing {
		known = append(known, t.Clone())
	}
	touched := make(map[uuid.UUID]struct{})
	var touchOrder []uuid.UUID

	for _, g := range groupByLabel(events, labels) {
		vectors := make([][]float32, 0, len(g.members))
		lastSeen := time.Time{}
		for _, e := range g.members {
			vectors = append(vectors, e.Embedding)
			if e.Timestamp.After(lastSeen) {
				lastSeen = e.Timestamp
			}
		}
		centroid := vector.Mean(vectors)
		members := len(g.members)

		bestIdx, bestScore := -1, 0.0
		for i := range known {
			score := vector.Cosine(centroid, known[i].Centroid)
			if bestIdx == -1 || score > bestScore {
				bestIdx, bestScore = i, score
			}
		}

		decision := ClusterDecision{Label: g.label, Members: members}
		if bestIdx >= 0 && bestScore >= r.threshold {
			t := &known[bestIdx]
			t.Centroid = vector.Blend(t.Centroid, t.PointCount, centroid, members)
			t.PointCount += members
			if lastSeen.After(t.LastSeenAt) {
				t.LastSeenAt = lastSeen
			}
			plan.Matched++
			decision.TopicID = t.ID
			decision.Similarity = bestScore
			decision.Matched = true
			r.logger.DebugContext(ctx, "cluster matched topic",
				"cluster", g.label,
				"topic_id", t.ID,
				"similarity", bestScore,
				"members", members,
			)
		} else {
			t := domain.Topic{
				ID:         r.newID(),
				Centroid:   centroid,
				PointCount: members,
				CreatedAt:  now,
				LastSeenAt: lastSeen,
			}
			known = append(known, t)
			plan.Created++
			decision.TopicID = t.ID
			decision.Similarity = bestScore
			r.logger.DebugContext(ctx, "cluster created topic",
				"cluster", g.label,
				"topic_id", t.ID,
				"best_similarity", bestScore,
				"members", members,
			)
		}

		if _, ok := touched[decision.TopicID]; !ok {
			touched[decision.TopicID] = struct{}{}
			touchOrder = append(touchOrder, decision.TopicID)
		}
		for _, e := range g.members {
			plan.Assignments[e.ID] = decision.TopicID
			plan.Links = append(plan.Links, domain.EventTopicLink{EventID: e.ID, TopicID: decision.TopicID})
		}
		plan.Decisions = append(plan.Decisions, decision)
	}

	byID := make(map[uuid.UUID]domain.Topic, len(known))
	for _, t := range known {
		byID[t.ID] = t
	}
	for _, id := range touchOrder {
		plan.Topics = append(plan.Topics, byID[id])
	}
	return plan, nil
}

func groupByLabel(events []domain.Event, labels []int) []group {
	idx := make(map[int]int)
	var groups []group
	for i, l := range labels {
		if l == cluster.Noise {
			continue
		}
		gi, ok := idx[l]
		if !ok {
			gi = len(groups)
			idx[l] = gi
			groups = append(groups, group{label: l})
		}
		groups[gi].members = append(groups[gi].members, events[i])
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].label < groups[j].label })
	return groups
}
