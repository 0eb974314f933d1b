package stats

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"insight/internal/domain"
	"insight/pkg/platform/strings"
)

// NewTopicAge is how recently a topic must have been created to count as new.
const NewTopicAge = 7 * 24 * time.Hour

// TopicStats aggregates one topic's events inside a window.
type TopicStats struct {
	TopicID           uuid.UUID `json:"topic_id"`
	EventCount        int       `json:"event_count"`
	AvgUrgency        float64   `json:"avg_urgency"`
	DecisionsMade     int       `json:"decisions_made"`
	DecisionsDeferred int       `json:"decisions_deferred"`
	FollowUpRequired  int       `json:"follow_up_required"`
	SampleSubjects    []string  `json:"sample_subjects"`
	CreatedAt         time.Time `json:"created_at"`
	IsNew             bool      `json:"is_new"`
}

// ComputeTopics aggregates per topic over the links whose event is in
// events. Duplicate links count once; links to topics missing from topics
// are ignored. Sorted by event count descending then topic id.
func ComputeTopics(events []domain.Event, links []domain.EventTopicLink, topics []domain.Topic, now time.Time) []TopicStats {
	byEvent := make(map[string]domain.Event, len(events))
	for _, e := range events {
		byEvent[e.ID] = e
	}
	byTopic := make(map[uuid.UUID]domain.Topic, len(topics))
	for _, t := range topics {
		byTopic[t.ID] = t
	}

	type acc struct {
		topic    domain.Topic
		urgency  int
		subjects []string
		stats    TopicStats
	}
	seen := make(map[domain.EventTopicLink]struct{}, len(links))
	accs := make(map[uuid.UUID]*acc)
	var order []uuid.UUID

	for _, l := range links {
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}

		e, ok := byEvent[l.EventID]
		if !ok {
			continue
		}
		t, ok := byTopic[l.TopicID]
		if !ok {
			continue
		}

		a, ok := accs[t.ID]
		if !ok {
			a = &acc{topic: t}
			accs[t.ID] = a
			order = append(order, t.ID)
		}
		a.stats.EventCount++
		a.urgency += e.UrgencyScore
		switch e.Decision {
		case domain.DecisionMade:
			a.stats.DecisionsMade++
		case domain.DecisionDeferred:
			a.stats.DecisionsDeferred++
		}
		if e.FollowUpRequired {
			a.stats.FollowUpRequired++
		}
		a.subjects = append(a.subjects, e.Subject)
	}

	out := make([]TopicStats, 0, len(order))
	for _, id := range order {
		a := accs[id]
		s := a.stats
		s.TopicID = id
		s.AvgUrgency = round2(float64(a.urgency) / float64(s.EventCount))
		s.SampleSubjects = strings.SampleDistinct(a.subjects, SampleSubjectLimit)
		s.CreatedAt = a.topic.CreatedAt
		s.IsNew = now.Sub(a.topic.CreatedAt) < NewTopicAge
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventCount != out[j].EventCount {
			return out[i].EventCount > out[j].EventCount
		}
		return out[i].TopicID.String() < out[j].TopicID.String()
	})
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
