// Package stats computes per-window aggregates, per-topic aggregates and the
// deltas between a week and its baseline. Everything here is pure.
package stats

import (
	"sort"

	"insight/internal/domain"
	"insight/pkg/platform/strings"
)

// Defaults for urgency bucketing and repeated-thread detection.
const (
	DefaultUrgencyLowMax    = 3
	DefaultUrgencyMediumMax = 7
	RepeatedThreadMin       = 3
	SampleSubjectLimit      = 3
)

// UrgencyCutoffs buckets urgency scores. Both cutoffs are inclusive upper
// bounds: score <= LowMax is low, score <= MediumMax is medium, else high.
type UrgencyCutoffs struct {
	LowMax    int `json:"urgency_low_max" yaml:"urgency_low_max"`
	MediumMax int `json:"urgency_medium_max" yaml:"urgency_medium_max"`
}

// DefaultUrgencyCutoffs returns the stock cutoffs (3 and 7).
func DefaultUrgencyCutoffs() UrgencyCutoffs {
	return UrgencyCutoffs{LowMax: DefaultUrgencyLowMax, MediumMax: DefaultUrgencyMediumMax}
}

// Bucket classifies a single score.
func (c UrgencyCutoffs) Bucket(score int) string {
	switch {
	case score <= c.LowMax:
		return "low"
	case score <= c.MediumMax:
		return "medium"
	default:
		return "high"
	}
}

type UrgencyDistribution struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

type DecisionCounts struct {
	Made     int `json:"made"`
	Deferred int `json:"deferred"`
	None     int `json:"none"`
}

type ActorCount struct {
	Actor string `json:"actor"`
	Count int    `json:"count"`
}

// ThreadPattern is a thread seen at least RepeatedThreadMin times in a window.
type ThreadPattern struct {
	ThreadID string   `json:"thread_id"`
	Count    int      `json:"count"`
	Subjects []string `json:"subjects"`
}

// WindowStats aggregates one time window.
type WindowStats struct {
	TotalEvents      int                 `json:"total_events"`
	Urgency          UrgencyDistribution `json:"urgency_distribution"`
	ActorLoad        []ActorCount        `json:"actor_load"`
	Decisions        DecisionCounts      `json:"decision_counts"`
	FollowUpCount    int                 `json:"follow_up_count"`
	RepeatedPatterns []ThreadPattern     `json:"repeated_patterns"`
}

// CountFor returns the number of events attributed to actor.
func (w WindowStats) CountFor(actor string) int {
	for _, a := range w.ActorLoad {
		if a.Actor == actor {
			return a.Count
		}
	}
	return 0
}

// ComputeWindow aggregates events. Actor load is sorted by count descending
// then actor ascending; repeated patterns by count descending then thread id
// ascending. Slices are never nil.
func ComputeWindow(events []domain.Event, cutoffs UrgencyCutoffs) WindowStats {
	out := WindowStats{
		TotalEvents:      len(events),
		ActorLoad:        []ActorCount{},
		RepeatedPatterns: []ThreadPattern{},
	}

	actors := make(map[string]int)
	threadCounts := make(map[string]int)
	threadSubjects := make(map[string][]string)

	for _, e := range events {
		switch cutoffs.Bucket(e.UrgencyScore) {
		case "low":
			out.Urgency.Low++
		case "medium":
			out.Urgency.Medium++
		default:
			out.Urgency.High++
		}

		switch e.Decision {
		case domain.DecisionMade:
			out.Decisions.Made++
		case domain.DecisionDeferred:
			out.Decisions.Deferred++
		default:
			out.Decisions.None++
		}

		if e.FollowUpRequired {
			out.FollowUpCount++
		}

		actors[e.Actor]++

		if e.ThreadID != "" {
			threadCounts[e.ThreadID]++
			threadSubjects[e.ThreadID] = append(threadSubjects[e.ThreadID], e.Subject)
		}
	}

	for actor, n := range actors {
		out.ActorLoad = append(out.ActorLoad, ActorCount{Actor: actor, Count: n})
	}
	sort.Slice(out.ActorLoad, func(i, j int) bool {
		a, b := out.ActorLoad[i], out.ActorLoad[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Actor < b.Actor
	})

	for thread, n := range threadCounts {
		if n < RepeatedThreadMin {
			continue
		}
		out.RepeatedPatterns = append(out.RepeatedPatterns, ThreadPattern{
			ThreadID: thread,
			Count:    n,
			Subjects: strings.SampleDistinct(threadSubjects[thread], SampleSubjectLimit),
		})
	}
	sort.Slice(out.RepeatedPatterns, func(i, j int) bool {
		a, b := out.RepeatedPatterns[i], out.RepeatedPatterns[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.ThreadID < b.ThreadID
	})

	return out
}
