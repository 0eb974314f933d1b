package stats

import "sort"

// TopMoverLimit caps Deltas.TopActorMovers.
const TopMoverLimit = 5

type UrgencyShifts struct {
	HighDelta   int `json:"high_delta"`
	MediumDelta int `json:"medium_delta"`
	LowDelta    int `json:"low_delta"`
}

type DecisionShifts struct {
	MadeDelta     int `json:"made_delta"`
	DeferredDelta int `json:"deferred_delta"`
}

type ActorMove struct {
	Actor string `json:"actor"`
	Delta int    `json:"delta"`
}

// Deltas compares a week against its baseline.
type Deltas struct {
	TotalEventsDelta     int            `json:"total_events_delta"`
	TotalEventsPctChange float64        `json:"total_events_pct_change"`
	UrgencyShifts        UrgencyShifts  `json:"urgency_shifts"`
	DecisionShifts       DecisionShifts `json:"decision_shifts"`
	FollowUpDelta        int            `json:"follow_up_delta"`
	TopActorMovers       []ActorMove    `json:"top_actor_movers"`
}

// ComputeDeltas subtracts baseline from week. The percentage change is 0
// when the baseline is empty. Actor movers cover the union of both windows
// with missing counts treated as 0, sorted by absolute delta descending then
// actor ascending, capped at TopMoverLimit.
func ComputeDeltas(week, baseline WindowStats) Deltas {
	d := Deltas{
		TotalEventsDelta: week.TotalEvents - baseline.TotalEvents,
		UrgencyShifts: UrgencyShifts{
			HighDelta:   week.Urgency.High - baseline.Urgency.High,
			MediumDelta: week.Urgency.Medium - baseline.Urgency.Medium,
			LowDelta:    week.Urgency.Low - baseline.Urgency.Low,
		},
		DecisionShifts: DecisionShifts{
			MadeDelta:     week.Decisions.Made - baseline.Decisions.Made,
			DeferredDelta: week.Decisions.Deferred - baseline.Decisions.Deferred,
		},
		FollowUpDelta: week.FollowUpCount - baseline.FollowUpCount,
	}
	if baseline.TotalEvents > 0 {
		d.TotalEventsPctChange = float64(d.TotalEventsDelta) / float64(baseline.TotalEvents) * 100
	}

	moves := make(map[string]int)
	for _, a := range week.ActorLoad {
		moves[a.Actor] += a.Count
	}
	for _, a := range baseline.ActorLoad {
		moves[a.Actor] -= a.Count
	}
	d.TopActorMovers = make([]ActorMove, 0, len(moves))
	for actor, delta := range moves {
		d.TopActorMovers = append(d.TopActorMovers, ActorMove{Actor: actor, Delta: delta})
	}
	sort.Slice(d.TopActorMovers, func(i, j int) bool {
		a, b := d.TopActorMovers[i], d.TopActorMovers[j]
		if abs(a.Delta) != abs(b.Delta) {
			return abs(a.Delta) > abs(b.Delta)
		}
		return a.Actor < b.Actor
	})
	if len(d.TopActorMovers) > TopMoverLimit {
		d.TopActorMovers = d.TopActorMovers[:TopMoverLimit]
	}
	return d
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
