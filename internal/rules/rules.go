// Package rules turns window and topic statistics into findings.
//
// Each rule is stateless and sees the same Input; rules never consult each
// other's output.
package rules

import (
	"fmt"

	"insight/internal/domain"
	"insight/internal/stats"
)

// Input is everything a rule may look at.
type Input struct {
	Week       stats.WindowStats
	Baseline   stats.WindowStats
	Deltas     stats.Deltas
	Topics     []stats.TopicStats
	Thresholds Thresholds
}

// Rule evaluates one heuristic.
type Rule interface {
	Name() domain.FindingType
	Evaluate(in Input) []domain.Finding
}

// EmergingRisk flags new, busy, urgent topics where nothing has been decided.
type EmergingRisk struct{}

func (EmergingRisk) Name() domain.FindingType { return domain.FindingEmergingRisk }

func (r EmergingRisk) Evaluate(in Input) []domain.Finding {
	var out []domain.Finding
	for _, t := range in.Topics {
		if !t.IsNew ||
			t.EventCount < in.Thresholds.EmergingRiskMinEvents ||
			t.AvgUrgency < float64(in.Thresholds.MediumMax) ||
			t.DecisionsMade != 0 {
			continue
		}
		out = append(out, topicFinding(r.Name(), domain.SeverityHigh, t,
			fmt.Sprintf("New high-urgency topic with %d events (avg urgency %.2f) but no decisions made", t.EventCount, t.AvgUrgency)))
	}
	return out
}

// AvoidedDecision flags topics that keep deferring.
type AvoidedDecision struct{}

func (AvoidedDecision) Name() domain.FindingType { return domain.FindingAvoidedDecision }

func (r AvoidedDecision) Evaluate(in Input) []domain.Finding {
	var out []domain.Finding
	for _, t := range in.Topics {
		if t.DecisionsDeferred < in.Thresholds.AvoidedDecisionMinDeferred {
			continue
		}
		out = append(out, topicFinding(r.Name(), domain.SeverityMedium, t,
			fmt.Sprintf("Topic has %d deferred decisions", t.DecisionsDeferred)))
	}
	return out
}

// AttentionSink flags any actor holding more than the configured share of
// the week's events.
type AttentionSink struct{}

func (AttentionSink) Name() domain.FindingType { return domain.FindingAttentionSink }

func (r AttentionSink) Evaluate(in Input) []domain.Finding {
	total := in.Week.TotalEvents
	if total == 0 {
		return nil
	}
	var out []domain.Finding
	for _, a := range in.Week.ActorLoad {
		share := float64(a.Count) / float64(total)
		if share <= in.Thresholds.AttentionSinkShare {
			continue
		}
		pct := share * 100
		out = append(out, domain.Finding{
			Type:        r.Name(),
			Severity:    domain.SeverityMedium,
			Description: fmt.Sprintf("%s represents %.1f%% of all events (%d/%d)", a.Actor, pct, a.Count, total),
			Evidence: []string{
				fmt.Sprintf("Total events from %s: %d", a.Actor, a.Count),
				fmt.Sprintf("Percentage: %.1f%%", pct),
			},
		})
	}
	return out
}

// ScopeCreep flags threads that keep growing.
type ScopeCreep struct{}

func (ScopeCreep) Name() domain.FindingType { return domain.FindingScopeCreep }

func (r ScopeCreep) Evaluate(in Input) []domain.Finding {
	var out []domain.Finding
	for _, p := range in.Week.RepeatedPatterns {
		if p.Count < in.Thresholds.ScopeCreepMinMessages {
			continue
		}
		out = append(out, domain.Finding{
			Type:        r.Name(),
			Severity:    domain.SeverityLow,
			Description: fmt.Sprintf("Thread '%s' has %d messages, potential scope creep", p.ThreadID, p.Count),
			Evidence:    append([]string{}, p.Subjects...),
		})
	}
	return out
}

// DecisionPressure flags topics with pending follow-ups and deferrals.
type DecisionPressure struct{}

func (DecisionPressure) Name() domain.FindingType { return domain.FindingDecisionPressure }

func (r DecisionPressure) Evaluate(in Input) []domain.Finding {
	var out []domain.Finding
	for _, t := range in.Topics {
		if t.FollowUpRequired < in.Thresholds.DecisionPressureMinFollowUps ||
			t.DecisionsDeferred < in.Thresholds.DecisionPressureMinDeferred ||
			t.AvgUrgency < float64(in.Thresholds.LowMax) {
			continue
		}
		out = append(out, topicFinding(r.Name(), domain.SeverityHigh, t,
			fmt.Sprintf("Topic requires %d follow-ups with %d deferred decisions", t.FollowUpRequired, t.DecisionsDeferred)))
	}
	return out
}

func topicFinding(kind domain.FindingType, sev domain.Severity, t stats.TopicStats, desc string) domain.Finding {
	id := t.TopicID
	return domain.Finding{
		Type:        kind,
		Severity:    sev,
		Description: desc,
		Evidence:    append([]string{}, t.SampleSubjects...),
		TopicID:     &id,
	}
}
