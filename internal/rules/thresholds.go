package rules

import (
	"errors"
	"fmt"

	"insight/internal/stats"
)

// Thresholds are the rule cutoffs in force for a run. They are recorded in
// the audit bundle verbatim.
type Thresholds struct {
	stats.UrgencyCutoffs `yaml:",inline"`

	EmergingRiskMinEvents        int     `json:"emerging_risk_min_events" yaml:"emerging_risk_min_events"`
	AvoidedDecisionMinDeferred   int     `json:"avoided_decision_min_deferred" yaml:"avoided_decision_min_deferred"`
	AttentionSinkShare           float64 `json:"attention_sink_share" yaml:"attention_sink_share"`
	ScopeCreepMinMessages        int     `json:"scope_creep_min_messages" yaml:"scope_creep_min_messages"`
	DecisionPressureMinFollowUps int     `json:"decision_pressure_min_follow_ups" yaml:"decision_pressure_min_follow_ups"`
	DecisionPressureMinDeferred  int     `json:"decision_pressure_min_deferred" yaml:"decision_pressure_min_deferred"`
}

// DefaultThresholds returns the stock rule cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		UrgencyCutoffs:               stats.DefaultUrgencyCutoffs(),
		EmergingRiskMinEvents:        3,
		AvoidedDecisionMinDeferred:   3,
		AttentionSinkShare:           0.30,
		ScopeCreepMinMessages:        3,
		DecisionPressureMinFollowUps: 2,
		DecisionPressureMinDeferred:  1,
	}
}

// Validate rejects cutoffs that would make a rule meaningless.
func (t Thresholds) Validate() error {
	var errs []error
	if t.LowMax < 0 || t.LowMax >= t.MediumMax {
		errs = append(errs, fmt.Errorf("urgency low max %d must be >= 0 and below medium max %d", t.LowMax, t.MediumMax))
	}
	if t.MediumMax > 10 {
		errs = append(errs, fmt.Errorf("urgency medium max %d must be <= 10", t.MediumMax))
	}
	if t.AttentionSinkShare <= 0 || t.AttentionSinkShare >= 1 {
		errs = append(errs, fmt.Errorf("attention sink share %.2f must be between 0 and 1", t.AttentionSinkShare))
	}
	counts := []struct {
		name  string
		value int
	}{
		{"emerging risk min events", t.EmergingRiskMinEvents},
		{"avoided decision min deferred", t.AvoidedDecisionMinDeferred},
		{"scope creep min messages", t.ScopeCreepMinMessages},
		{"decision pressure min follow ups", t.DecisionPressureMinFollowUps},
		{"decision pressure min deferred", t.DecisionPressureMinDeferred},
	}
	for _, c := range counts {
		if c.value < 1 {
			errs = append(errs, fmt.Errorf("%s must be at least 1", c.name))
		}
	}
	return errors.Join(errs...)
}
