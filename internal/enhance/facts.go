// Package enhance adds an optional narrative layer to a weekly brief. It
// sends aggregate facts (never raw event text) to an OpenAI-compatible chat
// endpoint and accepts only a strictly shaped JSON answer.
package enhance

import (
	"encoding/json"
	"fmt"

	"insight/internal/domain"
	"insight/internal/stats"
)

// TimeWindows describes the compared windows in words.
type TimeWindows struct {
	CurrentWeek string `json:"current_week"`
	Baseline    string `json:"baseline"`
}

// WindowMetrics pairs the week and baseline statistics.
type WindowMetrics struct {
	Week     stats.WindowStats `json:"week"`
	Baseline stats.WindowStats `json:"baseline"`
}

// Facts is the complete payload sent to a provider.
type Facts struct {
	TimeWindows  TimeWindows        `json:"time_windows"`
	Metrics      WindowMetrics      `json:"metrics"`
	Deltas       stats.Deltas       `json:"deltas"`
	Topics       []stats.TopicStats `json:"topics"`
	RuleFindings []domain.Finding   `json:"rule_findings"`
}

// NewFacts assembles the payload from a run's computed results.
func NewFacts(week, baseline stats.WindowStats, deltas stats.Deltas, topics []stats.TopicStats, findings []domain.Finding) Facts {
	if topics == nil {
		topics = []stats.TopicStats{}
	}
	if findings == nil {
		findings = []domain.Finding{}
	}
	return Facts{
		TimeWindows:  TimeWindows{CurrentWeek: "Last 7 days", Baseline: "Previous 28 days"},
		Metrics:      WindowMetrics{Week: week, Baseline: baseline},
		Deltas:       deltas,
		Topics:       topics,
		RuleFindings: findings,
	}
}

// Payload renders the facts as indented JSON for the prompt.
func (f Facts) Payload() (string, error) {
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal facts: %w", err)
	}
	return string(b), nil
}
