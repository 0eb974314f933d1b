package domain

import (
	"strings"

	"github.com/google/uuid"
)

// FindingType enumerates the rule engine's signals.
type FindingType string

const (
	FindingEmergingRisk     FindingType = "emerging_risk"
	FindingAvoidedDecision  FindingType = "avoided_decision"
	FindingAttentionSink    FindingType = "attention_sink"
	FindingScopeCreep       FindingType = "scope_creep"
	FindingDecisionPressure FindingType = "decision_pressure"
)

// Title renders the type for humans, e.g. "Emerging Risk".
func (t FindingType) Title() string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Phrase renders the type lower-case with spaces, e.g. "emerging risk".
func (t FindingType) Phrase() string {
	return strings.ReplaceAll(string(t), "_", " ")
}

// Severity ranks a finding.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Finding is an ephemeral rule engine output; never persisted on its own.
type Finding struct {
	Type        FindingType `json:"type"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	Evidence    []string    `json:"evidence"`
	TopicID     *uuid.UUID  `json:"topic_id"`
}
