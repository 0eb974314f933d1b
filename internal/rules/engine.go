package rules

import (
	"insight/internal/domain"
)

// Engine runs a fixed list of rules and concatenates their findings in rule
// order. There is no deduplication across rules.
type Engine struct {
	rules []Rule
}

// DefaultRules returns the five stock rules in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		EmergingRisk{},
		AvoidedDecision{},
		AttentionSink{},
		ScopeCreep{},
		DecisionPressure{},
	}
}

// NewEngine creates an engine. No rules selects DefaultRules.
func NewEngine(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Engine{rules: rules}
}

// Evaluate applies every rule. The result is never nil.
func (e *Engine) Evaluate(in Input) []domain.Finding {
	out := []domain.Finding{}
	for _, r := range e.rules {
		out = append(out, r.Evaluate(in)...)
	}
	return out
}

// Rules lists the rule names in evaluation order.
func (e *Engine) Rules() []domain.FindingType {
	names := make([]domain.FindingType, 0, len(e.rules))
	for _, r := range e.rules {
		names = append(names, r.Name())
	}
	return names
}
