package rules

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"insight/internal/domain"
	"insight/internal/stats"
)

// =============================================================================
// Rule Engine Test Suite
// =============================================================================
// Justification for unit tests: every rule is a pure threshold check whose
// boundaries (inclusive vs exclusive, zero guards) are easy to get wrong and
// invisible in the rendered brief.

type RulesSuite struct {
	suite.Suite
	thresholds Thresholds
}

func TestRulesSuite(t *testing.T) {
	suite.Run(t, new(RulesSuite))
}

func (s *RulesSuite) SetupTest() {
	s.thresholds = DefaultThresholds()
}

func (s *RulesSuite) input(topics ...stats.TopicStats) Input {
	return Input{Topics: topics, Thresholds: s.thresholds}
}

func topic(mod func(*stats.TopicStats)) stats.TopicStats {
	t := stats.TopicStats{
		TopicID:        uuid.New(),
		EventCount:     1,
		SampleSubjects: []string{"Q3 budget", "Vendor contract"},
	}
	mod(&t)
	return t
}

// =============================================================================
// Emerging Risk
// =============================================================================

func (s *RulesSuite) TestEmergingRisk() {
	risky := func(t *stats.TopicStats) {
		t.IsNew = true
		t.EventCount = 3
		t.AvgUrgency = 7
	}

	s.Run("fires at the boundaries", func() {
		tp := topic(risky)
		got := EmergingRisk{}.Evaluate(s.input(tp))
		s.Require().Len(got, 1)
		s.Equal(domain.FindingEmergingRisk, got[0].Type)
		s.Equal(domain.SeverityHigh, got[0].Severity)
		s.Equal("New high-urgency topic with 3 events (avg urgency 7.00) but no decisions made", got[0].Description)
		s.Equal(tp.SampleSubjects, got[0].Evidence)
		s.Require().NotNil(got[0].TopicID)
		s.Equal(tp.TopicID, *got[0].TopicID)
	})

	s.Run("requires every condition", func() {
		cases := map[string]func(*stats.TopicStats){
			"not new":           func(t *stats.TopicStats) { risky(t); t.IsNew = false },
			"too few events":    func(t *stats.TopicStats) { risky(t); t.EventCount = 2 },
			"urgency too low":   func(t *stats.TopicStats) { risky(t); t.AvgUrgency = 6.99 },
			"decision was made": func(t *stats.TopicStats) { risky(t); t.DecisionsMade = 1 },
		}
		for name, mod := range cases {
			s.Empty(EmergingRisk{}.Evaluate(s.input(topic(mod))), name)
		}
	})
}

// =============================================================================
// Avoided Decision
// =============================================================================

func (s *RulesSuite) TestAvoidedDecision() {
	s.Run("three deferrals fire exactly once", func() {
		got := AvoidedDecision{}.Evaluate(s.input(topic(func(t *stats.TopicStats) { t.DecisionsDeferred = 3 })))
		s.Require().Len(got, 1)
		s.Equal(domain.SeverityMedium, got[0].Severity)
		s.Equal("Topic has 3 deferred decisions", got[0].Description)
	})

	s.Run("two deferrals do not fire", func() {
		s.Empty(AvoidedDecision{}.Evaluate(s.input(topic(func(t *stats.TopicStats) { t.DecisionsDeferred = 2 }))))
	})
}

// =============================================================================
// Attention Sink
// =============================================================================

func (s *RulesSuite) TestAttentionSink() {
	s.Run("actor above share fires with figures", func() {
		in := s.input()
		in.Week = stats.WindowStats{
			TotalEvents: 10,
			ActorLoad:   []stats.ActorCount{{Actor: "alice", Count: 5}, {Actor: "bob", Count: 3}, {Actor: "carol", Count: 2}},
		}
		got := AttentionSink{}.Evaluate(in)
		s.Require().Len(got, 1)
		s.Equal("alice represents 50.0% of all events (5/10)", got[0].Description)
		s.Equal([]string{"Total events from alice: 5", "Percentage: 50.0%"}, got[0].Evidence)
		s.Nil(got[0].TopicID)
	})

	s.Run("exactly thirty percent does not fire", func() {
		in := s.input()
		in.Week = stats.WindowStats{TotalEvents: 10, ActorLoad: []stats.ActorCount{{Actor: "bob", Count: 3}}}
		s.Empty(AttentionSink{}.Evaluate(in))
	})

	s.Run("empty window is guarded", func() {
		in := s.input()
		in.Week = stats.WindowStats{ActorLoad: []stats.ActorCount{{Actor: "ghost", Count: 1}}}
		s.Empty(AttentionSink{}.Evaluate(in))
	})
}

// =============================================================================
// Scope Creep
// =============================================================================

func (s *RulesSuite) TestScopeCreep() {
	in := s.input()
	in.Week = stats.WindowStats{RepeatedPatterns: []stats.ThreadPattern{
		{ThreadID: "thread-9", Count: 4, Subjects: []string{"Launch plan"}},
	}}
	got := ScopeCreep{}.Evaluate(in)
	s.Require().Len(got, 1)
	s.Equal(domain.SeverityLow, got[0].Severity)
	s.Equal("Thread 'thread-9' has 4 messages, potential scope creep", got[0].Description)
	s.Equal([]string{"Launch plan"}, got[0].Evidence)
}

// =============================================================================
// Decision Pressure
// =============================================================================

func (s *RulesSuite) TestDecisionPressure() {
	pressured := func(t *stats.TopicStats) {
		t.FollowUpRequired = 2
		t.DecisionsDeferred = 1
		t.AvgUrgency = 3
	}

	s.Run("fires at the boundaries", func() {
		got := DecisionPressure{}.Evaluate(s.input(topic(pressured)))
		s.Require().Len(got, 1)
		s.Equal(domain.SeverityHigh, got[0].Severity)
		s.Equal("Topic requires 2 follow-ups with 1 deferred decisions", got[0].Description)
	})

	s.Run("urgency below low cutoff does not fire", func() {
		s.Empty(DecisionPressure{}.Evaluate(s.input(topic(func(t *stats.TopicStats) {
			pressured(t)
			t.AvgUrgency = 2.99
		}))))
	})
}

// =============================================================================
// Engine
// =============================================================================

func (s *RulesSuite) TestEngineConcatenatesInRuleOrder() {
	tp := topic(func(t *stats.TopicStats) {
		t.IsNew = true
		t.EventCount = 5
		t.AvgUrgency = 8
		t.DecisionsDeferred = 3
		t.FollowUpRequired = 2
	})
	in := s.input(tp)
	in.Week = stats.WindowStats{
		TotalEvents: 5,
		ActorLoad:   []stats.ActorCount{{Actor: "alice", Count: 5}},
		RepeatedPatterns: []stats.ThreadPattern{
			{ThreadID: "t", Count: 3},
		},
	}

	got := NewEngine().Evaluate(in)
	var types []domain.FindingType
	for _, f := range got {
		types = append(types, f.Type)
	}
	s.Equal([]domain.FindingType{
		domain.FindingEmergingRisk,
		domain.FindingAvoidedDecision,
		domain.FindingAttentionSink,
		domain.FindingScopeCreep,
		domain.FindingDecisionPressure,
	}, types)
}

func (s *RulesSuite) TestEngineWithNoSignals() {
	got := NewEngine().Evaluate(s.input())
	s.NotNil(got)
	s.Empty(got)
}

func (s *RulesSuite) TestThresholdsValidate() {
	s.NoError(DefaultThresholds().Validate())

	bad := DefaultThresholds()
	bad.LowMax = 8
	bad.AttentionSinkShare = 0
	bad.ScopeCreepMinMessages = 0
	err := bad.Validate()
	s.Require().Error(err)
	s.Contains(err.Error(), "urgency low max")
	s.Contains(err.Error(), "attention sink share")
	s.Contains(err.Error(), "scope creep min messages")
}
