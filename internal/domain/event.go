package domain

import (
	"fmt"
	"strings"
	"time"

	dErrors "insight/pkg/domain-errors"
)

// Source enumerates where an event was captured.
type Source string

const (
	SourceEmail   Source = "email"
	SourceMeeting Source = "meeting"
)

// Direction describes who a communication flowed between.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionInternal Direction = "internal"
	DirectionUnknown  Direction = "unknown"
)

// DecisionState is the pre-computed decision signal carried by an event.
type DecisionState string

const (
	DecisionMade     DecisionState = "made"
	DecisionDeferred DecisionState = "deferred"
	DecisionNone     DecisionState = "none"
)

// SentimentUnknown is the only sentiment value accepted; no sentiment analysis
// is performed.
const SentimentUnknown = "unknown"

const (
	MinUrgency = 0
	MaxUrgency = 10
)

// Event is one normalized communication record. It is immutable once
// ingested except for full overwrite on re-ingestion and lazy embedding
// backfill.
type Event struct {
	ID               string        `json:"id"`
	Source           Source        `json:"source"`
	Timestamp        time.Time     `json:"timestamp"`
	Actor            string        `json:"actor"`
	Direction        Direction     `json:"direction"`
	Subject          string        `json:"subject"`
	Text             string        `json:"text"`
	ThreadID         string        `json:"thread_id,omitempty"`
	Decision         DecisionState `json:"decision"`
	ActionOwner      string        `json:"action_owner,omitempty"`
	FollowUpRequired bool          `json:"follow_up_required"`
	UrgencyScore     int           `json:"urgency_score"`
	Sentiment        string        `json:"sentiment"`
	RawRef           string        `json:"raw_ref"`
	Embedding        []float32     `json:"-"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// HasEmbedding reports whether the embedding has been populated.
func (e Event) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// EmbeddingText is the text fed to the embedding generator.
func (e Event) EmbeddingText() string {
	return e.Subject + " " + e.Text
}

// Validate enforces the canonical event schema.
func (e Event) Validate() error {
	var problems []string
	if strings.TrimSpace(e.ID) == "" {
		problems = append(problems, "id is required")
	}
	switch e.Source {
	case SourceEmail, SourceMeeting:
	default:
		problems = append(problems, fmt.Sprintf("source %q must be email or meeting", e.Source))
	}
	if e.Timestamp.IsZero() {
		problems = append(problems, "timestamp is required")
	}
	if strings.TrimSpace(e.Actor) == "" {
		problems = append(problems, "actor is required")
	}
	switch e.Direction {
	case DirectionInbound, DirectionOutbound, DirectionInternal, DirectionUnknown:
	default:
		problems = append(problems, fmt.Sprintf("direction %q is invalid", e.Direction))
	}
	if strings.TrimSpace(e.Text) == "" {
		problems = append(problems, "text is required")
	}
	switch e.Decision {
	case DecisionMade, DecisionDeferred, DecisionNone:
	default:
		problems = append(problems, fmt.Sprintf("decision %q is invalid", e.Decision))
	}
	if e.UrgencyScore < MinUrgency || e.UrgencyScore > MaxUrgency {
		problems = append(problems, fmt.Sprintf("urgency_score %d must be between %d and %d", e.UrgencyScore, MinUrgency, MaxUrgency))
	}
	if e.Sentiment != SentimentUnknown {
		problems = append(problems, "sentiment must be \"unknown\"")
	}
	if strings.TrimSpace(e.RawRef) == "" {
		problems = append(problems, "raw_ref is required")
	}
	if len(problems) > 0 {
		return dErrors.New(dErrors.CodeValidation, strings.Join(problems, "; "))
	}
	return nil
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
