package handler

import (
	"encoding/json"
	"strings"
	"time"

	"insight/internal/domain"
	dErrors "insight/pkg/domain-errors"
)

// EventRequest is the canonical event body accepted by both ingest routes.
type EventRequest struct {
	ID               string    `json:"id"`
	Source           string    `json:"source"`
	Timestamp        time.Time `json:"timestamp"`
	Actor            string    `json:"actor"`
	Direction        string    `json:"direction"`
	Subject          string    `json:"subject"`
	Text             string    `json:"text"`
	ThreadID         string    `json:"thread_id"`
	Decision         string    `json:"decision"`
	ActionOwner      string    `json:"action_owner"`
	FollowUpRequired bool      `json:"follow_up_required"`
	UrgencyScore     int       `json:"urgency_score"`
	Sentiment        string    `json:"sentiment"`
	RawRef           string    `json:"raw_ref"`
}

// Validate normalises the request and checks the canonical schema.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *EventRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.ID = strings.TrimSpace(r.ID)
	r.Actor = strings.TrimSpace(r.Actor)
	if r.Sentiment == "" {
		r.Sentiment = domain.SentimentUnknown
	}
	if r.Decision == "" {
		r.Decision = string(domain.DecisionNone)
	}
	return r.Event().Validate()
}

// Event converts the request to the domain type.
func (r *EventRequest) Event() domain.Event {
	return domain.Event{
		ID:               r.ID,
		Source:           domain.Source(r.Source),
		Timestamp:        r.Timestamp,
		Actor:            r.Actor,
		Direction:        domain.Direction(r.Direction),
		Subject:          r.Subject,
		Text:             r.Text,
		ThreadID:         r.ThreadID,
		Decision:         domain.DecisionState(r.Decision),
		ActionOwner:      r.ActionOwner,
		FollowUpRequired: r.FollowUpRequired,
		UrgencyScore:     r.UrgencyScore,
		Sentiment:        r.Sentiment,
		RawRef:           r.RawRef,
	}
}

// IngestResponse acknowledges a stored event.
type IngestResponse struct {
	OK       bool   `json:"ok"`
	ID       string `json:"id"`
	Embedded bool   `json:"embedded"`
}

// BriefResponse is the stored brief as served by GET /briefs/{weekStart}.
type BriefResponse struct {
	WeekStart   string            `json:"week_start"`
	WeekEnd     string            `json:"week_end"`
	Markdown    string            `json:"markdown"`
	Watchlist   []string          `json:"watchlist"`
	Enhancement domain.Provenance `json:"enhancement"`
	Audit       json.RawMessage   `json:"audit"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func FromBrief(b domain.WeeklyBrief) BriefResponse {
	watchlist := b.Watchlist
	if watchlist == nil {
		watchlist = []string{}
	}
	return BriefResponse{
		WeekStart:   b.WeekStart.UTC().Format(dateLayout),
		WeekEnd:     b.WeekEnd.UTC().Format(dateLayout),
		Markdown:    b.Markdown,
		Watchlist:   watchlist,
		Enhancement: b.Enhancement,
		Audit:       b.Audit,
		UpdatedAt:   b.UpdatedAt,
	}
}
