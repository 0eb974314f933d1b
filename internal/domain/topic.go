package domain

import (
	"time"

	"github.com/google/uuid"
)

// Topic is a persistent cluster representative. Its centroid is the
// count-weighted average of every vector merged into it.
type Topic struct {
	ID         uuid.UUID `json:"topic_id"`
	Centroid   []float32 `json:"-"`
	PointCount int       `json:"n_points"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Clone returns a deep copy so callers can mutate the centroid freely.
func (t Topic) Clone() Topic {
	c := t
	c.Centroid = append([]float32(nil), t.Centroid...)
	return c
}

// EventTopicLink associates an event with a topic. Unique per pair.
type EventTopicLink struct {
	EventID string    `json:"event_id"`
	TopicID uuid.UUID `json:"topic_id"`
}
