// Package storage defines persistence contracts for events, topics, links
// and briefs, plus an in-memory implementation. The Postgres implementation
// lives in storage/postgres.
package storage

import (
	"context"
	"time"

	"insight/internal/domain"
)

// EventStore persists ingested events.
type EventStore interface {
	// Upsert inserts the event or overwrites every field of an existing one.
	Upsert(ctx context.Context, event domain.Event) error
	Get(ctx context.Context, id string) (domain.Event, error)
	// ListBetween returns events with start <= timestamp < end, oldest first.
	ListBetween(ctx context.Context, start, end time.Time) ([]domain.Event, error)
	SetEmbedding(ctx context.Context, id string, embedding []float32) error
	Counts(ctx context.Context) (EventCounts, error)
}

// EventCounts summarises stored events by source.
type EventCounts struct {
	Total   int `json:"total_events"`
	Email   int `json:"email_events"`
	Meeting int `json:"meeting_events"`
}

// TopicStore persists topics.
type TopicStore interface {
	List(ctx context.Context) ([]domain.Topic, error)
	// Save inserts new topics and overwrites centroid, point count and last
	// seen time of existing ones.
	Save(ctx context.Context, topics []domain.Topic) error
}

// LinkStore persists event-topic links.
type LinkStore interface {
	// Insert adds links, silently skipping pairs that already exist, and
	// returns how many were new.
	Insert(ctx context.Context, links []domain.EventTopicLink) (int, error)
	ListForEvents(ctx context.Context, eventIDs []string) ([]domain.EventTopicLink, error)
}

// BriefStore persists weekly briefs keyed by week start.
type BriefStore interface {
	Upsert(ctx context.Context, brief domain.WeeklyBrief) error
	Get(ctx context.Context, weekStart time.Time) (domain.WeeklyBrief, error)
}

// TxRunner runs fn as one unit of work. Stores used inside fn with the
// provided context join the transaction; any error rolls everything back.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Stores bundles one backend's implementations.
type Stores struct {
	Events EventStore
	Topics TopicStore
	Links  LinkStore
	Briefs BriefStore
	Tx     TxRunner
}
