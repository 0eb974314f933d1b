package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"insight/internal/domain"
	"insight/internal/storage"
	txcontext "insight/pkg/platform/tx"
)

// EventStore persists events in core_events.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

const eventColumns = `id, source, timestamp, actor, direction, subject, text, thread_id, decision,
	action_owner, follow_up_required, urgency_score, sentiment, raw_ref, embedding, created_at, updated_at`

func (s *EventStore) Upsert(ctx context.Context, e domain.Event) error {
	query := `
		INSERT INTO core_events (
			id, source, timestamp, actor, direction, subject, text, thread_id, decision,
			action_owner, follow_up_required, urgency_score, sentiment, raw_ref, embedding
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			timestamp = EXCLUDED.timestamp,
			actor = EXCLUDED.actor,
			direction = EXCLUDED.direction,
			subject = EXCLUDED.subject,
			text = EXCLUDED.text,
			thread_id = EXCLUDED.thread_id,
			decision = EXCLUDED.decision,
			action_owner = EXCLUDED.action_owner,
			follow_up_required = EXCLUDED.follow_up_required,
			urgency_score = EXCLUDED.urgency_score,
			sentiment = EXCLUDED.sentiment,
			raw_ref = EXCLUDED.raw_ref,
			embedding = EXCLUDED.embedding,
			updated_at = now()
	`
	_, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		e.ID,
		string(e.Source),
		e.Timestamp,
		e.Actor,
		string(e.Direction),
		e.Subject,
		e.Text,
		nullString(e.ThreadID),
		string(e.Decision),
		nullString(e.ActionOwner),
		e.FollowUpRequired,
		e.UrgencyScore,
		e.Sentiment,
		e.RawRef,
		embeddingValue(e.Embedding),
	)
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", e.ID, err)
	}
	return nil
}

func (s *EventStore) Get(ctx context.Context, id string) (domain.Event, error) {
	row := txcontext.ExecutorFor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM core_events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

func (s *EventStore) ListBetween(ctx context.Context, start, end time.Time) ([]domain.Event, error) {
	rows, err := txcontext.ExecutorFor(ctx, s.db).QueryContext(ctx,
		`SELECT `+eventColumns+` FROM core_events
		 WHERE timestamp >= $1 AND timestamp < $2
		 ORDER BY timestamp, id`, start, end)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := []domain.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func (s *EventStore) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	res, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx,
		`UPDATE core_events SET embedding = $2, updated_at = now() WHERE id = $1`,
		id, embeddingValue(embedding))
	if err != nil {
		return fmt.Errorf("set embedding %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set embedding %s: %w", id, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *EventStore) Counts(ctx context.Context) (storage.EventCounts, error) {
	var c storage.EventCounts
	err := txcontext.ExecutorFor(ctx, s.db).QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE source = 'email'),
			COUNT(*) FILTER (WHERE source = 'meeting')
		FROM core_events
	`).Scan(&c.Total, &c.Email, &c.Meeting)
	if err != nil {
		return storage.EventCounts{}, fmt.Errorf("count events: %w", err)
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (domain.Event, error) {
	var (
		e           domain.Event
		source      string
		direction   string
		decision    string
		threadID    sql.NullString
		actionOwner sql.NullString
		embedding   pq.Float32Array
	)
	err := row.Scan(
		&e.ID, &source, &e.Timestamp, &e.Actor, &direction, &e.Subject, &e.Text, &threadID, &decision,
		&actionOwner, &e.FollowUpRequired, &e.UrgencyScore, &e.Sentiment, &e.RawRef, &embedding,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return domain.Event{}, err
	}
	e.Source = domain.Source(source)
	e.Direction = domain.Direction(direction)
	e.Decision = domain.DecisionState(decision)
	e.ThreadID = threadID.String
	e.ActionOwner = actionOwner.String
	e.Timestamp = e.Timestamp.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	if len(embedding) > 0 {
		e.Embedding = []float32(embedding)
	}
	return e, nil
}

// embeddingValue maps an empty vector to NULL.
func embeddingValue(v []float32) pq.Float32Array {
	if len(v) == 0 {
		return nil
	}
	return pq.Float32Array(v)
}
