package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"insight/internal/domain"
	txcontext "insight/pkg/platform/tx"
)

// LinkStore persists event-topic links in core_event_topics.
type LinkStore struct {
	db *sql.DB
}

func NewLinkStore(db *sql.DB) *LinkStore {
	return &LinkStore{db: db}
}

// Insert writes every link in one round trip using unnest.
func (s *LinkStore) Insert(ctx context.Context, links []domain.EventTopicLink) (int, error) {
	if len(links) == 0 {
		return 0, nil
	}
	eventIDs := make([]string, len(links))
	topicIDs := make([]string, len(links))
	for i, l := range links {
		eventIDs[i] = l.EventID
		topicIDs[i] = l.TopicID.String()
	}

	res, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO core_event_topics (event_id, topic_id)
		SELECT * FROM unnest($1::text[], $2::uuid[])
		ON CONFLICT (event_id, topic_id) DO NOTHING
	`, pq.Array(eventIDs), pq.Array(topicIDs))
	if err != nil {
		return 0, fmt.Errorf("insert links: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert links: %w", err)
	}
	return int(n), nil
}

func (s *LinkStore) ListForEvents(ctx context.Context, eventIDs []string) ([]domain.EventTopicLink, error) {
	out := []domain.EventTopicLink{}
	if len(eventIDs) == 0 {
		return out, nil
	}
	rows, err := txcontext.ExecutorFor(ctx, s.db).QueryContext(ctx, `
		SELECT event_id, topic_id
		FROM core_event_topics
		WHERE event_id = ANY($1)
		ORDER BY event_id, topic_id
	`, pq.Array(eventIDs))
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.EventTopicLink
		if err := rows.Scan(&l.EventID, &l.TopicID); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return out, nil
}
