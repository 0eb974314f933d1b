package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"insight/internal/domain"
	txcontext "insight/pkg/platform/tx"
)

// TopicStore persists topics in core_topics.
type TopicStore struct {
	db *sql.DB
}

func NewTopicStore(db *sql.DB) *TopicStore {
	return &TopicStore{db: db}
}

func (s *TopicStore) List(ctx context.Context) ([]domain.Topic, error) {
	rows, err := txcontext.ExecutorFor(ctx, s.db).QueryContext(ctx, `
		SELECT topic_id, centroid, n_points, created_at, last_seen_at
		FROM core_topics
		ORDER BY created_at, topic_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	out := []domain.Topic{}
	for rows.Next() {
		var (
			t        domain.Topic
			centroid pq.Float32Array
		)
		if err := rows.Scan(&t.ID, &centroid, &t.PointCount, &t.CreatedAt, &t.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		t.Centroid = []float32(centroid)
		t.CreatedAt = t.CreatedAt.UTC()
		t.LastSeenAt = t.LastSeenAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return out, nil
}

func (s *TopicStore) Save(ctx context.Context, topics []domain.Topic) error {
	query := `
		INSERT INTO core_topics (topic_id, centroid, n_points, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (topic_id) DO UPDATE SET
			centroid = EXCLUDED.centroid,
			n_points = EXCLUDED.n_points,
			last_seen_at = EXCLUDED.last_seen_at
	`
	exec := txcontext.ExecutorFor(ctx, s.db)
	for _, t := range topics {
		_, err := exec.ExecContext(ctx, query, t.ID, pq.Float32Array(t.Centroid), t.PointCount, t.CreatedAt, t.LastSeenAt)
		if err != nil {
			return fmt.Errorf("save topic %s: %w", t.ID, err)
		}
	}
	return nil
}
