package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"insight/internal/domain"
	"insight/internal/storage"
	txcontext "insight/pkg/platform/tx"
)

// BriefStore persists weekly briefs in out_weekly_briefs.
type BriefStore struct {
	db *sql.DB
}

func NewBriefStore(db *sql.DB) *BriefStore {
	return &BriefStore{db: db}
}

// Upsert writes the brief for its week, replacing any earlier run.
func (s *BriefStore) Upsert(ctx context.Context, b domain.WeeklyBrief) error {
	watchlist, err := json.Marshal(b.Watchlist)
	if err != nil {
		return fmt.Errorf("marshal watchlist: %w", err)
	}
	audit := b.Audit
	if len(audit) == 0 {
		audit = json.RawMessage("{}")
	}

	_, err = txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO out_weekly_briefs (
			week_start, week_end, markdown, watchlist_json, audit_json,
			llm_used, llm_provider, llm_model, llm_response_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (week_start) DO UPDATE SET
			week_end = EXCLUDED.week_end,
			markdown = EXCLUDED.markdown,
			watchlist_json = EXCLUDED.watchlist_json,
			audit_json = EXCLUDED.audit_json,
			llm_used = EXCLUDED.llm_used,
			llm_provider = EXCLUDED.llm_provider,
			llm_model = EXCLUDED.llm_model,
			llm_response_id = EXCLUDED.llm_response_id,
			updated_at = now()
	`,
		storage.WeekKey(b.WeekStart),
		storage.WeekKey(b.WeekEnd),
		b.Markdown,
		watchlist,
		[]byte(audit),
		b.Enhancement.Used,
		nullString(b.Enhancement.Provider),
		nullString(b.Enhancement.Model),
		nullString(b.Enhancement.ResponseID),
	)
	if err != nil {
		return fmt.Errorf("upsert brief: %w", err)
	}
	return nil
}

func (s *BriefStore) Get(ctx context.Context, weekStart time.Time) (domain.WeeklyBrief, error) {
	var (
		b                         domain.WeeklyBrief
		watchlist, audit          []byte
		provider, model, response sql.NullString
	)
	err := txcontext.ExecutorFor(ctx, s.db).QueryRowContext(ctx, `
		SELECT week_start, week_end, markdown, watchlist_json, audit_json,
			llm_used, llm_provider, llm_model, llm_response_id, created_at, updated_at
		FROM out_weekly_briefs
		WHERE week_start = $1
	`, storage.WeekKey(weekStart)).Scan(
		&b.WeekStart, &b.WeekEnd, &b.Markdown, &watchlist, &audit,
		&b.Enhancement.Used, &provider, &model, &response, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WeeklyBrief{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.WeeklyBrief{}, fmt.Errorf("get brief: %w", err)
	}
	if err := json.Unmarshal(watchlist, &b.Watchlist); err != nil {
		return domain.WeeklyBrief{}, fmt.Errorf("decode watchlist: %w", err)
	}
	b.Audit = json.RawMessage(audit)
	b.Enhancement.Provider = provider.String
	b.Enhancement.Model = model.String
	b.Enhancement.ResponseID = response.String
	b.WeekStart = storage.WeekKey(b.WeekStart)
	b.WeekEnd = storage.WeekKey(b.WeekEnd)
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, nil
}
