package domain

import (
	"encoding/json"
	"time"
)

// Enhancement is the optional narrative layer returned by an LLM provider.
type Enhancement struct {
	Signals            []string `json:"signals"`
	Drift              []string `json:"drift"`
	DecisionPressure   []string `json:"decision_pressure"`
	RecommendedActions []string `json:"recommended_actions"`
	Watchlist          []string `json:"watchlist"`
}

// Provenance records whether and how the narrative layer was produced.
type Provenance struct {
	Used       bool   `json:"used"`
	Provider   string `json:"provider,omitempty"`
	Model      string `json:"model"`
	ResponseID string `json:"response_id"`
}

// WeeklyBrief is the durable output of one run, keyed by WeekStart.
type WeeklyBrief struct {
	WeekStart   time.Time       `json:"week_start"`
	WeekEnd     time.Time       `json:"week_end"`
	Markdown    string          `json:"markdown"`
	Watchlist   []string        `json:"watchlist"`
	Audit       json.RawMessage `json:"audit"`
	Enhancement Provenance      `json:"enhancement"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
