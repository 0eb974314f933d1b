// Package report renders a run's results into the weekly brief, the
// watchlist and the audit bundle. Rendering is pure: the same Input always
// yields the same bytes.
package report

import (
	"errors"
	"fmt"
	"time"

	"insight/internal/domain"
	"insight/internal/rules"
	"insight/internal/stats"
)

// Thresholds are every tunable in force for a run, as recorded in the audit
// bundle.
type Thresholds struct {
	rules.Thresholds `yaml:",inline"`

	MinClusterSize      int     `json:"hdbscan_min_cluster_size" yaml:"min_cluster_size"`
	SimilarityThreshold float64 `json:"topic_similarity_threshold" yaml:"similarity_threshold"`
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Thresholds:          rules.DefaultThresholds(),
		MinClusterSize:      3,
		SimilarityThreshold: 0.85,
	}
}

// Validate checks clustering and rule thresholds together.
func (t Thresholds) Validate() error {
	var errs []error
	if t.MinClusterSize < 2 {
		errs = append(errs, fmt.Errorf("min cluster size %d must be at least 2", t.MinClusterSize))
	}
	if t.SimilarityThreshold <= 0 || t.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("similarity threshold %.2f must be in (0, 1]", t.SimilarityThreshold))
	}
	if err := t.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Reconciliation summarises the topic changes of a run.
type Reconciliation struct {
	Clustered int `json:"clustered_events"`
	Created   int `json:"topics_created"`
	Matched   int `json:"topics_matched"`
}

// Input is everything the renderers need.
type Input struct {
	WeekStart     time.Time
	WeekEnd       time.Time
	BaselineStart time.Time

	Week     stats.WindowStats
	Baseline stats.WindowStats
	Deltas   stats.Deltas
	Topics   []stats.TopicStats
	Findings []domain.Finding

	// Enhancement is nil when no narrative layer was produced.
	Enhancement *domain.Enhancement
	Provenance  domain.Provenance

	Thresholds     Thresholds
	Reconciliation Reconciliation
	Rerun          bool
	GeneratedAt    time.Time
}
