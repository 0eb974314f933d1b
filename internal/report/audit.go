package report

import (
	"encoding/json"
	"fmt"
	"time"

	"insight/internal/domain"
	"insight/internal/stats"
)

// AuditVersion identifies the audit bundle layout.
const AuditVersion = "1.2"

type TimeWindows struct {
	WeekStart     time.Time `json:"week_start"`
	WeekEnd       time.Time `json:"week_end"`
	BaselineStart time.Time `json:"baseline_start"`
}

type WindowMetrics struct {
	Week     stats.WindowStats `json:"week"`
	Baseline stats.WindowStats `json:"baseline"`
}

// EnhancementRecord is the provenance of the narrative layer plus the
// narrative itself, so a brief can be re-rendered from the audit alone.
type EnhancementRecord struct {
	domain.Provenance

	Output *domain.Enhancement `json:"output,omitempty"`
}

// AuditBundle is the authoritative, replayable record of a run.
type AuditBundle struct {
	Version        string             `json:"version"`
	GeneratedAt    time.Time          `json:"generated_at"`
	TimeWindows    TimeWindows        `json:"time_windows"`
	Metrics        WindowMetrics      `json:"metrics"`
	Deltas         stats.Deltas       `json:"deltas"`
	Topics         []stats.TopicStats `json:"topics"`
	Findings       []domain.Finding   `json:"findings"`
	Thresholds     Thresholds         `json:"thresholds"`
	Enhancement    EnhancementRecord  `json:"llm_enhancement"`
	Reconciliation Reconciliation     `json:"reconciliation"`
	Rerun          bool               `json:"rerun"`
}

// BuildAudit snapshots the run.
func BuildAudit(in Input) AuditBundle {
	topics := in.Topics
	if topics == nil {
		topics = []stats.TopicStats{}
	}
	findings := in.Findings
	if findings == nil {
		findings = []domain.Finding{}
	}
	return AuditBundle{
		Version:     AuditVersion,
		GeneratedAt: in.GeneratedAt.UTC(),
		TimeWindows: TimeWindows{
			WeekStart:     in.WeekStart.UTC(),
			WeekEnd:       in.WeekEnd.UTC(),
			BaselineStart: in.BaselineStart.UTC(),
		},
		Metrics:        WindowMetrics{Week: in.Week, Baseline: in.Baseline},
		Deltas:         in.Deltas,
		Topics:         topics,
		Findings:       findings,
		Thresholds:     in.Thresholds,
		Enhancement:    EnhancementRecord{Provenance: in.Provenance, Output: in.Enhancement},
		Reconciliation: in.Reconciliation,
		Rerun:          in.Rerun,
	}
}

// Input reconstructs the renderer input recorded in the bundle.
func (a AuditBundle) Input() Input {
	return Input{
		WeekStart:      a.TimeWindows.WeekStart,
		WeekEnd:        a.TimeWindows.WeekEnd,
		BaselineStart:  a.TimeWindows.BaselineStart,
		Week:           a.Metrics.Week,
		Baseline:       a.Metrics.Baseline,
		Deltas:         a.Deltas,
		Topics:         a.Topics,
		Findings:       a.Findings,
		Enhancement:    a.Enhancement.Output,
		Provenance:     a.Enhancement.Provenance,
		Thresholds:     a.Thresholds,
		Reconciliation: a.Reconciliation,
		Rerun:          a.Rerun,
		GeneratedAt:    a.GeneratedAt,
	}
}

// Marshal encodes the bundle for storage.
func (a AuditBundle) Marshal() (json.RawMessage, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal audit bundle: %w", err)
	}
	return raw, nil
}

// ParseAudit decodes a stored bundle.
func ParseAudit(raw []byte) (AuditBundle, error) {
	var a AuditBundle
	if err := json.Unmarshal(raw, &a); err != nil {
		return AuditBundle{}, fmt.Errorf("parse audit bundle: %w", err)
	}
	if a.Version != AuditVersion {
		return AuditBundle{}, fmt.Errorf("unsupported audit version %q", a.Version)
	}
	return a, nil
}

// Rerender renders the brief recorded in bundle again. A non-nil
// enhancement replaces the recorded narrative layer.
func Rerender(bundle AuditBundle, enhancement *domain.Enhancement) string {
	in := bundle.Input()
	if enhancement != nil {
		in.Enhancement = enhancement
	}
	return RenderBrief(in)
}
