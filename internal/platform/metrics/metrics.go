package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the Prometheus collectors for ingestion and the weekly run.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Run outcomes: success, no_events, in_progress, failed
	RunsTotal *prometheus.CounterVec
	// Duration of each pipeline stage
	StageDuration *prometheus.HistogramVec

	FindingsTotal      *prometheus.CounterVec
	TopicsTotal        *prometheus.CounterVec
	ClusterNoise       prometheus.Gauge
	RerunsTotal        prometheus.Counter
	EnhancementsTotal  *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec

	EventsIngested  *prometheus.CounterVec
	EmbeddingsTotal *prometheus.CounterVec
}

// New creates a Metrics instance registered on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "insight_weekly_runs_total",
			Help: "Weekly runs by outcome",
		}, []string{"status"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "insight_weekly_stage_duration_seconds",
			Help:    "Duration of weekly pipeline stages",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		FindingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "insight_findings_total",
			Help: "Findings emitted by rule type and severity",
		}, []string{"type", "severity"}),
		TopicsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "insight_topics_total",
			Help: "Topics created or matched during reconciliation",
		}, []string{"outcome"}),
		ClusterNoise: f.NewGauge(prometheus.GaugeOpts{
			Name: "insight_cluster_noise_events",
			Help: "Events labelled noise in the latest run",
		}),
		RerunsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "insight_weekly_reruns_total",
			Help: "Runs over a week whose events were already linked to topics",
		}),
		EnhancementsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "insight_enhancements_total",
			Help: "Narrative enhancement attempts by provider and outcome",
		}, []string{"provider", "outcome"}),
		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "insight_notifications_total",
			Help: "Brief notifications by notifier and outcome",
		}, []string{"notifier", "outcome"}),
		EventsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "insight_events_ingested_total",
			Help: "Events accepted by the ingestion API by source",
		}, []string{"source"}),
		EmbeddingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "insight_embeddings_total",
			Help: "Embedding requests by call site and outcome",
		}, []string{"site", "outcome"}),
	}
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) IncRun(status string) {
	if m != nil {
		m.RunsTotal.WithLabelValues(status).Inc()
	}
}

// ObserveStage records the duration of a pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

func (m *Metrics) IncFinding(findingType, severity string) {
	if m != nil {
		m.FindingsTotal.WithLabelValues(findingType, severity).Inc()
	}
}

// AddTopics records reconciliation outcomes.
func (m *Metrics) AddTopics(created, matched int) {
	if m != nil {
		m.TopicsTotal.WithLabelValues("created").Add(float64(created))
		m.TopicsTotal.WithLabelValues("matched").Add(float64(matched))
	}
}

func (m *Metrics) SetClusterNoise(n int) {
	if m != nil {
		m.ClusterNoise.Set(float64(n))
	}
}

func (m *Metrics) IncRerun() {
	if m != nil {
		m.RerunsTotal.Inc()
	}
}

func (m *Metrics) IncEnhancement(provider, outcome string) {
	if m != nil {
		m.EnhancementsTotal.WithLabelValues(provider, outcome).Inc()
	}
}

func (m *Metrics) IncNotification(notifier, outcome string) {
	if m != nil {
		m.NotificationsTotal.WithLabelValues(notifier, outcome).Inc()
	}
}

func (m *Metrics) IncIngested(source string) {
	if m != nil {
		m.EventsIngested.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) IncEmbedding(site, outcome string) {
	if m != nil {
		m.EmbeddingsTotal.WithLabelValues(site, outcome).Inc()
	}
}

// Push sends every collector to the Pushgateway at url under job. The
// weekly job exits after a run, so its metrics are pushed rather than
// scraped.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
