package topics

import (
	"context"
	"log/slog"
	"time"

	"insight/internal/domain"
	"insight/internal/topics/cluster"
)

// Detector clusters a window's embedded events and reconciles the result
// against the known topics.
type Detector struct {
	cluster    cluster.Config
	reconciler *Reconciler
	logger     *slog.Logger
}

// NewDetector wires a Detector. reconciler must not be nil.
func NewDetector(cfg cluster.Config, reconciler *Reconciler, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{cluster: cfg, reconciler: reconciler, logger: logger}
}

// Detect returns the reconciliation plan for events. Events without an
// embedding are skipped. A batch smaller than the minimum cluster size
// yields an empty plan.
func (d *Detector) Detect(ctx context.Context, events []domain.Event, existing []domain.Topic, now time.Time) (Plan, error) {
	embedded := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if e.HasEmbedding() {
			embedded = append(embedded, e)
		}
	}
	if skipped := len(events) - len(embedded); skipped > 0 {
		d.logger.WarnContext(ctx, "events without embedding excluded from clustering", "count", skipped)
	}

	if len(embedded) < d.cluster.MinClusterSize {
		d.logger.InfoContext(ctx, "too few embedded events to cluster",
			"embedded", len(embedded),
			"min_cluster_size", d.cluster.MinClusterSize,
		)
		return Plan{}, nil
	}

	vectors := make([][]float32, len(embedded))
	for i, e := range embedded {
		vectors[i] = e.Embedding
	}
	labels := cluster.Cluster(vectors, d.cluster)
	clusters, noise := cluster.Count(labels)
	d.logger.InfoContext(ctx, "clustered window events",
		"events", len(embedded),
		"clusters", clusters,
		"noise", noise,
	)

	return d.reconciler.Reconcile(ctx, embedded, labels, existing, now)
}
