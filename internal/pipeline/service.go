// Package pipeline runs the weekly insight job: load the week and baseline
// windows, detect topics, compute statistics, evaluate rules, render the
// brief and commit everything in one transaction.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"insight/internal/domain"
	"insight/internal/enhance"
	"insight/internal/notify"
	"insight/internal/platform/metrics"
	"insight/internal/report"
	"insight/internal/rules"
	"insight/internal/stats"
	"insight/internal/storage"
	"insight/internal/topics"
	"insight/internal/topics/cluster"
	dErrors "insight/pkg/domain-errors"
	"insight/pkg/platform/sentinel"
)

const (
	weekLength     = 7 * 24 * time.Hour
	baselineLength = 28 * 24 * time.Hour

	defaultLeaseTTL      = 30 * time.Minute
	defaultNotifyTimeout = 30 * time.Second
)

var (
	// ErrNoEvents means the week window is empty; no brief is produced.
	ErrNoEvents = dErrors.New(dErrors.CodeNoInput, "no events in the week window")
	// ErrRunInProgress means another run holds the lease for the same week.
	ErrRunInProgress = dErrors.New(dErrors.CodeRunInProgress, "a run for this week is already in progress")
)

// Locker grants an exclusive lease per week.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// Backfiller fills missing embeddings and reports how many stayed missing.
type Backfiller interface {
	Backfill(ctx context.Context, events []domain.Event) ([]domain.Event, int)
}

// Enhancer produces the optional narrative layer.
type Enhancer interface {
	Enhance(ctx context.Context, facts enhance.Facts) (*domain.Enhancement, domain.Provenance)
}

// Notifier delivers the finished brief.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, msg notify.Message) error
}

// RunRequest parameterises one run.
type RunRequest struct {
	// Now anchors the windows and stamps the artifacts.
	Now time.Time
}

// Windows are the time ranges of one run. Both are half-open.
type Windows struct {
	Week     domain.Window
	Baseline domain.Window
}

// WindowsFor computes the week and baseline windows ending at now's UTC
// midnight.
func WindowsFor(now time.Time) Windows {
	weekEnd := storage.WeekKey(now)
	weekStart := weekEnd.Add(-weekLength)
	return Windows{
		Week:     domain.Window{Start: weekStart, End: weekEnd},
		Baseline: domain.Window{Start: weekStart.Add(-baselineLength), End: weekStart},
	}
}

// RunResult summarises a completed run.
type RunResult struct {
	Windows           Windows
	Brief             domain.WeeklyBrief
	Artifacts         report.Artifacts
	Plan              topics.Plan
	Rerun             bool
	UnembeddedEvents  int
	NotificationError error
}

// Service runs the weekly pipeline.
type Service struct {
	stores     storage.Stores
	thresholds report.Thresholds
	detector   *topics.Detector
	engine     *rules.Engine

	locker     Locker
	leaseTTL   time.Duration
	backfiller Backfiller
	enhancer   Enhancer
	notifier   Notifier
	notifyTTL  time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithLocker replaces the in-process lease, e.g. with the Redis locker.
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(s *Service) {
		s.locker = l
		if ttl > 0 {
			s.leaseTTL = ttl
		}
	}
}

func WithBackfiller(b Backfiller) Option {
	return func(s *Service) { s.backfiller = b }
}

func WithEnhancer(e Enhancer) Option {
	return func(s *Service) { s.enhancer = e }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithNotifyTimeout bounds delivery of the finished brief.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTTL = d
		}
	}
}

// New creates a Service. Every store in stores is required.
func New(stores storage.Stores, thresholds report.Thresholds, opts ...Option) (*Service, error) {
	if stores.Events == nil || stores.Topics == nil || stores.Links == nil || stores.Briefs == nil || stores.Tx == nil {
		return nil, errors.New("all stores are required")
	}
	if err := thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}

	s := &Service{
		stores:     stores,
		thresholds: thresholds,
		engine:     rules.NewEngine(),
		leaseTTL:   defaultLeaseTTL,
		notifyTTL:  defaultNotifyTimeout,
		logger:     slog.Default(),
		tracer:     otel.Tracer("insight/pipeline"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = NewLocalLocker()
	}

	reconciler := topics.NewReconciler(thresholds.SimilarityThreshold, topics.WithReconcilerLogger(s.logger))
	s.detector = topics.NewDetector(cluster.Config{MinClusterSize: thresholds.MinClusterSize}, reconciler, s.logger)
	return s, nil
}

// Run executes one weekly run.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	now := req.Now.UTC()
	windows := WindowsFor(now)
	weekKey := windows.Week.Start.Format("2006-01-02")

	ctx, span := s.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("week_start", weekKey),
	))
	defer span.End()

	logger := s.logger.With("week_start", weekKey)
	start := time.Now()

	result, err := s.run(ctx, logger, now, windows, weekKey)
	switch {
	case err == nil:
		s.metrics.IncRun("success")
		logger.InfoContext(ctx, "weekly run finished",
			"findings", len(result.Artifacts.Audit.Findings),
			"topics_created", result.Plan.Created,
			"topics_matched", result.Plan.Matched,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	case errors.Is(err, ErrNoEvents):
		s.metrics.IncRun("no_events")
		logger.WarnContext(ctx, "no events in week window, no brief produced")
	case errors.Is(err, ErrRunInProgress):
		s.metrics.IncRun("in_progress")
		logger.WarnContext(ctx, "weekly run skipped, lease held elsewhere")
	default:
		s.metrics.IncRun("failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "weekly run failed", "error", err)
	}
	return result, err
}

func (s *Service) run(ctx context.Context, logger *slog.Logger, now time.Time, windows Windows, weekKey string) (*RunResult, error) {
	release, err := s.locker.Acquire(ctx, "week:"+weekKey, s.leaseTTL)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, ErrRunInProgress
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to acquire run lease")
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.WarnContext(ctx, "failed to release run lease", "error", err)
		}
	}()

	var week, baseline []domain.Event
	var existing []domain.Topic
	err = s.stage(ctx, "load", func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			week, err = s.stores.Events.ListBetween(gctx, windows.Week.Start, windows.Week.End)
			return err
		})
		g.Go(func() error {
			var err error
			baseline, err = s.stores.Events.ListBetween(gctx, windows.Baseline.Start, windows.Baseline.End)
			return err
		})
		g.Go(func() error {
			var err error
			existing, err = s.stores.Topics.List(gctx)
			return err
		})
		return g.Wait()
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load windows")
	}
	if len(week) == 0 {
		return nil, ErrNoEvents
	}
	logger.InfoContext(ctx, "windows loaded",
		"week_events", len(week),
		"baseline_events", len(baseline),
		"known_topics", len(existing),
	)

	result := &RunResult{Windows: windows}

	if s.backfiller != nil {
		_ = s.stage(ctx, "embed", func(ctx context.Context) error {
			week, _ = s.backfiller.Backfill(ctx, week)
			return nil
		})
	}
	for _, e := range week {
		if !e.HasEmbedding() {
			result.UnembeddedEvents++
		}
	}

	weekIDs := make([]string, len(week))
	for i, e := range week {
		weekIDs[i] = e.ID
	}
	priorLinks, err := s.stores.Links.ListForEvents(ctx, weekIDs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load existing links")
	}
	if len(priorLinks) > 0 {
		result.Rerun = true
		s.metrics.IncRerun()
		logger.WarnContext(ctx, "week events are already linked to topics; re-running will count them again in topic point counts",
			"linked_events", len(priorLinks),
		)
	}

	var plan topics.Plan
	err = s.stage(ctx, "detect", func(ctx context.Context) error {
		var err error
		plan, err = s.detector.Detect(ctx, week, existing, now)
		return err
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "topic detection failed")
	}
	result.Plan = plan
	s.metrics.AddTopics(plan.Created, plan.Matched)
	s.metrics.SetClusterNoise(len(week) - result.UnembeddedEvents - len(plan.Links))

	cutoffs := s.thresholds.UrgencyCutoffs
	weekStats := stats.ComputeWindow(week, cutoffs)
	baselineStats := stats.ComputeWindow(baseline, cutoffs)
	deltas := stats.ComputeDeltas(weekStats, baselineStats)
	topicStats := stats.ComputeTopics(week, append(priorLinks, plan.Links...), mergeTopics(existing, plan.Topics), now)

	findings := s.engine.Evaluate(rules.Input{
		Week:       weekStats,
		Baseline:   baselineStats,
		Deltas:     deltas,
		Topics:     topicStats,
		Thresholds: s.thresholds.Thresholds,
	})
	for _, f := range findings {
		s.metrics.IncFinding(string(f.Type), string(f.Severity))
	}
	logger.DebugContext(ctx, "rules evaluated", "rules", s.engine.Rules(), "findings", len(findings))

	var enhancement *domain.Enhancement
	var provenance domain.Provenance
	if s.enhancer != nil {
		_ = s.stage(ctx, "enhance", func(ctx context.Context) error {
			facts := enhance.NewFacts(weekStats, baselineStats, deltas, topicStats, findings)
			enhancement, provenance = s.enhancer.Enhance(ctx, facts)
			return nil
		})
	}

	artifacts := report.Assemble(report.Input{
		WeekStart:     windows.Week.Start,
		WeekEnd:       windows.Week.End,
		BaselineStart: windows.Baseline.Start,
		Week:          weekStats,
		Baseline:      baselineStats,
		Deltas:        deltas,
		Topics:        topicStats,
		Findings:      findings,
		Enhancement:   enhancement,
		Provenance:    provenance,
		Thresholds:    s.thresholds,
		Reconciliation: report.Reconciliation{
			Clustered: len(plan.Links),
			Created:   plan.Created,
			Matched:   plan.Matched,
		},
		Rerun:       result.Rerun,
		GeneratedAt: now,
	})
	result.Artifacts = artifacts

	audit, err := artifacts.Audit.Marshal()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode audit bundle")
	}
	brief := domain.WeeklyBrief{
		WeekStart:   windows.Week.Start,
		WeekEnd:     windows.Week.End,
		Markdown:    artifacts.Markdown,
		Watchlist:   artifacts.Watchlist,
		Audit:       audit,
		Enhancement: provenance,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.stage(ctx, "commit", func(ctx context.Context) error {
		return s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
			if err := s.stores.Topics.Save(ctx, plan.Topics); err != nil {
				return fmt.Errorf("save topics: %w", err)
			}
			if _, err := s.stores.Links.Insert(ctx, plan.Links); err != nil {
				return fmt.Errorf("insert links: %w", err)
			}
			if err := s.stores.Briefs.Upsert(ctx, brief); err != nil {
				return fmt.Errorf("upsert brief: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist run")
	}
	result.Brief = brief

	if s.notifier != nil {
		result.NotificationError = s.deliver(ctx, logger, brief)
	}
	return result, nil
}

// deliver notifies and only logs failures; the brief is already stored.
func (s *Service) deliver(ctx context.Context, logger *slog.Logger, brief domain.WeeklyBrief) error {
	var err error
	_ = s.stage(ctx, "notify", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.notifyTTL)
		defer cancel()
		err = s.notifier.Notify(ctx, notify.Message{
			WeekStart: brief.WeekStart,
			WeekEnd:   brief.WeekEnd,
			Markdown:  brief.Markdown,
			Watchlist: brief.Watchlist,
		})
		return err
	})
	if err != nil {
		s.metrics.IncNotification(s.notifier.Name(), "error")
		logger.WarnContext(ctx, "brief notification failed", "notifier", s.notifier.Name(), "error", err)
		return err
	}
	s.metrics.IncNotification(s.notifier.Name(), "ok")
	return nil
}

// stage runs fn inside a span and records its duration.
func (s *Service) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	s.metrics.ObserveStage(name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// mergeTopics overlays planned topic states onto the stored ones.
func mergeTopics(existing, planned []domain.Topic) []domain.Topic {
	out := make([]domain.Topic, 0, len(existing)+len(planned))
	index := make(map[string]int, len(existing)+len(planned))
	for _, t := range existing {
		index[t.ID.String()] = len(out)
		out = append(out, t)
	}
	for _, t := range planned {
		if i, ok := index[t.ID.String()]; ok {
			out[i] = t
			continue
		}
		index[t.ID.String()] = len(out)
		out = append(out, t)
	}
	return out
}
