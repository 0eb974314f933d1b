package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"insight/internal/app"
	"insight/internal/embed"
	"insight/internal/pipeline"
	"insight/internal/platform/config"
	"insight/internal/platform/logger"
	"insight/internal/platform/metrics"
	"insight/internal/platform/redis"
	"insight/internal/report"
	"insight/internal/storage"
	dErrors "insight/pkg/domain-errors"
)

// main runs one weekly analysis and prints the brief and watchlist.
//
// Exit codes: 0 success or empty week, 1 failure, 2 another run holds the
// lease.
func main() {
	os.Exit(run())
}

func run() int {
	var (
		at      = flag.String("now", "", "anchor time (RFC 3339); defaults to the current time")
		show    = flag.String("show", "", "print the stored brief for week start YYYY-MM-DD and exit")
		quiet   = flag.Bool("quiet", false, "do not print the brief")
		noNotif = flag.Bool("no-notify", false, "skip Slack and Kafka delivery")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return 1
	}
	log := logger.New(logger.ParseLevel(cfg.Logging.Level), logger.ParseFormat(cfg.Logging.Format))

	res, err := app.Open(ctx, cfg, log, false)
	if err != nil {
		log.Error("failed to open storage", "error", err)
		return 1
	}
	defer res.Close()

	if *show != "" {
		return showBrief(ctx, res.Stores.Briefs, *show)
	}

	now := time.Now()
	if *at != "" {
		now, err = time.Parse(time.RFC3339, *at)
		if err != nil {
			log.Error("invalid -now", "error", err)
			return 1
		}
	}

	m := metrics.New()
	opts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithMetrics(m),
		pipeline.WithEnhancer(app.NewEnhancer(cfg.LLM, log, m)),
	}
	if res.Redis != nil {
		opts = append(opts, pipeline.WithLocker(redis.NewLocker(res.Redis), cfg.Redis.LeaseTTL))
	} else {
		opts = append(opts, pipeline.WithLocker(pipeline.NewLocalLocker(), cfg.Redis.LeaseTTL))
	}
	if embedder := app.NewEmbedder(cfg.Embedding, log); embedder != nil {
		opts = append(opts, pipeline.WithBackfiller(embed.NewBackfiller(embedder, res.Stores.Events,
			embed.WithBatchSize(cfg.Embedding.BatchSize),
			embed.WithBackfillLogger(log),
			embed.WithMetrics(m),
		)))
	}
	if !*noNotif {
		notifier, closeNotifier := app.NewNotifier(cfg, log)
		defer closeNotifier()
		if notifier != nil {
			opts = append(opts, pipeline.WithNotifier(notifier), pipeline.WithNotifyTimeout(cfg.Notify.Timeout))
		}
	}

	svc, err := pipeline.New(res.Stores, cfg.Thresholds, opts...)
	if err != nil {
		log.Error("failed to build pipeline", "error", err)
		return 1
	}

	result, runErr := svc.Run(ctx, pipeline.RunRequest{Now: now})
	if err := m.Push(context.WithoutCancel(ctx), cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName); err != nil {
		log.Warn("failed to push metrics", "error", err)
	}

	switch {
	case runErr == nil:
	case errors.Is(runErr, pipeline.ErrNoEvents):
		return 0
	case dErrors.HasCode(runErr, dErrors.CodeRunInProgress):
		return 2
	default:
		return 1
	}

	if !*quiet {
		printBrief(result.Brief.Markdown, result.Brief.Watchlist)
	}
	return 0
}

func showBrief(ctx context.Context, briefs storage.BriefStore, week string) int {
	weekStart, err := time.Parse("2006-01-02", week)
	if err != nil {
		fmt.Fprintln(os.Stderr, "week must be YYYY-MM-DD")
		return 1
	}
	brief, err := briefs.Get(ctx, weekStart)
	if err != nil {
		fmt.Fprintln(os.Stderr, "no brief:", err)
		return 1
	}
	// Stored audits replay to the stored markdown; print the replay so a
	// divergence would be visible.
	if bundle, err := report.ParseAudit(brief.Audit); err == nil {
		brief.Markdown = report.Rerender(bundle, nil)
	}
	printBrief(brief.Markdown, brief.Watchlist)
	return 0
}

func printBrief(markdown string, watchlist []string) {
	rule := strings.Repeat("=", 80)
	fmt.Println(rule)
	fmt.Print(markdown)
	fmt.Println(rule)
	fmt.Println("Watchlist:")
	if len(watchlist) == 0 {
		fmt.Println("  (empty)")
	}
	for _, item := range watchlist {
		fmt.Println("  -", item)
	}
}
