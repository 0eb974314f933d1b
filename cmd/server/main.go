package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"insight/internal/app"
	"insight/internal/ingest"
	ingesthandler "insight/internal/ingest/handler"
	jwttoken "insight/internal/jwt_token"
	"insight/internal/platform/config"
	"insight/internal/platform/httpserver"
	"insight/internal/platform/logger"
	"insight/internal/platform/metrics"
	authmw "insight/pkg/platform/middleware/auth"
	"insight/pkg/platform/middleware/request"
	"insight/pkg/platform/middleware/requesttime"
)

// main wires the ingestion API. Analysis runs in cmd/weekly.
func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.ParseLevel("info"), logger.FormatJSON).Error("invalid configuration", "error", err)
		return 1
	}
	log := logger.New(logger.ParseLevel(cfg.Logging.Level), logger.ParseFormat(cfg.Logging.Format))

	res, err := app.Open(ctx, cfg, log, true)
	if err != nil {
		log.Error("failed to open storage", "error", err)
		return 1
	}
	defer res.Close()

	m := metrics.New()
	opts := []ingest.Option{ingest.WithLogger(log), ingest.WithMetrics(m)}
	if embedder := app.NewEmbedder(cfg.Embedding, log); embedder != nil {
		opts = append(opts, ingest.WithEmbedder(embedder, cfg.Embedding.Timeout))
	}
	svc := ingest.NewService(res.Stores.Events, res.Stores.Briefs, opts...)

	var validator authmw.JWTValidator
	if cfg.Server.JWTSigningKey != "" {
		validator = jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer))
	} else {
		log.Warn("INSIGHT_JWT_SIGNING_KEY not set, ingestion routes are unauthenticated")
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(log))
	r.Use(chimw.Timeout(60 * time.Second))
	ingesthandler.New(svc, log, validator, m.Registry()).Register(r)

	srv := httpserver.New(cfg.Server.Addr, r)
	log.Info("starting insight server", "addr", cfg.Server.Addr)
	if err := httpserver.Run(ctx, srv, log); err != nil {
		log.Error("server stopped with error", "error", err)
		return 1
	}
	return 0
}
