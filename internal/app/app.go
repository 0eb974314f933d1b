// Package app builds the collaborators shared by the server and the weekly
// job from configuration.
package app

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"insight/internal/embed"
	"insight/internal/enhance"
	"insight/internal/notify"
	"insight/internal/platform/config"
	"insight/internal/platform/metrics"
	"insight/internal/platform/redis"
	"insight/internal/storage"
	"insight/internal/storage/postgres"
)

// Resources owns everything that needs closing at shutdown.
type Resources struct {
	Stores  storage.Stores
	DB      *sql.DB
	Redis   *redis.Client
	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (r *Resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// Open connects to Postgres (or falls back to memory when allowMemory is
// set and no URL is configured) and to Redis when configured.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, allowMemory bool) (*Resources, error) {
	res := &Resources{}

	if cfg.Database.URL == "" {
		if !allowMemory {
			return nil, config.ErrDatabaseRequired
		}
		logger.WarnContext(ctx, "DATABASE_URL not set, using in-memory storage")
		res.Stores = storage.NewMemoryDB().Stores()
	} else {
		db, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		res.closers = append(res.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			res.Close()
			return nil, err
		}
		res.DB = db
		res.Stores = postgres.NewStores(db)
		res.Stores.Tx = postgres.NewTxRunner(db, cfg.Database.TxTimeout)
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		res.Close()
		return nil, err
	}
	if rc != nil {
		res.Redis = rc
		res.closers = append(res.closers, func() { _ = rc.Close() })
	}
	return res, nil
}

// NewEmbedder builds the embedding client. A configuration error disables
// embedding rather than failing startup; events are backfilled later.
func NewEmbedder(cfg config.EmbeddingConfig, logger *slog.Logger) *embed.Client {
	client, err := embed.NewClient(embed.Config{
		Provider:   cfg.Provider,
		Endpoint:   cfg.Endpoint,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Timeout:    cfg.Timeout,
	}, embed.WithLogger(logger))
	if err != nil {
		logger.Warn("embedding disabled", "error", err)
		return nil
	}
	return client
}

// NewEnhancer builds the Grok-then-OpenAI chain from the keys present.
func NewEnhancer(cfg config.LLMConfig, logger *slog.Logger, m *metrics.Metrics) *enhance.Chain {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	var providers []enhance.Provider
	if cfg.GrokAPIKey != "" {
		p, err := enhance.NewGrok(cfg.GrokURL, cfg.GrokAPIKey, cfg.GrokModel, httpClient)
		if err != nil {
			logger.Warn("grok provider disabled", "error", err)
		} else {
			providers = append(providers, p)
		}
	}
	if cfg.OpenAIAPIKey != "" {
		p, err := enhance.NewOpenAI(cfg.OpenAIURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, httpClient)
		if err != nil {
			logger.Warn("openai provider disabled", "error", err)
		} else {
			providers = append(providers, p)
		}
	}
	return enhance.NewChain(providers,
		enhance.WithTimeout(cfg.Timeout),
		enhance.WithLogger(logger),
		enhance.WithMetrics(m),
	)
}

// NewNotifier fans out to every configured channel. It returns nil when none
// is configured, plus a cleanup func that is always safe to call.
func NewNotifier(cfg config.Config, logger *slog.Logger) (notify.Notifier, func()) {
	var out notify.Multi
	cleanup := func() {}
	if cfg.Slack.Enabled() {
		s, err := notify.NewSlack(cfg.Slack.BotToken, cfg.Slack.UserID, cfg.Slack.BaseURL, &http.Client{Timeout: cfg.Notify.Timeout})
		if err != nil {
			logger.Warn("slack notifier disabled", "error", err)
		} else {
			out = append(out, s)
		}
	}
	if cfg.Kafka.Enabled() {
		k, err := notify.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Warn("kafka notifier disabled", "error", err)
		} else {
			out = append(out, k)
			cleanup = k.Close
		}
	}
	if len(out) == 0 {
		return nil, cleanup
	}
	return out, cleanup
}
