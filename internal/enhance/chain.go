package enhance

import (
	"context"
	"log/slog"
	"time"

	"insight/internal/domain"
	"insight/internal/platform/metrics"
)

const defaultProviderTimeout = 60 * time.Second

// Chain tries providers in order; the first valid answer wins.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) ChainOption {
	return func(c *Chain) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) ChainOption {
	return func(c *Chain) { c.metrics = m }
}

// NewChain builds a chain. Nil providers are skipped so callers can pass
// optional ones unconditionally.
func NewChain(providers []Provider, opts ...ChainOption) *Chain {
	c := &Chain{
		timeout: defaultProviderTimeout,
		logger:  slog.Default(),
	}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Len reports how many providers are configured.
func (c *Chain) Len() int {
	return len(c.providers)
}

// Enhance returns the first successful enhancement and its provenance. When
// every provider fails, or none is configured, it returns nil and
// Provenance{Used: false}; the brief then falls back to rule-derived text.
func (c *Chain) Enhance(ctx context.Context, facts Facts) (*domain.Enhancement, domain.Provenance) {
	for _, p := range c.providers {
		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		enhancement, meta, err := p.Enhance(callCtx, facts)
		cancel()

		if err != nil {
			c.metrics.IncEnhancement(p.Name(), "error")
			c.logger.WarnContext(ctx, "enhancement provider failed",
				"provider", p.Name(),
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err,
			)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		c.metrics.IncEnhancement(p.Name(), "ok")
		c.logger.InfoContext(ctx, "enhancement produced",
			"provider", p.Name(),
			"model", meta.Model,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return enhancement, domain.Provenance{
			Used:       true,
			Provider:   p.Name(),
			Model:      meta.Model,
			ResponseID: meta.ResponseID,
		}
	}

	if len(c.providers) > 0 {
		c.logger.WarnContext(ctx, "all enhancement providers failed, proceeding without enhancement")
	}
	return nil, domain.Provenance{Used: false}
}
