package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight/internal/report"
)

func writeThresholds(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INSIGHT_THRESHOLDS_FILE", "")
	t.Setenv("INSIGHT_KAFKA_BROKERS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Database.TxTimeout)
	assert.Equal(t, 32, cfg.Embedding.BatchSize)
	assert.Equal(t, "grok-beta", cfg.LLM.GrokModel)
	assert.Equal(t, report.DefaultThresholds(), cfg.Thresholds)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, 30*time.Second, cfg.Notify.Timeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Run("env values replace defaults", func(t *testing.T) {
		t.Setenv("INSIGHT_ADDR", ":9000")
		t.Setenv("INSIGHT_RUN_LEASE_TTL", "5m")
		t.Setenv("INSIGHT_KAFKA_BROKERS", " broker-1:9092, broker-2:9092,broker-1:9092 ")
		t.Setenv("SLACK_BOT_TOKEN", "xoxb-1")
		t.Setenv("SLACK_USER_ID", "U123")
		t.Setenv("INSIGHT_NOTIFY_TIMEOUT", "10s")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.Server.Addr)
		assert.Equal(t, 5*time.Minute, cfg.Redis.LeaseTTL)
		assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
		assert.True(t, cfg.Slack.Enabled())
		assert.Equal(t, 10*time.Second, cfg.Notify.Timeout)
	})

	t.Run("malformed numbers fall back to defaults", func(t *testing.T) {
		t.Setenv("INSIGHT_EMBED_BATCH_SIZE", "lots")
		t.Setenv("INSIGHT_LLM_TIMEOUT", "soon")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 32, cfg.Embedding.BatchSize)
		assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	})
}

func TestLoadThresholds(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		got, err := LoadThresholds("")
		require.NoError(t, err)
		assert.Equal(t, report.DefaultThresholds(), got)
	})

	t.Run("file overlays only the keys it names", func(t *testing.T) {
		path := writeThresholds(t, "min_cluster_size: 5\nurgency_medium_max: 8\nattention_sink_share: 0.4\n")

		got, err := LoadThresholds(path)
		require.NoError(t, err)
		assert.Equal(t, 5, got.MinClusterSize)
		assert.Equal(t, 8, got.MediumMax)
		assert.Equal(t, 0.4, got.AttentionSinkShare)
		assert.Equal(t, 3, got.LowMax)
		assert.Equal(t, 0.85, got.SimilarityThreshold)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := LoadThresholds(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		_, err := LoadThresholds(writeThresholds(t, "min_cluster_size: [1, 2"))
		require.Error(t, err)
	})
}

func TestLoadThresholdValidation(t *testing.T) {
	t.Run("env threshold overrides the file", func(t *testing.T) {
		t.Setenv("INSIGHT_THRESHOLDS_FILE", writeThresholds(t, "similarity_threshold: 0.7\n"))
		t.Setenv("TOPIC_SIMILARITY_THRESHOLD", "0.9")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 0.9, cfg.Thresholds.SimilarityThreshold)
	})

	t.Run("inconsistent urgency cutoffs are rejected", func(t *testing.T) {
		t.Setenv("URGENCY_LOW_MAX", "8")
		t.Setenv("URGENCY_MEDIUM_MAX", "7")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid thresholds")
	})

	t.Run("cluster size below two is rejected", func(t *testing.T) {
		t.Setenv("HDBSCAN_MIN_CLUSTER_SIZE", "1")

		_, err := Load()
		require.Error(t, err)
	})
}
