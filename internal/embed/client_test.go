package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embeddingServer(t *testing.T, handler func(w http.ResponseWriter, req request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeVectors(w http.ResponseWriter, vectors [][]float32) {
	type item struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}
	data := make([]item, len(vectors))
	// reversed order: the client must place vectors by index
	for i := range vectors {
		j := len(vectors) - 1 - i
		data[i] = item{Embedding: vectors[j], Index: j}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func newTestClient(t *testing.T, endpoint string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{Provider: "custom", Endpoint: endpoint, APIKey: "k", Model: "m", MaxRetries: 2}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(cfg, WithBackoff(time.Millisecond), WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	require.NoError(t, err)
	return c
}

func TestNewClientConfig(t *testing.T) {
	t.Run("ollama gets default endpoint and needs no key", func(t *testing.T) {
		c, err := NewClient(Config{Provider: "ollama", Model: "all-minilm"})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:11434/v1/embeddings", c.cfg.Endpoint)
	})

	t.Run("openai without key is rejected", func(t *testing.T) {
		_, err := NewClient(Config{Provider: "openai", Model: "text-embedding-3-small"})
		require.Error(t, err)
	})

	t.Run("custom without endpoint is rejected", func(t *testing.T) {
		_, err := NewClient(Config{Provider: "custom", Model: "m", APIKey: "k"})
		require.Error(t, err)
	})

	t.Run("missing model is rejected", func(t *testing.T) {
		_, err := NewClient(Config{Provider: "ollama"})
		require.Error(t, err)
	})
}

func TestEmbedBatch(t *testing.T) {
	t.Run("vectors are placed by response index", func(t *testing.T) {
		srv := embeddingServer(t, func(w http.ResponseWriter, req request) {
			assert.Equal(t, "m", req.Model)
			vectors := make([][]float32, len(req.Input))
			for i := range req.Input {
				vectors[i] = []float32{float32(i), 1}
			}
			writeVectors(w, vectors)
		})
		c := newTestClient(t, srv.URL, nil)

		out, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, []float32{2, 1}, out[2])
	})

	t.Run("server errors are retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := embeddingServer(t, func(w http.ResponseWriter, req request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			writeVectors(w, [][]float32{{1, 2}})
		})
		c := newTestClient(t, srv.URL, nil)

		v, err := c.Embed(context.Background(), "hello")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2}, v)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := embeddingServer(t, func(w http.ResponseWriter, req request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		})
		c := newTestClient(t, srv.URL, nil)

		_, err := c.Embed(context.Background(), "hello")
		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("dimension mismatch is an error", func(t *testing.T) {
		srv := embeddingServer(t, func(w http.ResponseWriter, req request) {
			writeVectors(w, [][]float32{{1, 2, 3}})
		})
		c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.Dimensions = 384; cfg.MaxRetries = 0 })

		_, err := c.Embed(context.Background(), "hello")
		require.Error(t, err)
	})

	t.Run("short response is an error", func(t *testing.T) {
		srv := embeddingServer(t, func(w http.ResponseWriter, req request) {
			writeVectors(w, [][]float32{{1}})
		})
		c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.MaxRetries = 0 })

		_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
		require.Error(t, err)
	})

	t.Run("empty text is rejected without a call", func(t *testing.T) {
		c := newTestClient(t, "http://127.0.0.1:1", nil)
		_, err := c.Embed(context.Background(), "   ")
		require.Error(t, err)
	})
}
