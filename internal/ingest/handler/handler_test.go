package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight/internal/domain"
	"insight/internal/ingest"
	"insight/internal/platform/metrics"
	"insight/internal/storage"
	authmw "insight/pkg/platform/middleware/auth"
	"insight/pkg/platform/middleware/request"
	"insight/pkg/testutil"
)

type staticValidator map[string]string

func (v staticValidator) ValidateToken(token string) (*authmw.JWTClaims, error) {
	if sub, ok := v[token]; ok {
		return &authmw.JWTClaims{Subject: sub}, nil
	}
	return nil, assert.AnError
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, assert.AnError
}

func eventBody(id, source string) map[string]any {
	return map[string]any{
		"id":                 id,
		"source":             source,
		"timestamp":          "2026-03-04T09:00:00Z",
		"actor":              "alice@example.com",
		"direction":          "inbound",
		"subject":            "Pricing",
		"text":               "Can we revisit pricing?",
		"decision":           "deferred",
		"follow_up_required": true,
		"urgency_score":      7,
		"raw_ref":            "ref-" + id,
	}
}

func newRouter(t *testing.T, db *storage.MemoryDB, validator authmw.JWTValidator) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	m := metrics.New()
	svc := ingest.NewService(db.Events(), db.Briefs(),
		ingest.WithEmbedder(failingEmbedder{}, time.Second),
		ingest.WithLogger(logger),
		ingest.WithMetrics(m),
	)
	r := chi.NewRouter()
	r.Use(request.RequestID)
	New(svc, logger, validator, m.Registry()).Register(r)
	return r
}

func TestIngest(t *testing.T) {
	db := storage.NewMemoryDB()
	router := newRouter(t, db, nil)

	testutil.Given(t, "a valid email event", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/ingest/email", eventBody("m1", "email")))

		testutil.Then(t, "it is stored without a vector when embedding fails", func(t *testing.T) {
			testutil.AssertStatusOK(t, rr)
			resp := testutil.UnmarshalResponse[IngestResponse](t, rr)
			assert.Equal(t, IngestResponse{OK: true, ID: "m1", Embedded: false}, *resp)

			stored, err := db.Events().Get(context.Background(), "m1")
			require.NoError(t, err)
			assert.Equal(t, domain.SentimentUnknown, stored.Sentiment)
			assert.True(t, stored.FollowUpRequired)
		})
	})

	testutil.Given(t, "a meeting posted to the email route", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/ingest/email", eventBody("t1", "meeting")))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
	})

	testutil.Given(t, "an out of range urgency", func(t *testing.T) {
		body := eventBody("m2", "email")
		body["urgency_score"] = 12
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/ingest/email", body))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
	})

	testutil.Given(t, "a malformed body", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequestWithBody(t, http.MethodPost, "/ingest/meeting", "{"))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})

	testutil.When(t, "stats are requested", func(t *testing.T) {
		testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/ingest/meeting", eventBody("t2", "meeting")))
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/stats"))
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[storage.EventCounts](t, rr)
		assert.Equal(t, storage.EventCounts{Total: 2, Email: 1, Meeting: 1}, *resp)
	})
}

func TestBriefs(t *testing.T) {
	db := storage.NewMemoryDB()
	router := newRouter(t, db, nil)
	week := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Briefs().Upsert(context.Background(), domain.WeeklyBrief{
		WeekStart: week,
		WeekEnd:   week.AddDate(0, 0, 7),
		Markdown:  "# Weekly Strategic Brief",
		Watchlist: []string{"pricing"},
		Audit:     []byte(`{"version":"1.2"}`),
	}))

	t.Run("stored week is returned", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/briefs/2026-03-02"))
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[BriefResponse](t, rr)
		assert.Equal(t, "2026-03-09", resp.WeekEnd)
		assert.Equal(t, []string{"pricing"}, resp.Watchlist)
		assert.JSONEq(t, `{"version":"1.2"}`, string(resp.Audit))
	})

	t.Run("unknown week is not found", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/briefs/2026-03-09"))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})

	t.Run("bad date is rejected", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/briefs/last-week"))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})
}

func TestAuthGuard(t *testing.T) {
	router := newRouter(t, storage.NewMemoryDB(), staticValidator{"good": "gmail-collector"})

	t.Run("health stays open", func(t *testing.T) {
		testutil.AssertStatusOK(t, testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health")))
	})

	t.Run("ingest needs a token", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/ingest/email", eventBody("m1", "email")))
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("valid token is accepted", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/ingest/email", eventBody("m1", "email"))
		req.Header.Set("Authorization", "Bearer good")
		testutil.AssertStatusOK(t, testutil.DoRequest(router, req))
	})
}

func TestMetricsEndpoint(t *testing.T) {
	router := newRouter(t, storage.NewMemoryDB(), nil)
	testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/ingest/email", eventBody("m1", "email")))

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	testutil.AssertStatusOK(t, rr)
	assert.Contains(t, rr.Body.String(), "insight_events_ingested_total")
}
