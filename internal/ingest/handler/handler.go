package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"insight/internal/domain"
	"insight/internal/ingest"
	"insight/internal/storage"
	dErrors "insight/pkg/domain-errors"
	"insight/pkg/platform/httputil"
	authmw "insight/pkg/platform/middleware/auth"
	"insight/pkg/requestcontext"
)

const dateLayout = "2006-01-02"

// Service defines the ingestion operations the handler needs.
type Service interface {
	Ingest(ctx context.Context, event domain.Event) (ingest.Result, error)
	Stats(ctx context.Context) (storage.EventCounts, error)
	Brief(ctx context.Context, weekStart time.Time) (domain.WeeklyBrief, error)
}

// Handler wires the ingestion API to the ingest service.
type Handler struct {
	service   Service
	logger    *slog.Logger
	validator authmw.JWTValidator
	gatherer  prometheus.Gatherer
}

// New constructs a handler. A nil validator leaves the ingest routes open;
// a nil gatherer omits /metrics.
func New(service Service, logger *slog.Logger, validator authmw.JWTValidator, gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		service:   service,
		logger:    logger,
		validator: validator,
		gatherer:  gatherer,
	}
}

// Register mounts the ingestion endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(h.validator, h.logger))
		r.Post("/ingest/email", h.handleIngest(domain.SourceEmail))
		r.Post("/ingest/meeting", h.handleIngest(domain.SourceMeeting))
		r.Get("/stats", h.HandleStats)
		r.Get("/briefs/{weekStart}", h.HandleGetBrief)
	})
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": requestcontext.Now(r.Context()).UTC().Format(time.RFC3339),
	})
}

// handleIngest handles POST /ingest/{source}. The body's source must match
// the route.
func (h *Handler) handleIngest(source domain.Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestcontext.RequestID(ctx)
		start := time.Now()

		req, ok := httputil.DecodeAndPrepare[EventRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
		if domain.Source(req.Source) != source {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation,
				"source must be \""+string(source)+"\" on this endpoint"))
			return
		}

		result, err := h.service.Ingest(ctx, req.Event())
		if err != nil {
			h.logger.ErrorContext(ctx, "event ingestion failed",
				"request_id", requestID,
				"event_id", req.ID,
				"error", err,
			)
			httputil.WriteError(w, err)
			return
		}

		h.logger.InfoContext(ctx, "event ingested",
			"request_id", requestID,
			"event_id", result.ID,
			"source", source,
			"subject", requestcontext.Subject(ctx),
			"embedded", result.Embedded,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		httputil.WriteJSON(w, http.StatusOK, IngestResponse{OK: true, ID: result.ID, Embedded: result.Embedded})
	}
}

// HandleStats handles GET /stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts, err := h.service.Stats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to get stats",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, counts)
}

// HandleGetBrief handles GET /briefs/{weekStart} with weekStart as YYYY-MM-DD.
func (h *Handler) HandleGetBrief(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	weekStart, err := time.Parse(dateLayout, chi.URLParam(r, "weekStart"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "weekStart must be a YYYY-MM-DD date"))
		return
	}

	brief, err := h.service.Brief(ctx, weekStart)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "failed to load brief",
				"request_id", requestcontext.RequestID(ctx),
				"week_start", weekStart.Format(dateLayout),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromBrief(brief))
}
