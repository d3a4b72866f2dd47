package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/textengine/internal/apperr"
	"github.com/zombar/textengine/internal/engine"
	"github.com/zombar/textengine/internal/executor"
	"github.com/zombar/textengine/internal/metrics"
	"github.com/zombar/textengine/internal/models"
	"github.com/zombar/textengine/internal/prompt"
	"github.com/zombar/textengine/internal/queue"
	"github.com/zombar/textengine/internal/schema"
	"github.com/zombar/textengine/internal/tracing"
	"github.com/zombar/textengine/pkg/logging"
)

// MinAuditLength is the shortest text accepted by POST /api/analyze
const MinAuditLength = 100

const maxBodyBytes = 1 << 20

// Engine runs the synchronous operations
type Engine interface {
	Analyze(ctx context.Context, text string) (models.AnalysisResult, error)
	Humanize(ctx context.Context, text string, mode models.Mode) (models.RewriteResult, error)
	SmartHumanize(ctx context.Context, text string) (engine.SmartResult, error)
}

// Jobs submits asynchronous operations
type Jobs interface {
	EnqueueAnalyze(ctx context.Context, requestID, text string) (string, error)
	EnqueueHumanize(ctx context.Context, requestID, text string, mode models.Mode, smart bool) (string, error)
}

// JobStatus looks up a submitted job
type JobStatus interface {
	GetJob(id string) (queue.Job, error)
}

// Journal lists the recorded attempts of a request
type Journal interface {
	ListAttempts(ctx context.Context, requestID string) ([]models.AttemptRecord, error)
}

// Options configures the optional parts of the API. Nil fields disable the
// routes that need them.
type Options struct {
	Jobs           Jobs
	JobStatus      JobStatus
	Journal        Journal
	Registry       *prometheus.Registry
	Logger         *slog.Logger
	AllowedOrigins []string
}

// Handler handles HTTP requests
type Handler struct {
	engine    Engine
	jobs      Jobs
	jobStatus JobStatus
	journal   Journal
	registry  *prometheus.Registry
	metrics   *metrics.HTTP
	logger    *slog.Logger
	mux       *http.ServeMux
}

// NewHandler creates the API handler with CORS support and metrics
func NewHandler(eng Engine, opts Options) http.Handler {
	h := newHandler(eng, opts)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{logging.RequestIDHeader},
	})
	return c.Handler(h.mux)
}

func newHandler(eng Engine, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		engine:    eng,
		jobs:      opts.Jobs,
		jobStatus: opts.JobStatus,
		journal:   opts.Journal,
		registry:  opts.Registry,
		logger:    logger.With("component", "api"),
		mux:       http.NewServeMux(),
	}
	if h.registry != nil {
		h.metrics = metrics.NewHTTP("textengine", h.registry)
	}
	h.setupRoutes()
	return h
}

// setupRoutes configures all API routes
func (h *Handler) setupRoutes() {
	if h.registry != nil {
		h.mux.Handle("GET /metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	}
	h.route("GET /health", h.handleHealth)
	h.route("GET /api/modes", h.handleModes)
	h.route("POST /api/analyze", h.handleAnalyze)
	h.route("POST /api/humanize", h.handleHumanize)
	h.route("POST /api/humanize/smart", h.handleSmartHumanize)

	if h.jobs != nil {
		h.route("POST /api/jobs/analyze", h.handleEnqueueAnalyze)
		h.route("POST /api/jobs/humanize", h.handleEnqueueHumanize)
	}
	if h.jobStatus != nil {
		h.route("GET /api/jobs/{id}", h.handleJobStatus)
	}
	if h.journal != nil {
		h.route("GET /api/requests/{id}/attempts", h.handleAttempts)
	}
}

func (h *Handler) route(pattern string, fn http.HandlerFunc) {
	var handler http.Handler = fn
	if h.metrics != nil {
		handler = h.metrics.Middleware(pattern, handler)
	}
	h.mux.Handle(pattern, handler)
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}, http.StatusOK)
}

func (h *Handler) handleModes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, prompt.Catalogue(), http.StatusOK)
}

type textRequest struct {
	Text string `json:"text" validate:"required"`
}

type humanizeRequest struct {
	Text string `json:"text" validate:"required"`
	Mode string `json:"mode" validate:"omitempty,max=32"`
}

// handleAnalyze runs a full audit. Audits need more context than rewrites.
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !h.bind(w, r, &req) {
		return
	}
	ctx := h.requestContext(w, r)
	if err := engine.ValidateText(req.Text, MinAuditLength); err != nil {
		h.fail(w, r, err)
		return
	}

	tracing.SetSpanAttributes(ctx, attribute.Int("text.length", len(req.Text)))

	result, err := h.engine.Analyze(ctx, req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, result, http.StatusOK)
}

func (h *Handler) handleHumanize(w http.ResponseWriter, r *http.Request) {
	var req humanizeRequest
	if !h.bind(w, r, &req) {
		return
	}

	mode := models.ParseMode(req.Mode)
	tracing.SetSpanAttributes(r.Context(),
		attribute.Int("text.length", len(req.Text)),
		attribute.String("rewrite.mode", string(mode)),
	)

	result, err := h.engine.Humanize(h.requestContext(w, r), req.Text, mode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, result, http.StatusOK)
}

func (h *Handler) handleSmartHumanize(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !h.bind(w, r, &req) {
		return
	}

	result, err := h.engine.SmartHumanize(h.requestContext(w, r), req.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, result, http.StatusOK)
}

type jobResponse struct {
	JobID     string `json:"job_id"`
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// handleEnqueueAnalyze validates before enqueueing so a bad job never runs
func (h *Handler) handleEnqueueAnalyze(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !h.bind(w, r, &req) {
		return
	}
	ctx := h.requestContext(w, r)
	if err := engine.ValidateText(req.Text, MinAuditLength); err != nil {
		h.fail(w, r, err)
		return
	}

	requestID := executor.RequestIDFrom(ctx)
	jobID, err := h.jobs.EnqueueAnalyze(ctx, requestID, req.Text)
	if err != nil {
		h.fail(w, r, fmt.Errorf("failed to enqueue analysis: %w", err))
		return
	}
	respondJSON(w, jobResponse{JobID: jobID, RequestID: requestID, Status: "queued"}, http.StatusAccepted)
}

func (h *Handler) handleEnqueueHumanize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		humanizeRequest
		Smart bool `json:"smart"`
	}
	if !h.bind(w, r, &req) {
		return
	}
	ctx := h.requestContext(w, r)
	if err := engine.ValidateText(req.Text, engine.MinTextLength); err != nil {
		h.fail(w, r, err)
		return
	}

	requestID := executor.RequestIDFrom(ctx)
	jobID, err := h.jobs.EnqueueHumanize(ctx, requestID, req.Text, models.ParseMode(req.Mode), req.Smart)
	if err != nil {
		h.fail(w, r, fmt.Errorf("failed to enqueue rewrite: %w", err))
		return
	}
	respondJSON(w, jobResponse{JobID: jobID, RequestID: requestID, Status: "queued"}, http.StatusAccepted)
}

// handleJobStatus handles job status requests
func (h *Handler) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobStatus.GetJob(r.PathValue("id"))
	if errors.Is(err, queue.ErrJobNotFound) {
		respondError(w, "job not found", "not_found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, job, http.StatusOK)
}

func (h *Handler) handleAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.journal.ListAttempts(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, attempts, http.StatusOK)
}

// requestContext tags the request with an id, reusing the caller's when sent
func (h *Handler) requestContext(w http.ResponseWriter, r *http.Request) context.Context {
	id := strings.TrimSpace(r.Header.Get(logging.RequestIDHeader))
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
	}
	w.Header().Set(logging.RequestIDHeader, id)
	tracing.SetSpanAttributes(r.Context(), attribute.String("request_id", id))
	return executor.WithRequestID(r.Context(), id)
}

// bind decodes and validates the request body, answering the caller itself
// when either fails
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, "invalid request body: "+err.Error(), string(apperr.CodeValidation), http.StatusBadRequest)
		return false
	}

	svc := schema.Validator()
	if err := svc.Validator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			err = &apperr.ValidationError{
				Field:   fe.Field(),
				Message: strings.TrimPrefix(fe.Translate(svc.Translator), fe.Field()+" "),
			}
		}
		h.fail(w, r, err)
		return false
	}
	return true
}

// fail maps err onto its status and code
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	code := apperr.CodeOf(err)
	if status >= http.StatusInternalServerError {
		logging.HTTPErrorLogger(h.logger, r, status, string(code), err)
	}
	respondError(w, err.Error(), string(code), status)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message, code string, statusCode int) {
	respondJSON(w, map[string]string{
		"error": message,
		"code":  code,
	}, statusCode)
}
