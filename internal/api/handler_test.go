package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zombar/textengine/internal/apperr"
	"github.com/zombar/textengine/internal/engine"
	"github.com/zombar/textengine/internal/executor"
	"github.com/zombar/textengine/internal/models"
	"github.com/zombar/textengine/internal/queue"
	"github.com/zombar/textengine/pkg/logging"
)

var longText = strings.Repeat("The committee reviewed the proposal and approved it. ", 4)

// mockEngine implements Engine for handler tests
type mockEngine struct {
	err       error
	calls     int
	gotMode   models.Mode
	requestID string
}

func (m *mockEngine) Analyze(ctx context.Context, text string) (models.AnalysisResult, error) {
	m.calls++
	m.requestID = executor.RequestIDFrom(ctx)
	if m.err != nil {
		return models.AnalysisResult{}, m.err
	}
	return models.AnalysisResult{SimilarityScore: 10, OriginalityScore: 90, AILikelihood: 35, Flags: []models.Flag{}}, nil
}

func (m *mockEngine) Humanize(ctx context.Context, text string, mode models.Mode) (models.RewriteResult, error) {
	m.calls++
	m.gotMode = mode
	m.requestID = executor.RequestIDFrom(ctx)
	if m.err != nil {
		return models.RewriteResult{}, m.err
	}
	return models.RewriteResult{RewrittenText: "Plain.", Mode: mode, Changes: []string{}}, nil
}

func (m *mockEngine) SmartHumanize(ctx context.Context, text string) (engine.SmartResult, error) {
	m.calls++
	if m.err != nil {
		return engine.SmartResult{}, m.err
	}
	return engine.SmartResult{Mode: models.ModeAggressive, Rewrite: models.RewriteResult{Mode: models.ModeAggressive}}, nil
}

// mockJobs implements Jobs and JobStatus
type mockJobs struct {
	enqueued  []string
	smart     bool
	mode      models.Mode
	requestID string
	jobs      map[string]queue.Job
}

func (m *mockJobs) EnqueueAnalyze(ctx context.Context, requestID, text string) (string, error) {
	m.enqueued = append(m.enqueued, queue.TypeAnalyze)
	m.requestID = requestID
	return "job-a", nil
}

func (m *mockJobs) EnqueueHumanize(ctx context.Context, requestID, text string, mode models.Mode, smart bool) (string, error) {
	m.enqueued = append(m.enqueued, queue.TypeHumanize)
	m.mode, m.smart, m.requestID = mode, smart, requestID
	return "job-h", nil
}

func (m *mockJobs) GetJob(id string) (queue.Job, error) {
	if job, ok := m.jobs[id]; ok {
		return job, nil
	}
	if id == "broken" {
		return queue.Job{}, errors.New("redis: connection refused")
	}
	return queue.Job{}, queue.ErrJobNotFound
}

type mockJournal struct {
	records map[string][]models.AttemptRecord
}

func (m *mockJournal) ListAttempts(ctx context.Context, requestID string) ([]models.AttemptRecord, error) {
	if recs, ok := m.records[requestID]; ok {
		return recs, nil
	}
	return []models.AttemptRecord{}, nil
}

func setupTestHandler(t *testing.T, eng *mockEngine) (*Handler, *mockJobs) {
	t.Helper()
	jobs := &mockJobs{jobs: map[string]queue.Job{
		"job-done": {ID: "job-done", Type: queue.TypeAnalyze, State: "completed", Result: json.RawMessage(`{"ai_likelihood":35}`)},
	}}
	journal := &mockJournal{records: map[string][]models.AttemptRecord{
		"req-1": {
			{RequestID: "req-1", Operation: "analyze", Attempt: 1, Kind: "parse"},
			{RequestID: "req-1", Operation: "analyze", Attempt: 2},
		},
	}}
	h := newHandler(eng, Options{
		Jobs:      jobs,
		JobStatus: jobs,
		Journal:   journal,
		Registry:  prometheus.NewRegistry(),
	})
	return h, jobs
}

func do(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.mux.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := setupTestHandler(t, &mockEngine{})

	w := do(h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%s'", response["status"])
	}
}

func TestModesEndpoint(t *testing.T) {
	h, _ := setupTestHandler(t, &mockEngine{})

	w := do(h, http.MethodGet, "/api/modes", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var modes []struct {
		Mode        string  `json:"mode"`
		Temperature float64 `json:"temperature"`
	}
	if err := json.NewDecoder(w.Body).Decode(&modes); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(modes) != len(models.Modes()) {
		t.Errorf("Expected %d modes, got %d", len(models.Modes()), len(modes))
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		engineErr  error
		wantStatus int
		wantCode   string
		wantCalls  int
	}{
		{"valid", `{"text":"` + longText + `"}`, nil, http.StatusOK, "", 1},
		{"malformed body", `{"text":`, nil, http.StatusBadRequest, "validation_failed", 0},
		{"missing text", `{}`, nil, http.StatusUnprocessableEntity, "validation_failed", 0},
		{"too short for an audit", `{"text":"This is long enough to rewrite but not to audit."}`, nil, http.StatusUnprocessableEntity, "validation_failed", 0},
		{"retries exhausted", `{"text":"` + longText + `"}`, &apperr.ExhaustedRetriesError{Operation: "analyze", Attempts: 3}, http.StatusBadGateway, "retries_exhausted", 1},
		{"backend not configured", `{"text":"` + longText + `"}`, &apperr.ConfigurationError{Key: "GEMINI_API_KEY", Message: "is required"}, http.StatusServiceUnavailable, "configuration_error", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &mockEngine{err: tt.engineErr}
			h, _ := setupTestHandler(t, eng)

			w := do(h, http.MethodPost, "/api/analyze", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if eng.calls != tt.wantCalls {
				t.Errorf("Expected %d engine calls, got %d", tt.wantCalls, eng.calls)
			}
			if tt.wantCode != "" {
				body := decodeError(t, w)
				if body["code"] != tt.wantCode {
					t.Errorf("Expected code %s, got %s", tt.wantCode, body["code"])
				}
				if body["error"] == "" {
					t.Error("Expected an error message")
				}
			}
		})
	}
}

func TestAnalyzeRequestID(t *testing.T) {
	eng := &mockEngine{}
	h, _ := setupTestHandler(t, eng)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"text":"`+longText+`"}`))
	req.Header.Set(logging.RequestIDHeader, "caller-7")
	w := httptest.NewRecorder()
	h.mux.ServeHTTP(w, req)

	if eng.requestID != "caller-7" {
		t.Errorf("Expected caller request id to reach the engine, got %q", eng.requestID)
	}
	if got := w.Header().Get(logging.RequestIDHeader); got != "caller-7" {
		t.Errorf("Expected request id header caller-7, got %q", got)
	}

	w = do(h, http.MethodPost, "/api/analyze", `{"text":"`+longText+`"}`)
	if w.Header().Get(logging.RequestIDHeader) == "" || eng.requestID == "caller-7" {
		t.Error("Expected a generated request id")
	}
}

func TestValidationFailureCarriesRequestID(t *testing.T) {
	h, _ := setupTestHandler(t, &mockEngine{})

	for _, path := range []string{"/api/analyze", "/api/jobs/analyze", "/api/jobs/humanize"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"text":"too short"}`))
			req.Header.Set(logging.RequestIDHeader, "caller-9")
			w := httptest.NewRecorder()
			h.mux.ServeHTTP(w, req)

			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("Expected status 422, got %d: %s", w.Code, w.Body.String())
			}
			if got := w.Header().Get(logging.RequestIDHeader); got != "caller-9" {
				t.Errorf("Expected request id header caller-9, got %q", got)
			}
		})
	}
}

func TestHumanizeEndpoint(t *testing.T) {
	eng := &mockEngine{}
	h, _ := setupTestHandler(t, eng)

	w := do(h, http.MethodPost, "/api/humanize", `{"text":"Short but valid text.","mode":"Storyteller"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if eng.gotMode != models.ModeStoryteller {
		t.Errorf("Expected storyteller mode, got %s", eng.gotMode)
	}

	do(h, http.MethodPost, "/api/humanize", `{"text":"Short but valid text.","mode":"shouting"}`)
	if eng.gotMode != models.DefaultMode {
		t.Errorf("Expected unknown mode to fall back to %s, got %s", models.DefaultMode, eng.gotMode)
	}

	w = do(h, http.MethodPost, "/api/humanize", `{"text":"x","mode":"`+strings.Repeat("m", 40)+`"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for an oversized mode, got %d", w.Code)
	}
}

func TestSmartHumanizeEndpoint(t *testing.T) {
	h, _ := setupTestHandler(t, &mockEngine{})

	w := do(h, http.MethodPost, "/api/humanize/smart", `{"text":"Short but valid text."}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var result engine.SmartResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.Mode != models.ModeAggressive {
		t.Errorf("Expected aggressive, got %s", result.Mode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := setupTestHandler(t, &mockEngine{})

	w := do(h, http.MethodGet, "/api/analyze", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestEnqueueEndpoints(t *testing.T) {
	eng := &mockEngine{}
	h, jobs := setupTestHandler(t, eng)

	w := do(h, http.MethodPost, "/api/jobs/analyze", `{"text":"`+longText+`"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp jobResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.JobID != "job-a" || resp.Status != "queued" || resp.RequestID == "" {
		t.Errorf("Unexpected response %+v", resp)
	}
	if jobs.requestID != resp.RequestID {
		t.Errorf("Expected job request id %s, got %s", resp.RequestID, jobs.requestID)
	}

	w = do(h, http.MethodPost, "/api/jobs/humanize", `{"text":"Short but valid text.","smart":true}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", w.Code)
	}
	if !jobs.smart {
		t.Error("Expected smart flag to be forwarded")
	}

	w = do(h, http.MethodPost, "/api/jobs/analyze", `{"text":"too short"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %d", w.Code)
	}
	if len(jobs.enqueued) != 2 {
		t.Errorf("Invalid input must not be enqueued, got %v", jobs.enqueued)
	}
	if eng.calls != 0 {
		t.Errorf("Enqueueing must not run the engine, got %d calls", eng.calls)
	}
}

func TestJobStatusEndpoint(t *testing.T) {
	h, _ := setupTestHandler(t, &mockEngine{})

	w := do(h, http.MethodGet, "/api/jobs/job-done", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var job queue.Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if job.State != "completed" || len(job.Result) == 0 {
		t.Errorf("Unexpected job %+v", job)
	}

	w = do(h, http.MethodGet, "/api/jobs/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	w = do(h, http.MethodGet, "/api/jobs/broken", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestAttemptsEndpoint(t *testing.T) {
	h, _ := setupTestHandler(t, &mockEngine{})

	w := do(h, http.MethodGet, "/api/requests/req-1/attempts", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var recs []models.AttemptRecord
	if err := json.NewDecoder(w.Body).Decode(&recs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(recs) != 2 || recs[0].Kind != "parse" {
		t.Errorf("Unexpected attempts %+v", recs)
	}

	w = do(h, http.MethodGet, "/api/requests/unknown/attempts", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected empty list, got %s", w.Body.String())
	}
}

func TestOptionalRoutesDisabled(t *testing.T) {
	h := newHandler(&mockEngine{}, Options{})

	for _, path := range []string{"/api/jobs/some-id", "/api/requests/req-1/attempts", "/metrics"} {
		w := do(h, http.MethodGet, path, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404 without a backend, got %d", path, w.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := setupTestHandler(t, &mockEngine{})

	do(h, http.MethodGet, "/health", "")
	w := do(h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `textengine_http_requests_total{method="GET",route="GET /health",status="200"} 1`) {
		t.Errorf("Expected request counter for /health, got:\n%s", w.Body.String())
	}
}

func TestCORS(t *testing.T) {
	handler := NewHandler(&mockEngine{}, Options{})

	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected allow origin *, got %q", got)
	}
}
