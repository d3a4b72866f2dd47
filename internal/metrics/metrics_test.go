package metrics

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestExecutorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewExecutor("textengine", reg)

	m.ObserveAttempt("analyze", "parse", 120*time.Millisecond, 0)
	m.ObserveAttempt("analyze", "ok", 80*time.Millisecond, 500*time.Millisecond)
	m.ObserveExhausted("humanize")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attempts.WithLabelValues("analyze", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attempts.WithLabelValues("analyze", "parse")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Exhausted.WithLabelValues("humanize")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Backoff))
}

func TestNilExecutorIsNoop(t *testing.T) {
	var m *Executor
	assert.NotPanics(t, func() {
		m.ObserveAttempt("analyze", "ok", time.Second, 0)
		m.ObserveExhausted("analyze")
	})
}

func TestHTTPMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTP("textengine", reg)

	h := m.Middleware("/api/analyze", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analyze", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("POST", "/api/analyze", "422")))
}

func TestDatabaseMetrics(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Ping())

	reg := prometheus.NewRegistry()
	m := NewDatabase("textengine", reg)
	m.UpdateDBStats(db)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.open))
}
