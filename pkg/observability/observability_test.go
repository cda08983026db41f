package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method   string
	path     string
	status   int
	duration time.Duration
}

type capturingMetrics struct {
	mu       sync.Mutex
	queries  int
	stages   []string
	ingests  []string
	requests []recordedRequest
}

func (m *capturingMetrics) RecordQuery(ctx context.Context, duration time.Duration, tokens int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
}

func (m *capturingMetrics) RecordStage(ctx context.Context, stage string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, stage)
}

func (m *capturingMetrics) RecordIngest(ctx context.Context, repoID string, files, chunks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingests = append(m.ingests, repoID)
}

func (m *capturingMetrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedRequest{method: method, path: path, status: status, duration: duration})
}

func TestNoopManagerDefaults(t *testing.T) {
	mgr := NoopManager()

	assert.NotNil(t, mgr.Metrics())
	assert.Nil(t, mgr.MetricsHandler())
	assert.NotNil(t, mgr.Tracer("test"))
	assert.NoError(t, mgr.Shutdown(context.Background()))
}

func TestManagerDisabledInitialize(t *testing.T) {
	mgr := NewManager(Config{})
	require.NoError(t, mgr.Initialize(context.Background()))
	defer func() {
		assert.NoError(t, mgr.Shutdown(context.Background()))
	}()

	_, ok := mgr.Metrics().(NoopMetrics)
	assert.True(t, ok, "disabled metrics should be a no-op recorder")
	assert.Nil(t, mgr.MetricsHandler())

	_, span := mgr.Tracer("test").Start(context.Background(), "noop")
	span.End()
}

func TestManagerMetricsEnabled(t *testing.T) {
	mgr := NewManager(Config{Metrics: MetricsConfig{Enabled: true}})
	require.NoError(t, mgr.Initialize(context.Background()))
	defer func() {
		assert.NoError(t, mgr.Shutdown(context.Background()))
	}()

	_, ok := mgr.Metrics().(*PrometheusMetrics)
	require.True(t, ok, "enabled metrics should record to prometheus")
	require.NotNil(t, mgr.MetricsHandler())

	ctx := context.Background()
	mgr.Metrics().RecordQuery(ctx, 120*time.Millisecond, 512, nil)
	mgr.Metrics().RecordQuery(ctx, 80*time.Millisecond, 0, errors.New("provider unavailable"))
	mgr.Metrics().RecordStage(ctx, "retrieve", 5*time.Millisecond)
	mgr.Metrics().RecordIngest(ctx, "acme_widgets", 12, 240)
	mgr.Metrics().RecordHTTPRequest(http.MethodGet, "/health", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	mgr.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "repochat_queries_total")
	assert.Contains(t, body, "repochat_query_errors_total")
	assert.Contains(t, body, "repochat_tokens_used_total")
	assert.Contains(t, body, "repochat_stage_duration_seconds")
	assert.Contains(t, body, "repochat_ingested_chunks_total")
	assert.Contains(t, body, "repochat_http_requests_total")
}

func TestTracingConfigDefaults(t *testing.T) {
	cfg := TracingConfig{Enabled: true}
	cfg.setDefaults()

	assert.Equal(t, "otlp", cfg.Exporter)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, 1.0, cfg.SamplingRate)
}

func TestInitTracingDisabled(t *testing.T) {
	tp, shutdown, err := initTracing(context.Background(), TracingConfig{})
	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.Nil(t, shutdown)

	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	span.End()
}

func TestHTTPMiddlewareRecordsRequest(t *testing.T) {
	metrics := &capturingMetrics{}
	mgr := NoopManager()

	handler := HTTPMiddleware(mgr.Tracer("http"), metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/completions/stream", nil))

	require.Len(t, metrics.requests, 1)
	got := metrics.requests[0]
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/chat/completions/stream", got.path)
	assert.Equal(t, http.StatusTeapot, got.status)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}

func TestHTTPMiddlewareDefaultsStatusOK(t *testing.T) {
	metrics := &capturingMetrics{}
	mgr := NoopManager()

	handler := HTTPMiddleware(mgr.Tracer("http"), metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("implicit ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Len(t, metrics.requests, 1)
	assert.Equal(t, http.StatusOK, metrics.requests[0].status)
}

func TestResponseWriterFlushPassthrough(t *testing.T) {
	metrics := &capturingMetrics{}
	mgr := NoopManager()

	handler := HTTPMiddleware(mgr.Tracer("http"), metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok, "middleware must preserve http.Flusher for streaming")
		_, _ = w.Write([]byte("chunk"))
		flusher.Flush()
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))

	assert.True(t, rec.Flushed, "flush should reach the underlying writer")
}

func TestResponseWriterWriteHeaderOnce(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	w.WriteHeader(http.StatusAccepted)
	w.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusAccepted, w.statusCode)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestNoopMetricsIsSilent(t *testing.T) {
	ctx := context.Background()
	var m Metrics = NoopMetrics{}

	m.RecordQuery(ctx, time.Second, 100, nil)
	m.RecordStage(ctx, "prepare", time.Millisecond)
	m.RecordIngest(ctx, "acme_widgets", 1, 2)
	m.RecordHTTPRequest(http.MethodGet, "/health", http.StatusOK, time.Millisecond)
}
