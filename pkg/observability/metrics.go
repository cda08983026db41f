package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics records pipeline and transport measurements. Implementations
// must be safe for concurrent use.
type Metrics interface {
	// RecordQuery counts one finished query with its wall time and
	// token estimate. A non-nil err marks the query failed.
	RecordQuery(ctx context.Context, duration time.Duration, tokens int, err error)

	// RecordStage times one pipeline stage (prepare, retrieve, generate).
	RecordStage(ctx context.Context, stage string, duration time.Duration)

	// RecordIngest counts a completed repository ingestion.
	RecordIngest(ctx context.Context, repoID string, files, chunks int)

	// RecordHTTPRequest counts one served request.
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

// PrometheusMetrics implements Metrics on OpenTelemetry instruments read
// by the Prometheus exporter.
type PrometheusMetrics struct {
	queryDuration metric.Float64Histogram
	queryTotal    metric.Int64Counter
	queryErrors   metric.Int64Counter
	queryTokens   metric.Int64Counter

	stageDuration metric.Float64Histogram

	ingestTotal  metric.Int64Counter
	ingestFiles  metric.Int64Counter
	ingestChunks metric.Int64Counter

	httpDuration metric.Float64Histogram
	httpTotal    metric.Int64Counter
}

func initMetrics() (*PrometheusMetrics, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)).Meter(ServiceName)

	m := &PrometheusMetrics{}
	for _, inst := range []struct {
		target *metric.Float64Histogram
		name   string
		desc   string
	}{
		{&m.queryDuration, "repochat_query_duration_seconds", "End-to-end query duration in seconds"},
		{&m.stageDuration, "repochat_stage_duration_seconds", "Pipeline stage duration in seconds"},
		{&m.httpDuration, "repochat_http_request_duration_seconds", "HTTP request duration in seconds"},
	} {
		h, err := meter.Float64Histogram(inst.name, metric.WithDescription(inst.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", inst.name, err)
		}
		*inst.target = h
	}

	for _, inst := range []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.queryTotal, "repochat_queries_total", "Total queries served"},
		{&m.queryErrors, "repochat_query_errors_total", "Total failed queries"},
		{&m.queryTokens, "repochat_tokens_used_total", "Estimated tokens consumed by queries"},
		{&m.ingestTotal, "repochat_ingests_total", "Total repository ingestions"},
		{&m.ingestFiles, "repochat_ingested_files_total", "Total files ingested"},
		{&m.ingestChunks, "repochat_ingested_chunks_total", "Total chunks ingested"},
		{&m.httpTotal, "repochat_http_requests_total", "Total HTTP requests served"},
	} {
		c, err := meter.Int64Counter(inst.name, metric.WithDescription(inst.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", inst.name, err)
		}
		*inst.target = c
	}
	return m, nil
}

func (m *PrometheusMetrics) RecordQuery(ctx context.Context, duration time.Duration, tokens int, err error) {
	m.queryDuration.Record(ctx, duration.Seconds())
	m.queryTotal.Add(ctx, 1)
	if tokens > 0 {
		m.queryTokens.Add(ctx, int64(tokens))
	}
	if err != nil {
		m.queryErrors.Add(ctx, 1)
	}
}

func (m *PrometheusMetrics) RecordStage(ctx context.Context, stage string, duration time.Duration) {
	m.stageDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *PrometheusMetrics) RecordIngest(ctx context.Context, repoID string, files, chunks int) {
	attrs := metric.WithAttributes(attribute.String("repo", repoID))
	m.ingestTotal.Add(ctx, 1, attrs)
	m.ingestFiles.Add(ctx, int64(files), attrs)
	m.ingestChunks.Add(ctx, int64(chunks), attrs)
}

func (m *PrometheusMetrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)
	ctx := context.Background()
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
	m.httpTotal.Add(ctx, 1, attrs)
}

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

func (NoopMetrics) RecordQuery(context.Context, time.Duration, int, error) {}
func (NoopMetrics) RecordStage(context.Context, string, time.Duration)     {}
func (NoopMetrics) RecordIngest(context.Context, string, int, int)         {}
func (NoopMetrics) RecordHTTPRequest(string, string, int, time.Duration)   {}
