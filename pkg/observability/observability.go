// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability wires metrics and tracing around the query and
// ingestion pipelines. Metrics are OpenTelemetry instruments exported in
// Prometheus format; traces ship over OTLP. Everything defaults to off,
// and disabled subsystems cost a nil check per call site.
package observability

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ServiceName identifies this process in traces and meter scopes.
const ServiceName = "repochat"

// Config enables the observability subsystems.
type Config struct {
	Tracing TracingConfig `json:"tracing,omitempty"`
	Metrics MetricsConfig `json:"metrics,omitempty"`
}

// MetricsConfig configures Prometheus metrics collection.
type MetricsConfig struct {
	// Enabled turns on metric recording and the /metrics handler.
	Enabled bool `json:"enabled,omitempty"`
}

// Manager owns the configured subsystems and their shutdown.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	tracing  trace.TracerProvider
	shutdown func(context.Context) error
	metrics  Metrics
}

// NewManager builds an uninitialized manager. Until Initialize runs, it
// behaves like NoopManager.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// NoopManager returns a manager with everything disabled.
func NoopManager() *Manager {
	return &Manager{}
}

// Initialize starts the enabled subsystems.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tp, shutdown, err := initTracing(ctx, m.cfg.Tracing)
	if err != nil {
		return err
	}
	m.tracing = tp
	m.shutdown = shutdown

	if m.cfg.Metrics.Enabled {
		metrics, err := initMetrics()
		if err != nil {
			return err
		}
		m.metrics = metrics
	}
	return nil
}

// Metrics returns the active recorder; a no-op one when disabled.
func (m *Manager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.metrics == nil {
		return NoopMetrics{}
	}
	return m.metrics
}

// MetricsHandler returns the Prometheus scrape handler, or nil when
// metrics are disabled.
func (m *Manager) MetricsHandler() http.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.metrics == nil {
		return nil
	}
	return promhttp.Handler()
}

// Tracer returns a tracer from the active provider; spans are no-ops
// when tracing is disabled.
func (m *Manager) Tracer(name string) trace.Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tracing == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return m.tracing.Tracer(name)
}

// Shutdown flushes exporters. Safe to call on a noop manager.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown == nil {
		return nil
	}
	return m.shutdown(ctx)
}
