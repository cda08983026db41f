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

// Package server exposes the query engine over HTTP. The surface is
// deliberately thin: one streaming chat endpoint, the configuration and
// auth lookups a frontend needs, and browse/delete handlers over the
// wiki cache.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/repochat/pkg/config"
	"github.com/kadirpekel/repochat/pkg/engine"
	"github.com/kadirpekel/repochat/pkg/observability"
	"github.com/kadirpekel/repochat/pkg/rag"
	"github.com/kadirpekel/repochat/pkg/wikicache"
)

// fanOutParallel bounds how many repositories of a multi-repo request
// are queried at once.
const fanOutParallel = 4

// Options configures a Server beyond its loaded configuration.
type Options struct {
	Host string
	Port int

	// Watch reloads the configuration when its files change.
	Watch bool

	Observability observability.Config

	// EngineOptions are appended to the server's own engine wiring.
	// Tests use them to substitute fake providers and embedders.
	EngineOptions []engine.Option

	// WikiStore overrides the default filesystem store.
	WikiStore wikicache.Store
}

// Server ties the engine, the wiki cache, and observability to an HTTP
// router and owns their lifecycle.
type Server struct {
	opts Options
	obs  *observability.Manager
	wiki wikicache.Store

	mu     sync.RWMutex
	cfg    *config.Config
	engine *engine.Engine

	router     chi.Router
	httpServer *http.Server
}

// New builds a fully wired server. The engine, observability manager,
// and router are ready; Start only listens.
func New(cfg *config.Config, opts Options) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Host == "" {
		opts.Host = "0.0.0.0"
	}
	if opts.Port == 0 {
		opts.Port = 8080
	}

	s := &Server{opts: opts, cfg: cfg}

	s.obs = observability.NewManager(opts.Observability)
	if err := s.obs.Initialize(context.Background()); err != nil {
		return nil, fmt.Errorf("observability init failed: %w", err)
	}

	s.wiki = opts.WikiStore
	if s.wiki == nil {
		s.wiki = wikicache.NewFSStore(config.WikiCacheDir())
	}

	eng, err := s.buildEngine(cfg)
	if err != nil {
		return nil, err
	}
	s.engine = eng

	s.router = s.routes()
	return s, nil
}

// buildEngine wires an engine whose stage and ingest timings feed the
// metrics recorder. The observer closures read the manager at call time
// so a pre-Initialize engine still records once metrics come up.
func (s *Server) buildEngine(cfg *config.Config) (*engine.Engine, error) {
	opts := []engine.Option{
		engine.WithStageObserver(func(stage string, elapsed time.Duration) {
			s.obs.Metrics().RecordStage(context.Background(), stage, elapsed)
		}),
		engine.WithIngestorOptions(rag.WithIngestObserver(func(repoID string, files, chunks int) {
			s.obs.Metrics().RecordIngest(context.Background(), repoID, files, chunks)
		})),
	}
	opts = append(opts, s.opts.EngineOptions...)
	return engine.New(cfg, opts...)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(observability.HTTPMiddleware(s.obs.Tracer("http"), s.obs.Metrics()))
	r.Use(requestLogger)
	r.Use(corsMiddleware)
	r.Use(middleware.Recoverer)

	r.Post("/chat/completions/stream", s.handleChatStream)

	r.Get("/models/config", s.handleModelsConfig)
	r.Get("/lang/config", s.handleLangConfig)
	r.Get("/auth/status", s.handleAuthStatus)
	r.Post("/auth/validate", s.handleAuthValidate)
	r.Get("/health", s.handleHealth)

	r.Route("/api/wikicache", func(r chi.Router) {
		r.Get("/", s.handleWikiList)
		r.Get("/{owner}/{repo}/{language}", s.handleWikiGet)
		r.Delete("/{owner}/{repo}/{language}", s.handleWikiDelete)
	})

	if h := s.obs.MetricsHandler(); h != nil {
		r.Get("/metrics", h.ServeHTTP)
	}

	return r
}

// Handler returns the configured router, for embedding and tests.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
}

// Start serves HTTP until ctx is cancelled or the listener fails, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.Addr(),
		Handler: s.router,
		// No WriteTimeout: chat responses stream for as long as the
		// provider generates.
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if s.opts.Watch {
		watcher := config.NewWatcher(s.currentConfig().Dir, s.applyConfig)
		go func() {
			if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Config watcher stopped", "error", err)
			}
		}()
	}

	slog.Info("HTTP server starting", "address", s.httpServer.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown drains connections, then closes the engine and observability.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []error
	if s.httpServer != nil {
		slog.Info("HTTP server shutting down")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
		}
	}
	if err := s.currentEngine().Close(); err != nil {
		errs = append(errs, fmt.Errorf("engine close: %w", err))
	}
	if err := s.obs.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("observability shutdown: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// applyConfig swaps in a reloaded configuration. The old engine closes
// after the swap so new requests never reach a closed provider client.
func (s *Server) applyConfig(cfg *config.Config) {
	eng, err := s.buildEngine(cfg)
	if err != nil {
		slog.Error("Config reload failed, keeping previous engine", "error", err)
		return
	}

	s.mu.Lock()
	old := s.engine
	s.cfg = cfg
	s.engine = eng
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	slog.Info("Engine rebuilt from reloaded configuration", "dir", cfg.Dir)
}

func (s *Server) currentEngine() *engine.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

func (s *Server) currentConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// corsMiddleware is permissive: the wiki frontend is served from a
// different origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
