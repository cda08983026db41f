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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/repochat/pkg/config"
	"github.com/kadirpekel/repochat/pkg/observability"
	"github.com/kadirpekel/repochat/pkg/server"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Host string `help:"Address to bind." default:"0.0.0.0"`
	Port int    `help:"Port to listen on." default:"8080"`

	Watch bool `help:"Watch the configuration directory and rebuild the engine on changes."`

	Observe       bool   `help:"Enable observability (Prometheus metrics + OTLP tracing)."`
	TraceEndpoint string `name:"trace-endpoint" help:"OTLP gRPC collector endpoint." default:"localhost:4317"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opts := server.Options{
		Host:  c.Host,
		Port:  c.Port,
		Watch: c.Watch,
	}
	if c.Observe {
		opts.Observability = observability.Config{
			Metrics: observability.MetricsConfig{Enabled: true},
			Tracing: observability.TracingConfig{Enabled: true, Endpoint: c.TraceEndpoint},
		}
	}

	srv, err := server.New(cfg, opts)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Printf("\nrepochat server ready\n")
	fmt.Printf("   Chat:     http://%s/chat/completions/stream\n", srv.Addr())
	fmt.Printf("   Models:   http://%s/models/config\n", srv.Addr())
	fmt.Printf("   Health:   http://%s/health\n", srv.Addr())
	if c.Observe {
		fmt.Printf("   Metrics:  http://%s/metrics\n", srv.Addr())
		fmt.Printf("   Tracing:  otlp://%s\n", c.TraceEndpoint)
	}
	fmt.Printf("   Config:   %s\n", cfg.Dir)
	fmt.Printf("   Data:     %s\n", config.DataRoot())
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.Start(ctx)
}
