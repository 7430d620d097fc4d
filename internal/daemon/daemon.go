// Copyright 2025 Web7 Labs
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

// Package daemon assembles the orchestration service from its parts and
// owns process lifecycle: construction, catalog seeding, serving, and
// graceful shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/web7-labs/maestro/internal/api"
	"github.com/web7-labs/maestro/internal/binder"
	"github.com/web7-labs/maestro/internal/config"
	"github.com/web7-labs/maestro/internal/directory"
	"github.com/web7-labs/maestro/internal/executor"
	"github.com/web7-labs/maestro/internal/log"
	"github.com/web7-labs/maestro/internal/metrics"
	"github.com/web7-labs/maestro/internal/orchestrator"
	"github.com/web7-labs/maestro/internal/planner"
	"github.com/web7-labs/maestro/internal/platform"
	"github.com/web7-labs/maestro/internal/session"
	"github.com/web7-labs/maestro/internal/summary"
	"github.com/web7-labs/maestro/internal/tracing"
)

// Daemon is the assembled orchestration service.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	version string

	store     session.Store
	directory directory.Client
	seeder    *directory.Seeder
	binder    *binder.Binder
	apiServer *api.Server
	server    *http.Server

	shutdownTracing func(context.Context) error
	cancelWorkflows context.CancelFunc
}

// New builds a Daemon from validated configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	shutdownTracing, err := tracing.Init(ctx, cfg.Observability, version)
	if err != nil {
		return nil, err
	}

	store, err := newStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	platformClient := platform.New(platform.Config{
		BaseURL:        cfg.Platform.BaseURL,
		APIToken:       cfg.Platform.APIToken,
		RequestTimeout: cfg.Platform.RequestTimeout,
		Logger:         log.WithComponent(logger, "platform"),
	})

	dir, seeder := newDirectory(cfg, logger)

	var summarizer executor.Summarizer
	var verifier executor.Verifier
	if cfg.SummarizerEnabled() {
		client := summary.New(summary.Config{
			BaseURL: cfg.Summarizer.BaseURL,
			APIKey:  cfg.Summarizer.APIKey,
			Model:   cfg.Summarizer.Model,
		})
		summarizer = client
		if cfg.Workflow.VerifyResults {
			verifier = client
		}
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled() {
		m = metrics.New()
	}

	bnd := binder.New(binder.Config{
		Platform:    platformClient,
		Directory:   dir,
		Logger:      log.WithComponent(logger, "binder"),
		ResultCount: cfg.Workflow.ProviderResultCount,
	})
	plan := planner.New(platformClient, log.WithComponent(logger, "planner"))
	exec := executor.New(executor.Config{
		Agent:      platformClient,
		Binder:     bnd,
		Summarizer: summarizer,
		Verifier:   verifier,
		Logger:     log.WithComponent(logger, "executor"),
	})
	orch := orchestrator.New(orchestrator.Config{
		Planner: plan,
		Runner:  exec,
		Store:   store,
		Metrics: m,
		Logger:  log.WithComponent(logger, "orchestrator"),
	})

	workflowCtx, cancelWorkflows := context.WithCancel(context.Background())
	apiServer := api.New(api.Config{
		Store:           store,
		Agents:          platformClient,
		Runner:          orch,
		Directory:       dir,
		Metrics:         m,
		Logger:          log.WithComponent(logger, "api"),
		Version:         version,
		AgentModel:      cfg.Workflow.AgentModel,
		EmbeddingModel:  cfg.Workflow.EmbeddingModel,
		SearchRateLimit: cfg.Server.SearchRateLimit,
		SearchRateBurst: cfg.Server.SearchRateBurst,
		Background:      workflowCtx,
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	server := &http.Server{
		Addr:              addr,
		Handler:           tracing.Middleware(log.WithComponent(logger, "http"), apiServer.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Daemon{
		cfg:             cfg,
		logger:          logger,
		version:         version,
		store:           store,
		directory:       dir,
		seeder:          seeder,
		binder:          bnd,
		apiServer:       apiServer,
		server:          server,
		shutdownTracing: shutdownTracing,
		cancelWorkflows: cancelWorkflows,
	}, nil
}

// newStore selects the session store backend.
func newStore(cfg config.StoreConfig) (session.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return session.NewMemoryStore(), nil
	case "sqlite":
		return session.NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("daemon: unknown store type %q", cfg.Type)
	}
}

// newDirectory selects the tool directory backend. Only the direct Qdrant
// backend supports catalog seeding.
func newDirectory(cfg *config.Config, logger *slog.Logger) (directory.Client, *directory.Seeder) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Search.Mode == config.SearchModeProxy {
		return directory.NewProxyClient(cfg.Search.Endpoint, nil), nil
	}

	embedder := summary.NewEmbedder(summary.EmbedderConfig{
		BaseURL: cfg.Search.EmbeddingBaseURL,
		APIKey:  cfg.Search.EmbeddingAPIKey,
		Model:   cfg.Search.EmbeddingModel,
	})
	qdrant := directory.NewQdrantClient(directory.QdrantConfig{
		BaseURL:    cfg.Search.QdrantURL,
		APIKey:     cfg.Search.QdrantAPIKey,
		Collection: cfg.Search.Collection,
		Embedder:   embedder,
	})

	var seeder *directory.Seeder
	if cfg.Search.CatalogPath != "" {
		seeder = directory.NewSeeder(qdrant, embedder, log.WithComponent(logger, "seeder"))
	}
	return qdrant, seeder
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	if url := d.cfg.Platform.SearchServerURL; url != "" {
		provider := directory.Provider{
			Name:      d.cfg.Platform.SearchServerName,
			URL:       url,
			Transport: directory.TransportStreamableHTTP,
		}
		if err := d.binder.RegisterProviderIfAbsent(ctx, provider); err != nil {
			// Agents lose self-service search, workflows still run.
			d.logger.Warn("search server registration failed", slog.Any("error", err))
		}
	}

	if d.seeder != nil {
		if err := d.seeder.SeedFile(ctx, d.cfg.Search.CatalogPath); err != nil {
			// A stale catalog is not fatal; the collection may already be
			// populated from a previous run.
			d.logger.Warn("catalog seeding failed", slog.Any("error", err))
		} else {
			go func() {
				if err := d.seeder.Watch(ctx, d.cfg.Search.CatalogPath); err != nil && !errors.Is(err, context.Canceled) {
					d.logger.Warn("catalog watcher stopped", slog.Any("error", err))
				}
			}()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("daemon listening",
			slog.String("addr", d.server.Addr),
			slog.String("version", d.version))
		if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		d.close(context.Background())
		return fmt.Errorf("daemon: serve: %w", err)
	case <-ctx.Done():
	}

	d.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("http shutdown incomplete", slog.Any("error", err))
	}
	d.close(shutdownCtx)
	return nil
}

// close releases everything the daemon owns. In-flight workflows are
// cancelled, not awaited indefinitely.
func (d *Daemon) close(ctx context.Context) {
	d.cancelWorkflows()
	d.apiServer.Drain()

	if err := d.store.Close(); err != nil {
		d.logger.Warn("store close failed", slog.Any("error", err))
	}
	if err := d.shutdownTracing(ctx); err != nil {
		d.logger.Warn("tracing shutdown failed", slog.Any("error", err))
	}
}
