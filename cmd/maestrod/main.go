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

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/web7-labs/maestro/internal/config"
	"github.com/web7-labs/maestro/internal/daemon"
	"github.com/web7-labs/maestro/internal/log"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		host        = flag.String("host", "", "Bind address")
		port        = flag.Int("port", 0, "Listen port")
		storeType   = flag.String("store", "", "Session store backend (memory, sqlite)")
		storePath   = flag.String("store-path", "", "SQLite database file")
		catalogPath = flag.String("catalog", "", "Provider catalog JSON to seed into the directory")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("maestrod %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *storeType != "" {
		cfg.Store.Type = *storeType
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}
	if *catalogPath != "" {
		cfg.Search.CatalogPath = *catalogPath
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := daemon.New(ctx, cfg, logger, version)
	if err != nil {
		logger.Error("Failed to create daemon", slog.Any("error", err))
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := d.Run(ctx); err != nil {
		logger.Error("Daemon exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}
