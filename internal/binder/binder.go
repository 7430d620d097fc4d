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

// Package binder reshapes an agent's attached tool set for the task at
// hand: it resolves providers through the tool directory, registers their
// MCP endpoints with the platform, and swaps provider tools in while the
// agent's built-in system tools stay attached across every rebind.
package binder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/web7-labs/maestro/internal/directory"
	"github.com/web7-labs/maestro/internal/log"
	"github.com/web7-labs/maestro/internal/platform"
)

// systemTools are agent capabilities that must survive every rebind.
// Keyed by tool name so the set holds across platform installations.
var systemTools = map[string]struct{}{
	"send_message":           {},
	"core_memory_replace":    {},
	"core_memory_append":     {},
	"conversation_search":    {},
	"archival_memory_insert": {},
	"archival_memory_search": {},
	"run_code":               {},
	"web_search":             {},
}

// IsSystemTool reports whether a tool name is in the protected set.
func IsSystemTool(name string) bool {
	_, ok := systemTools[name]
	return ok
}

// PlatformAPI is the slice of the platform client the binder needs.
type PlatformAPI interface {
	ListAgentTools(ctx context.Context, agentID string) ([]platform.Tool, error)
	AttachTool(ctx context.Context, agentID, toolID string) error
	DetachTool(ctx context.Context, agentID, toolID string) error
	ListMCPServers(ctx context.Context) ([]string, error)
	RegisterMCPServer(ctx context.Context, cfg platform.MCPServerConfig) error
	ListMCPServerTools(ctx context.Context, serverName string) ([]platform.Tool, error)
	RegisterMCPTool(ctx context.Context, serverName, toolName string) (platform.Tool, error)
}

// Binder wires tool providers to agents.
type Binder struct {
	platform  PlatformAPI
	directory directory.Client
	logger    *slog.Logger

	// resultCount is how many providers to bind per task.
	resultCount int
}

// Config configures a Binder.
type Config struct {
	Platform  PlatformAPI
	Directory directory.Client
	Logger    *slog.Logger

	// ResultCount is how many providers to bind per task. Default: 1.
	ResultCount int
}

// New creates a Binder.
func New(cfg Config) *Binder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	count := cfg.ResultCount
	if count < 1 {
		count = 1
	}
	return &Binder{
		platform:    cfg.Platform,
		directory:   cfg.Directory,
		logger:      logger,
		resultCount: count,
	}
}

// settleAll runs every function concurrently and waits for all of them,
// returning their errors positionally. No error aborts the others.
func settleAll(fns []func() error) []error {
	errs := make([]error, len(fns))
	var wg sync.WaitGroup
	for i, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = fn()
		}()
	}
	wg.Wait()
	return errs
}

// DetachAllNonSystemTools strips every provider tool from the agent,
// leaving the protected system set untouched. Individual detach failures
// are logged and swallowed; a tool left behind only wastes context window.
func (b *Binder) DetachAllNonSystemTools(ctx context.Context, agentID string) error {
	tools, err := b.platform.ListAgentTools(ctx, agentID)
	if err != nil {
		return fmt.Errorf("binder: list agent tools: %w", err)
	}

	var fns []func() error
	var names []string
	for _, tool := range tools {
		if IsSystemTool(tool.Name) {
			continue
		}
		fns = append(fns, func() error {
			return b.platform.DetachTool(ctx, agentID, tool.ID)
		})
		names = append(names, tool.Name)
	}

	for i, err := range settleAll(fns) {
		if err != nil {
			b.logger.Warn("failed to detach tool",
				slog.String(log.AgentIDKey, agentID),
				slog.String(log.ToolKey, names[i]),
				slog.Any("error", err))
		}
	}
	return nil
}

// RegisterProviderIfAbsent registers the provider's MCP endpoint with the
// platform unless a server with that name already exists.
func (b *Binder) RegisterProviderIfAbsent(ctx context.Context, provider directory.Provider) error {
	names, err := b.platform.ListMCPServers(ctx)
	if err != nil {
		return fmt.Errorf("binder: list MCP servers: %w", err)
	}
	for _, name := range names {
		if name == provider.Name {
			return nil
		}
	}

	cfg := platform.MCPServerConfig{
		ServerName: provider.Name,
		ServerURL:  provider.URL,
		Transport:  string(provider.Transport),
	}
	if err := b.platform.RegisterMCPServer(ctx, cfg); err != nil {
		return fmt.Errorf("binder: register MCP server %q: %w", provider.Name, err)
	}

	b.logger.Info("registered MCP server",
		slog.String(log.ProviderKey, provider.Name),
		slog.String("url", provider.URL))
	return nil
}

// AttachAllProviderTools registers each of the provider's tools into the
// platform catalog and attaches it to the agent, concurrently and
// best-effort. A provider exposing one broken tool still contributes the
// rest.
func (b *Binder) AttachAllProviderTools(ctx context.Context, agentID, providerName string) error {
	tools, err := b.platform.ListMCPServerTools(ctx, providerName)
	if err != nil {
		return fmt.Errorf("binder: list tools for %q: %w", providerName, err)
	}

	fns := make([]func() error, len(tools))
	for i, tool := range tools {
		fns[i] = func() error {
			registered, err := b.platform.RegisterMCPTool(ctx, providerName, tool.Name)
			if err != nil {
				return fmt.Errorf("register %q: %w", tool.Name, err)
			}
			if err := b.platform.AttachTool(ctx, agentID, registered.ID); err != nil {
				return fmt.Errorf("attach %q: %w", tool.Name, err)
			}
			return nil
		}
	}

	attached := 0
	for i, err := range settleAll(fns) {
		if err != nil {
			b.logger.Warn("failed to bind provider tool",
				slog.String(log.AgentIDKey, agentID),
				slog.String(log.ProviderKey, providerName),
				slog.String(log.ToolKey, tools[i].Name),
				slog.Any("error", err))
			continue
		}
		attached++
	}

	b.logger.Debug("provider tools bound",
		slog.String(log.AgentIDKey, agentID),
		slog.String(log.ProviderKey, providerName),
		slog.Int("attached", attached),
		slog.Int("total", len(tools)))
	return nil
}

// Binding describes the provider an agent ended up bound to for a task.
// When several providers are bound the last one wins the display fields.
type Binding struct {
	Provider string
	ImageURL string
}

// BindForTask resolves providers for the task and swaps the agent's
// provider tools accordingly. A directory failure is fatal; an empty
// result and per-provider binding trouble are not, the task then runs on
// the agent's system tools alone and the binding comes back empty.
func (b *Binder) BindForTask(ctx context.Context, agentID, task string) (Binding, error) {
	result, err := b.directory.Search(ctx, task, b.resultCount)
	if err != nil {
		return Binding{}, fmt.Errorf("binder: resolve providers: %w", err)
	}

	if err := b.DetachAllNonSystemTools(ctx, agentID); err != nil {
		return Binding{}, err
	}

	if len(result.Servers) == 0 {
		b.logger.Info("no tool provider matched task",
			slog.String(log.AgentIDKey, agentID),
			slog.String("task", task))
		return Binding{}, nil
	}

	var binding Binding
	for _, provider := range result.Servers {
		if err := b.RegisterProviderIfAbsent(ctx, provider); err != nil {
			b.logger.Warn("skipping provider",
				slog.String(log.AgentIDKey, agentID),
				slog.String(log.ProviderKey, provider.Name),
				slog.Any("error", err))
			continue
		}
		if err := b.AttachAllProviderTools(ctx, agentID, provider.Name); err != nil {
			b.logger.Warn("skipping provider",
				slog.String(log.AgentIDKey, agentID),
				slog.String(log.ProviderKey, provider.Name),
				slog.Any("error", err))
			continue
		}
		binding = Binding{Provider: provider.Name, ImageURL: provider.ImageURL}
	}
	return binding, nil
}
