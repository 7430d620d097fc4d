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

package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a non-2xx response from the platform.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform: API error %d: %s", e.StatusCode, e.Body)
}

// Config configures a platform Client.
type Config struct {
	// BaseURL is the platform API base URL.
	BaseURL string

	// APIToken is sent as a bearer token on every request.
	APIToken string

	// RequestTimeout bounds non-streaming calls. Default: 60s.
	RequestTimeout time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Client talks to the agent platform's REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a platform client.
func New(cfg Config) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.APIToken,
		http:    httpClient,
		logger:  logger,
	}
}

// do issues a JSON request and decodes the response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("platform: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("platform: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("platform: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("platform: decode %s %s response: %w", method, path, err)
	}
	return nil
}

// CreateAgent provisions a new conversational agent.
func (c *Client) CreateAgent(ctx context.Context, req CreateAgentRequest) (Agent, error) {
	var agent Agent
	if err := c.do(ctx, http.MethodPost, "/v1/agents", req, &agent); err != nil {
		return Agent{}, err
	}
	return agent, nil
}

// ListAgentTools lists the tools currently attached to an agent.
func (c *Client) ListAgentTools(ctx context.Context, agentID string) ([]Tool, error) {
	var tools []Tool
	path := fmt.Sprintf("/v1/agents/%s/tools", url.PathEscape(agentID))
	if err := c.do(ctx, http.MethodGet, path, nil, &tools); err != nil {
		return nil, err
	}
	return tools, nil
}

// AttachTool attaches a catalog tool to an agent.
func (c *Client) AttachTool(ctx context.Context, agentID, toolID string) error {
	path := fmt.Sprintf("/v1/agents/%s/tools/attach/%s",
		url.PathEscape(agentID), url.PathEscape(toolID))
	return c.do(ctx, http.MethodPatch, path, nil, nil)
}

// DetachTool detaches a tool from an agent.
func (c *Client) DetachTool(ctx context.Context, agentID, toolID string) error {
	path := fmt.Sprintf("/v1/agents/%s/tools/detach/%s",
		url.PathEscape(agentID), url.PathEscape(toolID))
	return c.do(ctx, http.MethodPatch, path, nil, nil)
}

// ListMCPServers returns the names of registered MCP servers.
func (c *Client) ListMCPServers(ctx context.Context) ([]string, error) {
	// The platform returns an object keyed by server name.
	var servers map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/v1/tools/mcp/servers", nil, &servers); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	return names, nil
}

// RegisterMCPServer registers a remote MCP server endpoint.
func (c *Client) RegisterMCPServer(ctx context.Context, cfg MCPServerConfig) error {
	return c.do(ctx, http.MethodPut, "/v1/tools/mcp/servers", cfg, nil)
}

// ListMCPServerTools lists every tool exposed by a registered MCP server.
func (c *Client) ListMCPServerTools(ctx context.Context, serverName string) ([]Tool, error) {
	var tools []Tool
	path := fmt.Sprintf("/v1/tools/mcp/servers/%s/tools", url.PathEscape(serverName))
	if err := c.do(ctx, http.MethodGet, path, nil, &tools); err != nil {
		return nil, err
	}
	return tools, nil
}

// RegisterMCPTool registers one of an MCP server's tools into the
// platform's tool catalog and returns the catalog entry.
func (c *Client) RegisterMCPTool(ctx context.Context, serverName, toolName string) (Tool, error) {
	var tool Tool
	path := fmt.Sprintf("/v1/tools/mcp/servers/%s/%s",
		url.PathEscape(serverName), url.PathEscape(toolName))
	if err := c.do(ctx, http.MethodPost, path, nil, &tool); err != nil {
		return Tool{}, err
	}
	return tool, nil
}

// ListBlocks lists the memory blocks attached to an agent.
func (c *Client) ListBlocks(ctx context.Context, agentID string) ([]Block, error) {
	var blocks []Block
	path := fmt.Sprintf("/v1/agents/%s/core-memory/blocks", url.PathEscape(agentID))
	if err := c.do(ctx, http.MethodGet, path, nil, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// CreateBlock creates a standalone memory block.
func (c *Client) CreateBlock(ctx context.Context, req CreateBlockRequest) (Block, error) {
	var block Block
	if err := c.do(ctx, http.MethodPost, "/v1/blocks", req, &block); err != nil {
		return Block{}, err
	}
	return block, nil
}

// AttachBlock attaches a standalone block to an agent's core memory.
func (c *Client) AttachBlock(ctx context.Context, agentID, blockID string) error {
	path := fmt.Sprintf("/v1/agents/%s/core-memory/blocks/attach/%s",
		url.PathEscape(agentID), url.PathEscape(blockID))
	return c.do(ctx, http.MethodPatch, path, nil, nil)
}

// UpdateBlockValue overwrites the value of an agent's block by label.
func (c *Client) UpdateBlockValue(ctx context.Context, agentID, label, value string) error {
	path := fmt.Sprintf("/v1/agents/%s/core-memory/blocks/%s",
		url.PathEscape(agentID), url.PathEscape(label))
	return c.do(ctx, http.MethodPatch, path, map[string]string{"value": value}, nil)
}
