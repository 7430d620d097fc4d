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

// Package mcpprobe speaks MCP directly to a tool provider to verify that
// its endpoint is alive and enumerate the tools it exposes. The daemon
// itself never calls providers (the agent platform does); the probe backs
// the CLI verify command and catalog hygiene.
package mcpprobe

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/web7-labs/maestro/internal/directory"
)

// ToolInfo describes one tool exposed by a provider.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Report is the outcome of probing one provider.
type Report struct {
	ServerName      string     `json:"server_name"`
	ServerVersion   string     `json:"server_version"`
	ProtocolVersion string     `json:"protocol_version"`
	Tools           []ToolInfo `json:"tools"`
}

// Probe connects to the provider, runs the MCP handshake, and lists its
// tools. Only network transports can be probed.
func Probe(ctx context.Context, provider directory.Provider, clientVersion string) (*Report, error) {
	var c *client.Client
	var err error
	switch provider.Transport {
	case directory.TransportStreamableHTTP, "":
		c, err = client.NewStreamableHttpClient(provider.URL)
	case directory.TransportSSE:
		c, err = client.NewSSEMCPClient(provider.URL)
	default:
		return nil, fmt.Errorf("mcpprobe: transport %q cannot be probed remotely", provider.Transport)
	}
	if err != nil {
		return nil, fmt.Errorf("mcpprobe: create client for %q: %w", provider.Name, err)
	}
	defer c.Close()

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcpprobe: connect to %q: %w", provider.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "maestro", Version: clientVersion}

	initResult, err := c.Initialize(ctx, initReq)
	if err != nil {
		return nil, fmt.Errorf("mcpprobe: initialize %q: %w", provider.Name, err)
	}

	toolsResult, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcpprobe: list tools for %q: %w", provider.Name, err)
	}

	report := &Report{
		ServerName:      initResult.ServerInfo.Name,
		ServerVersion:   initResult.ServerInfo.Version,
		ProtocolVersion: initResult.ProtocolVersion,
		Tools:           make([]ToolInfo, 0, len(toolsResult.Tools)),
	}
	for _, tool := range toolsResult.Tools {
		report.Tools = append(report.Tools, ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
		})
	}
	return report, nil
}
