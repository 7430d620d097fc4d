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

// Package directory resolves natural-language task descriptions to MCP
// tool-provider descriptors through a vector index. Two implementations
// exist: a direct Qdrant-backed index and a thin proxy to an external
// search endpoint.
package directory

import "context"

// Transport identifies how an MCP server speaks the protocol.
type Transport string

const (
	TransportStreamableHTTP Transport = "streamable-http"
	TransportSSE            Transport = "sse"
	TransportStdio          Transport = "stdio"
)

// Provider describes one MCP tool provider returned by a search.
// Descriptors are ephemeral: consumed immediately by the binder, never
// persisted.
type Provider struct {
	// Name doubles as the human label and the platform registration key.
	Name           string    `json:"name"`
	Transport      Transport `json:"transport"`
	URL            string    `json:"url"`
	ImageURL       string    `json:"image_url,omitempty"`
	Authentication string    `json:"authentication,omitempty"`
}

// SearchResult is the ranked outcome of one directory query.
type SearchResult struct {
	Success bool       `json:"success"`
	Query   string     `json:"query"`
	Servers []Provider `json:"servers"`
}

// Health reports directory backend reachability for the /health endpoint.
type Health struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Error    string `json:"error,omitempty"`
}

// Client searches the tool directory.
type Client interface {
	// Search returns up to k providers ranked by similarity to query.
	Search(ctx context.Context, query string, k int) (*SearchResult, error)

	// Health checks backend reachability. It never returns an error;
	// failures are reported in the Health value.
	Health(ctx context.Context) Health
}
