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

package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Compile-time interface assertion.
var _ Client = (*ProxyClient)(nil)

// ProxyClient forwards directory queries to an external search service
// exposing GET /search?query=&k= and GET /health.
type ProxyClient struct {
	endpoint string
	http     *http.Client
}

// NewProxyClient creates a proxy directory client for the given endpoint.
func NewProxyClient(endpoint string, httpClient *http.Client) *ProxyClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ProxyClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     httpClient,
	}
}

// Search forwards the query to the external search endpoint.
func (c *ProxyClient) Search(ctx context.Context, query string, k int) (*SearchResult, error) {
	u := fmt.Sprintf("%s/search?query=%s&k=%s",
		c.endpoint, url.QueryEscape(query), strconv.Itoa(k))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("directory: build search request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("directory: search returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("directory: decode search response: %w", err)
	}
	return &result, nil
}

// Health probes the external search service.
func (c *ProxyClient) Health(ctx context.Context) Health {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return Health{Status: "unhealthy", Database: "search-proxy", Error: err.Error()}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Health{Status: "unhealthy", Database: "search-proxy", Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Health{
			Status:   "unhealthy",
			Database: "search-proxy",
			Error:    fmt.Sprintf("status %d", resp.StatusCode),
		}
	}
	return Health{Status: "healthy", Database: "search-proxy-connected"}
}
