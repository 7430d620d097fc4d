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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Compile-time interface assertion.
var _ Client = (*QdrantClient)(nil)

// Embedder turns a text query into a vector. Implemented by summary.Embedder
// over the OpenAI-compatible embeddings API, and by fakes in tests.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// qdrantStatus supports both `status: "ok"` and `status: {"error":"..."}`.
type qdrantStatus struct {
	State string
	Error string
}

func (s *qdrantStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s.State = strings.ToLower(v)
		return nil
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Error != "" {
		s.State = "error"
		s.Error = obj.Error
	}
	return nil
}

type qdrantEnvelope[T any] struct {
	Status qdrantStatus `json:"status"`
	Result T            `json:"result"`
}

type qdrantPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// QdrantClient serves directory queries from a Qdrant collection of
// tool-provider descriptors. Point payloads carry the descriptor fields;
// the vector is an embedding of the provider description.
type QdrantClient struct {
	baseURL    string
	apiKey     string
	collection string
	embedder   Embedder
	http       *http.Client
}

// QdrantConfig configures a QdrantClient.
type QdrantConfig struct {
	BaseURL    string
	APIKey     string
	Collection string
	Embedder   Embedder
	HTTPClient *http.Client
}

// NewQdrantClient creates a Qdrant-backed directory client.
func NewQdrantClient(cfg QdrantConfig) *QdrantClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &QdrantClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		embedder:   cfg.Embedder,
		http:       httpClient,
	}
}

// do issues a JSON request against the Qdrant REST API and decodes the
// response envelope result into out (if non-nil).
func (c *QdrantClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("directory: encode qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("directory: build qdrant request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("directory: qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("directory: read qdrant response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("directory: qdrant %s %s returned %d: %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("directory: decode qdrant response: %w", err)
	}
	return nil
}

// Search embeds the query and runs a similarity search over the provider
// collection.
func (c *QdrantClient) Search(ctx context.Context, query string, k int) (*SearchResult, error) {
	vector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("directory: embed query: %w", err)
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var envelope qdrantEnvelope[[]qdrantPoint]
	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(c.collection))
	if err := c.do(ctx, http.MethodPost, path, body, &envelope); err != nil {
		return nil, err
	}
	if envelope.Status.State == "error" {
		return nil, fmt.Errorf("directory: qdrant search: %s", envelope.Status.Error)
	}

	result := &SearchResult{Success: true, Query: query, Servers: []Provider{}}
	for _, point := range envelope.Result {
		provider := providerFromPayload(point.Payload)
		if provider.Name == "" || provider.URL == "" {
			continue
		}
		result.Servers = append(result.Servers, provider)
	}
	return result, nil
}

// providerFromPayload maps a point payload to a descriptor. Older catalog
// entries store the endpoint under "mcp_server_link" rather than "url".
func providerFromPayload(payload map[string]any) Provider {
	str := func(key string) string {
		if v, ok := payload[key].(string); ok {
			return v
		}
		return ""
	}

	provider := Provider{
		Name:           str("name"),
		URL:            str("url"),
		ImageURL:       str("image_url"),
		Authentication: str("authentication"),
		Transport:      Transport(str("transport")),
	}
	if provider.URL == "" {
		provider.URL = str("mcp_server_link")
	}
	if provider.Transport == "" {
		provider.Transport = TransportStreamableHTTP
	}
	return provider
}

// Health checks that the Qdrant collection listing is reachable.
func (c *QdrantClient) Health(ctx context.Context) Health {
	var envelope qdrantEnvelope[json.RawMessage]
	if err := c.do(ctx, http.MethodGet, "/collections", nil, &envelope); err != nil {
		return Health{Status: "unhealthy", Database: "qdrant-unreachable", Error: err.Error()}
	}
	return Health{Status: "healthy", Database: "qdrant-connected"}
}

// EnsureCollection creates the provider collection if it does not exist.
// vectorSize must match the embedder's output dimension.
func (c *QdrantClient) EnsureCollection(ctx context.Context, vectorSize int) error {
	path := fmt.Sprintf("/collections/%s", url.PathEscape(c.collection))

	var envelope qdrantEnvelope[json.RawMessage]
	err := c.do(ctx, http.MethodGet, path, nil, &envelope)
	if err == nil && envelope.Status.State != "error" {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// UpsertPoint writes one provider descriptor with its embedding vector.
func (c *QdrantClient) UpsertPoint(ctx context.Context, id string, vector []float32, provider Provider, description string) error {
	payload := map[string]any{
		"name":        provider.Name,
		"url":         provider.URL,
		"transport":   string(provider.Transport),
		"description": description,
	}
	if provider.ImageURL != "" {
		payload["image_url"] = provider.ImageURL
	}
	if provider.Authentication != "" {
		payload["authentication"] = provider.Authentication
	}

	body := map[string]any{
		"points": []map[string]any{
			{"id": id, "vector": vector, "payload": payload},
		},
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(c.collection))
	return c.do(ctx, http.MethodPut, path, body, nil)
}
