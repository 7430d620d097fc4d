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

// Package config loads and validates maestro daemon configuration from an
// optional YAML file with environment variable overrides. Credentials are
// only ever read from the environment, never from the config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config represents the complete maestro configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Platform      PlatformConfig      `yaml:"platform"`
	Search        SearchConfig        `yaml:"search"`
	Summarizer    SummarizerConfig    `yaml:"summarizer"`
	Store         StoreConfig         `yaml:"store"`
	Workflow      WorkflowConfig      `yaml:"workflow"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host is the bind address. Environment: HOST. Default: 0.0.0.0
	Host string `yaml:"host"`

	// Port is the listen port. Environment: PORT. Default: 8000
	Port int `yaml:"port"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`

	// SearchRateLimit is the sustained request rate allowed on the public
	// /search proxy, in requests per second. Zero disables limiting.
	SearchRateLimit float64 `yaml:"search_rate_limit,omitempty"`

	// SearchRateBurst is the burst size for the /search rate limiter.
	SearchRateBurst int `yaml:"search_rate_burst,omitempty"`
}

// PlatformConfig configures the external agent platform client.
type PlatformConfig struct {
	// BaseURL is the platform API base URL.
	// Environment: PLATFORM_BASE_URL
	BaseURL string `yaml:"base_url"`

	// APIToken authenticates platform API calls.
	// Environment: PLATFORM_API_TOKEN (required)
	APIToken string `yaml:"-"`

	// RequestTimeout bounds individual platform API calls.
	// Streaming message calls are exempt. Default: 60s
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`

	// SearchServerURL, when set, is an MCP search server registered with the
	// platform at daemon start so agents can run directory searches
	// themselves. Environment: SEARCH_SERVER_URL
	SearchServerURL string `yaml:"search_server_url,omitempty"`

	// SearchServerName is the registration name for SearchServerURL.
	// Default: maestro-search
	SearchServerName string `yaml:"search_server_name,omitempty"`
}

// SearchMode selects how the tool directory is queried.
type SearchMode string

const (
	// SearchModeQdrant queries the Qdrant collection directly.
	SearchModeQdrant SearchMode = "qdrant"
	// SearchModeProxy forwards queries to an external search endpoint.
	SearchModeProxy SearchMode = "proxy"
)

// SearchConfig configures the tool directory (vector search) collaborator.
type SearchConfig struct {
	// Mode is "qdrant" (direct) or "proxy" (external endpoint).
	// Default: qdrant
	Mode SearchMode `yaml:"mode"`

	// Endpoint is the external search service URL, used in proxy mode.
	// Environment: SEARCH_ENDPOINT
	Endpoint string `yaml:"endpoint,omitempty"`

	// QdrantURL is the Qdrant REST base URL.
	// Environment: QDRANT_URL
	QdrantURL string `yaml:"qdrant_url,omitempty"`

	// QdrantAPIKey authenticates Qdrant API calls.
	// Environment: QDRANT_API_KEY
	QdrantAPIKey string `yaml:"-"`

	// Collection is the Qdrant collection holding tool-provider descriptors.
	// Default: mcp_servers
	Collection string `yaml:"collection,omitempty"`

	// EmbeddingModel is the model used to embed queries.
	// Default: text-embedding-3-small
	EmbeddingModel string `yaml:"embedding_model,omitempty"`

	// EmbeddingBaseURL overrides the OpenAI-compatible embeddings endpoint.
	EmbeddingBaseURL string `yaml:"embedding_base_url,omitempty"`

	// EmbeddingAPIKey authenticates embedding calls.
	// Environment: OPENAI_API_KEY (required in qdrant search mode)
	EmbeddingAPIKey string `yaml:"-"`

	// CatalogPath is an optional JSON catalog of provider descriptors to
	// seed into the collection at startup.
	CatalogPath string `yaml:"catalog_path,omitempty"`
}

// SummarizerConfig configures the secondary LLM used for log summaries.
type SummarizerConfig struct {
	// Enabled turns per-task log summarization on. Default: true
	Enabled *bool `yaml:"enabled,omitempty"`

	// BaseURL is an OpenAI-compatible API base URL.
	// Default: the Groq API.
	BaseURL string `yaml:"base_url,omitempty"`

	// APIKey authenticates summarizer calls.
	// Environment: GROQ_API_KEY
	APIKey string `yaml:"-"`

	// Model is the completion model. Default: llama-3.3-70b-versatile
	Model string `yaml:"model,omitempty"`
}

// StoreConfig configures the workflow session store backend.
type StoreConfig struct {
	// Type is "memory" (default) or "sqlite".
	Type string `yaml:"type"`

	// Path is the sqlite database file, required for the sqlite backend.
	Path string `yaml:"path,omitempty"`
}

// WorkflowConfig configures workflow execution behavior.
type WorkflowConfig struct {
	// ProviderResultCount is how many tool providers to bind per task.
	// Default: 1
	ProviderResultCount int `yaml:"provider_result_count,omitempty"`

	// AgentModel is the conversational model handle for new agents.
	AgentModel string `yaml:"agent_model,omitempty"`

	// EmbeddingModel is the embedding handle for new agents.
	EmbeddingModel string `yaml:"embedding_model,omitempty"`

	// VerifyResults enables LLM verification of task transcripts.
	// Default: false
	VerifyResults bool `yaml:"verify_results,omitempty"`
}

// ObservabilityConfig configures tracing and metrics.
type ObservabilityConfig struct {
	// TracingEnabled enables OpenTelemetry span export. Default: false
	TracingEnabled bool `yaml:"tracing_enabled"`

	// TracingExporter is "stdout" or "otlp". Default: stdout
	TracingExporter string `yaml:"tracing_exporter,omitempty"`

	// OTLPEndpoint is the OTLP/HTTP collector endpoint, used when the
	// exporter is "otlp".
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`

	// MetricsEnabled exposes Prometheus metrics on /metrics. Default: true
	MetricsEnabled *bool `yaml:"metrics_enabled,omitempty"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	enabled := true
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: 30 * time.Second,
			SearchRateLimit: 10,
			SearchRateBurst: 20,
		},
		Platform: PlatformConfig{
			BaseURL:          "https://api.letta.com",
			RequestTimeout:   60 * time.Second,
			SearchServerName: "maestro-search",
		},
		Search: SearchConfig{
			Mode:           SearchModeQdrant,
			Collection:     "mcp_servers",
			EmbeddingModel: "text-embedding-3-small",
		},
		Summarizer: SummarizerConfig{
			Enabled: &enabled,
			BaseURL: "https://api.groq.com/openai/v1",
			Model:   "llama-3.3-70b-versatile",
		},
		Store: StoreConfig{
			Type: "memory",
		},
		Workflow: WorkflowConfig{
			ProviderResultCount: 1,
			AgentModel:          "anthropic/claude-sonnet-4-20250514",
			EmbeddingModel:      "openai/text-embedding-3-small",
		},
		Observability: ObservabilityConfig{
			TracingExporter: "stdout",
			MetricsEnabled:  &enabled,
		},
	}
}

// Load reads configuration from the given YAML file (optional), applies
// environment overrides, and validates the result. An empty path loads
// defaults plus environment only; a missing file at an explicit path is an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("MAESTRO_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("PLATFORM_BASE_URL"); v != "" {
		c.Platform.BaseURL = v
	}
	if v := os.Getenv("PLATFORM_API_TOKEN"); v != "" {
		c.Platform.APIToken = v
	}
	if v := os.Getenv("SEARCH_SERVER_URL"); v != "" {
		c.Platform.SearchServerURL = v
	}
	if v := os.Getenv("SEARCH_ENDPOINT"); v != "" {
		c.Search.Endpoint = v
		c.Search.Mode = SearchModeProxy
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		c.Search.QdrantURL = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		c.Search.QdrantAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Search.EmbeddingAPIKey = v
	}
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		c.Summarizer.APIKey = v
	}
}

// Validate checks the configuration for missing or contradictory settings.
// Absent required credentials are a startup-time fatal condition for the
// daemon, so they fail validation here.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Platform.APIToken == "" {
		return fmt.Errorf("%w: PLATFORM_API_TOKEN is required", ErrInvalidConfig)
	}
	if c.Platform.BaseURL == "" {
		return fmt.Errorf("%w: platform base URL is required", ErrInvalidConfig)
	}

	switch c.Search.Mode {
	case SearchModeQdrant:
		if c.Search.QdrantURL == "" {
			return fmt.Errorf("%w: QDRANT_URL is required in qdrant search mode", ErrInvalidConfig)
		}
		if c.Search.Collection == "" {
			return fmt.Errorf("%w: search collection is required in qdrant search mode", ErrInvalidConfig)
		}
		if c.Search.EmbeddingAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required in qdrant search mode", ErrInvalidConfig)
		}
	case SearchModeProxy:
		if c.Search.Endpoint == "" {
			return fmt.Errorf("%w: SEARCH_ENDPOINT is required in proxy search mode", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown search mode %q", ErrInvalidConfig, c.Search.Mode)
	}

	if c.Summarizer.Enabled != nil && *c.Summarizer.Enabled && c.Summarizer.APIKey == "" {
		return fmt.Errorf("%w: GROQ_API_KEY is required when the summarizer is enabled", ErrInvalidConfig)
	}

	switch c.Store.Type {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store path is required for the sqlite backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store type %q", ErrInvalidConfig, c.Store.Type)
	}

	if c.Workflow.ProviderResultCount < 1 || c.Workflow.ProviderResultCount > 100 {
		return fmt.Errorf("%w: provider_result_count must be in [1,100]", ErrInvalidConfig)
	}

	return nil
}

// SummarizerEnabled reports whether log summarization is on.
func (c *Config) SummarizerEnabled() bool {
	return c.Summarizer.Enabled == nil || *c.Summarizer.Enabled
}

// MetricsEnabled reports whether the Prometheus endpoint is on.
func (c *Config) MetricsEnabled() bool {
	return c.Observability.MetricsEnabled == nil || *c.Observability.MetricsEnabled
}
