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

// Package summary condenses raw agent activity into short human-readable
// log lines using a fast OpenAI-compatible completion API, and offers an
// optional transcript verifier. Summaries are advisory only: failures here
// must never fail a workflow.
package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const summarySystemPrompt = `You summarize activity logs from an AI agent executing a task.
Given one log entry, produce a single present-tense summary of at most 10 words.
Do not quote the entry. Do not add punctuation beyond the sentence itself.
Respond with the summary only.`

const verifySystemPrompt = `You judge whether an AI agent completed a task.
You are given the task and the agent's full transcript.
Respond with a JSON object only: {"succeeded": true|false, "rationale": "<one sentence>"}.`

// Config configures a summary client.
type Config struct {
	// BaseURL is an OpenAI-compatible API base, e.g. the Groq endpoint.
	BaseURL string
	APIKey  string
	// Model is the completion model used for summaries and verification.
	Model string
}

// Client produces task-log summaries and transcript verdicts.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a summary client against an OpenAI-compatible endpoint.
func New(cfg Config) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(apiCfg),
		model: cfg.Model,
	}
}

// Summarize condenses one agent message into a short log line. messageType
// gives the model context about what kind of activity it is summarizing.
func (c *Client) Summarize(ctx context.Context, messageType, content string) (string, error) {
	entry := fmt.Sprintf("[%s] %s", messageType, content)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.2,
		MaxTokens:   40,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: entry},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summary: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summary: completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Verdict is the outcome of a transcript verification.
type Verdict struct {
	Succeeded bool   `json:"succeeded"`
	Rationale string `json:"rationale"`
}

// Verify asks the model whether the transcript shows the task was completed.
func (c *Client) Verify(ctx context.Context, task, transcript string) (Verdict, error) {
	user := fmt.Sprintf("Task:\n%s\n\nTranscript:\n%s", task, transcript)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: verifySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("summary: verify completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Verdict{}, fmt.Errorf("summary: verify returned no choices")
	}

	raw := stripCodeFence(resp.Choices[0].Message.Content)
	var verdict Verdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return Verdict{}, fmt.Errorf("summary: parse verdict %q: %w", raw, err)
	}
	return verdict, nil
}

// stripCodeFence removes a surrounding markdown code fence, which models
// add despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Embedder produces vectors for directory queries via the OpenAI-compatible
// embeddings API.
type Embedder struct {
	api   *openai.Client
	model openai.EmbeddingModel
}

// EmbedderConfig configures an Embedder.
type EmbedderConfig struct {
	BaseURL string
	APIKey  string
	// Model defaults to text-embedding-3-small.
	Model string
}

// NewEmbedder creates an embeddings client.
func NewEmbedder(cfg EmbedderConfig) *Embedder {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &Embedder{
		api:   openai.NewClientWithConfig(apiCfg),
		model: openai.EmbeddingModel(model),
	}
}

// Embed returns the embedding vector for one text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("summary: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("summary: embeddings response is empty")
	}
	return resp.Data[0].Embedding, nil
}
