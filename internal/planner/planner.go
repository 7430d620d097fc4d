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

// Package planner turns a natural-language request into an ordered list of
// executable tasks by asking the conversational agent to decompose it. The
// agent's reply is a list literal; parsing tolerates the formats models
// actually produce.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/web7-labs/maestro/internal/log"
	"github.com/web7-labs/maestro/internal/platform"
)

// decomposePrompt asks for a plan without letting the agent start executing.
const decomposePrompt = `Decompose the following request into an ordered list of discrete tasks.
Each task must be a single self-contained action that one tool provider could perform.
Do not use any tools. Do not execute anything. Respond with only the list, formatted as
a list of strings, e.g. ["first task", "second task"].

Request: %s`

// tasksBlockLabel is the agent memory block holding the current plan.
const tasksBlockLabel = "tasks"

// ParseError reports an agent reply that could not be read as a task list.
// Raw carries the reply for diagnostics.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("planner: cannot parse task list (%s): %q", e.Reason, e.Raw)
}

// Agent is the slice of the platform client the planner needs.
type Agent interface {
	StreamMessages(ctx context.Context, agentID, content string, onMessage func(platform.Message)) ([]platform.Message, error)
	UpdateBlockValue(ctx context.Context, agentID, label, value string) error
}

// Planner produces task lists.
type Planner struct {
	agent  Agent
	logger *slog.Logger
}

// New creates a Planner.
func New(agent Agent, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{agent: agent, logger: logger}
}

// GenerateTaskList asks the agent to decompose the request and returns the
// ordered tasks. The plan is mirrored into the agent's tasks memory block
// so later turns can refer back to it; a mirror failure is logged, not
// fatal.
func (p *Planner) GenerateTaskList(ctx context.Context, agentID, request string) ([]string, error) {
	prompt := fmt.Sprintf(decomposePrompt, request)

	messages, err := p.agent.StreamMessages(ctx, agentID, prompt, nil)
	if err != nil {
		return nil, fmt.Errorf("planner: decompose request: %w", err)
	}

	reply := lastAssistantContent(messages)
	if reply == "" {
		return nil, &ParseError{Raw: "", Reason: "no assistant reply"}
	}

	// Mirror the raw reply before parsing so a malformed plan still
	// leaves an audit trail in agent memory.
	if err := p.agent.UpdateBlockValue(ctx, agentID, tasksBlockLabel, reply); err != nil {
		p.logger.Warn("failed to mirror plan into agent memory",
			slog.String(log.AgentIDKey, agentID),
			slog.Any("error", err))
	}

	tasks, err := ParseTaskList(reply)
	if err != nil {
		return nil, err
	}

	p.logger.Info("task list generated",
		slog.String(log.AgentIDKey, agentID),
		slog.Int("tasks", len(tasks)))
	return tasks, nil
}

// lastAssistantContent returns the content of the final assistant message.
// Reasoning and tool chatter precede it in the stream.
func lastAssistantContent(messages []platform.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].MessageType == platform.MessageTypeAssistant {
			return messages[i].Content
		}
	}
	return ""
}

// ParseTaskList reads a model-produced list literal. JSON is accepted
// first; replies using single-quoted strings are parsed with a small
// scanner. A surrounding markdown code fence is stripped.
func ParseTaskList(raw string) ([]string, error) {
	text := stripCodeFence(raw)

	var tasks []string
	if err := json.Unmarshal([]byte(text), &tasks); err == nil {
		return validateTasks(tasks, raw)
	}

	tasks, err := parseListLiteral(text)
	if err != nil {
		return nil, &ParseError{Raw: raw, Reason: err.Error()}
	}
	return validateTasks(tasks, raw)
}

func validateTasks(tasks []string, raw string) ([]string, error) {
	if len(tasks) == 0 {
		return nil, &ParseError{Raw: raw, Reason: "empty task list"}
	}
	for _, task := range tasks {
		if strings.TrimSpace(task) == "" {
			return nil, &ParseError{Raw: raw, Reason: "blank task entry"}
		}
	}
	return tasks, nil
}

// stripCodeFence removes a surrounding markdown fence and any prose before
// the opening bracket.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	// Tolerate a leading sentence before the list itself.
	if start := strings.IndexByte(s, '['); start > 0 {
		if end := strings.LastIndexByte(s, ']'); end > start {
			s = s[start : end+1]
		}
	}
	return s
}

// parseListLiteral scans a bracketed list of quoted strings, accepting
// either quote style and backslash escapes.
func parseListLiteral(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("not a list literal")
	}

	var tasks []string
	inner := s[1 : len(s)-1]
	i := 0
	for i < len(inner) {
		switch c := inner[i]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ',':
			i++
		case c == '\'' || c == '"':
			item, next, err := scanQuoted(inner, i)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, item)
			i = next
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
		}
	}
	return tasks, nil
}

// scanQuoted reads one quoted string starting at s[start] and returns the
// unescaped value and the index just past the closing quote.
func scanQuoted(s string, start int) (string, int, error) {
	quote := s[start]
	var b strings.Builder
	i := start + 1
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			b.WriteByte(s[i+1])
			i += 2
		case c == quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, fmt.Errorf("unterminated string at offset %d", start)
}
