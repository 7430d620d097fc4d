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

// Package executor runs one planned task end to end: bind tool providers,
// converse with the agent until the task is done, mirror the transcript
// into agent memory, and stream short activity summaries into the session
// log.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/web7-labs/maestro/internal/binder"
	"github.com/web7-labs/maestro/internal/log"
	"github.com/web7-labs/maestro/internal/platform"
	"github.com/web7-labs/maestro/internal/session"
	"github.com/web7-labs/maestro/internal/summary"
)

// taskPrompt instructs the agent to do the work with whatever tools are
// currently attached.
const taskPrompt = `Accomplish the following task using the tools attached to you.
Work step by step. Use a scratchpad to track intermediate results, then give a
final answer describing what you did and the outcome.

Task: %s`

// transcriptBlockLimit is the declared capacity of per-task transcript
// blocks. The platform rejects oversized writes; transcripts are never
// truncated here.
const transcriptBlockLimit = 40000

// Agent is the slice of the platform client the executor needs.
type Agent interface {
	StreamMessages(ctx context.Context, agentID, content string, onMessage func(platform.Message)) ([]platform.Message, error)
	ListBlocks(ctx context.Context, agentID string) ([]platform.Block, error)
	CreateBlock(ctx context.Context, req platform.CreateBlockRequest) (platform.Block, error)
	AttachBlock(ctx context.Context, agentID, blockID string) error
	UpdateBlockValue(ctx context.Context, agentID, label, value string) error
}

// ToolBinder reshapes the agent's tool set for a task.
type ToolBinder interface {
	BindForTask(ctx context.Context, agentID, task string) (binder.Binding, error)
}

// Summarizer condenses one agent message into a short log line.
type Summarizer interface {
	Summarize(ctx context.Context, messageType, content string) (string, error)
}

// Verifier judges a finished transcript.
type Verifier interface {
	Verify(ctx context.Context, task, transcript string) (summary.Verdict, error)
}

// Executor runs planned tasks against an agent.
type Executor struct {
	agent  Agent
	binder ToolBinder
	logger *slog.Logger

	// summarizer and verifier are optional.
	summarizer Summarizer
	verifier   Verifier
}

// Config configures an Executor.
type Config struct {
	Agent      Agent
	Binder     ToolBinder
	Summarizer Summarizer
	Verifier   Verifier
	Logger     *slog.Logger
}

// New creates an Executor.
func New(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		agent:      cfg.Agent,
		binder:     cfg.Binder,
		summarizer: cfg.Summarizer,
		verifier:   cfg.Verifier,
		logger:     logger,
	}
}

// AccomplishTask executes one task for the session's agent and records the
// outcome on the step with the given ID. taskIndex is the 1-based position
// in the plan, used to label the transcript memory block.
func (e *Executor) AccomplishTask(ctx context.Context, sess *session.Session, stepID, task string, taskIndex int) error {
	agentID := sess.AgentID()
	start := time.Now()

	sess.UpdateStep(stepID, session.StepStarted, "binding tools", 0)

	binding, err := e.binder.BindForTask(ctx, agentID, task)
	if err != nil {
		return err
	}
	sess.SetStepProvider(stepID, binding.Provider, binding.ImageURL)

	// Summaries are fire-and-forget; the gather below only bounds the
	// goroutines' lifetime, their failures never surface.
	var summaries sync.WaitGroup
	onMessage := func(msg platform.Message) {
		if e.summarizer == nil || msg.Content == "" {
			return
		}
		summaries.Add(1)
		go func() {
			defer summaries.Done()
			line, err := e.summarizer.Summarize(ctx, msg.MessageType, msg.Content)
			if err != nil {
				e.logger.Debug("summary failed",
					slog.String(log.AgentIDKey, agentID),
					slog.Any("error", err))
				return
			}
			if line != "" {
				sess.AppendLog(line)
			}
		}()
	}

	messages, err := e.agent.StreamMessages(ctx, agentID, fmt.Sprintf(taskPrompt, task), onMessage)
	summaries.Wait()
	if err != nil {
		return fmt.Errorf("executor: run task: %w", err)
	}

	transcript := renderTranscript(messages)
	if err := e.persistTranscript(ctx, agentID, taskIndex, transcript); err != nil {
		return fmt.Errorf("executor: persist transcript: %w", err)
	}

	if e.verifier != nil {
		verdict, err := e.verifier.Verify(ctx, task, transcript)
		if err != nil {
			e.logger.Warn("transcript verification unavailable",
				slog.String(log.AgentIDKey, agentID),
				slog.Any("error", err))
		} else if !verdict.Succeeded {
			return fmt.Errorf("executor: task not accomplished: %s", verdict.Rationale)
		}
	}

	details := finalAnswer(messages)
	if details == "" {
		details = "task completed"
	}
	sess.UpdateStep(stepID, session.StepUpdated, details, time.Since(start))

	e.logger.Info("task accomplished",
		slog.String(log.AgentIDKey, agentID),
		slog.String(log.StepIDKey, stepID),
		slog.String(log.ProviderKey, binding.Provider),
		slog.Int64(log.DurationKey, time.Since(start).Milliseconds()))
	return nil
}

// persistTranscript mirrors the task transcript into a "task <n>" memory
// block, creating and attaching the block on first use. Failure here
// fails the task: a workflow whose audit trail cannot be written must
// not report success.
func (e *Executor) persistTranscript(ctx context.Context, agentID string, taskIndex int, transcript string) error {
	if transcript == "" {
		return nil
	}
	label := fmt.Sprintf("task %d", taskIndex)

	blocks, err := e.agent.ListBlocks(ctx, agentID)
	if err != nil {
		return fmt.Errorf("list blocks: %w", err)
	}
	for _, block := range blocks {
		if block.Label == label {
			return e.agent.UpdateBlockValue(ctx, agentID, label, transcript)
		}
	}

	block, err := e.agent.CreateBlock(ctx, platform.CreateBlockRequest{
		Label:       label,
		Description: "transcript of a completed workflow task",
		Value:       transcript,
		Limit:       transcriptBlockLimit,
	})
	if err != nil {
		return fmt.Errorf("create block %q: %w", label, err)
	}
	if err := e.agent.AttachBlock(ctx, agentID, block.ID); err != nil {
		return fmt.Errorf("attach block %q: %w", label, err)
	}
	return nil
}

// renderTranscript flattens the streamed messages into readable text.
func renderTranscript(messages []platform.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s\n", msg.MessageType, msg.Content)
	}
	return b.String()
}

// finalAnswer returns the last assistant message, the agent's own account
// of the outcome.
func finalAnswer(messages []platform.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].MessageType == platform.MessageTypeAssistant {
			return messages[i].Content
		}
	}
	return ""
}
