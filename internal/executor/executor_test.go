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

package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/web7-labs/maestro/internal/binder"
	"github.com/web7-labs/maestro/internal/platform"
	"github.com/web7-labs/maestro/internal/session"
	"github.com/web7-labs/maestro/internal/summary"
)

type fakeAgent struct {
	mu        sync.Mutex
	reply     []platform.Message
	streamErr error
	blocks    []platform.Block
	listErr   error
	updates   map[string]string
	created   []platform.CreateBlockRequest
	attached  []string
}

func (f *fakeAgent) StreamMessages(ctx context.Context, agentID, content string, onMessage func(platform.Message)) ([]platform.Message, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	if onMessage != nil {
		for _, msg := range f.reply {
			onMessage(msg)
		}
	}
	return f.reply, nil
}

func (f *fakeAgent) ListBlocks(ctx context.Context, agentID string) ([]platform.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]platform.Block(nil), f.blocks...), nil
}

func (f *fakeAgent) CreateBlock(ctx context.Context, req platform.CreateBlockRequest) (platform.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	return platform.Block{ID: "block-" + req.Label, Label: req.Label}, nil
}

func (f *fakeAgent) AttachBlock(ctx context.Context, agentID, blockID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached = append(f.attached, blockID)
	return nil
}

func (f *fakeAgent) UpdateBlockValue(ctx context.Context, agentID, label, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[string]string{}
	}
	f.updates[label] = value
	return nil
}

type fakeBinder struct {
	binding binder.Binding
	err     error
}

func (f *fakeBinder) BindForTask(ctx context.Context, agentID, task string) (binder.Binding, error) {
	return f.binding, f.err
}

type fakeSummarizer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, messageType, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "Doing " + messageType, nil
}

type fakeVerifier struct {
	verdict summary.Verdict
	err     error
}

func (f *fakeVerifier) Verify(ctx context.Context, task, transcript string) (summary.Verdict, error) {
	return f.verdict, f.err
}

func newSessionWithStep(t *testing.T, task string) (*session.Session, string) {
	t.Helper()
	sess := session.New("agent-1", "do the thing")
	step := sess.AddStep(task, "", "", session.StepNotStarted, nil)
	return sess, step.StepID
}

func TestAccomplishTask(t *testing.T) {
	agent := &fakeAgent{reply: []platform.Message{
		{MessageType: platform.MessageTypeToolCall, Content: `{"tool": "gmail_send"}`},
		{MessageType: platform.MessageTypeAssistant, Content: "Sent the invoice to bob@example.com"},
	}}
	bnd := &fakeBinder{binding: binder.Binding{Provider: "gmail", ImageURL: "https://img.example/gmail.png"}}
	summarizer := &fakeSummarizer{}

	e := New(Config{Agent: agent, Binder: bnd, Summarizer: summarizer})
	sess, stepID := newSessionWithStep(t, "email the invoice to bob")

	if err := e.AccomplishTask(context.Background(), sess, stepID, "email the invoice to bob", 1); err != nil {
		t.Fatalf("AccomplishTask failed: %v", err)
	}

	snap := sess.Snapshot()
	step := snap.Steps[0]
	if step.Status != session.StepUpdated {
		t.Errorf("step status = %q, want updated", step.Status)
	}
	if step.MCPServer != "gmail" || step.MCPServerImgURL != "https://img.example/gmail.png" {
		t.Errorf("provider not recorded on step: %+v", step)
	}
	if step.Details != "Sent the invoice to bob@example.com" {
		t.Errorf("details = %v", step.Details)
	}
	if step.DurationSeconds == nil {
		t.Error("duration not recorded")
	}

	if summarizer.calls != 2 {
		t.Errorf("summarizer called %d times, want 2", summarizer.calls)
	}
	if len(snap.Logs) != 2 {
		t.Errorf("logs = %v, want 2 lines", snap.Logs)
	}

	// First task transcript lands in a fresh attached block.
	if len(agent.created) != 1 || agent.created[0].Label != "task 1" {
		t.Errorf("created blocks = %+v", agent.created)
	}
	if !strings.Contains(agent.created[0].Value, "Sent the invoice") {
		t.Errorf("transcript missing from block: %q", agent.created[0].Value)
	}
	if len(agent.attached) != 1 {
		t.Errorf("attached blocks = %v", agent.attached)
	}
}

func TestAccomplishTask_ExistingTranscriptBlock(t *testing.T) {
	agent := &fakeAgent{
		reply:  []platform.Message{{MessageType: platform.MessageTypeAssistant, Content: "done"}},
		blocks: []platform.Block{{ID: "b1", Label: "task 2"}},
	}
	e := New(Config{Agent: agent, Binder: &fakeBinder{binding: binder.Binding{Provider: "gmail"}}})
	sess, stepID := newSessionWithStep(t, "task")

	if err := e.AccomplishTask(context.Background(), sess, stepID, "task", 2); err != nil {
		t.Fatalf("AccomplishTask failed: %v", err)
	}
	if len(agent.created) != 0 {
		t.Errorf("expected update in place, created %+v", agent.created)
	}
	if _, ok := agent.updates["task 2"]; !ok {
		t.Errorf("block not updated: %v", agent.updates)
	}
}

func TestAccomplishTask_BinderFailure(t *testing.T) {
	e := New(Config{
		Agent:  &fakeAgent{},
		Binder: &fakeBinder{err: errors.New("no provider found")},
	})
	sess, stepID := newSessionWithStep(t, "task")

	if err := e.AccomplishTask(context.Background(), sess, stepID, "task", 1); err == nil {
		t.Fatal("expected binder error to propagate")
	}
}

func TestAccomplishTask_StreamFailure(t *testing.T) {
	e := New(Config{
		Agent:  &fakeAgent{streamErr: errors.New("stream cut")},
		Binder: &fakeBinder{binding: binder.Binding{Provider: "gmail"}},
	})
	sess, stepID := newSessionWithStep(t, "task")

	if err := e.AccomplishTask(context.Background(), sess, stepID, "task", 1); err == nil {
		t.Fatal("expected stream error to propagate")
	}
}

func TestAccomplishTask_TranscriptPersistFailurePropagates(t *testing.T) {
	agent := &fakeAgent{
		reply:   []platform.Message{{MessageType: platform.MessageTypeAssistant, Content: "done"}},
		listErr: errors.New("memory store unavailable"),
	}
	e := New(Config{Agent: agent, Binder: &fakeBinder{binding: binder.Binding{Provider: "gmail"}}})
	sess, stepID := newSessionWithStep(t, "task")

	err := e.AccomplishTask(context.Background(), sess, stepID, "task", 1)
	if err == nil || !strings.Contains(err.Error(), "memory store unavailable") {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if status := sess.Snapshot().Steps[0].Status; status == session.StepUpdated {
		t.Error("step marked updated despite persistence failure")
	}
}

func TestAccomplishTask_SummarizerFailuresAreSilent(t *testing.T) {
	agent := &fakeAgent{reply: []platform.Message{
		{MessageType: platform.MessageTypeAssistant, Content: "done"},
	}}
	summarizer := &fakeSummarizer{err: errors.New("groq unavailable")}

	e := New(Config{Agent: agent, Binder: &fakeBinder{binding: binder.Binding{Provider: "gmail"}}, Summarizer: summarizer})
	sess, stepID := newSessionWithStep(t, "task")

	if err := e.AccomplishTask(context.Background(), sess, stepID, "task", 1); err != nil {
		t.Fatalf("summarizer failure should not fail the task: %v", err)
	}
	if logs := sess.Snapshot().Logs; len(logs) != 0 {
		t.Errorf("logs = %v, want none", logs)
	}
}

func TestAccomplishTask_VerifierRejects(t *testing.T) {
	agent := &fakeAgent{reply: []platform.Message{
		{MessageType: platform.MessageTypeAssistant, Content: "I could not find the invoice"},
	}}
	verifier := &fakeVerifier{verdict: summary.Verdict{Succeeded: false, Rationale: "no send confirmation"}}

	e := New(Config{Agent: agent, Binder: &fakeBinder{binding: binder.Binding{Provider: "gmail"}}, Verifier: verifier})
	sess, stepID := newSessionWithStep(t, "task")

	err := e.AccomplishTask(context.Background(), sess, stepID, "task", 1)
	if err == nil || !strings.Contains(err.Error(), "no send confirmation") {
		t.Fatalf("expected verification failure, got %v", err)
	}
}

func TestAccomplishTask_VerifierUnavailableIsNotFatal(t *testing.T) {
	agent := &fakeAgent{reply: []platform.Message{
		{MessageType: platform.MessageTypeAssistant, Content: "done"},
	}}
	verifier := &fakeVerifier{err: errors.New("model down")}

	e := New(Config{Agent: agent, Binder: &fakeBinder{binding: binder.Binding{Provider: "gmail"}}, Verifier: verifier})
	sess, stepID := newSessionWithStep(t, "task")

	if err := e.AccomplishTask(context.Background(), sess, stepID, "task", 1); err != nil {
		t.Fatalf("verifier outage should not fail the task: %v", err)
	}
}
