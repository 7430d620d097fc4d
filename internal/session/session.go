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

// Package session implements the workflow session state machine: one
// WorkflowSession per user query, an ordered list of steps, monotone status
// transitions, and clamped progress tracking. Sessions have a single
// background writer (the workflow driver); the HTTP polling path reads
// immutable snapshots.
package session

import (
	"fmt"
	"sync"
	"time"
)

// Status represents the lifecycle state of a workflow session.
type Status string

const (
	StatusStarted    Status = "started"
	StatusInProgress Status = "in_progress"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further automatic transitions leave this status.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// StepStatus represents the state of a single workflow step.
//
// UPDATED is the uniform "finished without error" value; there is no
// distinct succeeded state for steps.
type StepStatus string

const (
	StepNotStarted StepStatus = "not_started"
	StepStarted    StepStatus = "started"
	StepUpdated    StepStatus = "updated"
	StepFailed     StepStatus = "failed"
)

// Step records one planned task and its execution outcome.
type Step struct {
	// StepID is derived from 1-based position ("step_<n>"), assigned at
	// append time and never reused or reordered.
	StepID string `json:"step_id"`

	// Action is the task description text.
	Action string `json:"action"`

	// MCPServer and MCPServerImgURL describe the tool provider that served
	// this step. Empty if none matched.
	MCPServer       string `json:"mcp_server"`
	MCPServerImgURL string `json:"mcp_server_img_url"`

	Status StepStatus `json:"status"`

	// Details holds free-form result text, or a structured error payload
	// when the step failed.
	Details any `json:"details"`

	// Timestamp is refreshed on every status change.
	Timestamp time.Time `json:"timestamp"`

	// DurationSeconds is set only when measured by the caller.
	DurationSeconds *float64 `json:"duration,omitempty"`
}

// Session is one workflow session bound to an agent.
// All exported methods are safe for concurrent use. Only the single
// background workflow goroutine mutates a session; the HTTP polling path
// reads snapshots.
type Session struct {
	mu sync.RWMutex

	agentID            string
	query              string
	status             Status
	steps              []*Step
	currentStep        int
	progressPercentage int
	logs               []string
	errorMessage       string
	createdAt          time.Time
	updatedAt          time.Time
}

// Snapshot is an immutable deep copy of session state for external access.
// It aliases no internal mutable state.
type Snapshot struct {
	AgentID            string    `json:"agent_id"`
	Query              string    `json:"query"`
	Status             Status    `json:"status"`
	Steps              []Step    `json:"steps"`
	CurrentStep        int       `json:"current_step"`
	ProgressPercentage int       `json:"progress_percentage"`
	Logs               []string  `json:"logs"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// New creates a session in the STARTED state.
func New(agentID, query string) *Session {
	now := time.Now()
	return &Session{
		agentID:   agentID,
		query:     query,
		status:    StatusStarted,
		createdAt: now,
		updatedAt: now,
	}
}

// AgentID returns the agent identifier bound to this session.
func (s *Session) AgentID() string {
	return s.agentID
}

// Query returns the original user request text.
func (s *Session) Query() string {
	return s.query
}

// Status returns the current workflow status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// transition moves the session to the given status. Terminal states are
// never left; any non-terminal state may move to FAILED.
func (s *Session) transition(to Status) bool {
	if s.status.Terminal() {
		return false
	}
	s.status = to
	s.updatedAt = time.Now()
	return true
}

// MarkInProgress transitions the session to IN_PROGRESS.
func (s *Session) MarkInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(StatusInProgress)
}

// MarkSucceeded transitions the session to SUCCEEDED.
func (s *Session) MarkSucceeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(StatusSucceeded)
}

// MarkFailed transitions the session to FAILED and records the error
// message. No transition leaves FAILED once reached.
func (s *Session) MarkFailed(errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.transition(StatusFailed) {
		return false
	}
	s.errorMessage = errMsg
	return true
}

// AddStep appends a step, assigning "step_<n>" from its 1-based position.
func (s *Session) AddStep(action, mcpServer, mcpServerImgURL string, status StepStatus, details any) *Step {
	s.mu.Lock()
	defer s.mu.Unlock()

	step := &Step{
		StepID:          fmt.Sprintf("step_%d", len(s.steps)+1),
		Action:          action,
		MCPServer:       mcpServer,
		MCPServerImgURL: mcpServerImgURL,
		Status:          status,
		Details:         details,
		Timestamp:       time.Now(),
	}
	s.steps = append(s.steps, step)
	s.updatedAt = time.Now()
	return step
}

// UpdateStep sets the status and details of the step with the given ID and
// refreshes its timestamp. A zero duration leaves the recorded duration
// untouched. Unknown step IDs are ignored.
func (s *Session) UpdateStep(stepID string, status StepStatus, details any, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, step := range s.steps {
		if step.StepID == stepID {
			step.Status = status
			step.Details = details
			step.Timestamp = time.Now()
			if duration > 0 {
				secs := duration.Seconds()
				step.DurationSeconds = &secs
			}
			break
		}
	}
	s.updatedAt = time.Now()
}

// SetStepProvider records which tool provider is serving the step.
// Unknown step IDs are ignored.
func (s *Session) SetStepProvider(stepID, mcpServer, mcpServerImgURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, step := range s.steps {
		if step.StepID == stepID {
			step.MCPServer = mcpServer
			step.MCPServerImgURL = mcpServerImgURL
			step.Timestamp = time.Now()
			break
		}
	}
	s.updatedAt = time.Now()
}

// SetCurrentStep records the index of the step currently executing or last
// attempted. Out-of-range indices are clamped to the valid range (0 when
// there are no steps).
func (s *Session) SetCurrentStep(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 {
		i = 0
	}
	if n := len(s.steps); n > 0 && i >= n {
		i = n - 1
	}
	s.currentStep = i
	s.updatedAt = time.Now()
}

// SetProgress sets the progress percentage, clamped into [0,100].
func (s *Session) SetProgress(percentage int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}
	s.progressPercentage = percentage
	s.updatedAt = time.Now()
}

// AppendLog appends one short textual summary to the session logs.
// Append order from concurrent summarization jobs is not guaranteed to
// match message order.
func (s *Session) AppendLog(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = append(s.logs, line)
	s.updatedAt = time.Now()
}

// StepCount returns the number of appended steps.
func (s *Session) StepCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.steps)
}

// Snapshot returns an immutable deep copy of the session.
func (s *Session) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps := make([]Step, len(s.steps))
	for i, step := range s.steps {
		steps[i] = *step
		if step.DurationSeconds != nil {
			d := *step.DurationSeconds
			steps[i].DurationSeconds = &d
		}
	}

	logs := make([]string, len(s.logs))
	copy(logs, s.logs)

	return &Snapshot{
		AgentID:            s.agentID,
		Query:              s.query,
		Status:             s.status,
		Steps:              steps,
		CurrentStep:        s.currentStep,
		ProgressPercentage: s.progressPercentage,
		Logs:               logs,
		ErrorMessage:       s.errorMessage,
		CreatedAt:          s.createdAt,
		UpdatedAt:          s.updatedAt,
	}
}

// restore rebuilds a live session from a snapshot. Used by persistent
// store backends when loading sessions across restarts.
func restore(snap *Snapshot) *Session {
	s := &Session{
		agentID:            snap.AgentID,
		query:              snap.Query,
		status:             snap.Status,
		currentStep:        snap.CurrentStep,
		progressPercentage: snap.ProgressPercentage,
		errorMessage:       snap.ErrorMessage,
		createdAt:          snap.CreatedAt,
		updatedAt:          snap.UpdatedAt,
	}
	for i := range snap.Steps {
		step := snap.Steps[i]
		s.steps = append(s.steps, &step)
	}
	s.logs = append(s.logs, snap.Logs...)
	return s
}
