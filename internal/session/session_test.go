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

package session

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestAddStep_IDsFollowPosition(t *testing.T) {
	s := New("agent-1", "do things")

	for i := 0; i < 5; i++ {
		s.AddStep(fmt.Sprintf("task %d", i), "", "", StepNotStarted, nil)
	}

	snap := s.Snapshot()
	if len(snap.Steps) != 5 {
		t.Fatalf("expected 5 steps, got %d", len(snap.Steps))
	}
	for i, step := range snap.Steps {
		want := fmt.Sprintf("step_%d", i+1)
		if step.StepID != want {
			t.Errorf("steps[%d].StepID = %q, want %q", i, step.StepID, want)
		}
	}
}

func TestSetProgress_Clamps(t *testing.T) {
	tests := []struct {
		input int
		want  int
	}{
		{150, 100},
		{-5, 0},
		{0, 0},
		{100, 100},
		{42, 42},
	}

	for _, tt := range tests {
		s := New("agent-1", "q")
		s.SetProgress(tt.input)
		if got := s.Snapshot().ProgressPercentage; got != tt.want {
			t.Errorf("SetProgress(%d) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestStatus_TerminalStatesAreSticky(t *testing.T) {
	t.Run("failed stays failed", func(t *testing.T) {
		s := New("agent-1", "q")
		if !s.MarkFailed("boom") {
			t.Fatal("expected MarkFailed to transition")
		}
		if s.MarkInProgress() {
			t.Error("expected MarkInProgress to be rejected after FAILED")
		}
		if s.MarkSucceeded() {
			t.Error("expected MarkSucceeded to be rejected after FAILED")
		}
		if got := s.Status(); got != StatusFailed {
			t.Errorf("status = %q, want %q", got, StatusFailed)
		}
	})

	t.Run("succeeded stays succeeded", func(t *testing.T) {
		s := New("agent-1", "q")
		s.MarkInProgress()
		s.MarkSucceeded()
		if s.MarkFailed("late error") {
			t.Error("expected MarkFailed to be rejected after SUCCEEDED")
		}
		if got := s.Status(); got != StatusSucceeded {
			t.Errorf("status = %q, want %q", got, StatusSucceeded)
		}
		if msg := s.Snapshot().ErrorMessage; msg != "" {
			t.Errorf("error message should stay empty, got %q", msg)
		}
	})

	t.Run("any state may fail", func(t *testing.T) {
		s := New("agent-1", "q")
		if !s.MarkFailed("early") {
			t.Error("expected STARTED -> FAILED to be allowed")
		}

		s = New("agent-2", "q")
		s.MarkInProgress()
		if !s.MarkFailed("mid") {
			t.Error("expected IN_PROGRESS -> FAILED to be allowed")
		}
	})
}

func TestMarkFailed_RecordsErrorMessage(t *testing.T) {
	s := New("agent-1", "q")
	s.MarkFailed("decomposition exploded")

	snap := s.Snapshot()
	if snap.ErrorMessage != "decomposition exploded" {
		t.Errorf("error message = %q, want %q", snap.ErrorMessage, "decomposition exploded")
	}
	if snap.Status != StatusFailed {
		t.Errorf("status = %q, want %q", snap.Status, StatusFailed)
	}
}

func TestUpdateStep(t *testing.T) {
	s := New("agent-1", "q")
	s.AddStep("send email", "", "", StepNotStarted, nil)
	s.AddStep("make page", "", "", StepNotStarted, nil)

	s.UpdateStep("step_2", StepFailed, map[string]string{"error": "no tools"}, 1500*time.Millisecond)

	snap := s.Snapshot()
	if snap.Steps[0].Status != StepNotStarted {
		t.Errorf("step_1 status = %q, want %q", snap.Steps[0].Status, StepNotStarted)
	}
	if snap.Steps[1].Status != StepFailed {
		t.Errorf("step_2 status = %q, want %q", snap.Steps[1].Status, StepFailed)
	}
	if snap.Steps[1].DurationSeconds == nil || *snap.Steps[1].DurationSeconds != 1.5 {
		t.Errorf("step_2 duration = %v, want 1.5", snap.Steps[1].DurationSeconds)
	}

	// Unknown IDs are ignored.
	s.UpdateStep("step_99", StepUpdated, nil, 0)
}

func TestSetCurrentStep_Clamps(t *testing.T) {
	s := New("agent-1", "q")

	s.SetCurrentStep(5)
	if got := s.Snapshot().CurrentStep; got != 0 {
		t.Errorf("current step with no steps = %d, want 0", got)
	}

	s.AddStep("a", "", "", StepNotStarted, nil)
	s.AddStep("b", "", "", StepNotStarted, nil)

	s.SetCurrentStep(7)
	if got := s.Snapshot().CurrentStep; got != 1 {
		t.Errorf("current step = %d, want 1", got)
	}

	s.SetCurrentStep(-3)
	if got := s.Snapshot().CurrentStep; got != 0 {
		t.Errorf("current step = %d, want 0", got)
	}
}

func TestSnapshot_DoesNotAliasSessionState(t *testing.T) {
	s := New("agent-1", "q")
	s.AddStep("a", "", "", StepNotStarted, nil)
	s.AppendLog("one")

	snap := s.Snapshot()
	snap.Steps[0].Status = StepFailed
	snap.Logs[0] = "mutated"

	fresh := s.Snapshot()
	if fresh.Steps[0].Status != StepNotStarted {
		t.Error("mutating a snapshot step leaked into the session")
	}
	if fresh.Logs[0] != "one" {
		t.Error("mutating a snapshot log leaked into the session")
	}
}

func TestSnapshot_ConcurrentWithWriter(t *testing.T) {
	s := New("agent-1", "q")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.AddStep("t", "", "", StepNotStarted, nil)
			s.AppendLog("l")
			s.SetProgress(i % 110)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			snap := s.Snapshot()
			if p := snap.ProgressPercentage; p < 0 || p > 100 {
				t.Errorf("progress out of range: %d", p)
				return
			}
		}
	}()
	wg.Wait()
}

func TestRestore_RoundTrip(t *testing.T) {
	s := New("agent-1", "build a page")
	s.MarkInProgress()
	s.AddStep("make page", "notion", "https://img", StepUpdated, "done")
	s.AppendLog("created page")
	s.SetProgress(50)

	restored := restore(s.Snapshot())
	got := restored.Snapshot()
	want := s.Snapshot()

	if got.AgentID != want.AgentID || got.Query != want.Query || got.Status != want.Status {
		t.Errorf("restored header mismatch: got %+v want %+v", got, want)
	}
	if len(got.Steps) != 1 || got.Steps[0].StepID != "step_1" {
		t.Errorf("restored steps mismatch: %+v", got.Steps)
	}
	if len(got.Logs) != 1 || got.Logs[0] != "created page" {
		t.Errorf("restored logs mismatch: %+v", got.Logs)
	}
}
