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

package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/web7-labs/maestro/internal/session"
)

type fakePlanner struct {
	tasks []string
	err   error
}

func (f *fakePlanner) GenerateTaskList(ctx context.Context, agentID, request string) ([]string, error) {
	return f.tasks, f.err
}

// fakeRunner marks each step done and can fail at a chosen index.
type fakeRunner struct {
	failAt   int // 1-based task index to fail at; 0 never fails
	executed []string
}

func (f *fakeRunner) AccomplishTask(ctx context.Context, sess *session.Session, stepID, task string, taskIndex int) error {
	f.executed = append(f.executed, task)
	if f.failAt == taskIndex {
		return errors.New("provider unreachable")
	}
	sess.UpdateStep(stepID, session.StepUpdated, "done", 0)
	return nil
}

func newOrchestrator(planner Planner, runner TaskRunner, store session.Store) *Orchestrator {
	return New(Config{Planner: planner, Runner: runner, Store: store})
}

func TestRun_Succeeds(t *testing.T) {
	store := session.NewMemoryStore()
	sess := session.New("agent-1", "plan my trip")
	if err := store.Put(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{}
	o := newOrchestrator(&fakePlanner{tasks: []string{"find flights", "book hotel", "send itinerary"}}, runner, store)
	o.Run(context.Background(), sess)

	snap := sess.Snapshot()
	if snap.Status != session.StatusSucceeded {
		t.Fatalf("status = %q, want succeeded", snap.Status)
	}
	if snap.ProgressPercentage != 100 {
		t.Errorf("progress = %d, want 100", snap.ProgressPercentage)
	}
	if len(snap.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(snap.Steps))
	}
	for i, step := range snap.Steps {
		if step.Status != session.StepUpdated {
			t.Errorf("steps[%d].Status = %q, want updated", i, step.Status)
		}
	}
	if len(runner.executed) != 3 {
		t.Errorf("executed = %v", runner.executed)
	}
}

func TestRun_PlannerFailure(t *testing.T) {
	sess := session.New("agent-1", "do the thing")
	o := newOrchestrator(&fakePlanner{err: errors.New("cannot parse task list")}, &fakeRunner{}, nil)
	o.Run(context.Background(), sess)

	snap := sess.Snapshot()
	if snap.Status != session.StatusFailed {
		t.Fatalf("status = %q, want failed", snap.Status)
	}
	if snap.ErrorMessage == "" {
		t.Error("error message not recorded")
	}
	if len(snap.Steps) != 0 {
		t.Errorf("steps = %+v, want none", snap.Steps)
	}
}

func TestRun_StepFailureStopsWorkflow(t *testing.T) {
	sess := session.New("agent-1", "do the thing")
	runner := &fakeRunner{failAt: 2}
	o := newOrchestrator(&fakePlanner{tasks: []string{"a", "b", "c"}}, runner, nil)
	o.Run(context.Background(), sess)

	snap := sess.Snapshot()
	if snap.Status != session.StatusFailed {
		t.Fatalf("status = %q, want failed", snap.Status)
	}
	if len(runner.executed) != 2 {
		t.Errorf("executed = %v, later tasks must not run", runner.executed)
	}

	if snap.Steps[0].Status != session.StepUpdated {
		t.Errorf("steps[0].Status = %q", snap.Steps[0].Status)
	}
	if snap.Steps[1].Status != session.StepFailed {
		t.Errorf("steps[1].Status = %q, want failed", snap.Steps[1].Status)
	}
	details, ok := snap.Steps[1].Details.(map[string]any)
	if !ok || details["error"] == "" {
		t.Errorf("steps[1].Details = %v, want error payload", snap.Steps[1].Details)
	}
	if snap.Steps[2].Status != session.StepNotStarted {
		t.Errorf("steps[2].Status = %q, want not_started", snap.Steps[2].Status)
	}
	if snap.CurrentStep != 1 {
		t.Errorf("current step = %d, want 1", snap.CurrentStep)
	}
}

func TestRun_ProgressAdvancesPerStep(t *testing.T) {
	sess := session.New("agent-1", "do the thing")

	var observed []int
	runner := &observingRunner{sess: sess, observed: &observed}
	o := newOrchestrator(&fakePlanner{tasks: []string{"a", "b", "c", "d"}}, runner, nil)
	o.Run(context.Background(), sess)

	want := []int{0, 25, 50, 75}
	if len(observed) != len(want) {
		t.Fatalf("observed = %v", observed)
	}
	for i := range want {
		if observed[i] != want[i] {
			t.Errorf("progress before task %d = %d, want %d", i+1, observed[i], want[i])
		}
	}
}

// observingRunner samples session progress at the start of each task.
type observingRunner struct {
	sess     *session.Session
	observed *[]int
}

func (r *observingRunner) AccomplishTask(ctx context.Context, sess *session.Session, stepID, task string, taskIndex int) error {
	*r.observed = append(*r.observed, sess.Snapshot().ProgressPercentage)
	sess.UpdateStep(stepID, session.StepUpdated, "done", 0)
	return nil
}

func TestRun_PanicBecomesFailedSession(t *testing.T) {
	sess := session.New("agent-1", "do the thing")
	o := newOrchestrator(&fakePlanner{tasks: []string{"a"}}, &panickingRunner{}, nil)
	o.Run(context.Background(), sess)

	snap := sess.Snapshot()
	if snap.Status != session.StatusFailed {
		t.Fatalf("status = %q, want failed", snap.Status)
	}
}

type panickingRunner struct{}

func (r *panickingRunner) AccomplishTask(ctx context.Context, sess *session.Session, stepID, task string, taskIndex int) error {
	panic("runner bug")
}

func TestRun_CancelledContext(t *testing.T) {
	sess := session.New("agent-1", "do the thing")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newOrchestrator(&fakePlanner{tasks: []string{"a", "b"}}, &fakeRunner{}, nil)
	o.Run(ctx, sess)

	if status := sess.Status(); status != session.StatusFailed {
		t.Fatalf("status = %q, want failed", status)
	}
}
