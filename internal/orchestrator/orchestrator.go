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

// Package orchestrator drives a workflow session from acceptance to a
// terminal status: plan the tasks, execute them serially, and keep the
// session's step list and progress current for pollers. The driver is the
// session's only writer.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/web7-labs/maestro/internal/log"
	"github.com/web7-labs/maestro/internal/metrics"
	"github.com/web7-labs/maestro/internal/session"
)

// Planner produces the ordered task list for a request.
type Planner interface {
	GenerateTaskList(ctx context.Context, agentID, request string) ([]string, error)
}

// TaskRunner executes one planned task and records the outcome on its step.
type TaskRunner interface {
	AccomplishTask(ctx context.Context, sess *session.Session, stepID, task string, taskIndex int) error
}

// Orchestrator runs workflows in the background.
type Orchestrator struct {
	planner Planner
	runner  TaskRunner
	store   session.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Config configures an Orchestrator.
type Config struct {
	Planner Planner
	Runner  TaskRunner
	Store   session.Store
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		planner: cfg.Planner,
		runner:  cfg.Runner,
		store:   cfg.Store,
		metrics: cfg.Metrics,
		logger:  logger,
	}
}

// Run executes the session's workflow to a terminal status. It is meant to
// run on its own goroutine; every failure ends in a FAILED session, never
// in an escaped error or panic.
func (o *Orchestrator) Run(ctx context.Context, sess *session.Session) {
	agentID := sess.AgentID()
	start := time.Now()
	o.metrics.WorkflowStarted()

	defer func() {
		if r := recover(); r != nil {
			o.fail(ctx, sess, fmt.Errorf("workflow panic: %v", r))
		}
		o.metrics.WorkflowCompleted(string(sess.Status()), time.Since(start))
	}()

	sess.MarkInProgress()
	o.persist(ctx, sess)

	tasks, err := o.planner.GenerateTaskList(ctx, agentID, sess.Query())
	if err != nil {
		o.fail(ctx, sess, err)
		return
	}

	stepIDs := make([]string, len(tasks))
	for i, task := range tasks {
		stepIDs[i] = sess.AddStep(task, "", "", session.StepNotStarted, nil).StepID
	}
	o.persist(ctx, sess)

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			o.failStep(ctx, sess, stepIDs[i], err, 0)
			return
		}

		sess.SetCurrentStep(i)
		sess.SetProgress(i * 100 / len(tasks))
		o.persist(ctx, sess)

		o.logger.Info("executing step",
			slog.String(log.AgentIDKey, agentID),
			slog.String(log.StepIDKey, stepIDs[i]),
			slog.String("task", task))

		stepStart := time.Now()
		if err := o.runner.AccomplishTask(ctx, sess, stepIDs[i], task, i+1); err != nil {
			o.failStep(ctx, sess, stepIDs[i], err, time.Since(stepStart))
			return
		}
		o.metrics.StepCompleted(string(session.StepUpdated), time.Since(stepStart))
		o.persist(ctx, sess)
	}

	sess.SetProgress(100)
	sess.MarkSucceeded()
	o.persist(ctx, sess)

	o.logger.Info("workflow succeeded",
		slog.String(log.AgentIDKey, agentID),
		slog.Int("steps", len(tasks)),
		slog.Int64(log.DurationKey, time.Since(start).Milliseconds()))
}

// failStep marks the failing step and then the session.
func (o *Orchestrator) failStep(ctx context.Context, sess *session.Session, stepID string, err error, elapsed time.Duration) {
	sess.UpdateStep(stepID, session.StepFailed,
		map[string]any{"error": err.Error()}, elapsed)
	o.metrics.StepCompleted(string(session.StepFailed), elapsed)
	o.fail(ctx, sess, err)
}

// fail drives the session to FAILED. Pollers learn about the failure from
// the session, not from an HTTP error.
func (o *Orchestrator) fail(ctx context.Context, sess *session.Session, err error) {
	sess.MarkFailed(err.Error())
	o.persist(ctx, sess)
	o.logger.Error("workflow failed",
		slog.String(log.AgentIDKey, sess.AgentID()),
		slog.Any("error", err))
}

// persist pushes session state to the store; only persistent backends do
// real work here.
func (o *Orchestrator) persist(ctx context.Context, sess *session.Session) {
	if o.store == nil {
		return
	}
	if err := o.store.Update(ctx, sess); err != nil {
		o.logger.Warn("failed to persist session",
			slog.String(log.AgentIDKey, sess.AgentID()),
			slog.Any("error", err))
	}
}
