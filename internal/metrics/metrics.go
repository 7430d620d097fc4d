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

// Package metrics exposes Prometheus instrumentation for the daemon.
// A nil *Metrics is valid and records nothing, so callers never branch
// on whether metrics are enabled.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	workflowsStarted   prometheus.Counter
	workflowsCompleted *prometheus.CounterVec
	workflowDuration   prometheus.Histogram
	stepsCompleted     *prometheus.CounterVec
	stepDuration       prometheus.Histogram
	searchRequests     *prometheus.CounterVec
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		workflowsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "maestro",
			Name:      "workflows_started_total",
			Help:      "Workflows accepted for background execution.",
		}),
		workflowsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro",
			Name:      "workflows_completed_total",
			Help:      "Workflows reaching a terminal status.",
		}, []string{"status"}),
		workflowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "maestro",
			Name:      "workflow_duration_seconds",
			Help:      "Wall time from workflow start to terminal status.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		stepsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro",
			Name:      "steps_completed_total",
			Help:      "Workflow steps reaching a final step status.",
		}, []string{"status"}),
		stepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "maestro",
			Name:      "step_duration_seconds",
			Help:      "Wall time per executed workflow step.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		searchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro",
			Name:      "search_requests_total",
			Help:      "Directory search requests served over HTTP.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		m.workflowsStarted,
		m.workflowsCompleted,
		m.workflowDuration,
		m.stepsCompleted,
		m.stepDuration,
		m.searchRequests,
	)
	return m
}

// Handler serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WorkflowStarted records one accepted workflow.
func (m *Metrics) WorkflowStarted() {
	if m == nil {
		return
	}
	m.workflowsStarted.Inc()
}

// WorkflowCompleted records a terminal workflow with its total duration.
func (m *Metrics) WorkflowCompleted(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.workflowsCompleted.WithLabelValues(status).Inc()
	m.workflowDuration.Observe(elapsed.Seconds())
}

// StepCompleted records a finished step with its duration.
func (m *Metrics) StepCompleted(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stepsCompleted.WithLabelValues(status).Inc()
	m.stepDuration.Observe(elapsed.Seconds())
}

// SearchServed records one HTTP directory search by outcome ("ok",
// "error", or "rejected").
func (m *Metrics) SearchServed(outcome string) {
	if m == nil {
		return
	}
	m.searchRequests.WithLabelValues(outcome).Inc()
}
