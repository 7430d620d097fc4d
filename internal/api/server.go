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

// Package api serves the daemon's HTTP surface: workflow submission,
// progress polling, directory search, and health. Workflow execution
// happens on background goroutines; polling endpoints read store
// snapshots and never block on a running workflow.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/time/rate"

	"github.com/web7-labs/maestro/internal/directory"
	"github.com/web7-labs/maestro/internal/httputil"
	"github.com/web7-labs/maestro/internal/log"
	"github.com/web7-labs/maestro/internal/metrics"
	"github.com/web7-labs/maestro/internal/platform"
	"github.com/web7-labs/maestro/internal/session"
)

// maxQueryLength bounds both user queries and search queries.
const maxQueryLength = 1000

// AgentCreator provisions conversational agents.
type AgentCreator interface {
	CreateAgent(ctx context.Context, req platform.CreateAgentRequest) (platform.Agent, error)
}

// WorkflowRunner drives a session to a terminal status.
type WorkflowRunner interface {
	Run(ctx context.Context, sess *session.Session)
}

// Config configures a Server.
type Config struct {
	Store     session.Store
	Agents    AgentCreator
	Runner    WorkflowRunner
	Directory directory.Client
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Version   string

	// AgentModel and EmbeddingModel seed new agents.
	AgentModel     string
	EmbeddingModel string

	// SearchRateLimit and SearchRateBurst throttle /search.
	// A zero limit disables throttling.
	SearchRateLimit float64
	SearchRateBurst int

	// Background is the context workflow goroutines run under; the daemon
	// cancels it at shutdown. Defaults to context.Background().
	Background context.Context
}

// Server implements the HTTP API.
type Server struct {
	store      session.Store
	agents     AgentCreator
	runner     WorkflowRunner
	directory  directory.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
	version    string
	agentModel string
	embedModel string
	limiter    *rate.Limiter
	background context.Context

	workflows sync.WaitGroup
}

// New creates a Server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	background := cfg.Background
	if background == nil {
		background = context.Background()
	}
	var limiter *rate.Limiter
	if cfg.SearchRateLimit > 0 {
		burst := cfg.SearchRateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.SearchRateLimit), burst)
	}
	return &Server{
		store:      cfg.Store,
		agents:     cfg.Agents,
		runner:     cfg.Runner,
		directory:  cfg.Directory,
		metrics:    cfg.Metrics,
		logger:     logger,
		version:    cfg.Version,
		agentModel: cfg.AgentModel,
		embedModel: cfg.EmbeddingModel,
		limiter:    limiter,
		background: background,
	}
}

// Routes returns the request mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /user-query", s.handleUserQuery)
	mux.HandleFunc("POST /user-query-id", s.handleUserQueryID)
	mux.HandleFunc("GET /workflow/{agent_id}", s.handleWorkflow)
	mux.HandleFunc("GET /workflow/{agent_id}/steps", s.handleWorkflowSteps)
	mux.HandleFunc("GET /workflow/{agent_id}/{step_id}", s.handleWorkflowStep)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// Drain blocks until all launched workflow goroutines have finished.
func (s *Server) Drain() {
	s.workflows.Wait()
}

type userQueryRequest struct {
	Query   string `json:"query"`
	AgentID string `json:"agent_id,omitempty"`
}

type userQueryResponse struct {
	AgentID string `json:"agent_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleUserQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	agent, err := s.agents.CreateAgent(r.Context(), platform.CreateAgentRequest{
		Model:     s.agentModel,
		Embedding: s.embedModel,
		MemoryBlocks: []platform.MemoryBlockSeed{
			{Label: "human", Value: ""},
			{Label: "persona", Value: "I am a workflow agent. I accomplish tasks with the tools attached to me."},
			{Label: "tasks", Value: "[]"},
		},
	})
	if err != nil {
		s.logger.Error("failed to create agent", slog.Any("error", err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create agent")
		return
	}

	s.startWorkflow(w, r, agent.ID, req.Query)
}

func (s *Server) handleUserQueryID(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	if req.AgentID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	s.startWorkflow(w, r, req.AgentID, req.Query)
}

// decodeQuery reads and validates the submission body.
func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (userQueryRequest, bool) {
	var req userQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.Query == "" {
		httputil.WriteError(w, http.StatusBadRequest, "query is required")
		return req, false
	}
	if len(req.Query) > maxQueryLength {
		httputil.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("query exceeds %d characters", maxQueryLength))
		return req, false
	}
	return req, true
}

// startWorkflow registers a session and launches its driver goroutine.
// The response only acknowledges acceptance; outcomes are polled.
func (s *Server) startWorkflow(w http.ResponseWriter, r *http.Request, agentID, query string) {
	sess := session.New(agentID, query)
	if err := s.store.Put(r.Context(), sess); err != nil {
		s.logger.Error("failed to store session",
			slog.String(log.AgentIDKey, agentID), slog.Any("error", err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	s.workflows.Add(1)
	go func() {
		defer s.workflows.Done()
		s.runner.Run(s.background, sess)
	}()

	s.logger.Info("workflow accepted", slog.String(log.AgentIDKey, agentID))
	httputil.WriteJSON(w, http.StatusOK, userQueryResponse{
		AgentID: agentID,
		Status:  string(session.StatusStarted),
		Message: fmt.Sprintf("workflow started, poll /workflow/%s for progress", agentID),
	})
}

func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")
	snap, err := s.store.Snapshot(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "unknown agent_id")
			return
		}
		s.logger.Error("failed to read session",
			slog.String(log.AgentIDKey, agentID), slog.Any("error", err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to read session")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snap)
}

// stepSummary is the abbreviated step listing used by pollers that only
// render the plan outline.
type stepSummary struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

func (s *Server) handleWorkflowSteps(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")
	snap, err := s.store.Snapshot(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "unknown agent_id")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "failed to read session")
		return
	}

	// status 1 means the plan is not ready yet; pollers retry.
	if len(snap.Steps) == 0 {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status": 1,
			"steps":  []stepSummary{},
		})
		return
	}

	steps := make([]stepSummary, len(snap.Steps))
	for i, step := range snap.Steps {
		steps[i] = stepSummary{Name: step.Action, ID: step.StepID}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status": 0,
		"steps":  steps,
	})
}

func (s *Server) handleWorkflowStep(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")
	stepID := r.PathValue("step_id")

	snap, err := s.store.Snapshot(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "unknown agent_id")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "failed to read session")
		return
	}

	for i := range snap.Steps {
		if snap.Steps[i].StepID == stepID {
			httputil.WriteJSON(w, http.StatusOK, snap.Steps[i])
			return
		}
	}
	// Absent steps are reported in-band; the plan may still be forming.
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"status": 1})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.metrics.SearchServed("rejected")
		httputil.WriteError(w, http.StatusTooManyRequests, "search rate limit exceeded")
		return
	}

	query := r.URL.Query().Get("query")
	if query == "" {
		s.metrics.SearchServed("rejected")
		httputil.WriteError(w, http.StatusBadRequest, "query is required")
		return
	}
	if len(query) > maxQueryLength {
		s.metrics.SearchServed("rejected")
		httputil.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("query exceeds %d characters", maxQueryLength))
		return
	}

	k := 1
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.metrics.SearchServed("rejected")
			httputil.WriteError(w, http.StatusBadRequest, "k must be an integer")
			return
		}
		k = parsed
	}
	if k < 1 {
		k = 1
	}
	if k > 100 {
		k = 100
	}

	result, err := s.directory.Search(r.Context(), query, k)
	if err != nil {
		s.metrics.SearchServed("error")
		s.logger.Error("directory search failed", slog.Any("error", err))
		httputil.WriteError(w, http.StatusInternalServerError, "search failed")
		return
	}
	s.metrics.SearchServed("ok")
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"service":  "maestro",
		"version":  s.version,
		"database": s.directory.Health(r.Context()),
	})
}
