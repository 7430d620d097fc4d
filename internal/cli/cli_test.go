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

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// runCommand executes the CLI against a fake daemon and captures stdout.
func runCommand(t *testing.T, serverURL string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(VersionInfo{Version: "test", Commit: "abc", BuildDate: "today"})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	if serverURL != "" {
		args = append(args, "--server", serverURL)
	}
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "", "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "maestro test") {
		t.Errorf("output = %q", out)
	}
}

func TestSubmitCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/user-query" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body["query"] != "send the report" {
			t.Errorf("query = %q", body["query"])
		}
		fmt.Fprint(w, `{"agent_id": "agent-9", "status": "started", "message": "ok"}`)
	}))
	defer srv.Close()

	out, err := runCommand(t, srv.URL, "submit", "send the report")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !strings.Contains(out, "agent-9") {
		t.Errorf("output = %q", out)
	}
}

func TestSubmitCommand_AgentReuse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user-query-id" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"agent_id": "agent-7", "status": "started", "message": "ok"}`)
	}))
	defer srv.Close()

	if _, err := runCommand(t, srv.URL, "submit", "continue", "--agent", "agent-7"); err != nil {
		t.Fatalf("submit --agent failed: %v", err)
	}
}

func TestStatusCommand_JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/workflow/agent-1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"agent_id": "agent-1", "query": "q", "status": "succeeded", "steps": [], "current_step": 0, "progress_percentage": 100, "logs": [], "created_at": "2026-01-01T00:00:00Z", "updated_at": "2026-01-01T00:01:00Z"}`)
	}))
	defer srv.Close()

	out, err := runCommand(t, srv.URL, "status", "agent-1", "--json")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, `"progress_percentage": 100`) {
		t.Errorf("output = %q", out)
	}
}

func TestStatusCommand_DaemonError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": "unknown agent_id"}`)
	}))
	defer srv.Close()

	_, err := runCommand(t, srv.URL, "status", "agent-missing")
	if err == nil || !strings.Contains(err.Error(), "unknown agent_id") {
		t.Fatalf("expected daemon error, got %v", err)
	}
}

func TestSearchCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("k"); got != "2" {
			t.Errorf("k = %q", got)
		}
		fmt.Fprint(w, `{"success": true, "query": "email", "servers": [{"name": "gmail", "url": "https://mcp.example/gmail", "transport": "streamable-http"}]}`)
	}))
	defer srv.Close()

	out, err := runCommand(t, srv.URL, "search", "email", "-k", "2")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(out, "gmail") {
		t.Errorf("output = %q", out)
	}
}
