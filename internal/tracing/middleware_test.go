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

package tracing

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMiddleware_AssignsCorrelationID(t *testing.T) {
	var seen string
	handler := Middleware(discardLogger(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if seen == "" {
		t.Fatal("no correlation ID in request context")
	}
	if got := rec.Header().Get(CorrelationHeader); got != seen {
		t.Errorf("response header = %q, context = %q", got, seen)
	}
}

func TestMiddleware_HonorsInboundCorrelationID(t *testing.T) {
	var seen string
	handler := Middleware(discardLogger(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(CorrelationHeader, "corr-upstream-7")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "corr-upstream-7" {
		t.Errorf("correlation ID = %q, want corr-upstream-7", seen)
	}
}

func TestCorrelationID_AbsentIsEmpty(t *testing.T) {
	if id := CorrelationID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); id != "" {
		t.Errorf("correlation ID = %q, want empty", id)
	}
}
