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

package mcpprobe

import (
	"context"
	"strings"
	"testing"

	"github.com/web7-labs/maestro/internal/directory"
)

func TestProbe_RejectsStdioTransport(t *testing.T) {
	provider := directory.Provider{
		Name:      "local-tool",
		Transport: directory.TransportStdio,
		URL:       "file:///usr/local/bin/tool",
	}

	_, err := Probe(context.Background(), provider, "test")
	if err == nil || !strings.Contains(err.Error(), "cannot be probed") {
		t.Fatalf("expected transport rejection, got %v", err)
	}
}

func TestProbe_UnreachableEndpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := directory.Provider{
		Name:      "ghost",
		Transport: directory.TransportStreamableHTTP,
		URL:       "http://127.0.0.1:1/mcp",
	}

	if _, err := Probe(ctx, provider, "test"); err == nil {
		t.Fatal("expected error for unreachable endpoint")
	}
}
