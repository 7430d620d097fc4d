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

package platform

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// streamDoneSentinel terminates a message stream.
const streamDoneSentinel = "[DONE]"

// StreamMessages sends one user message to an agent and accumulates the
// full streamed response in arrival order. The request deliberately has no
// client-side timeout beyond ctx: agent turns with tool use can be slow.
// If onMessage is non-nil it is invoked for each message as it arrives.
func (c *Client) StreamMessages(ctx context.Context, agentID, content string, onMessage func(Message)) ([]Message, error) {
	body := map[string]any{
		"messages": []map[string]string{
			{"role": "user", "content": content},
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("platform: encode stream request: %w", err)
	}

	path := fmt.Sprintf("/v1/agents/%s/messages/stream", url.PathEscape(agentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("platform: build stream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	// Use the transport directly so the client-level timeout does not cut
	// long-lived streams short.
	transport := c.http.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	resp, err := transport.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("platform: stream messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var messages []Message
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return messages, err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == streamDoneSentinel {
			break
		}

		var msg Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			c.logger.Debug("skipping undecodable stream event",
				slog.String("payload", payload), slog.Any("error", err))
			continue
		}
		messages = append(messages, msg)
		if onMessage != nil {
			onMessage(msg)
		}
	}
	if err := scanner.Err(); err != nil {
		return messages, fmt.Errorf("platform: read message stream: %w", err)
	}

	return messages, nil
}
