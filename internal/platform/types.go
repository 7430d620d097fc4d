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

// Package platform is the REST adapter for the external agent platform that
// hosts conversational agents, their tool catalogs, MCP server registrations,
// and memory blocks. The binder, planner, and executor depend on small
// capability interfaces satisfied by Client, keeping their algorithms
// independent of the remote protocol.
package platform

// Tool is a tool known to the platform's catalog or attached to an agent.
type Tool struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Block is a unit of agent memory. Value capacity is bounded by Limit;
// the platform rejects writes exceeding it.
type Block struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Value       string `json:"value"`
	Limit       int    `json:"limit,omitempty"`
}

// Message is one streamed message from an agent conversation.
type Message struct {
	ID          string `json:"id,omitempty"`
	MessageType string `json:"message_type"`
	Content     string `json:"content"`
}

// Message types emitted by the platform's streaming endpoint.
const (
	MessageTypeAssistant = "assistant_message"
	MessageTypeReasoning = "reasoning_message"
	MessageTypeToolCall  = "tool_call_message"
	MessageTypeToolRet   = "tool_return_message"
)

// Agent is a conversational agent instance hosted by the platform.
type Agent struct {
	ID string `json:"id"`
}

// MemoryBlockSeed is an initial memory block for a new agent.
type MemoryBlockSeed struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// CreateAgentRequest configures a new agent.
type CreateAgentRequest struct {
	Model        string            `json:"model"`
	Embedding    string            `json:"embedding"`
	MemoryBlocks []MemoryBlockSeed `json:"memory_blocks"`
}

// MCPServerConfig registers a remote MCP server endpoint with the platform.
type MCPServerConfig struct {
	ServerName string `json:"server_name"`
	ServerURL  string `json:"server_url"`
	// Transport is "streamable-http", "sse", or "stdio".
	Transport string `json:"type"`
}

// CreateBlockRequest creates a standalone memory block.
type CreateBlockRequest struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Value       string `json:"value"`
	Limit       int    `json:"limit,omitempty"`
}
