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
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when no session exists for an agent ID.
var ErrNotFound = errors.New("session not found")

// Store maps agent identifiers to workflow sessions. Implementations must
// support concurrent insertion of new sessions and concurrent read/update of
// distinct entries. Concurrent mutation of the same entry is not required:
// only the single background workflow goroutine for a session writes it.
type Store interface {
	// Put registers a new session, replacing any previous session for the
	// same agent ID.
	Put(ctx context.Context, s *Session) error

	// Get returns the live session for an agent ID.
	Get(ctx context.Context, agentID string) (*Session, error)

	// Update persists the session's current state. In-memory backends may
	// treat this as a no-op since Get hands out the live object.
	Update(ctx context.Context, s *Session) error

	// Snapshot returns an immutable copy of the session for an agent ID.
	Snapshot(ctx context.Context, agentID string) (*Snapshot, error)

	// List returns snapshots of all sessions, most recently updated first.
	List(ctx context.Context) ([]*Snapshot, error)

	// Close releases backend resources.
	Close() error
}

// Compile-time interface assertion.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is the default in-process session store. Sessions exist only
// for the lifetime of the serving process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

// Put registers a new session.
func (m *MemoryStore) Put(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.AgentID()] = s
	return nil
}

// Get returns the live session for an agent ID.
func (m *MemoryStore) Get(ctx context.Context, agentID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	return s, nil
}

// Update is a no-op: Get hands out the live session object.
func (m *MemoryStore) Update(ctx context.Context, s *Session) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[s.AgentID()]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, s.AgentID())
	}
	return nil
}

// Snapshot returns an immutable copy of the session for an agent ID.
func (m *MemoryStore) Snapshot(ctx context.Context, agentID string) (*Snapshot, error) {
	s, err := m.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return s.Snapshot(), nil
}

// List returns snapshots of all sessions, most recently updated first.
func (m *MemoryStore) List(ctx context.Context) ([]*Snapshot, error) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	snaps := make([]*Snapshot, len(sessions))
	for i, s := range sessions {
		snaps[i] = s.Snapshot()
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].UpdatedAt.After(snaps[j].UpdatedAt)
	})
	return snaps, nil
}

// Close releases no resources for the memory backend.
func (m *MemoryStore) Close() error {
	return nil
}
