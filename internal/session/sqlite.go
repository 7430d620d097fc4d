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
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// Compile-time interface assertion.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists session snapshots to a sqlite database so that a
// restarted daemon can still answer polls for past sessions. Live sessions
// are kept in memory; the database row is refreshed on every Update call.
// Sessions loaded from disk after a restart are read-only history: a
// workflow interrupted by a restart is not resumed.
type SQLiteStore struct {
	mu       sync.RWMutex
	db       *sql.DB
	sessions map[string]*Session
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	agent_id   TEXT PRIMARY KEY,
	snapshot   TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// NewSQLiteStore opens (creating if necessary) the sqlite database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session: open sqlite store: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: init sqlite schema: %w", err)
	}
	return &SQLiteStore{
		db:       db,
		sessions: make(map[string]*Session),
	}, nil
}

// Put registers a new session and writes its initial snapshot.
func (s *SQLiteStore) Put(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	s.sessions[sess.AgentID()] = sess
	s.mu.Unlock()

	return s.persist(ctx, sess)
}

// Get returns the live session, falling back to a session restored from
// disk when the process has restarted since it was written.
func (s *SQLiteStore) Get(ctx context.Context, agentID string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[agentID]
	s.mu.RUnlock()
	if ok {
		return sess, nil
	}

	snap, err := s.load(ctx, agentID)
	if err != nil {
		return nil, err
	}

	sess = restore(snap)
	s.mu.Lock()
	// Another goroutine may have restored it concurrently; keep the first.
	if existing, ok := s.sessions[agentID]; ok {
		sess = existing
	} else {
		s.sessions[agentID] = sess
	}
	s.mu.Unlock()
	return sess, nil
}

// Update refreshes the persisted snapshot for the session.
func (s *SQLiteStore) Update(ctx context.Context, sess *Session) error {
	s.mu.RLock()
	_, ok := s.sessions[sess.AgentID()]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sess.AgentID())
	}
	return s.persist(ctx, sess)
}

// Snapshot returns an immutable copy of the session for an agent ID.
func (s *SQLiteStore) Snapshot(ctx context.Context, agentID string) (*Snapshot, error) {
	sess, err := s.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return sess.Snapshot(), nil
}

// List returns snapshots of all persisted sessions, most recently updated
// first.
func (s *SQLiteStore) List(ctx context.Context) ([]*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT snapshot FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	defer rows.Close()

	var snaps []*Snapshot
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("session: list scan: %w", err)
		}
		var snap Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			return nil, fmt.Errorf("session: decode snapshot: %w", err)
		}
		snaps = append(snaps, &snap)
	}
	return snaps, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) persist(ctx context.Context, sess *Session) error {
	snap := sess.Snapshot()
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("session: encode snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (agent_id, snapshot, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		snap.AgentID, string(raw), snap.UpdatedAt.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"))
	if err != nil {
		return fmt.Errorf("session: persist %s: %w", snap.AgentID, err)
	}
	return nil
}

func (s *SQLiteStore) load(ctx context.Context, agentID string) (*Snapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM sessions WHERE agent_id = ?`, agentID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", agentID, err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("session: decode snapshot: %w", err)
	}
	return &snap, nil
}
