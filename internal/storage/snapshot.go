// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session snapshot persistence for grokcli.
//
// A snapshot is peripheral state: the trailing slice of the conversation,
// the command history buffer, and the active model, written to
// ~/.grokcli/session.json so a later run can pick up where this one left
// off. Counters are not persisted; they describe one process lifetime.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/morganforge/grokcli/internal/session"
	"github.com/morganforge/grokcli/internal/util"
)

// SnapshotFileName is the snapshot file inside the config directory.
const SnapshotFileName = "session.json"

// =============================================================================
// SNAPSHOT TYPE
// =============================================================================

// Snapshot is the persisted form of a session.
type Snapshot struct {
	SessionID string            `json:"session_id"`
	Model     string            `json:"model"`
	Messages  []session.Message `json:"messages"`
	Commands  []string          `json:"commands"`
	SavedAt   time.Time         `json:"saved_at"`
}

// =============================================================================
// SNAPSHOT STORE
// =============================================================================

// SnapshotStore reads and writes session snapshots.
type SnapshotStore struct {
	// Path is the snapshot file location.
	Path string

	// KeepMessages caps how many trailing messages are persisted.
	KeepMessages int
}

// NewSnapshotStore creates a store under the given config directory.
func NewSnapshotStore(configDir string, keepMessages int) *SnapshotStore {
	return &SnapshotStore{
		Path:         filepath.Join(configDir, SnapshotFileName),
		KeepMessages: keepMessages,
	}
}

// Save captures and writes the session state. The write is atomic: data is
// written to a temp file and renamed into place with owner-only permissions.
func (s *SnapshotStore) Save(sess *session.Session) error {
	messages := sess.Messages()
	if s.KeepMessages > 0 && len(messages) > s.KeepMessages {
		messages = messages[len(messages)-s.KeepMessages:]
	}

	snap := Snapshot{
		SessionID: sess.ID(),
		Model:     sess.Model(),
		Messages:  messages,
		Commands:  sess.CommandHistory(),
		SavedAt:   time.Now(),
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot encode failed: %w", err)
	}

	if err := util.AtomicWriteFile(s.Path, data, 0600); err != nil {
		return fmt.Errorf("snapshot write failed: %w", err)
	}
	return nil
}

// Load reads the snapshot from disk. A missing file returns (nil, nil).
func (s *SnapshotStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot read failed: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("snapshot parse failed: %w", err)
	}
	return &snap, nil
}

// Restore applies a snapshot to a fresh session. An unknown persisted model
// is skipped rather than failing the whole restore; the registry may have
// dropped it since the snapshot was written.
func (s *SnapshotStore) Restore(snap *Snapshot, sess *session.Session) error {
	if snap == nil {
		return nil
	}
	if snap.Model != "" {
		if err := sess.SetModel(snap.Model); err != nil {
			fmt.Fprintf(os.Stderr, "ignoring persisted model %q: %v\n", snap.Model, err)
		}
	}
	if err := sess.RestoreMessages(snap.Messages); err != nil {
		return fmt.Errorf("snapshot restore failed: %w", err)
	}
	sess.RestoreCommandHistory(snap.Commands)
	return nil
}

// Clear removes the snapshot file if present.
func (s *SnapshotStore) Clear() error {
	err := os.Remove(s.Path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
