// Package mirror maintains a local git-backed copy of a remote repository
// subtree fetched through the contents API.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fclairamb/ghsync/internal/store"
)

const (
	// statePath is where the mirror state lives inside the local store.
	statePath = ".ghsync/state.json"

	// stateFormatVersion is the current version of the state file format.
	// Increment this when making breaking changes to the state structure.
	stateFormatVersion = 1
)

// State is persisted in .ghsync/state.json. It records the blob SHA of
// every mirrored file so unchanged files can be skipped on the next sync,
// and mirrored files that disappeared remotely can be deleted locally.
type State struct {
	Version  int               `json:"version"`
	Files    map[string]string `json:"files"` // repo path -> blob SHA
	SyncedAt *time.Time        `json:"synced_at,omitempty"`
}

// NewState creates a new empty state.
func NewState() *State {
	return &State{
		Version: stateFormatVersion,
		Files:   map[string]string{},
	}
}

// LoadState reads the mirror state from the local store. A missing state
// file yields a fresh empty state.
func LoadState(ctx context.Context, s store.Store) (*State, error) {
	exists, err := s.Exists(ctx, statePath)
	if err != nil {
		return nil, fmt.Errorf("check state: %w", err)
	}
	if !exists {
		return NewState(), nil
	}

	data, err := s.Read(ctx, statePath)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if state.Version != stateFormatVersion {
		// Stale format: resync everything rather than guessing.
		return NewState(), nil
	}
	if state.Files == nil {
		state.Files = map[string]string{}
	}
	return &state, nil
}

// Stage serializes the state into the given transaction.
func (s *State) Stage(ctx context.Context, tx store.Transaction, now time.Time) error {
	s.Version = stateFormatVersion
	s.SyncedAt = &now

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize state: %w", err)
	}
	if err := tx.Write(ctx, statePath, data); err != nil {
		return fmt.Errorf("stage state: %w", err)
	}
	return nil
}
