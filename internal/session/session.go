// Package session persists the interactive agent's session handle so a
// conversation survives process restarts.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"clawbot/internal/errs"
)

type state struct {
	SessionID string `json:"session_id"`
}

// Store keeps a single handle in a small JSON file.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store { return &Store{path: path} }

func (s *Store) Path() string { return s.path }

// Load returns the saved handle. A missing or unreadable file means no session.
func (s *Store) Load() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.Wrap(err, "read session state")
	}
	var st state
	if err := json.Unmarshal(b, &st); err != nil {
		return "", false, errs.Wrap(err, "decode session state")
	}
	id := strings.TrimSpace(st.SessionID)
	return id, id != "", nil
}

func (s *Store) Save(handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(state{SessionID: handle})
}

// Clear forgets the current session.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return errs.Wrap(err, "clear session state")
	}
	return nil
}

func (s *Store) write(st state) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errs.Wrap(err, "create state dir")
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return errs.Wrap(err, "write session state")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return errs.Wrap(err, "replace session state")
	}
	return nil
}
