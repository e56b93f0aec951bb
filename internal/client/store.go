// Package client is the designer-side half of the bridge: it keeps a session
// token in local storage, re-authenticates when the token expires, and calls
// the bridge's HTTP surface on the user's behalf.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iliyamo/designer-bridge/internal/model"
)

// SessionRecord is a session token with the principal decoded from it.
type SessionRecord struct {
	Token     string          `json:"sessionToken"`
	Principal model.Principal `json:"user"`
	ExpiresAt time.Time       `json:"expiresAt"`
	TargetID  string          `json:"targetId,omitempty"`
}

// Expired reports whether the token is no longer usable at now.
func (r SessionRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// SessionStore persists the session record and the logged-out marker.
// Clear removes the record but leaves the marker alone.
type SessionStore interface {
	Load() (*SessionRecord, error)
	Save(SessionRecord) error
	Clear() error
	LoggedOut() (bool, error)
	SetLoggedOut(bool) error
}

type storedState struct {
	Session   *SessionRecord `json:"session,omitempty"`
	LoggedOut bool           `json:"loggedOut,omitempty"`
}

// FileStore keeps the session in a JSON file readable only by its owner.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore stores the session at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFileStore stores the session under the user's config directory.
func DefaultFileStore() (*FileStore, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("locate config dir: %w", err)
	}
	return NewFileStore(filepath.Join(dir, "designer-bridge", "session.json")), nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load() (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.read()
	return st.Session, err
}

func (s *FileStore) Save(rec SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.read()
	if err != nil {
		return err
	}
	st.Session = &rec
	return s.write(st)
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.read()
	if err != nil {
		// unreadable state is dropped rather than kept around
		st = storedState{}
	}
	st.Session = nil
	return s.write(st)
}

func (s *FileStore) LoggedOut() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.read()
	return st.LoggedOut, err
}

func (s *FileStore) SetLoggedOut(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.read()
	if err != nil {
		st = storedState{}
	}
	st.LoggedOut = v
	return s.write(st)
}

func (s *FileStore) read() (storedState, error) {
	var st storedState
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("read session file: %w", err)
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return storedState{}, fmt.Errorf("decode session file: %w", err)
	}
	return st, nil
}

// write replaces the file atomically so a crash never leaves half a token.
func (s *FileStore) write(st storedState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// MemoryStore keeps the session in memory, for tests and short-lived tools.
type MemoryStore struct {
	mu        sync.Mutex
	rec       *SessionRecord
	loggedOut bool
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (*SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return nil, nil
	}
	rec := *m.rec
	return &rec, nil
}

func (m *MemoryStore) Save(rec SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = &rec
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = nil
	return nil
}

func (m *MemoryStore) LoggedOut() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loggedOut, nil
}

func (m *MemoryStore) SetLoggedOut(v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loggedOut = v
	return nil
}
