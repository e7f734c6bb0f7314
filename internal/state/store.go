package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// State is the durable suppression record. Timestamps are unix seconds.
type State struct {
	LastEventSent   map[string]float64 `json:"last_event_sent"`
	LastKeySent     map[string]float64 `json:"last_key_sent"`
	SuppressedCount map[string]int     `json:"suppressed_count"`
}

// legacyState is the layout written by the original watchdog tool
type legacyState struct {
	LastEvent  map[string]float64 `json:"last_event"`
	LastKey    map[string]float64 `json:"last_key"`
	Suppressed map[string]int     `json:"suppressed"`
}

// Empty returns a valid state with no history
func Empty() State {
	return State{
		LastEventSent:   make(map[string]float64),
		LastKeySent:     make(map[string]float64),
		SuppressedCount: make(map[string]int),
	}
}

// Clone returns a deep copy
func (s State) Clone() State {
	out := Empty()
	for k, v := range s.LastEventSent {
		out.LastEventSent[k] = v
	}
	for k, v := range s.LastKeySent {
		out.LastKeySent[k] = v
	}
	for k, v := range s.SuppressedCount {
		out.SuppressedCount[k] = v
	}
	return out
}

// Unix converts a time to the stored representation
func Unix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Time converts a stored timestamp back to a time
func Time(ts float64) time.Time {
	sec := int64(ts)
	return time.Unix(sec, int64((ts-float64(sec))*1e9))
}

// PersistError describes a failed load or save of the state file
type PersistError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("state %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Store owns the suppression state and its file. All access goes through
// the store's lock.
type Store struct {
	path  string
	mu    sync.Mutex
	state State
}

// NewMemoryStore creates a store that is never written to disk
func NewMemoryStore() *Store {
	return &Store{state: Empty()}
}

// Open loads the state file at path. The returned store is always usable:
// a missing file yields empty state with a nil error, and an unreadable or
// corrupt file yields empty state plus a *PersistError describing why.
func Open(path string) (*Store, error) {
	s := &Store{path: path, state: Empty()}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, &PersistError{Op: "load", Path: path, Err: err}
	}

	st, err := decode(data)
	if err != nil {
		return s, &PersistError{Op: "load", Path: path, Err: err}
	}
	s.state = st
	return s, nil
}

func decode(data []byte) (State, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return State{}, fmt.Errorf("decode: %w", err)
	}

	st := Empty()
	if _, ok := raw["last_event_sent"]; ok {
		var cur State
		if err := json.Unmarshal(data, &cur); err != nil {
			return State{}, fmt.Errorf("decode: %w", err)
		}
		merge(&st, cur.LastEventSent, cur.LastKeySent, cur.SuppressedCount)
		return st, nil
	}

	var old legacyState
	if err := json.Unmarshal(data, &old); err != nil {
		return State{}, fmt.Errorf("decode legacy: %w", err)
	}
	merge(&st, old.LastEvent, old.LastKey, old.Suppressed)
	return st, nil
}

func merge(st *State, events, keys map[string]float64, suppressed map[string]int) {
	for k, v := range events {
		st.LastEventSent[k] = v
	}
	for k, v := range keys {
		st.LastKeySent[k] = v
	}
	for k, v := range suppressed {
		st.SuppressedCount[k] = v
	}
}

// Path returns the backing file, empty for memory-only stores
func (s *Store) Path() string {
	return s.path
}

// Update runs fn with exclusive access to the live state
func (s *Store) Update(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// Snapshot returns a deep copy of the current state
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// MarkSent records a confirmed delivery: both timestamps move forward to at
// (never backward) and the event's suppression counter resets.
func (s *Store) MarkSent(event, key string, at time.Time) {
	ts := Unix(at)

	s.mu.Lock()
	defer s.mu.Unlock()

	if ts > s.state.LastEventSent[event] {
		s.state.LastEventSent[event] = ts
	}
	if ts > s.state.LastKeySent[key] {
		s.state.LastKeySent[key] = ts
	}
	s.state.SuppressedCount[event] = 0
}

// Save writes the full state snapshot atomically: the JSON goes to a temp
// file in the target directory which is then renamed over the target.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	data, err := json.MarshalIndent(s.state, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return &PersistError{Op: "encode", Path: s.path, Err: err}
	}

	if err := writeAtomic(s.path, data); err != nil {
		return &PersistError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
