package sweep

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStateStore keeps per-area sweep watermarks in a local JSON file.
type FileStateStore struct {
	filepath string
	mu       sync.RWMutex
	state    stateData
}

type stateData struct {
	// LastSwept maps area name to the unix time of its last successful sweep.
	LastSwept map[string]int64 `json:"last_swept"`
	// MentionCursor is where the next association run resumes.
	MentionCursor string `json:"mention_cursor,omitempty"`
}

// NewFileStateStore initializes a state store from a file path.
func NewFileStateStore(path string) (*FileStateStore, error) {
	store := &FileStateStore{
		filepath: path,
		state:    stateData{LastSwept: make(map[string]int64)},
	}
	if err := store.load(); err != nil {
		return nil, fmt.Errorf("failed to load state file: %w", err)
	}
	return store, nil
}

func (s *FileStateStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filepath), 0o755); err != nil {
		return err
	}

	f, err := os.Open(s.filepath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := json.NewDecoder(f).Decode(&s.state); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	if s.state.LastSwept == nil {
		s.state.LastSwept = make(map[string]int64)
	}
	return nil
}

// LastSwept returns when area was last swept, zero if never.
func (s *FileStateStore) LastSwept(area string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.state.LastSwept[area]
	if !ok {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

// MarkSwept records a sweep of area at t. Watermarks only move forward.
func (s *FileStateStore) MarkSwept(area string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts := t.Unix(); ts > s.state.LastSwept[area] {
		s.state.LastSwept[area] = ts
	}
}

func (s *FileStateStore) MentionCursor() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.MentionCursor
}

func (s *FileStateStore) SetMentionCursor(cursor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.MentionCursor = cursor
}

// Save persists the current state. The file is replaced atomically.
func (s *FileStateStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tmpFile := s.filepath + ".tmp"
	f, err := os.Create(tmpFile)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.state); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpFile, s.filepath)
}
