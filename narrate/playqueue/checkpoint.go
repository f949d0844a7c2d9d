package playqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrNoCheckpoint is returned when no saved position exists for a work.
var ErrNoCheckpoint = errors.New("no checkpoint for work")

// Checkpoint is a resumable playback position within a work.
type Checkpoint struct {
	Page      int           `json:"page"`
	Segment   int           `json:"segment"`
	Position  time.Duration `json:"position"`
	Speed     float64       `json:"speed"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// CheckpointStore persists playback positions keyed by work id.
type CheckpointStore interface {
	Save(ctx context.Context, workID string, cp Checkpoint) error
	Load(ctx context.Context, workID string) (Checkpoint, error)
}

// MemoryStore keeps checkpoints in memory, for tests and ephemeral runs.
type MemoryStore struct {
	mu  sync.RWMutex
	cps map[string]Checkpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cps: make(map[string]Checkpoint)}
}

func (s *MemoryStore) Save(_ context.Context, workID string, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cps[workID] = cp
	return nil
}

func (s *MemoryStore) Load(_ context.Context, workID string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.cps[workID]
	if !ok {
		return Checkpoint{}, ErrNoCheckpoint
	}
	return cp, nil
}

// FileStore persists one JSON file per work under a directory. Writes go
// through a temp file and rename so a crash never leaves a torn file.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Save(_ context.Context, workID string, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}

	path := s.path(workID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, workID string) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(workID))
	if errors.Is(err, os.ErrNotExist) {
		return Checkpoint{}, ErrNoCheckpoint
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("parse checkpoint: %w", err)
	}
	return cp, nil
}

func (s *FileStore) path(workID string) string {
	return filepath.Join(s.dir, sanitize(workID)+".json")
}

// sanitize maps a work id to a safe file name.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}
