// Package history keeps the outcome of the latest repair of each document, so
// repeated runs over the same sketches can be reviewed later.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"sketch-repair/internal/types"
)

// FileName is the store file inside the base directory.
const FileName = "history.json"

// Entry is the latest run over one document.
type Entry struct {
	Path      string         `json:"path"`      // absolute document path
	Tally     int            `json:"tally"`     // fixes applied by the latest run
	Written   bool           `json:"written"`   // whether the latest run rewrote the file
	Fixes     map[string]int `json:"fixes"`     // pass name -> fixes, passes with none omitted
	Error     string         `json:"error"`     // failure of the latest run, if any
	Runs      int            `json:"runs"`      // runs recorded for this path
	Timestamp time.Time      `json:"timestamp"` // time of the latest run
	Restored  bool           `json:"restored"`  // backup copied back after the latest run
}

// Store persists one Entry per document path.
type Store struct {
	baseDir string
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewStore opens the store in baseDir, creating the directory if needed.
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", "sketch-repair")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	s := &Store{baseDir: baseDir, entries: make(map[string]*Entry)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Record stores the outcome of a run over path. res may be nil when runErr
// is set.
func (s *Store) Record(path string, res *types.RepairResult, runErr error) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &Entry{Path: abs, Fixes: make(map[string]int), Timestamp: time.Now()}
	if existing, ok := s.entries[abs]; ok {
		entry.Runs = existing.Runs
	}
	entry.Runs++
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if res != nil {
		entry.Tally = res.Tally
		entry.Written = res.Written
		for _, p := range res.Passes {
			if p.Fixes > 0 {
				entry.Fixes[p.Name] = p.Fixes
			}
		}
	}
	s.entries[abs] = entry
	return s.save()
}

// MarkRestored flags the entry of path as restored from its backup.
func (s *Store) MarkRestored(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[abs]
	if !ok {
		return fmt.Errorf("no history for %s", abs)
	}
	entry.Restored = true
	return s.save()
}

// Get returns a copy of the entry for path.
func (s *Store) Get(path string) (*Entry, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[abs]
	if !ok {
		return nil, false
	}
	c := *entry
	return &c, true
}

// List returns copies of all entries, most recent first.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Path < out[j].Path
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Clear removes every entry.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*Entry)
	return s.save()
}

func (s *Store) load() error {
	data, err := os.ReadFile(filepath.Join(s.baseDir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read history file: %w", err)
	}

	var entries []*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to unmarshal history: %w", err)
	}
	for _, e := range entries {
		s.entries[e.Path] = e
	}
	return nil
}

func (s *Store) save() error {
	entries := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.baseDir, FileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return nil
}
