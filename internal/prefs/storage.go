package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const prefsFile = "preferences.json"

// Storage persists a Preferences set as a single JSON file in dir.
// A missing or corrupt file loads as empty preferences rather than
// failing the caller.
type Storage struct {
	dir string
	mu  sync.Mutex
}

func NewStorage(dir string) *Storage {
	return &Storage{dir: dir}
}

// Path returns the preferences file path.
func (s *Storage) Path() string {
	return filepath.Join(s.dir, prefsFile)
}

// Load reads preferences from disk.
func (s *Storage) Load() *Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return &Preferences{}
	}
	if err != nil {
		slog.Warn("failed to read preferences", "path", s.Path(), "error", err)
		return &Preferences{}
	}

	var p Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("failed to parse preferences", "path", s.Path(), "error", err)
		return &Preferences{}
	}
	return &p
}

// Save writes preferences to disk atomically (temp file → rename).
func (s *Storage) Save(p *Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.dir, "prefs-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return err
	}
	cleanup = false

	slog.Debug("saved preferences", "path", s.Path())
	return nil
}
