package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	sessionFile = "session.json"
	historyDir  = "session_history"

	// MaxSessionAge is how old a session may be before it is archived
	// instead of resumed.
	MaxSessionAge = 4 * time.Hour
)

// Storage persists the current session as a JSON file and archives
// finished sessions under session_history/.
type Storage struct {
	dir string
}

func NewStorage(dir string) *Storage {
	return &Storage{dir: dir}
}

func (s *Storage) sessionPath() string {
	return filepath.Join(s.dir, sessionFile)
}

func (s *Storage) historyPath() string {
	return filepath.Join(s.dir, historyDir)
}

// Load reads the current session, or nil when none exists or the file
// is unreadable.
func (s *Storage) Load() *State {
	data, err := os.ReadFile(s.sessionPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		slog.Warn("failed to read session", "path", s.sessionPath(), "error", err)
		return nil
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("failed to parse session", "path", s.sessionPath(), "error", err)
		return nil
	}
	return &st
}

// Save writes the session atomically, touching its activity stamp.
func (s *Storage) Save(st *State) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	st.Touch()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.dir, "session-*.tmp")
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

	if err := os.Rename(tmpPath, s.sessionPath()); err != nil {
		return err
	}
	cleanup = false
	return nil
}

// Archive moves the session into session_history/ named
// session_<id>_<YYYY-MM-DD>.json and removes the current file.
// Returns the archive path, or "" when there was nothing to archive.
func (s *Storage) Archive(st *State) (string, error) {
	if st == nil {
		st = s.Load()
	}
	if st == nil {
		return "", nil
	}
	if err := os.MkdirAll(s.historyPath(), 0o755); err != nil {
		return "", fmt.Errorf("create history dir: %w", err)
	}

	name := fmt.Sprintf("session_%s_%s.json", st.SessionID, time.Now().Format("2006-01-02"))
	path := filepath.Join(s.historyPath(), name)

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}

	if err := os.Remove(s.sessionPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	slog.Info("archived session", "session", st.SessionID, "path", path)
	return path, nil
}

// Clear removes the current session without archiving.
func (s *Storage) Clear() error {
	err := os.Remove(s.sessionPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// IsStale reports whether the session is too old to resume.
func (s *Storage) IsStale(st *State) bool {
	if st == nil {
		return true
	}
	return st.Age() > MaxSessionAge
}

// GetOrCreate returns the current session, archiving and replacing it
// when stale. The second return reports whether an existing session
// was resumed.
func (s *Storage) GetOrCreate() (*State, bool, error) {
	existing := s.Load()
	if existing != nil {
		if !s.IsStale(existing) {
			return existing, true, nil
		}
		if _, err := s.Archive(existing); err != nil {
			return nil, false, fmt.Errorf("archive stale session: %w", err)
		}
	}

	fresh := NewState()
	if err := s.Save(fresh); err != nil {
		return nil, false, err
	}
	return fresh, false, nil
}

// ListArchived returns up to limit archive paths, newest first.
func (s *Storage) ListArchived(limit int) ([]string, error) {
	entries, err := os.ReadDir(s.historyPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	type archived struct {
		path string
		mod  time.Time
	}
	var files []archived
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, archived{filepath.Join(s.historyPath(), e.Name()), info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })

	var out []string
	for _, f := range files {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, f.path)
	}
	return out, nil
}

// PruneArchives removes archive files older than maxAge. Returns how
// many were removed.
func (s *Storage) PruneArchives(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.historyPath())
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.historyPath(), e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
