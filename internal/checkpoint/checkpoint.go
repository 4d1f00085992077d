// Package checkpoint persists the crawl resume marker: the publication
// timestamp of the first listing saved in a run, stored as a single
// RFC 3339 line in a plain-text file.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore reads and writes the checkpoint file.
type FileStore struct {
	path string
}

// NewFileStore creates a store for the given file path. The file does
// not need to exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns the stored timestamp. A missing file means "no prior run"
// and yields a zero time with no error; a present but unparseable file
// is an error.
func (s *FileStore) Load() (time.Time, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("read checkpoint %s: %w", s.path, err)
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse checkpoint %s: %w", s.path, err)
	}
	return ts, nil
}

// Store writes the timestamp atomically (temp file in the same directory,
// then rename) so an interrupted run never leaves a torn checkpoint.
func (s *FileStore) Store(ts time.Time) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(ts.Format(time.RFC3339) + "\n"); err != nil {
		tmp.Close()           //nolint:errcheck
		os.Remove(tmpName)    //nolint:errcheck
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}
