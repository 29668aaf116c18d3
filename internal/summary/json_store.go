package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/sweeper/internal/lock"
)

// JSONStore keeps the record as {"total_size":N,"total_files":M} in a file.
// Updates are serialized with an exclusive lock on <path>.lock and land via
// rename, so readers never see a partial file.
type JSONStore struct {
	path string
}

var (
	_ Store     = (*JSONStore)(nil)
	_ FileOwner = (*JSONStore)(nil)
)

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the record location.
func (s *JSONStore) Path() string { return s.path }

// Files returns the record and its lock file.
func (s *JSONStore) Files() []string {
	return []string{s.path, s.path + ".lock"}
}

func (s *JSONStore) Load(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	return s.read()
}

func (s *JSONStore) Add(ctx context.Context, delta Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if delta.TotalSize < 0 || delta.TotalFiles < 0 {
		return Record{}, fmt.Errorf("summary delta must not be negative: %+v", delta)
	}
	if delta.IsZero() {
		return s.read()
	}

	l, err := lock.Acquire(s.path + ".lock")
	if err != nil {
		return Record{}, fmt.Errorf("lock summary: %w", err)
	}
	defer func() { _ = l.Release() }()

	cur, err := s.read()
	if err != nil {
		return Record{}, err
	}
	next := cur.Plus(delta)

	data, err := json.Marshal(next)
	if err != nil {
		return Record{}, fmt.Errorf("encode summary: %w", err)
	}
	if err := writeFileAtomic(s.path, data, 0o644); err != nil {
		return Record{}, fmt.Errorf("write summary: %w", err)
	}
	return next, nil
}

func (s *JSONStore) Close() error { return nil }

func (s *JSONStore) read() (Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("read summary: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return Record{}, nil
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode summary %s: %w", s.path, err)
	}
	return r, nil
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
