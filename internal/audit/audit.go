// Package audit appends one line per disposed file to the log kept inside
// each swept root.
package audit

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/mattjoyce/sweeper/internal/dispose"
)

const (
	stampFormat = "2006-01-02 15:04:05,000"
	eventFormat = "2006-01-02 15:04:05.000000"
)

// Log is an open audit log, scoped to a single run.
type Log struct {
	mu   sync.Mutex
	f    afero.File
	path string
	now  func() time.Time
}

// Open opens <root>/<name> for appending, creating it when absent.
func Open(fsys afero.Fs, root, name string) (*Log, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	path := filepath.Join(root, name)
	f, err := fsys.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Log{f: f, path: path, now: time.Now}, nil
}

// Path returns the log file location.
func (l *Log) Path() string { return l.path }

// Record writes the line for one successful outcome. Each line goes out in
// a single write so concurrent appenders do not interleave mid-line.
func (l *Log) Record(o dispose.Outcome, label string) error {
	line := FormatLine(l.now(), o, label) + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return errors.New("audit log is closed")
	}
	if _, err := l.f.Write([]byte(line)); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// Close flushes and closes the log. It is safe to call more than once.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// FormatLine renders an audit line without the trailing newline:
//
//	2024-05-01 10:00:00,123-File name: a.log | Size: 200 bytes | Deleted at: 2024-05-01 10:00:00.122001
func FormatLine(stamp time.Time, o dispose.Outcome, label string) string {
	line := fmt.Sprintf("%s-File name: %s | Size: %d bytes | %s at: %s",
		stamp.Format(stampFormat), o.Name, o.Size, label, o.Time.Format(eventFormat))
	if o.Digest != "" {
		line += " | blake3: " + o.Digest
	}
	return line
}

// ReadLines returns the whole log, one entry per line. found is false when
// the log does not exist.
func ReadLines(fsys afero.Fs, root, name string) (lines []string, found bool, err error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	data, err := afero.ReadFile(fsys, filepath.Join(root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read audit log: %w", err)
	}

	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return []string{}, true, nil
	}
	lines = strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines, true, nil
}
