// Package filter selects the disposal set from a scan.
package filter

import (
	"iter"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/IGLOU-EU/go-wildcard"
	"github.com/spf13/afero"

	"github.com/mattjoyce/sweeper/internal/log"
	"github.com/mattjoyce/sweeper/internal/scan"
)

// Criteria is the per-invocation selection rule.
type Criteria struct {
	Extension string
	MinAge    time.Duration
	MaxSize   int64
	// Exclude holds wildcard patterns matched against the file name and the
	// slash-separated path relative to the root.
	Exclude []string
}

// Cutoff is the instant a file must have been last modified before.
func (c Criteria) Cutoff(now time.Time) time.Time {
	return now.Add(-c.MinAge)
}

// Options configures the names the engine reserves inside every root.
type Options struct {
	ArchiveDir string
	AuditFile  string
	Exclude    []string
	// ReservedPaths are absolute files or directories owned by sweeper
	// itself, such as the summary record or the trash. Candidates equal to
	// or below one of them are never selected.
	ReservedPaths []string
	Logger        *slog.Logger
}

// Filter narrows a scan down to the files a run may dispose of.
type Filter struct {
	fs         afero.Fs
	archiveDir string
	auditFile  string
	exclude    []string
	reserved   []string
	logger     *slog.Logger
}

// New returns a Filter reading current metadata from fsys.
func New(fsys afero.Fs, opts Options) *Filter {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithComponent("filter")
	}
	return &Filter{
		fs:         fsys,
		archiveDir: opts.ArchiveDir,
		auditFile:  opts.AuditFile,
		exclude:    opts.Exclude,
		reserved:   cleanPaths(opts.ReservedPaths),
		logger:     logger,
	}
}

func cleanPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		out = append(out, abs)
	}
	return out
}

// Apply re-stats every file from seq and keeps those with size < maxSize
// and a modification time strictly before cutoff. Reserved and excluded
// paths are dropped. The result is sorted by path.
func (f *Filter) Apply(root string, seq iter.Seq2[scan.FileHandle, error], cutoff time.Time, maxSize int64) []scan.FileHandle {
	root = filepath.Clean(root)
	selected := []scan.FileHandle{}

	for fh, err := range seq {
		if err != nil {
			f.logger.Warn("skipping unreadable path", "root", root, "error", err)
			continue
		}

		rel, err := filepath.Rel(root, fh.Path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if f.Reserved(rel) || f.excluded(fh.Name, rel) {
			continue
		}
		if f.ownedPath(fh.Path) {
			f.logger.Debug("skipping sweeper-owned path", "path", fh.Path)
			continue
		}

		info, err := f.fs.Stat(fh.Path)
		if err != nil {
			f.logger.Debug("candidate vanished before filtering", "path", fh.Path, "error", err)
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if info.Size() >= maxSize || !info.ModTime().Before(cutoff) {
			continue
		}

		fh.Size = info.Size()
		fh.ModTime = info.ModTime()
		selected = append(selected, fh)
	}

	sort.Slice(selected, func(i, j int) bool { return selected[i].Path < selected[j].Path })
	return selected
}

// Reserved reports whether the root-relative path belongs to the engine:
// anything below a directory named like the quarantine folder, or a file
// named like the audit log.
func (f *Filter) Reserved(rel string) bool {
	rel = filepath.Clean(rel)
	if f.auditFile != "" && filepath.Base(rel) == f.auditFile {
		return true
	}
	if f.archiveDir == "" {
		return false
	}
	dir := filepath.Dir(rel)
	if dir == "." {
		return false
	}
	for _, part := range strings.Split(dir, string(filepath.Separator)) {
		if part == f.archiveDir {
			return true
		}
	}
	return false
}

// ownedPath reports whether path is one of the reserved paths or lies
// below one of them.
func (f *Filter) ownedPath(path string) bool {
	for _, r := range f.reserved {
		if within(path, r) {
			return true
		}
	}
	return false
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (f *Filter) excluded(name, rel string) bool {
	slashRel := filepath.ToSlash(rel)
	for _, pattern := range f.exclude {
		if wildcard.Match(pattern, name) || wildcard.Match(pattern, slashRel) {
			return true
		}
	}
	return false
}
