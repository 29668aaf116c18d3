// Package dispose archives or trashes the files selected by a sweep.
package dispose

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"

	"github.com/mattjoyce/sweeper/internal/log"
	"github.com/mattjoyce/sweeper/internal/scan"
)

// Options configures an Engine.
type Options struct {
	// ArchiveDir is the quarantine folder name created under each root.
	ArchiveDir string
	// Digest computes a BLAKE3 content digest for every file before it moves.
	Digest bool
	Logger *slog.Logger
}

// Engine performs dispositions one file at a time. A failing file never
// stops the run; its Outcome carries the error instead.
type Engine struct {
	fs         afero.Fs
	trasher    Trasher
	archiveDir string
	digest     bool
	logger     *slog.Logger
	now        func() time.Time
}

// New returns an Engine over fsys. trasher may be nil when only Archive
// mode is used.
func New(fsys afero.Fs, trasher Trasher, opts Options) *Engine {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithComponent("dispose")
	}
	return &Engine{
		fs:         fsys,
		trasher:    trasher,
		archiveDir: opts.ArchiveDir,
		digest:     opts.Digest,
		logger:     logger,
		now:        time.Now,
	}
}

// Dispose applies mode to files and returns one Outcome per file, in input
// order.
func (e *Engine) Dispose(root string, files []scan.FileHandle, mode Mode) []Outcome {
	switch mode {
	case Delete:
		return e.each(files, e.trash)
	default:
		dir := filepath.Join(filepath.Clean(root), e.archiveDir)
		if err := e.fs.MkdirAll(dir, 0o755); err != nil {
			derr := &DisposalError{Path: dir, Op: "create archive folder", Err: err}
			e.logger.Warn("archive folder unavailable", "path", dir, "error", err)
			outcomes := make([]Outcome, len(files))
			for i, fh := range files {
				outcomes[i] = Outcome{Name: fh.Name, Path: fh.Path, Time: e.now(), Err: derr}
			}
			return outcomes
		}
		return e.each(files, func(o *Outcome) error { return e.archive(dir, o) })
	}
}

func (e *Engine) each(files []scan.FileHandle, fn func(*Outcome) error) []Outcome {
	outcomes := make([]Outcome, 0, len(files))
	for _, fh := range files {
		o := Outcome{Name: fh.Name, Path: fh.Path}
		if err := e.prepare(&o); err != nil {
			o.Err = err
		} else {
			o.Err = fn(&o)
		}
		o.Time = e.now()
		if o.Err != nil {
			e.logger.Warn("disposal failed", "file", o.Path, "error", o.Err)
		} else {
			e.logger.Debug("disposed", "file", o.Path, "destination", o.Destination, "size", o.Size)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// prepare re-reads the size, and the digest when enabled, immediately
// before the move.
func (e *Engine) prepare(o *Outcome) error {
	info, err := e.fs.Stat(o.Path)
	if err != nil {
		return &DisposalError{Path: o.Path, Op: "stat", Err: err}
	}
	if !info.Mode().IsRegular() {
		return &DisposalError{Path: o.Path, Op: "stat", Err: fmt.Errorf("not a regular file")}
	}
	o.Size = info.Size()

	if e.digest {
		sum, err := digestFile(e.fs, o.Path)
		if err != nil {
			return &DisposalError{Path: o.Path, Op: "digest", Err: err}
		}
		o.Digest = sum
	}
	return nil
}

func (e *Engine) trash(o *Outcome) error {
	if e.trasher == nil {
		return &DisposalError{Path: o.Path, Op: "trash", Err: errors.New("no trash configured")}
	}
	dest, err := e.trasher.Trash(o.Path)
	if err != nil {
		return &DisposalError{Path: o.Path, Op: "trash", Err: err}
	}
	o.Destination = dest
	return nil
}

// archive reserves a free name in dir with an exclusive create and renames
// the source over the reservation.
func (e *Engine) archive(dir string, o *Outcome) error {
	dest, err := reserve(e.fs, dir, o.Name)
	if err != nil {
		return &DisposalError{Path: o.Path, Op: "reserve", Err: err}
	}
	if err := e.fs.Rename(o.Path, dest); err != nil {
		if rmErr := e.fs.Remove(dest); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			e.logger.Warn("failed to remove archive placeholder", "path", dest, "error", rmErr)
		}
		return &DisposalError{Path: o.Path, Op: "archive", Err: err}
	}
	o.Destination = dest
	return nil
}

// reserve creates an empty placeholder at the first free name among name,
// name_1, name_2, ... inside dir and returns its path.
func reserve(fsys afero.Fs, dir, name string) (string, error) {
	for n := 0; ; n++ {
		candidate := filepath.Join(dir, CollisionName(name, n))
		f, err := fsys.OpenFile(candidate, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			if cerr := f.Close(); cerr != nil {
				_ = fsys.Remove(candidate)
				return "", cerr
			}
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
	}
}

// CollisionName returns the n-th candidate for name. Zero is the name
// itself; otherwise _n goes before the last dot, or at the end when the
// name has none ("a.tar.gz" -> "a.tar_1.gz", ".bashrc" -> "_1.bashrc").
func CollisionName(name string, n int) string {
	if n == 0 {
		return name
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		return fmt.Sprintf("%s_%d%s", name[:i], n, name[i:])
	}
	return fmt.Sprintf("%s_%d", name, n)
}

func digestFile(fsys afero.Fs, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
