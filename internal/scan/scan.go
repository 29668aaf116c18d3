// Package scan enumerates the regular files under a root directory.
package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// ErrRootNotFound is matched by every *NotFoundError.
var ErrRootNotFound = errors.New("root not found")

// NotFoundError reports a root directory that does not exist.
type NotFoundError struct {
	Root string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("root directory %q not found", e.Root)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrRootNotFound }

// FileHandle is the metadata of one file as observed at scan time.
type FileHandle struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Scanner walks a filesystem.
type Scanner struct {
	fs afero.Fs
}

// New returns a Scanner over fsys. A nil fsys means the OS filesystem.
func New(fsys afero.Fs) *Scanner {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Scanner{fs: fsys}
}

var errStop = errors.New("scan stopped")

// Scan checks that root is an existing directory and returns a lazy sequence
// of the regular files beneath it whose name ends in ".<ext>". An empty ext
// matches every file. Errors on individual sub-paths are yielded with a zero
// FileHandle and the walk carries on.
func (s *Scanner) Scan(root, ext string) (iter.Seq2[FileHandle, error], error) {
	root = filepath.Clean(root)
	info, err := s.fs.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Root: root}
		}
		return nil, fmt.Errorf("stat root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", root)
	}

	walkRoot, err := s.resolveRoot(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}

	suffix := ""
	if e := NormalizeExtension(ext); e != "" {
		suffix = "." + e
	}

	return func(yield func(FileHandle, error) bool) {
		_ = afero.Walk(s.fs, walkRoot, func(walked string, fi os.FileInfo, err error) error {
			path := walked
			if walkRoot != root {
				if rel, rerr := filepath.Rel(walkRoot, walked); rerr == nil {
					path = filepath.Join(root, rel)
				}
			}
			if err != nil {
				if walked == walkRoot {
					// Root became unreadable after the stat above.
					yield(FileHandle{}, fmt.Errorf("walk %q: %w", path, err))
					return errStop
				}
				if !yield(FileHandle{}, fmt.Errorf("walk %q: %w", path, err)) {
					return errStop
				}
				if fi != nil && fi.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !fi.Mode().IsRegular() {
				return nil
			}
			if suffix != "" && !strings.HasSuffix(fi.Name(), suffix) {
				return nil
			}
			fh := FileHandle{
				Path:    path,
				Name:    fi.Name(),
				Size:    fi.Size(),
				ModTime: fi.ModTime(),
			}
			if !yield(fh, nil) {
				return errStop
			}
			return nil
		})
	}, nil
}

const maxRootLinks = 40

// resolveRoot follows symlinks on the root itself so a linked root is walked
// as its target. Links below the root are still never followed.
func (s *Scanner) resolveRoot(root string) (string, error) {
	lst, ok := s.fs.(afero.Lstater)
	if !ok {
		return root, nil
	}
	rl, ok := s.fs.(afero.LinkReader)
	if !ok {
		return root, nil
	}

	cur := root
	for range maxRootLinks {
		fi, lstatCalled, err := lst.LstatIfPossible(cur)
		if err != nil {
			return "", err
		}
		if !lstatCalled || fi.Mode()&os.ModeSymlink == 0 {
			return cur, nil
		}
		target, err := rl.ReadlinkIfPossible(cur)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(cur), target)
		}
		cur = filepath.Clean(target)
	}
	return "", errors.New("too many levels of symbolic links")
}

// NormalizeExtension strips leading dots and asterisks, so "*.log", ".log"
// and "log" are equivalent.
func NormalizeExtension(ext string) string {
	return strings.TrimLeft(strings.TrimSpace(ext), ".*")
}

// Collect drains seq, returning the files and the sub-path errors separately.
func Collect(seq iter.Seq2[FileHandle, error]) ([]FileHandle, []error) {
	var files []FileHandle
	var errs []error
	for fh, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		files = append(files, fh)
	}
	return files, errs
}
