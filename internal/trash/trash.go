// Package trash moves files into the user's recoverable trash.
//
// On Linux and the BSDs the freedesktop.org Home trash is used: the file goes
// to $XDG_DATA_HOME/Trash/files and a matching .trashinfo record is written
// to Trash/info so desktop file managers can restore it. A file on another
// volume goes to that volume's $topdir/.Trash-$uid instead, with the info
// Path relative to $topdir; when that trash cannot be used the file is
// copied into the Home trash. On macOS files are moved into ~/.Trash.
package trash

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

const infoTimeFormat = "2006-01-02T15:04:05"

// Home is a per-user trash directory.
type Home struct {
	fs       afero.Fs
	dir      string
	withInfo bool
	now      func() time.Time

	// topdir finds the mount point holding a path. Nil disables
	// per-volume trash directories.
	topdir func(path string) (string, error)
	// infoBase, when set, makes info Path entries relative to it.
	infoBase string
}

// NewHome returns the trash rooted at dir, or at DefaultDir() when dir is
// empty. A nil fsys means the OS filesystem.
func NewHome(fsys afero.Fs, dir string) *Home {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if dir == "" {
		dir = DefaultDir()
	}
	h := &Home{
		fs:       fsys,
		dir:      filepath.Clean(dir),
		withInfo: writesInfo,
		now:      time.Now,
	}
	if _, ok := fsys.(*afero.OsFs); ok {
		h.topdir = mountPoint
	}
	return h
}

// Dir returns the trash root.
func (h *Home) Dir() string { return h.dir }

// FilesDir returns the directory that receives trashed files.
func (h *Home) FilesDir() string {
	if !h.withInfo {
		return h.dir
	}
	return filepath.Join(h.dir, "files")
}

// InfoDir returns the directory holding .trashinfo records.
func (h *Home) InfoDir() string { return filepath.Join(h.dir, "info") }

// Trash moves path into the trash and returns its new location.
func (h *Home) Trash(path string) (string, error) {
	src, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}
	if _, err := h.fs.Stat(src); err != nil {
		return "", err
	}

	dest, err := h.put(src, false)
	if !errors.Is(err, unix.EXDEV) {
		return dest, err
	}
	if vt := h.volumeTrash(src); vt != nil {
		if dest, err := vt.put(src, false); err == nil {
			return dest, nil
		}
	}
	return h.put(src, true)
}

// put reserves an entry for src and moves it there. A cross-device rename
// fails with EXDEV unless copyAcross is set.
func (h *Home) put(src string, copyAcross bool) (string, error) {
	if err := h.fs.MkdirAll(h.FilesDir(), 0o700); err != nil {
		return "", fmt.Errorf("create trash: %w", err)
	}
	if h.withInfo {
		if err := h.fs.MkdirAll(h.InfoDir(), 0o700); err != nil {
			return "", fmt.Errorf("create trash info: %w", err)
		}
	}

	dest, infoPath, err := h.reserve(src)
	if err != nil {
		return "", err
	}

	if err := h.move(src, dest, copyAcross); err != nil {
		if infoPath != "" {
			_ = h.fs.Remove(infoPath)
		}
		return "", err
	}
	return dest, nil
}

// volumeTrash returns the $topdir/.Trash-$uid trash of the volume holding
// src, or nil when per-volume trash does not apply.
func (h *Home) volumeTrash(src string) *Home {
	if !h.withInfo || h.topdir == nil {
		return nil
	}
	top, err := h.topdir(src)
	if err != nil {
		return nil
	}
	return &Home{
		fs:       h.fs,
		dir:      filepath.Join(top, fmt.Sprintf(".Trash-%d", os.Getuid())),
		withInfo: true,
		now:      h.now,
		infoBase: top,
	}
}

// reserve picks a trash name that is free in files/ and claims it by
// exclusively creating the .trashinfo record (or, without info records, an
// empty placeholder).
func (h *Home) reserve(src string) (dest, infoPath string, err error) {
	base := filepath.Base(src)
	for n := 0; ; n++ {
		name := uniqueName(base, n)
		dest = filepath.Join(h.FilesDir(), name)

		claim := dest
		if h.withInfo {
			claim = filepath.Join(h.InfoDir(), name+".trashinfo")
		}
		f, err := h.fs.OpenFile(claim, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", "", fmt.Errorf("reserve trash entry: %w", err)
		}

		if !h.withInfo {
			if err := f.Close(); err != nil {
				_ = h.fs.Remove(claim)
				return "", "", err
			}
			return dest, "", nil
		}

		if _, err := h.fs.Stat(dest); err == nil {
			// Orphaned file without an info record; leave it alone.
			_ = f.Close()
			_ = h.fs.Remove(claim)
			continue
		}

		_, werr := io.WriteString(f, infoContent(h.infoPath(src), h.now()))
		cerr := f.Close()
		if werr != nil || cerr != nil {
			_ = h.fs.Remove(claim)
			return "", "", fmt.Errorf("write trash info: %w", errors.Join(werr, cerr))
		}
		return dest, claim, nil
	}
}

func (h *Home) move(src, dest string, copyAcross bool) error {
	err := h.fs.Rename(src, dest)
	if err == nil {
		return nil
	}
	if !copyAcross || !errors.Is(err, unix.EXDEV) {
		if !h.withInfo {
			_ = h.fs.Remove(dest)
		}
		return err
	}
	if err := h.copyFile(src, dest); err != nil {
		_ = h.fs.Remove(dest)
		return fmt.Errorf("copy to trash: %w", err)
	}
	if err := h.fs.Remove(src); err != nil {
		_ = h.fs.Remove(dest)
		return fmt.Errorf("remove original: %w", err)
	}
	return nil
}

func (h *Home) infoPath(src string) string {
	if h.infoBase == "" {
		return src
	}
	if rel, err := filepath.Rel(h.infoBase, src); err == nil {
		return rel
	}
	return src
}

// mountPoint walks up from path until the parent lies on another device.
func mountPoint(path string) (string, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return "", err
	}
	top := filepath.Dir(path)
	for {
		parent := filepath.Dir(top)
		if parent == top {
			return top, nil
		}
		var pst unix.Stat_t
		if err := unix.Stat(parent, &pst); err != nil || pst.Dev != st.Dev {
			return top, nil
		}
		top = parent
	}
}

func (h *Home) copyFile(src, dest string) error {
	info, err := h.fs.Stat(src)
	if err != nil {
		return err
	}
	in, err := h.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := h.fs.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return h.fs.Chtimes(dest, info.ModTime(), info.ModTime())
}

// infoContent renders a freedesktop.org .trashinfo record.
func infoContent(path string, at time.Time) string {
	u := url.URL{Path: path}
	var b strings.Builder
	b.WriteString("[Trash Info]\n")
	b.WriteString("Path=" + u.EscapedPath() + "\n")
	b.WriteString("DeletionDate=" + at.Format(infoTimeFormat) + "\n")
	return b.String()
}

func uniqueName(base string, n int) string {
	if n == 0 {
		return base
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		return fmt.Sprintf("%s.%d%s", base[:i], n+1, base[i:])
	}
	return fmt.Sprintf("%s.%d", base, n+1)
}
