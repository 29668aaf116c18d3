package filter

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/sweeper/internal/scan"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, fsys afero.Fs, path string, size int, mtime time.Time) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fsys, path, make([]byte, size), 0o644))
	require.NoError(t, fsys.Chtimes(path, mtime, mtime))
}

func apply(t *testing.T, fsys afero.Fs, opts Options, root string, cutoff time.Time, maxSize int64) []string {
	t.Helper()
	seq, err := scan.New(fsys).Scan(root, "")
	require.NoError(t, err)
	var paths []string
	for _, fh := range New(fsys, opts).Apply(root, seq, cutoff, maxSize) {
		paths = append(paths, fh.Path)
	}
	return paths
}

func testOpts() Options {
	return Options{ArchiveDir: "Archive_Junk", AuditFile: "deleted_files.log", Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}
}

func TestApplyBoundaries(t *testing.T) {
	cutoff := now.Add(-30 * 24 * time.Hour)
	const ceiling = 1000

	tests := []struct {
		name  string
		size  int
		mtime time.Time
		want  bool
	}{
		{"below both bounds", ceiling - 1, cutoff.Add(-time.Second), true},
		{"size equals ceiling", ceiling, cutoff.Add(-time.Second), false},
		{"size above ceiling", ceiling + 1, cutoff.Add(-time.Second), false},
		{"mtime equals cutoff", 10, cutoff, false},
		{"mtime after cutoff", 10, cutoff.Add(time.Second), false},
		{"empty file", 0, cutoff.Add(-time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			writeFile(t, fsys, "/root/f.dat", tt.size, tt.mtime)

			got := apply(t, fsys, testOpts(), "/root", cutoff, ceiling)
			if tt.want {
				assert.Equal(t, []string{"/root/f.dat"}, got)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestApplySelfExclusion(t *testing.T) {
	fsys := afero.NewMemMapFs()
	old := now.Add(-365 * 24 * time.Hour)
	writeFile(t, fsys, "/root/deleted_files.log", 10, old)
	writeFile(t, fsys, "/root/Archive_Junk/a.txt", 10, old)
	writeFile(t, fsys, "/root/Archive_Junk/nested/b.txt", 10, old)
	writeFile(t, fsys, "/root/sub/Archive_Junk/c.txt", 10, old)
	writeFile(t, fsys, "/root/sub/deleted_files.log", 10, old)
	writeFile(t, fsys, "/root/keep.txt", 10, old)
	writeFile(t, fsys, "/root/Archive_Junk.txt", 10, old)

	got := apply(t, fsys, testOpts(), "/root", now, 1<<20)
	assert.Equal(t, []string{"/root/Archive_Junk.txt", "/root/keep.txt"}, got)
}

func TestApplyExcludePatterns(t *testing.T) {
	fsys := afero.NewMemMapFs()
	old := now.Add(-365 * 24 * time.Hour)
	writeFile(t, fsys, "/root/a.keep", 10, old)
	writeFile(t, fsys, "/root/photos/b.jpg", 10, old)
	writeFile(t, fsys, "/root/c.tmp", 10, old)

	opts := testOpts()
	opts.Exclude = []string{"*.keep", "photos/*"}
	got := apply(t, fsys, opts, "/root", now, 1<<20)
	assert.Equal(t, []string{"/root/c.tmp"}, got)
}

func TestApplySkipsReservedPaths(t *testing.T) {
	fsys := afero.NewMemMapFs()
	old := now.Add(-365 * 24 * time.Hour)
	writeFile(t, fsys, "/home/me/.local/share/sweeper/summary_file.json", 10, old)
	writeFile(t, fsys, "/home/me/.local/share/sweeper/summary_file.json.lock", 0, old)
	writeFile(t, fsys, "/home/me/.local/share/Trash/files/old.zip", 10, old)
	writeFile(t, fsys, "/home/me/.local/share/Trash/info/old.zip.trashinfo", 10, old)
	writeFile(t, fsys, "/home/me/.local/share/Trashcan.txt", 10, old)
	writeFile(t, fsys, "/home/me/notes.txt", 10, old)

	opts := testOpts()
	opts.ReservedPaths = []string{
		"/home/me/.local/share/sweeper/summary_file.json",
		"/home/me/.local/share/sweeper/summary_file.json.lock",
		"/home/me/.local/share/Trash",
		"",
	}
	got := apply(t, fsys, opts, "/home/me", now, 1<<20)
	assert.Equal(t, []string{"/home/me/.local/share/Trashcan.txt", "/home/me/notes.txt"}, got)
}

func TestApplyRestatsCandidates(t *testing.T) {
	fsys := afero.NewMemMapFs()
	old := now.Add(-365 * 24 * time.Hour)
	writeFile(t, fsys, "/root/grown.bin", 10, old)
	writeFile(t, fsys, "/root/touched.bin", 10, old)
	writeFile(t, fsys, "/root/gone.bin", 10, old)
	writeFile(t, fsys, "/root/stable.bin", 10, old)

	seq, err := scan.New(fsys).Scan("/root", "")
	require.NoError(t, err)
	files, errs := scan.Collect(seq)
	require.Empty(t, errs)
	require.Len(t, files, 4)

	// Metadata changes between scan and filter.
	require.NoError(t, afero.WriteFile(fsys, "/root/grown.bin", make([]byte, 5000), 0o644))
	require.NoError(t, fsys.Chtimes("/root/grown.bin", old, old))
	require.NoError(t, fsys.Chtimes("/root/touched.bin", now, now))
	require.NoError(t, fsys.Remove("/root/gone.bin"))

	replay := func(yield func(scan.FileHandle, error) bool) {
		for _, f := range files {
			if !yield(f, nil) {
				return
			}
		}
	}

	out := New(fsys, testOpts()).Apply("/root", replay, now.Add(-time.Hour), 1000)
	require.Len(t, out, 1)
	assert.Equal(t, "/root/stable.bin", out[0].Path)
}

func TestApplyLogsAndSkipsScanErrors(t *testing.T) {
	var buf bytes.Buffer
	opts := testOpts()
	opts.Logger = slog.New(slog.NewTextHandler(&buf, nil))

	fsys := afero.NewMemMapFs()
	old := now.Add(-365 * 24 * time.Hour)
	writeFile(t, fsys, "/root/ok.txt", 1, old)

	seq := func(yield func(scan.FileHandle, error) bool) {
		if !yield(scan.FileHandle{}, assert.AnError) {
			return
		}
		yield(scan.FileHandle{Path: "/root/ok.txt", Name: "ok.txt"}, nil)
	}

	out := New(fsys, opts).Apply("/root", seq, now, 100)
	require.Len(t, out, 1)
	assert.Contains(t, buf.String(), "skipping unreadable path")
}

func TestReserved(t *testing.T) {
	f := New(afero.NewMemMapFs(), testOpts())
	assert.True(t, f.Reserved("deleted_files.log"))
	assert.True(t, f.Reserved("Archive_Junk/x"))
	assert.True(t, f.Reserved(filepath.Join("a", "Archive_Junk", "b", "c")))
	assert.False(t, f.Reserved("Archive_Junk"))
	assert.False(t, f.Reserved("Archive_Junk_old/x"))
}

func TestCutoff(t *testing.T) {
	c := Criteria{MinAge: 48 * time.Hour}
	assert.Equal(t, now.Add(-48*time.Hour), c.Cutoff(now))
}
