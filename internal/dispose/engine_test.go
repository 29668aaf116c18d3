package dispose

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"github.com/mattjoyce/sweeper/internal/dispose/mocks"
	"github.com/mattjoyce/sweeper/internal/scan"
)

func quietLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func put(t *testing.T, fsys afero.Fs, path, content string) scan.FileHandle {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o644))
	return scan.FileHandle{Path: path, Name: filepath.Base(path), Size: int64(len(content))}
}

func read(t *testing.T, fsys afero.Fs, path string) string {
	t.Helper()
	b, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	return string(b)
}

func TestCollisionName(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want string
	}{
		{"a.txt", 0, "a.txt"},
		{"a.txt", 1, "a_1.txt"},
		{"a.txt", 12, "a_12.txt"},
		{"README", 1, "README_1"},
		{"a.tar.gz", 1, "a.tar_1.gz"},
		{".bashrc", 2, "_2.bashrc"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.name, tt.n), func(t *testing.T) {
			assert.Equal(t, tt.want, CollisionName(tt.name, tt.n))
		})
	}
}

func TestArchiveCollisionWithinRun(t *testing.T) {
	fsys := afero.NewMemMapFs()
	first := put(t, fsys, "/root/x/a.txt", "from x")
	second := put(t, fsys, "/root/y/a.txt", "from y")
	logger, _ := quietLogger()

	e := New(fsys, nil, Options{ArchiveDir: "Archive_Junk", Logger: logger})
	outcomes := e.Dispose("/root", []scan.FileHandle{first, second}, Archive)

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		require.NoError(t, o.Err)
	}
	assert.Equal(t, "/root/Archive_Junk/a.txt", outcomes[0].Destination)
	assert.Equal(t, "/root/Archive_Junk/a_1.txt", outcomes[1].Destination)
	assert.Equal(t, "from x", read(t, fsys, "/root/Archive_Junk/a.txt"))
	assert.Equal(t, "from y", read(t, fsys, "/root/Archive_Junk/a_1.txt"))

	for _, src := range []string{first.Path, second.Path} {
		_, err := fsys.Stat(src)
		assert.True(t, errors.Is(err, fs.ErrNotExist), "source %s should be gone", src)
	}
}

func TestArchiveNeverOverwritesExisting(t *testing.T) {
	fsys := afero.NewMemMapFs()
	put(t, fsys, "/root/Archive_Junk/report.pdf", "old")
	put(t, fsys, "/root/Archive_Junk/report_1.pdf", "older")
	fh := put(t, fsys, "/root/report.pdf", "new")
	logger, _ := quietLogger()

	outcomes := New(fsys, nil, Options{ArchiveDir: "Archive_Junk", Logger: logger}).Dispose("/root", []scan.FileHandle{fh}, Archive)

	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, "/root/Archive_Junk/report_2.pdf", outcomes[0].Destination)
	assert.Equal(t, "old", read(t, fsys, "/root/Archive_Junk/report.pdf"))
	assert.Equal(t, "older", read(t, fsys, "/root/Archive_Junk/report_1.pdf"))
	assert.Equal(t, "new", read(t, fsys, "/root/Archive_Junk/report_2.pdf"))
	assert.EqualValues(t, 3, outcomes[0].Size)
}

// renameFailFs fails renames of one source path.
type renameFailFs struct {
	afero.Fs
	failSrc string
}

func (f *renameFailFs) Rename(oldname, newname string) error {
	if oldname == f.failSrc {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: fs.ErrPermission}
	}
	return f.Fs.Rename(oldname, newname)
}

func TestArchiveFailureIsIsolated(t *testing.T) {
	base := afero.NewMemMapFs()
	ok1 := put(t, base, "/root/one.txt", "1")
	bad := put(t, base, "/root/two.txt", "22")
	ok2 := put(t, base, "/root/three.txt", "333")
	fsys := &renameFailFs{Fs: base, failSrc: bad.Path}
	logger, buf := quietLogger()

	outcomes := New(fsys, nil, Options{ArchiveDir: "Archive_Junk", Logger: logger}).Dispose("/root", []scan.FileHandle{ok1, bad, ok2}, Archive)

	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0].Err)
	assert.NoError(t, outcomes[2].Err)

	var derr *DisposalError
	require.True(t, errors.As(outcomes[1].Err, &derr))
	assert.Equal(t, "archive", derr.Op)
	assert.Equal(t, bad.Path, derr.Path)
	assert.True(t, errors.Is(outcomes[1].Err, fs.ErrPermission))

	// The placeholder is gone and the source is untouched.
	_, err := base.Stat("/root/Archive_Junk/two.txt")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Equal(t, "22", read(t, base, bad.Path))

	count, total := Totals(outcomes)
	assert.Equal(t, 2, count)
	assert.EqualValues(t, 4, total)
	assert.Contains(t, buf.String(), "disposal failed")
}

func TestArchiveFolderUnavailable(t *testing.T) {
	base := afero.NewMemMapFs()
	fh := put(t, base, "/root/a.txt", "a")
	logger, _ := quietLogger()

	outcomes := New(afero.NewReadOnlyFs(base), nil, Options{ArchiveDir: "Archive_Junk", Logger: logger}).Dispose("/root", []scan.FileHandle{fh}, Archive)

	require.Len(t, outcomes, 1)
	var derr *DisposalError
	require.True(t, errors.As(outcomes[0].Err, &derr))
	assert.Equal(t, "create archive folder", derr.Op)
}

func TestConcurrentArchiveReservesDistinctNames(t *testing.T) {
	root := t.TempDir()
	fsys := afero.NewOsFs()
	logger, _ := quietLogger()

	const runs = 4
	const perRun = 10
	batches := make([][]scan.FileHandle, runs)
	for r := range runs {
		for i := range perRun {
			p := filepath.Join(root, fmt.Sprintf("src%d", r), fmt.Sprintf("n%d", i), "same.txt")
			batches[r] = append(batches[r], put(t, fsys, p, fmt.Sprintf("%d-%d", r, i)))
		}
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([][]Outcome, runs)
	for r := range runs {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			<-start
			e := New(fsys, nil, Options{ArchiveDir: "Archive_Junk", Logger: logger})
			results[r] = e.Dispose(root, batches[r], Archive)
		}(r)
	}
	close(start)
	wg.Wait()

	seen := map[string]bool{}
	for _, outcomes := range results {
		for _, o := range outcomes {
			require.NoError(t, o.Err)
			require.False(t, seen[o.Destination], "destination %s reused", o.Destination)
			seen[o.Destination] = true
		}
	}

	entries, err := os.ReadDir(filepath.Join(root, "Archive_Junk"))
	require.NoError(t, err)
	assert.Len(t, entries, runs*perRun)

	contents := make([]string, 0, len(entries))
	for _, entry := range entries {
		b, err := os.ReadFile(filepath.Join(root, "Archive_Junk", entry.Name()))
		require.NoError(t, err)
		contents = append(contents, string(b))
	}
	sort.Strings(contents)
	for i := 1; i < len(contents); i++ {
		assert.NotEqual(t, contents[i-1], contents[i], "an archived file was overwritten")
	}
}

func TestDeletePartialFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fsys := afero.NewMemMapFs()
	a := put(t, fsys, "/root/a.log", "aaaa")
	b := put(t, fsys, "/root/b.log", "bb")
	c := put(t, fsys, "/root/c.log", "c")

	trasher := mocks.NewMockTrasher(ctrl)
	gomock.InOrder(
		trasher.EXPECT().Trash(a.Path).Return("/trash/a.log", nil),
		trasher.EXPECT().Trash(b.Path).Return("", fs.ErrNotExist),
		trasher.EXPECT().Trash(c.Path).Return("/trash/c.log", nil),
	)
	logger, buf := quietLogger()

	outcomes := New(fsys, trasher, Options{Logger: logger}).Dispose("/root", []scan.FileHandle{a, b, c}, Delete)

	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].OK())
	assert.False(t, outcomes[1].OK())
	assert.True(t, outcomes[2].OK())
	assert.Equal(t, "/trash/a.log", outcomes[0].Destination)

	count, total := Totals(outcomes)
	assert.Equal(t, 2, count)
	assert.EqualValues(t, 5, total)

	ok := Succeeded(outcomes)
	require.Len(t, ok, 2)
	assert.Equal(t, "a.log", ok[0].Name)
	assert.Equal(t, "c.log", ok[1].Name)
	assert.Contains(t, buf.String(), b.Path)
}

func TestDeleteSkipsVanishedFile(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fsys := afero.NewMemMapFs()
	gone := put(t, fsys, "/root/gone.log", "x")
	require.NoError(t, fsys.Remove(gone.Path))

	// No Trash call is expected for a file that no longer exists.
	trasher := mocks.NewMockTrasher(ctrl)
	logger, _ := quietLogger()

	outcomes := New(fsys, trasher, Options{Logger: logger}).Dispose("/root", []scan.FileHandle{gone}, Delete)
	require.Len(t, outcomes, 1)

	var derr *DisposalError
	require.True(t, errors.As(outcomes[0].Err, &derr))
	assert.Equal(t, "stat", derr.Op)
	assert.True(t, errors.Is(outcomes[0].Err, fs.ErrNotExist))
}

func TestDeleteWithoutTrasher(t *testing.T) {
	fsys := afero.NewMemMapFs()
	fh := put(t, fsys, "/root/a.log", "x")
	logger, _ := quietLogger()

	outcomes := New(fsys, nil, Options{Logger: logger}).Dispose("/root", []scan.FileHandle{fh}, Delete)
	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0].Err)
}

func TestDigestComputedBeforeMove(t *testing.T) {
	fsys := afero.NewMemMapFs()
	fh := put(t, fsys, "/root/data.bin", "payload")
	logger, _ := quietLogger()

	outcomes := New(fsys, nil, Options{ArchiveDir: "Archive_Junk", Digest: true, Logger: logger}).Dispose("/root", []scan.FileHandle{fh}, Archive)
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)

	sum := blake3.Sum256([]byte("payload"))
	assert.Equal(t, hex.EncodeToString(sum[:]), outcomes[0].Digest)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("archive")
	require.NoError(t, err)
	assert.Equal(t, Archive, m)
	assert.Equal(t, "archived", m.String())
	assert.Equal(t, "Archived", m.Label())

	m, err = ParseMode("Delete")
	require.NoError(t, err)
	assert.Equal(t, Delete, m)
	assert.Equal(t, "deleted", m.String())
	assert.Equal(t, "Deleted", m.Label())

	_, err = ParseMode("shred")
	assert.Error(t, err)
}
