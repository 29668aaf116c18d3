package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckLocalFilesystemWithDetector_AllowsLocalFS(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "summary.db")
	err := checkLocalFilesystemWithDetector(context.Background(), dbPath, func(context.Context, string) (string, error) {
		return "ext4", nil
	})
	if err != nil {
		t.Fatalf("expected local filesystem to pass, got: %v", err)
	}
}

func TestCheckLocalFilesystemWithDetector_RejectsNetworkFS(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "summary.db")
	err := checkLocalFilesystemWithDetector(context.Background(), dbPath, func(context.Context, string) (string, error) {
		return "nfs4", nil
	})
	if err == nil {
		t.Fatal("expected network filesystem validation error")
	}

	msg := err.Error()
	for _, want := range []string{"nfs4", "SQLite requires a local filesystem", "summary.backend: json"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected error to contain %q, got %q", want, msg)
		}
	}
}

func TestCheckLocalFilesystemWithDetector_UsesNearestExistingPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dbPath := filepath.Join(root, "nested", "dir", "summary.db")

	var inspectedPath string
	err := checkLocalFilesystemWithDetector(context.Background(), dbPath, func(_ context.Context, path string) (string, error) {
		inspectedPath = path
		return "apfs", nil
	})
	if err != nil {
		t.Fatalf("expected local filesystem to pass, got: %v", err)
	}

	if inspectedPath != root {
		t.Fatalf("expected detector to inspect nearest existing path %q, got %q", root, inspectedPath)
	}
}

func TestIsNetworkFilesystem(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fs   string
		want bool
	}{
		{name: "nfs", fs: "nfs", want: true},
		{name: "smbfs uppercase", fs: "SMBFS", want: true},
		{name: "sshfs", fs: "fuse.sshfs", want: true},
		{name: "local apfs", fs: "apfs", want: false},
		{name: "local ext4", fs: "ext4", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := IsNetworkFilesystem(tc.fs)
			if got != tc.want {
				t.Fatalf("IsNetworkFilesystem(%q)=%v, want %v", tc.fs, got, tc.want)
			}
		})
	}
}

func TestWithin(t *testing.T) {
	cases := []struct {
		path, mount string
		want        bool
	}{
		{"/home/me/x", "/", true},
		{"/home/me/x", "/home", true},
		{"/home", "/home", true},
		{"/homework/x", "/home", false},
	}
	for _, tc := range cases {
		if got := within(tc.path, tc.mount); got != tc.want {
			t.Errorf("within(%q, %q)=%v, want %v", tc.path, tc.mount, got, tc.want)
		}
	}
}
