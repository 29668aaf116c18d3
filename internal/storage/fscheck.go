package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
)

var networkFilesystems = map[string]struct{}{
	"afpfs":      {},
	"cifs":       {},
	"fuse.sshfs": {},
	"nfs":        {},
	"nfs4":       {},
	"smb2":       {},
	"smb3":       {},
	"smbfs":      {},
	"webdav":     {},
}

// CheckLocalFilesystem returns an error when path, or its nearest existing
// parent, is on a network filesystem where SQLite locking is unreliable.
func CheckLocalFilesystem(ctx context.Context, path string) error {
	return checkLocalFilesystemWithDetector(ctx, path, FilesystemType)
}

func checkLocalFilesystemWithDetector(ctx context.Context, path string, detector func(context.Context, string) (string, error)) error {
	if path == "" {
		return fmt.Errorf("sqlite path is empty")
	}

	inspectPath, err := nearestExistingPath(path)
	if err != nil {
		return fmt.Errorf("resolve database path %q: %w", path, err)
	}

	fsType, err := detector(ctx, inspectPath)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", inspectPath, err)
	}

	if IsNetworkFilesystem(fsType) {
		return fmt.Errorf(
			"summary database %q is on network filesystem %q; SQLite requires a local filesystem for reliable locking. Set summary.path to a local file or use summary.backend: json",
			path,
			fsType,
		)
	}
	return nil
}

// FilesystemType returns the type of the mounted filesystem containing path,
// chosen by the longest matching mount point.
func FilesystemType(ctx context.Context, path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	parts, err := disk.PartitionsWithContext(ctx, true)
	if err != nil && len(parts) == 0 {
		return "", fmt.Errorf("list partitions: %w", err)
	}

	best, fsType := "", ""
	for _, p := range parts {
		if !within(absPath, p.Mountpoint) {
			continue
		}
		if len(p.Mountpoint) > len(best) {
			best, fsType = p.Mountpoint, p.Fstype
		}
	}
	if best == "" {
		return "", fmt.Errorf("no mount point contains %q", absPath)
	}
	return fsType, nil
}

func within(path, mount string) bool {
	if mount == "/" {
		return strings.HasPrefix(path, "/")
	}
	return path == mount || strings.HasPrefix(path, mount+string(filepath.Separator))
}

func nearestExistingPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	candidate := absPath
	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}

		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", absPath)
		}
		candidate = parent
	}
}

// IsNetworkFilesystem reports whether fsType names a network filesystem.
func IsNetworkFilesystem(fsType string) bool {
	normalized := strings.TrimSpace(strings.ToLower(fsType))
	_, found := networkFilesystems[normalized]
	return found
}
