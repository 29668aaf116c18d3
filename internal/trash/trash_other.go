//go:build !darwin

package trash

import (
	"os"
	"path/filepath"
)

const writesInfo = true

// DefaultDir returns the freedesktop.org Home trash, $XDG_DATA_HOME/Trash.
func DefaultDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "Trash")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "Trash")
	}
	return filepath.Join(home, ".local", "share", "Trash")
}
