//go:build darwin

package trash

import (
	"os"
	"path/filepath"
)

// Finder does not read .trashinfo records.
const writesInfo = false

// DefaultDir returns ~/.Trash.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".Trash")
	}
	return filepath.Join(home, ".Trash")
}
