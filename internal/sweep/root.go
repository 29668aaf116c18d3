package sweep

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveRoot maps user input to an absolute root. Empty input means the
// user's Downloads folder; a relative path is taken relative to the home
// directory. A leading "~/" is expanded.
func ResolveRoot(input string) (string, error) {
	input = strings.TrimSpace(input)
	if filepath.IsAbs(input) {
		return filepath.Clean(input), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	switch {
	case input == "":
		return filepath.Join(home, "Downloads"), nil
	case input == "~":
		return home, nil
	case strings.HasPrefix(input, "~/"):
		return filepath.Join(home, input[2:]), nil
	default:
		return filepath.Join(home, input), nil
	}
}
