package dispose

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects what happens to a filtered file.
type Mode int

const (
	// Archive moves files into the quarantine folder under the root.
	Archive Mode = iota
	// Delete moves files into the recoverable trash.
	Delete
)

// String returns the run label, "archived" or "deleted".
func (m Mode) String() string {
	if m == Delete {
		return "deleted"
	}
	return "archived"
}

// Label returns the operation name written to the audit log.
func (m Mode) Label() string {
	if m == Delete {
		return "Deleted"
	}
	return "Archived"
}

// ParseMode accepts "archive"/"archived" and "delete"/"deleted".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "archive", "archived":
		return Archive, nil
	case "delete", "deleted", "trash":
		return Delete, nil
	default:
		return 0, fmt.Errorf("unknown disposal mode %q", s)
	}
}

// Outcome is the result of disposing one file.
type Outcome struct {
	Name        string
	Path        string
	Destination string
	Size        int64
	Time        time.Time
	// Digest is the hex BLAKE3 of the content, set when digests are enabled.
	Digest string
	Err    error
}

// OK reports whether the file was disposed.
func (o Outcome) OK() bool { return o.Err == nil }

// DisposalError describes why a single file could not be disposed.
type DisposalError struct {
	Path string
	Op   string
	Err  error
}

func (e *DisposalError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DisposalError) Unwrap() error { return e.Err }

// Succeeded returns the successful outcomes in order.
func Succeeded(outcomes []Outcome) []Outcome {
	out := make([]Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Totals sums the count and bytes of the successful outcomes.
func Totals(outcomes []Outcome) (count int, bytes int64) {
	for _, o := range outcomes {
		if o.OK() {
			count++
			bytes += o.Size
		}
	}
	return count, bytes
}
