package sweep

import "fmt"

// Preview lists what a clean with the same criteria would dispose of.
type Preview struct {
	Root  string   `json:"root"`
	Files []string `json:"files"`
	Count int      `json:"count"`
}

// RunResult summarizes one clean.
type RunResult struct {
	RunID string `json:"run_id"`
	// Mode is "archived" or "deleted".
	Mode string `json:"status"`
	// Count is the number of files actually disposed of.
	Count  int       `json:"count"`
	Bytes  int64     `json:"bytes"`
	Root   string    `json:"path"`
	Failed []Failure `json:"failed,omitempty"`
}

// Failure names a file the run could not dispose of.
type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// ArchiveListing is the content of a root's quarantine folder.
type ArchiveListing struct {
	Root    string   `json:"root"`
	Files   []string `json:"files"`
	Count   int      `json:"count"`
	Found   bool     `json:"found"`
	Message string   `json:"message,omitempty"`
}

// AuditLog is the content of a root's audit log.
type AuditLog struct {
	Root    string   `json:"root"`
	Lines   []string `json:"logs"`
	Count   int      `json:"count"`
	Found   bool     `json:"found"`
	Message string   `json:"message,omitempty"`
}

const (
	MessageArchiveNotFound = "Archive folder not found"
	MessageLogNotFound     = "Log file not found"
)

// PersistenceError reports bookkeeping that failed after files were already
// disposed of. The disposal itself is not rolled back.
type PersistenceError struct {
	Op  string // audit, summary
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s update failed after disposal: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
