// Package summary keeps the cumulative count of bytes and files disposed of
// across every run and every root.
package summary

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/mattjoyce/sweeper/internal/summary Store

// Record is the persisted cumulative total. It never decreases.
type Record struct {
	TotalSize  int64 `json:"total_size"`
	TotalFiles int64 `json:"total_files"`
}

// IsZero reports whether r adds nothing.
func (r Record) IsZero() bool { return r.TotalSize == 0 && r.TotalFiles == 0 }

// Plus returns r increased by d.
func (r Record) Plus(d Record) Record {
	return Record{TotalSize: r.TotalSize + d.TotalSize, TotalFiles: r.TotalFiles + d.TotalFiles}
}

// Store persists the single summary Record.
type Store interface {
	// Load returns the current record, or the zero Record when none was
	// ever written.
	Load(ctx context.Context) (Record, error)
	// Add increases the record by delta and returns the new value. A zero
	// delta leaves the stored record untouched.
	Add(ctx context.Context, delta Record) (Record, error)
	Close() error
}

// Run describes one recorded sweep.
type Run struct {
	ID         string    `json:"id"`
	Root       string    `json:"root"`
	Mode       string    `json:"mode"`
	Files      int64     `json:"files"`
	Bytes      int64     `json:"bytes"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RunRecorder is implemented by stores that also keep a per-run history.
type RunRecorder interface {
	RecordRun(ctx context.Context, run Run) error
	Runs(ctx context.Context, limit int) ([]Run, error)
}

// FileOwner is implemented by stores that keep their data in files. Files
// lists every path the store writes so a sweep never selects them.
type FileOwner interface {
	Files() []string
}
