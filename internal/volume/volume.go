// Package volume reports space usage of the filesystem holding a root.
package volume

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
)

// Usage is a snapshot of one filesystem.
type Usage struct {
	Path        string  `json:"path"`
	Fstype      string  `json:"fstype"`
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
}

// Of returns the usage of the filesystem containing path.
func Of(ctx context.Context, path string) (Usage, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return Usage{}, fmt.Errorf("disk usage of %q: %w", path, err)
	}
	return Usage{
		Path:        u.Path,
		Fstype:      u.Fstype,
		Total:       u.Total,
		Free:        u.Free,
		Used:        u.Used,
		UsedPercent: u.UsedPercent,
	}, nil
}
