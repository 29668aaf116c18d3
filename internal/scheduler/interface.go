package scheduler

import (
	"context"

	"github.com/mattjoyce/sweeper/internal/dispose"
	"github.com/mattjoyce/sweeper/internal/filter"
	"github.com/mattjoyce/sweeper/internal/sweep"
)

//go:generate mockgen -destination=mocks/mock_cleaner.go -package=mocks github.com/mattjoyce/sweeper/internal/scheduler Cleaner

// Cleaner runs one sweep. *sweep.Service satisfies it.
type Cleaner interface {
	Clean(ctx context.Context, root string, c filter.Criteria, mode dispose.Mode) (sweep.RunResult, error)
}
