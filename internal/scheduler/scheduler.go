// Package scheduler runs configured sweeps on cron expressions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mattjoyce/sweeper/internal/config"
	"github.com/mattjoyce/sweeper/internal/dispose"
	"github.com/mattjoyce/sweeper/internal/filter"
	"github.com/mattjoyce/sweeper/internal/sweep"
)

// Job is one recurring sweep.
type Job struct {
	Name     string
	Spec     string
	Root     string
	Mode     dispose.Mode
	Criteria filter.Criteria
}

// Entry describes a registered job and its next activation.
type Entry struct {
	Name string    `json:"name"`
	Spec string    `json:"cron"`
	Root string    `json:"root"`
	Mode string    `json:"mode"`
	Next time.Time `json:"next"`
}

// Scheduler owns a cron runner whose entries call a Cleaner.
type Scheduler struct {
	cron    *cron.Cron
	cleaner Cleaner
	logger  *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	jobs    map[string]Job
	entries map[string]cron.EntryID
}

// JobsFromConfig converts the schedules section into jobs, resolving each
// root the same way the command line does.
func JobsFromConfig(cfg *config.Config) ([]Job, error) {
	jobs := make([]Job, 0, len(cfg.Schedules))
	for _, sc := range cfg.Schedules {
		mode, err := dispose.ParseMode(sc.Mode)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", sc.Name, err)
		}
		root, err := sweep.ResolveRoot(sc.Root)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", sc.Name, err)
		}
		jobs = append(jobs, Job{
			Name: sc.Name,
			Spec: sc.Cron,
			Root: root,
			Mode: mode,
			Criteria: filter.Criteria{
				Extension: sc.Extension,
				MinAge:    sc.MinAge.Std(),
				MaxSize:   int64(sc.MaxSize),
				Exclude:   sc.Exclude,
			},
		})
	}
	return jobs, nil
}

// New registers jobs on a cron runner. A job still running when its next
// activation arrives is skipped rather than stacked.
func New(cleaner Cleaner, jobs []Job, logger *slog.Logger) (*Scheduler, error) {
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger: logger}

	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(config.CronParser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		cleaner: cleaner,
		logger:  logger,
		ctx:     context.Background(),
		jobs:    make(map[string]Job, len(jobs)),
		entries: make(map[string]cron.EntryID, len(jobs)),
	}

	for _, job := range jobs {
		if _, dup := s.jobs[job.Name]; dup {
			return nil, fmt.Errorf("duplicate schedule name %q", job.Name)
		}
		id, err := s.cron.AddFunc(job.Spec, func() { _, _ = s.run(job) })
		if err != nil {
			return nil, fmt.Errorf("schedule %q: invalid cron %q: %w", job.Name, job.Spec, err)
		}
		s.jobs[job.Name] = job
		s.entries[job.Name] = id
	}
	return s, nil
}

// Start begins firing jobs. Runs use ctx; cancelling it stops new runs from
// starting but lets a run in progress finish its bookkeeping.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.logger.Info("Starting scheduler", "jobs", len(s.jobs))
	s.cron.Start()
}

// Stop stops the runner and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunNow runs the named job immediately, outside the cron cadence.
func (s *Scheduler) RunNow(ctx context.Context, name string) (sweep.RunResult, error) {
	job, ok := s.jobs[name]
	if !ok {
		return sweep.RunResult{}, fmt.Errorf("unknown schedule %q", name)
	}
	return s.runWith(ctx, job)
}

// Entries lists registered jobs sorted by name.
func (s *Scheduler) Entries() []Entry {
	out := make([]Entry, 0, len(s.jobs))
	for name, job := range s.jobs {
		out = append(out, Entry{
			Name: name,
			Spec: job.Spec,
			Root: job.Root,
			Mode: job.Mode.String(),
			Next: s.cron.Entry(s.entries[name]).Next,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) run(job Job) (sweep.RunResult, error) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	return s.runWith(ctx, job)
}

func (s *Scheduler) runWith(ctx context.Context, job Job) (sweep.RunResult, error) {
	logger := s.logger.With("schedule", job.Name, "root", job.Root)
	logger.Debug("Scheduled sweep starting", "mode", job.Mode.String())

	res, err := s.cleaner.Clean(ctx, job.Root, job.Criteria, job.Mode)
	var perr *sweep.PersistenceError
	switch {
	case err == nil:
		logger.Info("Scheduled sweep completed", "run_id", res.RunID, "count", res.Count, "bytes", res.Bytes, "failed", len(res.Failed))
	case errors.As(err, &perr):
		logger.Error("Scheduled sweep bookkeeping failed", "run_id", res.RunID, "count", res.Count, "error", err)
	case errors.Is(err, context.Canceled):
		logger.Warn("Scheduled sweep skipped, scheduler stopping")
	default:
		logger.Error("Scheduled sweep failed", "error", err)
	}
	return res, err
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
