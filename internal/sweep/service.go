// Package sweep runs the scan, filter, dispose, audit and summary pipeline.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/mattjoyce/sweeper/internal/audit"
	"github.com/mattjoyce/sweeper/internal/config"
	"github.com/mattjoyce/sweeper/internal/dispose"
	"github.com/mattjoyce/sweeper/internal/filter"
	"github.com/mattjoyce/sweeper/internal/log"
	"github.com/mattjoyce/sweeper/internal/metrics"
	"github.com/mattjoyce/sweeper/internal/scan"
	"github.com/mattjoyce/sweeper/internal/summary"
)

// Options wires a Service. Zero values fall back to the OS filesystem and
// the stock folder and log names.
type Options struct {
	FS      afero.Fs
	Trasher dispose.Trasher
	Store   summary.Store

	ArchiveDir string
	AuditFile  string
	Digest     bool

	Metrics         *metrics.Recorder
	MetricsTextfile string

	// ReservedPaths are extra files or directories a run must never
	// select, such as the operator log. The store's files, the trash and
	// the metrics textfile are reserved automatically.
	ReservedPaths []string

	Logger *slog.Logger
	Now    func() time.Time
}

// Service exposes the sweep operations. It holds no per-run state, so one
// Service may serve runs against different roots.
type Service struct {
	fs         afero.Fs
	trasher    dispose.Trasher
	store      summary.Store
	archiveDir string
	auditFile  string
	digest     bool
	metrics    *metrics.Recorder
	textfile   string
	reserved   []string
	logger     *slog.Logger
	now        func() time.Time
	newRunID   func() string
}

func New(opts Options) *Service {
	s := &Service{
		fs:         opts.FS,
		trasher:    opts.Trasher,
		store:      opts.Store,
		archiveDir: opts.ArchiveDir,
		auditFile:  opts.AuditFile,
		digest:     opts.Digest,
		metrics:    opts.Metrics,
		textfile:   opts.MetricsTextfile,
		logger:     opts.Logger,
		now:        opts.Now,
		newRunID:   uuid.NewString,
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.archiveDir == "" {
		s.archiveDir = config.DefaultArchiveDir
	}
	if s.auditFile == "" {
		s.auditFile = config.DefaultAuditFile
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.reserved = ownedPaths(opts)
	return s
}

// ownedPaths collects every path sweeper itself writes outside a root.
func ownedPaths(opts Options) []string {
	paths := append([]string{}, opts.ReservedPaths...)
	if fo, ok := opts.Store.(summary.FileOwner); ok {
		paths = append(paths, fo.Files()...)
	}
	if d, ok := opts.Trasher.(interface{ Dir() string }); ok {
		paths = append(paths, d.Dir())
	}
	if opts.MetricsTextfile != "" {
		paths = append(paths, opts.MetricsTextfile)
	}
	return paths
}

// Preview runs the scan and filter only. Nothing is moved or recorded.
func (s *Service) Preview(ctx context.Context, root string, c filter.Criteria) (Preview, error) {
	if err := ctx.Err(); err != nil {
		return Preview{}, err
	}
	root = filepath.Clean(root)

	files, err := s.selectFiles(root, c, s.componentLogger("sweep"))
	if err != nil {
		return Preview{}, err
	}

	p := Preview{Root: root, Files: make([]string, 0, len(files)), Count: len(files)}
	for _, f := range files {
		p.Files = append(p.Files, f.Path)
	}
	return p, nil
}

// Clean disposes of every selected file and records the successes. The
// context is honoured before the run starts; once files move, bookkeeping
// runs to completion. Failures to record come back as *PersistenceError
// next to a fully populated RunResult.
func (s *Service) Clean(ctx context.Context, root string, c filter.Criteria, mode dispose.Mode) (RunResult, error) {
	if err := ctx.Err(); err != nil {
		return RunResult{}, err
	}
	root = filepath.Clean(root)
	runID := s.newRunID()
	logger := s.runLogger(runID)
	started := s.now()

	files, err := s.selectFiles(root, c, logger)
	if err != nil {
		return RunResult{}, err
	}
	logger.Info("sweep started", "root", root, "mode", mode.String(), "candidates", len(files))

	engine := dispose.New(s.fs, s.trasher, dispose.Options{
		ArchiveDir: s.archiveDir,
		Digest:     s.digest,
		Logger:     logger,
	})
	outcomes := engine.Dispose(root, files, mode)

	count, bytes := dispose.Totals(outcomes)
	result := RunResult{RunID: runID, Mode: mode.String(), Count: count, Bytes: bytes, Root: root}
	for _, o := range outcomes {
		if !o.OK() {
			result.Failed = append(result.Failed, Failure{Path: o.Path, Error: o.Err.Error()})
		}
	}

	pctx := context.WithoutCancel(ctx)
	var errs []error
	var total *summary.Record
	if count > 0 {
		if err := s.writeAudit(root, dispose.Succeeded(outcomes), mode.Label()); err != nil {
			errs = append(errs, &PersistenceError{Op: "audit", Err: err})
		}
		rec, err := s.addSummary(pctx, result)
		if err != nil {
			errs = append(errs, &PersistenceError{Op: "summary", Err: err})
		}
		if !rec.IsZero() {
			total = &rec
		}
	}

	s.recordMetrics(pctx, logger, result, s.now().Sub(started), total)

	logger.Info("sweep finished",
		"root", root,
		"mode", result.Mode,
		"count", result.Count,
		"bytes", result.Bytes,
		"failed", len(result.Failed),
	)
	return result, errors.Join(errs...)
}

// ListArchive lists the regular files directly inside the root's quarantine
// folder, sorted by path.
func (s *Service) ListArchive(root string) (ArchiveListing, error) {
	root = filepath.Clean(root)
	dir := filepath.Join(root, s.archiveDir)
	listing := ArchiveListing{Root: root, Files: []string{}}

	entries, err := afero.ReadDir(s.fs, dir)
	if errors.Is(err, fs.ErrNotExist) {
		listing.Message = MessageArchiveNotFound
		return listing, nil
	}
	if err != nil {
		return ArchiveListing{}, fmt.Errorf("list archive folder: %w", err)
	}

	listing.Found = true
	for _, e := range entries {
		if e.Mode().IsRegular() {
			listing.Files = append(listing.Files, filepath.Join(dir, e.Name()))
		}
	}
	listing.Count = len(listing.Files)
	return listing, nil
}

// ReadAuditLog returns the root's audit log in full.
func (s *Service) ReadAuditLog(root string) (AuditLog, error) {
	root = filepath.Clean(root)
	lines, found, err := audit.ReadLines(s.fs, root, s.auditFile)
	if err != nil {
		return AuditLog{}, err
	}
	out := AuditLog{Root: root, Lines: lines, Count: len(lines), Found: found}
	if !found {
		out.Message = MessageLogNotFound
	}
	return out, nil
}

// ReadSummary returns the cumulative record, zero when nothing was recorded.
func (s *Service) ReadSummary(ctx context.Context) (summary.Record, error) {
	if s.store == nil {
		return summary.Record{}, errors.New("no summary store configured")
	}
	return s.store.Load(ctx)
}

// RecentRuns returns the run history when the store keeps one.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]summary.Run, bool, error) {
	rr, ok := s.store.(summary.RunRecorder)
	if !ok {
		return nil, false, nil
	}
	runs, err := rr.Runs(ctx, limit)
	return runs, true, err
}

// Close releases the summary store.
func (s *Service) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

func (s *Service) selectFiles(root string, c filter.Criteria, logger *slog.Logger) ([]scan.FileHandle, error) {
	seq, err := scan.New(s.fs).Scan(root, c.Extension)
	if err != nil {
		return nil, err
	}
	f := filter.New(s.fs, filter.Options{
		ArchiveDir:    s.archiveDir,
		AuditFile:     s.auditFile,
		Exclude:       c.Exclude,
		ReservedPaths: s.reserved,
		Logger:        logger,
	})
	return f.Apply(root, seq, c.Cutoff(s.now()), c.MaxSize), nil
}

func (s *Service) writeAudit(root string, outcomes []dispose.Outcome, label string) error {
	l, err := audit.Open(s.fs, root, s.auditFile)
	if err != nil {
		return err
	}
	var errs []error
	for _, o := range outcomes {
		if err := l.Record(o, label); err != nil {
			errs = append(errs, err)
			break
		}
	}
	if err := l.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close audit log: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Service) addSummary(ctx context.Context, r RunResult) (summary.Record, error) {
	if s.store == nil {
		return summary.Record{}, errors.New("no summary store configured")
	}
	total, err := s.store.Add(ctx, summary.Record{TotalSize: r.Bytes, TotalFiles: int64(r.Count)})
	if err != nil {
		return summary.Record{}, err
	}
	if rr, ok := s.store.(summary.RunRecorder); ok {
		run := summary.Run{ID: r.RunID, Root: r.Root, Mode: r.Mode, Files: int64(r.Count), Bytes: r.Bytes, RecordedAt: s.now()}
		if err := rr.RecordRun(ctx, run); err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Service) recordMetrics(ctx context.Context, logger *slog.Logger, r RunResult, took time.Duration, total *summary.Record) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordRun(metrics.Run{
		Mode:     r.Mode,
		Files:    r.Count,
		Bytes:    r.Bytes,
		Failed:   len(r.Failed),
		Duration: took,
		Finished: s.now(),
	})
	if total == nil && s.store != nil {
		if rec, err := s.store.Load(ctx); err == nil {
			total = &rec
		}
	}
	if total != nil {
		s.metrics.SetSummary(total.TotalSize, total.TotalFiles)
	}
	if s.textfile == "" {
		return
	}
	if err := s.metrics.WriteTextfile(s.textfile); err != nil {
		logger.Warn("failed to write metrics textfile", "path", s.textfile, "error", err)
	}
}

func (s *Service) componentLogger(name string) *slog.Logger {
	if s.logger != nil {
		return s.logger.With(slog.String("component", name))
	}
	return log.WithComponent(name)
}

func (s *Service) runLogger(id string) *slog.Logger {
	if s.logger != nil {
		return s.logger.With(slog.String("component", "sweep"), slog.String("run_id", id))
	}
	return log.WithRun(id).With(slog.String("component", "sweep"))
}
