package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/sweeper/internal/config"
	"github.com/mattjoyce/sweeper/internal/filter"
	"github.com/mattjoyce/sweeper/internal/log"
	"github.com/mattjoyce/sweeper/internal/metrics"
	"github.com/mattjoyce/sweeper/internal/storage"
	"github.com/mattjoyce/sweeper/internal/summary"
	"github.com/mattjoyce/sweeper/internal/sweep"
	"github.com/mattjoyce/sweeper/internal/trash"
)

// app carries global flag values and the lazily loaded config shared by
// every subcommand.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	jsonOut    bool

	cfg *config.Config
	out *printer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, out: newPrinter(stdout)}

	cmd := &cobra.Command{
		Use:   "sweeper",
		Short: "Archive or trash stale files under a directory",
		Long: `sweeper finds files under a root that are older and smaller than a
threshold, then moves them into a per-root Archive_Junk folder or the
user's trash. Every disposal is appended to the root's audit log and
added to a cumulative summary.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Path to config file or directory")
	pf.BoolVar(&a.jsonOut, "json", false, "Emit JSON instead of text")

	cmd.AddCommand(
		a.newPreviewCmd(),
		a.newCleanCmd(),
		a.newArchiveCmd(),
		a.newLogsCmd(),
		a.newSummaryCmd(),
		a.newStatusCmd(),
		a.newScheduleCmd(),
		a.newConfigCmd(),
		a.newVersionCmd(),
	)
	return cmd
}

// config loads the configuration once and sets up logging from it.
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.LoadOrDefault(a.configPath)
	if err != nil {
		return nil, err
	}
	log.Setup(log.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	log.Debug("configuration loaded", "source", cfg.SourceFile, "summary_backend", cfg.Summary.Backend)
	a.cfg = cfg
	return cfg, nil
}

// service builds a sweep.Service. The summary store is only opened when
// withStore is set so read-only commands never create it.
func (a *app) service(ctx context.Context, cfg *config.Config, withStore bool) (*sweep.Service, error) {
	opts := sweep.Options{
		Trasher:       trash.NewHome(nil, cfg.Trash.Dir),
		ArchiveDir:    cfg.Archive.DirName,
		AuditFile:     cfg.Audit.FileName,
		Digest:        cfg.Audit.Digest,
		ReservedPaths: ownedPaths(cfg),
	}
	if withStore {
		store, err := openStore(ctx, cfg.Summary)
		if err != nil {
			return nil, err
		}
		opts.Store = store
	}
	if cfg.Metrics.Textfile != "" {
		opts.Metrics = metrics.NewRecorder()
		opts.MetricsTextfile = cfg.Metrics.Textfile
	}
	return sweep.New(opts), nil
}

// ownedPaths lists sweeper's own files so preview and clean agree on them
// whether or not the summary store is open.
func ownedPaths(cfg *config.Config) []string {
	p := cfg.Summary.Path
	return []string{config.DataDir(), cfg.Log.File, p, p + ".lock", p + "-wal", p + "-shm", p + "-journal"}
}

func openStore(ctx context.Context, sc config.SummaryConfig) (summary.Store, error) {
	switch sc.Backend {
	case config.BackendSQLite:
		if err := storage.CheckLocalFilesystem(ctx, sc.Path); err != nil {
			log.Warn("summary database may be unreliable", "path", sc.Path, "error", err)
		}
		store, err := summary.OpenSQLiteStore(ctx, sc.Path)
		if err != nil {
			return nil, fmt.Errorf("open summary database: %w", err)
		}
		return store, nil
	default:
		return summary.NewJSONStore(sc.Path), nil
	}
}

// criteriaFlags holds the selection overrides shared by preview and clean.
type criteriaFlags struct {
	ext     string
	minAge  string
	maxSize string
	exclude []string
}

func (f *criteriaFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.ext, "ext", "e", "", "Only consider files with this extension")
	fl.StringVar(&f.minAge, "min-age", "", "Minimum age since last modification (e.g. 30d, 2w, 12h)")
	fl.StringVar(&f.maxSize, "max-size", "", "Files must be smaller than this (e.g. 100MB)")
	fl.StringSliceVar(&f.exclude, "exclude", nil, "Wildcard pattern to keep (repeatable)")
}

// resolve merges flag overrides onto the configured sweep defaults.
func (f *criteriaFlags) resolve(cmd *cobra.Command, cfg *config.Config) (filter.Criteria, error) {
	c := filter.Criteria{
		Extension: cfg.Sweep.Extension,
		MinAge:    cfg.Sweep.MinAge.Std(),
		MaxSize:   int64(cfg.Sweep.MaxSize),
		Exclude:   cfg.Sweep.Exclude,
	}
	fl := cmd.Flags()
	if fl.Changed("ext") {
		c.Extension = f.ext
	}
	if fl.Changed("min-age") {
		d, err := config.ParseDuration(f.minAge)
		if err != nil {
			return filter.Criteria{}, fmt.Errorf("--min-age: %w", err)
		}
		c.MinAge = d
	}
	if fl.Changed("max-size") {
		n, err := config.ParseSize(f.maxSize)
		if err != nil {
			return filter.Criteria{}, fmt.Errorf("--max-size: %w", err)
		}
		c.MaxSize = n
	}
	if fl.Changed("exclude") {
		c.Exclude = append(append([]string{}, c.Exclude...), f.exclude...)
	}
	return c, nil
}

func rootArg(args []string) (string, error) {
	in := ""
	if len(args) > 0 {
		in = args[0]
	}
	return sweep.ResolveRoot(in)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
