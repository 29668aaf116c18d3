package doctor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/sweeper/internal/config"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "downloads")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := config.Defaults()
	cfg.Summary.Path = filepath.Join(dir, "state", "summary_file.json")
	cfg.Schedules = []config.ScheduleConfig{{
		Name:    "nightly",
		Cron:    "@daily",
		Root:    root,
		Mode:    "archive",
		MinAge:  config.DefaultMinAge,
		MaxSize: config.DefaultMaxSize,
	}}
	return cfg
}

func newDoctor(cfg *config.Config) *Doctor {
	d := New(cfg)
	d.fsCheck = func(context.Context, string) error { return nil }
	return d
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := newDoctor(validConfig(t)).Validate(context.Background())
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_SharedReservedName(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Audit.FileName = cfg.Archive.DirName
	r := newDoctor(cfg).Validate(context.Background())
	if r.Valid {
		t.Fatal("expected invalid config")
	}
	assertHasError(t, r, "names", "share the name")
}

func TestValidate_ZeroMaxSize(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Sweep.MaxSize = 0
	r := newDoctor(cfg).Validate(context.Background())
	assertHasError(t, r, "sweep", "no file would ever be selected")
}

func TestValidate_WarnShortMinAge(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Sweep.MinAge = config.Duration(10 * time.Minute)
	r := newDoctor(cfg).Validate(context.Background())
	if !r.Valid {
		t.Fatalf("short min_age should only warn, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "sweep", "last hour")
}

func TestValidate_WarnEmptyExclude(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Sweep.Exclude = []string{"*.keep", " "}
	r := newDoctor(cfg).Validate(context.Background())
	assertHasWarning(t, r, "sweep", "empty exclude pattern")
}

func TestValidate_SQLiteNetworkFilesystemWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Summary.Backend = config.BackendSQLite

	d := New(cfg)
	var checked string
	d.fsCheck = func(_ context.Context, path string) error {
		checked = path
		return errors.New(`summary database is on network filesystem "nfs4"`)
	}

	r := d.Validate(context.Background())
	if checked != cfg.Summary.Path {
		t.Fatalf("filesystem check ran on %q, want %q", checked, cfg.Summary.Path)
	}
	assertHasWarning(t, r, "summary", "network filesystem")
}

func TestValidate_JSONBackendSkipsFilesystemCheck(t *testing.T) {
	t.Parallel()
	d := New(validConfig(t))
	d.fsCheck = func(context.Context, string) error {
		t.Error("filesystem check should not run for the json backend")
		return nil
	}
	d.Validate(context.Background())
}

func TestValidate_UnwritableSummaryDir(t *testing.T) {
	t.Parallel()
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	cfg := validConfig(t)
	locked := filepath.Join(t.TempDir(), "locked")
	if err := os.Mkdir(locked, 0o555); err != nil {
		t.Fatal(err)
	}
	cfg.Summary.Path = filepath.Join(locked, "summary_file.json")

	r := newDoctor(cfg).Validate(context.Background())
	assertHasError(t, r, "summary", "not writable")
}

func TestValidate_WarnMissingRoot(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Schedules[0].Root = filepath.Join(t.TempDir(), "absent")
	r := newDoctor(cfg).Validate(context.Background())
	if !r.Valid {
		t.Fatalf("missing root should only warn, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "schedule", "does not exist")
}

func TestValidate_RootIsFile(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	file := filepath.Join(t.TempDir(), "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Schedules[0].Root = file
	r := newDoctor(cfg).Validate(context.Background())
	assertHasError(t, r, "schedule", "not a directory")
}

func TestValidate_WarnSummaryInsideRoot(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Summary.Path = filepath.Join(cfg.Schedules[0].Root, "summary_file.json")
	r := newDoctor(cfg).Validate(context.Background())
	assertHasWarning(t, r, "schedule", "may be swept")
}

func TestValidate_WarnAggressiveDeleteSchedule(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Schedules[0].Mode = "delete"
	cfg.Schedules[0].MinAge = config.Duration(24 * time.Hour)
	r := newDoctor(cfg).Validate(context.Background())
	assertHasWarning(t, r, "schedule", "deletes files of every type")
}

func TestValidate_WarnUnresolvedEnvVar(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Trash.Dir = "${SWEEPER_DOCTOR_UNSET}/Trash"
	r := newDoctor(cfg).Validate(context.Background())
	assertHasWarning(t, r, "env_vars", "SWEEPER_DOCTOR_UNSET")
}

func TestValidate_WarnMissingMetricsDir(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "missing", "sweeper.prom")
	r := newDoctor(cfg).Validate(context.Background())
	assertHasWarning(t, r, "metrics", "does not exist")
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:  false,
		Errors: []Issue{{Category: "test", Message: "bad thing"}},
	}
	out, err := FormatJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "bad thing") {
		t.Fatalf("expected JSON to contain error message, got: %s", out)
	}
}

func TestFormatHuman_Valid(t *testing.T) {
	t.Parallel()
	r := &Result{Valid: true}
	out := FormatHuman(r)
	if !strings.Contains(out, "valid") {
		t.Fatalf("expected 'valid' in output, got: %s", out)
	}
}

func TestFormatHuman_Errors(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:    false,
		Errors:   []Issue{{Category: "test", Field: "x.y", Message: "broken"}},
		Warnings: []Issue{{Category: "test", Message: "odd"}},
	}
	out := FormatHuman(r)
	if !strings.Contains(out, "ERROR") || !strings.Contains(out, "broken") {
		t.Fatalf("expected error in output, got: %s", out)
	}
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "odd") {
		t.Fatalf("expected warning in output, got: %s", out)
	}
}

// --- helpers ---

func assertHasError(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && strings.Contains(e.Message, substring) {
			return
		}
	}
	t.Fatalf("expected error with category=%q containing %q, got: %v", category, substring, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && strings.Contains(w.Message, substring) {
			return
		}
	}
	t.Fatalf("expected warning with category=%q containing %q, got: %v", category, substring, r.Warnings)
}
