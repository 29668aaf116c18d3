// Package doctor validates a sweeper configuration beyond what loading
// enforces: conflicting names, unreachable roots and risky storage.
package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mattjoyce/sweeper/internal/config"
	"github.com/mattjoyce/sweeper/internal/storage"
	"github.com/mattjoyce/sweeper/internal/sweep"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg     *config.Config
	fsCheck func(context.Context, string) error
}

// New creates a Doctor for cfg.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, fsCheck: storage.CheckLocalFilesystem}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	d.validateNames(r)
	d.validateSweep(r)
	d.validateSummary(ctx, r)
	d.validateSchedules(r)
	d.warnUnresolvedEnvVars(r)
	d.warnMissingDirs(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateNames checks the reserved per-root names.
func (d *Doctor) validateNames(r *Result) {
	archive, auditFile := d.cfg.Archive.DirName, d.cfg.Audit.FileName
	if archive == "" {
		d.addError(r, "names", "archive.dir_name", "archive.dir_name is required")
	}
	if auditFile == "" {
		d.addError(r, "names", "audit.file_name", "audit.file_name is required")
	}
	if archive != "" && archive == auditFile {
		d.addError(r, "names", "audit.file_name",
			fmt.Sprintf("audit log and archive folder share the name %q", archive))
	}
}

// validateSweep checks the default selection criteria.
func (d *Doctor) validateSweep(r *Result) {
	s := d.cfg.Sweep
	if s.MaxSize <= 0 {
		d.addError(r, "sweep", "sweep.max_size", "max_size must be positive; no file would ever be selected")
	}
	if s.MinAge.Std() < time.Hour {
		d.addWarning(r, "sweep", "sweep.min_age",
			fmt.Sprintf("min_age %s selects files modified within the last hour", s.MinAge))
	}
	for i, p := range s.Exclude {
		if strings.TrimSpace(p) == "" {
			d.addWarning(r, "sweep", fmt.Sprintf("sweep.exclude[%d]", i), "empty exclude pattern has no effect")
		}
	}
}

// validateSummary checks that the summary record can be kept reliably.
func (d *Doctor) validateSummary(ctx context.Context, r *Result) {
	path := d.cfg.Summary.Path
	if path == "" {
		d.addError(r, "summary", "summary.path", "summary.path is required")
		return
	}
	if !filepath.IsAbs(path) {
		d.addWarning(r, "summary", "summary.path",
			fmt.Sprintf("summary.path %q is relative; the record will move with the working directory", path))
	}

	if d.cfg.Summary.Backend == config.BackendSQLite && d.fsCheck != nil {
		if err := d.fsCheck(ctx, path); err != nil {
			d.addWarning(r, "summary", "summary.path", err.Error())
		}
	}

	if dir, ok := nearestExistingDir(filepath.Dir(path)); ok {
		if err := unix.Access(dir, unix.W_OK); err != nil {
			d.addError(r, "summary", "summary.path",
				fmt.Sprintf("summary directory %q is not writable: %v", dir, err))
		}
	}
}

// validateSchedules checks roots and flags risky unattended deletes.
func (d *Doctor) validateSchedules(r *Result) {
	summaryPath, _ := filepath.Abs(d.cfg.Summary.Path)

	for i, sc := range d.cfg.Schedules {
		field := fmt.Sprintf("schedules[%d]", i)

		root, err := sweep.ResolveRoot(sc.Root)
		if err != nil {
			d.addError(r, "schedule", field+".root", err.Error())
			continue
		}
		info, err := os.Stat(root)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			d.addWarning(r, "schedule", field+".root",
				fmt.Sprintf("root %q does not exist; the schedule will fail until it is created", root))
		case err != nil:
			d.addWarning(r, "schedule", field+".root", fmt.Sprintf("cannot stat root %q: %v", root, err))
		case !info.IsDir():
			d.addError(r, "schedule", field+".root", fmt.Sprintf("root %q is not a directory", root))
		}

		if summaryPath != "" && isWithin(summaryPath, root) {
			d.addWarning(r, "schedule", field+".root",
				fmt.Sprintf("summary record %q lies inside root %q and may be swept", summaryPath, root))
		}

		if strings.EqualFold(sc.Mode, "delete") && sc.Extension == "" && sc.MinAge.Std() < 7*24*time.Hour {
			d.addWarning(r, "schedule", field,
				fmt.Sprintf("schedule %q deletes files of every type idle for only %s", sc.Name, sc.MinAge))
		}
	}
}

// warnUnresolvedEnvVars warns about ${VAR} references left after loading.
func (d *Doctor) warnUnresolvedEnvVars(r *Result) {
	envVarRe := regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

	fields := map[string]string{
		"log.file":         d.cfg.Log.File,
		"trash.dir":        d.cfg.Trash.Dir,
		"metrics.textfile": d.cfg.Metrics.Textfile,
	}
	for i, sc := range d.cfg.Schedules {
		fields[fmt.Sprintf("schedules[%d].root", i)] = sc.Root
	}

	for field, value := range fields {
		for _, m := range envVarRe.FindAllStringSubmatch(value, -1) {
			d.addWarning(r, "env_vars", field, fmt.Sprintf("environment variable ${%s} not set", m[1]))
		}
	}
}

// warnMissingDirs flags output locations whose parent does not exist yet.
func (d *Doctor) warnMissingDirs(r *Result) {
	if p := d.cfg.Metrics.Textfile; p != "" {
		if _, err := os.Stat(filepath.Dir(p)); err != nil {
			d.addWarning(r, "metrics", "metrics.textfile",
				fmt.Sprintf("directory %q does not exist; it will be created on first write", filepath.Dir(p)))
		}
	}
	if dir := d.cfg.Trash.Dir; dir != "" && !filepath.IsAbs(dir) {
		d.addWarning(r, "trash", "trash.dir", fmt.Sprintf("trash.dir %q is relative", dir))
	}
}

func nearestExistingDir(path string) (string, bool) {
	candidate := filepath.Clean(path)
	for {
		if info, err := os.Stat(candidate); err == nil {
			return candidate, info.IsDir()
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", false
		}
		candidate = parent
	}
}

func isWithin(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}
	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
