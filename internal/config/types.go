package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config represents the complete sweeper configuration.
type Config struct {
	Log       LogConfig        `yaml:"log"`
	Sweep     SweepConfig      `yaml:"sweep"`
	Archive   ArchiveConfig    `yaml:"archive"`
	Audit     AuditConfig      `yaml:"audit"`
	Summary   SummaryConfig    `yaml:"summary"`
	Trash     TrashConfig      `yaml:"trash"`
	Metrics   MetricsConfig    `yaml:"metrics,omitempty"`
	Schedules []ScheduleConfig `yaml:"schedules,omitempty"`

	// SourceFile is the file the config was loaded from, empty for defaults.
	SourceFile string `yaml:"-"`
}

// LogConfig defines operator log settings.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// SweepConfig holds the default selection criteria used when a command
// does not override them.
type SweepConfig struct {
	Extension string   `yaml:"extension"`
	MinAge    Duration `yaml:"min_age"`
	MaxSize   Size     `yaml:"max_size"`
	Exclude   []string `yaml:"exclude,omitempty"`
}

// ArchiveConfig names the per-root quarantine folder.
type ArchiveConfig struct {
	DirName string `yaml:"dir_name"`
}

// AuditConfig names the per-root audit log.
type AuditConfig struct {
	FileName string `yaml:"file_name"`
	// Digest appends a BLAKE3 content digest to every audit line.
	Digest bool `yaml:"digest"`
}

// SummaryConfig selects where the cumulative record lives.
type SummaryConfig struct {
	Backend string `yaml:"backend"` // json, sqlite
	Path    string `yaml:"path"`
}

// TrashConfig overrides the trash location. Empty means the platform default.
type TrashConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// MetricsConfig enables a Prometheus textfile written after each run.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// ScheduleConfig defines one recurring sweep. Zero-valued criteria fall
// back to the sweep section.
type ScheduleConfig struct {
	Name      string   `yaml:"name"`
	Cron      string   `yaml:"cron"`
	Root      string   `yaml:"root"`
	Mode      string   `yaml:"mode"` // archive, delete
	Extension string   `yaml:"extension,omitempty"`
	MinAge    Duration `yaml:"min_age,omitempty"`
	MaxSize   Size     `yaml:"max_size,omitempty"`
	Exclude   []string `yaml:"exclude,omitempty"`
}

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"

	DefaultArchiveDir = "Archive_Junk"
	DefaultAuditFile  = "deleted_files.log"
	DefaultMinAge     = Duration(30 * 24 * time.Hour)
	DefaultMaxSize    = Size(100000 * 1000)
)

// Defaults returns a Config with the stock sweep settings.
func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Sweep: SweepConfig{
			MinAge:  DefaultMinAge,
			MaxSize: DefaultMaxSize,
		},
		Archive: ArchiveConfig{DirName: DefaultArchiveDir},
		Audit:   AuditConfig{FileName: DefaultAuditFile},
		Summary: SummaryConfig{
			Backend: BackendJSON,
			Path:    DefaultSummaryPath(BackendJSON),
		},
	}
}

// DataDir returns the per-user directory holding sweeper's own state.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "sweeper")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "sweeper")
	}
	return filepath.Join(os.TempDir(), "sweeper")
}

// DefaultSummaryPath returns the well-known summary location for backend.
func DefaultSummaryPath(backend string) string {
	if backend == BackendSQLite {
		return filepath.Join(DataDir(), "summary.db")
	}
	return filepath.Join(DataDir(), "summary_file.json")
}

// Duration is a time.Duration that also accepts day and week suffixes in
// YAML ("30d", "2w").
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string {
	td := time.Duration(d)
	if td > 0 && td%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", td/(24*time.Hour))
	}
	return td.String()
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// ParseDuration converts "30d", "2w" or any time.ParseDuration string.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	unit := time.Duration(0)
	switch {
	case strings.HasSuffix(s, "d"):
		unit = 24 * time.Hour
	case strings.HasSuffix(s, "w"):
		unit = 7 * 24 * time.Hour
	}
	if unit > 0 {
		n, err := strconv.ParseFloat(s[:len(s)-1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		if n < 0 {
			return 0, fmt.Errorf("duration must not be negative: %q", s)
		}
		return time.Duration(n * float64(unit)), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative: %q", s)
	}
	return d, nil
}

// Size is a byte count that accepts humanized YAML values ("100MB", "64KiB")
// as well as plain integers.
type Size int64

func (s Size) String() string { return humanize.Bytes(uint64(s)) }

func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseSize(node.Value)
	if err != nil {
		return err
	}
	*s = Size(parsed)
	return nil
}

func (s Size) MarshalYAML() (any, error) {
	return int64(s), nil
}

// ParseSize converts "100MB", "64KiB" or a plain byte count.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("size must not be negative: %q", s)
		}
		return n, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(n), nil
}
