package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// CronParser is the schedule expression dialect accepted in schedules[].cron:
// five standard fields or a descriptor such as "@daily".
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Load reads and parses configuration from a file. A directory is accepted
// and resolved to the config.yaml inside it.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	cfg, set, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourceFile = absPath

	cfg = applyConfigDefaults(cfg, set)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configPath when set, otherwise the first discovered
// config file, otherwise the built-in defaults.
func LoadOrDefault(configPath string) (*Config, error) {
	if configPath != "" {
		return Load(configPath)
	}
	if discovered := Discover(); discovered != "" {
		return Load(discovered)
	}
	return Defaults(), nil
}

// Discover finds a config file by checking standard locations.
// Priority order: $SWEEPER_CONFIG, ~/.config/sweeper/config.yaml,
// /etc/sweeper/config.yaml, ./config.yaml. Returns "" when none exist.
func Discover() string {
	var candidates []string
	if p := os.Getenv("SWEEPER_CONFIG"); p != "" {
		candidates = append(candidates, p)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "sweeper", "config.yaml"))
	}
	candidates = append(candidates, "/etc/sweeper/config.yaml", "./config.yaml")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// criteriaKeys records which selection keys a file spells out, so an
// explicit zero is told apart from an omitted key.
type criteriaKeys struct {
	MinAge  *Duration `yaml:"min_age"`
	MaxSize *Size     `yaml:"max_size"`
}

type explicitKeys struct {
	Sweep     criteriaKeys   `yaml:"sweep"`
	Schedules []criteriaKeys `yaml:"schedules"`
}

func (e *explicitKeys) schedule(i int) criteriaKeys {
	if e == nil || i >= len(e.Schedules) {
		return criteriaKeys{}
	}
	return e.Schedules[i]
}

func loadConfigFile(path string) (*Config, *explicitKeys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := []byte(interpolateEnv(string(data)))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(interpolated))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	var set explicitKeys
	if err := yaml.NewDecoder(bytes.NewReader(interpolated)).Decode(&set); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, &set, nil
}

// applyConfigDefaults fills omitted settings. Criteria keys present in the
// file keep their value even when it is zero.
func applyConfigDefaults(cfg *Config, set *explicitKeys) *Config {
	if set == nil {
		set = &explicitKeys{}
	}
	defaults := Defaults()

	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = defaults.Log.MaxSizeMB
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = defaults.Log.MaxBackups
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = defaults.Log.MaxAgeDays
	}

	if set.Sweep.MinAge == nil {
		cfg.Sweep.MinAge = defaults.Sweep.MinAge
	}
	if set.Sweep.MaxSize == nil {
		cfg.Sweep.MaxSize = defaults.Sweep.MaxSize
	}

	if cfg.Archive.DirName == "" {
		cfg.Archive.DirName = defaults.Archive.DirName
	}
	if cfg.Audit.FileName == "" {
		cfg.Audit.FileName = defaults.Audit.FileName
	}

	if cfg.Summary.Backend == "" {
		cfg.Summary.Backend = defaults.Summary.Backend
	}
	cfg.Summary.Backend = strings.ToLower(cfg.Summary.Backend)
	if cfg.Summary.Path == "" {
		cfg.Summary.Path = DefaultSummaryPath(cfg.Summary.Backend)
	}

	for i := range cfg.Schedules {
		s := &cfg.Schedules[i]
		if s.Name == "" {
			s.Name = fmt.Sprintf("schedule-%d", i+1)
		}
		if s.Mode == "" {
			s.Mode = "archive"
		}
		if s.Extension == "" {
			s.Extension = cfg.Sweep.Extension
		}
		keys := set.schedule(i)
		if keys.MinAge == nil {
			s.MinAge = cfg.Sweep.MinAge
		}
		if keys.MaxSize == nil {
			s.MaxSize = cfg.Sweep.MaxSize
		}
		if s.Exclude == nil {
			s.Exclude = cfg.Sweep.Exclude
		}
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error (got %q)", cfg.Log.Level)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be one of: json, text (got %q)", cfg.Log.Format)
	}

	if err := validateName("archive.dir_name", cfg.Archive.DirName); err != nil {
		return err
	}
	if err := validateName("audit.file_name", cfg.Audit.FileName); err != nil {
		return err
	}

	if cfg.Sweep.MaxSize <= 0 {
		return fmt.Errorf("sweep.max_size must be positive; files must be smaller than it to qualify")
	}

	switch cfg.Summary.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("summary.backend must be one of: json, sqlite (got %q)", cfg.Summary.Backend)
	}
	if envVarPattern.MatchString(cfg.Summary.Path) {
		return fmt.Errorf("summary.path: unresolved environment variable in %q", cfg.Summary.Path)
	}

	names := make(map[string]bool, len(cfg.Schedules))
	for i, s := range cfg.Schedules {
		if names[s.Name] {
			return fmt.Errorf("schedules[%d]: duplicate name %q", i, s.Name)
		}
		names[s.Name] = true
		if s.Cron == "" {
			return fmt.Errorf("schedule %q: cron is required", s.Name)
		}
		if _, err := CronParser.Parse(s.Cron); err != nil {
			return fmt.Errorf("schedule %q: invalid cron %q: %w", s.Name, s.Cron, err)
		}
		if s.Root == "" {
			return fmt.Errorf("schedule %q: root is required", s.Name)
		}
		if s.MaxSize <= 0 {
			return fmt.Errorf("schedule %q: max_size must be positive", s.Name)
		}
		switch strings.ToLower(s.Mode) {
		case "archive", "delete":
		default:
			return fmt.Errorf("schedule %q: mode must be archive or delete (got %q)", s.Name, s.Mode)
		}
	}

	return nil
}

func validateName(field, name string) error {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%s must be a plain file name (got %q)", field, name)
	}
	return nil
}
