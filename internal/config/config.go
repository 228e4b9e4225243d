// Package config handles loading, saving, and resolving the refcheck
// configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.yaml.in/yaml/v3"

	"github.com/skaphos/refcheck/internal/model"
	"github.com/skaphos/refcheck/internal/vcs"
)

const (
	// LocalConfigFilename is the per-repository refcheck config file.
	LocalConfigFilename = ".refcheck.yaml"
	// ConfigAPIVersion is the current config schema apiVersion.
	ConfigAPIVersion = "skaphos.io/refcheck/v1beta1"
	// ConfigKind is the current config schema kind.
	ConfigKind = "RefCheckConfig"
	// EnvConfig overrides the config file or directory location.
	EnvConfig = "REFCHECK_CONFIG"
)

// Config represents the refcheck configuration. Command-line flags override
// individual fields.
type Config struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	// Remotes are the candidate remote names, checked in order.
	Remotes []string `yaml:"remotes"`
	// Categories selects ref kinds: branches, tags, stashes.
	Categories []string `yaml:"categories"`
	Mode       string   `yaml:"mode"`
	// Limit caps refs evaluated per category; zero means unbounded.
	Limit          int    `yaml:"limit"`
	Retries        int    `yaml:"retries"`
	RetryDelayMS   int    `yaml:"retry_delay_ms"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	OnUnreachable  string `yaml:"on_unreachable"`
	Backend        string `yaml:"backend"`
	// Exclude holds doublestar globs of branch and tag names to ignore.
	Exclude []string `yaml:"exclude"`
}

// DefaultConfig returns a Config with sensible defaults applied.
func DefaultConfig() Config {
	return Config{
		APIVersion:     ConfigAPIVersion,
		Kind:           ConfigKind,
		Remotes:        []string{"upstream", "origin"},
		Categories:     []string{"branches", "tags", "stashes"},
		Mode:           string(model.ModeExact),
		Retries:        2,
		RetryDelayMS:   500,
		TimeoutSeconds: 60,
		OnUnreachable:  string(model.UnreachableSkip),
		Backend:        vcs.BackendGit,
		Exclude:        []string{},
	}
}

// Source names the rule that selected a config file.
type Source string

const (
	SourceFlag       Source = "--config"
	SourceEnv        Source = EnvConfig
	SourceRepository Source = "repository"
	SourceDirectory  Source = "directory"
	SourceUser       Source = "user config"
)

// Location is a resolved config file path.
type Location struct {
	Path   string
	Source Source
}

// UserConfigPath returns os.UserConfigDir()/refcheck/config.yaml.
func UserConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "refcheck", "config.yaml"), nil
}

// Locate resolves the config file for a run in dir. root is the
// repository top-level containing dir, or empty outside a repository.
// Order: override, REFCHECK_CONFIG, the nearest .refcheck.yaml from dir
// upward, then the user config file. The file need not exist.
func Locate(override, dir, root string) (Location, error) {
	if loc, ok := explicitLocation(override); ok {
		return loc, nil
	}
	dir, err := orWorkingDir(dir)
	if err != nil {
		return Location{}, err
	}
	found, err := FindNearestConfigPath(dir)
	if err != nil {
		return Location{}, err
	}
	if found != "" {
		source := SourceDirectory
		if root != "" && within(filepath.Dir(found), root) {
			source = SourceRepository
		}
		return Location{Path: found, Source: source}, nil
	}
	path, err := UserConfigPath()
	if err != nil {
		return Location{}, err
	}
	return Location{Path: path, Source: SourceUser}, nil
}

// InitLocation resolves where "refcheck config init" writes: override,
// REFCHECK_CONFIG, else .refcheck.yaml at the repository top-level, or in
// dir outside a repository.
func InitLocation(override, dir, root string) (Location, error) {
	if loc, ok := explicitLocation(override); ok {
		return loc, nil
	}
	if root != "" {
		return Location{Path: filepath.Join(root, LocalConfigFilename), Source: SourceRepository}, nil
	}
	dir, err := orWorkingDir(dir)
	if err != nil {
		return Location{}, err
	}
	return Location{Path: filepath.Join(dir, LocalConfigFilename), Source: SourceDirectory}, nil
}

// FindNearestConfigPath searches dir and each parent for .refcheck.yaml.
// It returns an empty string when there is none.
func FindNearestConfigPath(dir string) (string, error) {
	for {
		candidate := filepath.Join(dir, LocalConfigFilename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// explicitLocation applies the override and REFCHECK_CONFIG. Either may
// name a file or a directory holding config.yaml.
func explicitLocation(override string) (Location, bool) {
	value, source := override, SourceFlag
	if value == "" {
		value, source = os.Getenv(EnvConfig), SourceEnv
	}
	if value == "" {
		return Location{}, false
	}
	if !isConfigFilePath(value) {
		value = filepath.Join(value, "config.yaml")
	}
	return Location{Path: value, Source: source}, true
}

func orWorkingDir(dir string) (string, error) {
	if strings.TrimSpace(dir) != "" {
		return dir, nil
	}
	return os.Getwd()
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Load reads the config file from the given path. Unset fields keep their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigGVK(&cfg)
	if err := validateConfigGVK(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadOrDefault loads path, falling back to DefaultConfig when the file
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		def := DefaultConfig()
		return &def, nil
	}
	return nil, err
}

// Save writes the config to the given path.
func Save(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	applyConfigGVK(cfg)
	if err := validateConfigGVK(cfg); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks enumerated values and numeric ranges.
func (c *Config) Validate() error {
	if _, err := c.Kinds(); err != nil {
		return err
	}
	if _, err := model.ParseMode(c.Mode); err != nil {
		return err
	}
	if _, err := model.ParseUnreachablePolicy(c.OnUnreachable); err != nil {
		return err
	}
	if _, err := vcs.ParseBackend(c.Backend); err != nil {
		return err
	}
	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	switch {
	case c.Limit < 0:
		return fmt.Errorf("limit must not be negative (got %d)", c.Limit)
	case c.Retries < 0:
		return fmt.Errorf("retries must not be negative (got %d)", c.Retries)
	case c.RetryDelayMS < 0:
		return fmt.Errorf("retry_delay_ms must not be negative (got %d)", c.RetryDelayMS)
	case c.TimeoutSeconds < 0:
		return fmt.Errorf("timeout_seconds must not be negative (got %d)", c.TimeoutSeconds)
	}
	return nil
}

// Kinds parses Categories into ref kinds in report order, without
// duplicates. An empty list selects every kind.
func (c *Config) Kinds() ([]model.RefKind, error) {
	return ParseCategories(c.Categories)
}

// ParseCategories parses category names into ref kinds ordered as
// model.AllKinds. An empty list selects every kind.
func ParseCategories(values []string) ([]model.RefKind, error) {
	selected := map[model.RefKind]bool{}
	for _, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		kind, err := model.ParseKind(value)
		if err != nil {
			return nil, err
		}
		selected[kind] = true
	}
	if len(selected) == 0 {
		return append([]model.RefKind(nil), model.AllKinds...), nil
	}
	kinds := make([]model.RefKind, 0, len(selected))
	for _, kind := range model.AllKinds {
		if selected[kind] {
			kinds = append(kinds, kind)
		}
	}
	return kinds, nil
}

// Attempts returns the total number of tries for a remote query.
func (c *Config) Attempts() uint {
	if c.Retries <= 0 {
		return 1
	}
	return uint(c.Retries) + 1
}

// RetryDelay returns the pause between attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// Timeout returns the per-command timeout. Zero disables it.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func isConfigFilePath(path string) bool {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, "config.yaml") || strings.HasSuffix(lower, "config.yml") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func applyConfigGVK(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = ConfigAPIVersion
	}
	if strings.TrimSpace(cfg.Kind) == "" {
		cfg.Kind = ConfigKind
	}
}

func validateConfigGVK(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.APIVersion != ConfigAPIVersion {
		return fmt.Errorf("unsupported config apiVersion %q (expected %q)", cfg.APIVersion, ConfigAPIVersion)
	}
	if cfg.Kind != ConfigKind {
		return fmt.Errorf("unsupported config kind %q (expected %q)", cfg.Kind, ConfigKind)
	}
	return nil
}
