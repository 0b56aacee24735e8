// Package config holds process-level settings for memoization: where disk
// storages live, which mode a function gets when none is asked for, and how
// verbose logging is. Settings come from defaults, an optional YAML file and
// MEMO_* environment variables, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/on-the-ground/memo_ive_go/shared/logging"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	// DiskRoot is the global root of disk storages.
	DiskRoot string `yaml:"disk_root"`
	// DefaultMode is the storage mode of functions memoized without one.
	DefaultMode string `yaml:"default_mode"`
	// LogLevel is a zap level name: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// MaxEntries bounds each storage of the bounded in-memory mode.
	MaxEntries int64 `yaml:"max_entries"`
	// Roots overrides DiskRoot per function, keyed by FuncID string.
	Roots map[string]string `yaml:"roots"`
}

const (
	defaultMode     = "memory"
	defaultLogLevel = "info"
	defaultMaxSize  = 100_000
	defaultDirName  = "memo_ive_go"
)

// Default returns the built-in settings. The disk root is placed under the
// user cache directory, or the temp directory when there is none.
func Default() Config {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return Config{
		DiskRoot:    filepath.Join(base, defaultDirName),
		DefaultMode: defaultMode,
		LogLevel:    defaultLogLevel,
		MaxEntries:  defaultMaxSize,
		Roots:       map[string]string{},
	}
}

// Load reads a YAML file over the defaults. Fields missing from the file
// keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := cfg.merge(path); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// FromEnv overlays the MEMO_* environment variables on base. When
// MEMO_CONFIG names a file, it is merged first and the other variables win
// over it.
func FromEnv(base Config) (Config, error) {
	cfg := base.clone()
	if path, ok := os.LookupEnv(EnvConfigFile); ok && path != "" {
		if err := cfg.merge(path); err != nil {
			return Config{}, err
		}
	}
	if v, ok := os.LookupEnv(EnvDiskRoot); ok && v != "" {
		cfg.DiskRoot = v
	}
	if v, ok := os.LookupEnv(EnvDefaultMode); ok && v != "" {
		cfg.DefaultMode = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvMaxEntries); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvMaxEntries, err)
		}
		cfg.MaxEntries = n
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.DiskRoot == "" {
		return fmt.Errorf("%w: disk_root is empty", ErrInvalidConfig)
	}
	if c.DefaultMode == "" {
		return fmt.Errorf("%w: default_mode is empty", ErrInvalidConfig)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.MaxEntries <= 0 {
		return fmt.Errorf("%w: max_entries must be positive", ErrInvalidConfig)
	}
	for fn, root := range c.Roots {
		if root == "" {
			return fmt.Errorf("%w: empty root for %s", ErrInvalidConfig, fn)
		}
	}
	return nil
}

// Logger builds a console logger at the configured level.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return logging.NewConsole(level), nil
}

func (c *Config) merge(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	if file.DiskRoot != "" {
		c.DiskRoot = file.DiskRoot
	}
	if file.DefaultMode != "" {
		c.DefaultMode = file.DefaultMode
	}
	if file.LogLevel != "" {
		c.LogLevel = file.LogLevel
	}
	if file.MaxEntries != 0 {
		c.MaxEntries = file.MaxEntries
	}
	for fn, root := range file.Roots {
		c.Roots[fn] = root
	}
	return nil
}

func (c Config) clone() Config {
	out := c
	out.Roots = make(map[string]string, len(c.Roots))
	for k, v := range c.Roots {
		out.Roots[k] = v
	}
	return out
}
