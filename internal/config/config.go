// Copyright 2025 The Tideflow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads process-wide settings: where workflows, run
// logs, and backups live on disk, and the default timeout/retry/
// retention knobs the workflow engine falls back to when a definition
// doesn't override them.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	tferrors "github.com/tideflow/tideflow/pkg/errors"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: TIDEFLOW_LOG_LEVEL, falls back to LOG_LEVEL.
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: TIDEFLOW_LOG_FORMAT, falls back to LOG_FORMAT.
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	AddSource bool `yaml:"add_source"`
}

// RetentionConfig controls how long journal and backup history is kept.
type RetentionConfig struct {
	// RunDays is how many days of run-journal files to keep. Files older
	// than this are removed by the periodic cleanup sweep.
	RunDays int `yaml:"run_days,omitempty"`

	// MaxBackupsPerWorkflow is how many timestamped snapshots the backup
	// manager keeps per workflow before pruning the oldest.
	MaxBackupsPerWorkflow int `yaml:"max_backups_per_workflow,omitempty"`
}

// Config is the complete set of process-wide settings.
type Config struct {
	// BaseDir is the root directory for this tideflow instance: its
	// secrets/ and .env live here, and it's the value surfaced to
	// workflows as the run context's base_dir built-in.
	BaseDir string `yaml:"base_dir,omitempty"`

	// WorkflowsDir is where workflow definition YAML files live.
	WorkflowsDir string `yaml:"workflows_dir,omitempty"`

	// RunsDir is where the run journal's JSONL files live.
	RunsDir string `yaml:"runs_dir,omitempty"`

	// BackupsDir is where workflow definition snapshots live.
	BackupsDir string `yaml:"backups_dir,omitempty"`

	// Timezone names the IANA location used to render today/yesterday/
	// tomorrow in the run context. Empty means the host's local zone.
	Timezone string `yaml:"timezone,omitempty"`

	// DefaultStepTimeout is loaded and validated with the rest of the
	// config. The executor does not read it: steps without their own
	// timeout use the executor's built-in 300 s limit.
	DefaultStepTimeout time.Duration `yaml:"default_step_timeout,omitempty"`

	// DefaultRetryMaxAttempts, DefaultRetryDelay, and DefaultRetryBackoff
	// are loaded and validated with the rest of the config. The workflow
	// package does not read them: steps without their own retry policy
	// use ApplyRetryDefaults' built-in values.
	DefaultRetryMaxAttempts int     `yaml:"default_retry_max_attempts,omitempty"`
	DefaultRetryDelay       float64 `yaml:"default_retry_delay,omitempty"`
	DefaultRetryBackoff     float64 `yaml:"default_retry_backoff,omitempty"`

	// MaxSubworkflowDepth is loaded and validated with the rest of the
	// config. The subworkflow action does not read it: its depth limit
	// is the step's max_depth param, or a built-in 5.
	MaxSubworkflowDepth int `yaml:"max_subworkflow_depth,omitempty"`

	Log       LogConfig       `yaml:"log"`
	Retention RetentionConfig `yaml:"retention"`
}

// Default returns a Config with the engine's built-in defaults, rooted
// under the platform's conventional config directory.
func Default() *Config {
	baseDir := defaultBaseDir()

	return &Config{
		BaseDir:                 baseDir,
		WorkflowsDir:            filepath.Join(baseDir, "workflows"),
		RunsDir:                 filepath.Join(baseDir, "runs"),
		BackupsDir:              filepath.Join(baseDir, "backups"),
		Timezone:                "",
		DefaultStepTimeout:      300 * time.Second,
		DefaultRetryMaxAttempts: 2,
		DefaultRetryDelay:       1.0,
		DefaultRetryBackoff:     2.0,
		MaxSubworkflowDepth:     5,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Retention: RetentionConfig{
			RunDays:               30,
			MaxBackupsPerWorkflow: 10,
		},
	}
}

// Load builds a Config by layering environment variables and, if
// configPath names a readable file, its contents, over Default. An
// empty configPath that doesn't resolve to an existing file is not an
// error: the defaults (plus env overrides) are used as-is.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		if dir, err := ConfigDir(); err == nil {
			candidate := filepath.Join(dir, "config.yaml")
			if _, statErr := os.Stat(candidate); statErr == nil {
				configPath = candidate
			}
		}
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &tferrors.ConfigError{Key: "config_file", Reason: fmt.Sprintf("failed to load %s", configPath), Cause: err}
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &tferrors.ConfigError{Key: "validation", Reason: "configuration validation failed", Cause: err}
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config YAML: %w", err)
	}
	return nil
}

// loadFromEnv overrides fields set via environment variables, taking
// precedence over both defaults and file contents.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("TIDEFLOW_BASE_DIR"); val != "" {
		c.BaseDir = val
	}
	if val := os.Getenv("TIDEFLOW_WORKFLOWS_DIR"); val != "" {
		c.WorkflowsDir = val
	}
	if val := os.Getenv("TIDEFLOW_RUNS_DIR"); val != "" {
		c.RunsDir = val
	}
	if val := os.Getenv("TIDEFLOW_BACKUPS_DIR"); val != "" {
		c.BackupsDir = val
	}
	if val := os.Getenv("TIDEFLOW_TIMEZONE"); val != "" {
		c.Timezone = val
	}
	if val := os.Getenv("TIDEFLOW_DEFAULT_STEP_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.DefaultStepTimeout = d
		}
	}
	if val := os.Getenv("TIDEFLOW_MAX_SUBWORKFLOW_DEPTH"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.MaxSubworkflowDepth = n
		}
	}
	if val := os.Getenv("TIDEFLOW_RUN_RETENTION_DAYS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Retention.RunDays = n
		}
	}
	if val := os.Getenv("TIDEFLOW_MAX_BACKUPS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Retention.MaxBackupsPerWorkflow = n
		}
	}

	if val := os.Getenv("TIDEFLOW_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	} else if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("TIDEFLOW_LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	} else if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var errs []string

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, warning, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("timezone %q is not a recognized IANA location: %v", c.Timezone, err))
		}
	}

	if c.DefaultStepTimeout <= 0 {
		errs = append(errs, "default_step_timeout must be positive")
	}
	if c.DefaultRetryMaxAttempts < 1 {
		errs = append(errs, "default_retry_max_attempts must be at least 1")
	}
	if c.MaxSubworkflowDepth < 1 {
		errs = append(errs, "max_subworkflow_depth must be at least 1")
	}
	if c.Retention.RunDays < 1 {
		errs = append(errs, "retention.run_days must be at least 1")
	}
	if c.Retention.MaxBackupsPerWorkflow < 1 {
		errs = append(errs, "retention.max_backups_per_workflow must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

// Location returns the *time.Location the run context should render
// today/yesterday/tomorrow in: Timezone if set, else the local zone.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ConfigDir returns the XDG config directory for tideflow
// (~/.config/tideflow, respecting XDG_CONFIG_HOME), creating it if
// necessary.
func ConfigDir() (string, error) {
	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}

	dir := filepath.Join(base, "tideflow")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// defaultBaseDir returns the default data directory for workflow
// definitions, run logs, and backups: $XDG_DATA_HOME/tideflow if set,
// else ~/.tideflow.
func defaultBaseDir() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "tideflow")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		if runtime.GOOS == "windows" {
			return filepath.Join(os.TempDir(), "tideflow")
		}
		return "/tmp/tideflow"
	}
	return filepath.Join(home, ".tideflow")
}
