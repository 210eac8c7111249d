// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads vthread command configuration from YAML files and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the vthread command configuration.
type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
	Stress    StressConfig    `yaml:"stress"`
}

// SchedulerConfig configures the carrier pool.
type SchedulerConfig struct {
	// Name prefixes carrier names.
	Name string `yaml:"name"`

	// Parallelism is the number of carriers. Zero selects GOMAXPROCS.
	Parallelism int `yaml:"parallelism"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level is a zap level name: "debug", "info", "warn", or "error".
	Level string `yaml:"level"`

	// Development selects zap's development encoder.
	Development bool `yaml:"development"`
}

// StressConfig sizes the stress workloads.
type StressConfig struct {
	Threads    int `yaml:"threads"`
	Iterations int `yaml:"iterations"`
}

// Environment variables that override file settings.
const (
	EnvSchedulerName = "VTHREAD_SCHEDULER_NAME"
	EnvParallelism   = "VTHREAD_PARALLELISM"
	EnvLogLevel      = "VTHREAD_LOG_LEVEL"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{Name: "vthread"},
		Logging:   LoggingConfig{Level: "info"},
		Stress:    StressConfig{Threads: 100, Iterations: 1000},
	}
}

// Load returns the defaults, overlaid with path when it is not empty, then
// with environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		cfg, err = LoadFromFile(path)
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvSchedulerName); v != "" {
		c.Scheduler.Name = v
	}
	if v := os.Getenv(EnvParallelism); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvParallelism, err)
		}
		c.Scheduler.Parallelism = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Scheduler.Name == "" {
		errs = append(errs, errors.New("scheduler.name must not be empty"))
	}
	if c.Scheduler.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("scheduler.parallelism must be non-negative, got %d", c.Scheduler.Parallelism))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.Stress.Threads < 1 {
		errs = append(errs, fmt.Errorf("stress.threads must be positive, got %d", c.Stress.Threads))
	}
	if c.Stress.Iterations < 1 {
		errs = append(errs, fmt.Errorf("stress.iterations must be positive, got %d", c.Stress.Iterations))
	}
	return errors.Join(errs...)
}

// Level parses the logging level.
func (c *Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return lvl, fmt.Errorf("logging.level: %w", err)
	}
	return lvl, nil
}
