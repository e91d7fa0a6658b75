// Package config loads scheduler and front end settings from .sequencer.yaml or .sequencer.hcl.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"
)

// File names looked up by Discover, in order.
var configFileNames = []string{".sequencer.yaml", ".sequencer.yml", ".sequencer.hcl"}

// Temporize controls how long a unit that asked to retry sits out.
type Temporize struct {
	BaseSweeps   int `yaml:"base_sweeps" hcl:"base_sweeps,optional"`
	JitterSweeps int `yaml:"jitter_sweeps" hcl:"jitter_sweeps,optional"`
	MaxAttempts  int `yaml:"max_attempts" hcl:"max_attempts,optional"`
}

// Log selects the level and format of the run log.
type Log struct {
	Level  string `yaml:"level" hcl:"level,optional"`
	Format string `yaml:"format" hcl:"format,optional"`
}

// Config holds everything a run needs besides its input files.
type Config struct {
	Workers       int `yaml:"workers"`
	StallSweeps   int `yaml:"stall_sweeps"`
	QueueCapacity int `yaml:"queue_capacity"`
	// MessageTimeout is how long the run waits on messages only the outside world can post.
	MessageTimeout time.Duration `yaml:"message_timeout"`
	Temporize      Temporize     `yaml:"temporize"`
	Log            Log           `yaml:"log"`
	// Emit requests code generation and linking after analysis.
	Emit bool `yaml:"emit"`
	// CheckAll type checks every parsed declaration instead of only the requested ones.
	CheckAll bool `yaml:"check_all"`
}

// hclConfig mirrors Config for gohcl, which needs pointers to tell absent blocks apart.
type hclConfig struct {
	Workers       *int `hcl:"workers,optional"`
	StallSweeps   *int `hcl:"stall_sweeps,optional"`
	QueueCapacity *int `hcl:"queue_capacity,optional"`
	// MessageTimeout is a duration string such as "30s".
	MessageTimeout *string    `hcl:"message_timeout,optional"`
	Emit           *bool      `hcl:"emit,optional"`
	CheckAll       *bool      `hcl:"check_all,optional"`
	Temporize      *Temporize `hcl:"temporize,block"`
	Log            *Log       `hcl:"log,block"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Workers:        4,
		StallSweeps:    3,
		QueueCapacity:  256,
		MessageTimeout: 30 * time.Second,
		Temporize: Temporize{
			BaseSweeps:   1,
			JitterSweeps: 2,
			MaxAttempts:  8,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.StallSweeps < 1 {
		errs = append(errs, fmt.Errorf("stall_sweeps must be at least 1, got %d", c.StallSweeps))
	}
	if c.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("queue_capacity must be at least 1, got %d", c.QueueCapacity))
	}
	if c.MessageTimeout <= 0 {
		errs = append(errs, fmt.Errorf("message_timeout must be positive, got %s", c.MessageTimeout))
	}
	if c.Temporize.BaseSweeps < 0 || c.Temporize.JitterSweeps < 0 {
		errs = append(errs, errors.New("temporize sweeps must not be negative"))
	}
	if c.Temporize.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("temporize.max_attempts must be at least 1, got %d", c.Temporize.MaxAttempts))
	}
	if _, ok := levels[strings.ToLower(c.Log.Level)]; !ok {
		errs = append(errs, fmt.Errorf("unknown log level: %s", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format: %s (valid options: text, json)", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Discover returns the first config file found in dir, or "" when there is none.
func Discover(dir string) string {
	for _, name := range configFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// Load reads path on top of the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	case ".hcl":
		err = decodeHCL(path, data, &cfg)
	default:
		err = fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeHCL(path string, data []byte, cfg *Config) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return diags
	}

	var parsed hclConfig
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return diags
	}

	if parsed.Workers != nil {
		cfg.Workers = *parsed.Workers
	}
	if parsed.StallSweeps != nil {
		cfg.StallSweeps = *parsed.StallSweeps
	}
	if parsed.QueueCapacity != nil {
		cfg.QueueCapacity = *parsed.QueueCapacity
	}
	if parsed.MessageTimeout != nil {
		d, err := time.ParseDuration(*parsed.MessageTimeout)
		if err != nil {
			return fmt.Errorf("message_timeout: %w", err)
		}
		cfg.MessageTimeout = d
	}
	if parsed.Emit != nil {
		cfg.Emit = *parsed.Emit
	}
	if parsed.CheckAll != nil {
		cfg.CheckAll = *parsed.CheckAll
	}
	if parsed.Temporize != nil {
		t := *parsed.Temporize
		if t.BaseSweeps != 0 {
			cfg.Temporize.BaseSweeps = t.BaseSweeps
		}
		if t.JitterSweeps != 0 {
			cfg.Temporize.JitterSweeps = t.JitterSweeps
		}
		if t.MaxAttempts != 0 {
			cfg.Temporize.MaxAttempts = t.MaxAttempts
		}
	}
	if parsed.Log != nil {
		if parsed.Log.Level != "" {
			cfg.Log.Level = parsed.Log.Level
		}
		if parsed.Log.Format != "" {
			cfg.Log.Format = parsed.Log.Format
		}
	}
	return nil
}
