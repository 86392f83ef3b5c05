package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tonimelisma/fissurewatch/internal/fissure"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string, logger *slog.Logger) (*Config, error) {
	logger.Debug("loading config file", slog.String("path", path))

	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("config file loaded",
		slog.String("path", path),
		slog.String("server_url", cfg.ServerURL),
		slog.Int("mission_types", len(cfg.MissionTypes)),
	)

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values, so users can start without
// creating a config file.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("config file not found, using defaults", slog.String("path", path))

		return DefaultConfig(), nil
	}

	return Load(path, logger)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
// It returns the loaded file config alongside the fully resolved values;
// the watcher compares reloaded files against the former.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Config, *Resolved, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists)
	cfg, err := LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, nil, err
	}

	resolved, err := ResolveConfig(cfg, cfgPath, env, cli)
	if err != nil {
		return nil, nil, err
	}

	return cfg, resolved, nil
}

// ResolveConfig applies environment and CLI overrides on top of an already
// loaded Config and parses the result. cfg itself is not modified.
func ResolveConfig(cfg *Config, cfgPath string, env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	merged := *cfg
	merged.MissionTypes = append([]string(nil), cfg.MissionTypes...)

	// 3. Apply env overrides
	if env.ServerURL != "" {
		merged.ServerURL = env.ServerURL
	}

	if env.LogLevel != "" {
		merged.LogLevel = env.LogLevel
	}

	// 4. Apply CLI overrides (nil = not specified)
	if cli.ServerURL != nil {
		merged.ServerURL = *cli.ServerURL
	}

	if cli.MissionTypes != nil {
		merged.MissionTypes = append([]string(nil), cli.MissionTypes...)
	}

	if cli.HardMode != nil {
		merged.HardMode = *cli.HardMode
	}

	if cli.Listen != nil {
		merged.Listen = *cli.Listen
	}

	if cli.LogLevel != nil {
		merged.LogLevel = *cli.LogLevel
	}

	// 5. Validate the merged result; overrides bypass the file-level check.
	if err := Validate(&merged); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return newResolved(&merged, cfgPath)
}

// Criteria returns the filter described by the config.
func (c *Config) Criteria() (fissure.Criteria, error) {
	hard, err := fissure.ParseHardMode(c.HardMode)
	if err != nil {
		return fissure.Criteria{}, fmt.Errorf("hard_mode: %w", err)
	}

	return fissure.NewCriteria(hard, c.MissionTypes...), nil
}

// newResolved parses every string-typed value of a validated Config.
func newResolved(cfg *Config, cfgPath string) (*Resolved, error) {
	criteria, err := cfg.Criteria()
	if err != nil {
		return nil, err
	}

	r := &Resolved{
		ConfigPath: cfgPath,
		ServerURL:  cfg.ServerURL,
		Criteria:   criteria,
		LogLevel:   cfg.LogLevel,
		LogFormat:  cfg.LogFormat,
		UserAgent:  cfg.UserAgent,
		Notify:     cfg.Notify,
		Listen:     cfg.Listen,
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"debounce", cfg.Debounce, &r.Debounce},
		{"fast_repoll", cfg.FastRepoll, &r.FastRepoll},
		{"normal_repoll", cfg.NormalRepoll, &r.NormalRepoll},
		{"immediate_retry", cfg.ImmediateRetry, &r.ImmediateRetry},
		{"backoff_base", cfg.BackoffBase, &r.BackoffBase},
		{"backoff_cap", cfg.BackoffCap, &r.BackoffCap},
		{"connect_timeout", cfg.ConnectTimeout, &r.ConnectTimeout},
		{"notify_min_interval", cfg.NotifyMinInterval, &r.NotifyMinInterval},
	}

	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}

		*d.dst = parsed
	}

	return r, nil
}
