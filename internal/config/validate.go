package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tonimelisma/fissurewatch/internal/fissure"
)

// Validation range constants.
const (
	minConnectTimeout = 1 * time.Second
	minDebounce       = 10 * time.Millisecond
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServer(&cfg.ServerConfig)...)
	errs = append(errs, validateFilter(&cfg.FilterConfig)...)
	errs = append(errs, validateTiming(&cfg.TimingConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)
	errs = append(errs, validateNotify(&cfg.NotifyConfig)...)

	return errors.Join(errs...)
}

func validateServer(s *ServerConfig) []error {
	u, err := url.Parse(s.ServerURL)
	if err != nil {
		return []error{fmt.Errorf("server_url: %w", err)}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return []error{fmt.Errorf("server_url: scheme must be http or https, got %q", s.ServerURL)}
	}

	if u.Host == "" {
		return []error{fmt.Errorf("server_url: missing host in %q", s.ServerURL)}
	}

	return nil
}

func validateFilter(f *FilterConfig) []error {
	var errs []error

	if _, err := fissure.ParseHardMode(f.HardMode); err != nil {
		errs = append(errs, fmt.Errorf("hard_mode: %w", err))
	}

	for _, mt := range f.MissionTypes {
		if fissure.NormalizeMissionType(mt) == "" {
			errs = append(errs, errors.New("mission_types: entries must not be empty"))

			break
		}
	}

	return errs
}

func validateTiming(t *TimingConfig) []error {
	var errs []error

	debounce, err := parsePositive("debounce", t.Debounce)
	if err != nil {
		errs = append(errs, err)
	} else if debounce < minDebounce {
		errs = append(errs, fmt.Errorf("debounce: must be at least %s, got %s", minDebounce, t.Debounce))
	}

	fast, fastErr := parsePositive("fast_repoll", t.FastRepoll)
	normal, normalErr := parsePositive("normal_repoll", t.NormalRepoll)
	base, baseErr := parsePositive("backoff_base", t.BackoffBase)
	backoffCap, capErr := parsePositive("backoff_cap", t.BackoffCap)

	if _, err := parsePositive("immediate_retry", t.ImmediateRetry); err != nil {
		errs = append(errs, err)
	}

	for _, err := range []error{fastErr, normalErr, baseErr, capErr} {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if capErr != nil {
		return errs
	}

	if fastErr == nil && fast >= backoffCap {
		errs = append(errs, fmt.Errorf("fast_repoll: must be less than backoff_cap (%s), got %s", t.BackoffCap, t.FastRepoll))
	}

	if normalErr == nil && normal >= backoffCap {
		errs = append(errs, fmt.Errorf("normal_repoll: must be less than backoff_cap (%s), got %s", t.BackoffCap, t.NormalRepoll))
	}

	if baseErr == nil && base > backoffCap {
		errs = append(errs, fmt.Errorf("backoff_base: must not exceed backoff_cap (%s), got %s", t.BackoffCap, t.BackoffBase))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	switch strings.ToLower(l.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	switch l.LogFormat {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	d, err := time.ParseDuration(n.ConnectTimeout)
	if err != nil {
		return []error{fmt.Errorf("connect_timeout: invalid duration %q: %w", n.ConnectTimeout, err)}
	}

	if d < minConnectTimeout {
		return []error{fmt.Errorf("connect_timeout: must be at least %s, got %s", minConnectTimeout, n.ConnectTimeout)}
	}

	return nil
}

func validateNotify(n *NotifyConfig) []error {
	d, err := time.ParseDuration(n.NotifyMinInterval)
	if err != nil {
		return []error{fmt.Errorf("notify_min_interval: invalid duration %q: %w", n.NotifyMinInterval, err)}
	}

	if d < 0 {
		return []error{fmt.Errorf("notify_min_interval: must not be negative, got %s", n.NotifyMinInterval)}
	}

	return nil
}

// parsePositive parses a duration that must be greater than zero.
func parsePositive(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, value)
	}

	return d, nil
}
