// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for fissurewatch. It supports a
// four-layer override chain (defaults -> config file -> environment -> CLI
// flags) and live reload of the fissure filter while the watcher runs.
package config

import (
	"time"

	"github.com/tonimelisma/fissurewatch/internal/fissure"
)

// Config is the top-level configuration structure parsed from a TOML file.
// All keys are flat; the embedded section structs only group related fields.
type Config struct {
	ServerConfig
	FilterConfig
	TimingConfig
	LoggingConfig
	NetworkConfig
	NotifyConfig
	APIConfig
}

// ServerConfig locates the fissure service.
type ServerConfig struct {
	ServerURL string `toml:"server_url"`
}

// FilterConfig is the filter used for the first session. Editing it while
// the watcher runs submits the new filter to the debouncer.
type FilterConfig struct {
	MissionTypes []string `toml:"mission_types"`
	HardMode     string   `toml:"hard_mode"`
}

// TimingConfig controls the sync engine's waits. Values are Go duration
// strings ("500ms", "30s").
type TimingConfig struct {
	Debounce       string `toml:"debounce"`
	FastRepoll     string `toml:"fast_repoll"`
	NormalRepoll   string `toml:"normal_repoll"`
	ImmediateRetry string `toml:"immediate_retry"`
	BackoffBase    string `toml:"backoff_base"`
	BackoffCap     string `toml:"backoff_cap"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior. connect_timeout bounds the
// dial only; long-poll requests are held open by the server and must not
// carry an overall deadline.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// NotifyConfig controls desktop-style alerts on data changes.
type NotifyConfig struct {
	Notify            bool   `toml:"notify"`
	NotifyMinInterval string `toml:"notify_min_interval"`
}

// APIConfig controls the optional local view API. An empty listen address
// disables it.
type APIConfig struct {
	Listen string `toml:"listen"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value"; a nil MissionTypes slice means the
// flag was not given.
type CLIOverrides struct {
	ConfigPath   string   // --config flag (empty = use default)
	ServerURL    *string  // --server flag
	MissionTypes []string // --mission-type flags
	HardMode     *string  // --hard flag
	Listen       *string  // --listen flag
	LogLevel     *string  // --verbose / --debug / --quiet
}

// Resolved is the fully merged configuration with every value parsed into
// its runtime type. Produced by Resolve and ResolveConfig.
type Resolved struct {
	ConfigPath string
	ServerURL  string
	Criteria   fissure.Criteria

	Debounce       time.Duration
	FastRepoll     time.Duration
	NormalRepoll   time.Duration
	ImmediateRetry time.Duration
	BackoffBase    time.Duration
	BackoffCap     time.Duration

	LogLevel  string
	LogFormat string

	ConnectTimeout time.Duration
	UserAgent      string

	Notify            bool
	NotifyMinInterval time.Duration

	Listen string
}
