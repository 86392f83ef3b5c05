package config

// Default values for configuration options. These are "layer 0" of the
// four-layer override chain and match the engine's built-in timings, so a
// first run needs no config file.
const (
	defaultServerURL         = "http://localhost:8080"
	defaultHardMode          = "any"
	defaultDebounce          = "500ms"
	defaultFastRepoll        = "100ms"
	defaultNormalRepoll      = "1s"
	defaultImmediateRetry    = "2s"
	defaultBackoffBase       = "1s"
	defaultBackoffCap        = "30s"
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"
	defaultConnectTimeout    = "10s"
	defaultNotifyMinInterval = "5s"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		ServerConfig:  ServerConfig{ServerURL: defaultServerURL},
		FilterConfig:  FilterConfig{HardMode: defaultHardMode},
		TimingConfig:  defaultTimingConfig(),
		LoggingConfig: LoggingConfig{LogLevel: defaultLogLevel, LogFormat: defaultLogFormat},
		NetworkConfig: NetworkConfig{ConnectTimeout: defaultConnectTimeout},
		NotifyConfig:  NotifyConfig{Notify: true, NotifyMinInterval: defaultNotifyMinInterval},
	}
}

func defaultTimingConfig() TimingConfig {
	return TimingConfig{
		Debounce:       defaultDebounce,
		FastRepoll:     defaultFastRepoll,
		NormalRepoll:   defaultNormalRepoll,
		ImmediateRetry: defaultImmediateRetry,
		BackoffBase:    defaultBackoffBase,
		BackoffCap:     defaultBackoffCap,
	}
}
