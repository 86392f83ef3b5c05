package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig    = "FISSUREWATCH_CONFIG"
	EnvServerURL = "FISSUREWATCH_SERVER_URL"
	EnvLogLevel  = "FISSUREWATCH_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // FISSUREWATCH_CONFIG: override config file path
	ServerURL  string // FISSUREWATCH_SERVER_URL: fissure service base URL
	LogLevel   string // FISSUREWATCH_LOG_LEVEL: log level override
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		ServerURL:  os.Getenv(EnvServerURL),
		LogLevel:   os.Getenv(EnvLogLevel),
	}
}
