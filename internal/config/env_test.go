package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides_AllSet(t *testing.T) {
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvServerURL, "http://fissures.local")
	t.Setenv(EnvLogLevel, "debug")

	overrides := ReadEnvOverrides()
	assert.Equal(t, "/custom/config.toml", overrides.ConfigPath)
	assert.Equal(t, "http://fissures.local", overrides.ServerURL)
	assert.Equal(t, "debug", overrides.LogLevel)
}

func TestReadEnvOverrides_NoneSet(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvServerURL, "")
	t.Setenv(EnvLogLevel, "")

	assert.Equal(t, EnvOverrides{}, ReadEnvOverrides())
}

func TestEnvVarConstants(t *testing.T) {
	assert.Equal(t, "FISSUREWATCH_CONFIG", EnvConfig)
	assert.Equal(t, "FISSUREWATCH_SERVER_URL", EnvServerURL)
	assert.Equal(t, "FISSUREWATCH_LOG_LEVEL", EnvLogLevel)
}
