package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	appName        = "fissurewatch"
	configFileName = "config.toml"
	pidFileName    = "watch.pid"
)

// baseDir describes where one kind of per-user directory lives: the XDG
// variable consulted on Linux and the fallback under $HOME elsewhere.
// macOS keeps config and data together under Application Support.
type baseDir struct {
	xdgVar   string
	fallback []string
}

var (
	configBase = baseDir{xdgVar: "XDG_CONFIG_HOME", fallback: []string{".config"}}
	dataBase   = baseDir{xdgVar: "XDG_DATA_HOME", fallback: []string{".local", "share"}}
)

// resolve returns the app directory for goos. getenv is os.Getenv outside
// tests.
func (b baseDir) resolve(goos, home string, getenv func(string) string) string {
	if goos == "darwin" {
		return filepath.Join(home, "Library", "Application Support", appName)
	}

	if goos == "linux" {
		if xdg := getenv(b.xdgVar); xdg != "" {
			return filepath.Join(xdg, appName)
		}
	}

	return filepath.Join(append(append([]string{home}, b.fallback...), appName)...)
}

// userDir resolves b for the running platform. Empty when there is no home
// directory.
func userDir(b baseDir) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return b.resolve(runtime.GOOS, home, os.Getenv)
}

// DefaultConfigDir is ~/.config/fissurewatch (or $XDG_CONFIG_HOME) on Linux
// and ~/Library/Application Support/fissurewatch on macOS.
func DefaultConfigDir() string {
	return userDir(configBase)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	return joinIfSet(DefaultConfigDir(), configFileName)
}

// DefaultDataDir holds runtime state. On Linux it honors $XDG_DATA_HOME.
func DefaultDataDir() string {
	return userDir(dataBase)
}

// DefaultPIDPath is where a running watcher records itself for "reload"
// and "status".
func DefaultPIDPath() string {
	return joinIfSet(DefaultDataDir(), pidFileName)
}

func joinIfSet(dir, name string) string {
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}
