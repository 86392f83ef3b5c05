package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	configFilePermissions = 0o644
	configDirPermissions  = 0o755
)

// ErrConfigExists is returned by WriteDefault when the target file exists.
var ErrConfigExists = errors.New("config file already exists")

// WriteDefault writes the commented default template to path, creating
// parent directories. An existing file is never replaced.
func WriteDefault(path string, logger *slog.Logger) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	defaults, err := ResolveConfig(DefaultConfig(), "", EnvOverrides{}, CLIOverrides{})
	if err != nil {
		return fmt.Errorf("resolving defaults: %w", err)
	}

	var buf bytes.Buffer
	if err := renderTemplate(defaults, &buf); err != nil {
		return err
	}

	logger.Info("creating config file", slog.String("path", path))

	return atomicWriteFile(path, buf.Bytes())
}

// atomicWriteFile replaces path through a temp file in the same directory,
// so a running watcher never reads a half-written file.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	_, err = f.Write(data)
	if err == nil {
		err = f.Chmod(configFilePermissions)
	}

	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err == nil {
		err = os.Rename(tempPath, path)
	}

	if err != nil {
		os.Remove(tempPath)

		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}
