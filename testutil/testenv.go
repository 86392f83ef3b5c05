// Package testutil provides shared helpers for E2E and integration tests:
// locating and building the CLI, and an in-process fissure service that
// speaks the immediate and long-poll endpoints.
package testutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ModuleRoot returns the directory holding go.mod, as the go command sees it
// from the working directory.
func ModuleRoot() (string, error) {
	out, err := exec.Command("go", "env", "GOMOD").Output()
	if err != nil {
		return "", fmt.Errorf("go env GOMOD: %w", err)
	}

	gomod := strings.TrimSpace(string(out))
	if gomod == "" || gomod == os.DevNull {
		return "", errors.New("working directory is not inside a Go module")
	}

	return filepath.Dir(gomod), nil
}

// BuildCLI compiles the main package at root into a fresh temp dir. The
// returned cleanup removes the binary and its dir. Build output goes to log.
func BuildCLI(root string, log io.Writer) (binary string, cleanup func(), err error) {
	dir, err := os.MkdirTemp("", "fissurewatch-e2e-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating build dir: %w", err)
	}

	cleanup = func() { os.RemoveAll(dir) }
	binary = filepath.Join(dir, "fissurewatch")

	cmd := exec.Command("go", "build", "-o", binary, ".")
	cmd.Dir = root
	cmd.Stdout = log
	cmd.Stderr = log

	if err := cmd.Run(); err != nil {
		cleanup()

		return "", nil, fmt.Errorf("building %s: %w", root, err)
	}

	return binary, cleanup, nil
}
