package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// pidFilePermissions matches the standard config file permissions (owner rw, group/other r).
const pidFilePermissions = 0o644

// pidDirPermissions matches the standard directory permissions (owner rwx, group/other rx).
const pidDirPermissions = 0o755

// watcherRecord is what a running watcher publishes in its PID file: the
// process id and, when the view API is enabled, the address it is bound to.
// The file holds one value per line.
type watcherRecord struct {
	PID    int
	Listen string
}

func (r watcherRecord) encode() string {
	if r.Listen == "" {
		return fmt.Sprintf("%d\n", r.PID)
	}

	return fmt.Sprintf("%d\n%s\n", r.PID, r.Listen)
}

func parseWatcherRecord(data []byte) (watcherRecord, error) {
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")

	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return watcherRecord{}, err
	}

	rec := watcherRecord{PID: pid}
	if len(lines) > 1 {
		rec.Listen = strings.TrimSpace(lines[1])
	}

	return rec, nil
}

// writePIDFile writes rec to path and acquires an exclusive flock. Returns a
// cleanup function that removes the file and releases the lock. If the lock
// cannot be acquired, another watcher is already running.
func writePIDFile(path string, rec watcherRecord) (cleanup func(), err error) {
	if path == "" {
		return nil, fmt.Errorf("PID file path is empty: cannot determine data directory")
	}

	dir := filepath.Dir(path)
	if mkdirErr := os.MkdirAll(dir, pidDirPermissions); mkdirErr != nil {
		return nil, fmt.Errorf("creating PID file directory: %w", mkdirErr)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening PID file: %w", err)
	}

	// Non-blocking: a second watcher fails at once instead of queueing.
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		return nil, fmt.Errorf("another watch is already running (could not lock %s)", path)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()

		return nil, fmt.Errorf("truncating PID file: %w", err)
	}

	if _, err := f.WriteString(rec.encode()); err != nil {
		f.Close()

		return nil, fmt.Errorf("writing PID file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()

		return nil, fmt.Errorf("syncing PID file: %w", err)
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

// readPIDFile reads the watcher record at path.
func readPIDFile(path string) (watcherRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return watcherRecord{}, fmt.Errorf("reading PID file: %w", err)
	}

	rec, err := parseWatcherRecord(data)
	if err != nil {
		return watcherRecord{}, fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	return rec, nil
}

// findWatcher returns the record of the running watcher and its process.
// A PID file whose process is gone is removed.
func findWatcher(pidPath string) (watcherRecord, *os.Process, error) {
	rec, err := readPIDFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return watcherRecord{}, nil, fmt.Errorf("no running watcher found (no PID file at %s)", pidPath)
		}

		return watcherRecord{}, nil, err
	}

	proc, err := os.FindProcess(rec.PID)
	if err != nil {
		return watcherRecord{}, nil, fmt.Errorf("finding process %d: %w", rec.PID, err)
	}

	// Signal 0 probes liveness without delivering anything.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(pidPath)

		return watcherRecord{}, nil, fmt.Errorf("watcher (PID %d) is not running (stale PID file removed)", rec.PID)
	}

	return rec, proc, nil
}

// sendSIGHUP asks the running watcher to reload its config file.
func sendSIGHUP(pidPath string) error {
	rec, proc, err := findWatcher(pidPath)
	if err != nil {
		return err
	}

	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("sending SIGHUP to watcher (PID %d): %w", rec.PID, err)
	}

	return nil
}
