package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	isync "github.com/tonimelisma/fissurewatch/internal/sync"
)

// terminalNotifier rings the terminal bell and prints the alert.
type terminalNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func (n *terminalNotifier) Notify(_ context.Context, note isync.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	_, err := fmt.Fprintf(n.w, "\a%s: %s\n", note.Title, note.Body)

	return err
}

// terminalPermission grants alerts when they are enabled and the output is
// an interactive terminal; a pipe or log file never gets bells.
type terminalPermission struct {
	enabled bool
	tty     bool
}

func (p terminalPermission) Permission() isync.Permission {
	switch {
	case !p.enabled:
		return isync.PermissionDenied
	case p.tty:
		// Undecided until requested, like a desktop prompt.
		return isync.PermissionDefault
	default:
		return isync.PermissionDenied
	}
}

func (p terminalPermission) RequestPermission() isync.Permission {
	if p.enabled && p.tty {
		return isync.PermissionGranted
	}

	return isync.PermissionDenied
}
