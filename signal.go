package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// exitInterrupted is the status for a forced exit, as a shell reports a
// process killed by SIGINT.
const exitInterrupted = 130

// shutdownContext cancels on the first SIGINT or SIGTERM so the watcher can
// stop its poll and close the view API. A second signal exits at once.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigs)

		for received := 0; ; received++ {
			var sig os.Signal

			select {
			case sig = <-sigs:
			case <-parent.Done():
				cancel()

				return
			}

			if received > 0 {
				logger.Warn("second shutdown signal, exiting now", slog.String("signal", sig.String()))
				os.Exit(exitInterrupted)
			}

			logger.Info("shutting down", slog.String("signal", sig.String()))
			cancel()
		}
	}()

	return ctx
}

// reloadSignals delivers SIGHUP, the request to re-read the config file,
// until stop is called.
func reloadSignals() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)

	return ch, func() { signal.Stop(ch) }
}
