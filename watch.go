package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/fissurewatch/internal/config"
	"github.com/tonimelisma/fissurewatch/internal/fissure"
	isync "github.com/tonimelisma/fissurewatch/internal/sync"
	"github.com/tonimelisma/fissurewatch/internal/viewapi"
)

// Flags specific to watch, bound in newWatchCmd().
var (
	flagListen   string
	flagNoNotify bool
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Track fissures continuously",
		Long: `Fetch the fissures matching the filter, then long-poll the service for
changes until interrupted.

The filter comes from the config file unless --mission-type or --hard pin it.
Edits to the config file (or SIGHUP, see "fissurewatch reload") re-apply the
file's filter without restarting. With --listen, a local HTTP API serves the
current view and streams updates over a websocket.`,
		RunE: runWatch,
	}

	addFilterFlags(cmd)
	cmd.Flags().StringVar(&flagListen, "listen", "", "serve the view API on this address (e.g. 127.0.0.1:8787)")
	cmd.Flags().BoolVar(&flagNoNotify, "no-notify", false, "disable update alerts")

	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	notifier := newWatchNotifier(resolvedCfg, flagNoNotify, logger)
	engine := isync.NewEngine(newFissureClient(logger), notifier, engineConfig(resolvedCfg), logger)
	debouncer := isync.NewDebouncer(resolvedCfg.Criteria, resolvedCfg.Debounce, logger)

	var (
		api *viewapi.Server
		ln  net.Listener
	)

	if resolvedCfg.Listen != "" {
		var err error

		ln, err = net.Listen("tcp", resolvedCfg.Listen)
		if err != nil {
			return fmt.Errorf("view API: listening on %s: %w", resolvedCfg.Listen, err)
		}

		api = viewapi.NewServer(engine, debouncer, logger)
	}

	// The bound address is recorded so "status" finds the API even when
	// the port was chosen by the kernel.
	rec := watcherRecord{PID: os.Getpid()}
	if ln != nil {
		rec.Listen = ln.Addr().String()
	}

	cleanup, err := writePIDFile(config.DefaultPIDPath(), rec)
	if err != nil {
		if ln != nil {
			ln.Close()
		}

		return err
	}
	defer cleanup()

	pinned := cmd.Flags().Changed("mission-type") || cmd.Flags().Changed("hard")
	holder := config.NewHolder(fileCfg, resolvedCfg.ConfigPath)
	watcher := config.NewWatcher(holder, logger)
	onReload := func(cfg *config.Config) {
		applyReloadedFilter(cfg, pinned, debouncer, logger)
	}

	statusf(flagQuiet, "Watching %s (%s)\n", resolvedCfg.ServerURL, resolvedCfg.Criteria)

	g, gctx := errgroup.WithContext(ctx)
	updates := make(chan isync.Update)
	settled := debouncer.Run(gctx)

	g.Go(func() error {
		defer close(updates)

		return engine.Run(gctx, settled, updates)
	})

	g.Go(func() error {
		p := newWatchPrinter(cmd.OutOrStdout(), flagJSON, flagQuiet)

		for u := range updates {
			p.print(u)

			if api != nil {
				api.Publish(u)
			}
		}

		return nil
	})

	g.Go(func() error {
		return watcher.Watch(gctx, onReload)
	})

	g.Go(func() error {
		return reloadOnSIGHUP(gctx, watcher, onReload, logger)
	})

	if api != nil {
		g.Go(func() error {
			return api.Serve(gctx, ln)
		})
	}

	return g.Wait()
}

// reloadOnSIGHUP re-reads the config file on each SIGHUP until ctx is done.
func reloadOnSIGHUP(ctx context.Context, w *config.Watcher, onReload func(*config.Config), logger *slog.Logger) error {
	sighup, stop := reloadSignals()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sighup:
			logger.Info("SIGHUP received, reloading config")

			cfg, changed, err := w.Reload()
			if err != nil {
				logger.Warn("ignoring invalid config file", slog.String("error", err.Error()))

				continue
			}

			if changed {
				onReload(cfg)
			}
		}
	}
}

// applyReloadedFilter submits the filter of a reloaded config. A filter
// pinned on the command line stays in force.
func applyReloadedFilter(cfg *config.Config, pinned bool, filter viewapi.FilterInput, logger *slog.Logger) {
	criteria, err := cfg.Criteria()
	if err != nil {
		logger.Warn("reloaded config has an invalid filter", slog.String("error", err.Error()))

		return
	}

	if pinned {
		if !criteria.Equal(filter.Pending()) {
			logger.Info("filter is set on the command line, ignoring config file filter",
				slog.String("file_filter", criteria.String()))
		}

		return
	}

	logger.Info("applying filter from config file", slog.String("criteria", criteria.String()))
	filter.Submit(criteria)
}

// engineConfig maps resolved timings onto the engine.
func engineConfig(r *config.Resolved) isync.EngineConfig {
	return isync.EngineConfig{
		FastRepoll:     r.FastRepoll,
		NormalRepoll:   r.NormalRepoll,
		ImmediateRetry: r.ImmediateRetry,
		BackoffBase:    r.BackoffBase,
		BackoffCap:     r.BackoffCap,
	}
}

// newWatchNotifier returns nil when alerts are off.
func newWatchNotifier(r *config.Resolved, disabled bool, logger *slog.Logger) isync.Notifier {
	if !r.Notify || disabled {
		return nil
	}

	perms := terminalPermission{enabled: true, tty: isTerminal(os.Stderr)}

	return isync.NewGatedNotifier(&terminalNotifier{w: os.Stderr}, perms, r.NotifyMinInterval, logger)
}

// updateJSON is one line of "watch --json" output.
type updateJSON struct {
	SessionID    string               `json:"sessionId"`
	Criteria     viewapi.CriteriaJSON `json:"criteria"`
	Status       isync.Status         `json:"status"`
	Changed      bool                 `json:"changed"`
	Loading      bool                 `json:"loading"`
	Error        string               `json:"error,omitempty"`
	RetryInMs    int64                `json:"retryInMs,omitempty"`
	Fissures     []fissure.Fissure    `json:"fissures"`
	MissionTypes []string             `json:"missionTypes,omitempty"`
	At           time.Time            `json:"at"`
}

// watchPrinter renders the update stream. Text mode reprints the table
// when the snapshot is first loaded or changes, and reports status
// transitions on stderr.
type watchPrinter struct {
	out   io.Writer
	json  bool
	quiet bool

	session    string
	lastStatus isync.Status
	loaded     bool
}

func newWatchPrinter(out io.Writer, jsonOut, quiet bool) *watchPrinter {
	return &watchPrinter{out: out, json: jsonOut, quiet: quiet}
}

func (p *watchPrinter) print(u isync.Update) {
	if p.json {
		p.printJSON(u)

		return
	}

	if u.SessionID != p.session {
		p.session = u.SessionID
		p.loaded = false
		p.lastStatus = isync.StatusDisconnected
	}

	if u.Status != p.lastStatus {
		p.lastStatus = u.Status
		p.printStatus(u)
	}

	// A failure shows only its status line; the table waits for data.
	if u.Loading || u.Status == isync.StatusError {
		return
	}

	if !p.loaded || u.Changed {
		p.loaded = true

		if u.Changed {
			fmt.Fprintf(p.out, "\nFissures updated at %s (%d)\n", formatTime(u.At), len(u.Fissures))
		} else {
			fmt.Fprintf(p.out, "\nFissures for %s (%d)\n", u.Criteria, len(u.Fissures))
		}

		printFissures(p.out, u.Fissures)
	}
}

func (p *watchPrinter) printStatus(u isync.Update) {
	switch {
	case u.Status == isync.StatusError:
		statusf(p.quiet, "Error: %s (retrying in %s)\n", u.ErrorMessage(), u.RetryIn)
	case u.Err != nil:
		statusf(p.quiet, "Status: %s (last error: %s)\n", u.Status, u.ErrorMessage())
	default:
		statusf(p.quiet, "Status: %s\n", u.Status)
	}
}

func (p *watchPrinter) printJSON(u isync.Update) {
	fissures := u.Fissures
	if fissures == nil {
		fissures = []fissure.Fissure{}
	}

	line := updateJSON{
		SessionID:    u.SessionID,
		Criteria:     viewapi.NewCriteriaJSON(u.Criteria),
		Status:       u.Status,
		Changed:      u.Changed,
		Loading:      u.Loading,
		Error:        u.ErrorMessage(),
		RetryInMs:    u.RetryIn.Milliseconds(),
		Fissures:     fissures,
		MissionTypes: u.MissionTypes,
		At:           u.At,
	}

	// One object per line; a write error on stdout has nowhere to go.
	_ = json.NewEncoder(p.out).Encode(line)
}
