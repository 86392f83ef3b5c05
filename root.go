package main

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/fissurewatch/internal/config"
	"github.com/tonimelisma/fissurewatch/internal/fissure"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagServerURL  string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// Filter flags shared by watch and fetch, bound in addFilterFlags().
var (
	flagMissionTypes []string
	flagHardMode     string
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Resolved

// fileCfg is the config file layer behind resolvedCfg. watch seeds its
// reload holder with it.
var fileCfg *config.Config

// Idle connection settings for the fissure service client.
const (
	keepAliveInterval = 30 * time.Second
	idleConnTimeout   = 90 * time.Second
)

// skipConfigCommands lists commands that must run without a valid config:
// "config init" creates the file, and "reload" only signals a running
// watcher, which validates the file itself.
var skipConfigCommands = map[string]bool{
	"fissurewatch config init": true,
	"fissurewatch reload":      true,
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fissurewatch",
		Short: "Live void fissure tracker",
		Long: `Watch a fissure service for changes to the active void fissures.

The watcher long-polls the service with the current filter, re-polls quickly
after a change and backs off exponentially after failures.`,
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipConfigCommands[cmd.CommandPath()] {
				return nil
			}

			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "fissure service base URL")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	// Register subcommands.
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newMissionsCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newReloadCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// addFilterFlags binds the filter flags on a subcommand.
func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&flagMissionTypes, "mission-type", "m", nil,
		"mission type to include (repeatable; default all)")
	cmd.Flags().StringVar(&flagHardMode, "hard", "", "Steel Path filter: any, hard, or normal")
}

// loadConfig resolves the effective configuration from the four-layer override
// chain and stores the result in resolvedCfg for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
	}

	// Only pass flags to the resolver if the user explicitly set them.
	if cmd.Flags().Changed("server") {
		cli.ServerURL = &flagServerURL
	}

	if f := cmd.Flags().Lookup("mission-type"); f != nil && f.Changed {
		cli.MissionTypes = flagMissionTypes
	}

	if f := cmd.Flags().Lookup("hard"); f != nil && f.Changed {
		cli.HardMode = &flagHardMode
	}

	if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
		cli.Listen = &flagListen
	}

	env := config.ReadEnvOverrides()

	cfg, resolved, err := config.Resolve(env, cli, bootstrapLogger())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fileCfg = cfg
	resolvedCfg = resolved

	return nil
}

// bootstrapLogger is used before config is loaded. It honors --verbose only;
// everything else waits for buildLogger.
func bootstrapLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	levelName, format := "", ""
	if resolvedCfg != nil {
		levelName = resolvedCfg.LogLevel
		format = resolvedCfg.LogFormat
	}

	level := parseLogLevel(levelName)

	// CLI flags override config (highest priority).
	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return newLogger(os.Stderr, level, format, isTerminal(os.Stderr))
}

// parseLogLevel maps a config log level to slog. Unknown values fall back
// to info; config validation has already rejected them.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger builds the handler for format. "auto" picks text on a terminal
// and JSON otherwise.
func newLogger(w io.Writer, level slog.Level, format string, tty bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format != "text" && !tty) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newHTTPClient returns a client for the fissure service. Only the dial and
// TLS handshake are bounded: long-poll requests are held open by the server
// until data changes.
func newHTTPClient(connectTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: keepAliveInterval,
	}

	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: connectTimeout,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     idleConnTimeout,
		},
	}
}

// newFissureClient builds the service client from the resolved config.
func newFissureClient(logger *slog.Logger) *fissure.Client {
	ua := resolvedCfg.UserAgent
	if ua == "" {
		ua = "fissurewatch/" + version
	}

	return fissure.NewClient(resolvedCfg.ServerURL, newHTTPClient(resolvedCfg.ConnectTimeout), logger, ua)
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
