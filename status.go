package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/fissurewatch/internal/config"
	"github.com/tonimelisma/fissurewatch/internal/viewapi"
)

// statusTimeout bounds the request to the running watcher.
const statusTimeout = 5 * time.Second

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the connection status of a running watcher",
		Long: `Query the view API of a running "fissurewatch watch" and print its
connection status and counters. The watcher must have been started with
--listen (or listen set in the config file). Without --listen here, the
address is taken from the config file or from the running watcher's PID
file.`,
		RunE: runStatus,
	}

	cmd.Flags().StringVar(&flagListen, "listen", "", "address of the watcher's view API")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	listen := resolvedCfg.Listen
	if listen == "" {
		if rec, _, err := findWatcher(config.DefaultPIDPath()); err == nil {
			listen = rec.Listen
		}
	}

	if listen == "" {
		return fmt.Errorf("no view API address: pass --listen or set listen in the config file")
	}

	v, err := fetchWatcherStatus(cmd, statusURL(listen))
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(v)
	}

	printWatcherStatus(cmd.OutOrStdout(), v)

	return nil
}

// statusURL builds the status endpoint for a listen address. A wildcard
// host is dialed on loopback.
func statusURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		listen = "127.0.0.1" + listen
	}

	listen = strings.Replace(listen, "0.0.0.0:", "127.0.0.1:", 1)

	return "http://" + listen + "/api/status"
}

func fetchWatcherStatus(cmd *cobra.Command, url string) (*viewapi.StatusView, error) {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("building status request: %w", err)
	}

	client := &http.Client{Timeout: statusTimeout}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("no running watcher at %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("watcher answered %s", resp.Status)
	}

	var v viewapi.StatusView
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding watcher status: %w", err)
	}

	return &v, nil
}

func printWatcherStatus(w io.Writer, v *viewapi.StatusView) {
	last := time.Time{}
	if v.LastActivity != nil {
		last = *v.LastActivity
	}

	fmt.Fprintf(w, "Status:        %s (since %s)\n", v.Status, formatTime(v.Since))
	fmt.Fprintf(w, "Last activity: %s\n", formatTime(last))

	if v.LastError != "" {
		fmt.Fprintf(w, "Last error:    %s\n", v.LastError)
	}

	fmt.Fprintf(w, "Sessions:      %d\n", v.Sessions)
	fmt.Fprintf(w, "Polls:         %d\n", v.Polls)
	fmt.Fprintf(w, "Changes:       %d\n", v.Changes)
	fmt.Fprintf(w, "Errors:        %d\n", v.Errors)
}
