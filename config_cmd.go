package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/fissurewatch/internal/config"
	"github.com/tonimelisma/fissurewatch/internal/viewapi"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE:  runConfigShow,
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a commented default config file",
		RunE:  runConfigInit,
	}
}

// effectiveJSON is the --json output of config show. Durations are
// rendered in Go duration syntax, as they are written in the file.
type effectiveJSON struct {
	ConfigPath        string               `json:"configPath"`
	ServerURL         string               `json:"serverUrl"`
	Criteria          viewapi.CriteriaJSON `json:"filter"`
	Debounce          string               `json:"debounce"`
	FastRepoll        string               `json:"fastRepoll"`
	NormalRepoll      string               `json:"normalRepoll"`
	ImmediateRetry    string               `json:"immediateRetry"`
	BackoffBase       string               `json:"backoffBase"`
	BackoffCap        string               `json:"backoffCap"`
	LogLevel          string               `json:"logLevel"`
	LogFormat         string               `json:"logFormat"`
	ConnectTimeout    string               `json:"connectTimeout"`
	UserAgent         string               `json:"userAgent"`
	Notify            bool                 `json:"notify"`
	NotifyMinInterval string               `json:"notifyMinInterval"`
	Listen            string               `json:"listen"`
}

func newEffectiveJSON(r *config.Resolved) effectiveJSON {
	return effectiveJSON{
		ConfigPath:        r.ConfigPath,
		ServerURL:         r.ServerURL,
		Criteria:          viewapi.NewCriteriaJSON(r.Criteria),
		Debounce:          r.Debounce.String(),
		FastRepoll:        r.FastRepoll.String(),
		NormalRepoll:      r.NormalRepoll.String(),
		ImmediateRetry:    r.ImmediateRetry.String(),
		BackoffBase:       r.BackoffBase.String(),
		BackoffCap:        r.BackoffCap.String(),
		LogLevel:          r.LogLevel,
		LogFormat:         r.LogFormat,
		ConnectTimeout:    r.ConnectTimeout.String(),
		UserAgent:         r.UserAgent,
		Notify:            r.Notify,
		NotifyMinInterval: r.NotifyMinInterval.String(),
		Listen:            r.Listen,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if resolvedCfg == nil {
		return fmt.Errorf("no configuration loaded")
	}

	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(newEffectiveJSON(resolvedCfg))
	}

	return config.RenderEffective(resolvedCfg, cmd.OutOrStdout())
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	path := flagConfigPath
	if path == "" {
		path = config.ReadEnvOverrides().ConfigPath
	}

	if path == "" {
		path = config.DefaultConfigPath()
	}

	if path == "" {
		return fmt.Errorf("cannot determine config path: pass --config")
	}

	if err := config.WriteDefault(path, bootstrapLogger()); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%s already exists; edit it or remove it first", path)
		}

		return err
	}

	statusf(flagQuiet, "Wrote %s\n", path)

	return nil
}
