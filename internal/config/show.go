package config

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// setting is one documented config key. value renders the key's TOML
// literal from a resolved config.
type setting struct {
	key   string
	help  string
	value func(r *Resolved) string

	// optional settings are left out of "config show" while empty, and
	// the init template shows example instead.
	optional bool
	example  string
}

type section struct {
	name     string
	settings []setting
}

// sections drives both "config show" and the "config init" template, in
// file order.
var sections = []section{
	{"server", []setting{
		{key: "server_url", help: "Base URL of the fissure service",
			value: func(r *Resolved) string { return strconv.Quote(r.ServerURL) }},
		{key: "listen", help: "Local view API address (empty = disabled)", optional: true, example: `"127.0.0.1:7878"`,
			value: func(r *Resolved) string { return quoteOrEmpty(r.Listen) }},
	}},
	{"filter", []setting{
		{key: "mission_types", help: "Mission types to watch (empty = all)", example: `["Defense", "Survival"]`,
			value: func(r *Resolved) string { return "[" + joinQuoted(r.Criteria.MissionTypes) + "]" }},
		{key: "hard_mode", help: "Steel Path filter: any, hard, normal",
			value: func(r *Resolved) string { return strconv.Quote(r.Criteria.HardMode.String()) }},
	}},
	{"timing", []setting{
		{key: "debounce", help: "Quiet period before a filter edit takes effect",
			value: func(r *Resolved) string { return quoteDuration(r.Debounce) }},
		{key: "fast_repoll", help: "Wait before re-polling after a change",
			value: func(r *Resolved) string { return quoteDuration(r.FastRepoll) }},
		{key: "normal_repoll", help: "Wait before re-polling after no change",
			value: func(r *Resolved) string { return quoteDuration(r.NormalRepoll) }},
		{key: "immediate_retry", help: "Wait after a failed first fetch",
			value: func(r *Resolved) string { return quoteDuration(r.ImmediateRetry) }},
		{key: "backoff_base", help: "Poll retry backoff: min(base * 2^n, cap)",
			value: func(r *Resolved) string { return quoteDuration(r.BackoffBase) }},
		{key: "backoff_cap",
			value: func(r *Resolved) string { return quoteDuration(r.BackoffCap) }},
	}},
	{"logging", []setting{
		{key: "log_level", help: "debug, info, warn, error",
			value: func(r *Resolved) string { return strconv.Quote(r.LogLevel) }},
		{key: "log_format", help: "auto (text on a terminal), text, json",
			value: func(r *Resolved) string { return strconv.Quote(r.LogFormat) }},
	}},
	{"network", []setting{
		{key: "connect_timeout", help: "Dial and TLS handshake limit; polls themselves are unbounded",
			value: func(r *Resolved) string { return quoteDuration(r.ConnectTimeout) }},
		{key: "user_agent", optional: true, example: `"fissurewatch/dev"`,
			value: func(r *Resolved) string { return quoteOrEmpty(r.UserAgent) }},
	}},
	{"notifications", []setting{
		{key: "notify", help: "Alert when the fissure list changes",
			value: func(r *Resolved) string { return strconv.FormatBool(r.Notify) }},
		{key: "notify_min_interval",
			value: func(r *Resolved) string { return quoteDuration(r.NotifyMinInterval) }},
	}},
}

// RenderEffective writes the resolved configuration for "config show":
// the values left after all four layers (defaults, file, env, CLI), as
// valid TOML that can be pasted back into a config file.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	if r.ConfigPath != "" {
		ew.printf("# Effective configuration (file: %s)\n", r.ConfigPath)
	} else {
		ew.printf("# Effective configuration\n")
	}

	for _, sec := range sections {
		ew.printf("\n# %s\n", sec.name)

		width := keyWidth(sec.settings)

		for _, s := range sec.settings {
			v := s.value(r)
			if s.optional && v == "" {
				continue
			}

			ew.printf("%-*s = %s\n", width, s.key, v)
		}
	}

	return ew.err
}

// renderTemplate writes every setting commented out with its default (or
// its example when the default is empty), so the file loads as defaults.
func renderTemplate(defaults *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# fissurewatch configuration\n")
	ew.printf("# Each setting shows its default. Uncomment a line to change it.\n")

	for _, sec := range sections {
		ew.printf("\n## %s\n", sec.name)

		for _, s := range sec.settings {
			if s.help != "" {
				ew.printf("\n# %s\n", s.help)
			}

			v := s.value(defaults)
			if s.example != "" && (v == "" || v == "[]") {
				v = s.example
			}

			ew.printf("# %s = %s\n", s.key, v)
		}
	}

	return ew.err
}

// errWriter keeps the first write error so a run of printf calls needs a
// single check.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func keyWidth(settings []setting) int {
	width := 0
	for _, s := range settings {
		width = max(width, len(s.key))
	}

	return width
}

func quoteDuration(d time.Duration) string {
	return strconv.Quote(d.String())
}

func quoteOrEmpty(s string) string {
	if s == "" {
		return ""
	}

	return strconv.Quote(s)
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = strconv.Quote(item)
	}

	return strings.Join(quoted, ", ")
}
