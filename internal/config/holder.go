package config

import (
	"reflect"
	"sync"
)

// Holder is the config file layer of a running watcher: the last config
// successfully loaded from its path. The file watcher and the SIGHUP
// handler both reload through one Holder, so a file edit seen twice is
// applied once.
type Holder struct {
	path string

	mu  sync.Mutex
	cfg *Config
}

// NewHolder creates a Holder for the config file at path. cfg is the
// config already loaded from it.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{path: path, cfg: cfg}
}

// Config returns the current config.
func (h *Holder) Config() *Config {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.cfg
}

// Path returns the config file path.
func (h *Holder) Path() string {
	return h.path
}

// Replace installs cfg unless it is value-equal to the current config and
// returns the config now in force. An equal config leaves the current
// pointer in place.
func (h *Holder) Replace(cfg *Config) (current *Config, changed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cfg != nil && reflect.DeepEqual(*h.cfg, *cfg) {
		return h.cfg, false
	}

	h.cfg = cfg

	return cfg, true
}
