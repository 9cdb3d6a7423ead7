// Package config loads vimsync settings from a TOML file and the
// keybinding manifest from YAML, and reloads them when the files change.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the settings the router reads at activation.
type Config struct {
	// DisableExtension starts vimsync switched off.
	DisableExtension bool `toml:"disable_extension"`
	// StartInInsertMode skips the startup cursor clamp.
	StartInInsertMode bool `toml:"start_in_insert_mode"`
	// Leader replaces <leader> in remapped keys.
	Leader string `toml:"leader"`
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `toml:"log_level"`
	// Keybindings is the path of the YAML keybinding manifest. Relative
	// paths are resolved against the config file's directory.
	Keybindings string `toml:"keybindings"`
	// SelectionOptOutModes names modes whose selection changes are not
	// forwarded to the engine.
	SelectionOptOutModes []string `toml:"selection_opt_out_modes"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Leader:               "\\",
		LogLevel:             "info",
		SelectionOptOutModes: []string{"easymotion"},
	}
}

// ParseError describes a malformed config file.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := parse(path, data, cfg); err != nil {
		return nil, err
	}
	if cfg.Keybindings != "" && !filepath.IsAbs(cfg.Keybindings) {
		cfg.Keybindings = filepath.Join(filepath.Dir(path), cfg.Keybindings)
	}
	return cfg, nil
}

// Parse decodes TOML data over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := parse("<bytes>", data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(source string, data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		pe := &ParseError{Path: source, Message: err.Error(), Err: err}
		var de *toml.DecodeError
		if errors.As(err, &de) {
			pe.Line, pe.Column = de.Position()
		}
		return pe
	}
	return nil
}

// OptsOut reports whether mode is listed in SelectionOptOutModes.
func (c *Config) OptsOut(mode string) bool {
	for _, m := range c.SelectionOptOutModes {
		if m == mode {
			return true
		}
	}
	return false
}

// Store holds the current configuration for concurrent readers.
type Store struct {
	cur atomic.Pointer[Config]
}

// NewStore creates a store holding cfg, or the defaults when cfg is nil.
func NewStore(cfg *Config) *Store {
	if cfg == nil {
		cfg = Default()
	}
	s := &Store{}
	s.cur.Store(cfg)
	return s
}

// Get returns the current configuration. Callers must not modify it.
func (s *Store) Get() *Config {
	return s.cur.Load()
}

// Set replaces the current configuration.
func (s *Store) Set(cfg *Config) {
	if cfg != nil {
		s.cur.Store(cfg)
	}
}
