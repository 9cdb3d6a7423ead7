package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BoundKey is a key the host forwards to vimsync as its own command.
type BoundKey struct {
	Key string `yaml:"key"`
	// Command is the host command name; it defaults to "vim.key:<Key>".
	Command string `yaml:"command,omitempty"`
	// When is an optional host keybinding condition.
	When string `yaml:"when,omitempty"`
}

type keybindingFile struct {
	Keybindings []BoundKey `yaml:"keybindings"`
}

// DefaultKeybindings are the keys bound when no manifest is configured.
func DefaultKeybindings() []BoundKey {
	keys := []string{"<Esc>", "<C-c>", "<C-r>", "<C-v>", "<C-w>", "<C-d>", "<C-u>", "<C-o>", "<Tab>", "<BS>", "<CR>"}
	out := make([]BoundKey, len(keys))
	for i, k := range keys {
		out[i] = BoundKey{Key: k, Command: KeyCommand(k)}
	}
	return out
}

// KeyCommand returns the host command name used for a bound key.
func KeyCommand(key string) string {
	return "vim.key:" + key
}

// LoadKeybindings reads a YAML manifest. An empty path or missing file
// yields DefaultKeybindings.
func LoadKeybindings(path string) ([]BoundKey, error) {
	if path == "" {
		return DefaultKeybindings(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultKeybindings(), nil
		}
		return nil, fmt.Errorf("reading keybindings %s: %w", path, err)
	}
	return ParseKeybindings(data)
}

// ParseKeybindings decodes a YAML manifest.
func ParseKeybindings(data []byte) ([]BoundKey, error) {
	var f keybindingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing keybindings: %w", err)
	}

	seen := make(map[string]bool, len(f.Keybindings))
	out := make([]BoundKey, 0, len(f.Keybindings))
	for i, b := range f.Keybindings {
		if b.Key == "" {
			return nil, fmt.Errorf("keybinding %d: missing key", i)
		}
		if b.Command == "" {
			b.Command = KeyCommand(b.Key)
		}
		if seen[b.Command] {
			return nil, fmt.Errorf("keybinding %d: command %q bound twice", i, b.Command)
		}
		seen[b.Command] = true
		out = append(out, b)
	}
	return out, nil
}
