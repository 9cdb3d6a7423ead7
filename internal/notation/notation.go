// Package notation normalises key notation such as "<c-a>" or "<leader>w"
// into the canonical form the mode engine expects.
package notation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultLeader is the leader key when none is configured.
const DefaultLeader = "\\"

// Parse errors.
var (
	ErrEmptyKey         = errors.New("empty key")
	ErrUnmatchedBracket = errors.New("unmatched bracket in key notation")
	ErrUnknownModifier  = errors.New("unknown modifier")
)

var specialNames = map[string]string{
	"esc":       "<Esc>",
	"escape":    "<Esc>",
	"cr":        "<CR>",
	"enter":     "<CR>",
	"return":    "<CR>",
	"bs":        "<BS>",
	"backspace": "<BS>",
	"del":       "<Del>",
	"delete":    "<Del>",
	"tab":       "<Tab>",
	"space":     " ",
	"lt":        "<",
	"bar":       "|",
	"bslash":    "\\",
	"up":        "<Up>",
	"down":      "<Down>",
	"left":      "<Left>",
	"right":     "<Right>",
	"home":      "<Home>",
	"end":       "<End>",
	"pageup":    "<PageUp>",
	"pagedown":  "<PageDown>",
	"insert":    "<Insert>",
	"nop":       "<Nop>",
}

var modifierNames = map[string]string{
	"c": "C",
	"a": "A",
	"m": "A",
	"s": "S",
	"d": "D",
}

// NormalizeKey returns the canonical form of one key. "<leader>" expands to
// leader (DefaultLeader when empty). Unknown bracketed names are kept with
// their original spelling.
func NormalizeKey(key, leader string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	if leader == "" {
		leader = DefaultLeader
	}
	if !strings.HasPrefix(key, "<") || len(key) < 3 || !strings.HasSuffix(key, ">") {
		return key, nil
	}

	inner := key[1 : len(key)-1]
	lower := strings.ToLower(inner)
	if lower == "leader" {
		return leader, nil
	}
	if name, ok := specialNames[lower]; ok {
		return name, nil
	}

	parts := strings.Split(inner, "-")
	if len(parts) == 1 || parts[len(parts)-1] == "" {
		return key, nil
	}

	mods := make([]string, 0, len(parts)-1)
	for _, p := range parts[:len(parts)-1] {
		m, ok := modifierNames[strings.ToLower(p)]
		if !ok {
			return "", fmt.Errorf("%w %q in %s", ErrUnknownModifier, p, key)
		}
		mods = append(mods, m)
	}

	base := parts[len(parts)-1]
	if name, ok := specialNames[strings.ToLower(base)]; ok {
		base = strings.Trim(name, "<>")
	} else if utf8.RuneCountInString(base) == 1 {
		base = strings.ToLower(base)
	}
	return "<" + strings.Join(mods, "-") + "-" + base + ">", nil
}

// SplitKeys splits a key sequence such as "<C-w>j" into keys.
func SplitKeys(seq string) ([]string, error) {
	var keys []string
	for len(seq) > 0 {
		if seq[0] == '<' {
			if end := strings.IndexByte(seq, '>'); end > 1 {
				keys = append(keys, seq[:end+1])
				seq = seq[end+1:]
				continue
			}
			if strings.IndexByte(seq[1:], '<') < 0 && len(seq) > 1 {
				return nil, fmt.Errorf("%w: %q", ErrUnmatchedBracket, seq)
			}
		}
		r, size := utf8.DecodeRuneInString(seq)
		keys = append(keys, string(r))
		seq = seq[size:]
	}
	return keys, nil
}

// NormalizeKeys normalises every key of keys.
func NormalizeKeys(keys []string, leader string) ([]string, error) {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		n, err := NormalizeKey(k, leader)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
