// Package composition tracks IME composition sessions and reconciles them
// with the host's optimistic edits.
//
// Some input methods insert composed text into the document before the
// composition ends, others do not. The Machine follows the composition
// through the host's override points and, at the end, retracts whatever the
// host inserted and replays the final text as discrete keys so the mode
// engine processes every composed character.
package composition

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/dshills/vimsync/internal/logging"
)

// State is the composition state.
type State int

const (
	// Idle means no composition is in progress.
	Idle State = iota
	// Composing means a composition session is open.
	Composing
)

// String returns the state name.
func (s State) String() string {
	if s == Composing {
		return "composing"
	}
	return "idle"
}

// Buffer is the per-document composition record.
type Buffer struct {
	InComposition     bool
	ComposingText     string
	NativeEditApplied bool
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	*b = Buffer{}
}

// Target is what the Machine drives: the host's native edits, the mode
// engine's key entry points and the selection filter's intermediate
// suppression.
type Target interface {
	// InsertMode reports whether the engine is in the insert-like mode.
	InsertMode() bool
	// HandleKeyEvent delivers one key to the mode engine.
	HandleKeyEvent(ctx context.Context, key string) error
	// HandleMultipleKeyEvents delivers keys to the mode engine in order.
	HandleMultipleKeyEvents(ctx context.Context, keys []string) error
	// NativeType performs the host's own "type".
	NativeType(ctx context.Context, text string) error
	// NativeReplacePreviousChar performs the host's own "replacePreviousChar".
	NativeReplacePreviousChar(ctx context.Context, text string, count int) error
	// IgnoreIntermediateSelections raises selection-echo suppression until
	// the returned function is called.
	IgnoreIntermediateSelections() (release func())
}

// Machine is the composition state machine of one document. Its methods
// must be called from the owning handler's queued tasks.
type Machine struct {
	buf    Buffer
	logger *logging.Logger
}

// NewMachine creates an idle machine.
func NewMachine(logger *logging.Logger) *Machine {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Machine{logger: logger.WithComponent("composition")}
}

// State returns the current state.
func (m *Machine) State() State {
	if m.buf.InComposition {
		return Composing
	}
	return Idle
}

// Buffer returns a copy of the composition buffer.
func (m *Machine) Buffer() Buffer {
	return m.buf
}

// Reset abandons any composition in progress.
func (m *Machine) Reset() {
	m.buf.Reset()
}

// Start opens a composition session.
func (m *Machine) Start() {
	if m.buf.InComposition {
		m.logger.Debug("composition restarted with %q pending", m.buf.ComposingText)
	}
	m.buf.Reset()
	m.buf.InComposition = true
}

// Type handles the host's "type" override point. Outside a composition the
// text is an ordinary key for the engine.
func (m *Machine) Type(ctx context.Context, t Target, text string) error {
	if !m.buf.InComposition {
		return t.HandleKeyEvent(ctx, text)
	}

	m.buf.ComposingText += text
	if t.InsertMode() {
		m.buf.NativeEditApplied = true
		if err := t.NativeType(ctx, text); err != nil {
			return fmt.Errorf("composition type: %w", err)
		}
	}
	return nil
}

// ReplacePreviousChar handles the IME correcting the last count composed
// characters with text. Outside a composition it is ignored.
func (m *Machine) ReplacePreviousChar(ctx context.Context, t Target, text string, count int) error {
	if !m.buf.InComposition {
		m.logger.Trace("replacePreviousChar(%d, %q) outside composition ignored", count, text)
		return nil
	}

	m.buf.ComposingText = truncateRunes(m.buf.ComposingText, count) + text
	if m.buf.NativeEditApplied {
		if err := t.NativeReplacePreviousChar(ctx, text, count); err != nil {
			return fmt.Errorf("composition replace: %w", err)
		}
	}
	return nil
}

// End closes the session. Text the host inserted natively is deleted with
// intermediate selections suppressed, then the composed text is replayed as
// one key per character. The buffer is reset even if replay fails.
func (m *Machine) End(ctx context.Context, t Target) error {
	if !m.buf.InComposition {
		m.logger.Debug("composition end without start")
	}
	defer m.buf.Reset()

	text := m.buf.ComposingText
	if m.buf.NativeEditApplied {
		if err := m.retract(ctx, t, utf8.RuneCountInString(text)); err != nil {
			return err
		}
	}

	if text == "" {
		return nil
	}
	keys := splitKeys(text)
	m.logger.Debug("replaying composed text %q as %d keys", text, len(keys))
	return t.HandleMultipleKeyEvents(ctx, keys)
}

func (m *Machine) retract(ctx context.Context, t Target, count int) error {
	release := t.IgnoreIntermediateSelections()
	defer release()

	if err := t.NativeReplacePreviousChar(ctx, "", count); err != nil {
		return fmt.Errorf("composition retract: %w", err)
	}
	return nil
}

// truncateRunes drops the last n runes of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := len(s)
	for ; n > 0 && i > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return s[:i]
}

// splitKeys splits text into one key per rune.
func splitKeys(text string) []string {
	keys := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		keys = append(keys, string(r))
	}
	return keys
}
