// Package engine defines the contract between the input router and the
// modal editing engine it drives.
//
// The engine itself (mode state machine, motions, operators) is supplied by
// the embedding program; this package only names what the router needs.
package engine

import (
	"context"
	"errors"

	"github.com/dshills/vimsync/internal/host"
	"github.com/dshills/vimsync/internal/remap"
)

// Special keys understood by every engine.
const (
	KeyExtensionDisable = "<ExtensionDisable>"
	KeyExtensionEnable  = "<ExtensionEnable>"
	KeyEsc              = "<Esc>"
	KeyCtrlC            = "<C-c>"
)

// ErrNoEditor is returned by a Factory that is given a nil editor.
var ErrNoEditor = errors.New("engine: no editor")

// ModeEngine is the modal engine of one document.
//
// All methods are called from the router's task queue, one at a time.
type ModeEngine interface {
	// HandleKeyEvent processes one key.
	HandleKeyEvent(ctx context.Context, key string) error
	// HandleMultipleKeyEvents processes keys in order.
	HandleMultipleKeyEvents(ctx context.Context, keys []string) error
	// HandleSelectionChange reacts to a user selection change.
	HandleSelectionChange(ctx context.Context, ev host.SelectionChangeEvent) error
	// CurrentMode returns the current mode.
	CurrentMode() Mode
	// RemapState returns the engine's remap state.
	RemapState() *remap.State
	// SyncCursors adopts the selections of editor as the engine's cursors.
	SyncCursors(editor host.Editor)
	// RecordContentChanges appends document changes made in insert mode to
	// the engine's repeat history.
	RecordContentChanges(changes []host.ContentChange)
}

// SelectionWriter assigns selections on behalf of an engine. The handler
// implementation records each assignment as an expected echo before
// touching the editor.
type SelectionWriter interface {
	SetSelections(sels []host.Selection)
}

// Factory creates the engine for an editor.
type Factory func(editor host.Editor, w SelectionWriter) (ModeEngine, error)

// Jump is a position in a document, recorded in the jump list.
type Jump struct {
	URI      string
	Position host.Position
}

// JumpTracker is the jump list collaborator.
type JumpTracker interface {
	HandleTextDeleted(doc host.Document, r host.Range)
	HandleTextAdded(doc host.Document, r host.Range, text string)
	HandleFileJump(from, to *Jump)
}

// Registers is the register store collaborator.
type Registers interface {
	// SetReadonly sets a read-only register such as '%' or '#'.
	SetReadonly(name rune, value string)
	Get(name rune) (string, bool)
}
