// Package host defines the contract between vimsync and the editor it runs in.
//
// The host owns documents, editors and the command registry. It reports
// selection changes, document mutations, closes and focus changes through
// event subscriptions that return a Disposable.
package host

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// Position is a zero-based line/character location in a document.
type Position struct {
	Line      int
	Character int
}

// Before reports whether p comes before other.
func (p Position) Before(other Position) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Character < other.Character
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// Selection is a cursor with an anchor (where it started) and an active end.
type Selection struct {
	Anchor Position
	Active Position
}

// Cursor returns a collapsed selection at p.
func Cursor(p Position) Selection {
	return Selection{Anchor: p, Active: p}
}

// IsEmpty reports whether the selection is collapsed.
func (s Selection) IsEmpty() bool {
	return s.Anchor == s.Active
}

// Clamp keeps p inside doc: lines past the end land at the end of the last
// line, characters past a line's end land on that end. Hosts normalise
// assigned selections this way, so signatures built from clamped positions
// match the host's echo.
func Clamp(doc Document, p Position) Position {
	if p.Line < 0 {
		return Position{}
	}
	if doc == nil {
		if p.Character < 0 {
			p.Character = 0
		}
		return p
	}
	n := doc.LineCount()
	if n == 0 {
		return Position{}
	}
	if p.Line >= n {
		return Position{Line: n - 1, Character: utf8.RuneCountInString(doc.LineText(n - 1))}
	}
	end := utf8.RuneCountInString(doc.LineText(p.Line))
	p.Character = min(max(p.Character, 0), end)
	return p
}

// ClampSelections clamps both ends of every selection in place.
func ClampSelections(doc Document, sels []Selection) []Selection {
	for i := range sels {
		sels[i].Anchor = Clamp(doc, sels[i].Anchor)
		sels[i].Active = Clamp(doc, sels[i].Active)
	}
	return sels
}

// Range is a half-open span [Start, End) of a document.
type Range struct {
	Start Position
	End   Position
}

// SelectionChangeKind describes why the host changed a selection.
type SelectionChangeKind int

const (
	// KindUnknown means the host did not say.
	KindUnknown SelectionChangeKind = iota
	// KindKeyboard is a selection change caused by typing or cursor keys.
	KindKeyboard
	// KindMouse is a direct pointer interaction (click, drag).
	KindMouse
	// KindCommand is a change made by a command or an extension.
	KindCommand
)

// String returns the kind name.
func (k SelectionChangeKind) String() string {
	switch k {
	case KindKeyboard:
		return "keyboard"
	case KindMouse:
		return "mouse"
	case KindCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Document is an open text document.
type Document interface {
	// URI is the stable identity of the document.
	URI() string
	// Scheme is the URI scheme, e.g. "file", "untitled", "output".
	Scheme() string
	// FileName is the document's path or display name.
	FileName() string
	IsClosed() bool
	LineCount() int
	// LineText returns the text of line i without its terminator.
	LineText(i int) string
}

// Editor is a view onto a document. Several editors may show one document.
type Editor interface {
	Document() Document
	Selections() []Selection
	// SetSelections replaces the editor's selections. The host reports the
	// change back through the selection-change event.
	SetSelections(sels []Selection)
}

// SelectionChangeEvent reports new selections of an editor.
type SelectionChangeEvent struct {
	Editor     Editor
	Selections []Selection
	Kind       SelectionChangeKind
}

// ContentChange is one replaced range of a document.
type ContentChange struct {
	Range       Range
	RangeLength int
	Text        string
}

// DocumentChangeEvent reports a mutation of a document.
type DocumentChangeEvent struct {
	Document Document
	Changes  []ContentChange
	Reason   string
}

// Disposable releases a host resource.
type Disposable interface {
	Dispose()
}

// DisposableFunc adapts a function to Disposable.
type DisposableFunc func()

// Dispose calls f.
func (f DisposableFunc) Dispose() {
	if f != nil {
		f()
	}
}

// CommandHandler runs a registered command. Args are the raw JSON arguments.
type CommandHandler func(ctx context.Context, args []byte) error

// Host is the editor vimsync runs inside.
type Host interface {
	// ActiveEditor returns the focused editor, or nil.
	ActiveEditor() Editor
	// TextDocuments returns the documents currently open.
	TextDocuments() []Document

	// RegisterCommand installs a command handler. Registering one of the
	// host's own commands overrides it; the native behaviour stays
	// reachable under NativeCommand(name).
	RegisterCommand(name string, handler CommandHandler) (Disposable, error)
	// ExecuteCommand runs a command with raw JSON args.
	ExecuteCommand(ctx context.Context, name string, args []byte) error
	// SetContext sets a host context key used by keybinding conditions.
	SetContext(ctx context.Context, key string, value any) error

	OnDidChangeTextEditorSelection(func(SelectionChangeEvent)) Disposable
	OnDidChangeTextDocument(func(DocumentChangeEvent)) Disposable
	OnDidCloseTextDocument(func(Document)) Disposable
	OnDidChangeActiveTextEditor(func(Editor)) Disposable
}

// Event names used to tag listener registrations.
const (
	EventSelectionChanged    = "onDidChangeTextEditorSelection"
	EventDocumentChanged     = "onDidChangeTextDocument"
	EventDocumentClosed      = "onDidCloseTextDocument"
	EventActiveEditorChanged = "onDidChangeActiveTextEditor"
)

// Host commands that vimsync overrides.
const (
	CommandType                = "type"
	CommandReplacePreviousChar = "replacePreviousChar"
	CommandCompositionStart    = "compositionStart"
	CommandCompositionEnd      = "compositionEnd"
)

// Special document identities and schemes.
const (
	// SchemeOutput marks log/output channels.
	SchemeOutput = "output"
	// DebugInputURI is the debug console REPL input.
	DebugInputURI = "debug:input"
)

// NativeCommand returns the name under which the host keeps its own
// implementation of an overridden command.
func NativeCommand(name string) string {
	return "default:" + name
}
