// Package enginetest provides a small scripted mode engine for tests.
package enginetest

import (
	"context"
	"sync"

	"github.com/dshills/vimsync/internal/engine"
	"github.com/dshills/vimsync/internal/host"
	"github.com/dshills/vimsync/internal/remap"
)

// Engine understands i, v, <Esc>, h/j/k/l and the extension keys. In
// insert mode other keys are typed through the host's native type command
// when Host is set.
type Engine struct {
	mu     sync.Mutex
	editor host.Editor
	writer engine.SelectionWriter
	mode   engine.Mode
	remap  *remap.State

	keys       []string
	selections []host.SelectionChangeEvent
	changes    []host.ContentChange
	synced     int

	// Host receives native typing in insert mode.
	Host host.Host
	// OnKey, when set, runs before each key is interpreted.
	OnKey func(ctx context.Context, key string) error
}

// New creates an engine in normal mode.
func New(editor host.Editor, w engine.SelectionWriter) *Engine {
	return &Engine{editor: editor, writer: w, remap: remap.NewState()}
}

// Factory returns a factory that records every engine it builds.
func Factory(hst host.Host, created func(*Engine)) engine.Factory {
	return func(editor host.Editor, w engine.SelectionWriter) (engine.ModeEngine, error) {
		if editor == nil {
			return nil, engine.ErrNoEditor
		}
		e := New(editor, w)
		e.Host = hst
		if created != nil {
			created(e)
		}
		return e, nil
	}
}

func (e *Engine) HandleKeyEvent(ctx context.Context, key string) error {
	if e.OnKey != nil {
		if err := e.OnKey(ctx, key); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.keys = append(e.keys, key)
	mode := e.mode
	e.mu.Unlock()

	switch key {
	case engine.KeyExtensionDisable:
		e.setMode(engine.ModeDisabled)
		return nil
	case engine.KeyExtensionEnable:
		e.setMode(engine.ModeNormal)
		return nil
	case engine.KeyEsc, engine.KeyCtrlC:
		e.setMode(engine.ModeNormal)
		return nil
	}

	switch mode {
	case engine.ModeInsert:
		if e.Host != nil {
			return e.Host.ExecuteCommand(ctx, host.NativeCommand(host.CommandType), host.TypeArgs{Text: key}.JSON())
		}
	case engine.ModeNormal, engine.ModeVisual:
		switch key {
		case "i":
			e.setMode(engine.ModeInsert)
		case "v":
			e.setMode(engine.ModeVisual)
		case "h":
			e.move(0, -1)
		case "l":
			e.move(0, 1)
		case "j":
			e.move(1, 0)
		case "k":
			e.move(-1, 0)
		}
	}
	return nil
}

func (e *Engine) HandleMultipleKeyEvents(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := e.HandleKeyEvent(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) HandleSelectionChange(_ context.Context, ev host.SelectionChangeEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selections = append(e.selections, ev)
	return nil
}

func (e *Engine) CurrentMode() engine.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

func (e *Engine) RemapState() *remap.State { return e.remap }

func (e *Engine) SyncCursors(editor host.Editor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.editor = editor
	e.synced++
}

func (e *Engine) RecordContentChanges(changes []host.ContentChange) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changes = append(e.changes, changes...)
}

// SetMode forces the mode.
func (e *Engine) SetMode(m engine.Mode) { e.setMode(m) }

func (e *Engine) setMode(m engine.Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = m
}

func (e *Engine) move(dl, dc int) {
	sels := e.editor.Selections()
	if len(sels) == 0 {
		return
	}
	p := sels[0].Active
	p.Line += dl
	p.Character += dc
	if p.Line < 0 {
		p.Line = 0
	}
	if p.Character < 0 {
		p.Character = 0
	}
	e.writer.SetSelections([]host.Selection{host.Cursor(p)})
}

// Keys returns every key delivered so far.
func (e *Engine) Keys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.keys...)
}

// Selections returns every forwarded selection change.
func (e *Engine) Selections() []host.SelectionChangeEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]host.SelectionChangeEvent(nil), e.selections...)
}

// Changes returns the recorded content changes.
func (e *Engine) Changes() []host.ContentChange {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]host.ContentChange(nil), e.changes...)
}

// Synced returns how many times SyncCursors ran.
func (e *Engine) Synced() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.synced
}

var _ engine.ModeEngine = (*Engine)(nil)
