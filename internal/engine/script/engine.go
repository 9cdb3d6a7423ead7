// Package script implements a mode engine whose key handling is written in
// Lua. The script defines on_key(key) and, optionally,
// on_selection(anchor_line, anchor_col, line, col, kind); it drives the
// editor through the global "vim" table.
package script

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/vimsync/internal/engine"
	"github.com/dshills/vimsync/internal/host"
	"github.com/dshills/vimsync/internal/logging"
	"github.com/dshills/vimsync/internal/remap"
)

//go:embed default.lua
var DefaultScript string

var (
	// ErrNoKeyHandler is returned when a script does not define on_key.
	ErrNoKeyHandler = errors.New("script: on_key is not defined")
	// ErrClosed is returned by calls after Close.
	ErrClosed = errors.New("script: engine closed")
)

// Engine is a Lua-scripted engine.ModeEngine for one document.
//
// gopher-lua states are not goroutine-safe; callMu serialises every entry
// into the script.
type Engine struct {
	callMu sync.Mutex
	L      *lua.LState
	closed bool
	// ctx is the context of the call in progress, read by the vim API.
	ctx context.Context

	mu      sync.Mutex
	editor  host.Editor
	mode    engine.Mode
	history []host.ContentChange

	writer engine.SelectionWriter
	host   host.Host
	remap  *remap.State
	logger *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New loads src into a fresh Lua state bound to editor.
func New(src string, editor host.Editor, w engine.SelectionWriter, hst host.Host, opts ...Option) (*Engine, error) {
	if editor == nil {
		return nil, engine.ErrNoEditor
	}
	e := &Engine{
		ctx:    context.Background(),
		editor: editor,
		writer: w,
		host:   hst,
		remap:  remap.NewState(),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("script")

	e.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(e.L)
	lua.OpenTable(e.L)
	lua.OpenString(e.L)
	lua.OpenMath(e.L)
	e.installAPI()

	if err := e.L.DoString(src); err != nil {
		e.L.Close()
		return nil, fmt.Errorf("script: load: %w", err)
	}
	if e.L.GetGlobal("on_key").Type() != lua.LTFunction {
		e.L.Close()
		return nil, ErrNoKeyHandler
	}
	return e, nil
}

// Factory returns an engine.Factory that loads src for every editor.
func Factory(hst host.Host, src string, logger *logging.Logger) engine.Factory {
	return func(editor host.Editor, w engine.SelectionWriter) (engine.ModeEngine, error) {
		return New(src, editor, w, hst, WithLogger(logger))
	}
}

// Close releases the Lua state. Later key events fail with ErrClosed.
func (e *Engine) Close() {
	e.callMu.Lock()
	defer e.callMu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.L.Close()
}

// HandleKeyEvent runs on_key. The extension keys are handled here and never
// reach the script; while disabled every other key is ignored.
func (e *Engine) HandleKeyEvent(ctx context.Context, key string) error {
	switch key {
	case engine.KeyExtensionDisable:
		e.setMode(engine.ModeDisabled)
		return nil
	case engine.KeyExtensionEnable:
		e.setMode(engine.ModeNormal)
		return nil
	}
	if e.CurrentMode() == engine.ModeDisabled {
		return nil
	}
	return e.call(ctx, "on_key", false, lua.LString(key))
}

func (e *Engine) HandleMultipleKeyEvents(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := e.HandleKeyEvent(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// HandleSelectionChange runs on_selection with the primary selection when
// the script defines it.
func (e *Engine) HandleSelectionChange(ctx context.Context, ev host.SelectionChangeEvent) error {
	if len(ev.Selections) == 0 || e.CurrentMode() == engine.ModeDisabled {
		return nil
	}
	s := ev.Selections[0]
	return e.call(ctx, "on_selection", true,
		lua.LNumber(s.Anchor.Line), lua.LNumber(s.Anchor.Character),
		lua.LNumber(s.Active.Line), lua.LNumber(s.Active.Character),
		lua.LString(ev.Kind.String()))
}

func (e *Engine) CurrentMode() engine.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

func (e *Engine) RemapState() *remap.State { return e.remap }

func (e *Engine) SyncCursors(editor host.Editor) {
	if editor == nil {
		return
	}
	e.mu.Lock()
	e.editor = editor
	e.mu.Unlock()
}

func (e *Engine) RecordContentChanges(changes []host.ContentChange) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, changes...)
}

// History returns the content changes recorded in insert mode.
func (e *Engine) History() []host.ContentChange {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]host.ContentChange(nil), e.history...)
}

func (e *Engine) setMode(m engine.Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != m {
		e.logger.Debug("mode %s -> %s", e.mode, m)
	}
	e.mode = m
}

func (e *Engine) currentEditor() host.Editor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.editor
}

// call invokes the global function fn with args under panic recovery. A
// missing optional function is not an error.
func (e *Engine) call(ctx context.Context, fn string, optional bool, args ...lua.LValue) (err error) {
	e.callMu.Lock()
	defer e.callMu.Unlock()
	if e.closed {
		return ErrClosed
	}

	e.ctx = ctx
	defer func() { e.ctx = context.Background() }()

	f := e.L.GetGlobal(fn)
	if f.Type() != lua.LTFunction {
		if optional {
			return nil
		}
		return fmt.Errorf("script: %s is not a function", fn)
	}

	top := e.L.GetTop()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script: %s panicked: %v", fn, r)
		}
		e.L.SetTop(top)
	}()

	e.L.Push(f)
	for _, a := range args {
		e.L.Push(a)
	}
	if err := e.L.PCall(len(args), 0, nil); err != nil {
		return fmt.Errorf("script: %s: %w", fn, err)
	}
	return nil
}

var _ engine.ModeEngine = (*Engine)(nil)
