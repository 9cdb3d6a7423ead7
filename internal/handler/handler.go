// Package handler holds the per-document state the router drives: the mode
// engine, the selection echo filter and the composition machine.
package handler

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dshills/vimsync/internal/composition"
	"github.com/dshills/vimsync/internal/engine"
	"github.com/dshills/vimsync/internal/host"
	"github.com/dshills/vimsync/internal/logging"
	"github.com/dshills/vimsync/internal/selection"
)

// TransitionFunc is called after a key or selection moved the engine from
// one mode to another.
type TransitionFunc func(ctx context.Context, h *ModeHandler, from, to engine.Mode) error

// ModeHandler is the state of one document. Apart from construction and the
// arrival-time filter checks, it is only used from the router's queue.
type ModeHandler struct {
	id     uuid.UUID
	uri    string
	host   host.Host
	editor host.Editor

	engine      engine.ModeEngine
	filter      *selection.Filter
	composition *composition.Machine

	focusChanged bool
	onTransition TransitionFunc
	logger       *logging.Logger
}

// Option configures a ModeHandler.
type Option func(*ModeHandler)

// WithLogger sets the handler's logger.
func WithLogger(l *logging.Logger) Option {
	return func(h *ModeHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithTransition sets the mode transition callback.
func WithTransition(fn TransitionFunc) Option {
	return func(h *ModeHandler) {
		h.onTransition = fn
	}
}

// New creates the handler for editor's document. The engine is built by
// factory with the handler as its selection writer.
func New(hst host.Host, editor host.Editor, factory engine.Factory, opts ...Option) (*ModeHandler, error) {
	if editor == nil || editor.Document() == nil {
		return nil, engine.ErrNoEditor
	}

	h := &ModeHandler{
		id:     uuid.New(),
		uri:    editor.Document().URI(),
		host:   hst,
		editor: editor,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.WithFields(map[string]any{
		"handler": h.id.String()[:8],
		"uri":     h.uri,
	})
	h.filter = selection.NewFilter(nil, h.logger)
	h.composition = composition.NewMachine(h.logger)

	eng, err := factory(editor, h)
	if err != nil {
		return nil, fmt.Errorf("create engine for %s: %w", h.uri, err)
	}
	h.engine = eng
	h.logger.Debug("handler created in %s mode", eng.CurrentMode())
	return h, nil
}

// ID returns the handler's unique id.
func (h *ModeHandler) ID() uuid.UUID { return h.id }

// URI returns the document identity.
func (h *ModeHandler) URI() string { return h.uri }

// Editor returns the editor the handler last synced with.
func (h *ModeHandler) Editor() host.Editor { return h.editor }

// Document returns the handler's document.
func (h *ModeHandler) Document() host.Document { return h.editor.Document() }

// Engine returns the mode engine.
func (h *ModeHandler) Engine() engine.ModeEngine { return h.engine }

// Filter returns the selection echo filter.
func (h *ModeHandler) Filter() *selection.Filter { return h.filter }

// Composition returns the composition machine.
func (h *ModeHandler) Composition() *composition.Machine { return h.composition }

// Mode returns the engine's current mode.
func (h *ModeHandler) Mode() engine.Mode { return h.engine.CurrentMode() }

// Logger returns the handler's logger.
func (h *ModeHandler) Logger() *logging.Logger { return h.logger }

// SetSelections clamps sels to the document, records them as an expected
// echo and then assigns them. The echo carries the clamped positions, so
// the recorded signature must too.
func (h *ModeHandler) SetSelections(sels []host.Selection) {
	sels = host.ClampSelections(h.editor.Document(), append([]host.Selection(nil), sels...))
	h.filter.Expect(sels)
	h.editor.SetSelections(sels)
}

// MarkFocusChanged makes the next selection notification a focus echo.
func (h *ModeHandler) MarkFocusChanged() { h.focusChanged = true }

// ClearFocusChanged drops a pending focus echo.
func (h *ModeHandler) ClearFocusChanged() { h.focusChanged = false }

// FocusChanged reports whether a focus echo is still expected.
func (h *ModeHandler) FocusChanged() bool { return h.focusChanged }

// SelectionState returns the filter state for the current mode.
func (h *ModeHandler) SelectionState(optedOut func(engine.Mode) bool) selection.State {
	st := selection.State{FocusChanged: &h.focusChanged}
	if optedOut != nil {
		st.OptedOut = optedOut(h.engine.CurrentMode())
	}
	return st
}

// SyncEditor adopts editor (a new view of the same document) and resyncs
// the engine's cursors from it.
func (h *ModeHandler) SyncEditor(editor host.Editor) {
	if editor != nil {
		h.editor = editor
	}
	h.engine.SyncCursors(h.editor)
}

// Reset abandons composition and pending echoes.
func (h *ModeHandler) Reset() {
	h.composition.Reset()
	h.filter.Reset()
}

// Close releases the engine's resources if it holds any.
func (h *ModeHandler) Close() {
	if c, ok := h.engine.(interface{ Close() }); ok {
		c.Close()
	}
}

// HandleKeyEvent forwards key to the engine.
func (h *ModeHandler) HandleKeyEvent(ctx context.Context, key string) error {
	return h.tracked(ctx, func() error { return h.engine.HandleKeyEvent(ctx, key) })
}

// HandleMultipleKeyEvents forwards keys to the engine.
func (h *ModeHandler) HandleMultipleKeyEvents(ctx context.Context, keys []string) error {
	return h.tracked(ctx, func() error { return h.engine.HandleMultipleKeyEvents(ctx, keys) })
}

// HandleSelectionChange forwards a user selection change to the engine.
func (h *ModeHandler) HandleSelectionChange(ctx context.Context, ev host.SelectionChangeEvent) error {
	return h.tracked(ctx, func() error { return h.engine.HandleSelectionChange(ctx, ev) })
}

func (h *ModeHandler) tracked(ctx context.Context, fn func() error) error {
	from := h.engine.CurrentMode()
	err := fn()
	to := h.engine.CurrentMode()
	if from != to {
		h.logger.Debug("mode %s -> %s", from, to)
		if h.onTransition != nil {
			if terr := h.onTransition(ctx, h, from, to); terr != nil && err == nil {
				err = terr
			}
		}
	}
	return err
}

// InsertMode reports whether the engine is in insert mode.
func (h *ModeHandler) InsertMode() bool { return h.engine.CurrentMode().IsInsert() }

// NativeType runs the host's own type command.
func (h *ModeHandler) NativeType(ctx context.Context, text string) error {
	return h.host.ExecuteCommand(ctx, host.NativeCommand(host.CommandType), host.TypeArgs{Text: text}.JSON())
}

// NativeReplacePreviousChar runs the host's own replacePreviousChar command.
func (h *ModeHandler) NativeReplacePreviousChar(ctx context.Context, text string, count int) error {
	args := host.ReplacePreviousCharArgs{Text: text, ReplaceCharCnt: count}
	return h.host.ExecuteCommand(ctx, host.NativeCommand(host.CommandReplacePreviousChar), args.JSON())
}

// IgnoreIntermediateSelections raises intermediate selection suppression.
func (h *ModeHandler) IgnoreIntermediateSelections() func() {
	return h.filter.IgnoreIntermediate()
}

// Type handles the type override point.
func (h *ModeHandler) Type(ctx context.Context, text string) error {
	return h.composition.Type(ctx, h, text)
}

// ReplacePreviousChar handles the replacePreviousChar override point.
func (h *ModeHandler) ReplacePreviousChar(ctx context.Context, text string, count int) error {
	return h.composition.ReplacePreviousChar(ctx, h, text, count)
}

// CompositionStart handles the compositionStart override point.
func (h *ModeHandler) CompositionStart() {
	h.composition.Start()
}

// CompositionEnd handles the compositionEnd override point.
func (h *ModeHandler) CompositionEnd(ctx context.Context) error {
	return h.composition.End(ctx, h)
}

var (
	_ engine.SelectionWriter = (*ModeHandler)(nil)
	_ composition.Target     = (*ModeHandler)(nil)
)
