package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/vimsync/internal/engine"
	"github.com/dshills/vimsync/internal/engine/enginetest"
	"github.com/dshills/vimsync/internal/host"
	"github.com/dshills/vimsync/internal/memhost"
)

func newHandler(t *testing.T, text string, opts ...Option) (*ModeHandler, *enginetest.Engine, *memhost.Host, *memhost.Editor) {
	t.Helper()
	hst := memhost.New()
	ed := hst.Open("file:///doc.txt", text)
	hst.Focus(ed)

	var eng *enginetest.Engine
	h, err := New(hst, ed, enginetest.Factory(hst, func(e *enginetest.Engine) { eng = e }), opts...)
	require.NoError(t, err)
	return h, eng, hst, ed
}

func TestNew_RequiresEditor(t *testing.T) {
	_, err := New(memhost.New(), nil, enginetest.Factory(nil, nil))
	assert.ErrorIs(t, err, engine.ErrNoEditor)
}

func TestNew_FactoryError(t *testing.T) {
	hst := memhost.New()
	ed := hst.Open("file:///x", "")
	boom := errors.New("no engine")
	_, err := New(hst, ed, func(host.Editor, engine.SelectionWriter) (engine.ModeEngine, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestModeHandler_SetSelectionsRecordsEcho(t *testing.T) {
	h, eng, _, ed := newHandler(t, "one\ntwo")

	require.NoError(t, h.HandleKeyEvent(context.Background(), "j"))

	assert.Equal(t, 1, h.Filter().Registry().Len())
	assert.Equal(t, host.Position{Line: 1}, ed.Selections()[0].Active)
	assert.Equal(t, []string{"j"}, eng.Keys())
	assert.Equal(t, "file:///doc.txt", h.URI())
	assert.NotEqual(t, h.ID().String(), "")
}

func TestModeHandler_TransitionCallback(t *testing.T) {
	type step struct{ from, to engine.Mode }
	var steps []step
	h, _, _, _ := newHandler(t, "", WithTransition(func(_ context.Context, _ *ModeHandler, from, to engine.Mode) error {
		steps = append(steps, step{from, to})
		return nil
	}))
	ctx := context.Background()

	require.NoError(t, h.HandleKeyEvent(ctx, "l"))
	require.NoError(t, h.HandleMultipleKeyEvents(ctx, []string{"i", "x"}))
	require.NoError(t, h.HandleKeyEvent(ctx, "<Esc>"))

	assert.Equal(t, []step{
		{engine.ModeNormal, engine.ModeInsert},
		{engine.ModeInsert, engine.ModeNormal},
	}, steps)
}

func TestModeHandler_TransitionErrorReturned(t *testing.T) {
	boom := errors.New("restore failed")
	h, _, _, _ := newHandler(t, "", WithTransition(func(context.Context, *ModeHandler, engine.Mode, engine.Mode) error {
		return boom
	}))
	assert.ErrorIs(t, h.HandleKeyEvent(context.Background(), "i"), boom)
}

func TestModeHandler_CompositionInInsertMode(t *testing.T) {
	ctx := context.Background()
	h, eng, _, ed := newHandler(t, "")
	eng.SetMode(engine.ModeInsert)

	h.CompositionStart()
	require.NoError(t, h.Type(ctx, "w"))
	require.NoError(t, h.Type(ctx, "o"))
	require.NoError(t, h.ReplacePreviousChar(ctx, "or", 1))
	assert.Equal(t, "wor", ed.Doc().Text())

	require.NoError(t, h.CompositionEnd(ctx))

	assert.Equal(t, []string{"w", "o", "r"}, eng.Keys())
	// Retracted, then typed again by the engine.
	assert.Equal(t, "wor", ed.Doc().Text())
	assert.False(t, h.Filter().IgnoringIntermediate())
}

func TestModeHandler_CompositionInNormalMode(t *testing.T) {
	ctx := context.Background()
	h, eng, _, ed := newHandler(t, "a\nb\nc")

	h.CompositionStart()
	require.NoError(t, h.Type(ctx, "j"))
	require.NoError(t, h.Type(ctx, "j"))
	assert.Empty(t, eng.Keys())

	require.NoError(t, h.CompositionEnd(ctx))
	assert.Equal(t, []string{"j", "j"}, eng.Keys())
	assert.Equal(t, host.Position{Line: 2}, ed.Selections()[0].Active)
	assert.Equal(t, "a\nb\nc", ed.Doc().Text())
}

func TestModeHandler_FocusState(t *testing.T) {
	h, eng, _, _ := newHandler(t, "")
	h.MarkFocusChanged()
	st := h.SelectionState(func(m engine.Mode) bool { return m == engine.ModeVisual })
	require.NotNil(t, st.FocusChanged)
	assert.True(t, *st.FocusChanged)
	assert.False(t, st.OptedOut)

	*st.FocusChanged = false
	assert.False(t, h.FocusChanged())

	eng.SetMode(engine.ModeVisual)
	assert.True(t, h.SelectionState(func(m engine.Mode) bool { return m == engine.ModeVisual }).OptedOut)
}

func TestModeHandler_SyncEditorAndReset(t *testing.T) {
	h, eng, hst, ed := newHandler(t, "")
	other := hst.Split(ed)

	h.SyncEditor(other)
	assert.Same(t, other, h.Editor())
	assert.Equal(t, 1, eng.Synced())

	h.Filter().Expect(ed.Selections())
	h.CompositionStart()
	h.Reset()
	assert.Equal(t, 0, h.Filter().Registry().Len())
	assert.Equal(t, "idle", h.Composition().State().String())
}

func TestMap(t *testing.T) {
	m := NewMap()
	a, _, _, _ := newHandler(t, "")
	calls := 0
	create := func() (*ModeHandler, error) {
		calls++
		return a, nil
	}

	h, created, err := m.GetOrCreate("b", create)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Same(t, a, h)

	_, created, err = m.GetOrCreate("b", create)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, calls)

	_, _, err = m.GetOrCreate("c", func() (*ModeHandler, error) { return nil, errors.New("x") })
	assert.Error(t, err)
	assert.Equal(t, 1, m.Len())

	_, ok := m.Delete("b")
	assert.True(t, ok)
	_, ok = m.Get("b")
	assert.False(t, ok)

	_, _, _ = m.GetOrCreate("z", create)
	m.Clear()
	assert.Empty(t, m.Entries())
}

type closingEngine struct {
	*enginetest.Engine
	closed int
}

func (c *closingEngine) Close() { c.closed++ }

func TestMap_ClearClosesEngines(t *testing.T) {
	hst := memhost.New()
	ed := hst.Open("file:///a", "")
	var eng *closingEngine
	h, err := New(hst, ed, func(editor host.Editor, w engine.SelectionWriter) (engine.ModeEngine, error) {
		eng = &closingEngine{Engine: enginetest.New(editor, w)}
		return eng, nil
	})
	require.NoError(t, err)

	m := NewMap()
	_, _, err = m.GetOrCreate(h.URI(), func() (*ModeHandler, error) { return h, nil })
	require.NoError(t, err)

	m.Clear()
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 1, eng.closed)

	// Engines without Close are left alone.
	plain, _, _, _ := newHandler(t, "")
	assert.NotPanics(t, plain.Close)
}
