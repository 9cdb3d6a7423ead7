package memhost

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/vimsync/internal/host"
)

func TestHost_NativeTypeAndReplace(t *testing.T) {
	ctx := context.Background()
	h := New()
	e := h.Open("file:///a.txt", "x")
	h.Focus(e)
	h.Click(e, host.Position{Line: 0, Character: 1})

	require.NoError(t, h.Type(ctx, "wo"))
	assert.Equal(t, "xwo", e.Doc().Text())

	args := host.ReplacePreviousCharArgs{Text: "or", ReplaceCharCnt: 1}.JSON()
	require.NoError(t, h.ExecuteCommand(ctx, host.CommandReplacePreviousChar, args))
	assert.Equal(t, "xwor", e.Doc().Text())
	assert.Equal(t, host.Position{Line: 0, Character: 4}, e.Selections()[0].Active)
}

func TestHost_ReplaceAcrossLines(t *testing.T) {
	ctx := context.Background()
	h := New()
	e := h.Open("file:///a.txt", "ab\ncd")
	h.Focus(e)
	h.Click(e, host.Position{Line: 1, Character: 1})

	args := host.ReplacePreviousCharArgs{ReplaceCharCnt: 2}.JSON()
	require.NoError(t, h.ExecuteCommand(ctx, host.NativeCommand(host.CommandReplacePreviousChar), args))
	assert.Equal(t, "abd", e.Doc().Text())
}

func TestHost_OverrideAndNativeFallback(t *testing.T) {
	ctx := context.Background()
	h := New()
	e := h.Open("file:///a.txt", "")
	h.Focus(e)

	var got []string
	d, err := h.RegisterCommand(host.CommandType, func(ctx context.Context, args []byte) error {
		a, err := host.ParseTypeArgs(args)
		require.NoError(t, err)
		got = append(got, a.Text)
		return h.ExecuteCommand(ctx, host.NativeCommand(host.CommandType), args)
	})
	require.NoError(t, err)

	require.NoError(t, h.Type(ctx, "hi"))
	assert.Equal(t, []string{"h", "i"}, got)
	assert.Equal(t, "hi", e.Doc().Text())

	d.Dispose()
	d.Dispose()
	require.NoError(t, h.Type(ctx, "!"))
	assert.Equal(t, []string{"h", "i"}, got)
	assert.Equal(t, "hi!", e.Doc().Text())
}

func TestHost_UnknownCommand(t *testing.T) {
	err := New().ExecuteCommand(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestHost_Events(t *testing.T) {
	h := New()
	var kinds []host.SelectionChangeKind
	var changes int
	var closed []string
	var focused []host.Editor

	subs := []host.Disposable{
		h.OnDidChangeTextEditorSelection(func(ev host.SelectionChangeEvent) { kinds = append(kinds, ev.Kind) }),
		h.OnDidChangeTextDocument(func(ev host.DocumentChangeEvent) { changes += len(ev.Changes) }),
		h.OnDidCloseTextDocument(func(d host.Document) { closed = append(closed, d.URI()) }),
		h.OnDidChangeActiveTextEditor(func(e host.Editor) { focused = append(focused, e) }),
	}
	assert.Equal(t, 4, h.ListenerCount())

	e := h.Open("file:///a.txt", "abc")
	h.Focus(e)
	e.SetSelections([]host.Selection{host.Cursor(host.Position{Character: 9})})
	// Assigned selections are clamped to the line.
	assert.Equal(t, 3, e.Selections()[0].Active.Character)
	h.Click(e, host.Position{})
	h.Edit(e, host.Range{}, "z")
	h.Close(e.Doc())

	assert.Equal(t, []host.SelectionChangeKind{host.KindCommand, host.KindMouse, host.KindKeyboard}, kinds)
	assert.Equal(t, 1, changes)
	assert.Equal(t, []string{"file:///a.txt"}, closed)
	assert.Len(t, focused, 1)
	assert.True(t, e.Doc().IsClosed())
	assert.Nil(t, h.ActiveEditor())
	assert.Empty(t, h.TextDocuments())
	assert.Equal(t, "zabc", e.Doc().Text())

	for _, s := range subs {
		s.Dispose()
	}
	assert.Equal(t, 0, h.ListenerCount())
}

func TestDocument_Scheme(t *testing.T) {
	h := New()
	assert.Equal(t, "output", h.Open("output:log", "").Doc().Scheme())
	assert.Equal(t, "a.txt", h.Open("file:///tmp/a.txt", "").Doc().FileName())
}

func TestHost_Context(t *testing.T) {
	h := New()
	require.NoError(t, h.SetContext(context.Background(), "vim.active", true))
	v, ok := h.Context("vim.active")
	assert.True(t, ok)
	assert.Equal(t, true, v)
}
