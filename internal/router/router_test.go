package router

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/vimsync/internal/config"
	"github.com/dshills/vimsync/internal/engine"
	"github.com/dshills/vimsync/internal/engine/enginetest"
	"github.com/dshills/vimsync/internal/host"
	"github.com/dshills/vimsync/internal/memhost"
	"github.com/dshills/vimsync/internal/subscription"
)

type fakeJumps struct {
	deleted []host.Range
	added   []string
	files   [][2]*engine.Jump
}

func (j *fakeJumps) HandleTextDeleted(_ host.Document, r host.Range) { j.deleted = append(j.deleted, r) }
func (j *fakeJumps) HandleTextAdded(_ host.Document, _ host.Range, text string) {
	j.added = append(j.added, text)
}
func (j *fakeJumps) HandleFileJump(from, to *engine.Jump) {
	j.files = append(j.files, [2]*engine.Jump{from, to})
}

type fakeRegisters struct {
	mu   sync.Mutex
	regs map[rune]string
}

func (r *fakeRegisters) SetReadonly(name rune, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs[name] = value
}

func (r *fakeRegisters) Get(name rune) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.regs[name]
	return v, ok
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	host   *memhost.Host
	ed     *memhost.Editor
	router *Router
	jumps  *fakeJumps
	regs   *fakeRegisters

	mu      sync.Mutex
	engines map[string][]*enginetest.Engine
}

func newFixture(t *testing.T, text string, cfg *config.Config, before func(*memhost.Host, *memhost.Editor)) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		host:    memhost.New(),
		jumps:   &fakeJumps{},
		regs:    &fakeRegisters{regs: map[rune]string{}},
		engines: map[string][]*enginetest.Engine{},
	}
	f.ed = f.host.Open("file:///a.txt", text)
	f.host.Focus(f.ed)
	if before != nil {
		before(f.host, f.ed)
	}

	factory := func(editor host.Editor, w engine.SelectionWriter) (engine.ModeEngine, error) {
		e := enginetest.New(editor, w)
		e.Host = f.host
		f.mu.Lock()
		uri := editor.Document().URI()
		f.engines[uri] = append(f.engines[uri], e)
		f.mu.Unlock()
		return e, nil
	}

	f.router = New(f.host, factory,
		WithConfig(config.NewStore(cfg)),
		WithJumpTracker(f.jumps),
		WithRegisters(f.regs),
	)
	require.NoError(t, f.router.Activate(f.ctx))
	f.flush()
	t.Cleanup(func() {
		if err := f.router.Deactivate(context.Background()); err != nil {
			assert.ErrorIs(t, err, ErrNotActive)
		}
	})
	return f
}

func (f *fixture) flush() {
	f.t.Helper()
	require.NoError(f.t, f.router.Flush(f.ctx))
}

// engine returns the newest engine created for uri.
func (f *fixture) engine(uri string) *enginetest.Engine {
	f.t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.engines[uri]
	require.NotEmpty(f.t, list, uri)
	return list[len(list)-1]
}

func (f *fixture) typeText(text string) {
	f.t.Helper()
	require.NoError(f.t, f.host.Type(f.ctx, text))
	f.flush()
}

func (f *fixture) exec(name string, args []byte) {
	f.t.Helper()
	require.NoError(f.t, f.host.ExecuteCommand(f.ctx, name, args))
	f.flush()
}

const uriA = "file:///a.txt"

var fullSubscriptionCount = 10 + len(config.DefaultKeybindings())

func TestActivate(t *testing.T) {
	f := newFixture(t, "hello", nil, nil)

	assert.Equal(t, fullSubscriptionCount, f.router.Subscriptions().Len())
	nav, _ := f.host.Context(ContextListNavigation)
	assert.Equal(t, false, nav)
	active, _ := f.host.Context(ContextActive)
	assert.Equal(t, true, active)
	assert.Equal(t, 1, f.router.Handlers().Len())
	assert.Equal(t, []string{engine.KeyExtensionEnable}, f.engine(uriA).Keys())
	pct, _ := f.regs.Get('%')
	assert.Equal(t, "a.txt", pct)

	assert.ErrorIs(t, f.router.Activate(f.ctx), ErrAlreadyActive)
}

func TestEngineSelectionEchoIsSuppressed(t *testing.T) {
	f := newFixture(t, "one\ntwo\nthree", nil, nil)

	f.typeText("j")

	eng := f.engine(uriA)
	assert.Equal(t, host.Position{Line: 1}, f.ed.Selections()[0].Active)
	assert.Empty(t, eng.Selections())
	h, ok := f.router.Handlers().Get(uriA)
	require.True(t, ok)
	assert.Equal(t, 0, h.Filter().Registry().Len())
}

func TestUserSelectionsAreForwarded(t *testing.T) {
	f := newFixture(t, "one\ntwo", nil, nil)

	f.host.Click(f.ed, host.Position{Line: 1, Character: 2})
	f.host.Select(f.ed, []host.Selection{host.Cursor(host.Position{Line: 0, Character: 1})}, host.KindKeyboard)
	f.flush()

	sels := f.engine(uriA).Selections()
	require.Len(t, sels, 2)
	assert.Equal(t, host.KindMouse, sels[0].Kind)
	assert.Equal(t, host.KindKeyboard, sels[1].Kind)
}

func TestDuplicateSignaturesBothConsumed(t *testing.T) {
	f := newFixture(t, "abc", nil, nil)

	// h at column 0 assigns the same selection twice.
	f.typeText("hh")
	eng := f.engine(uriA)
	assert.Empty(t, eng.Selections())

	f.host.Select(f.ed, []host.Selection{host.Cursor(host.Position{})}, host.KindKeyboard)
	f.flush()
	assert.Len(t, eng.Selections(), 1)
}

func TestInsertModeSuspendsAndRestoresSubscriptions(t *testing.T) {
	f := newFixture(t, "", nil, nil)
	initial := f.router.Subscriptions().IDs()

	f.typeText("i")
	assert.Equal(t, engine.ModeInsert, f.engine(uriA).CurrentMode())
	assert.Equal(t, fullSubscriptionCount-len(subscription.InsertSuppressible), f.router.Subscriptions().Len())
	for _, id := range subscription.InsertSuppressible {
		assert.False(t, f.router.Subscriptions().Has(id), id)
	}

	// Typing now goes straight to the host.
	f.typeText("xy")
	assert.Equal(t, "xy", f.ed.Doc().Text())
	assert.Equal(t, []string{engine.KeyExtensionEnable, "i"}, f.engine(uriA).Keys())
	assert.Len(t, f.engine(uriA).Changes(), 2)

	f.exec(config.KeyCommand(engine.KeyEsc), nil)
	assert.Equal(t, engine.ModeNormal, f.engine(uriA).CurrentMode())
	assert.ElementsMatch(t, initial, f.router.Subscriptions().IDs())
	assert.Equal(t, fullSubscriptionCount, f.router.Subscriptions().Len())
}

func TestCompositionInNormalModeReplaysKeys(t *testing.T) {
	f := newFixture(t, "a\nb\nc", nil, nil)

	f.exec(host.CommandCompositionStart, nil)
	f.typeText("jj")
	assert.Equal(t, host.Position{}, f.ed.Selections()[0].Active)
	f.exec(host.CommandCompositionEnd, nil)

	assert.Equal(t, []string{engine.KeyExtensionEnable, "j", "j"}, f.engine(uriA).Keys())
	assert.Equal(t, host.Position{Line: 2}, f.ed.Selections()[0].Active)
	assert.Equal(t, "a\nb\nc", f.ed.Doc().Text())
}

func TestCompositionReplaceTracksText(t *testing.T) {
	f := newFixture(t, "", nil, nil)

	f.exec(host.CommandCompositionStart, nil)
	f.typeText("wo")
	f.exec(host.CommandReplacePreviousChar, host.ReplacePreviousCharArgs{Text: "or", ReplaceCharCnt: 1}.JSON())
	f.exec(host.CommandCompositionEnd, nil)

	assert.Equal(t, []string{engine.KeyExtensionEnable, "w", "o", "r"}, f.engine(uriA).Keys())
}

func TestRemapForceStop(t *testing.T) {
	f := newFixture(t, "1\n2\n3\n4\n5", nil, nil)
	eng := f.engine(uriA)

	js := 0
	eng.OnKey = func(ctx context.Context, key string) error {
		if key != "j" {
			return nil
		}
		js++
		if js == 2 {
			// The user presses <Esc> while the remap runs.
			return f.host.ExecuteCommand(ctx, config.KeyCommand(engine.KeyEsc), nil)
		}
		return nil
	}

	f.exec(CommandRemap, []byte(`{"after":["j","j","j","j"]}`))

	assert.Equal(t, []string{engine.KeyExtensionEnable, "j", "j"}, eng.Keys())
	assert.Equal(t, host.Position{Line: 2}, f.ed.Selections()[0].Active)
	assert.False(t, eng.RemapState().IsPerforming())
	assert.Equal(t, uint64(1), eng.RemapState().Stops())
}

func TestEscWithoutRemapIsDelivered(t *testing.T) {
	f := newFixture(t, "", nil, nil)
	f.exec(config.KeyCommand(engine.KeyCtrlC), nil)
	assert.Equal(t, []string{engine.KeyExtensionEnable, engine.KeyCtrlC}, f.engine(uriA).Keys())
}

func TestRemapLeaderAndCommands(t *testing.T) {
	cfg := config.Default()
	cfg.Leader = ","
	f := newFixture(t, "", cfg, nil)

	var got []byte
	_, err := f.host.RegisterCommand("editor.fold", func(_ context.Context, args []byte) error {
		got = args
		return nil
	})
	require.NoError(t, err)

	f.exec(CommandRemap, []byte(`{"after":["<leader>","<esc>"],"commands":[{"command":":wq"},{"command":"editor.fold","args":{"levels":2}}]}`))

	assert.Equal(t, []string{engine.KeyExtensionEnable, ",", engine.KeyEsc}, f.engine(uriA).Keys())
	assert.JSONEq(t, `{"levels":2}`, string(got))
	for _, c := range f.host.Executed() {
		assert.NotEqual(t, ":wq", c.Name)
	}
}

func TestRemapMalformedArgs(t *testing.T) {
	f := newFixture(t, "", nil, nil)
	f.exec(CommandRemap, []byte(`{"nothing":1}`))
	f.exec(host.CommandType, []byte(`not json`))
	assert.Equal(t, []string{engine.KeyExtensionEnable}, f.engine(uriA).Keys())
	assert.Equal(t, uint64(0), f.router.Stats().Failed)
}

func TestToggleDisablesAndEnables(t *testing.T) {
	f := newFixture(t, "", nil, nil)
	first := f.engine(uriA)

	f.exec(CommandToggleVim, nil)
	assert.True(t, f.router.Disabled())
	active, _ := f.host.Context(ContextActive)
	assert.Equal(t, false, active)
	assert.Equal(t, 0, f.router.Handlers().Len())
	assert.Equal(t, engine.ModeDisabled, first.CurrentMode())

	// Overrides fall back to the host while disabled.
	f.typeText("q")
	assert.Equal(t, "q", f.ed.Doc().Text())
	assert.NotContains(t, first.Keys(), "q")

	f.exec(CommandToggleVim, nil)
	assert.False(t, f.router.Disabled())
	assert.Equal(t, 1, f.router.Handlers().Len())
	assert.Equal(t, []string{engine.KeyExtensionEnable}, f.engine(uriA).Keys())
	assert.NotSame(t, first, f.engine(uriA))
}

func TestBoundKeysInertWhileDisabled(t *testing.T) {
	f := newFixture(t, "", nil, nil)
	f.exec(CommandToggleVim, nil)
	require.True(t, f.router.Disabled())

	f.exec(config.KeyCommand(engine.KeyEsc), nil)
	f.exec(CommandRemap, []byte(`{"after":["j"]}`))
	assert.Equal(t, 0, f.router.Handlers().Len())
}

func TestStartDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.DisableExtension = true
	f := newFixture(t, "", cfg, nil)

	assert.True(t, f.router.Disabled())
	assert.Equal(t, 0, f.router.Handlers().Len())

	f.router.Reconfigure(f.ctx, config.Default())
	f.flush()
	assert.False(t, f.router.Disabled())
	assert.Equal(t, 1, f.router.Handlers().Len())
}

func TestDebugInputUsesNativeCommands(t *testing.T) {
	f := newFixture(t, "", nil, nil)
	dbg := f.host.Open(host.DebugInputURI, "")
	f.host.Focus(dbg)
	f.flush()

	f.typeText("a")
	assert.Equal(t, "a", dbg.Doc().Text())
	assert.Empty(t, f.engine(host.DebugInputURI).Keys())
}

func TestFocusChangeDropsFirstSelection(t *testing.T) {
	f := newFixture(t, "", nil, nil)
	b := f.host.Open("file:///b.txt", "x\ny")

	f.host.Focus(b)
	f.host.Click(b, host.Position{Line: 1})
	f.host.Click(b, host.Position{Line: 0, Character: 1})
	f.flush()

	sels := f.engine("file:///b.txt").Selections()
	require.Len(t, sels, 1)
	assert.Equal(t, host.Position{Line: 0, Character: 1}, sels[0].Selections[0].Active)

	pct, _ := f.regs.Get('%')
	hash, _ := f.regs.Get('#')
	assert.Equal(t, "b.txt", pct)
	assert.Equal(t, "a.txt", hash)

	require.Len(t, f.jumps.files, 1)
	assert.Equal(t, uriA, f.jumps.files[0][0].URI)
	assert.Equal(t, "file:///b.txt", f.jumps.files[0][1].URI)
}

func TestUnfocusedEditorSelectionsDropped(t *testing.T) {
	f := newFixture(t, "", nil, nil)
	other := f.host.Open("file:///other.txt", "zz")
	f.host.Click(other, host.Position{Character: 1})
	f.flush()

	assert.Equal(t, 1, f.router.Handlers().Len())
	assert.Empty(t, f.engine(uriA).Selections())
}

func TestCloseDropsHandler(t *testing.T) {
	f := newFixture(t, "", nil, nil)
	b := f.host.Open("file:///b.txt", "")
	f.host.Focus(b)
	f.flush()
	require.Equal(t, 2, f.router.Handlers().Len())

	f.host.Close(b.Doc())
	f.flush()
	assert.Equal(t, 1, f.router.Handlers().Len())
	_, ok := f.router.Handlers().Get("file:///b.txt")
	assert.False(t, ok)
}

func TestDocumentChangesFeedJumpTracker(t *testing.T) {
	f := newFixture(t, "a\nb\nc", nil, nil)

	f.host.Edit(f.ed, host.Range{Start: host.Position{Line: 0}, End: host.Position{Line: 1}}, "")
	f.host.Edit(f.ed, host.Range{}, "x\n")
	f.flush()

	assert.Len(t, f.jumps.deleted, 1)
	assert.Equal(t, []string{"x\n"}, f.jumps.added)
	// Normal mode does not record content changes.
	assert.Empty(t, f.engine(uriA).Changes())
}

func TestStartupClampsCursorOffEOL(t *testing.T) {
	f := newFixture(t, "abc", nil, func(h *memhost.Host, ed *memhost.Editor) {
		h.Click(ed, host.Position{Character: 3})
	})
	assert.Equal(t, host.Position{Character: 2}, f.ed.Selections()[0].Active)
	assert.Empty(t, f.engine(uriA).Selections())
}

func TestStartInInsertModeKeepsCursor(t *testing.T) {
	cfg := config.Default()
	cfg.StartInInsertMode = true
	f := newFixture(t, "abc", cfg, func(h *memhost.Host, ed *memhost.Editor) {
		h.Click(ed, host.Position{Character: 3})
	})
	assert.Equal(t, host.Position{Character: 3}, f.ed.Selections()[0].Active)
}

func TestDeactivate(t *testing.T) {
	f := newFixture(t, "", nil, nil)
	require.NoError(t, f.router.Deactivate(f.ctx))

	assert.Equal(t, 0, f.host.ListenerCount())
	assert.False(t, f.host.HasCommand(CommandRemap))
	assert.True(t, f.host.HasCommand(host.CommandType))
	assert.Equal(t, 0, f.router.Handlers().Len())
	assert.ErrorIs(t, f.router.Deactivate(f.ctx), ErrNotActive)
}

func TestMotionPastLastLineKeepsUserSelections(t *testing.T) {
	f := newFixture(t, "ab\ncd", nil, nil)

	// The second j asks for a line the document does not have; the host
	// clamps it and the echo must still be recognised.
	f.typeText("jj")
	eng := f.engine(uriA)
	assert.Equal(t, 1, f.ed.Selections()[0].Active.Line)
	assert.Empty(t, eng.Selections())
	h, ok := f.router.Handlers().Get(uriA)
	require.True(t, ok)
	assert.Equal(t, 0, h.Filter().Registry().Len())

	f.host.Select(f.ed, []host.Selection{host.Cursor(host.Position{})}, host.KindKeyboard)
	f.flush()
	sels := eng.Selections()
	require.Len(t, sels, 1)
	assert.Equal(t, host.KindKeyboard, sels[0].Kind)
}

func TestFocusFollowsHandlerMode(t *testing.T) {
	f := newFixture(t, "", nil, nil)
	f.typeText("i")
	require.Equal(t, fullSubscriptionCount-len(subscription.InsertSuppressible), f.router.Subscriptions().Len())

	const uriB = "file:///b.txt"
	b := f.host.Open(uriB, "bbb\nccc")
	f.host.Focus(b)
	f.flush()
	assert.Equal(t, fullSubscriptionCount, f.router.Subscriptions().Len())

	f.typeText("j")
	assert.Equal(t, "bbb\nccc", b.Doc().Text())
	assert.Contains(t, f.engine(uriB).Keys(), "j")
	assert.Equal(t, 1, b.Selections()[0].Active.Line)

	// Back to the document still in insert mode.
	f.host.Focus(f.ed)
	f.flush()
	assert.Equal(t, fullSubscriptionCount-len(subscription.InsertSuppressible), f.router.Subscriptions().Len())
	f.typeText("z")
	assert.Equal(t, "z", f.ed.Doc().Text())
	assert.NotContains(t, f.engine(uriA).Keys(), "z")
}

func TestCloseInInsertModeRestoresSubscriptions(t *testing.T) {
	f := newFixture(t, "", nil, nil)
	f.typeText("i")

	const uriB = "file:///b.txt"
	b := f.host.Open(uriB, "bbb\nccc")
	f.host.Close(f.ed.Doc())
	f.host.Focus(b)
	f.flush()

	_, ok := f.router.Handlers().Get(uriA)
	require.False(t, ok)
	assert.Equal(t, fullSubscriptionCount, f.router.Subscriptions().Len())

	f.typeText("j")
	assert.Equal(t, "bbb\nccc", b.Doc().Text())
	assert.Contains(t, f.engine(uriB).Keys(), "j")
}

func TestFailedActivationRollsBack(t *testing.T) {
	h := memhost.New()
	ed := h.Open(uriA, "")
	h.Focus(ed)
	r := New(h, enginetest.Factory(h, nil),
		WithKeybindings([]config.BoundKey{{Key: "x"}}),
	)
	ctx := context.Background()

	require.ErrorIs(t, r.Activate(ctx), subscription.ErrEmptyID)
	assert.Equal(t, 0, r.Subscriptions().Len())
	assert.Equal(t, 0, h.ListenerCount())
	assert.False(t, h.HasCommand(CommandRemap))
	assert.Zero(t, r.Stats())
	assert.ErrorIs(t, r.Deactivate(ctx), ErrNotActive)

	// A retry runs the activation again instead of reporting it active.
	assert.ErrorIs(t, r.Activate(ctx), subscription.ErrEmptyID)
}
