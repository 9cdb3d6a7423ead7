// Package termhost drives the in-memory host from a terminal: key and mouse
// events become host commands and selections, and the active document is
// drawn after each event.
package termhost

import (
	"context"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/vimsync/internal/config"
	"github.com/dshills/vimsync/internal/host"
	"github.com/dshills/vimsync/internal/logging"
	"github.com/dshills/vimsync/internal/memhost"
)

// Terminal connects a tcell screen to a memhost.Host.
type Terminal struct {
	mu     sync.Mutex
	screen tcell.Screen
	host   *memhost.Host
	bound  map[string]string
	status func() string
	logger *logging.Logger
}

// Option configures a Terminal.
type Option func(*Terminal)

// WithStatus sets the function that renders the status line.
func WithStatus(fn func() string) Option {
	return func(t *Terminal) {
		t.status = fn
	}
}

// WithCommand binds key, in key notation, to a host command. It takes
// precedence over the keybindings.
func WithCommand(key, command string) Option {
	return func(t *Terminal) {
		t.bound[key] = command
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(t *Terminal) {
		if l != nil {
			t.logger = l
		}
	}
}

// New creates a terminal front end. screen may be nil, in which case events
// can still be fed through HandleEvent and Render is a no-op.
func New(screen tcell.Screen, h *memhost.Host, bindings []config.BoundKey, opts ...Option) *Terminal {
	t := &Terminal{
		screen: screen,
		host:   h,
		bound:  make(map[string]string, len(bindings)),
		logger: logging.Nop(),
	}
	for _, b := range bindings {
		t.bound[b.Key] = b.Command
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.WithComponent("termhost")
	return t
}

// NewScreen creates the default tcell screen.
func NewScreen() (tcell.Screen, error) {
	return tcell.NewScreen()
}

// Init initialises the screen with mouse and paste support.
func (t *Terminal) Init() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.screen == nil {
		return nil
	}
	if err := t.screen.Init(); err != nil {
		return err
	}
	t.screen.EnableMouse()
	t.screen.EnablePaste()
	return nil
}

// Shutdown restores the terminal.
func (t *Terminal) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.screen != nil {
		t.screen.Fini()
	}
}

// Run processes events until the user quits with Ctrl-Q or ctx ends.
// settle is called after each event, before drawing.
func (t *Terminal) Run(ctx context.Context, settle func(context.Context) error) error {
	if t.screen == nil {
		return nil
	}
	t.Render()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev := t.screen.PollEvent()
		if ev == nil {
			return nil
		}
		quit, err := t.HandleEvent(ctx, ev)
		if err != nil {
			t.logger.Warn("event: %v", err)
		}
		if quit {
			return nil
		}
		if settle != nil {
			if err := settle(ctx); err != nil {
				return err
			}
		}
		t.Render()
	}
}

// HandleEvent applies one terminal event to the host. It reports whether
// the user asked to quit.
func (t *Terminal) HandleEvent(ctx context.Context, ev tcell.Event) (bool, error) {
	switch e := ev.(type) {
	case *tcell.EventKey:
		key, text := KeyNotation(e)
		if key == "<C-q>" {
			return true, nil
		}
		if cmd, ok := t.bound[key]; ok {
			return false, t.host.ExecuteCommand(ctx, cmd, nil)
		}
		if text != "" {
			return false, t.host.Type(ctx, text)
		}
		t.logger.Trace("unbound key %s", key)

	case *tcell.EventMouse:
		if e.Buttons()&tcell.Button1 == 0 {
			return false, nil
		}
		ed := t.host.Active()
		if ed == nil {
			return false, nil
		}
		x, y := e.Position()
		t.host.Click(ed, host.Position{Line: y, Character: x})

	case *tcell.EventFocus:
		t.logger.Debug("terminal focused=%v", e.Focused)

	case *tcell.EventResize:
		t.mu.Lock()
		if t.screen != nil {
			t.screen.Sync()
		}
		t.mu.Unlock()
	}
	return false, nil
}

// Render draws the active document and the status line.
func (t *Terminal) Render() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.screen == nil {
		return
	}

	t.screen.Clear()
	w, h := t.screen.Size()
	ed := t.host.Active()
	if ed != nil {
		doc := ed.Doc()
		for y := 0; y < h-1 && y < doc.LineCount(); y++ {
			drawText(t.screen, 0, y, w, doc.LineText(y), tcell.StyleDefault)
		}
		if sels := ed.Selections(); len(sels) > 0 {
			p := sels[0].Active
			t.screen.ShowCursor(p.Character, p.Line)
		}
	} else {
		t.screen.HideCursor()
	}
	if t.status != nil && h > 0 {
		drawText(t.screen, 0, h-1, w, t.status(), tcell.StyleDefault.Reverse(true))
	}
	t.screen.Show()
}

func drawText(s tcell.Screen, x, y, width int, text string, style tcell.Style) {
	for _, r := range text {
		if x >= width {
			return
		}
		s.SetContent(x, y, r, nil, style)
		x++
	}
}

var specialKeys = map[tcell.Key]string{
	tcell.KeyEscape:     "<Esc>",
	tcell.KeyEnter:      "<CR>",
	tcell.KeyTab:        "<Tab>",
	tcell.KeyBackspace:  "<BS>",
	tcell.KeyBackspace2: "<BS>",
	tcell.KeyDelete:     "<Del>",
	tcell.KeyUp:         "<Up>",
	tcell.KeyDown:       "<Down>",
	tcell.KeyLeft:       "<Left>",
	tcell.KeyRight:      "<Right>",
	tcell.KeyHome:       "<Home>",
	tcell.KeyEnd:        "<End>",
	tcell.KeyPgUp:       "<PageUp>",
	tcell.KeyPgDn:       "<PageDown>",
	tcell.KeyInsert:     "<Insert>",
}

// KeyNotation returns the key notation of ev and, for printable input, the
// text it types.
func KeyNotation(ev *tcell.EventKey) (key, text string) {
	k := ev.Key()
	if k == tcell.KeyRune {
		r := ev.Rune()
		switch mod := ev.Modifiers(); {
		case mod&tcell.ModCtrl != 0:
			return "<C-" + string(r) + ">", ""
		case mod&tcell.ModAlt != 0:
			return "<A-" + string(r) + ">", ""
		}
		return string(r), string(r)
	}
	if name, ok := specialKeys[k]; ok {
		return name, ""
	}
	if k >= tcell.KeyCtrlA && k <= tcell.KeyCtrlZ {
		return "<C-" + string(rune('a'+int(k-tcell.KeyCtrlA))) + ">", ""
	}
	return "", ""
}
