// Package memhost is an in-memory host editor. It backs the terminal front
// end and lets tests drive vimsync the way a real editor would: documents,
// editors, commands with native fallbacks, and synchronous event delivery.
package memhost

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/dshills/vimsync/internal/host"
)

// ErrUnknownCommand is returned for a command nobody registered.
var ErrUnknownCommand = errors.New("memhost: unknown command")

// ExecutedCommand records one ExecuteCommand call.
type ExecutedCommand struct {
	Name string
	Args []byte
}

type listeners[T any] struct {
	next int
	fns  map[int]func(T)
	ord  []int
}

func (l *listeners[T]) add(fn func(T)) int {
	if l.fns == nil {
		l.fns = make(map[int]func(T))
	}
	l.next++
	l.fns[l.next] = fn
	l.ord = append(l.ord, l.next)
	return l.next
}

func (l *listeners[T]) remove(id int) {
	delete(l.fns, id)
	for i, v := range l.ord {
		if v == id {
			l.ord = append(l.ord[:i], l.ord[i+1:]...)
			break
		}
	}
}

func (l *listeners[T]) snapshot() []func(T) {
	out := make([]func(T), 0, len(l.ord))
	for _, id := range l.ord {
		out = append(out, l.fns[id])
	}
	return out
}

// Host is an in-memory implementation of host.Host.
type Host struct {
	mu       sync.Mutex
	docs     []*Document
	editors  []*Editor
	active   *Editor
	commands map[string][]host.CommandHandler
	contexts map[string]any
	executed []ExecutedCommand

	selection listeners[host.SelectionChangeEvent]
	change    listeners[host.DocumentChangeEvent]
	closeDoc  listeners[host.Document]
	activeEd  listeners[host.Editor]
}

// New creates a host with its native commands installed.
func New() *Host {
	h := &Host{
		commands: make(map[string][]host.CommandHandler),
		contexts: make(map[string]any),
	}
	h.commands[host.CommandType] = []host.CommandHandler{h.nativeType}
	h.commands[host.CommandReplacePreviousChar] = []host.CommandHandler{h.nativeReplacePreviousChar}
	h.commands[host.CommandCompositionStart] = []host.CommandHandler{noop}
	h.commands[host.CommandCompositionEnd] = []host.CommandHandler{noop}
	return h
}

func noop(context.Context, []byte) error { return nil }

// ActiveEditor returns the focused editor or nil.
func (h *Host) ActiveEditor() host.Editor {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == nil {
		return nil
	}
	return h.active
}

// Active returns the focused editor as its concrete type.
func (h *Host) Active() *Editor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// TextDocuments returns the open documents.
func (h *Host) TextDocuments() []host.Document {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]host.Document, 0, len(h.docs))
	for _, d := range h.docs {
		out = append(out, d)
	}
	return out
}

// RegisterCommand installs handler under name. A later registration of the
// same name overrides earlier ones until it is disposed.
func (h *Host) RegisterCommand(name string, handler host.CommandHandler) (host.Disposable, error) {
	if name == "" || handler == nil {
		return nil, fmt.Errorf("memhost: register %q: empty name or handler", name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands[name] = append(h.commands[name], handler)
	idx := len(h.commands[name]) - 1
	return host.DisposableFunc(sync.OnceFunc(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		stack := h.commands[name]
		if idx < len(stack) {
			stack[idx] = nil
		}
		for len(stack) > 0 && stack[len(stack)-1] == nil {
			stack = stack[:len(stack)-1]
		}
		h.commands[name] = stack
	})), nil
}

// ExecuteCommand runs the topmost handler of name. "default:<name>" runs
// the bottom (native) handler.
func (h *Host) ExecuteCommand(ctx context.Context, name string, args []byte) error {
	h.mu.Lock()
	h.executed = append(h.executed, ExecutedCommand{Name: name, Args: args})
	handler := h.lookup(name)
	h.mu.Unlock()

	if handler == nil {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return handler(ctx, args)
}

func (h *Host) lookup(name string) host.CommandHandler {
	if base, ok := nativeName(name); ok {
		if stack := h.commands[base]; len(stack) > 0 {
			return stack[0]
		}
		return nil
	}
	stack := h.commands[name]
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] != nil {
			return stack[i]
		}
	}
	return nil
}

func nativeName(name string) (string, bool) {
	const prefix = "default:"
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		return name[len(prefix):], true
	}
	return "", false
}

// HasCommand reports whether an override or native handler exists for name.
func (h *Host) HasCommand(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lookup(name) != nil
}

// Executed returns the commands executed so far.
func (h *Host) Executed() []ExecutedCommand {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ExecutedCommand(nil), h.executed...)
}

// SetContext records a context key.
func (h *Host) SetContext(_ context.Context, key string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.contexts[key] = value
	return nil
}

// Context returns a context key set through SetContext.
func (h *Host) Context(key string) (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.contexts[key]
	return v, ok
}

// OnDidChangeTextEditorSelection subscribes to selection changes.
func (h *Host) OnDidChangeTextEditorSelection(fn func(host.SelectionChangeEvent)) host.Disposable {
	return subscribe(h, &h.selection, fn)
}

// OnDidChangeTextDocument subscribes to document changes.
func (h *Host) OnDidChangeTextDocument(fn func(host.DocumentChangeEvent)) host.Disposable {
	return subscribe(h, &h.change, fn)
}

// OnDidCloseTextDocument subscribes to document closes.
func (h *Host) OnDidCloseTextDocument(fn func(host.Document)) host.Disposable {
	return subscribe(h, &h.closeDoc, fn)
}

// OnDidChangeActiveTextEditor subscribes to focus changes.
func (h *Host) OnDidChangeActiveTextEditor(fn func(host.Editor)) host.Disposable {
	return subscribe(h, &h.activeEd, fn)
}

// ListenerCount returns the number of live listeners of all kinds.
func (h *Host) ListenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.selection.ord) + len(h.change.ord) + len(h.closeDoc.ord) + len(h.activeEd.ord)
}

func subscribe[T any](h *Host, l *listeners[T], fn func(T)) host.Disposable {
	h.mu.Lock()
	id := l.add(fn)
	h.mu.Unlock()
	return host.DisposableFunc(func() {
		h.mu.Lock()
		l.remove(id)
		h.mu.Unlock()
	})
}

func emit[T any](h *Host, l *listeners[T], v T) {
	h.mu.Lock()
	fns := l.snapshot()
	h.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// Open adds a document with text and an editor for it, with the cursor at
// the start. The editor is not focused.
func (h *Host) Open(uri, text string) *Editor {
	d := newDocument(uri, text)
	e := &Editor{h: h, doc: d, sels: []host.Selection{host.Cursor(host.Position{})}}
	h.mu.Lock()
	h.docs = append(h.docs, d)
	h.editors = append(h.editors, e)
	h.mu.Unlock()
	return e
}

// Split opens a second editor on e's document.
func (h *Host) Split(e *Editor) *Editor {
	n := &Editor{h: h, doc: e.doc, sels: e.Selections()}
	h.mu.Lock()
	h.editors = append(h.editors, n)
	h.mu.Unlock()
	return n
}

// Focus makes e the active editor and reports the change.
func (h *Host) Focus(e *Editor) {
	h.mu.Lock()
	h.active = e
	h.mu.Unlock()
	var ed host.Editor
	if e != nil {
		ed = e
	}
	emit(h, &h.activeEd, ed)
}

// Close closes d, drops its editors and reports the close.
func (h *Host) Close(d *Document) {
	h.mu.Lock()
	d.closed = true
	docs := h.docs[:0]
	for _, x := range h.docs {
		if x != d {
			docs = append(docs, x)
		}
	}
	h.docs = docs
	eds := h.editors[:0]
	for _, e := range h.editors {
		if e.doc != d {
			eds = append(eds, e)
		}
	}
	h.editors = eds
	if h.active != nil && h.active.doc == d {
		h.active = nil
	}
	h.mu.Unlock()
	emit(h, &h.closeDoc, host.Document(d))
}

// Click moves e's cursor to p as a mouse selection.
func (h *Host) Click(e *Editor, p host.Position) {
	h.setSelections(e, []host.Selection{host.Cursor(p)}, host.KindMouse)
}

// Select assigns sels to e with the given kind.
func (h *Host) Select(e *Editor, sels []host.Selection, kind host.SelectionChangeKind) {
	h.setSelections(e, sels, kind)
}

func (h *Host) setSelections(e *Editor, sels []host.Selection, kind host.SelectionChangeKind) {
	h.mu.Lock()
	for i := range sels {
		sels[i].Anchor = e.doc.clamp(sels[i].Anchor)
		sels[i].Active = e.doc.clamp(sels[i].Active)
	}
	e.sels = append([]host.Selection(nil), sels...)
	ev := host.SelectionChangeEvent{Editor: e, Selections: append([]host.Selection(nil), sels...), Kind: kind}
	h.mu.Unlock()
	emit(h, &h.selection, ev)
}

// Edit replaces r in e's document with text, reports the document change
// and moves the cursor to the end of the inserted text.
func (h *Host) Edit(e *Editor, r host.Range, text string) {
	h.mu.Lock()
	change, end := e.doc.replace(r, text)
	h.mu.Unlock()

	emit(h, &h.change, host.DocumentChangeEvent{Document: e.doc, Changes: []host.ContentChange{change}})
	h.setSelections(e, []host.Selection{host.Cursor(end)}, host.KindKeyboard)
}

// Type sends text through the "type" command one character at a time, as
// a keyboard would.
func (h *Host) Type(ctx context.Context, text string) error {
	for _, r := range text {
		if err := h.ExecuteCommand(ctx, host.CommandType, host.TypeArgs{Text: string(r)}.JSON()); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) nativeType(_ context.Context, args []byte) error {
	a, err := host.ParseTypeArgs(args)
	if err != nil {
		return err
	}
	e := h.Active()
	if e == nil {
		return nil
	}
	cur := e.cursor()
	h.Edit(e, host.Range{Start: cur, End: cur}, a.Text)
	return nil
}

func (h *Host) nativeReplacePreviousChar(_ context.Context, args []byte) error {
	a, err := host.ParseReplacePreviousCharArgs(args)
	if err != nil {
		return err
	}
	e := h.Active()
	if e == nil {
		return nil
	}
	cur := e.cursor()
	start := cur
	for n := a.ReplaceCharCnt; n > 0; n-- {
		if start.Character > 0 {
			start.Character--
			continue
		}
		if start.Line == 0 {
			break
		}
		start.Line--
		start.Character = utf8.RuneCountInString(e.doc.LineText(start.Line))
	}
	h.Edit(e, host.Range{Start: start, End: cur}, a.Text)
	return nil
}

var _ host.Host = (*Host)(nil)
