package router

import (
	"context"
	"strings"

	"github.com/dshills/vimsync/internal/engine"
	"github.com/dshills/vimsync/internal/handler"
	"github.com/dshills/vimsync/internal/host"
	"github.com/dshills/vimsync/internal/selection"
	"github.com/dshills/vimsync/internal/subscription"
)

type step struct {
	id      string
	factory subscription.Factory
}

// register is the activation routine. It is rerun by RestoreAll, which only
// recreates the ids that are missing.
func (r *Router) register(ctx context.Context, reg subscription.Registrar) error {
	steps := []step{
		{subscription.IDDocumentChange, r.listen(func() host.Disposable {
			return r.host.OnDidChangeTextDocument(guard(r, false, r.onDocumentChange))
		})},
		{subscription.IDDocumentClose, r.listen(func() host.Disposable {
			return r.host.OnDidCloseTextDocument(guard(r, true, r.onDocumentClose))
		})},
		{subscription.IDActiveEditorChange, r.listen(func() host.Disposable {
			return r.host.OnDidChangeActiveTextEditor(guard(r, false, r.onActiveEditorChange))
		})},
		{subscription.IDSelectionChange, r.listen(func() host.Disposable {
			return r.host.OnDidChangeTextEditorSelection(guard(r, false, r.onSelectionChange))
		})},
		{subscription.IDType, r.override(host.CommandType, r.typeCommand)},
		{subscription.IDReplacePreviousChar, r.override(host.CommandReplacePreviousChar, r.replacePreviousCharCommand)},
		{subscription.IDCompositionStart, r.override(host.CommandCompositionStart, r.compositionStartCommand)},
		{subscription.IDCompositionEnd, r.override(host.CommandCompositionEnd, r.compositionEndCommand)},
		{CommandRemap, r.command(CommandRemap, true, r.remapCommand)},
		{CommandToggleVim, r.command(CommandToggleVim, false, r.toggleCommand)},
	}
	for _, b := range r.bindings {
		steps = append(steps, step{b.Command, r.command(b.Command, true, r.boundKeyCommand(b.Key))})
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := reg.Register(s.id, s.factory); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) listen(subscribe func() host.Disposable) subscription.Factory {
	return func() (host.Disposable, error) {
		return subscribe(), nil
	}
}

// guard drops events while vimsync is disabled unless the listener must
// keep running.
func guard[T any](r *Router, runWhenDisabled bool, fn func(T)) func(T) {
	return func(v T) {
		if !runWhenDisabled && r.disabled.Load() {
			return
		}
		fn(v)
	}
}

func (r *Router) onDocumentChange(ev host.DocumentChangeEvent) {
	doc := ev.Document
	if doc == nil || doc.Scheme() == host.SchemeOutput || len(ev.Changes) == 0 {
		return
	}

	r.logger.Debug("%d change(s) to %s because %q", len(ev.Changes), doc.FileName(), ev.Reason)
	for _, c := range ev.Changes {
		r.logger.Trace("\t-%d, +%q", c.RangeLength, c.Text)
	}

	changes := append([]host.ContentChange(nil), ev.Changes...)
	r.enqueue(context.Background(), "document change", func(ctx context.Context) error {
		if r.jumps != nil {
			for _, c := range changes {
				multiLine := c.Range.Start.Line != c.Range.End.Line
				switch {
				case multiLine && c.Text == "":
					r.jumps.HandleTextDeleted(doc, c.Range)
				case !multiLine && strings.Contains(c.Text, "\n"):
					r.jumps.HandleTextAdded(doc, c.Range, c.Text)
				}
			}
		}
		if h, ok := r.handlers.Get(doc.URI()); ok && h.Mode().IsInsert() {
			h.Engine().RecordContentChanges(changes)
		}
		return nil
	})
}

func (r *Router) onDocumentClose(doc host.Document) {
	r.logger.Info("%s closed", doc.FileName())

	open := make(map[string]bool)
	for _, d := range r.host.TextDocuments() {
		open[d.URI()] = true
	}

	for _, h := range r.handlers.Entries() {
		if open[h.URI()] {
			continue
		}
		if h.URI() == doc.URI() {
			r.mu.Lock()
			r.lastClosed = h
			r.mu.Unlock()
		}
		r.handlers.Delete(h.URI())
		h.Close()
		r.logger.Debug("dropped handler for %s", h.URI())
	}
}

func (r *Router) onActiveEditorChange(ed host.Editor) {
	if ed != nil {
		r.logger.Info("active editor: %s", ed.Document().URI())
	} else {
		r.logger.Debug("no active editor")
	}

	r.mu.Lock()
	if prev, ok := r.handlers.Get(r.previousURI); ok {
		r.lastClosed = prev
	}
	r.mu.Unlock()

	if r.registers != nil {
		name := ""
		if ed != nil {
			name = ed.Document().FileName()
		}
		old, _ := r.registers.Get('%')
		if name != old {
			if old != "" {
				r.registers.SetReadonly('#', old)
			}
			r.registers.SetReadonly('%', name)
		}
	}

	if ed == nil {
		return
	}
	r.enqueue(context.Background(), "active editor change", func(ctx context.Context) error {
		h, err := r.handlerFor(ctx, true)
		if err != nil || h == nil {
			return err
		}
		if r.jumps != nil {
			r.mu.Lock()
			from := r.lastClosed
			r.mu.Unlock()
			r.jumps.HandleFileJump(jumpOf(from), jumpOf(h))
		}
		return nil
	})
}

func (r *Router) onSelectionChange(ev host.SelectionChangeEvent) {
	if ev.Editor == nil || ev.Editor.Document() == nil {
		return
	}
	doc := ev.Editor.Document()
	active := r.host.ActiveEditor()
	n := selection.NewNotification(ev, doc.Scheme() == host.SchemeOutput, active != nil && active == ev.Editor)

	filter := r.arrival
	if h, ok := r.handlers.Get(doc.URI()); ok {
		filter = h.Filter()
	}
	n, d := filter.Arrive(n)
	if d != selection.Forward {
		r.logger.Trace("selection %s: %s", n.Signature, d)
		return
	}

	r.enqueue(context.Background(), "selection change", func(ctx context.Context) error {
		h, err := r.handlerFor(ctx, false)
		if err != nil || h == nil {
			return err
		}
		if h.URI() != doc.URI() {
			r.logger.Trace("selection %s for %s arrived after focus moved", n.Signature, doc.URI())
			return nil
		}
		d := h.Filter().Resolve(n, h.SelectionState(r.optedOut))
		if d != selection.Forward {
			r.logger.Trace("selection %s: %s", n.Signature, d)
			return nil
		}
		return h.HandleSelectionChange(ctx, ev)
	})
}

func jumpOf(h *handler.ModeHandler) *engine.Jump {
	if h == nil {
		return nil
	}
	j := &engine.Jump{URI: h.URI()}
	if sels := h.Editor().Selections(); len(sels) > 0 {
		j.Position = sels[0].Active
	}
	return j
}
