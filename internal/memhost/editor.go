package memhost

import (
	"github.com/dshills/vimsync/internal/host"
)

// Editor is a view onto a Document.
type Editor struct {
	h    *Host
	doc  *Document
	sels []host.Selection
}

// Document returns the editor's document.
func (e *Editor) Document() host.Document { return e.doc }

// Doc returns the concrete document.
func (e *Editor) Doc() *Document { return e.doc }

// Selections returns a copy of the current selections.
func (e *Editor) Selections() []host.Selection {
	e.h.mu.Lock()
	defer e.h.mu.Unlock()
	return append([]host.Selection(nil), e.sels...)
}

// SetSelections assigns sels and reports a command-kind selection change.
func (e *Editor) SetSelections(sels []host.Selection) {
	e.h.setSelections(e, sels, host.KindCommand)
}

var _ host.Editor = (*Editor)(nil)

// cursor returns the active end of the primary selection.
func (e *Editor) cursor() host.Position {
	sels := e.Selections()
	if len(sels) == 0 {
		return host.Position{}
	}
	return sels[0].Active
}
