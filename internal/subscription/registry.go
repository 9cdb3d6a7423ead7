// Package subscription manages the host subscriptions of an activation:
// listeners and command overrides, each registered under a stable id.
//
// A subset of the ids is insert-suppressible. Those interceptors are
// disposed while the engine is in insert mode so plain typing goes straight
// to the host, and recreated when the engine leaves it.
package subscription

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dshills/vimsync/internal/host"
	"github.com/dshills/vimsync/internal/logging"
)

// Well-known subscription ids.
const (
	IDSelectionChange     = host.EventSelectionChanged
	IDDocumentChange      = host.EventDocumentChanged
	IDDocumentClose       = host.EventDocumentClosed
	IDActiveEditorChange  = host.EventActiveEditorChanged
	IDType                = host.CommandType
	IDReplacePreviousChar = host.CommandReplacePreviousChar
	IDCompositionStart    = host.CommandCompositionStart
	IDCompositionEnd      = host.CommandCompositionEnd
)

// InsertSuppressible lists the ids removed while in insert mode.
var InsertSuppressible = []string{
	IDSelectionChange,
	IDType,
	IDReplacePreviousChar,
	IDCompositionStart,
	IDCompositionEnd,
}

var (
	// ErrDuplicateID is returned when an id is registered twice.
	ErrDuplicateID = errors.New("subscription: duplicate id")
	// ErrEmptyID is returned for a registration without an id.
	ErrEmptyID = errors.New("subscription: empty id")
)

// Factory creates the host subscription for an id.
type Factory func() (host.Disposable, error)

// Registrar is what an activation routine registers subscriptions through.
type Registrar interface {
	Register(id string, factory Factory) error
}

type entry struct {
	id string
	d  host.Disposable
}

// Registry is the ordered set of active subscriptions, at most one per id.
type Registry struct {
	mu           sync.Mutex
	entries      []*entry
	index        map[string]*entry
	suppressible map[string]bool
	logger       *logging.Logger
}

// NewRegistry creates an empty registry. suppressible names the ids removed
// by RemoveSuppressible; nil means InsertSuppressible.
func NewRegistry(logger *logging.Logger, suppressible []string) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	if suppressible == nil {
		suppressible = InsertSuppressible
	}
	r := &Registry{
		index:        make(map[string]*entry),
		suppressible: make(map[string]bool, len(suppressible)),
		logger:       logger.WithComponent("subscription"),
	}
	for _, id := range suppressible {
		r.suppressible[id] = true
	}
	return r
}

// Register calls factory and records its disposable under id. A duplicate
// id is reported with ErrDuplicateID, logged, and the factory is not called.
func (r *Registry) Register(id string, factory Factory) error {
	if id == "" {
		return ErrEmptyID
	}
	if r.Has(id) {
		r.logger.Warn("subscription %q registered twice; keeping the first", id)
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	return r.add(id, factory)
}

func (r *Registry) add(id string, factory Factory) error {
	d, err := factory()
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", id, err)
	}
	if d == nil {
		d = host.DisposableFunc(func() {})
	}

	r.mu.Lock()
	if _, ok := r.index[id]; ok {
		r.mu.Unlock()
		d.Dispose()
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	e := &entry{id: id, d: d}
	r.entries = append(r.entries, e)
	r.index[id] = e
	r.mu.Unlock()

	r.logger.Trace("subscribed %s", id)
	return nil
}

// Has reports whether id is active.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.index[id]
	return ok
}

// Suppressible reports whether id belongs to the insert-suppressible subset.
func (r *Registry) Suppressible(id string) bool {
	return r.suppressible[id]
}

// Remove disposes id and reports whether it was active.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	e, ok := r.index[id]
	if ok {
		delete(r.index, id)
		r.entries = removeEntry(r.entries, e)
	}
	r.mu.Unlock()

	if ok {
		e.d.Dispose()
	}
	return ok
}

// RemoveSuppressible disposes every active insert-suppressible
// subscription and returns the removed ids in registration order.
func (r *Registry) RemoveSuppressible() []string {
	r.mu.Lock()
	var removed []*entry
	kept := r.entries[:0]
	for _, e := range r.entries {
		if r.suppressible[e.id] {
			removed = append(removed, e)
			delete(r.index, e.id)
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = nil
	}
	r.entries = kept
	r.mu.Unlock()

	ids := make([]string, 0, len(removed))
	for _, e := range removed {
		e.d.Dispose()
		ids = append(ids, e.id)
	}
	return ids
}

// IDs returns the active ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.id
	}
	return ids
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// DisposeAll disposes every subscription in reverse registration order.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.index = make(map[string]*entry)
	r.mu.Unlock()

	for i := len(entries) - 1; i >= 0; i-- {
		entries[i].d.Dispose()
	}
}

func removeEntry(entries []*entry, target *entry) []*entry {
	for i, e := range entries {
		if e == target {
			copy(entries[i:], entries[i+1:])
			entries[len(entries)-1] = nil
			return entries[:len(entries)-1]
		}
	}
	return entries
}

// lenient registers only ids that are missing, silently keeping the rest.
type lenient struct {
	r *Registry
}

func (l lenient) Register(id string, factory Factory) error {
	if l.r.Has(id) {
		return nil
	}
	return l.r.add(id, factory)
}
