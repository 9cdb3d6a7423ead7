package handler

import (
	"sort"
	"sync"
)

// Map holds the handlers by document URI.
type Map struct {
	mu       sync.RWMutex
	handlers map[string]*ModeHandler
}

// NewMap creates an empty map.
func NewMap() *Map {
	return &Map{handlers: make(map[string]*ModeHandler)}
}

// Get returns the handler for uri.
func (m *Map) Get(uri string) (*ModeHandler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[uri]
	return h, ok
}

// GetOrCreate returns the handler for uri, creating it with create on first
// use. created reports whether create ran.
func (m *Map) GetOrCreate(uri string, create func() (*ModeHandler, error)) (h *ModeHandler, created bool, err error) {
	if h, ok := m.Get(uri); ok {
		return h, false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.handlers[uri]; ok {
		return h, false, nil
	}
	h, err = create()
	if err != nil {
		return nil, false, err
	}
	m.handlers[uri] = h
	return h, true, nil
}

// Delete removes the handler for uri.
func (m *Map) Delete(uri string) (*ModeHandler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handlers[uri]
	delete(m.handlers, uri)
	return h, ok
}

// Entries returns the handlers sorted by URI.
func (m *Map) Entries() []*ModeHandler {
	m.mu.RLock()
	out := make([]*ModeHandler, 0, len(m.handlers))
	for _, h := range m.handlers {
		out = append(out, h)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].uri < out[j].uri })
	return out
}

// Len returns the number of handlers.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers)
}

// Clear removes and closes every handler.
func (m *Map) Clear() {
	m.mu.Lock()
	old := m.handlers
	m.handlers = make(map[string]*ModeHandler)
	m.mu.Unlock()

	for _, h := range old {
		h.Close()
	}
}
