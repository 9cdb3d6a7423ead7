// Package remap tracks an in-flight key remapping so it can be cancelled
// from outside the task that runs it.
package remap

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrAlreadyRunning is returned by Begin when a remap is already in flight.
var ErrAlreadyRunning = errors.New("remap already running")

// ErrStopped is returned by Run when the remap was force-stopped.
var ErrStopped = errors.New("remap force-stopped")

// Token is the cancellation handle of one remap.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Stopped reports whether the remap was cancelled.
func (t *Token) Stopped() bool {
	return t.ctx.Err() != nil
}

// Context returns a context that is cancelled when the remap is stopped.
func (t *Token) Context() context.Context {
	return t.ctx
}

// State is the remap state of one mode engine. Begin and End are called
// from the engine's task; ForceStop may be called from any goroutine.
type State struct {
	mu      sync.Mutex
	current *Token
	running atomic.Bool
	stops   atomic.Uint64
}

// NewState creates an idle remap state.
func NewState() *State {
	return &State{}
}

// Begin marks a remap as running and returns its token.
func (s *State) Begin(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return nil, ErrAlreadyRunning
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cctx, cancel := context.WithCancel(ctx)
	s.current = &Token{ctx: cctx, cancel: cancel}
	s.running.Store(true)
	return s.current, nil
}

// End clears the running remap. Ending a stale token is a no-op.
func (s *State) End(t *Token) {
	if t == nil {
		return
	}
	t.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == t {
		s.current = nil
		s.running.Store(false)
	}
}

// IsPerforming reports whether a remap is in flight.
func (s *State) IsPerforming() bool {
	return s.running.Load()
}

// ForceStop cancels the in-flight remap and reports whether there was one.
func (s *State) ForceStop() bool {
	s.mu.Lock()
	t := s.current
	s.mu.Unlock()

	if t == nil {
		return false
	}
	t.cancel()
	s.stops.Add(1)
	return true
}

// Stops returns how many remaps have been force-stopped.
func (s *State) Stops() uint64 {
	return s.stops.Load()
}

// Run delivers keys through fn as one remap, checking for a force stop
// before each key. It returns the number of keys delivered.
func (s *State) Run(ctx context.Context, keys []string, fn func(ctx context.Context, key string) error) (int, error) {
	tok, err := s.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer s.End(tok)

	for i, k := range keys {
		if tok.Stopped() {
			return i, ErrStopped
		}
		if err := fn(tok.Context(), k); err != nil {
			return i, err
		}
	}
	return len(keys), nil
}
