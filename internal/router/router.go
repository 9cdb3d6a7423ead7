// Package router receives the host's notifications and commands, turns
// them into tasks on a single queue and dispatches each task to the mode
// handler of the focused document.
//
// Host callbacks never touch handler state directly. They perform the
// read-only arrival checks and enqueue; everything else happens on the
// queue's worker, one task at a time.
package router

import (
	"context"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/dshills/vimsync/internal/config"
	"github.com/dshills/vimsync/internal/engine"
	"github.com/dshills/vimsync/internal/handler"
	"github.com/dshills/vimsync/internal/host"
	"github.com/dshills/vimsync/internal/logging"
	"github.com/dshills/vimsync/internal/selection"
	"github.com/dshills/vimsync/internal/subscription"
	"github.com/dshills/vimsync/internal/taskqueue"
)

// Host context keys set by the router.
const (
	ContextListNavigation = "listAutomaticKeyboardNavigation"
	ContextActive         = "vim.active"
)

// Commands registered by the router besides the overrides and bound keys.
const (
	CommandRemap     = "vim.remap"
	CommandToggleVim = "toggleVim"
)

// Router connects a host to per-document mode handlers.
type Router struct {
	host      host.Host
	factory   engine.Factory
	store     *config.Store
	bindings  []config.BoundKey
	jumps     engine.JumpTracker
	registers engine.Registers
	logger    *logging.Logger

	queue    atomic.Pointer[taskqueue.Queue]
	handlers *handler.Map
	registry *subscription.Registry
	subs     *subscription.Manager
	// arrival answers the stateless arrival checks for documents that have
	// no handler yet.
	arrival *selection.Filter

	disabled atomic.Bool

	mu          sync.Mutex
	active      bool
	previousURI string
	lastClosed  *handler.ModeHandler
	// lastMode is the mode of the most recently active handler. The
	// subscription set follows it, so it stands in for a previous handler
	// that has since been closed.
	lastMode engine.Mode
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithConfig sets the configuration store.
func WithConfig(s *config.Store) Option {
	return func(r *Router) {
		if s != nil {
			r.store = s
		}
	}
}

// WithKeybindings sets the bound keys registered at activation.
func WithKeybindings(keys []config.BoundKey) Option {
	return func(r *Router) {
		r.bindings = keys
	}
}

// WithJumpTracker sets the jump list collaborator.
func WithJumpTracker(j engine.JumpTracker) Option {
	return func(r *Router) {
		r.jumps = j
	}
}

// WithRegisters sets the register store collaborator.
func WithRegisters(reg engine.Registers) Option {
	return func(r *Router) {
		r.registers = reg
	}
}

// New creates an inactive router.
func New(h host.Host, factory engine.Factory, opts ...Option) *Router {
	r := &Router{
		host:     h,
		factory:  factory,
		store:    config.NewStore(nil),
		bindings: config.DefaultKeybindings(),
		logger:   logging.Nop(),
		handlers: handler.NewMap(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("router")
	r.arrival = selection.NewFilter(nil, r.logger)
	r.registry = subscription.NewRegistry(r.logger, nil)
	r.subs = subscription.NewManager(r.registry, r.register, r.logger)
	return r
}

// Activate loads configuration, registers every subscription, initialises
// the handler of the active editor and applies disable_extension.
func (r *Router) Activate(ctx context.Context) error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return ErrAlreadyActive
	}
	r.active = true
	r.mu.Unlock()

	cfg := r.store.Get()
	config.LogResults(r.logger, config.Validate(cfg))
	r.disabled.Store(cfg.DisableExtension)

	q := taskqueue.New(taskqueue.WithLogger(r.logger))
	if err := q.Start(); err != nil {
		r.setActive(false)
		return err
	}
	r.queue.Store(q)

	if err := r.subs.Activate(ctx); err != nil {
		r.logger.Error("activation: %v", err)
		r.registry.DisposeAll()
		if stopErr := q.Stop(ctx); stopErr != nil {
			r.logger.Warn("stop queue: %v", stopErr)
		}
		r.queue.Store(nil)
		r.setActive(false)
		return err
	}

	if ed := r.host.ActiveEditor(); ed != nil && r.registers != nil {
		r.registers.SetReadonly('%', ed.Document().FileName())
	}

	r.enqueue(ctx, "startup", func(ctx context.Context) error {
		h, err := r.handlerFor(ctx, false)
		if err != nil || h == nil {
			return err
		}
		if !r.store.Get().StartInInsertMode {
			clampToEOL(h)
		}
		return nil
	})

	if err := r.host.SetContext(ctx, ContextListNavigation, false); err != nil {
		r.logger.Warn("set context %s: %v", ContextListNavigation, err)
	}
	r.Toggle(ctx, cfg.DisableExtension)

	r.logger.Debug("activated with %d subscriptions", r.registry.Len())
	return nil
}

// Deactivate disposes every subscription, drains and stops the queue and
// drops all handlers.
func (r *Router) Deactivate(ctx context.Context) error {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return ErrNotActive
	}
	r.active = false
	r.previousURI = ""
	r.lastClosed = nil
	r.lastMode = engine.ModeNormal
	r.mu.Unlock()

	r.registry.DisposeAll()
	var err error
	if q := r.queue.Load(); q != nil {
		err = q.Stop(ctx)
	}
	r.handlers.Clear()
	return err
}

// Toggle switches vimsync off (disabled) or back on.
func (r *Router) Toggle(ctx context.Context, disabled bool) {
	r.disabled.Store(disabled)
	if err := r.host.SetContext(ctx, ContextActive, !disabled); err != nil {
		r.logger.Warn("set context %s: %v", ContextActive, err)
	}
	if disabled {
		r.logger.Info("vimsync disabled")
	} else {
		r.logger.Info("vimsync enabled")
	}

	r.enqueue(ctx, "toggle", func(ctx context.Context) error {
		h, err := r.handlerFor(ctx, false)
		if err != nil || h == nil {
			return err
		}
		if !disabled {
			return h.HandleKeyEvent(ctx, engine.KeyExtensionEnable)
		}
		err = h.HandleKeyEvent(ctx, engine.KeyExtensionDisable)
		for _, mh := range r.handlers.Entries() {
			mh.Reset()
		}
		r.handlers.Clear()
		return err
	})
}

// Disabled reports whether vimsync is switched off.
func (r *Router) Disabled() bool {
	return r.disabled.Load()
}

// Reconfigure installs a reloaded configuration and applies a changed
// disable_extension.
func (r *Router) Reconfigure(ctx context.Context, cfg *config.Config) {
	if cfg == nil {
		return
	}
	r.store.Set(cfg)
	if cfg.DisableExtension != r.disabled.Load() {
		r.Toggle(ctx, cfg.DisableExtension)
	}
}

// Flush waits until the queue is idle, including work enqueued by the
// host while earlier tasks ran.
func (r *Router) Flush(ctx context.Context) error {
	q := r.queue.Load()
	if q == nil {
		return nil
	}
	return q.Drain(ctx)
}

// Handlers returns the handler map.
func (r *Router) Handlers() *handler.Map { return r.handlers }

// Subscriptions returns the subscription registry.
func (r *Router) Subscriptions() *subscription.Registry { return r.registry }

// Stats returns the task queue counters.
func (r *Router) Stats() taskqueue.Stats {
	if q := r.queue.Load(); q != nil {
		return q.Stats()
	}
	return taskqueue.Stats{}
}

func (r *Router) enqueue(ctx context.Context, name string, task taskqueue.Task) {
	q := r.queue.Load()
	if q == nil {
		r.logger.Warn("%s dropped: router not active", name)
		return
	}
	r.logger.Trace("enqueue %s", name)
	q.Enqueue(ctx, task)
}

// handlerFor returns the handler of the active editor's document, creating
// it on first use. Must run on the queue.
func (r *Router) handlerFor(ctx context.Context, forceSync bool) (*handler.ModeHandler, error) {
	ed := r.host.ActiveEditor()
	if ed == nil || ed.Document() == nil || ed.Document().IsClosed() {
		return nil, nil
	}
	uri := ed.Document().URI()

	h, created, err := r.handlers.GetOrCreate(uri, func() (*handler.ModeHandler, error) {
		return handler.New(r.host, ed, r.factory,
			handler.WithLogger(r.logger),
			handler.WithTransition(r.onTransition),
		)
	})
	if err != nil {
		r.logger.Error("handler for %s: %v", uri, err)
		return nil, err
	}
	if created {
		r.logger.Debug("created handler %s for %s", h.ID(), uri)
	}

	r.mu.Lock()
	prev := r.previousURI
	r.previousURI = uri
	from := r.lastMode
	r.mu.Unlock()

	if forceSync || prev == "" || prev != uri {
		h.SyncEditor(ed)
	}
	if prev != uri {
		if ph, ok := r.handlers.Get(prev); ok && prev != "" {
			ph.ClearFocusChanged()
			from = ph.Mode()
		}
		if prev != "" {
			h.MarkFocusChanged()
		}
		// The subscription set is shared by every document; it has to
		// follow the newly focused handler's mode.
		to := h.Mode()
		r.setLastMode(to)
		if err := r.subs.AdjustForTransition(ctx, from, to); err != nil {
			r.logger.Warn("focus %s (%s -> %s): %v", uri, from, to, err)
		}
	}
	return h, nil
}

func (r *Router) onTransition(ctx context.Context, _ *handler.ModeHandler, from, to engine.Mode) error {
	r.setLastMode(to)
	return r.subs.AdjustForTransition(ctx, from, to)
}

func (r *Router) setLastMode(m engine.Mode) {
	r.mu.Lock()
	r.lastMode = m
	r.mu.Unlock()
}

func (r *Router) setActive(v bool) {
	r.mu.Lock()
	r.active = v
	r.mu.Unlock()
}

// optedOut reports whether selection changes are ignored in mode.
func (r *Router) optedOut(mode engine.Mode) bool {
	return r.store.Get().OptsOut(mode.String())
}

// clampToEOL moves cursors that sit past the last character of their line
// back onto it.
func clampToEOL(h *handler.ModeHandler) {
	ed := h.Editor()
	doc := ed.Document()
	sels := ed.Selections()
	changed := false
	for i, s := range sels {
		eol := utf8.RuneCountInString(doc.LineText(s.Active.Line))
		if s.Active.Character >= eol {
			c := max(eol-1, 0)
			if c != s.Active.Character {
				sels[i].Active.Character = c
				if s.IsEmpty() {
					sels[i].Anchor = sels[i].Active
				}
				changed = true
			}
		}
	}
	if changed {
		h.SetSelections(sels)
		h.SyncEditor(nil)
	}
}
