package router

import (
	"context"
	"errors"
	"strings"

	"github.com/dshills/vimsync/internal/engine"
	"github.com/dshills/vimsync/internal/handler"
	"github.com/dshills/vimsync/internal/host"
	"github.com/dshills/vimsync/internal/notation"
	"github.com/dshills/vimsync/internal/remap"
	"github.com/dshills/vimsync/internal/subscription"
)

// handlerTask is queued work that needs the active document's handler.
type handlerTask func(ctx context.Context, h *handler.ModeHandler) error

// override replaces one of the host's own commands. While disabled, and in
// the debug console input, the native command runs instead.
func (r *Router) override(name string, prepare func(args []byte) (handlerTask, error)) subscription.Factory {
	return func() (host.Disposable, error) {
		return r.host.RegisterCommand(name, func(ctx context.Context, args []byte) error {
			if r.disabled.Load() {
				return r.host.ExecuteCommand(ctx, host.NativeCommand(name), args)
			}
			ed := r.host.ActiveEditor()
			if ed == nil {
				return nil
			}
			if ed.Document() != nil && ed.Document().URI() == host.DebugInputURI {
				return r.host.ExecuteCommand(ctx, host.NativeCommand(name), args)
			}

			task, err := prepare(args)
			if err != nil {
				r.logger.Warn("%s: %v", name, err)
				return nil
			}
			r.enqueueForHandler(ctx, name, task)
			return nil
		})
	}
}

// command registers one of vimsync's own commands.
func (r *Router) command(name string, requiresEditor bool, fn host.CommandHandler) subscription.Factory {
	return func() (host.Disposable, error) {
		return r.host.RegisterCommand(name, func(ctx context.Context, args []byte) error {
			if requiresEditor && r.host.ActiveEditor() == nil {
				return nil
			}
			return fn(ctx, args)
		})
	}
}

func (r *Router) enqueueForHandler(ctx context.Context, name string, task handlerTask) {
	r.enqueue(ctx, name, func(ctx context.Context) error {
		h, err := r.handlerFor(ctx, false)
		if err != nil || h == nil {
			return err
		}
		return task(ctx, h)
	})
}

func (r *Router) typeCommand(args []byte) (handlerTask, error) {
	a, err := host.ParseTypeArgs(args)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, h *handler.ModeHandler) error {
		return h.Type(ctx, a.Text)
	}, nil
}

func (r *Router) replacePreviousCharCommand(args []byte) (handlerTask, error) {
	a, err := host.ParseReplacePreviousCharArgs(args)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, h *handler.ModeHandler) error {
		return h.ReplacePreviousChar(ctx, a.Text, a.ReplaceCharCnt)
	}, nil
}

func (r *Router) compositionStartCommand([]byte) (handlerTask, error) {
	return func(_ context.Context, h *handler.ModeHandler) error {
		h.CompositionStart()
		return nil
	}, nil
}

func (r *Router) compositionEndCommand([]byte) (handlerTask, error) {
	return func(ctx context.Context, h *handler.ModeHandler) error {
		return h.CompositionEnd(ctx)
	}, nil
}

// remapCommand runs {"after": [...keys], "commands": [...]} against the
// active handler. The keys run as one remap so <Esc> can cut them short.
func (r *Router) remapCommand(ctx context.Context, args []byte) error {
	if r.disabled.Load() {
		return nil
	}
	a, err := host.ParseRemapArgs(args)
	if err != nil {
		r.logger.Warn("%s: %v", CommandRemap, err)
		return nil
	}
	keys, err := notation.NormalizeKeys(a.After, r.store.Get().Leader)
	if err != nil {
		r.logger.Warn("%s: %v", CommandRemap, err)
		return nil
	}

	r.enqueueForHandler(ctx, CommandRemap, func(ctx context.Context, h *handler.ModeHandler) error {
		if len(keys) > 0 {
			n, err := h.Engine().RemapState().Run(ctx, keys, h.HandleKeyEvent)
			switch {
			case errors.Is(err, remap.ErrStopped):
				r.logger.Debug("remap stopped after %d of %d keys", n, len(keys))
				return nil
			case err != nil:
				return err
			}
		}
		for _, c := range a.Commands {
			if strings.HasPrefix(c.Command, ":") {
				r.logger.Warn("%s: ex command %q is not supported", CommandRemap, c.Command)
				continue
			}
			if err := r.host.ExecuteCommand(ctx, c.Command, c.Args); err != nil {
				return err
			}
		}
		return nil
	})
	return nil
}

func (r *Router) toggleCommand(ctx context.Context, _ []byte) error {
	r.Toggle(ctx, !r.disabled.Load())
	return nil
}

// boundKeyCommand delivers key to the engine. <Esc> and <C-c> first try to
// stop a running remap; the key is only delivered when there was none.
// Bound keys are inert while disabled, like a host keybinding whose when
// clause requires vim.active.
func (r *Router) boundKeyCommand(key string) host.CommandHandler {
	stops := key == engine.KeyEsc || key == engine.KeyCtrlC
	return func(ctx context.Context, _ []byte) error {
		if r.disabled.Load() {
			return nil
		}
		if stops && r.forceStopRemap() {
			r.logger.Debug("%s stopped a running remap", key)
			return nil
		}
		r.enqueueForHandler(ctx, key, func(ctx context.Context, h *handler.ModeHandler) error {
			return h.HandleKeyEvent(ctx, key)
		})
		return nil
	}
}

// forceStopRemap stops a remap running on the active document's handler.
func (r *Router) forceStopRemap() bool {
	ed := r.host.ActiveEditor()
	if ed == nil || ed.Document() == nil {
		return false
	}
	h, ok := r.handlers.Get(ed.Document().URI())
	if !ok {
		return false
	}
	return h.Engine().RemapState().ForceStop()
}
