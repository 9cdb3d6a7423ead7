package selection

import (
	"sync"
	"sync/atomic"

	"github.com/dshills/vimsync/internal/host"
	"github.com/dshills/vimsync/internal/logging"
)

// Decision is the outcome of filtering one selection notification.
type Decision int

const (
	// Forward hands the notification to the mode engine.
	Forward Decision = iota
	// DropEmpty drops a notification without an editor or selections.
	DropEmpty
	// DropOutputSurface drops notifications from log/output documents.
	DropOutputSurface
	// DropUnfocused drops notifications from an editor that is not focused.
	DropUnfocused
	// DropFocusChange drops the first notification after a focus change.
	DropFocusChange
	// DropOptedOut drops notifications while the mode does not track selections.
	DropOptedOut
	// SuppressEcho drops the expected echo of an engine selection.
	SuppressEcho
	// SuppressIntermediate drops notifications raised during a multi-step edit.
	SuppressIntermediate
	// SuppressOutOfOrder drops a notification while other echoes are pending.
	SuppressOutOfOrder
)

var decisionNames = map[Decision]string{
	Forward:              "forward",
	DropEmpty:            "drop-empty",
	DropOutputSurface:    "drop-output-surface",
	DropUnfocused:        "drop-unfocused",
	DropFocusChange:      "drop-focus-change",
	DropOptedOut:         "drop-opted-out",
	SuppressEcho:         "suppress-echo",
	SuppressIntermediate: "suppress-intermediate",
	SuppressOutOfOrder:   "suppress-out-of-order",
}

// String returns the decision name.
func (d Decision) String() string {
	if s, ok := decisionNames[d]; ok {
		return s
	}
	return "unknown"
}

// Notification is a selection change as seen by the filter.
type Notification struct {
	Event     host.SelectionChangeEvent
	Signature Signature

	// OutputSurface is set when the document is a log/output channel.
	OutputSurface bool
	// Focused is set when the event's editor is the focused editor of its document.
	Focused bool

	// ignored records whether intermediate suppression was raised when the
	// notification arrived.
	ignored bool
}

// NewNotification builds a notification for ev and computes its signature.
func NewNotification(ev host.SelectionChangeEvent, outputSurface, focused bool) Notification {
	return Notification{
		Event:         ev,
		Signature:     SignatureOf(ev.Selections),
		OutputSurface: outputSurface,
		Focused:       focused,
	}
}

// State is the handler state Resolve consults. FocusChanged is consumed
// (cleared) when it causes a drop.
type State struct {
	FocusChanged *bool
	OptedOut     bool
}

// Filter decides which selection notifications reach the mode engine.
//
// Arrive runs when the host delivers the notification; Resolve runs later,
// inside the handler's queued task, where the registry may be touched.
type Filter struct {
	registry *Registry
	ignoring atomic.Int32
	logger   *logging.Logger
}

// NewFilter creates a filter over reg.
func NewFilter(reg *Registry, logger *logging.Logger) *Filter {
	if reg == nil {
		reg = NewRegistry()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Filter{registry: reg, logger: logger.WithComponent("selection")}
}

// Registry returns the registry of pending echoes.
func (f *Filter) Registry() *Registry {
	return f.registry
}

// Expect records that the engine is about to assign sels.
func (f *Filter) Expect(sels []host.Selection) Signature {
	sig := SignatureOf(sels)
	f.registry.Push(sig)
	f.logger.Trace("expecting echo %s (%d pending)", sig, f.registry.Len())
	return sig
}

// IgnoreIntermediate raises intermediate-selection suppression until the
// returned function is called. Calls nest.
func (f *Filter) IgnoreIntermediate() (release func()) {
	f.ignoring.Add(1)
	var once sync.Once
	return func() {
		once.Do(f.lower)
	}
}

// lower decrements the suppression count without going below zero, so a
// release after Reset is harmless.
func (f *Filter) lower() {
	for {
		v := f.ignoring.Load()
		if v <= 0 || f.ignoring.CompareAndSwap(v, v-1) {
			return
		}
	}
}

// IgnoringIntermediate reports whether intermediate suppression is raised.
func (f *Filter) IgnoringIntermediate() bool {
	return f.ignoring.Load() > 0
}

// Arrive applies the checks that must use the host's state at delivery
// time. A Forward result means the notification should be queued for
// Resolve; anything else is final.
func (f *Filter) Arrive(n Notification) (Notification, Decision) {
	switch {
	case n.Event.Editor == nil || len(n.Event.Selections) == 0:
		return n, DropEmpty
	case n.OutputSurface:
		return n, DropOutputSurface
	case !n.Focused:
		f.logger.Trace("dropping selection %s from unfocused editor", n.Signature)
		return n, DropUnfocused
	}
	n.ignored = f.IgnoringIntermediate()
	return n, Forward
}

// Resolve makes the final decision for a notification accepted by Arrive.
// It may consume one pending echo.
func (f *Filter) Resolve(n Notification, st State) Decision {
	if st.FocusChanged != nil && *st.FocusChanged {
		*st.FocusChanged = false
		f.logger.Trace("dropping selection %s after focus change", n.Signature)
		return DropFocusChange
	}
	if st.OptedOut {
		return DropOptedOut
	}

	if n.Event.Kind == host.KindMouse {
		return Forward
	}

	if f.registry.Consume(n.Signature) {
		f.logger.Trace("suppressed echo %s (%d pending)", n.Signature, f.registry.Len())
		return SuppressEcho
	}

	if n.ignored || f.IgnoringIntermediate() {
		f.logger.Debug("ignoring intermediate selection %s", n.Signature)
		return SuppressIntermediate
	}

	if pending := f.registry.Len(); pending > 0 {
		f.logger.Warn("selection %s arrived with %d echoes pending; treating as out-of-order echo", n.Signature, pending)
		return SuppressOutOfOrder
	}

	return Forward
}

// Reset drops pending echoes and lowers intermediate suppression.
func (f *Filter) Reset() {
	f.registry.Clear()
	f.ignoring.Store(0)
}
