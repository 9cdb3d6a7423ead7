package subscription

import (
	"context"
	"errors"

	"github.com/dshills/vimsync/internal/engine"
	"github.com/dshills/vimsync/internal/logging"
)

// Routine registers the subscriptions of an activation.
type Routine func(ctx context.Context, r Registrar) error

// Manager runs the activation routine and keeps the registry in step with
// the engine's mode.
type Manager struct {
	registry *Registry
	routine  Routine
	logger   *logging.Logger
}

// NewManager creates a manager that uses routine to (re)create subscriptions.
func NewManager(reg *Registry, routine Routine, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{registry: reg, routine: routine, logger: logger.WithComponent("subscription")}
}

// Registry returns the managed registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Activate runs the routine against the registry. Duplicate ids are logged
// by the registry and do not stop activation; other errors are returned.
func (m *Manager) Activate(ctx context.Context) error {
	return m.run(ctx, m.registry)
}

// SuspendInsertSuppressible removes the insert-suppressible subscriptions.
func (m *Manager) SuspendInsertSuppressible() {
	ids := m.registry.RemoveSuppressible()
	m.logger.Debug("suspended %d subscriptions %v", len(ids), ids)
}

// RestoreAll reruns the routine, recreating only the missing subscriptions.
func (m *Manager) RestoreAll(ctx context.Context) error {
	before := m.registry.Len()
	err := m.run(ctx, lenient{r: m.registry})
	m.logger.Debug("restored %d subscriptions", m.registry.Len()-before)
	return err
}

// AdjustForTransition suspends on entering insert mode and restores on
// leaving it. Other transitions change nothing.
func (m *Manager) AdjustForTransition(ctx context.Context, from, to engine.Mode) error {
	if !engine.CrossesInsert(from, to) {
		return nil
	}
	if to.IsInsert() {
		m.SuspendInsertSuppressible()
		return nil
	}
	return m.RestoreAll(ctx)
}

func (m *Manager) run(ctx context.Context, r Registrar) error {
	if m.routine == nil {
		return nil
	}
	return m.routine(ctx, tolerant{r})
}

// tolerant swallows duplicate-id errors so one bad registration does not
// abort the rest of the routine.
type tolerant struct {
	r Registrar
}

func (t tolerant) Register(id string, factory Factory) error {
	err := t.r.Register(id, factory)
	if errors.Is(err, ErrDuplicateID) {
		return nil
	}
	return err
}
