package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// State is the lifecycle position of one loaded plugin.
type State string

const (
	StateLoaded   State = "loaded"
	StateActive   State = "active"
	StateFailed   State = "failed"
	StateInactive State = "inactive"
)

// Status reports one loaded plugin.
type Status struct {
	Info
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
}

type entry struct {
	plugin Plugin
	info   Info
	scope  *scope
	state  State
	err    error
}

// Manager activates and deactivates plugins in load order. Lifecycle calls
// are serialized; they are not expected to overlap with live dispatch.
type Manager struct {
	services Services
	base     *slog.Logger
	log      *slog.Logger

	lifecycleMu sync.Mutex

	mu      sync.RWMutex
	entries []*entry
}

func NewManager(services Services, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		services: services,
		base:     log,
		log:      log.With("component", "plugin.manager"),
	}
}

// Load appends plugins in the order given. Loaded plugins become active on
// the next ActivateAll.
func (m *Manager) Load(plugins ...Plugin) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range plugins {
		if p == nil {
			continue
		}
		info := p.Info()
		m.entries = append(m.entries, &entry{plugin: p, info: info, state: StateLoaded})
		m.log.Debug("Plugin loaded", "plugin", info.Name, "version", info.Version)
	}
}

// Plugins returns the status of every loaded plugin in load order.
func (m *Manager) Plugins() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.entries))
	for _, e := range m.entries {
		status := Status{Info: e.info, State: e.state}
		if e.err != nil {
			status.Error = e.err.Error()
		}
		out = append(out, status)
	}
	return out
}

// ActivateAll activates every loaded plugin in load order. When activation
// fails, onError decides: a non-nil return aborts ActivateAll with that
// error, nil skips the plugin. A nil onError aborts on the first failure.
// Plugins activated before an abort stay active; callers still run
// DeactivateAll.
func (m *Manager) ActivateAll(ctx context.Context, onError func(Info, error) error) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	for _, e := range m.pending(StateLoaded) {
		err := m.activate(ctx, e)
		if err == nil {
			continue
		}
		if onError == nil {
			return err
		}
		if abortErr := onError(e.info, err); abortErr != nil {
			return abortErr
		}
	}
	return nil
}

// DeactivateAll deactivates every active plugin in load order. Failures are
// logged and never stop the remaining plugins from being deactivated.
func (m *Manager) DeactivateAll(ctx context.Context) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	for _, e := range m.pending(StateActive) {
		m.deactivate(ctx, e)
	}
}

func (m *Manager) activate(ctx context.Context, e *entry) error {
	log := m.log.With("plugin", e.info.Name)
	e.scope = newScope(e.info.Name, m.services, m.base.With("component", "plugin", "plugin", e.info.Name), m.infos)

	err := safeCall(func() error { return e.plugin.Activate(ctx, e.scope) })
	if err != nil {
		revoked := e.scope.revoke()
		m.setState(e, StateFailed, err)
		log.Error("Plugin activation failed", "error", err, "revoked", revoked)
		return fmt.Errorf("activate plugin %q: %w", e.info.Name, err)
	}

	m.setState(e, StateActive, nil)
	log.Info("Plugin activated", "version", e.info.Version)
	return nil
}

func (m *Manager) deactivate(ctx context.Context, e *entry) {
	log := m.log.With("plugin", e.info.Name)

	err := safeCall(func() error { return e.plugin.Deactivate(ctx) })
	if err != nil {
		log.Error("Plugin deactivation failed", "error", err)
	}

	if revoked := e.scope.revoke(); revoked > 0 {
		log.Debug("Revoked leftover registrations", "count", revoked)
	}

	m.setState(e, StateInactive, err)
	log.Info("Plugin deactivated")
}

func (m *Manager) pending(state State) []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.state == state {
			out = append(out, e)
		}
	}
	return out
}

func (m *Manager) setState(e *entry, state State, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.state = state
	e.err = err
}

func (m *Manager) infos() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.info)
	}
	return out
}

// safeCall turns a panic in plugin code into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}
