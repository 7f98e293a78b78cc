package manager

import (
	"context"
	"sync"

	"modelapi/internal/engine"
	"modelapi/pkg/types"
)

type Manager struct {
	// slot guards model. Users of the model hold the read lock for the
	// whole call; Load and Unload hold the write lock.
	slot  sync.RWMutex
	model engine.Model

	// mu guards the snapshot fields below.
	mu       sync.Mutex
	state    State
	ident    *Identity
	args     map[string]any
	settings map[string]any
	lastErr  string

	loader        engine.Loader
	store         engine.SettingsStore
	discovery     engine.Discovery
	publisher     EventPublisher
	onLoadFailure func(name string, err error)
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ready reports whether a model is loaded and usable.
func (m *Manager) Ready() bool { return m.State() == StateReady }

// LastError returns the error of the most recent failed load, if any.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// CurrentName returns the loaded model's name, or nil.
func (m *Manager) CurrentName() *string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ident == nil {
		return nil
	}
	name := m.ident.Name
	return &name
}

// Setting returns one value of the current settings snapshot.
func (m *Manager) Setting(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[key]
	return v, ok
}

// Info returns the model information snapshot. Maps are deep copies.
func (m *Manager) Info() types.ModelInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := types.ModelInfo{
		LoraNames: []string{},
		Settings:  copyMap(m.settings),
		Args:      copyMap(m.args),
		State:     string(m.state),
	}
	if m.ident != nil {
		name := m.ident.Name
		info.ModelName = &name
		info.LoraNames = append(info.LoraNames, m.ident.Adapters...)
	}
	return info
}

// List returns the names of loadable models. It never returns nil.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	if m.discovery == nil {
		return []string{}, nil
	}
	names, err := m.discovery.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// WithModel runs fn with the loaded model. The model cannot be unloaded or
// swapped until fn returns.
func (m *Manager) WithModel(ctx context.Context, fn func(engine.Model) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st := m.State(); st == StateUnloaded {
		return noModelLoadedError{state: st}
	}
	m.slot.RLock()
	defer m.slot.RUnlock()
	if m.model == nil {
		return noModelLoadedError{state: m.State()}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(m.model)
}

func (m *Manager) publish(name, model string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	m.publisher.Publish(Event{Name: name, ModelName: model, Fields: fields})
}
