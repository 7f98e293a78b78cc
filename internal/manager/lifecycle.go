package manager

import (
	"context"
	"fmt"
	"time"

	"modelapi/internal/engine"
	"modelapi/pkg/types"
)

// Load replaces the current model with name. Overrides are merged into the
// loader arguments and persist for later loads, even when this one fails.
// The previous model is released before the new one is loaded. The load runs
// to completion even if ctx is cancelled.
//
// On failure the slot is left empty, the error is returned as a
// ModelLoadFailure and the configured OnLoadFailure hook runs.
func (m *Manager) Load(ctx context.Context, name string, overrides map[string]any) (types.ModelInfo, error) {
	if name == "" {
		return types.ModelInfo{}, ErrBadRequest("load requires model_name")
	}
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	err := m.load(ctx, name, overrides)
	loadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		loadsTotal.WithLabelValues("failed").Inc()
		if m.onLoadFailure != nil {
			m.onLoadFailure(name, err)
		}
		return m.Info(), err
	}
	loadsTotal.WithLabelValues("ok").Inc()
	return m.Info(), nil
}

func (m *Manager) load(ctx context.Context, name string, overrides map[string]any) error {
	m.slot.Lock()
	defer m.slot.Unlock()

	m.mu.Lock()
	for k, v := range copyMap(overrides) {
		m.args[k] = v
	}
	m.state = StateLoading
	m.ident = nil
	m.lastErr = ""
	m.mu.Unlock()
	m.publish("load_start", name, map[string]any{"overrides": len(overrides)})

	if m.model != nil {
		prev := m.model
		m.model = nil
		modelLoaded.Set(0)
		if err := prev.Close(); err != nil {
			m.publish("unload_error", name, map[string]any{"error": err.Error()})
		}
	}

	var resolved map[string]any
	if m.store != nil {
		var err error
		if resolved, err = m.store.Resolve(name); err != nil {
			return m.failLoad(name, fmt.Errorf("resolve settings: %w", err))
		}
	}

	m.mu.Lock()
	for k, v := range resolved {
		m.settings[k] = v
	}
	if m.settings["mode"] != types.ModeInstruct {
		m.settings["instruction_template"] = nil
	}
	cfg := engine.LoadConfig{Args: copyMap(m.args), Settings: copyMap(m.settings)}
	m.mu.Unlock()

	if m.loader == nil {
		return m.failLoad(name, engine.ErrUnsupported("model loading"))
	}
	model, err := m.loader.Load(ctx, name, cfg)
	if err != nil {
		return m.failLoad(name, err)
	}
	adapters := adapterNames(cfg.Args["lora"])
	if len(adapters) > 0 {
		if err := m.loader.AttachAdapters(ctx, model, adapters); err != nil {
			_ = model.Close()
			return m.failLoad(name, fmt.Errorf("attach adapters: %w", err))
		}
		m.publish("adapters_attached", name, map[string]any{"adapters": adapters})
	}

	m.model = model
	m.mu.Lock()
	m.state = StateReady
	m.ident = &Identity{Name: name, Overrides: copyMap(overrides), Adapters: adapters}
	m.args["model"] = name
	m.mu.Unlock()
	modelLoaded.Set(1)
	m.publish("load_ready", name, map[string]any{"adapters": len(adapters)})
	return nil
}

// failLoad clears the slot after a failed load. The caller holds slot.
func (m *Manager) failLoad(name string, err error) error {
	m.model = nil
	modelLoaded.Set(0)
	m.mu.Lock()
	m.state = StateUnloaded
	m.ident = nil
	m.args["model"] = nil
	m.lastErr = err.Error()
	m.mu.Unlock()
	m.publish("load_failed", name, map[string]any{"error": err.Error()})
	return modelLoadFailureError{name: name, err: err}
}

// Unload releases the current model. It is idempotent.
func (m *Manager) Unload() (types.ModelInfo, error) {
	m.slot.Lock()
	name := ""
	var closeErr error
	if m.model != nil {
		closeErr = m.model.Close()
		m.model = nil
	}
	m.mu.Lock()
	if m.ident != nil {
		name = m.ident.Name
	}
	m.state = StateUnloaded
	m.ident = nil
	m.args["model"] = nil
	m.mu.Unlock()
	modelLoaded.Set(0)
	m.slot.Unlock()

	fields := map[string]any{}
	if closeErr != nil {
		fields["error"] = closeErr.Error()
	}
	m.publish("unload_done", name, fields)
	return m.Info(), nil
}
