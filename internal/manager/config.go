package manager

import (
	"log"

	"modelapi/internal/engine"
)

// defaultSettings apply before any per-model settings are merged.
func defaultSettings() map[string]any {
	return map[string]any{
		"mode":                 "chat",
		"instruction_template": nil,
		"truncation_length":    2048,
	}
}

// Config encapsulates all tunables for Manager construction.
type Config struct {
	Loader    engine.Loader
	Settings  engine.SettingsStore
	Discovery engine.Discovery
	// Args are the initial loader arguments; load overrides are applied on top.
	Args map[string]any
	// BaseSettings are merged over the package defaults.
	BaseSettings map[string]any
	Publisher    EventPublisher
	// OnLoadFailure runs after a failed load has been reported to its caller.
	// It must not block.
	OnLoadFailure func(name string, err error)
	// Quiet disables the built-in log publisher.
	Quiet bool
}

// New constructs a Manager from Config.
func New(cfg Config) *Manager {
	settings := defaultSettings()
	for k, v := range cfg.BaseSettings {
		settings[k] = v
	}
	m := &Manager{
		state:         StateUnloaded,
		loader:        cfg.Loader,
		store:         cfg.Settings,
		discovery:     cfg.Discovery,
		args:          copyMap(cfg.Args),
		settings:      settings,
		onLoadFailure: cfg.OnLoadFailure,
	}
	var pubs multiPublisher
	if !cfg.Quiet {
		pubs = append(pubs, LogPublisher(log.Printf))
	}
	if cfg.Publisher != nil {
		pubs = append(pubs, cfg.Publisher)
	}
	switch len(pubs) {
	case 0:
		m.publisher = noopPublisher{}
	case 1:
		m.publisher = pubs[0]
	default:
		m.publisher = pubs
	}
	modelLoaded.Set(0)
	return m
}
