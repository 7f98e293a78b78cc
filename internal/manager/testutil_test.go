package manager

import (
	"context"
	"sync"

	"modelapi/internal/backend/fake"
)

type settingsStub map[string]map[string]any

func (s settingsStub) Resolve(name string) (map[string]any, error) {
	out := map[string]any{}
	for k, v := range s[name] {
		out[k] = v
	}
	return out, nil
}

type discoveryStub struct{ names []string }

func (d discoveryStub) ListAvailable(context.Context) ([]string, error) { return d.names, nil }

type hookRecorder struct {
	mu    sync.Mutex
	names []string
}

func (h *hookRecorder) hook(name string, err error) {
	h.mu.Lock()
	h.names = append(h.names, name)
	h.mu.Unlock()
}

func (h *hookRecorder) calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.names...)
}

func newTestManager(l *fake.Loader, pub EventPublisher) *Manager {
	return New(Config{Loader: l, Publisher: pub, Quiet: true})
}
