//go:build !llama

package llamacpp

import (
	"context"

	"modelapi/internal/engine"
)

// Built reports whether this binary has llama.cpp support.
const Built = false

// Loader is a stub that refuses to load without the 'llama' build tag.
type Loader struct {
	opts Options
}

// NewLoader returns a Loader.
func NewLoader(opts Options) *Loader { return &Loader{opts: opts} }

// Load fails fast: llama runtime not available in this build.
func (l *Loader) Load(ctx context.Context, name string, cfg engine.LoadConfig) (engine.Model, error) {
	if _, err := l.opts.modelPath(name); err != nil {
		return nil, err
	}
	return nil, engine.ErrUnsupported("llama.cpp runtime (build with -tags=llama)")
}

// AttachAdapters implements engine.Loader.
func (l *Loader) AttachAdapters(ctx context.Context, m engine.Model, names []string) error {
	return engine.ErrUnsupported("llama.cpp runtime (build with -tags=llama)")
}
