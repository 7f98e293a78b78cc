// Package llamacpp runs GGUF models in process through go-llama.cpp. Build
// with -tags=llama to enable it; default builds carry a stub that refuses to
// load so CI stays CGO-free.
package llamacpp

import (
	"path/filepath"
	"strings"

	"modelapi/internal/common/fsutil"
	"modelapi/internal/engine"
)

// Options configure the in-process runtime.
type Options struct {
	ModelsDir string
	CtxSize   int
	Threads   int
	GPULayers int
}

// modelPath resolves a model or adapter name inside ModelsDir. Names that are
// absolute or climb out of the directory are rejected.
func (o Options) modelPath(name string) (string, error) {
	if strings.TrimSpace(name) == "" || !filepath.IsLocal(name) {
		return "", engine.ErrInvalidRequest("invalid model name %q", name)
	}
	dir, err := fsutil.Resolve(o.ModelsDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
