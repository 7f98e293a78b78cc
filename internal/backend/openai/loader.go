package openai

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"modelapi/internal/engine"
)

// Load implements engine.Loader. The server already hosts its models, so
// loading checks that name is served and binds a Model to it.
func (b *Backend) Load(ctx context.Context, name string, cfg engine.LoadConfig) (engine.Model, error) {
	served, err := b.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}
	found := false
	for _, s := range served {
		if s == name {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("model %q is not served by %s (available: %s)", name, b.root, strings.Join(served, ", "))
	}
	return &Model{b: b, name: name, target: name}, nil
}

type loraRequest struct {
	LoraName string `json:"lora_name"`
	LoraPath string `json:"lora_path,omitempty"`
}

// AttachAdapters implements engine.Loader using the LoRA endpoints. Each
// name is a path on the server; the adapter is registered under its base
// name and the last one becomes the generation target.
func (b *Backend) AttachAdapters(ctx context.Context, m engine.Model, names []string) error {
	om, ok := m.(*Model)
	if !ok {
		return fmt.Errorf("openai backend cannot attach adapters to %T", m)
	}
	for _, path := range names {
		name := adapterName(path)
		if err := b.postJSON(ctx, "/v1/load_lora_adapter", loraRequest{LoraName: name, LoraPath: path}, nil); err != nil {
			return errors.Wrapf(err, "load adapter %s", name)
		}
		om.adapters = append(om.adapters, name)
		om.target = name
	}
	return nil
}

func adapterName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func (b *Backend) detachAdapters(names []string) {
	for _, name := range names {
		if err := b.postJSON(context.Background(), "/v1/unload_lora_adapter", loraRequest{LoraName: name}, nil); err != nil {
			log.Printf("backend=openai event=unload_adapter_failed adapter=%s err=%v", name, err)
		}
	}
}
