package manager

import (
	"strings"

	"github.com/huandu/go-clone"
)

// State is the lifecycle state of the model slot.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateReady    State = "ready"
)

// Identity describes the loaded model. It exists only in StateReady.
type Identity struct {
	Name      string
	Overrides map[string]any
	Adapters  []string
}

// copyMap returns a deep copy of m; nil becomes an empty map.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return clone.Clone(m).(map[string]any)
}

// adapterNames reads the adapter list from the "lora" loader argument, which
// may be a list or a comma separated string.
func adapterNames(v any) []string {
	var out []string
	add := func(s string) { out = append(out, splitComma(s)...) }
	switch t := v.(type) {
	case nil:
	case string:
		add(t)
	case []string:
		for _, s := range t {
			add(s)
		}
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok {
				add(s)
			}
		}
	}
	return out
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
