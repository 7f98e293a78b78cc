package generation

import (
	"context"
	"strings"

	"modelapi/internal/engine"
)

// TrimStops wraps a text producer so that output ends at the first stop
// string. Once a stop string shows up the producer yields the trimmed text and
// is exhausted.
func TrimStops(src engine.Producer[string], stops []string) engine.Producer[string] {
	stops = compactStops(stops)
	if len(stops) == 0 {
		return src
	}
	return &stopTrimmer{src: src, stops: stops}
}

type stopTrimmer struct {
	src   engine.Producer[string]
	stops []string
	done  bool
}

func (t *stopTrimmer) Next(ctx context.Context) (string, bool, error) {
	if t.done {
		return "", false, nil
	}
	v, ok, err := t.src.Next(ctx)
	if err != nil || !ok {
		return v, ok, err
	}
	if cut, hit := cutAtStop(v, t.stops); hit {
		t.done = true
		return cut, true, nil
	}
	return v, true, nil
}

func (t *stopTrimmer) Close() error { return t.src.Close() }

// cutAtStop truncates s before the earliest stop string.
func cutAtStop(s string, stops []string) (string, bool) {
	best := -1
	for _, stop := range stops {
		if i := strings.Index(s, stop); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	if best < 0 {
		return s, false
	}
	return s[:best], true
}

func compactStops(stops []string) []string {
	out := make([]string, 0, len(stops))
	seen := make(map[string]bool, len(stops))
	for _, s := range stops {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
