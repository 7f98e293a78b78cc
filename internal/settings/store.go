// Package settings resolves persisted per-model settings.
//
// Pattern files map regular expressions to settings; every pattern that
// matches the start of the lower-cased model name contributes, in file order,
// later matches overriding earlier ones. The user file is keyed by exact model
// name and is applied last.
package settings

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store implements engine.SettingsStore. Files are re-read on every Resolve
// so edits apply to the next load without a restart.
type Store struct {
	patternFiles []string
	userFile     string
}

// New returns a Store. Missing files are treated as empty.
func New(patternFiles []string, userFile string) *Store {
	return &Store{patternFiles: append([]string(nil), patternFiles...), userFile: userFile}
}

type entry struct {
	key      string
	settings map[string]any
}

// Resolve returns the merged settings for name. The result is never nil.
func (s *Store) Resolve(name string) (map[string]any, error) {
	out := map[string]any{}
	lower := strings.ToLower(name)
	for _, f := range s.patternFiles {
		entries, err := readOrdered(f)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			re, err := regexp.Compile("^(?:" + strings.ToLower(e.key) + ")")
			if err != nil {
				log.Printf("settings event=bad_pattern file=%s pattern=%q err=%v", f, e.key, err)
				continue
			}
			if re.MatchString(lower) {
				merge(out, e.settings)
			}
		}
	}
	if s.userFile != "" {
		entries, err := readOrdered(s.userFile)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.key == name {
				merge(out, e.settings)
			}
		}
	}
	return out, nil
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

// readOrdered decodes a YAML mapping of mappings keeping key order.
func readOrdered(path string) ([]entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("settings %s: top level must be a mapping", path)
	}
	out := make([]entry, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		var vals map[string]any
		if err := root.Content[i+1].Decode(&vals); err != nil {
			return nil, fmt.Errorf("settings %s: key %q: %w", path, root.Content[i].Value, err)
		}
		if vals == nil {
			vals = map[string]any{}
		}
		out = append(out, entry{key: root.Content[i].Value, settings: vals})
	}
	return out, nil
}
