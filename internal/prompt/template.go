package prompt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Instruction is an instruction-following prompt format, stored as
// <templates_dir>/<name>.yaml.
type Instruction struct {
	User         string `yaml:"user"`
	Bot          string `yaml:"bot"`
	TurnTemplate string `yaml:"turn_template"`
	Context      string `yaml:"context"`
}

// instructionNotFoundError reports an unknown template name.
type instructionNotFoundError struct{ name string }

func (e instructionNotFoundError) Error() string {
	return "instruction template not found: " + e.name
}

// IsInstructionNotFound reports whether err is an unknown template name.
func IsInstructionNotFound(err error) bool {
	var e instructionNotFoundError
	return errors.As(err, &e)
}

// templateStore loads instruction templates lazily and caches them.
type templateStore struct {
	dir   string
	mu    sync.Mutex
	cache map[string]Instruction
}

func (s *templateStore) get(name string) (Instruction, error) {
	if name == "" || name == "None" {
		return Instruction{}, nil
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return Instruction{}, instructionNotFoundError{name: name}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.cache[name]; ok {
		return t, nil
	}
	if s.dir == "" {
		return Instruction{}, instructionNotFoundError{name: name}
	}
	var data []byte
	var err error
	for _, ext := range []string{".yaml", ".yml"} {
		data, err = os.ReadFile(filepath.Join(s.dir, name+ext))
		if err == nil {
			break
		}
	}
	if err != nil {
		if os.IsNotExist(err) {
			return Instruction{}, instructionNotFoundError{name: name}
		}
		return Instruction{}, err
	}
	var t Instruction
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Instruction{}, fmt.Errorf("instruction template %s: %w", name, err)
	}
	if s.cache == nil {
		s.cache = map[string]Instruction{}
	}
	s.cache[name] = t
	return t, nil
}
