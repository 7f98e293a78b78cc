// Package discovery lists the models available in the models directory.
package discovery

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"unicode"

	"modelapi/internal/common/fsutil"
)

// ignoredSuffixes are files that live next to models but are not models.
var ignoredSuffixes = []string{".txt", "-np", ".pt", ".json", ".yaml", ".yml", ".md"}

// Dir implements engine.Discovery over a directory. Every sub-directory and
// every file that is not metadata counts as a model.
type Dir struct {
	path string
}

// NewDir returns a scanner for path ('~' is expanded).
func NewDir(path string) *Dir { return &Dir{path: path} }

// ListAvailable returns model names sorted in natural order. A missing
// directory yields an empty list. The result is never nil.
func (d *Dir) ListAvailable(ctx context.Context) ([]string, error) {
	out := []string{}
	if d.path == "" {
		return out, nil
	}
	abs, err := fsutil.Resolve(d.path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("discovery event=missing_dir path=%s", abs)
			return out, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !e.IsDir() && hasIgnoredSuffix(name) {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ".pth"))
	}
	sort.SliceStable(out, func(i, j int) bool { return naturalLess(out[i], out[j]) })
	return out, nil
}

func hasIgnoredSuffix(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range ignoredSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// naturalLess compares case-insensitively with digit runs compared by value,
// so "model-2" sorts before "model-10".
func naturalLess(a, b string) bool {
	ra, rb := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	i, j := 0, 0
	for i < len(ra) && j < len(rb) {
		if unicode.IsDigit(ra[i]) && unicode.IsDigit(rb[j]) {
			si := i
			for i < len(ra) && unicode.IsDigit(ra[i]) {
				i++
			}
			sj := j
			for j < len(rb) && unicode.IsDigit(rb[j]) {
				j++
			}
			na := strings.TrimLeft(string(ra[si:i]), "0")
			nb := strings.TrimLeft(string(rb[sj:j]), "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			continue
		}
		if ra[i] != rb[j] {
			return ra[i] < rb[j]
		}
		i++
		j++
	}
	return len(ra)-i < len(rb)-j
}
