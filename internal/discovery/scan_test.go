package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestListAvailableFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"model-10.gguf", "model-2.gguf", "Alpha.bin", "place-your-models-here.txt", "config.json", ".hidden", "old.pth"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte(""), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "llama-hf"), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := NewDir(dir).ListAvailable(context.Background())
	if err != nil {
		t.Fatalf("ListAvailable: %v", err)
	}
	want := []string{"Alpha.bin", "llama-hf", "model-2.gguf", "model-10.gguf", "old"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestListAvailableEmptyIsNotNil(t *testing.T) {
	got, err := NewDir(t.TempDir()).ListAvailable(context.Background())
	if err != nil {
		t.Fatalf("ListAvailable: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestListAvailableMissingDir(t *testing.T) {
	got, err := NewDir(filepath.Join(t.TempDir(), "nope")).ListAvailable(context.Background())
	if err != nil {
		t.Fatalf("ListAvailable: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty list, got %#v", got)
	}
}

func TestListAvailableExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	if err := os.MkdirAll(filepath.Join(home, "models"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, "models", "x.gguf"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := NewDir("~/models").ListAvailable(context.Background())
	if err != nil {
		t.Fatalf("ListAvailable: %v", err)
	}
	if len(got) != 1 || got[0] != "x.gguf" {
		t.Fatalf("got %v", got)
	}
}

func TestNaturalLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"a2", "a10", true},
		{"a10", "a2", false},
		{"B", "a", false},
		{"a", "B", true},
		{"x", "x1", true},
		{"a02", "a2", false},
	}
	for _, c := range cases {
		if got := naturalLess(c.a, c.b); got != c.want {
			t.Fatalf("naturalLess(%q,%q)=%v want %v", c.a, c.b, got, c.want)
		}
	}
}
