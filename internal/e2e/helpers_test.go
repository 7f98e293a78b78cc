package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"modelapi/internal/backend/fake"
	"modelapi/internal/discovery"
	"modelapi/internal/evaluator"
	"modelapi/internal/generation"
	"modelapi/internal/httpapi"
	"modelapi/internal/manager"
	"modelapi/internal/prompt"
	"modelapi/internal/service"
	"modelapi/internal/stopsignal"
)

// createTempModelsDir creates a temporary directory populated with empty files.
func createTempModelsDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte(""), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
	}
	return dir
}

// newServer starts a real HTTP server over the fake backend.
func newServer(t *testing.T, modelsDir string, opts fake.Options) *httptest.Server {
	t.Helper()
	sig := stopsignal.New()
	r := prompt.New(t.TempDir())
	mgr := manager.New(manager.Config{
		Loader:    &fake.Loader{Opts: opts},
		Discovery: discovery.NewDir(modelsDir),
		Quiet:     true,
	})
	svc := service.New(service.Config{
		Manager:   mgr,
		Runner:    generation.New(generation.Config{Signal: sig, Renderer: r}),
		Evaluator: evaluator.New(evaluator.Config{Signal: sig, Renderer: r}),
	})
	srv := httptest.NewServer(httpapi.NewMux(svc))
	t.Cleanup(srv.Close)
	return srv
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload any) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func decode(t *testing.T, body []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("json: %v\nbody=%s", err, body)
	}
}

func mustLoad(t *testing.T, base, name string) {
	t.Helper()
	resp, body := httpPostJSON(t, base+"/api/v1/model", map[string]any{"action": "load", "model_name": name})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load %s: status=%d body=%s", name, resp.StatusCode, body)
	}
}
