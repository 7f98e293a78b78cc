package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"modelapi/internal/backend/fake"
	"modelapi/internal/engine"
	"modelapi/pkg/types"
)

func TestLoadThenUnloadClearsIdentity(t *testing.T) {
	m := newTestManager(&fake.Loader{}, nil)
	info, err := m.Load(context.Background(), "a.gguf", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if info.ModelName == nil || *info.ModelName != "a.gguf" || info.State != string(StateReady) {
		t.Fatalf("unexpected info after load: %+v", info)
	}
	if info.Args["model"] != "a.gguf" {
		t.Fatalf("args.model = %v", info.Args["model"])
	}
	if !m.Ready() {
		t.Fatal("expected ready")
	}

	info, err = m.Unload()
	if err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if info.ModelName != nil || info.LoraNames == nil || len(info.LoraNames) != 0 {
		t.Fatalf("identity survived unload: %+v", info)
	}
	if got := m.Info(); got.ModelName != nil || got.State != string(StateUnloaded) {
		t.Fatalf("info after unload: %+v", got)
	}
	if m.CurrentName() != nil {
		t.Fatal("CurrentName should be nil")
	}
	// idempotent
	if _, err := m.Unload(); err != nil {
		t.Fatalf("second Unload: %v", err)
	}
}

func TestFailedLoadLeavesNoIdentity(t *testing.T) {
	boom := errors.New("weights corrupted")
	l := &fake.Loader{Fail: map[string]error{"bad.gguf": boom}}
	hooks := &hookRecorder{}
	m := New(Config{Loader: l, OnLoadFailure: hooks.hook, Quiet: true})
	if _, err := m.Load(context.Background(), "good.gguf", nil); err != nil {
		t.Fatalf("Load good: %v", err)
	}
	prev := l.Last()

	_, err := m.Load(context.Background(), "bad.gguf", nil)
	if !IsModelLoadFailure(err) || !errors.Is(err, boom) {
		t.Fatalf("expected load failure wrapping boom, got %v", err)
	}
	if !prev.Closed() {
		t.Fatal("previous model not released before the new load")
	}
	info := m.Info()
	if info.ModelName != nil || info.State != string(StateUnloaded) {
		t.Fatalf("identity after failed load: %+v", info)
	}
	if m.LastError() == "" {
		t.Fatal("LastError not recorded")
	}
	if got := hooks.calls(); len(got) != 1 || got[0] != "bad.gguf" {
		t.Fatalf("hook calls %v", got)
	}
	if err := m.WithModel(context.Background(), func(engine.Model) error { return nil }); !IsNoModelLoaded(err) {
		t.Fatalf("expected no model loaded, got %v", err)
	}
}

func TestLoadWithoutNameIsBadRequest(t *testing.T) {
	l := &fake.Loader{}
	m := newTestManager(l, nil)
	if _, err := m.Load(context.Background(), "a", nil); err != nil {
		t.Fatal(err)
	}
	_, err := m.Do(context.Background(), types.ModelRequest{Action: types.ActionLoad})
	if !IsBadRequest(err) {
		t.Fatalf("expected bad request, got %v", err)
	}
	if name := m.CurrentName(); name == nil || *name != "a" {
		t.Fatal("state changed by a rejected load")
	}
	if l.Loads() != 1 {
		t.Fatalf("loader called %d times", l.Loads())
	}
}

func TestDoActions(t *testing.T) {
	m := New(Config{Loader: &fake.Loader{}, Discovery: discoveryStub{names: []string{"x", "y"}}, Quiet: true})
	ctx := context.Background()

	res, err := m.Do(ctx, types.ModelRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if name, ok := res.(*string); !ok || name != nil {
		t.Fatalf("default action with nothing loaded: %#v", res)
	}
	res, err = m.Do(ctx, types.ModelRequest{Action: types.ActionList})
	if err != nil {
		t.Fatal(err)
	}
	if names := res.([]string); len(names) != 2 {
		t.Fatalf("list: %v", names)
	}
	if _, err := m.Do(ctx, types.ModelRequest{Action: types.ActionLoad, ModelName: "x"}); err != nil {
		t.Fatal(err)
	}
	res, _ = m.Do(ctx, types.ModelRequest{})
	if name := res.(*string); name == nil || *name != "x" {
		t.Fatalf("current name %v", name)
	}
	res, _ = m.Do(ctx, types.ModelRequest{Action: types.ActionInfo})
	if info := res.(types.ModelInfo); info.ModelName == nil {
		t.Fatal("info lacks model name")
	}
	if _, err := m.Do(ctx, types.ModelRequest{Action: "reload"}); !IsBadRequest(err) {
		t.Fatalf("expected bad request for unknown action, got %v", err)
	}
}

func TestListNeverNil(t *testing.T) {
	for _, d := range []engine.Discovery{nil, discoveryStub{}} {
		m := New(Config{Discovery: d, Quiet: true})
		got, err := m.List(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if got == nil {
			t.Fatal("List returned nil")
		}
	}
}

func TestOverridesPersistAndAttachAdapters(t *testing.T) {
	l := &fake.Loader{}
	m := newTestManager(l, nil)
	info, err := m.Load(context.Background(), "a", map[string]any{"lora": []any{"style", "tone"}, "threads": 4})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(info.LoraNames) != 2 || info.LoraNames[0] != "style" {
		t.Fatalf("lora names %v", info.LoraNames)
	}
	if got := l.Last().Adapters(); len(got) != 2 {
		t.Fatalf("adapters attached %v", got)
	}
	if info.Args["threads"] != 4 {
		t.Fatalf("overrides not applied: %+v", info.Args)
	}

	// a later load without overrides keeps the earlier arguments
	info, err = m.Load(context.Background(), "b", nil)
	if err != nil {
		t.Fatal(err)
	}
	if info.Args["threads"] != 4 || len(info.LoraNames) != 2 {
		t.Fatalf("overrides not persisted: %+v", info)
	}
}

func TestAdapterFailureFailsLoad(t *testing.T) {
	l := &fake.Loader{}
	m := newTestManager(l, nil)
	_, err := m.Load(context.Background(), "a", map[string]any{"lora": "missing-adapter"})
	if !IsModelLoadFailure(err) {
		t.Fatalf("expected load failure, got %v", err)
	}
	if !l.Last().Closed() {
		t.Fatal("model not released after adapter failure")
	}
	if m.CurrentName() != nil {
		t.Fatal("identity set after adapter failure")
	}
	// overrides persist even though the load failed
	if m.Info().Args["lora"] != "missing-adapter" {
		t.Fatal("override lost after failed load")
	}
}

func TestSettingsMergedAndTemplateCleared(t *testing.T) {
	store := settingsStub{
		"chatty":   {"mode": "chat", "instruction_template": "Alpaca"},
		"instruct": {"mode": "instruct", "instruction_template": "Alpaca"},
	}
	m := New(Config{Loader: &fake.Loader{}, Settings: store, Quiet: true})
	info, err := m.Load(context.Background(), "chatty", nil)
	if err != nil {
		t.Fatal(err)
	}
	if info.Settings["instruction_template"] != nil {
		t.Fatalf("instruction_template kept in chat mode: %v", info.Settings["instruction_template"])
	}
	info, err = m.Load(context.Background(), "instruct", nil)
	if err != nil {
		t.Fatal(err)
	}
	if info.Settings["instruction_template"] != "Alpaca" || info.Settings["mode"] != "instruct" {
		t.Fatalf("settings %v", info.Settings)
	}
}

func TestInfoIsDeepCopy(t *testing.T) {
	m := New(Config{Loader: &fake.Loader{}, Args: map[string]any{"nested": map[string]any{"k": 1}}, Quiet: true})
	info := m.Info()
	info.Settings["mode"] = "tampered"
	info.Args["nested"].(map[string]any)["k"] = 2
	again := m.Info()
	if again.Settings["mode"] != "chat" || again.Args["nested"].(map[string]any)["k"] != 1 {
		t.Fatalf("snapshot shares state: %+v", again)
	}
}

func TestUnloadWaitsForInflight(t *testing.T) {
	l := &fake.Loader{}
	m := newTestManager(l, nil)
	if _, err := m.Load(context.Background(), "a", nil); err != nil {
		t.Fatal(err)
	}
	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = m.WithModel(context.Background(), func(engine.Model) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	unloaded := make(chan struct{})
	go func() {
		_, _ = m.Unload()
		close(unloaded)
	}()
	select {
	case <-unloaded:
		t.Fatal("unload completed while the model was in use")
	case <-time.After(50 * time.Millisecond):
	}
	if l.Last().Closed() {
		t.Fatal("model closed while in use")
	}
	close(release)
	select {
	case <-unloaded:
	case <-time.After(time.Second):
		t.Fatal("unload did not complete")
	}
	if !l.Last().Closed() {
		t.Fatal("model not closed after unload")
	}
}

func TestLoadIgnoresCallerCancellation(t *testing.T) {
	m := newTestManager(&fake.Loader{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Load(ctx, "a", nil); err != nil {
		t.Fatalf("Load with cancelled caller: %v", err)
	}
	if !m.Ready() {
		t.Fatal("expected ready")
	}
}

func TestEventsPublished(t *testing.T) {
	pub := NewMemoryPublisher()
	m := newTestManager(&fake.Loader{}, pub)
	if _, err := m.Load(context.Background(), "a", map[string]any{"lora": "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Unload(); err != nil {
		t.Fatal(err)
	}
	want := []string{"load_start", "adapters_attached", "load_ready", "unload_done"}
	got := pub.Names()
	if len(got) != len(want) {
		t.Fatalf("events %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events %v want %v", got, want)
		}
	}
}

func TestAdapterNames(t *testing.T) {
	cases := []struct {
		in   any
		want int
	}{
		{nil, 0},
		{"", 0},
		{"a, b", 2},
		{[]string{"a", "b,c"}, 3},
		{[]any{"a", 3}, 1},
	}
	for _, c := range cases {
		if got := adapterNames(c.in); len(got) != c.want {
			t.Fatalf("adapterNames(%v) = %v", c.in, got)
		}
	}
}
