package fake

import (
	"context"
	"errors"
	"testing"
	"time"

	"modelapi/internal/engine"
	"modelapi/pkg/types"
)

func TestWords(t *testing.T) {
	got := Words("Hi, you  there!")
	want := []string{"Hi", ",", "you", "there", "!"}
	if len(got) != len(want) {
		t.Fatalf("got %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %q", got)
		}
	}
}

func TestEncodeSpecialTokens(t *testing.T) {
	m := NewModel("m", Options{})
	with, _ := m.Encode(context.Background(), "hello", true)
	without, _ := m.Encode(context.Background(), "hello", false)
	if len(with) != 2 || with[0] != BOS || len(without) != 1 || without[0] != with[1] {
		t.Fatalf("with=%v without=%v", with, without)
	}
}

func TestLogProbsShapeAndOverflow(t *testing.T) {
	m := NewModel("m", Options{MaxContext: 3})
	lp, err := m.LogProbs(context.Background(), engine.Prompt{Text: "a b c"})
	if err != nil {
		t.Fatalf("LogProbs: %v", err)
	}
	if len(lp) != 3 || lp[0] != 0 || lp[1] >= 0 {
		t.Fatalf("lp=%v", lp)
	}
	if _, err := m.LogProbs(context.Background(), engine.Prompt{Text: "a b c d"}); !engine.IsContextOverflow(err) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := m.BatchScore(context.Background(), []engine.Prompt{{Text: "a"}, {Text: "a b c d"}}, 1); !engine.IsContextOverflow(err) {
		t.Fatalf("batch should fail as a whole, got %v", err)
	}
}

func TestGenerateCapsAndStops(t *testing.T) {
	m := NewModel("m", Options{Reply: "one two three four"})
	p, err := m.Generate(context.Background(), "", types.GenerateParams{MaxNewTokens: 3, StoppingStrings: []string{"three"}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var last string
	for {
		v, ok, err := p.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		last = v
	}
	if last != "one two " {
		t.Fatalf("last=%q", last)
	}
}

func TestGenerateHonoursContextDuringDelay(t *testing.T) {
	m := NewModel("m", Options{Reply: "slow words", Delay: time.Second})
	p, _ := m.Generate(context.Background(), "", types.GenerateParams{MaxNewTokens: 5})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, _, err := p.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
}

func TestLoaderFailuresAndAdapters(t *testing.T) {
	boom := errors.New("boom")
	l := &Loader{Known: []string{"ok"}, Fail: map[string]error{"bad": boom}}
	if _, err := l.Load(context.Background(), "bad", engine.LoadConfig{}); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if _, err := l.Load(context.Background(), "unknown", engine.LoadConfig{}); err == nil {
		t.Fatal("expected not found")
	}
	m, err := l.Load(context.Background(), "ok", engine.LoadConfig{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := l.AttachAdapters(context.Background(), m, []string{"style"}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := l.AttachAdapters(context.Background(), m, []string{"missing-x"}); err == nil {
		t.Fatal("expected adapter failure")
	}
	if l.Loads() != 1 || l.Last().Adapters()[0] != "style" {
		t.Fatalf("loads=%d adapters=%v", l.Loads(), l.Last().Adapters())
	}
}
