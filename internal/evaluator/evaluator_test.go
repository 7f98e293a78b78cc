package evaluator

import (
	"context"
	"math"
	"strings"
	"testing"

	"modelapi/internal/backend/fake"
	"modelapi/internal/engine"
	"modelapi/internal/prompt"
	"modelapi/pkg/types"
)

func chatWith(turns ...types.Turn) types.ChatParams {
	c := types.DefaultChatParams()
	c.History = types.History{
		Internal: append([]types.Turn{}, turns...),
		Visible:  append([]types.Turn{}, turns...),
	}
	return c
}

func newEvaluator() *Evaluator {
	return New(Config{Renderer: prompt.New("")})
}

// expected scores a branch independently of the evaluator.
func expected(t *testing.T, m *fake.Model, chat types.ChatParams, choice string) types.ScoreResult {
	t.Helper()
	h := chat.History.Copy()
	last := h.Len() - 1
	h.Internal[last][1] += choice
	text, err := prompt.New("").Render(h, engine.RenderOptions{ChatParams: chat, Continue: true})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	lp, err := m.LogProbs(context.Background(), engine.Prompt{Text: text})
	if err != nil {
		t.Fatalf("LogProbs: %v", err)
	}
	return engine.Score(lp)
}

func TestEvaluateReturnsBasePlusChoicesInOrder(t *testing.T) {
	m := fake.NewModel("m", fake.Options{})
	chat := chatWith(types.Turn{"hi", "ok"})
	choices := []string{"!", "?", " sure thing"}
	got, err := newEvaluator().Evaluate(context.Background(), m, chat, choices)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(got) != 1+len(choices) {
		t.Fatalf("expected %d results, got %d", 1+len(choices), len(got))
	}
	if got[0] != expected(t, m, chat, "") {
		t.Fatalf("base mismatch: %+v", got[0])
	}
	for i, c := range choices {
		if got[i+1] != expected(t, m, chat, c) {
			t.Fatalf("choice %d mismatch: %+v", i, got[i+1])
		}
	}
	if chat.History.Internal[0].Bot() != "ok" || chat.History.Visible[0].Bot() != "ok" {
		t.Fatal("input history was mutated")
	}
}

func TestBatchedMatchesSequential(t *testing.T) {
	m := fake.NewModel("m", fake.Options{})
	chat := chatWith(types.Turn{"hello there", "general"}, types.Turn{"how", "are"})
	choices := []string{" you", " we", " things going?", ""}
	ev := newEvaluator()
	batched, err := ev.Evaluate(context.Background(), m, chat, choices)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	seq, err := ev.EvaluateSequential(context.Background(), m, chat, choices)
	if err != nil {
		t.Fatalf("EvaluateSequential: %v", err)
	}
	if len(batched) != len(seq) {
		t.Fatalf("length mismatch %d vs %d", len(batched), len(seq))
	}
	for i := range seq {
		if math.Abs(batched[i].Logit-seq[i].Logit) > 1e-6 || batched[i].Len != seq[i].Len {
			t.Fatalf("entry %d: batched %+v sequential %+v", i, batched[i], seq[i])
		}
	}
}

func TestOverflowIsPerCandidate(t *testing.T) {
	// base prompt "You: hi\nAssistant: ok" is 6 fake tokens
	m := fake.NewModel("m", fake.Options{MaxContext: 8})
	chat := chatWith(types.Turn{"hi", "ok"})
	choices := []string{"!", " a b c d e f"}
	for name, fn := range map[string]func(context.Context, Model, types.ChatParams, []string) ([]types.ScoreResult, error){
		"batched":    newEvaluator().Evaluate,
		"sequential": newEvaluator().EvaluateSequential,
	} {
		got, err := fn(context.Background(), m, chat, choices)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(got) != 3 {
			t.Fatalf("%s: got %d results", name, len(got))
		}
		if got[0].Error != "" || got[1].Error != "" {
			t.Fatalf("%s: unexpected errors %+v", name, got)
		}
		if got[2].Error == "" || !strings.Contains(got[2].Error, "context") || got[2].Len != 0 {
			t.Fatalf("%s: expected overflow entry, got %+v", name, got[2])
		}
		if got[1] != expected(t, m, chat, "!") {
			t.Fatalf("%s: surviving entry mismatch %+v", name, got[1])
		}
	}
}

func TestAllFailedIsError(t *testing.T) {
	m := fake.NewModel("m", fake.Options{MaxContext: 2})
	_, err := newEvaluator().Evaluate(context.Background(), m, chatWith(types.Turn{"hi", "ok"}), []string{"!"})
	if !IsScoringFailed(err) {
		t.Fatalf("expected scoring failure, got %v", err)
	}
}

func TestEmptyHistoryIsInvalid(t *testing.T) {
	m := fake.NewModel("m", fake.Options{})
	_, err := newEvaluator().Evaluate(context.Background(), m, types.DefaultChatParams(), []string{"!"})
	if !engine.IsInvalidRequest(err) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestNoChoicesScoresBaseOnly(t *testing.T) {
	m := fake.NewModel("m", fake.Options{})
	got, err := newEvaluator().Evaluate(context.Background(), m, chatWith(types.Turn{"hi", "ok"}), nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(got) != 1 || got[0].Len == 0 {
		t.Fatalf("got %+v", got)
	}
}
