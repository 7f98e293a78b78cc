// Package fake is a deterministic in-memory backend. It needs no model files
// and is used by tests and by `modelapi serve --backend fake` for local
// development against the HTTP API.
package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"
	"unicode"

	"modelapi/internal/engine"
	"modelapi/pkg/types"
)

// BOS is the id prepended when special tokens are requested.
const BOS = 1

// Options tune the fake model.
type Options struct {
	// Reply is the text every generation produces, one word per step.
	// Defaults to a fixed sentence.
	Reply string
	// Delay between produced words.
	Delay time.Duration
	// MaxContext is the scoring context window in tokens; 0 means unlimited.
	MaxContext int
}

const defaultReply = "This is a deterministic reply from the fake backend."

// Model implements engine.Model.
type Model struct {
	name string
	opts Options

	mu       sync.Mutex
	adapters []string
	closed   bool
}

// NewModel returns a fake model.
func NewModel(name string, opts Options) *Model {
	if opts.Reply == "" {
		opts.Reply = defaultReply
	}
	return &Model{name: name, opts: opts}
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// Adapters returns the attached adapter names.
func (m *Model) Adapters() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.adapters...)
}

// Closed reports whether Close was called.
func (m *Model) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close marks the model closed.
func (m *Model) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Words splits text into the fake tokenizer's pieces: runs of letters/digits
// and single punctuation characters.
func Words(text string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			out = append(out, string(r))
		}
	}
	flush()
	return out
}

func tokenID(piece string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(piece))
	return int(h.Sum32()%32000) + 3
}

// Encode implements engine.Tokenizer.
func (m *Model) Encode(ctx context.Context, text string, addSpecial bool) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := Words(text)
	ids := make([]int, 0, len(words)+1)
	if addSpecial {
		ids = append(ids, BOS)
	}
	for _, w := range words {
		ids = append(ids, tokenID(w))
	}
	return ids, nil
}

func (m *Model) tokens(ctx context.Context, p engine.Prompt) ([]int, error) {
	if p.Tokens != nil {
		return p.Tokens, nil
	}
	return m.Encode(ctx, p.Text, false)
}

// LogProbs implements engine.Scorer with a fixed bigram table.
func (m *Model) LogProbs(ctx context.Context, p engine.Prompt) ([]float64, error) {
	toks, err := m.tokens(ctx, p)
	if err != nil {
		return nil, err
	}
	if m.opts.MaxContext > 0 && len(toks) > m.opts.MaxContext {
		return nil, engine.ErrContextOverflow(len(toks), m.opts.MaxContext)
	}
	out := make([]float64, len(toks))
	for i := 1; i < len(toks); i++ {
		out[i] = -(1 + float64((toks[i-1]*31+toks[i])%97)/97.0)
	}
	return out, nil
}

// BatchScore implements engine.Scorer. Like a real batched forward pass, one
// failing prompt fails the whole batch.
func (m *Model) BatchScore(ctx context.Context, prompts []engine.Prompt, prefixIndex int) ([]types.ScoreResult, error) {
	out := make([]types.ScoreResult, 0, len(prompts))
	for i, p := range prompts {
		lp, err := m.LogProbs(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("batch prompt %d: %w", i, err)
		}
		out = append(out, engine.Score(lp))
	}
	return out, nil
}

// Generate implements engine.Generator. It produces Reply one word at a time,
// capped at MaxNewTokens words, and honours stop strings.
func (m *Model) Generate(ctx context.Context, prompt string, params types.GenerateParams) (engine.Producer[string], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := strings.Fields(m.opts.Reply)
	if params.MaxNewTokens < len(words) {
		words = words[:params.MaxNewTokens]
	}
	return &producer{words: words, delay: m.opts.Delay, stops: params.StoppingStrings}, nil
}

type producer struct {
	words []string
	delay time.Duration
	stops []string
	i     int
	text  string
	done  bool
}

func (p *producer) Next(ctx context.Context) (string, bool, error) {
	if p.done || p.i >= len(p.words) {
		return "", false, nil
	}
	if p.delay > 0 {
		t := time.NewTimer(p.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return "", false, err
	}
	next := p.text
	if p.i > 0 {
		next += " "
	}
	next += p.words[p.i]
	p.i++
	for _, s := range p.stops {
		if s == "" {
			continue
		}
		if idx := strings.Index(next, s); idx >= 0 {
			next = next[:idx]
			p.done = true
		}
	}
	p.text = next
	return next, true, nil
}

func (p *producer) Close() error { return nil }

// Loader implements engine.Loader for fake models.
type Loader struct {
	// Opts are applied to every loaded model.
	Opts Options
	// Known restricts loadable names; empty allows any name.
	Known []string
	// Fail makes Load return the mapped error for a name.
	Fail map[string]error

	mu    sync.Mutex
	loads int
	last  *Model
}

// Load implements engine.Loader.
func (l *Loader) Load(ctx context.Context, name string, cfg engine.LoadConfig) (engine.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := l.Fail[name]; ok {
		return nil, err
	}
	if len(l.Known) > 0 && !contains(l.Known, name) {
		return nil, fmt.Errorf("model %q not found", name)
	}
	m := NewModel(name, l.Opts)
	l.mu.Lock()
	l.loads++
	l.last = m
	l.mu.Unlock()
	return m, nil
}

// AttachAdapters implements engine.Loader. Names starting with "missing"
// fail, which lets tests exercise adapter failures.
func (l *Loader) AttachAdapters(ctx context.Context, m engine.Model, names []string) error {
	fm, ok := m.(*Model)
	if !ok {
		return fmt.Errorf("fake loader cannot attach adapters to %T", m)
	}
	for _, n := range names {
		if strings.HasPrefix(n, "missing") {
			return fmt.Errorf("adapter %q not found", n)
		}
	}
	fm.mu.Lock()
	fm.adapters = append(fm.adapters, names...)
	fm.mu.Unlock()
	return nil
}

// Loads returns how many models were loaded.
func (l *Loader) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

// Last returns the most recently loaded model.
func (l *Loader) Last() *Model {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
