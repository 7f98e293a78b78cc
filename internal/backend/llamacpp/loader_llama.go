//go:build llama

package llamacpp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"modelapi/internal/engine"
	"modelapi/pkg/types"
)

// Built reports whether this binary has llama.cpp support.
const Built = true

// Loader loads GGUF files from the models directory.
type Loader struct {
	opts Options
}

// NewLoader returns a Loader.
func NewLoader(opts Options) *Loader { return &Loader{opts: opts} }

// Load implements engine.Loader. Loader arguments ctx_size, threads and
// n_gpu_layers override the configured values; a single "lora" adapter is
// applied at load time because llama.cpp bakes it into the weights.
func (l *Loader) Load(ctx context.Context, name string, cfg engine.LoadConfig) (engine.Model, error) {
	path, err := l.opts.modelPath(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	ctxSize := intArg(cfg.Args, "ctx_size", l.opts.CtxSize)
	if ctxSize <= 0 {
		ctxSize = 2048
	}
	mo := []llama.ModelOption{
		llama.SetContext(ctxSize),
		llama.SetGPULayers(intArg(cfg.Args, "n_gpu_layers", l.opts.GPULayers)),
	}
	adapters := adapterList(cfg.Args["lora"])
	if len(adapters) > 1 {
		return nil, engine.ErrUnsupported("more than one adapter")
	}
	if len(adapters) == 1 {
		ap, err := l.opts.modelPath(adapters[0])
		if err != nil {
			return nil, err
		}
		mo = append(mo, llama.SetLoraAdapter(ap), llama.SetLoraBase(path))
	}
	m, err := llama.New(path, mo...)
	if err != nil {
		return nil, err
	}
	log.Printf("backend=llamacpp event=loaded model=%q ctx=%d", name, ctxSize)
	return &Model{
		llm:      m,
		ctxSize:  ctxSize,
		threads:  intArg(cfg.Args, "threads", l.opts.Threads),
		adapters: adapters,
	}, nil
}

// AttachAdapters implements engine.Loader. Adapters are applied during Load,
// so this only checks that the requested set matches.
func (l *Loader) AttachAdapters(ctx context.Context, m engine.Model, names []string) error {
	lm, ok := m.(*Model)
	if !ok {
		return fmt.Errorf("llamacpp loader cannot attach adapters to %T", m)
	}
	if len(names) != len(lm.adapters) || (len(names) == 1 && names[0] != lm.adapters[0]) {
		return engine.ErrUnsupported("attaching adapters after load")
	}
	return nil
}

func adapterList(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case []any:
		var out []string
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Model is a loaded llama.cpp model. llama.cpp keeps one decoding state per
// model, so generations are serialised.
type Model struct {
	mu       sync.Mutex
	llm      *llama.LLama
	ctxSize  int
	threads  int
	adapters []string
}

// Encode implements engine.Tokenizer.
func (m *Model) Encode(ctx context.Context, text string, addSpecial bool) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.llm == nil {
		return nil, errors.New("llama model not initialized")
	}
	_, toks, err := m.llm.TokenizeString(text, llama.SetThreads(max(1, m.threads)))
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(toks))
	for i, t := range toks {
		// llama.cpp always prepends BOS
		if i == 0 && !addSpecial && t == 1 {
			continue
		}
		out = append(out, int(t))
	}
	return out, nil
}

// LogProbs implements engine.Scorer. go-llama.cpp does not expose logits.
func (m *Model) LogProbs(ctx context.Context, p engine.Prompt) ([]float64, error) {
	return nil, engine.ErrUnsupported("prompt log-probabilities")
}

// BatchScore implements engine.Scorer.
func (m *Model) BatchScore(ctx context.Context, prompts []engine.Prompt, prefixIndex int) ([]types.ScoreResult, error) {
	return nil, engine.ErrUnsupported("prompt log-probabilities")
}

// Generate implements engine.Generator. Prediction runs on its own goroutine
// and stops at the next token once ctx is done.
func (m *Model) Generate(ctx context.Context, prompt string, params types.GenerateParams) (engine.Producer[string], error) {
	if params.MaxNewTokens == 0 {
		return engine.SliceProducer[string](), nil
	}
	p, emit, finish := engine.ChanProducer[string](ctx)
	go func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.llm == nil {
			finish(errors.New("llama model not initialized"))
			return
		}
		var text string
		m.llm.SetTokenCallback(func(tok string) bool {
			if ctx.Err() != nil {
				return false
			}
			text += tok
			return emit(text)
		})
		_, err := m.llm.Predict(prompt, predictOptions(params, m.threads)...)
		if err != nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		finish(err)
	}()
	return p, nil
}

// Close frees the model.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.llm != nil {
		m.llm.Free()
		m.llm = nil
	}
	return nil
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// predictOptions converts generation parameters into go-llama.cpp options.
func predictOptions(p types.GenerateParams, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, p.MaxNewTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTopP(zf(float32(p.TopP), llama.DefaultOptions.TopP)),
		llama.SetTopK(p.TopK),
		llama.SetTemperature(float32(p.Temperature)),
		llama.SetPenalty(zf(float32(p.RepetitionPenalty), llama.DefaultOptions.Penalty)),
	}
	if p.Seed >= 0 {
		po = append(po, llama.SetSeed(int(p.Seed)))
	}
	if len(p.StoppingStrings) > 0 {
		po = append(po, llama.SetStopWords(p.StoppingStrings...))
	}
	return po
}
