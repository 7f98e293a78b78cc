package openai

import (
	"context"
	"errors"
	"io"

	pkgerrors "github.com/pkg/errors"
	goopenai "github.com/sashabaranov/go-openai"

	"modelapi/internal/engine"
	"modelapi/pkg/types"
)

// Model is a model served by the remote server.
type Model struct {
	b    *Backend
	name string
	// target is the model id sent with requests: the base model or the last
	// attached adapter.
	target   string
	adapters []string
}

// Close detaches adapters; the server keeps the base model.
func (m *Model) Close() error {
	m.b.detachAdapters(m.adapters)
	m.adapters = nil
	return nil
}

type tokenizeRequest struct {
	Model            string `json:"model"`
	Prompt           string `json:"prompt"`
	Content          string `json:"content"`
	AddSpecialTokens bool   `json:"add_special_tokens"`
	AddSpecial       bool   `json:"add_special"`
}

type tokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

// Encode implements engine.Tokenizer. The request carries both vLLM and
// llama.cpp field names.
func (m *Model) Encode(ctx context.Context, text string, addSpecial bool) ([]int, error) {
	if m.b.codec != nil {
		ids, _, err := m.b.codec.Encode(text)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "tiktoken encode")
		}
		out := make([]int, len(ids))
		for i, id := range ids {
			out[i] = int(id)
		}
		return out, nil
	}
	var resp tokenizeResponse
	req := tokenizeRequest{Model: m.name, Prompt: text, Content: text, AddSpecialTokens: addSpecial, AddSpecial: addSpecial}
	if err := m.b.postJSON(ctx, m.b.tokenize, req, &resp); err != nil {
		return nil, err
	}
	if resp.Tokens == nil {
		resp.Tokens = []int{}
	}
	return resp.Tokens, nil
}

func (m *Model) completionRequest(params types.GenerateParams) goopenai.CompletionRequest {
	return goopenai.CompletionRequest{
		Model:            m.target,
		MaxTokens:        params.MaxNewTokens,
		Temperature:      float32(params.Temperature),
		TopP:             float32(params.TopP),
		Stop:             params.StoppingStrings,
		PresencePenalty:  float32(params.PresencePenalty),
		FrequencyPenalty: float32(params.FrequencyPenalty),
	}
}

// Generate implements engine.Generator by streaming /v1/completions.
func (m *Model) Generate(ctx context.Context, prompt string, params types.GenerateParams) (engine.Producer[string], error) {
	if params.MaxNewTokens == 0 {
		return engine.SliceProducer[string](), nil
	}
	req := m.completionRequest(params)
	req.Prompt = prompt
	req.Stream = true
	stream, err := m.b.client.CreateCompletionStream(ctx, req)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "create completion stream")
	}
	return &streamProducer{stream: stream}, nil
}

type streamProducer struct {
	stream *goopenai.CompletionStream
	text   string
	done   bool
}

func (p *streamProducer) Next(ctx context.Context) (string, bool, error) {
	for !p.done {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		resp, err := p.stream.Recv()
		if errors.Is(err, io.EOF) {
			p.done = true
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", false, ctx.Err()
			}
			return "", false, pkgerrors.Wrap(err, "completion stream")
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Text == "" {
			continue
		}
		p.text += resp.Choices[0].Text
		return p.text, true, nil
	}
	return "", false, nil
}

func (p *streamProducer) Close() error {
	p.stream.Close()
	return nil
}

// promptLogProbs asks the server to echo the prompts with log-probabilities
// and returns the per-token values belonging to each prompt.
func (m *Model) promptLogProbs(ctx context.Context, texts []string) ([][]float64, error) {
	req := goopenai.CompletionRequest{
		Model:     m.target,
		Prompt:    texts,
		MaxTokens: 1,
		Echo:      true,
		LogProbs:  1,
	}
	if len(texts) == 1 {
		req.Prompt = texts[0]
	}
	resp, err := m.b.client.CreateCompletion(ctx, req)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "score prompts")
	}
	out := make([][]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, c := range resp.Choices {
		if c.Index < 0 || c.Index >= len(texts) {
			return nil, pkgerrors.Errorf("score prompts: choice index %d out of range", c.Index)
		}
		out[c.Index] = promptOnly(c.LogProbs, len(texts[c.Index]))
		seen[c.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, pkgerrors.Errorf("score prompts: no result for prompt %d", i)
		}
	}
	return out, nil
}

// promptOnly keeps the log-probabilities of tokens that start inside the
// prompt, dropping the generated tail. The first token has no
// log-probability and counts as 0.
func promptOnly(lp goopenai.LogprobResult, promptLen int) []float64 {
	n := len(lp.TokenLogprobs)
	if len(lp.TextOffset) == n {
		n = 0
		for _, off := range lp.TextOffset {
			if off >= promptLen {
				break
			}
			n++
		}
	}
	out := make([]float64, n)
	for i := 1; i < n; i++ {
		out[i] = float64(lp.TokenLogprobs[i])
	}
	return out
}

// LogProbs implements engine.Scorer.
func (m *Model) LogProbs(ctx context.Context, p engine.Prompt) ([]float64, error) {
	all, err := m.promptLogProbs(ctx, []string{p.Text})
	if err != nil {
		return nil, err
	}
	return all[0], nil
}

// BatchScore implements engine.Scorer with a single multi-prompt request.
func (m *Model) BatchScore(ctx context.Context, prompts []engine.Prompt, prefixIndex int) ([]types.ScoreResult, error) {
	texts := make([]string, len(prompts))
	for i, p := range prompts {
		texts[i] = p.Text
	}
	all, err := m.promptLogProbs(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]types.ScoreResult, len(all))
	for i, lp := range all {
		out[i] = engine.Score(lp)
	}
	return out, nil
}
