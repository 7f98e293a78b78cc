// Package engine defines the contracts between the service core and the
// components that do the numerical work: tokenizers, scorers, generators and
// the loader that produces them. Concrete implementations live under
// internal/backend.
package engine

import (
	"context"

	"modelapi/pkg/types"
)

// Tokenizer turns text into token ids.
type Tokenizer interface {
	Encode(ctx context.Context, text string, addSpecial bool) ([]int, error)
}

// Prompt is a prompt to score. Tokens may be nil when the backend tokenizes
// by itself.
type Prompt struct {
	Text   string
	Tokens []int
}

// Scorer computes how likely the model finds a prompt.
type Scorer interface {
	// LogProbs returns one log-probability per prompt token: entry i is the
	// log-probability of token i given tokens [0, i). Entry 0 is always 0.
	LogProbs(ctx context.Context, p Prompt) ([]float64, error)
	// BatchScore scores many prompts at once. prefixIndex hints that the
	// prompts share their first prefixIndex tokens; implementations may ignore
	// it. The result for a prompt must match Score(LogProbs(prompt)).
	BatchScore(ctx context.Context, prompts []Prompt, prefixIndex int) ([]types.ScoreResult, error)
}

// Generator produces text incrementally.
type Generator interface {
	// Generate starts a completion of prompt. Each value produced is the
	// whole text generated so far.
	Generate(ctx context.Context, prompt string, params types.GenerateParams) (Producer[string], error)
}

// Model is a loaded model.
type Model interface {
	Tokenizer
	Scorer
	Generator
	// Close releases the model's resources.
	Close() error
}

// LoadConfig carries the loader arguments and resolved settings of a load.
type LoadConfig struct {
	Args     map[string]any
	Settings map[string]any
}

// Loader loads models by name and attaches adapters to them.
type Loader interface {
	Load(ctx context.Context, name string, cfg LoadConfig) (Model, error)
	AttachAdapters(ctx context.Context, m Model, names []string) error
}

// RenderOptions control how a history is rendered to a prompt.
type RenderOptions struct {
	types.ChatParams
	// UserInput starts a new turn unless Continue is set.
	UserInput string
	// Continue extends the last bot reply in place (continuation-edit mode).
	Continue bool
}

// PromptRenderer turns a conversation into a prompt string.
type PromptRenderer interface {
	Render(h types.History, opts RenderOptions) (string, error)
	// StopStrings returns the speaker prefixes that end a bot reply.
	StopStrings(opts RenderOptions) []string
}

// SettingsStore resolves persisted per-model settings.
type SettingsStore interface {
	Resolve(name string) (map[string]any, error)
}

// Discovery lists the models that can be loaded.
type Discovery interface {
	ListAvailable(ctx context.Context) ([]string, error)
}

// Score reduces per-token log-probabilities to a ScoreResult.
func Score(logprobs []float64) types.ScoreResult {
	var sum float64
	for _, lp := range logprobs {
		sum += lp
	}
	return types.ScoreResult{Logit: sum, Len: len(logprobs)}
}
