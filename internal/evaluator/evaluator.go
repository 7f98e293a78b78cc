// Package evaluator scores candidate continuations of a conversation's last
// bot reply. Index 0 of every result is the unmodified base history; entry
// i+1 belongs to choice i. Scores are raw summed log-probabilities; callers
// that want per-token comparisons divide by Len themselves.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-clone"
	"github.com/rs/zerolog"

	"modelapi/internal/engine"
	"modelapi/internal/stopsignal"
	"modelapi/pkg/types"
)

// prefixIndex is the number of leading tokens the batched scorer may treat as
// shared between prompts.
const prefixIndex = 1

// scoringFailedError is returned when no prompt at all could be scored.
type scoringFailedError struct{ first string }

func (e scoringFailedError) Error() string { return "scoring failed for every prompt: " + e.first }

// IsScoringFailed reports whether err means nothing could be scored.
func IsScoringFailed(err error) bool {
	var e scoringFailedError
	return errors.As(err, &e)
}

// Config wires an Evaluator.
type Config struct {
	Renderer engine.PromptRenderer
	Signal   *stopsignal.Signal
	Logger   *zerolog.Logger
}

// Evaluator renders branches and scores them.
type Evaluator struct {
	renderer engine.PromptRenderer
	signal   *stopsignal.Signal
	log      zerolog.Logger
}

// New returns an Evaluator.
func New(cfg Config) *Evaluator {
	e := &Evaluator{renderer: cfg.Renderer, signal: cfg.Signal, log: zerolog.Nop()}
	if e.signal == nil {
		e.signal = stopsignal.New()
	}
	if cfg.Logger != nil {
		e.log = *cfg.Logger
	}
	return e
}

// Model is what the evaluator needs from a loaded model.
type Model interface {
	engine.Tokenizer
	engine.Scorer
}

// prepared is a rendered and tokenized branch; err is set when preparing it failed.
type prepared struct {
	prompt engine.Prompt
	err    error
}

// Evaluate scores the base history and every choice in one batched call. If
// the batch fails the prompts are scored one at a time so a bad candidate
// only affects its own entry. A stop leaves the unscored entries with an
// error and is not itself an error.
func (e *Evaluator) Evaluate(ctx context.Context, m Model, chat types.ChatParams, choices []string) ([]types.ScoreResult, error) {
	return e.run(ctx, m, chat, choices, true)
}

// EvaluateSequential scores the base history and every choice one prompt at a time.
func (e *Evaluator) EvaluateSequential(ctx context.Context, m Model, chat types.ChatParams, choices []string) ([]types.ScoreResult, error) {
	return e.run(ctx, m, chat, choices, false)
}

func (e *Evaluator) run(ctx context.Context, m Model, chat types.ChatParams, choices []string, batched bool) ([]types.ScoreResult, error) {
	if chat.History.Len() == 0 {
		return nil, engine.ErrInvalidRequest("history must have at least one turn to evaluate choices")
	}
	if !chat.History.Consistent() {
		return nil, engine.ErrInvalidRequest("history internal and visible lengths differ")
	}
	ctx, release := e.signal.Begin(ctx)
	defer release()
	start := time.Now()

	items := e.prepare(ctx, m, chat, choices)
	results := make([]types.ScoreResult, len(items))
	mode := "sequential"
	if batched {
		mode = "batched"
		if ok := e.scoreBatch(ctx, m, items, results); !ok {
			mode = "batched_fallback"
			e.scoreEach(ctx, m, items, results)
		}
	} else {
		e.scoreEach(ctx, m, items, results)
	}
	stopped := stopsignal.Stopped(ctx)
	if err := ctx.Err(); err != nil && !stopped {
		return nil, err
	}

	failed := 0
	var first string
	for _, r := range results {
		if r.Error != "" {
			if failed == 0 {
				first = r.Error
			}
			failed++
		}
	}
	scoringTotal.WithLabelValues(mode).Inc()
	scoringFailures.Add(float64(failed))
	scoringDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	e.log.Debug().Str("mode", mode).Int("prompts", len(results)).Int("failed", failed).Dur("took", time.Since(start)).Msg("evaluator event=done")
	if failed == len(results) && !stopped {
		return nil, scoringFailedError{first: first}
	}
	return results, nil
}

// prepare renders and tokenizes the base prompt and one prompt per choice.
func (e *Evaluator) prepare(ctx context.Context, m Model, chat types.ChatParams, choices []string) []prepared {
	items := make([]prepared, 0, len(choices)+1)
	items = append(items, e.prepareOne(ctx, m, chat, chat.History))
	for _, choice := range choices {
		h := clone.Clone(chat.History).(types.History)
		last := h.Len() - 1
		h.Internal[last][1] += choice
		h.Visible[last][1] += choice
		items = append(items, e.prepareOne(ctx, m, chat, h))
	}
	return items
}

func (e *Evaluator) prepareOne(ctx context.Context, m Model, chat types.ChatParams, h types.History) prepared {
	text, err := e.renderer.Render(h, engine.RenderOptions{ChatParams: chat, Continue: true})
	if err != nil {
		return prepared{err: fmt.Errorf("render: %w", err)}
	}
	toks, err := m.Encode(ctx, text, false)
	if err != nil {
		return prepared{err: fmt.Errorf("tokenize: %w", err)}
	}
	return prepared{prompt: engine.Prompt{Text: text, Tokens: toks}}
}

// scoreBatch scores every prepared prompt in one call. It reports false when
// the batch could not be used and results must be computed one by one.
func (e *Evaluator) scoreBatch(ctx context.Context, m Model, items []prepared, results []types.ScoreResult) bool {
	prompts := make([]engine.Prompt, 0, len(items))
	idx := make([]int, 0, len(items))
	for i, it := range items {
		if it.err != nil {
			results[i] = types.ScoreResult{Error: it.err.Error()}
			continue
		}
		prompts = append(prompts, it.prompt)
		idx = append(idx, i)
	}
	if len(prompts) == 0 {
		return true
	}
	scored, err := m.BatchScore(ctx, prompts, prefixIndex)
	if err == nil && len(scored) != len(prompts) {
		err = fmt.Errorf("batch returned %d results for %d prompts", len(scored), len(prompts))
	}
	if err != nil {
		if ctx.Err() != nil {
			for _, i := range idx {
				results[i] = types.ScoreResult{Error: context.Cause(ctx).Error()}
			}
			return true
		}
		e.log.Warn().Err(err).Int("prompts", len(prompts)).Msg("evaluator event=batch_failed fallback=sequential")
		return false
	}
	for k, i := range idx {
		results[i] = scored[k]
	}
	return true
}

func (e *Evaluator) scoreEach(ctx context.Context, m Model, items []prepared, results []types.ScoreResult) {
	for i, it := range items {
		if it.err != nil {
			results[i] = types.ScoreResult{Error: it.err.Error()}
			continue
		}
		if ctx.Err() != nil {
			results[i] = types.ScoreResult{Error: context.Cause(ctx).Error()}
			continue
		}
		lp, err := m.LogProbs(ctx, it.prompt)
		if err != nil {
			results[i] = types.ScoreResult{Error: err.Error()}
			continue
		}
		results[i] = engine.Score(lp)
	}
}
