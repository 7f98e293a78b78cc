// Package service is the request-level API the HTTP layer calls. It owns no
// state of its own: the model slot lives in the manager and the stop signal
// is shared by the generation runner and the evaluator.
package service

import (
	"context"

	"modelapi/internal/engine"
	"modelapi/internal/evaluator"
	"modelapi/internal/generation"
	"modelapi/internal/manager"
	"modelapi/internal/stopsignal"
	"modelapi/pkg/types"
)

// Service glues the lifecycle manager, the generation runner and the evaluator.
type Service struct {
	mgr    *manager.Manager
	runner *generation.Runner
	eval   *evaluator.Evaluator
	signal *stopsignal.Signal
}

// Config wires a Service.
type Config struct {
	Manager   *manager.Manager
	Runner    *generation.Runner
	Evaluator *evaluator.Evaluator
}

// New returns a Service. The runner's stop signal is the one Stop fires.
func New(cfg Config) *Service {
	return &Service{
		mgr:    cfg.Manager,
		runner: cfg.Runner,
		eval:   cfg.Evaluator,
		signal: cfg.Runner.Signal(),
	}
}

// Ready reports whether a model is loaded and serving.
func (s *Service) Ready() bool { return s.mgr.Ready() }

// State returns the lifecycle state name.
func (s *Service) State() string { return string(s.mgr.State()) }

// LastError returns the error of the most recent failed load, empty after a
// successful one.
func (s *Service) LastError() string { return s.mgr.LastError() }

// CurrentModel returns the loaded model name, nil when none.
func (s *Service) CurrentModel() *string { return s.mgr.CurrentName() }

// Model executes a model action.
func (s *Service) Model(ctx context.Context, req types.ModelRequest) (any, error) {
	return s.mgr.Do(ctx, req)
}

// Stop asks every running generation and scoring call to finish early.
func (s *Service) Stop() { s.signal.Stop() }

// Generate completes a raw prompt.
func (s *Service) Generate(ctx context.Context, req types.GenerateRequest) (string, error) {
	if req.Prompt == nil {
		return "", engine.ErrInvalidRequest("prompt is required")
	}
	params := req.GenerateParams
	if err := params.Normalize(); err != nil {
		return "", engine.ErrInvalidRequest("%v", err)
	}
	greq := generation.Request{Kind: generation.KindCompletion, Prompt: *req.Prompt, Params: params}
	var out string
	err := s.mgr.WithModel(ctx, func(m engine.Model) error {
		var err error
		out, err = s.runner.Complete(ctx, m, greq)
		return err
	})
	return out, err
}

// Chat produces the next bot reply and returns the updated history.
func (s *Service) Chat(ctx context.Context, req types.ChatRequest) (types.History, error) {
	if req.UserInput == nil {
		return types.History{}, engine.ErrInvalidRequest("user_input is required")
	}
	params := req.GenerateParams
	if err := params.Normalize(); err != nil {
		return types.History{}, engine.ErrInvalidRequest("%v", err)
	}
	chat, err := s.chatParams(req.ChatParams)
	if err != nil {
		return types.History{}, err
	}
	greq := generation.Request{
		Kind:       generation.KindChat,
		UserInput:  *req.UserInput,
		Regenerate: req.Regenerate,
		Continue:   req.Continue,
		Params:     params,
		Chat:       chat,
	}
	var out types.History
	err = s.mgr.WithModel(ctx, func(m engine.Model) error {
		var err error
		out, err = s.runner.Chat(ctx, m, greq)
		return err
	})
	return out, err
}

// ChatEval scores the base history and every choice. sequential selects one
// prompt per scoring call instead of one batch.
func (s *Service) ChatEval(ctx context.Context, req types.ChatEvalRequest, sequential bool) ([]types.ScoreResult, error) {
	if req.Choices == nil {
		return nil, engine.ErrInvalidRequest("choices is required")
	}
	params := req.GenerateParams
	if err := params.Normalize(); err != nil {
		return nil, engine.ErrInvalidRequest("%v", err)
	}
	chat, err := s.chatParams(req.ChatParams)
	if err != nil {
		return nil, err
	}
	var out []types.ScoreResult
	err = s.mgr.WithModel(ctx, func(m engine.Model) error {
		var err error
		if sequential {
			out, err = s.eval.EvaluateSequential(ctx, m, chat, req.Choices)
		} else {
			out, err = s.eval.Evaluate(ctx, m, chat, req.Choices)
		}
		return err
	})
	return out, err
}

// TokenCount returns how many tokens the loaded model's tokenizer produces
// for text, special tokens included.
func (s *Service) TokenCount(ctx context.Context, req types.TokenCountRequest) (int, error) {
	if req.Prompt == nil {
		return 0, engine.ErrInvalidRequest("prompt is required")
	}
	var n int
	err := s.mgr.WithModel(ctx, func(m engine.Model) error {
		toks, err := m.Encode(ctx, *req.Prompt, true)
		n = len(toks)
		return err
	})
	return n, err
}

// chatParams validates c and fills the instruction template from the loaded
// model's settings when the request names none.
func (s *Service) chatParams(c types.ChatParams) (types.ChatParams, error) {
	if err := c.Validate(); err != nil {
		return c, engine.ErrInvalidRequest("%v", err)
	}
	if c.InstructionTemplate == nil && c.Mode != types.ModeChat {
		if v, ok := s.mgr.Setting("instruction_template"); ok {
			if name, ok := v.(string); ok && name != "" {
				c.InstructionTemplate = &name
			}
		}
	}
	return c, nil
}
