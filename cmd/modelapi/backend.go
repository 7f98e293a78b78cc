package main

import (
	"fmt"

	"modelapi/internal/backend/fake"
	"modelapi/internal/backend/llamacpp"
	"modelapi/internal/backend/openai"
	"modelapi/internal/config"
	"modelapi/internal/discovery"
	"modelapi/internal/engine"
)

// buildBackend returns the loader and model discovery for cfg.Backend.
func buildBackend(cfg config.Config) (engine.Loader, engine.Discovery, error) {
	switch cfg.Backend {
	case config.BackendFake:
		return &fake.Loader{}, discovery.NewDir(cfg.ModelsDir), nil
	case config.BackendOpenAI:
		b, err := openai.New(openai.Config{
			BaseURL:      cfg.OpenAI.BaseURL,
			APIKey:       cfg.OpenAI.APIKey,
			TokenizePath: cfg.OpenAI.TokenizePath,
			Tokenizer:    cfg.OpenAI.Tokenizer,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, b, nil
	case config.BackendLlamaCPP:
		l := llamacpp.NewLoader(llamacpp.Options{
			ModelsDir: cfg.ModelsDir,
			CtxSize:   cfg.Llama.CtxSize,
			Threads:   cfg.Llama.Threads,
			GPULayers: cfg.Llama.GPULayers,
		})
		return l, discovery.NewDir(cfg.ModelsDir), nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
