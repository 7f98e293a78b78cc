// Package openai is a backend for OpenAI-compatible completion servers such
// as vLLM or llama.cpp's server. Generation streams from /v1/completions,
// scoring uses echoed prompt log-probabilities, and adapters are attached
// through vLLM's LoRA endpoints.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tiktoken-go/tokenizer"
)

// Config configures the backend.
type Config struct {
	// BaseURL of the OpenAI API, e.g. http://127.0.0.1:8000/v1.
	BaseURL string
	APIKey  string
	// TokenizePath is the server's tokenize endpoint relative to the server
	// root. Defaults to /tokenize.
	TokenizePath string
	// Tokenizer selects local tokenization: "tiktoken:<encoding>" uses the
	// named tiktoken encoding; empty uses the server's tokenize endpoint.
	Tokenizer  string
	HTTPClient *http.Client
}

// Backend holds the shared client. It implements engine.Loader and
// engine.Discovery.
type Backend struct {
	client   *goopenai.Client
	http     *http.Client
	root     string
	tokenize string
	codec    tokenizer.Codec
}

// New returns a Backend.
func New(cfg Config) (*Backend, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, errors.New("openai backend: base_url is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		// no client timeout; requests carry their own deadlines
		hc = &http.Client{Timeout: 0}
	}
	oc := goopenai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = base
	oc.HTTPClient = hc
	b := &Backend{
		client: goopenai.NewClientWithConfig(oc),
		http:   hc,
		root:   strings.TrimSuffix(base, "/v1"),
	}
	b.tokenize = cfg.TokenizePath
	if b.tokenize == "" {
		b.tokenize = "/tokenize"
	}
	if enc, ok := strings.CutPrefix(cfg.Tokenizer, "tiktoken:"); ok {
		codec, err := tokenizer.Get(tokenizer.Encoding(enc))
		if err != nil {
			return nil, errors.Wrapf(err, "tiktoken encoding %q", enc)
		}
		b.codec = codec
	} else if cfg.Tokenizer != "" {
		return nil, fmt.Errorf("openai backend: unknown tokenizer %q", cfg.Tokenizer)
	}
	return b, nil
}

// ListAvailable implements engine.Discovery with the server's model list.
func (b *Backend) ListAvailable(ctx context.Context) ([]string, error) {
	list, err := b.client.ListModels(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list models")
	}
	out := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		out = append(out, m.ID)
	}
	sort.Strings(out)
	return out, nil
}

// postJSON sends body to the server root path and decodes the reply into out
// when out is non-nil.
func (b *Backend) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.root+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "POST %s", path)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf("POST %s: %s: %s", path, resp.Status, strings.TrimSpace(string(tail)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	return nil
}
