// Package config loads the service configuration. Values are layered:
// built-in defaults, then MODELAPI_* environment variables, then the config
// file, then command-line flags (applied by cmd/modelapi).
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"modelapi/internal/common/fsutil"
)

// Backends.
const (
	BackendFake     = "fake"
	BackendOpenAI   = "openai"
	BackendLlamaCPP = "llamacpp"
)

// Duration is a time.Duration read from strings like "30s" in every file format.
type Duration struct{ time.Duration }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		d.Duration = 0
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		d.Duration = time.Duration(n) * time.Second
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// OpenAIConfig configures the OpenAI-compatible backend.
type OpenAIConfig struct {
	BaseURL      string `json:"base_url" yaml:"base_url" toml:"base_url"`
	APIKey       string `json:"api_key" yaml:"api_key" toml:"api_key"`
	TokenizePath string `json:"tokenize_path" yaml:"tokenize_path" toml:"tokenize_path"`
	// Tokenizer is "" for the server's /tokenize endpoint or "tiktoken:<encoding>".
	Tokenizer string `json:"tokenizer" yaml:"tokenizer" toml:"tokenizer"`
}

// LlamaConfig configures the in-process llama.cpp backend.
type LlamaConfig struct {
	CtxSize   int `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	Threads   int `json:"threads" yaml:"threads" toml:"threads"`
	GPULayers int `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
}

// CORSConfig restricts cross-origin access; empty keeps the permissive headers.
type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
}

// Config holds runtime parameters for the service.
type Config struct {
	// Addr overrides Listen/Port when set, e.g. ":5000".
	Addr   string `json:"addr" yaml:"addr" toml:"addr"`
	Listen bool   `json:"listen" yaml:"listen" toml:"listen"`
	Port   int    `json:"port" yaml:"port" toml:"port"`

	ModelsDir        string   `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	SettingsFiles    []string `json:"settings_files" yaml:"settings_files" toml:"settings_files"`
	SettingsUserFile string   `json:"settings_user_file" yaml:"settings_user_file" toml:"settings_user_file"`
	TemplatesDir     string   `json:"templates_dir" yaml:"templates_dir" toml:"templates_dir"`

	Backend string       `json:"backend" yaml:"backend" toml:"backend"`
	OpenAI  OpenAIConfig `json:"openai" yaml:"openai" toml:"openai"`
	Llama   LlamaConfig  `json:"llama" yaml:"llama" toml:"llama"`

	MaxBodyBytes      int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	MaxConcurrent     *int     `json:"max_concurrent" yaml:"max_concurrent" toml:"max_concurrent"`
	AdmissionWait     Duration `json:"admission_wait" yaml:"admission_wait" toml:"admission_wait"`
	GenerationTimeout Duration `json:"generation_timeout" yaml:"generation_timeout" toml:"generation_timeout"`
	ExitOnLoadFailure *bool    `json:"exit_on_load_failure" yaml:"exit_on_load_failure" toml:"exit_on_load_failure"`

	// Model is loaded at startup when set.
	Model     string         `json:"model" yaml:"model" toml:"model"`
	ModelArgs map[string]any `json:"model_args" yaml:"model_args" toml:"model_args"`

	CORS CORSConfig `json:"cors" yaml:"cors" toml:"cors"`

	Share          bool   `json:"share" yaml:"share" toml:"share"`
	TunnelID       string `json:"tunnel_id" yaml:"tunnel_id" toml:"tunnel_id"`
	// TunnelHostname is the public hostname routed to a named tunnel.
	TunnelHostname string `json:"tunnel_hostname" yaml:"tunnel_hostname" toml:"tunnel_hostname"`
	CloudflaredBin string `json:"cloudflared_bin" yaml:"cloudflared_bin" toml:"cloudflared_bin"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`
	// RequestLog is the default per-request log level: off, error, info, debug.
	RequestLog string `json:"request_log" yaml:"request_log" toml:"request_log"`
}

// Default returns the built-in defaults.
func Default() Config {
	maxConcurrent := 16
	exitOnFailure := true
	return Config{
		Port:              5000,
		ModelsDir:         "models",
		SettingsFiles:     []string{"models/config.yaml"},
		SettingsUserFile:  "models/config-user.yaml",
		TemplatesDir:      "instruction-templates",
		Backend:           BackendFake,
		OpenAI:            OpenAIConfig{TokenizePath: "/tokenize"},
		Llama:             LlamaConfig{CtxSize: 2048},
		MaxBodyBytes:      8 << 20,
		MaxConcurrent:     &maxConcurrent,
		AdmissionWait:     Duration{30 * time.Second},
		ExitOnLoadFailure: &exitOnFailure,
		CloudflaredBin:    "cloudflared",
		LogLevel:          "info",
		LogFormat:         "auto",
		RequestLog:        "error",
	}
}

// ListenAddr returns the address to bind: Addr when set, otherwise
// 127.0.0.1:Port, or 0.0.0.0:Port with Listen.
func (c Config) ListenAddr() string {
	if strings.TrimSpace(c.Addr) != "" {
		return c.Addr
	}
	host := "127.0.0.1"
	if c.Listen {
		host = "0.0.0.0"
	}
	port := c.Port
	if port <= 0 {
		port = 5000
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Concurrency returns the admission gate size; 0 means unbounded.
func (c Config) Concurrency() int {
	if c.MaxConcurrent == nil {
		return 16
	}
	return *c.MaxConcurrent
}

// ExitOnFailure reports whether a failed load terminates the process.
func (c Config) ExitOnFailure() bool {
	return c.ExitOnLoadFailure == nil || *c.ExitOnLoadFailure
}

// Normalize validates enumerations and resolves directory paths.
func (c *Config) Normalize() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case "":
		c.Backend = BackendFake
	case BackendFake, BackendOpenAI, BackendLlamaCPP:
	default:
		return fmt.Errorf("unknown backend %q (want fake, openai or llamacpp)", c.Backend)
	}
	if c.Backend == BackendOpenAI && strings.TrimSpace(c.OpenAI.BaseURL) == "" {
		return fmt.Errorf("backend openai requires openai.base_url")
	}
	switch c.LogFormat {
	case "", "auto", "console", "json":
	default:
		return fmt.Errorf("unknown log_format %q (want auto, console or json)", c.LogFormat)
	}
	if c.MaxConcurrent != nil && *c.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent must be >= 0")
	}
	var err error
	for _, p := range []*string{&c.ModelsDir, &c.SettingsUserFile, &c.TemplatesDir} {
		if *p, err = fsutil.Resolve(*p); err != nil {
			return err
		}
	}
	if c.SettingsFiles, err = fsutil.ResolveAll(c.SettingsFiles); err != nil {
		return err
	}
	return nil
}
