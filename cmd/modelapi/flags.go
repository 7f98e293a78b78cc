package main

import (
	"time"

	"github.com/spf13/cobra"

	"modelapi/internal/config"
)

// serveFlags mirror the config keys that are commonly set on the command line.
type serveFlags struct {
	addr              string
	listen            bool
	port              int
	modelsDir         string
	templatesDir      string
	backend           string
	openaiBaseURL     string
	model             string
	lora              []string
	maxConcurrent     int
	admissionWait     time.Duration
	generationTimeout time.Duration
	exitOnLoadFailure bool
	corsOrigins       []string
	share             bool
	logLevel          string
	logFormat         string
}

func (f *serveFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.addr, "addr", "", "HTTP listen address, e.g. :5000 (overrides --listen/--port)")
	fs.BoolVar(&f.listen, "listen", false, "Listen on all interfaces instead of 127.0.0.1")
	fs.IntVar(&f.port, "port", 5000, "HTTP port")
	fs.StringVar(&f.modelsDir, "models-dir", "", "Directory of loadable models")
	fs.StringVar(&f.templatesDir, "templates-dir", "", "Directory of instruction templates")
	fs.StringVar(&f.backend, "backend", "", "Model backend: fake, openai or llamacpp")
	fs.StringVar(&f.openaiBaseURL, "openai-base-url", "", "Base URL of an OpenAI-compatible server, e.g. http://127.0.0.1:8000/v1")
	fs.StringVar(&f.model, "model", "", "Model to load at startup")
	fs.StringSliceVar(&f.lora, "lora", nil, "Adapters to attach to the startup model")
	fs.IntVar(&f.maxConcurrent, "max-concurrent", 16, "Concurrent compute requests (0 = unbounded)")
	fs.DurationVar(&f.admissionWait, "admission-wait", 30*time.Second, "How long a request may wait for a slot before a 429")
	fs.DurationVar(&f.generationTimeout, "generation-timeout", 0, "Upper bound for one generation (0 = none)")
	fs.BoolVar(&f.exitOnLoadFailure, "exit-on-load-failure", true, "Exit with status 1 after a failed model load")
	fs.StringSliceVar(&f.corsOrigins, "cors-origin", nil, "Allowed CORS origins (default: any)")
	fs.BoolVar(&f.share, "share", false, "Expose the API through a cloudflared quick tunnel")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format: auto, console or json")
}

// apply copies the flags the user changed onto cfg.
func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if f == nil {
		return
	}
	changed := cmd.Flags().Changed
	if changed("addr") {
		cfg.Addr = f.addr
	}
	if changed("listen") {
		cfg.Listen = f.listen
	}
	if changed("port") {
		cfg.Port = f.port
	}
	if changed("models-dir") {
		cfg.ModelsDir = f.modelsDir
	}
	if changed("templates-dir") {
		cfg.TemplatesDir = f.templatesDir
	}
	if changed("backend") {
		cfg.Backend = f.backend
	}
	if changed("openai-base-url") {
		cfg.OpenAI.BaseURL = f.openaiBaseURL
	}
	if changed("model") {
		cfg.Model = f.model
	}
	if changed("lora") {
		if cfg.ModelArgs == nil {
			cfg.ModelArgs = map[string]any{}
		}
		cfg.ModelArgs["lora"] = append([]string(nil), f.lora...)
	}
	if changed("max-concurrent") {
		n := f.maxConcurrent
		cfg.MaxConcurrent = &n
	}
	if changed("admission-wait") {
		cfg.AdmissionWait = config.Duration{Duration: f.admissionWait}
	}
	if changed("generation-timeout") {
		cfg.GenerationTimeout = config.Duration{Duration: f.generationTimeout}
	}
	if changed("exit-on-load-failure") {
		b := f.exitOnLoadFailure
		cfg.ExitOnLoadFailure = &b
	}
	if changed("cors-origin") {
		cfg.CORS.AllowedOrigins = append([]string(nil), f.corsOrigins...)
	}
	if changed("share") {
		cfg.Share = f.share
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
}
