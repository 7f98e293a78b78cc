package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"modelapi/internal/common/fsutil"
)

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" || !fsutil.FileExists(p) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays MODELAPI_* variables read through getenv onto cfg.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv("MODELAPI_" + key)); v != "" {
			*dst = v
		}
	}
	str("ADDR", &cfg.Addr)
	str("MODELS_DIR", &cfg.ModelsDir)
	str("TEMPLATES_DIR", &cfg.TemplatesDir)
	str("SETTINGS_USER_FILE", &cfg.SettingsUserFile)
	str("BACKEND", &cfg.Backend)
	str("MODEL", &cfg.Model)
	str("OPENAI_BASE_URL", &cfg.OpenAI.BaseURL)
	str("OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	str("OPENAI_TOKENIZER", &cfg.OpenAI.Tokenizer)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("REQUEST_LOG", &cfg.RequestLog)
	str("TUNNEL_ID", &cfg.TunnelID)
	str("TUNNEL_HOSTNAME", &cfg.TunnelHostname)
	str("CLOUDFLARED_BIN", &cfg.CloudflaredBin)

	if v := strings.TrimSpace(getenv("MODELAPI_SETTINGS_FILES")); v != "" {
		cfg.SettingsFiles = splitList(v)
	}
	if v := strings.TrimSpace(getenv("MODELAPI_CORS_ALLOWED_ORIGINS")); v != "" {
		cfg.CORS.AllowedOrigins = splitList(v)
	}
	if v := strings.TrimSpace(getenv("MODELAPI_PORT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MODELAPI_PORT: %w", err)
		}
		cfg.Port = n
	}
	if v := strings.TrimSpace(getenv("MODELAPI_MAX_CONCURRENT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MODELAPI_MAX_CONCURRENT: %w", err)
		}
		cfg.MaxConcurrent = &n
	}
	for key, dst := range map[string]*bool{"MODELAPI_LISTEN": &cfg.Listen, "MODELAPI_SHARE": &cfg.Share} {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}
	if v := strings.TrimSpace(getenv("MODELAPI_EXIT_ON_LOAD_FAILURE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MODELAPI_EXIT_ON_LOAD_FAILURE: %w", err)
		}
		cfg.ExitOnLoadFailure = &b
	}
	for key, dst := range map[string]*Duration{"MODELAPI_ADMISSION_WAIT": &cfg.AdmissionWait, "MODELAPI_GENERATION_TIMEOUT": &cfg.GenerationTimeout} {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	return nil
}

// splitList splits a comma separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
