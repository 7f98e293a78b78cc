package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MODELAPI_PORT":                 "6000",
		"MODELAPI_BACKEND":              "openai",
		"MODELAPI_OPENAI_BASE_URL":      "http://h/v1",
		"MODELAPI_MAX_CONCURRENT":       "4",
		"MODELAPI_SHARE":                "true",
		"MODELAPI_EXIT_ON_LOAD_FAILURE": "false",
		"MODELAPI_ADMISSION_WAIT":       "250ms",
		"MODELAPI_CORS_ALLOWED_ORIGINS": "https://a, https://b,",
		"MODELAPI_SETTINGS_FILES":       "a.yaml,b.yaml",
		"MODELAPI_TUNNEL_ID":            "abc",
		"MODELAPI_TUNNEL_HOSTNAME":      "api.example.com",
	}
	cfg := Default()
	if err := ApplyEnv(&cfg, func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Port != 6000 || cfg.Backend != "openai" || cfg.OpenAI.BaseURL != "http://h/v1" || cfg.Concurrency() != 4 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if !cfg.Share || cfg.ExitOnFailure() || cfg.AdmissionWait.Duration != 250*time.Millisecond {
		t.Fatalf("flags: %+v", cfg)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b" || len(cfg.SettingsFiles) != 2 {
		t.Fatalf("lists: %+v %+v", cfg.CORS, cfg.SettingsFiles)
	}
	if cfg.TunnelID != "abc" || cfg.TunnelHostname != "api.example.com" {
		t.Fatalf("tunnel: %q %q", cfg.TunnelID, cfg.TunnelHostname)
	}
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, func(k string) string {
		if k == "MODELAPI_PORT" {
			return "five"
		}
		return ""
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadDotEnv(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, ".env")
	if err := os.WriteFile(p, []byte("MODELAPI_TEST_DOTENV=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MODELAPI_TEST_DOTENV", "")
	os.Unsetenv("MODELAPI_TEST_DOTENV")
	if err := LoadDotEnv(filepath.Join(d, "missing.env"), p); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("MODELAPI_TEST_DOTENV"); got != "from-file" {
		t.Fatalf("env=%q", got)
	}
}
