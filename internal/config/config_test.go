package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Embedder.Mode != "mock" {
		t.Fatalf("expected default mock embedder, got %q", cfg.Embedder.Mode)
	}
	if cfg.Embedder.Dimension != 256 {
		t.Fatalf("expected default dimension 256, got %d", cfg.Embedder.Dimension)
	}
	if cfg.Matcher.Threshold != 0.70 {
		t.Fatalf("expected default threshold 0.70, got %v", cfg.Matcher.Threshold)
	}
	if cfg.Store.OnCorrupt != "reset" {
		t.Fatalf("expected default corrupt policy reset, got %q", cfg.Store.OnCorrupt)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voiceid.yaml")
	doc := `
service_name: voiceid-test
store:
  path: ./test-db.json
  on_corrupt: fail
embedder:
  mode: exec
  command: "embed --quiet"
  dimension: 192
matcher:
  threshold: 0.55
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServiceName != "voiceid-test" {
		t.Fatalf("expected service name override, got %q", cfg.ServiceName)
	}
	if cfg.Store.OnCorrupt != "fail" {
		t.Fatalf("expected corrupt policy fail, got %q", cfg.Store.OnCorrupt)
	}
	if cfg.Embedder.Mode != "exec" || cfg.Embedder.Command != "embed --quiet" {
		t.Fatalf("expected exec embedder, got %+v", cfg.Embedder)
	}
	if cfg.Embedder.Dimension != 192 {
		t.Fatalf("expected dimension 192, got %d", cfg.Embedder.Dimension)
	}
	if cfg.Matcher.Threshold != 0.55 {
		t.Fatalf("expected threshold 0.55, got %v", cfg.Matcher.Threshold)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOICEID_STORE_PATH", "./override.json")
	t.Setenv("VOICEID_STORE_ON_CORRUPT", "fail")
	t.Setenv("VOICEID_EMBEDDER_DIMENSION", "128")
	t.Setenv("VOICEID_MATCHER_THRESHOLD", "0.8")
	t.Setenv("VOICEID_BUS_ENABLED", "true")
	t.Setenv("VOICEID_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("VOICEID_BUS_EMBEDDED", "false")
	t.Setenv("VOICEID_AUDIT_RETENTION_MODE", "ephemeral")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Path != "./override.json" {
		t.Fatalf("expected store path override, got %q", cfg.Store.Path)
	}
	if cfg.Store.OnCorrupt != "fail" {
		t.Fatalf("expected corrupt policy override")
	}
	if cfg.Embedder.Dimension != 128 {
		t.Fatalf("expected dimension 128, got %d", cfg.Embedder.Dimension)
	}
	if cfg.Matcher.Threshold != 0.8 {
		t.Fatalf("expected threshold 0.8, got %v", cfg.Matcher.Threshold)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Audit.RetentionMode != "ephemeral" {
		t.Fatalf("expected audit retention override")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"bad corrupt policy":   func(c *Config) { c.Store.OnCorrupt = "ignore" },
		"bad embedder mode":    func(c *Config) { c.Embedder.Mode = "onnx" },
		"exec without command": func(c *Config) { c.Embedder.Mode = "exec"; c.Embedder.Command = "" },
		"zero dimension":       func(c *Config) { c.Embedder.Dimension = 0 },
		"threshold above 1":    func(c *Config) { c.Matcher.Threshold = 1.5 },
		"ingest without bus":   func(c *Config) { c.Ingest.Enabled = true; c.Bus.Enabled = false },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := validate(cfg); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
