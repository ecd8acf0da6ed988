package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.MaxOutputTokens != 500 || cfg.Model.Temperature != 0.5 {
		t.Fatalf("unexpected model defaults: %+v", cfg.Model)
	}
	if len(cfg.Model.StopSequences) != 1 || cfg.Model.StopSequences[0] != "\n\nHuman:" {
		t.Fatalf("unexpected stop sequences: %q", cfg.Model.StopSequences)
	}
	if cfg.Model.Timeout != 30*time.Second {
		t.Fatalf("timeout: %v", cfg.Model.Timeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Model.Endpoint != "https://bedrock-runtime.us-east-1.amazonaws.com" {
		t.Fatalf("endpoint: %q", cfg.Model.Endpoint)
	}
	if got := cfg.WorldURL(); got != "ws://localhost:8080/v1/ws" {
		t.Fatalf("WorldURL: %q", got)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "pilot.yaml")
	body := `
world:
  host: mc.example
  port: 25565
  path: ws
model:
  region: eu-west-1
  timeout: 5s
convo:
  backend: SQLite
  db_path: ` + filepath.Join(dir, "ctx.db") + `
status:
  listen: ""
`
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorldURL() != "ws://mc.example:25565/ws" {
		t.Fatalf("WorldURL: %q", cfg.WorldURL())
	}
	if cfg.Model.Endpoint != "https://bedrock-runtime.eu-west-1.amazonaws.com" {
		t.Fatalf("endpoint: %q", cfg.Model.Endpoint)
	}
	if cfg.Model.Timeout != 5*time.Second {
		t.Fatalf("timeout: %v", cfg.Model.Timeout)
	}
	if cfg.Convo.Backend != "sqlite" {
		t.Fatalf("backend: %q", cfg.Convo.Backend)
	}
	if cfg.Status.Listen != "" {
		t.Fatalf("status listen should be disabled, got %q", cfg.Status.Listen)
	}
	// Untouched sections keep defaults.
	if cfg.World.Username != "pilot" || cfg.Model.MaxOutputTokens != 500 {
		t.Fatalf("defaults lost: %+v %+v", cfg.World, cfg.Model)
	}
}

func TestLoadLeavesValidationToCaller(t *testing.T) {
	p := filepath.Join(t.TempDir(), "pilot.yaml")
	body := "world:\n  port: 0\n  username: \"\"\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error before overrides")
	}

	// Command line flags fill in what the file left invalid.
	cfg.World.Port = 25565
	cfg.World.Username = "builder"
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate after overrides: %v", err)
	}
	if got := cfg.WorldURL(); got != "ws://localhost:25565/v1/ws" {
		t.Fatalf("WorldURL: %q", got)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"port":        func(c *Config) { c.World.Port = 0 },
		"username":    func(c *Config) { c.World.Username = "" },
		"backend":     func(c *Config) { c.Convo.Backend = "redis" },
		"temperature": func(c *Config) { c.Model.Temperature = 2 },
		"audit dir":   func(c *Config) { c.Audit.Dir = "" },
	}
	for name, mut := range cases {
		cfg := Defaults()
		mut(&cfg)
		cfg.Normalize()
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadEnv(t *testing.T) {
	p := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(p, []byte("VOXELPILOT_TEST_KEY=abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VOXELPILOT_TEST_KEY", "")
	os.Unsetenv("VOXELPILOT_TEST_KEY")
	if err := LoadEnv(p); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("VOXELPILOT_TEST_KEY"); got != "abc" {
		t.Fatalf("env not loaded: %q", got)
	}
	if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatalf("expected error for explicit missing file")
	}
}
