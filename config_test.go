package zscript

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigTOML(t *testing.T) {
	path := writeFile(t, "engine.toml", `
instruction_limit = 5000
max_frames = 64
global_declarations = false

[log]
verbosity = 2
path = "zscript.log"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.InstructionLimit != 5000 || cfg.MaxFrames != 64 || cfg.GlobalDeclarations {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Log.Verbosity != 2 || cfg.Log.Path != "zscript.log" {
		t.Fatalf("unexpected log config %+v", cfg.Log)
	}
	if cfg.MaxStack != DefaultConfig().MaxStack {
		t.Fatalf("unset keys should keep defaults, got %d", cfg.MaxStack)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeFile(t, "engine.yaml", `
max_delegate_depth: 16
max_stack: 4096
log:
  verbosity: 1
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxDelegateDepth != 16 || cfg.MaxStack != 4096 || cfg.Log.Verbosity != 1 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.GlobalDeclarations {
		t.Fatalf("global declarations default to on")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"shallow delegates", "a.toml", "max_delegate_depth = 2\n"},
		{"negative limit", "b.yml", "instruction_limit: -1\n"},
		{"unknown format", "c.json", "{}"},
		{"bad toml", "d.toml", "max_frames = \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, tt.file, tt.body))
			if !IsError(err, ErrInvalidConfig) {
				t.Fatalf("expected invalid config error, got %v", err)
			}
		})
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); !IsError(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid config error for a missing file, got %v", err)
	}
}

func TestNewEngineValidates(t *testing.T) {
	if _, err := NewEngine(Config{MaxDelegateDepth: 3}); !IsError(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid config error, got %v", err)
	}
	e, err := NewEngine(Config{})
	if err != nil {
		t.Fatalf("zero config should be valid: %v", err)
	}
	if e.ID() == "" {
		t.Fatalf("engine should have an id")
	}
}
