package zscript

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/xirelogy/go-zscript/internal/errs"
	"github.com/xirelogy/go-zscript/internal/vm"
)

// LogConfig selects commonlog verbosity and an optional log file.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" yaml:"verbosity"`
	Path      string `toml:"path" yaml:"path"`
}

// Config bounds an Engine. Zero limits select the VM defaults.
type Config struct {
	// InstructionLimit caps instructions per top-level call (0 for unlimited).
	InstructionLimit int `toml:"instruction_limit" yaml:"instruction_limit"`
	MaxFrames        int `toml:"max_frames" yaml:"max_frames"`
	MaxStack         int `toml:"max_stack" yaml:"max_stack"`
	MaxDelegateDepth int `toml:"max_delegate_depth" yaml:"max_delegate_depth"`
	// GlobalDeclarations stores top-level declarations in the root table so later
	// loads and host calls can see them.
	GlobalDeclarations bool `toml:"global_declarations" yaml:"global_declarations"`

	Log LogConfig `toml:"log" yaml:"log"`
}

// DefaultConfig is the configuration used by the CLI when no file is given.
func DefaultConfig() Config {
	return Config{
		MaxFrames:          vm.DefaultMaxFrames,
		MaxStack:           vm.DefaultMaxStack,
		MaxDelegateDepth:   vm.DefaultMaxDelegateDepth,
		GlobalDeclarations: true,
	}
}

// LoadConfig reads a TOML (.toml) or YAML (.yaml, .yml) file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errs.InvalidConfig.Wrap(err, "config %s", path)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, errs.InvalidConfig.Wrap(err, "config %s", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errs.InvalidConfig.Wrap(err, "config %s", path)
		}
	default:
		return cfg, errs.InvalidConfig.New("config %s: unsupported format %q", path, ext)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errs.InvalidConfig.Wrap(err, "config %s", path)
	}
	return cfg, nil
}

// Validate rejects negative limits and delegate depths below the VM minimum.
func (c Config) Validate() error {
	if c.InstructionLimit < 0 {
		return errs.InvalidConfig.New("instruction_limit must not be negative")
	}
	if c.MaxFrames < 0 {
		return errs.InvalidConfig.New("max_frames must not be negative")
	}
	if c.MaxStack < 0 {
		return errs.InvalidConfig.New("max_stack must not be negative")
	}
	if c.MaxDelegateDepth != 0 && c.MaxDelegateDepth < vm.MinDelegateDepth {
		return errs.InvalidConfig.New("max_delegate_depth must be at least %d", vm.MinDelegateDepth)
	}
	return nil
}

func (c Config) vmConfig() vm.Config {
	return vm.Config{
		InstructionLimit: c.InstructionLimit,
		MaxFrames:        c.MaxFrames,
		MaxStack:         c.MaxStack,
		MaxDelegateDepth: c.MaxDelegateDepth,
	}
}
