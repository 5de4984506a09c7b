package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/undercity/undercity/pkg/models"
	"github.com/undercity/undercity/pkg/verify"
)

// yamlConfig is the on-disk shape of undercity.yaml: a single top-level
// struct unmarshaled straight off the env-expanded file, then merged
// onto the built-in defaults.
type yamlConfig struct {
	StateDir   string        `yaml:"state_dir"`
	StartTier  string        `yaml:"start_tier"`
	ListenAddr string        `yaml:"listen_addr"`
	Limits     *WorkerLimits `yaml:"limits"`
	Verify     *yamlVerify   `yaml:"verify"`
	Elevator   *ElevatorConfig `yaml:"elevator"`
	Notify     *NotifyConfig   `yaml:"notify"`
	Playbook   *PlaybookConfig `yaml:"playbook"`
	Retention  *RetentionConfig `yaml:"retention"`
	Masking    *MaskingConfig   `yaml:"masking"`
}

type yamlTool struct {
	Command  []string      `yaml:"command"`
	Timeout  time.Duration `yaml:"timeout"`
	Critical bool          `yaml:"critical"`
}

func (t yamlTool) toTool(name string) verify.Tool {
	return verify.Tool{Name: name, Command: t.Command, Timeout: t.Timeout, Critical: t.Critical}
}

type yamlVerify struct {
	Typecheck yamlTool `yaml:"typecheck"`
	Test      yamlTool `yaml:"test"`
	Lint      yamlTool `yaml:"lint"`
	Build     yamlTool `yaml:"build"`
	Spell     yamlTool `yaml:"spell"`
	Security  yamlTool `yaml:"security"`
}

func (v yamlVerify) toRegistry() verify.Registry {
	return verify.Registry{
		Typecheck: v.Typecheck.toTool("typecheck"),
		Test:      v.Test.toTool("test"),
		Lint:      v.Lint.toTool("lint"),
		Build:     v.Build.toTool("build"),
		Spell:     v.Spell.toTool("spell"),
		Security:  v.Security.toTool("security"),
	}
}

// Load reads <configDir>/.env (if present) followed by
// <configDir>/undercity.yaml, expands environment variables, merges the
// result onto the built-in defaults, validates, and returns a ready-to-use
// Config: load, then validate, then return.
func Load(configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)

	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		log.Warn("config: failed to load .env, continuing without it", "error", err)
	}

	yc, err := loadYAML(configDir)
	if err != nil {
		return nil, err
	}

	cfg := mergeConfig(yc)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	log.Info("config: loaded", "state_dir", cfg.stateDir, "start_tier", cfg.StartTier)
	return cfg, nil
}

func loadYAML(configDir string) (*yamlConfig, error) {
	path := filepath.Join(configDir, "undercity.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file is a valid deployment (pure defaults + flags).
			return &yamlConfig{}, nil
		}
		return nil, NewLoadError(path, err)
	}

	data = ExpandEnv(data)

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	return &yc, nil
}

// mergeConfig overlays a parsed yamlConfig onto the built-in defaults,
// field by field, so the user's config only needs to name the fields it
// overrides rather than pulling in a generic deep-merge dependency.
func mergeConfig(yc *yamlConfig) *Config {
	stateDir := DefaultStateDir
	if yc.StateDir != "" {
		stateDir = yc.StateDir
	}
	cfg := defaultConfig(stateDir)

	if yc.StartTier != "" {
		cfg.StartTier = models.ParseTier(yc.StartTier)
	}
	if yc.ListenAddr != "" {
		cfg.ListenAddr = yc.ListenAddr
	}
	if yc.Limits != nil {
		cfg.Limits = *yc.Limits
	}
	if yc.Verify != nil {
		cfg.Verify = yc.Verify.toRegistry()
	}
	if yc.Elevator != nil {
		cfg.Elevator = *yc.Elevator
	}
	if yc.Notify != nil {
		cfg.Notify = *yc.Notify
	}
	if yc.Playbook != nil {
		cfg.Playbook = *yc.Playbook
	}
	if yc.Retention != nil {
		cfg.Retention = *yc.Retention
	}
	if yc.Masking != nil {
		cfg.Masking = *yc.Masking
	}
	return cfg
}
