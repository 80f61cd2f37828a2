package hierarchy

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"forgeloop/internal/logging"
)

// DefaultConfig returns the stock four-layer topology.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Layers: []LayerConfig{
			{
				Level:           LevelIntent,
				SupervisorAgent: "intent-director",
				Workers:         []string{"intent-parser"},
				MaxConcurrency:  1,
				TimeoutMs:       15000,
				MaxRetries:      1,
			},
			{
				Level:           LevelPlanning,
				SupervisorAgent: "planning-lead",
				Workers:         []string{"planner", "decomposer"},
				MaxConcurrency:  2,
				TimeoutMs:       60000,
				MaxRetries:      2,
			},
			{
				Level:           LevelExecution,
				SupervisorAgent: "execution-lead",
				Workers:         []string{"coder", "tester", "reviewer"},
				MaxConcurrency:  4,
				TimeoutMs:       300000,
				MaxRetries:      3,
			},
			{
				Level:           LevelTool,
				SupervisorAgent: "tool-marshal",
				Workers:         []string{"sandbox"},
				MaxConcurrency:  8,
				TimeoutMs:       30000,
				MaxRetries:      3,
			},
		},
		EscalationPolicy: EscalationThresholdBased,
		Escalation: EscalationRules{
			Thresholds: EscalationThresholds{
				MaxRetriesPerLayer:   3,
				ConfidenceThreshold:  0.7,
				SuccessRateThreshold: 0.5,
			},
			AutoEscalateOn: []EscalationTrigger{TriggerTimeout, TriggerFailure},
		},
		DefaultMaxRetries:  3,
		GlobalTimeoutMs:    600000,
		ObservabilityLevel: ObservabilityStandard,
	}
}

// Merge applies a user config over the defaults. Zero-valued user fields keep
// their defaults; a non-empty layer list replaces the default topology
// wholesale rather than merging per level.
func Merge(user *Config) *Config {
	cfg := DefaultConfig()
	if user == nil {
		return cfg
	}

	cfg.Enabled = user.Enabled
	cfg.BackwardCompatibilityMode = user.BackwardCompatibilityMode

	if len(user.Layers) > 0 {
		cfg.Layers = user.Layers
	}
	if user.EscalationPolicy != "" {
		cfg.EscalationPolicy = user.EscalationPolicy
	}
	if user.Escalation.Thresholds != (EscalationThresholds{}) {
		cfg.Escalation.Thresholds = user.Escalation.Thresholds
	}
	if len(user.Escalation.AutoEscalateOn) > 0 {
		cfg.Escalation.AutoEscalateOn = user.Escalation.AutoEscalateOn
	}
	if user.DefaultMaxRetries > 0 {
		cfg.DefaultMaxRetries = user.DefaultMaxRetries
	}
	if user.GlobalTimeoutMs > 0 {
		cfg.GlobalTimeoutMs = user.GlobalTimeoutMs
	}
	if user.ObservabilityLevel != "" {
		cfg.ObservabilityLevel = user.ObservabilityLevel
	}

	return cfg
}

// Load loads a hierarchy config from a YAML file, merged over defaults.
// A missing file yields the defaults. Environment overrides apply last.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.HierarchyDebug("no config at %s, using defaults", path)
			return applyEnvOverrides(DefaultConfig()), nil
		}
		return nil, fmt.Errorf("failed to read hierarchy config: %w", err)
	}

	// Unmarshal over the defaults so omitted fields keep their default values.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse hierarchy config: %w", err)
	}
	logging.Hierarchy("loaded hierarchy config from %s (%d layers, policy=%s)",
		path, len(cfg.Layers), cfg.EscalationPolicy)
	return applyEnvOverrides(cfg), nil
}

// applyEnvOverrides lets deployment environments override a few knobs without
// editing the config file.
func applyEnvOverrides(cfg *Config) *Config {
	if v := os.Getenv("FORGELOOP_COMPAT_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.BackwardCompatibilityMode = b
			logging.HierarchyDebug("env override: backward_compatibility_mode=%v", b)
		}
	}
	if v := os.Getenv("FORGELOOP_GLOBAL_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.GlobalTimeoutMs = ms
			logging.HierarchyDebug("env override: global_timeout_ms=%d", ms)
		}
	}
	if v := os.Getenv("FORGELOOP_OBSERVABILITY_LEVEL"); v != "" {
		cfg.ObservabilityLevel = ObservabilityLevel(v)
		logging.HierarchyDebug("env override: observability_level=%s", v)
	}
	return cfg
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal hierarchy config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write hierarchy config: %w", err)
	}
	return nil
}

// GlobalTimeout returns the global timeout as a duration.
func (c *Config) GlobalTimeout() time.Duration {
	return time.Duration(c.GlobalTimeoutMs) * time.Millisecond
}

// LayerTimeout returns the timeout for a level, falling back to the global
// timeout when the level is unknown.
func (c *Config) LayerTimeout(level int) time.Duration {
	if layer, ok := Layer(c, level); ok {
		return time.Duration(layer.TimeoutMs) * time.Millisecond
	}
	return c.GlobalTimeout()
}
