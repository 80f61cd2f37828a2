// Package hierarchy defines the static layer topology of the build
// orchestrator: which supervisor/worker layers exist, their concurrency and
// timeout budgets, and the policy for escalating failures upward. Everything
// above this package consumes it; it depends on nothing but config plumbing.
package hierarchy

// Layer levels, from intent parsing down to sandboxed tool execution.
const (
	LevelIntent    = 0 // L0: intent parsing
	LevelPlanning  = 1 // L1: planning supervisors
	LevelExecution = 2 // L2: execution agents
	LevelTool      = 3 // L3: sandboxed tools

	MinLevel = LevelIntent
	MaxLevel = LevelTool
)

// EscalationPolicyType selects how failures are escalated to a supervisor.
type EscalationPolicyType string

const (
	EscalationAuto           EscalationPolicyType = "auto"
	EscalationManual         EscalationPolicyType = "manual"
	EscalationThresholdBased EscalationPolicyType = "threshold-based"
)

// ObservabilityLevel controls how much the orchestrator reports per layer.
type ObservabilityLevel string

const (
	ObservabilityMinimal  ObservabilityLevel = "minimal"
	ObservabilityStandard ObservabilityLevel = "standard"
	ObservabilityVerbose  ObservabilityLevel = "verbose"
)

// EscalationTrigger names a condition that may auto-escalate a failure.
type EscalationTrigger string

const (
	TriggerTimeout       EscalationTrigger = "timeout"
	TriggerFailure       EscalationTrigger = "failure"
	TriggerLowConfidence EscalationTrigger = "low-confidence"
	TriggerQualityGate   EscalationTrigger = "quality-gate"
)

// LayerConfig describes one level of the supervisor/worker hierarchy.
type LayerConfig struct {
	Level           int      `yaml:"level"`
	SupervisorAgent string   `yaml:"supervisor_agent"`
	Workers         []string `yaml:"workers"`
	MaxConcurrency  int      `yaml:"max_concurrency"`
	TimeoutMs       int      `yaml:"timeout_ms"`
	MaxRetries      int      `yaml:"max_retries"`
}

// EscalationThresholds hold the numeric limits for threshold-based escalation.
type EscalationThresholds struct {
	MaxRetriesPerLayer   int     `yaml:"max_retries_per_layer"`
	ConfidenceThreshold  float64 `yaml:"confidence_threshold"`
	SuccessRateThreshold float64 `yaml:"success_rate_threshold"`
}

// EscalationRules bundle the thresholds with the auto-escalation triggers.
type EscalationRules struct {
	Thresholds     EscalationThresholds `yaml:"thresholds"`
	AutoEscalateOn []EscalationTrigger  `yaml:"auto_escalate_on"`
}

// Config is the full layer topology plus escalation policy.
type Config struct {
	Enabled          bool                 `yaml:"enabled"`
	Layers           []LayerConfig        `yaml:"layers"`
	EscalationPolicy EscalationPolicyType `yaml:"escalation_policy"`
	Escalation       EscalationRules      `yaml:"escalation"`

	DefaultMaxRetries int `yaml:"default_max_retries"`
	GlobalTimeoutMs   int `yaml:"global_timeout_ms"`

	// BackwardCompatibilityMode collapses the hierarchy to the legacy single
	// execution layer: only level 2 is active, everything else is inert.
	BackwardCompatibilityMode bool `yaml:"backward_compatibility_mode"`

	ObservabilityLevel ObservabilityLevel `yaml:"observability_level"`
}

// Layer returns the layer config for the given level.
func Layer(cfg *Config, level int) (*LayerConfig, bool) {
	for i := range cfg.Layers {
		if cfg.Layers[i].Level == level {
			return &cfg.Layers[i], true
		}
	}
	return nil, false
}

// IsLayerEnabled reports whether a level participates in routing.
// In backward-compatibility mode only level 2 is ever enabled, regardless of
// the layers array; this is the deliberate legacy escape hatch.
func IsLayerEnabled(cfg *Config, level int) bool {
	if cfg.BackwardCompatibilityMode {
		return level == LevelExecution
	}
	if !cfg.Enabled {
		return false
	}
	_, ok := Layer(cfg, level)
	return ok
}

// ShouldUseFlatMode reports whether callers must bypass layer routing and
// drive every task through a single flat executor.
func ShouldUseFlatMode(cfg *Config) bool {
	return cfg.BackwardCompatibilityMode || !cfg.Enabled
}

// validTriggers is the fixed escalation trigger vocabulary.
var validTriggers = map[EscalationTrigger]bool{
	TriggerTimeout:       true,
	TriggerFailure:       true,
	TriggerLowConfidence: true,
	TriggerQualityGate:   true,
}

// ShouldAutoEscalate reports whether the configured policy escalates on the
// given trigger. Manual policy never auto-escalates.
func ShouldAutoEscalate(cfg *Config, trigger EscalationTrigger) bool {
	switch cfg.EscalationPolicy {
	case EscalationManual:
		return false
	case EscalationAuto:
		return true
	case EscalationThresholdBased:
		for _, t := range cfg.Escalation.AutoEscalateOn {
			if t == trigger {
				return true
			}
		}
	}
	return false
}
