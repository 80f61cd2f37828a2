package hierarchy

import (
	"fmt"

	"forgeloop/internal/logging"
)

// ValidationResult accumulates every problem found in a config.
// Validation never fails fast: callers get the complete error list.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

func (r *ValidationResult) addf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Validate checks a hierarchy config against the topology rules:
// levels must be exactly {0,1,2,3} with no duplicates, each layer needs a
// supervisor and at least one worker with positive budgets, and the policy
// literals must come from their fixed vocabularies.
func Validate(cfg *Config) ValidationResult {
	var result ValidationResult

	seen := make(map[int]int)
	for _, layer := range cfg.Layers {
		seen[layer.Level]++

		if layer.Level < MinLevel || layer.Level > MaxLevel {
			result.addf("invalid layer level: %d (must be %d-%d)", layer.Level, MinLevel, MaxLevel)
		}
		if layer.SupervisorAgent == "" {
			result.addf("layer %d: supervisor agent is required", layer.Level)
		}
		if len(layer.Workers) == 0 {
			result.addf("layer %d: at least one worker is required", layer.Level)
		}
		if layer.MaxConcurrency <= 0 {
			result.addf("layer %d: max concurrency must be positive", layer.Level)
		}
		if layer.TimeoutMs <= 0 {
			result.addf("layer %d: timeout must be positive", layer.Level)
		}
	}

	duplicates := false
	for _, count := range seen {
		if count > 1 {
			duplicates = true
		}
	}
	if duplicates {
		result.addf("duplicate layer levels detected")
	}
	for level := MinLevel; level <= MaxLevel; level++ {
		if seen[level] == 0 {
			result.addf("missing layer level: %d", level)
		}
	}

	switch cfg.EscalationPolicy {
	case EscalationAuto, EscalationManual, EscalationThresholdBased:
	default:
		result.addf("invalid escalation policy: %q", cfg.EscalationPolicy)
	}

	switch cfg.ObservabilityLevel {
	case ObservabilityMinimal, ObservabilityStandard, ObservabilityVerbose:
	default:
		result.addf("invalid observability level: %q", cfg.ObservabilityLevel)
	}

	if cfg.GlobalTimeoutMs <= 0 {
		result.addf("global timeout must be positive")
	}
	if cfg.DefaultMaxRetries < 0 {
		result.addf("default max retries must be non-negative")
	}

	if cfg.Escalation.Thresholds.MaxRetriesPerLayer < 0 {
		result.addf("escalation threshold max_retries_per_layer must be non-negative")
	}
	if cfg.Escalation.Thresholds.ConfidenceThreshold < 0 {
		result.addf("escalation threshold confidence_threshold must be non-negative")
	}
	if cfg.Escalation.Thresholds.SuccessRateThreshold < 0 {
		result.addf("escalation threshold success_rate_threshold must be non-negative")
	}
	for _, trigger := range cfg.Escalation.AutoEscalateOn {
		if !validTriggers[trigger] {
			result.addf("unknown escalation trigger: %q", trigger)
		}
	}

	result.Valid = len(result.Errors) == 0
	if !result.Valid {
		logging.HierarchyWarn("config validation failed with %d errors", len(result.Errors))
	}
	return result
}
