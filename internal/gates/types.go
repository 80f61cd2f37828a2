// Package gates validates every produced response against an ordered
// pipeline: mandatory per-agent hard limits first, then the configured gates.
// Gate failures are reported, never thrown; the one hard stop is a SEVERE
// hard-limit violation, which short-circuits the rest of the pipeline.
package gates

import (
	"fmt"
	"strings"
)

// Well-known gate names.
const (
	GateResponseValidation = "response-validation"
	GateMercuryValidator   = "mercury-validator"
	GateAll                = "all" // Synthetic gate when gating is disabled

	hardLimitPrefix = "hard-limit:"
)

// Severity of a hard-limit violation.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeveritySevere  Severity = "severe"
)

// GateResult is the outcome of one gate.
type GateResult struct {
	Gate    string `json:"gate"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// IsHardLimit reports whether this result came from a hard-limit check.
func (r GateResult) IsHardLimit() bool {
	return strings.HasPrefix(r.Gate, hardLimitPrefix)
}

// HardLimits are an agent's mandatory structural requirements on produced
// output, enforced before any configurable gate.
type HardLimits struct {
	// RequiredSections are headings that must appear verbatim (e.g.
	// "## Fields").
	RequiredSections []string `yaml:"required_sections"`
	// RequiredKeywords must appear somewhere in the response.
	RequiredKeywords []string `yaml:"required_keywords"`
	// Severity of a violation. SeveritySevere aborts the rest of the
	// pipeline.
	Severity Severity `yaml:"severity"`
}

// AgentPolicy holds the per-agent gate configuration.
type AgentPolicy struct {
	HardLimits *HardLimits `yaml:"hard_limits,omitempty"`
	// ValidationKeywords drive the keyword fallback when the LLM validator
	// is unavailable.
	ValidationKeywords []string `yaml:"validation_keywords,omitempty"`
}

// Task identifies what produced the response being gated.
type Task struct {
	AgentName   string
	Description string
}

// AllGatesPassed reports whether every result passed.
// Vacuously true for an empty list.
func AllGatesPassed(results []GateResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// GatesSummary renders human-readable pass/fail counts plus the names of the
// failed gates.
func GatesSummary(results []GateResult) string {
	passed := 0
	var failed []string
	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed = append(failed, r.Gate)
		}
	}
	if len(failed) == 0 {
		return fmt.Sprintf("%d/%d gates passed", passed, len(results))
	}
	return fmt.Sprintf("%d/%d gates passed; failed: %s", passed, len(results), strings.Join(failed, ", "))
}
