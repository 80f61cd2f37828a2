package gates

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"forgeloop/internal/llm"
	"forgeloop/internal/logging"
)

// Config holds the gate pipeline configuration.
type Config struct {
	// Enabled controls the configured gates. Hard limits run regardless:
	// they are a mandatory floor, not an optional gate.
	Enabled bool `yaml:"enabled"`
	// Gates run in this exact order, stopping at the first failure.
	Gates []string `yaml:"gates"`
	// MinResponseLength below which a response fails response-validation.
	MinResponseLength int `yaml:"min_response_length"`
	// Agents maps agent name to its gate policy.
	Agents map[string]AgentPolicy `yaml:"agents"`
}

// DefaultConfig enables the standard two-gate pipeline.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		Gates:             []string{GateResponseValidation, GateMercuryValidator},
		MinResponseLength: 50,
	}
}

// Runner evaluates the gate pipeline for task/response pairs.
type Runner struct {
	cfg    Config
	caller llm.Caller
}

// NewRunner creates a runner. The LLM caller may be nil, in which case the
// mercury validator always takes its keyword fallback path.
func NewRunner(cfg Config, caller llm.Caller) *Runner {
	if cfg.MinResponseLength <= 0 {
		cfg.MinResponseLength = DefaultConfig().MinResponseLength
	}
	return &Runner{cfg: cfg, caller: caller}
}

// errorLikePattern flags short responses that look like error dumps. Long
// content containing error words still passes: only short content is
// penalized for looking like an error.
var errorLikePattern = regexp.MustCompile(`(?i)\b(error|exception|failed|traceback|panic)\b`)

// RunGates evaluates the ordered pipeline for one task/response pair.
// Hard limits always run first; a SEVERE hard-limit failure returns
// immediately with only the hard-limit results. Configured gates then run in
// order, stopping at the first failure.
func (r *Runner) RunGates(ctx context.Context, task Task, response string) []GateResult {
	results := r.runHardLimits(task, response)

	if severe, failed := r.hardLimitVerdict(task, results); failed && severe {
		logging.GatesWarn("agent %s: severe hard-limit failure, skipping configured gates", task.AgentName)
		return results
	}

	if !r.cfg.Enabled {
		results = append(results, GateResult{
			Gate:    GateAll,
			Passed:  true,
			Message: "gating disabled",
		})
		return results
	}

	for _, gate := range r.cfg.Gates {
		result := r.runGate(ctx, gate, task, response)
		results = append(results, result)
		if !result.Passed {
			logging.Gates("agent %s: gate %s failed: %s", task.AgentName, result.Gate, result.Message)
			break
		}
	}
	return results
}

// runHardLimits checks the agent's required sections and keywords. Agents
// with no hard limits configured produce zero hard-limit results.
func (r *Runner) runHardLimits(task Task, response string) []GateResult {
	policy, ok := r.cfg.Agents[task.AgentName]
	if !ok || policy.HardLimits == nil {
		return nil
	}

	var results []GateResult
	for _, section := range policy.HardLimits.RequiredSections {
		if !strings.Contains(response, section) {
			results = append(results, GateResult{
				Gate:    hardLimitPrefix + section,
				Passed:  false,
				Message: fmt.Sprintf("missing required section %q", section),
			})
		}
	}
	for _, keyword := range policy.HardLimits.RequiredKeywords {
		if !strings.Contains(response, keyword) {
			results = append(results, GateResult{
				Gate:    hardLimitPrefix + keyword,
				Passed:  false,
				Message: fmt.Sprintf("missing required keyword %q", keyword),
			})
		}
	}
	return results
}

func (r *Runner) hardLimitVerdict(task Task, results []GateResult) (severe, failed bool) {
	for _, result := range results {
		if result.IsHardLimit() && !result.Passed {
			failed = true
		}
	}
	if !failed {
		return false, false
	}
	policy := r.cfg.Agents[task.AgentName]
	if policy.HardLimits != nil && policy.HardLimits.Severity == SeveritySevere {
		severe = true
	}
	return severe, failed
}

// runGate dispatches one configured gate by name. Unknown gate names pass by
// default: they are not configuration errors.
func (r *Runner) runGate(ctx context.Context, gate string, task Task, response string) GateResult {
	switch gate {
	case GateResponseValidation:
		return r.runResponseValidation(response)
	case GateMercuryValidator:
		return r.runMercuryValidator(ctx, task, response)
	default:
		return GateResult{
			Gate:    gate,
			Passed:  true,
			Message: fmt.Sprintf("unknown gate %q, passing by default", gate),
		}
	}
}

// runResponseValidation rejects empty, too-short, and short error-looking
// content.
func (r *Runner) runResponseValidation(response string) GateResult {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return GateResult{Gate: GateResponseValidation, Passed: false, Message: "empty response"}
	}
	if len(trimmed) < r.cfg.MinResponseLength {
		if errorLikePattern.MatchString(trimmed) {
			return GateResult{
				Gate:    GateResponseValidation,
				Passed:  false,
				Message: "response looks like an error message",
			}
		}
		return GateResult{
			Gate:    GateResponseValidation,
			Passed:  false,
			Message: fmt.Sprintf("response too short (%d < %d chars)", len(trimmed), r.cfg.MinResponseLength),
		}
	}
	return GateResult{Gate: GateResponseValidation, Passed: true, Message: "response validated"}
}

// runMercuryValidator asks the LLM for a PASS/FAIL verdict. Any LLM error
// falls back to a per-agent keyword-presence check; the fallback's message is
// marked so callers can distinguish the two paths.
func (r *Runner) runMercuryValidator(ctx context.Context, task Task, response string) GateResult {
	if r.caller != nil {
		verdict, err := r.caller.Call(ctx, mercuryPrompt(task, response))
		if err == nil {
			return parseMercuryVerdict(verdict)
		}
		logging.GatesWarn("mercury validator LLM call failed: %v (falling back to keywords)", err)
	}
	return r.keywordFallback(task, response)
}

func mercuryPrompt(task Task, response string) string {
	return fmt.Sprintf(`You are a strict output validator for a build orchestrator.

## Task
%s

## Response to Validate
%s

Did the response properly address the task? Answer on a single line starting
with PASS or FAIL, followed by a colon and a one-sentence reason.`,
		task.Description, truncate(response, 8000))
}

// parseMercuryVerdict maps the LLM's reply onto a gate result: passed iff
// the verdict starts with PASS, message carries the reason.
func parseMercuryVerdict(verdict string) GateResult {
	trimmed := strings.TrimSpace(verdict)
	passed := strings.HasPrefix(strings.ToUpper(trimmed), "PASS")

	message := trimmed
	if idx := strings.Index(trimmed, ":"); idx >= 0 && idx+1 < len(trimmed) {
		message = strings.TrimSpace(trimmed[idx+1:])
	}
	return GateResult{Gate: GateMercuryValidator, Passed: passed, Message: message}
}

// keywordFallback checks that the agent's validation keywords all appear in
// the response. The message always contains the word "fallback" so callers
// can tell this verdict was not LLM-backed.
func (r *Runner) keywordFallback(task Task, response string) GateResult {
	policy := r.cfg.Agents[task.AgentName]
	if len(policy.ValidationKeywords) == 0 {
		return GateResult{
			Gate:    GateMercuryValidator,
			Passed:  true,
			Message: "keyword fallback: no validation keywords configured",
		}
	}

	lower := strings.ToLower(response)
	var missing []string
	for _, kw := range policy.ValidationKeywords {
		if !strings.Contains(lower, strings.ToLower(kw)) {
			missing = append(missing, kw)
		}
	}
	if len(missing) > 0 {
		return GateResult{
			Gate:    GateMercuryValidator,
			Passed:  false,
			Message: fmt.Sprintf("keyword fallback: missing %s", strings.Join(missing, ", ")),
		}
	}
	return GateResult{
		Gate:    GateMercuryValidator,
		Passed:  true,
		Message: "keyword fallback: all validation keywords present",
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "\n... [truncated]"
}
