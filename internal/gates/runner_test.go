package gates

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"forgeloop/internal/llm"
)

const goodResponse = "Implemented the requested parser changes, updated the config plumbing, and verified the behavior with the existing table-driven tests."

func callerWith(verdict string, err error) llm.Caller {
	return llm.CallerFunc(func(ctx context.Context, prompt string) (string, error) {
		return verdict, err
	})
}

func TestRunGatesPipelineOrder(t *testing.T) {
	r := NewRunner(DefaultConfig(), callerWith("PASS: looks good", nil))
	results := r.RunGates(context.Background(), Task{AgentName: "coder"}, goodResponse)

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(results), results)
	}
	if results[0].Gate != GateResponseValidation || results[1].Gate != GateMercuryValidator {
		t.Errorf("gates ran out of order: %+v", results)
	}
	if !AllGatesPassed(results) {
		t.Errorf("expected all gates to pass: %+v", results)
	}
}

func TestRunGatesStopsAtFirstFailure(t *testing.T) {
	var llmCalls int32
	caller := llm.CallerFunc(func(ctx context.Context, prompt string) (string, error) {
		atomic.AddInt32(&llmCalls, 1)
		return "PASS", nil
	})
	r := NewRunner(DefaultConfig(), caller)

	results := r.RunGates(context.Background(), Task{AgentName: "coder"}, "too short")

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1: %+v", len(results), results)
	}
	if results[0].Passed {
		t.Error("short response must fail response-validation")
	}
	if atomic.LoadInt32(&llmCalls) != 0 {
		t.Error("later gates must not run after a failure")
	}
}

func TestRunGatesDisabledSyntheticAll(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	r := NewRunner(cfg, nil)

	results := r.RunGates(context.Background(), Task{AgentName: "coder"}, "")

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1: %+v", len(results), results)
	}
	if results[0].Gate != GateAll || !results[0].Passed {
		t.Errorf("disabled gating must yield a passing %q gate, got %+v", GateAll, results[0])
	}
}

func TestHardLimitsRunEvenWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	cfg.Agents = map[string]AgentPolicy{
		"architect": {
			HardLimits: &HardLimits{
				RequiredSections: []string{"## Design"},
				Severity:         SeverityWarning,
			},
		},
	}
	r := NewRunner(cfg, nil)

	results := r.RunGates(context.Background(), Task{AgentName: "architect"}, goodResponse)

	foundHardLimit := false
	for _, result := range results {
		if result.IsHardLimit() && !result.Passed {
			foundHardLimit = true
		}
	}
	if !foundHardLimit {
		t.Errorf("hard limits must run even with gating disabled: %+v", results)
	}
}

func TestSevereHardLimitShortCircuits(t *testing.T) {
	var llmCalls int32
	caller := llm.CallerFunc(func(ctx context.Context, prompt string) (string, error) {
		atomic.AddInt32(&llmCalls, 1)
		return "PASS", nil
	})

	cfg := DefaultConfig()
	cfg.Agents = map[string]AgentPolicy{
		"architect": {
			HardLimits: &HardLimits{
				RequiredSections: []string{"## Design", "## Risks"},
				RequiredKeywords: []string{"tradeoff"},
				Severity:         SeveritySevere,
			},
		},
	}
	r := NewRunner(cfg, caller)

	results := r.RunGates(context.Background(), Task{AgentName: "architect"}, goodResponse)

	if len(results) != 3 {
		t.Fatalf("got %d results, want only the 3 hard-limit failures: %+v", len(results), results)
	}
	for _, result := range results {
		if !result.IsHardLimit() {
			t.Errorf("severe failure must suppress configured gates, got %+v", result)
		}
		if result.Passed {
			t.Errorf("expected failure, got %+v", result)
		}
	}
	if atomic.LoadInt32(&llmCalls) != 0 {
		t.Error("severe hard-limit failure must never reach the LLM")
	}
}

func TestWarningHardLimitContinuesPipeline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agents = map[string]AgentPolicy{
		"coder": {
			HardLimits: &HardLimits{
				RequiredKeywords: []string{"benchmark"},
				Severity:         SeverityWarning,
			},
		},
	}
	r := NewRunner(cfg, callerWith("PASS: fine", nil))

	results := r.RunGates(context.Background(), Task{AgentName: "coder"}, goodResponse)

	// One hard-limit failure plus both configured gates.
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3: %+v", len(results), results)
	}
	if AllGatesPassed(results) {
		t.Error("the warning hard-limit failure must still be reported")
	}
}

func TestResponseValidation(t *testing.T) {
	r := NewRunner(DefaultConfig(), nil)

	tests := []struct {
		name     string
		response string
		passed   bool
		wantMsg  string
	}{
		{"empty", "   ", false, "empty response"},
		{"short error-like", "Error: connection refused", false, "looks like an error"},
		{"short", "did the thing", false, "too short"},
		{"long enough", goodResponse, true, ""},
		{"long with error words", goodResponse + " One test still logs a spurious error message.", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := r.runResponseValidation(tt.response)
			if result.Passed != tt.passed {
				t.Fatalf("passed = %v, want %v (%s)", result.Passed, tt.passed, result.Message)
			}
			if tt.wantMsg != "" && !strings.Contains(result.Message, tt.wantMsg) {
				t.Errorf("message %q does not contain %q", result.Message, tt.wantMsg)
			}
		})
	}
}

func TestMercuryValidatorVerdicts(t *testing.T) {
	tests := []struct {
		verdict string
		passed  bool
		message string
	}{
		{"PASS: addresses the task", true, "addresses the task"},
		{"pass: lower case works", true, "lower case works"},
		{"FAIL: ignored the second half", false, "ignored the second half"},
		{"The response is fine I guess", false, ""},
	}
	for _, tt := range tests {
		r := NewRunner(DefaultConfig(), callerWith(tt.verdict, nil))
		result := r.runMercuryValidator(context.Background(), Task{AgentName: "coder"}, goodResponse)
		if result.Passed != tt.passed {
			t.Errorf("verdict %q: passed = %v, want %v", tt.verdict, result.Passed, tt.passed)
		}
		if tt.message != "" && !strings.Contains(result.Message, tt.message) {
			t.Errorf("verdict %q: message %q missing %q", tt.verdict, result.Message, tt.message)
		}
	}
}

func TestMercuryValidatorFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agents = map[string]AgentPolicy{
		"coder": {ValidationKeywords: []string{"parser", "tests"}},
	}

	t.Run("llm error falls back", func(t *testing.T) {
		r := NewRunner(cfg, callerWith("", errors.New("rate limited")))
		result := r.runMercuryValidator(context.Background(), Task{AgentName: "coder"}, goodResponse)
		if !result.Passed {
			t.Errorf("all keywords present, expected pass: %+v", result)
		}
		if !strings.Contains(result.Message, "fallback") {
			t.Errorf("fallback verdict must be marked, got %q", result.Message)
		}
	})

	t.Run("nil caller falls back", func(t *testing.T) {
		r := NewRunner(cfg, nil)
		result := r.runMercuryValidator(context.Background(), Task{AgentName: "coder"}, "no keywords here at all")
		if result.Passed {
			t.Errorf("missing keywords, expected failure: %+v", result)
		}
		if !strings.Contains(result.Message, "fallback") {
			t.Errorf("fallback verdict must be marked, got %q", result.Message)
		}
	})

	t.Run("no keywords configured passes", func(t *testing.T) {
		r := NewRunner(DefaultConfig(), nil)
		result := r.runMercuryValidator(context.Background(), Task{AgentName: "unknown"}, goodResponse)
		if !result.Passed {
			t.Errorf("no configured keywords must pass: %+v", result)
		}
		if !strings.Contains(result.Message, "fallback") {
			t.Errorf("fallback verdict must be marked, got %q", result.Message)
		}
	})
}

func TestUnknownGatePassesByDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gates = []string{"future-gate"}
	r := NewRunner(cfg, nil)

	results := r.RunGates(context.Background(), Task{AgentName: "coder"}, goodResponse)
	if len(results) != 1 || !results[0].Passed {
		t.Errorf("unknown gate must pass by default: %+v", results)
	}
}

func TestAllGatesPassedVacuous(t *testing.T) {
	if !AllGatesPassed(nil) {
		t.Error("empty result list is vacuously passing")
	}
}

func TestGatesSummary(t *testing.T) {
	results := []GateResult{
		{Gate: GateResponseValidation, Passed: true},
		{Gate: GateMercuryValidator, Passed: false},
	}
	summary := GatesSummary(results)
	if !strings.Contains(summary, "1/2") || !strings.Contains(summary, GateMercuryValidator) {
		t.Errorf("unexpected summary: %q", summary)
	}
}
