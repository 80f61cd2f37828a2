package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"forgeloop/internal/logging"
)

// Config holds the sandbox policy and retry budgets.
type Config struct {
	// AllowList restricts execution to the listed tools. Empty means
	// "allow everything not blocked".
	AllowList []string `yaml:"allow_list"`
	// BlockList always wins over the allow list.
	BlockList []string `yaml:"block_list"`

	DefaultTimeoutMs  int `yaml:"default_timeout_ms"`
	MaxBackoffRetries int `yaml:"max_backoff_retries"`
	InitialBackoffMs  int `yaml:"initial_backoff_ms"`
	MaxBackoffMs      int `yaml:"max_backoff_ms"`
}

// DefaultConfig returns the stock sandbox budgets.
func DefaultConfig() Config {
	return Config{
		DefaultTimeoutMs:  30000,
		MaxBackoffRetries: 3,
		InitialBackoffMs:  500,
		MaxBackoffMs:      8000,
	}
}

// Sandbox executes tool requests under policy, retry, and timeout control.
// It tracks active executions for diagnostics; callers are responsible for
// respecting the layer's concurrency budget when issuing requests.
type Sandbox struct {
	mu       sync.RWMutex
	cfg      Config
	executor ToolExecutor
	active   map[string]*Execution
}

// New creates a sandbox around the given backend, applying default budgets
// for zero config values.
func New(cfg Config, executor ToolExecutor) *Sandbox {
	def := DefaultConfig()
	if cfg.DefaultTimeoutMs <= 0 {
		cfg.DefaultTimeoutMs = def.DefaultTimeoutMs
	}
	if cfg.MaxBackoffRetries <= 0 {
		cfg.MaxBackoffRetries = def.MaxBackoffRetries
	}
	if cfg.InitialBackoffMs <= 0 {
		cfg.InitialBackoffMs = def.InitialBackoffMs
	}
	if cfg.MaxBackoffMs <= 0 {
		cfg.MaxBackoffMs = def.MaxBackoffMs
	}
	return &Sandbox{
		cfg:      cfg,
		executor: executor,
		active:   map[string]*Execution{},
	}
}

// IsToolAllowed applies the sandbox policy: the block list always wins, and
// an empty allow list means everything not blocked is allowed.
func (s *Sandbox) IsToolAllowed(name string) bool {
	for _, blocked := range s.cfg.BlockList {
		if blocked == name {
			return false
		}
	}
	if len(s.cfg.AllowList) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowList {
		if allowed == name {
			return true
		}
	}
	return false
}

// Execute runs one tool request through the policy check and retry loop.
// It always returns a non-nil result; failures are structured, not thrown.
func (s *Sandbox) Execute(ctx context.Context, req ToolRequest) *ToolResult {
	exec := &Execution{
		ID:      uuid.NewString(),
		Request: req,
		Status:  StatusPending,
	}
	s.track(exec)

	if req.ToolName == "" || !s.IsToolAllowed(req.ToolName) {
		result := &ToolResult{
			Success:  false,
			ExitCode: ExitPolicyRejected,
			Output:   fmt.Sprintf("tool %q is not permitted by sandbox policy", req.ToolName),
		}
		s.finish(exec, StatusFailed, result)
		logging.SandboxWarn("rejected tool %q by policy", req.ToolName)
		return result
	}

	s.setStatus(exec, StatusRunning)

	var lastResult *ToolResult
	var lastErr error
	start := time.Now()

	for attempt := 0; attempt < s.cfg.MaxBackoffRetries; attempt++ {
		if attempt > 0 {
			exec.RetryCount++
			if !s.sleepBackoff(ctx, attempt-1) {
				break
			}
		}

		result, err := s.runAttempt(ctx, req)
		if err != nil {
			// Thrown failures (including timeouts) are always retryable.
			lastErr = err
			logging.SandboxDebug("tool %s attempt %d errored: %v", req.ToolName, attempt, err)
			continue
		}

		result.ExecutionTimeMs = time.Since(start).Milliseconds()
		lastResult = result

		if result.Success {
			s.finish(exec, StatusCompleted, result)
			logging.SandboxDebug("tool %s completed in %dms (retries=%d)",
				req.ToolName, result.ExecutionTimeMs, exec.RetryCount)
			return result
		}
		if !isRetryableExitCode(result.ExitCode) {
			// Structured non-retryable failure: return as-is.
			s.finish(exec, StatusFailed, result)
			return result
		}
		logging.SandboxDebug("tool %s attempt %d failed with retryable exit %d",
			req.ToolName, attempt, result.ExitCode)
	}

	if lastResult == nil {
		lastResult = &ToolResult{
			Success:         false,
			ExitCode:        ExitInternalError,
			Output:          fmt.Sprintf("all attempts failed: %v", lastErr),
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}
	}
	s.finish(exec, StatusFailed, lastResult)
	logging.SandboxWarn("tool %s exhausted %d attempts", req.ToolName, s.cfg.MaxBackoffRetries)
	return lastResult
}

// runAttempt races one backend call against the request timeout. The loser's
// eventual resolution is dropped on the floor: the result channel is buffered
// so the backend goroutine never leaks, and its late result is ignored.
func (s *Sandbox) runAttempt(parent context.Context, req ToolRequest) (*ToolResult, error) {
	timeoutMs := req.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = s.cfg.DefaultTimeoutMs
	}
	ctx, cancel := context.WithTimeout(parent, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	type outcome struct {
		result *ToolResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := s.executor.Run(ctx, req)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		if o.result == nil {
			return nil, fmt.Errorf("executor returned no result for %s", req.ToolName)
		}
		return o.result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("tool %s timed out after %dms: %w", req.ToolName, timeoutMs, ctx.Err())
	}
}

// ExecuteSequence runs requests strictly in order, stopping at the first
// non-successful result. The returned slice covers only the requests that
// actually ran.
func (s *Sandbox) ExecuteSequence(ctx context.Context, reqs []ToolRequest) []*ToolResult {
	results := make([]*ToolResult, 0, len(reqs))
	for _, req := range reqs {
		result := s.Execute(ctx, req)
		results = append(results, result)
		if !result.Success {
			logging.Sandbox("sequence stopped at %s (%d of %d ran)", req.ToolName, len(results), len(reqs))
			break
		}
	}
	return results
}

// CalculateBackoff returns the delay before the given retry attempt:
// min(initial * 2^attempt, max) plus a random jitter of up to 30% of the
// capped exponential delay. The exponential component is monotonically
// non-decreasing and the total never exceeds max * 1.3.
func (s *Sandbox) CalculateBackoff(attempt int) time.Duration {
	initial := time.Duration(s.cfg.InitialBackoffMs) * time.Millisecond
	max := time.Duration(s.cfg.MaxBackoffMs) * time.Millisecond

	// Cap the shift so the exponential cannot overflow before clamping.
	if attempt > 30 {
		attempt = 30
	}
	delay := initial << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}

	jitter := time.Duration(rand.Int63n(int64(delay)*3/10 + 1))
	return delay + jitter
}

// sleepBackoff waits out the backoff delay, returning false if the context
// was cancelled first.
func (s *Sandbox) sleepBackoff(ctx context.Context, attempt int) bool {
	delay := s.CalculateBackoff(attempt)
	logging.SandboxDebug("backing off %v before retry %d", delay, attempt+1)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// AbortExecution marks a tracked execution failed and removes it from the
// active set. This is bookkeeping only: it does not interrupt an in-flight
// attempt, which is the job of the per-attempt timeout.
func (s *Sandbox) AbortExecution(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.active[id]
	if !ok {
		return false
	}
	exec.Status = StatusFailed
	delete(s.active, id)
	logging.Sandbox("aborted execution %s", id)
	return true
}

// ActiveExecutions returns a snapshot of the in-flight executions.
func (s *Sandbox) ActiveExecutions() []Execution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Execution, 0, len(s.active))
	for _, exec := range s.active {
		out = append(out, *exec)
	}
	return out
}

func (s *Sandbox) track(exec *Execution) {
	s.mu.Lock()
	s.active[exec.ID] = exec
	s.mu.Unlock()
}

func (s *Sandbox) setStatus(exec *Execution, status Status) {
	s.mu.Lock()
	exec.Status = status
	s.mu.Unlock()
}

// finish records the terminal status and removes the execution from the
// active set. Executions are per-request state, discarded after use.
func (s *Sandbox) finish(exec *Execution, status Status, result *ToolResult) {
	s.mu.Lock()
	exec.Status = status
	exec.Result = result
	delete(s.active, exec.ID)
	s.mu.Unlock()
}
