// Package sandbox implements the L3 tool layer: allow/block-listed tool
// execution with exponential backoff, jitter, and a per-attempt timeout race.
// The concrete tool backend is supplied by the caller through the
// ToolExecutor interface; this package owns policy, retry, and bookkeeping.
package sandbox

import (
	"context"
)

// Sentinel exit codes for policy and retry outcomes.
const (
	ExitPolicyRejected = 403 // Tool refused by allow/block list
	ExitInternalError  = 500 // Synthetic failure when every attempt errored
)

// ToolRequest is a request to run one tool.
type ToolRequest struct {
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args,omitempty"`
	// TimeoutMs overrides the sandbox default for this request when positive.
	TimeoutMs int `json:"timeout_ms,omitempty"`
}

// ResourceUsage summarizes what one tool run consumed.
type ResourceUsage struct {
	CPUTimeMs   int64 `json:"cpu_time_ms,omitempty"`
	MaxRSSKB    int64 `json:"max_rss_kb,omitempty"`
	OutputBytes int   `json:"output_bytes,omitempty"`
}

// ToolResult is the outcome of one tool run.
type ToolResult struct {
	Success         bool          `json:"success"`
	Output          string        `json:"output,omitempty"`
	ExitCode        int           `json:"exit_code,omitempty"`
	ExecutionTimeMs int64         `json:"execution_time_ms"`
	ResourceUsage   ResourceUsage `json:"resource_usage,omitempty"`
}

// Status tracks an execution through its life.
// Transitions are monotonic: pending -> running -> completed | failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Execution is one in-flight or completed tool run.
type Execution struct {
	ID         string      `json:"id"`
	Request    ToolRequest `json:"request"`
	Status     Status      `json:"status"`
	RetryCount int         `json:"retry_count"`
	Result     *ToolResult `json:"result,omitempty"`
}

// ToolExecutor is the concrete sandbox backend. Run may return a failed
// ToolResult (structured failure) or an error (transport/timeout failure);
// the two are retried under different rules.
type ToolExecutor interface {
	Run(ctx context.Context, req ToolRequest) (*ToolResult, error)
}

// ExecutorFunc adapts a function to the ToolExecutor interface.
type ExecutorFunc func(ctx context.Context, req ToolRequest) (*ToolResult, error)

// Run implements ToolExecutor.
func (f ExecutorFunc) Run(ctx context.Context, req ToolRequest) (*ToolResult, error) {
	return f(ctx, req)
}

// isRetryableExitCode reports whether a failed-but-returned result should be
// retried: request timeout, rate limiting, or any server-side failure.
func isRetryableExitCode(code int) bool {
	return code == 408 || code == 429 || (code >= 500 && code <= 599)
}
