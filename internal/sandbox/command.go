package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"forgeloop/internal/logging"
)

// maxCommandOutput bounds captured output so a chatty tool cannot blow up
// task context downstream.
const maxCommandOutput = 50000

// CommandExecutor is a ToolExecutor backed by local process execution.
// The tool name is the binary to run; args carry the argument vector and an
// optional working directory. Policy enforcement stays in the Sandbox; this
// backend only runs what it is handed.
type CommandExecutor struct {
	// WorkingDirectory is the default directory for commands.
	WorkingDirectory string
	// Env is the environment passed to commands; nil inherits the process env.
	Env []string
}

// NewCommandExecutor creates a command executor rooted at dir.
func NewCommandExecutor(dir string) *CommandExecutor {
	return &CommandExecutor{WorkingDirectory: dir}
}

// Run executes the request as a local command. A non-zero exit is a
// structured failure, not an error; errors are reserved for spawn and
// context failures so the sandbox retry rules apply correctly.
func (e *CommandExecutor) Run(ctx context.Context, req ToolRequest) (*ToolResult, error) {
	argv := stringSlice(req.Args["argv"])
	cmd := exec.CommandContext(ctx, req.ToolName, argv...)

	cmd.Dir = e.WorkingDirectory
	if dir, ok := req.Args["working_dir"].(string); ok && dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = e.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n--- stderr ---\n"
		}
		output += stderr.String()
	}
	if len(output) > maxCommandOutput {
		output = output[:maxCommandOutput] + "\n...[truncated]"
	}

	result := &ToolResult{
		Output:          output,
		ExecutionTimeMs: elapsed.Milliseconds(),
		ResourceUsage:   ResourceUsage{OutputBytes: len(output)},
	}

	if err == nil {
		result.Success = true
		logging.SandboxDebug("command %s completed in %v (%d bytes)", req.ToolName, elapsed, len(output))
		return result, nil
	}

	if ctx.Err() != nil {
		// Let the sandbox's timeout race classify this as a thrown failure.
		return nil, fmt.Errorf("command %s interrupted: %w", req.ToolName, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		logging.SandboxDebug("command %s exited %d", req.ToolName, result.ExitCode)
		return result, nil
	}

	// Spawn failure (binary missing, permissions): thrown, retryable.
	return nil, fmt.Errorf("command %s failed to start: %w", req.ToolName, err)
}

func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
