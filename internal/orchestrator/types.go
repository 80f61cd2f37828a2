// Package orchestrator drives the build loop: it parses raw input into
// intents, fans tasks out across the configured execution layer, gates every
// produced response, and escalates failures according to the hierarchy's
// policy. Feature modules observe the loop through lifecycle hooks.
package orchestrator

import (
	"context"

	"forgeloop/internal/gates"
	"forgeloop/internal/intent"
)

// TaskSpec is one unit of work dispatched to an agent.
type TaskSpec struct {
	ID          string
	Agent       string
	Description string
	Intent      *intent.Intent
}

// AgentExecutor runs one task and returns the agent's response. The concrete
// implementation decides how the agent works; the loop only cares about the
// response text and whether execution failed.
type AgentExecutor interface {
	ExecuteTask(ctx context.Context, task *TaskSpec) (string, error)
}

// AgentExecutorFunc adapts a function to the AgentExecutor interface.
type AgentExecutorFunc func(ctx context.Context, task *TaskSpec) (string, error)

// ExecuteTask implements AgentExecutor.
func (f AgentExecutorFunc) ExecuteTask(ctx context.Context, task *TaskSpec) (string, error) {
	return f(ctx, task)
}

// TaskOutcome records what happened to one task.
type TaskOutcome struct {
	Task      TaskSpec
	Response  string
	Gates     []gates.GateResult
	Attempts  int
	Escalated bool
	Err       error
}

// Passed reports whether the task produced a response that cleared every gate.
func (o *TaskOutcome) Passed() bool {
	return o.Err == nil && gates.AllGatesPassed(o.Gates)
}

// BuildResult summarizes one full run of the loop.
type BuildResult struct {
	BuildID  string
	Intent   *intent.Intent
	FlatMode bool
	Tasks    []TaskOutcome
}

// Succeeded reports whether every task passed.
func (r *BuildResult) Succeeded() bool {
	for i := range r.Tasks {
		if !r.Tasks[i].Passed() {
			return false
		}
	}
	return true
}
