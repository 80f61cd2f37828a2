package main

import (
	"context"
	"fmt"
	"strings"

	"forgeloop/internal/lifecycle"
	"forgeloop/internal/llm"
	"forgeloop/internal/logging"
	"forgeloop/internal/orchestrator"
)

// newAgentExecutor returns the executor the build loop dispatches tasks to.
// With an LLM caller the agent produces a real completion; without one it
// produces a deterministic dry-run report so the loop stays usable offline.
func newAgentExecutor(caller llm.Caller) orchestrator.AgentExecutor {
	return orchestrator.AgentExecutorFunc(func(ctx context.Context, task *orchestrator.TaskSpec) (string, error) {
		if caller == nil {
			return dryRunResponse(task), nil
		}
		return caller.Call(ctx, agentPrompt(task))
	})
}

func agentPrompt(task *orchestrator.TaskSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are agent %q in a build orchestrator.\n\n", task.Agent)
	fmt.Fprintf(&b, "Task: %s\n", task.Description)
	if it := task.Intent; it != nil {
		fmt.Fprintf(&b, "Intent: type=%s scope=%s confidence=%.2f\n", it.Type, it.Scope, it.Confidence)
		if len(it.Constraints) > 0 {
			fmt.Fprintf(&b, "Constraints: %s\n", strings.Join(it.Constraints, ", "))
		}
		for _, ex := range it.ClarificationHistory {
			fmt.Fprintf(&b, "Clarification: Q: %s A: %s\n", ex.Question, ex.Answer)
		}
	}
	b.WriteString("\nComplete the task and report what you did.")
	return b.String()
}

func dryRunResponse(task *orchestrator.TaskSpec) string {
	it := task.Intent
	return fmt.Sprintf(
		"dry-run: agent %s would handle %s work on scope %q for task: %s (confidence %.2f)",
		task.Agent, it.Type, it.Scope, task.Description, it.Confidence)
}

// builtinFactories returns the adapters the CLI ships with. Only
// observability has a built-in implementation; the other features are wired
// by embedders that bring their own factories.
func builtinFactories() map[lifecycle.Feature]lifecycle.Factory {
	return map[lifecycle.Feature]lifecycle.Factory{
		lifecycle.FeatureObservability: observabilityFactory,
	}
}

// observabilityFactory logs every lifecycle event.
func observabilityFactory() (*lifecycle.Handlers, error) {
	observe := func(phase lifecycle.Phase) lifecycle.HandlerFunc {
		return func(ctx context.Context, ev *lifecycle.Event) error {
			logging.Lifecycle("%s build=%s task=%s agent=%s err=%v",
				phase, ev.BuildID, ev.TaskID, ev.Agent, ev.Err)
			return nil
		}
	}
	return &lifecycle.Handlers{
		OnBeforeBuild:   observe(lifecycle.PhaseBeforeBuild),
		OnBeforeTask:    observe(lifecycle.PhaseBeforeTask),
		OnAfterTask:     observe(lifecycle.PhaseAfterTask),
		OnTaskError:     observe(lifecycle.PhaseTaskError),
		OnHandoff:       observe(lifecycle.PhaseHandoff),
		OnBuildComplete: observe(lifecycle.PhaseBuildComplete),
	}, nil
}
