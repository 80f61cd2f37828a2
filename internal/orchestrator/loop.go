package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"forgeloop/internal/gates"
	"forgeloop/internal/hierarchy"
	"forgeloop/internal/intent"
	"forgeloop/internal/lifecycle"
	"forgeloop/internal/logging"
)

// Loop is the build loop. All collaborators are explicit; nothing here is a
// package-level singleton.
type Loop struct {
	cfg      *hierarchy.Config
	parser   *intent.Parser
	provider intent.ClarificationProvider
	executor AgentExecutor
	gates    *gates.Runner
	hooks    *lifecycle.HookRegistry
}

// NewLoop assembles a build loop. The clarification provider may be nil, in
// which case low-confidence intents proceed best-effort; the hook registry may
// be nil, in which case no lifecycle events fire.
func NewLoop(cfg *hierarchy.Config, parser *intent.Parser, executor AgentExecutor, gateRunner *gates.Runner, hooks *lifecycle.HookRegistry) (*Loop, error) {
	if cfg == nil {
		return nil, errors.New("orchestrator: hierarchy config is required")
	}
	if parser == nil {
		return nil, errors.New("orchestrator: intent parser is required")
	}
	if executor == nil {
		return nil, errors.New("orchestrator: agent executor is required")
	}
	if gateRunner == nil {
		return nil, errors.New("orchestrator: gate runner is required")
	}
	if hooks == nil {
		hooks = lifecycle.NewHookRegistry()
	}
	return &Loop{
		cfg:      cfg,
		parser:   parser,
		executor: executor,
		gates:    gateRunner,
		hooks:    hooks,
	}, nil
}

// SetClarificationProvider installs the interactive Q&A backend for
// low-confidence intents.
func (l *Loop) SetClarificationProvider(provider intent.ClarificationProvider) {
	l.provider = provider
}

// Run drives one build from raw input to gated task outcomes. Run itself only
// fails on context cancellation or an unusable primary intent; individual task
// failures are recorded in the result, not returned.
func (l *Loop) Run(ctx context.Context, input string) (*BuildResult, error) {
	buildID := uuid.NewString()
	ctx, cancel := context.WithTimeout(ctx, l.cfg.GlobalTimeout())
	defer cancel()

	l.fire(ctx, lifecycle.PhaseBeforeBuild, &lifecycle.Event{BuildID: buildID})

	primary := l.parser.Parse(input)
	if err := l.parser.RunClarificationLoop(ctx, primary, l.provider); err != nil {
		return nil, fmt.Errorf("build %s: clarification aborted: %w", buildID, err)
	}
	if primary.Confidence < l.cfg.Escalation.Thresholds.ConfidenceThreshold &&
		hierarchy.ShouldAutoEscalate(l.cfg, hierarchy.TriggerLowConfidence) {
		logging.Orchestrator("build %s: intent confidence %.2f below threshold, escalating to %s",
			buildID, primary.Confidence, l.supervisorFor(hierarchy.LevelIntent))
	}

	result := &BuildResult{
		BuildID:  buildID,
		Intent:   primary,
		FlatMode: hierarchy.ShouldUseFlatMode(l.cfg),
	}

	tasks := l.planTasks(input, primary, result.FlatMode)
	logging.Orchestrator("build %s: %d task(s), flat_mode=%v", buildID, len(tasks), result.FlatMode)

	if result.FlatMode {
		result.Tasks = l.runFlat(ctx, buildID, tasks)
	} else {
		result.Tasks = l.runLayered(ctx, buildID, tasks)
	}

	l.fire(ctx, lifecycle.PhaseBuildComplete, &lifecycle.Event{
		BuildID: buildID,
		Payload: map[string]any{
			"tasks":     len(result.Tasks),
			"succeeded": result.Succeeded(),
		},
	})
	return result, ctx.Err()
}

// planTasks splits compound input into one task per intent fragment. The
// primary intent is reused for single-fragment input so clarification history
// survives into the task. Flat mode routes everything through the single
// legacy executor instead of the layer's worker pool.
func (l *Loop) planTasks(input string, primary *intent.Intent, flat bool) []*TaskSpec {
	fragments := intent.DetectMultiIntent(input)

	tasks := make([]*TaskSpec, 0, len(fragments))
	for i, fragment := range fragments {
		it := primary
		if len(fragments) > 1 {
			it = l.parser.Parse(fragment)
		}
		agent := l.workerFor(i)
		if flat {
			agent = flatAgent
		}
		tasks = append(tasks, &TaskSpec{
			ID:          uuid.NewString(),
			Agent:       agent,
			Description: fragment,
			Intent:      it,
		})
	}
	return tasks
}

// flatAgent is the legacy single-executor identity used when layer routing is
// bypassed.
const flatAgent = "executor"

// runFlat executes tasks sequentially through the single legacy executor.
func (l *Loop) runFlat(ctx context.Context, buildID string, tasks []*TaskSpec) []TaskOutcome {
	outcomes := make([]TaskOutcome, len(tasks))
	for i, task := range tasks {
		outcomes[i] = l.runTask(ctx, buildID, task, l.cfg.DefaultMaxRetries)
	}
	return outcomes
}

// runLayered fans tasks out under the execution layer's concurrency budget.
// Results keep task order regardless of completion order.
func (l *Loop) runLayered(ctx context.Context, buildID string, tasks []*TaskSpec) []TaskOutcome {
	maxConcurrency := int64(1)
	maxRetries := l.cfg.DefaultMaxRetries
	if layer, ok := hierarchy.Layer(l.cfg, hierarchy.LevelExecution); ok {
		if layer.MaxConcurrency > 0 {
			maxConcurrency = int64(layer.MaxConcurrency)
		}
		if layer.MaxRetries > 0 {
			maxRetries = layer.MaxRetries
		}
	}

	outcomes := make([]TaskOutcome, len(tasks))
	var mu sync.Mutex
	sem := semaphore.NewWeighted(maxConcurrency)
	g, gctx := errgroup.WithContext(ctx)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				mu.Lock()
				outcomes[i] = TaskOutcome{Task: *task, Err: err}
				mu.Unlock()
				return nil
			}
			defer sem.Release(1)

			outcome := l.runTask(gctx, buildID, task, maxRetries)
			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// runTask drives one task through execute-with-retries, gating, and the
// escalation policy, firing lifecycle hooks at each step.
func (l *Loop) runTask(ctx context.Context, buildID string, task *TaskSpec, maxRetries int) TaskOutcome {
	taskCtx, cancel := context.WithTimeout(ctx, l.cfg.LayerTimeout(hierarchy.LevelExecution))
	defer cancel()

	ev := &lifecycle.Event{BuildID: buildID, TaskID: task.ID, Agent: task.Agent}
	l.fire(taskCtx, lifecycle.PhaseBeforeTask, ev)

	outcome := l.executeWithRetries(taskCtx, task, maxRetries)

	if outcome.Err != nil {
		trigger := hierarchy.TriggerFailure
		if errors.Is(outcome.Err, context.DeadlineExceeded) {
			trigger = hierarchy.TriggerTimeout
		}
		l.fire(ctx, lifecycle.PhaseTaskError, &lifecycle.Event{
			BuildID: buildID, TaskID: task.ID, Agent: task.Agent, Err: outcome.Err,
		})
		if hierarchy.ShouldAutoEscalate(l.cfg, trigger) {
			l.escalate(ctx, buildID, task, &outcome, trigger)
		}
		return outcome
	}

	outcome.Gates = l.gates.RunGates(taskCtx, gates.Task{AgentName: task.Agent, Description: task.Description}, outcome.Response)
	if !gates.AllGatesPassed(outcome.Gates) {
		logging.OrchestratorWarn("build %s: task %s gates: %s", buildID, task.ID, gates.GatesSummary(outcome.Gates))
		if hierarchy.ShouldAutoEscalate(l.cfg, hierarchy.TriggerQualityGate) {
			l.escalate(ctx, buildID, task, &outcome, hierarchy.TriggerQualityGate)
		}
	}

	l.fire(ctx, lifecycle.PhaseAfterTask, &lifecycle.Event{
		BuildID: buildID, TaskID: task.ID, Agent: task.Agent,
		Payload: map[string]any{"gates": gates.GatesSummary(outcome.Gates)},
	})
	return outcome
}

// executeWithRetries calls the agent executor up to maxRetries+1 times.
// A cancelled context stops retrying immediately.
func (l *Loop) executeWithRetries(ctx context.Context, task *TaskSpec, maxRetries int) TaskOutcome {
	outcome := TaskOutcome{Task: *task}
	for attempt := 0; attempt <= maxRetries; attempt++ {
		outcome.Attempts = attempt + 1
		response, err := l.executor.ExecuteTask(ctx, task)
		if err == nil {
			outcome.Response = response
			outcome.Err = nil
			return outcome
		}
		outcome.Err = err
		if ctx.Err() != nil {
			return outcome
		}
		logging.OrchestratorDebug("task %s attempt %d failed: %v", task.ID, attempt+1, err)
	}
	return outcome
}

// escalate hands a failing task to the execution layer's supervisor for one
// more attempt, firing the handoff hook either way.
func (l *Loop) escalate(ctx context.Context, buildID string, task *TaskSpec, outcome *TaskOutcome, trigger hierarchy.EscalationTrigger) {
	supervisor := l.supervisorFor(hierarchy.LevelExecution)
	outcome.Escalated = true
	logging.Orchestrator("build %s: escalating task %s to %s (trigger=%s)", buildID, task.ID, supervisor, trigger)

	l.fire(ctx, lifecycle.PhaseHandoff, &lifecycle.Event{
		BuildID: buildID, TaskID: task.ID, Agent: supervisor,
		Payload: map[string]any{"trigger": string(trigger), "from": task.Agent},
	})

	escalated := *task
	escalated.Agent = supervisor
	response, err := l.executor.ExecuteTask(ctx, &escalated)
	if err != nil {
		logging.OrchestratorWarn("build %s: supervisor %s failed on task %s: %v", buildID, supervisor, task.ID, err)
		return
	}

	results := l.gates.RunGates(ctx, gates.Task{AgentName: supervisor, Description: task.Description}, response)
	if gates.AllGatesPassed(results) {
		outcome.Response = response
		outcome.Gates = results
		outcome.Err = nil
	}
}

func (l *Loop) supervisorFor(level int) string {
	if layer, ok := hierarchy.Layer(l.cfg, level); ok && layer.SupervisorAgent != "" {
		return layer.SupervisorAgent
	}
	return "supervisor"
}

// workerFor assigns workers round-robin from the execution layer's pool.
func (l *Loop) workerFor(i int) string {
	layer, ok := hierarchy.Layer(l.cfg, hierarchy.LevelExecution)
	if !ok || len(layer.Workers) == 0 {
		return flatAgent
	}
	return layer.Workers[i%len(layer.Workers)]
}

func (l *Loop) fire(ctx context.Context, phase lifecycle.Phase, ev *lifecycle.Event) {
	for _, err := range l.hooks.Fire(ctx, phase, ev) {
		logging.OrchestratorWarn("%s hook error: %v", phase, err)
	}
}
