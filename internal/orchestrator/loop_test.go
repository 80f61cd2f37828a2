package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"forgeloop/internal/gates"
	"forgeloop/internal/hierarchy"
	"forgeloop/internal/intent"
	"forgeloop/internal/lifecycle"
)

const agentResponse = "Completed the requested work: implemented the change, wired it through the config layer, and verified it against the existing tests."

type fakeAgent struct {
	mu    sync.Mutex
	calls []TaskSpec
	fn    func(task *TaskSpec) (string, error)
}

func (f *fakeAgent) ExecuteTask(ctx context.Context, task *TaskSpec) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, *task)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(task)
	}
	return agentResponse, nil
}

func (f *fakeAgent) agents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, call := range f.calls {
		out[i] = call.Agent
	}
	return out
}

func newTestLoop(t *testing.T, cfg *hierarchy.Config, agent AgentExecutor, hooks *lifecycle.HookRegistry) *Loop {
	t.Helper()
	parser := intent.NewParser(intent.DefaultParserConfig())
	runner := gates.NewRunner(gates.DefaultConfig(), nil)
	loop, err := NewLoop(cfg, parser, agent, runner, hooks)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	return loop
}

func TestRunSingleTaskSuccess(t *testing.T) {
	agent := &fakeAgent{}
	loop := newTestLoop(t, hierarchy.DefaultConfig(), agent, nil)

	result, err := loop.Run(context.Background(), "create a REST endpoint for the billing service, must be tested")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(result.Tasks))
	}
	if !result.Succeeded() {
		t.Errorf("expected success: %+v", result.Tasks[0])
	}
	if result.FlatMode {
		t.Error("default config is hierarchical, not flat")
	}
	if result.Intent.Type != intent.TypeCreate {
		t.Errorf("intent type = %s, want create", result.Intent.Type)
	}
}

func TestRunMultiIntentFansOut(t *testing.T) {
	agent := &fakeAgent{}
	loop := newTestLoop(t, hierarchy.DefaultConfig(), agent, nil)

	result, err := loop.Run(context.Background(),
		"implement the request parser; implement the response encoder; update the integration tests")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(result.Tasks))
	}
	// Workers are assigned round-robin from the execution layer pool.
	workers := hierarchy.DefaultConfig().Layers[2].Workers
	for i, task := range result.Tasks {
		if want := workers[i%len(workers)]; task.Task.Agent != want {
			t.Errorf("task %d agent = %q, want %q", i, task.Task.Agent, want)
		}
	}
}

func TestRunFlatModeUsesSequentialDispatch(t *testing.T) {
	cfg := hierarchy.DefaultConfig()
	cfg.BackwardCompatibilityMode = true

	agent := &fakeAgent{}
	loop := newTestLoop(t, cfg, agent, nil)

	result, err := loop.Run(context.Background(), "fix the parser bug and then update the encoder tests")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.FlatMode {
		t.Error("compat mode must report flat mode")
	}
	if len(result.Tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(result.Tasks))
	}
	for i, task := range result.Tasks {
		if task.Task.Agent != "executor" {
			t.Errorf("task %d agent = %q, want the flat executor", i, task.Task.Agent)
		}
	}
}

func TestRunRetriesFailingAgent(t *testing.T) {
	attempts := 0
	agent := &fakeAgent{fn: func(task *TaskSpec) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("agent crashed")
		}
		return agentResponse, nil
	}}
	cfg := hierarchy.DefaultConfig()
	cfg.EscalationPolicy = hierarchy.EscalationManual
	loop := newTestLoop(t, cfg, agent, nil)

	result, err := loop.Run(context.Background(), "fix the flaky integration test in the billing module")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Succeeded() {
		t.Errorf("expected success after retries: %+v", result.Tasks[0])
	}
	if result.Tasks[0].Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Tasks[0].Attempts)
	}
}

func TestRunEscalatesToSupervisorOnFailure(t *testing.T) {
	agent := &fakeAgent{fn: func(task *TaskSpec) (string, error) {
		if task.Agent == "execution-lead" {
			return agentResponse, nil
		}
		return "", errors.New("worker stuck")
	}}
	loop := newTestLoop(t, hierarchy.DefaultConfig(), agent, nil)

	result, err := loop.Run(context.Background(), "fix the crash in the session store shutdown path")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	task := result.Tasks[0]
	if !task.Escalated {
		t.Fatal("failed task must escalate under the default policy")
	}
	if task.Err != nil || !task.Passed() {
		t.Errorf("supervisor success must rescue the task: %+v", task)
	}
	found := false
	for _, name := range agent.agents() {
		if name == "execution-lead" {
			found = true
		}
	}
	if !found {
		t.Errorf("supervisor never invoked, agents: %v", agent.agents())
	}
}

func TestRunManualPolicyNeverEscalates(t *testing.T) {
	agent := &fakeAgent{fn: func(task *TaskSpec) (string, error) {
		return "", errors.New("worker stuck")
	}}
	cfg := hierarchy.DefaultConfig()
	cfg.EscalationPolicy = hierarchy.EscalationManual
	loop := newTestLoop(t, cfg, agent, nil)

	result, err := loop.Run(context.Background(), "fix the crash in the session store shutdown path")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	task := result.Tasks[0]
	if task.Escalated {
		t.Error("manual policy must never auto-escalate")
	}
	if task.Err == nil {
		t.Error("expected the task to keep its failure")
	}
	for _, name := range agent.agents() {
		if name == "execution-lead" {
			t.Error("supervisor must not be invoked under manual policy")
		}
	}
}

func TestRunGatesEveryResponse(t *testing.T) {
	agent := &fakeAgent{fn: func(task *TaskSpec) (string, error) {
		return "too short", nil
	}}
	cfg := hierarchy.DefaultConfig()
	cfg.EscalationPolicy = hierarchy.EscalationManual
	loop := newTestLoop(t, cfg, agent, nil)

	result, err := loop.Run(context.Background(), "fix the crash in the session store shutdown path")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	task := result.Tasks[0]
	if task.Passed() {
		t.Error("short response must fail gating")
	}
	if len(task.Gates) == 0 {
		t.Fatal("gate results must be recorded")
	}
	if task.Gates[0].Gate != gates.GateResponseValidation {
		t.Errorf("first gate = %q, want response-validation", task.Gates[0].Gate)
	}
}

func TestRunFiresLifecyclePhases(t *testing.T) {
	hooks := lifecycle.NewHookRegistry()
	var mu sync.Mutex
	seen := map[lifecycle.Phase]int{}
	for _, phase := range lifecycle.Phases() {
		phase := phase
		hooks.Register(phase, "probe", 0, func(ctx context.Context, ev *lifecycle.Event) error {
			mu.Lock()
			seen[phase]++
			mu.Unlock()
			return nil
		})
	}

	agent := &fakeAgent{}
	loop := newTestLoop(t, hierarchy.DefaultConfig(), agent, hooks)
	if _, err := loop.Run(context.Background(), "create a health endpoint for the gateway service"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, phase := range []lifecycle.Phase{lifecycle.PhaseBeforeBuild, lifecycle.PhaseBeforeTask, lifecycle.PhaseAfterTask, lifecycle.PhaseBuildComplete} {
		if seen[phase] == 0 {
			t.Errorf("phase %s never fired", phase)
		}
	}
	if seen[lifecycle.PhaseTaskError] != 0 {
		t.Errorf("task-error fired %d times on a clean run", seen[lifecycle.PhaseTaskError])
	}
}

func TestRunTaskErrorPhaseOnFailure(t *testing.T) {
	hooks := lifecycle.NewHookRegistry()
	var mu sync.Mutex
	errEvents := 0
	hooks.Register(lifecycle.PhaseTaskError, "probe", 0, func(ctx context.Context, ev *lifecycle.Event) error {
		mu.Lock()
		errEvents++
		mu.Unlock()
		if ev.Err == nil {
			t.Error("task-error event must carry the failure")
		}
		return nil
	})

	agent := &fakeAgent{fn: func(task *TaskSpec) (string, error) {
		return "", errors.New("stuck")
	}}
	cfg := hierarchy.DefaultConfig()
	cfg.EscalationPolicy = hierarchy.EscalationManual
	loop := newTestLoop(t, cfg, agent, hooks)

	if _, err := loop.Run(context.Background(), "fix the crash in the session store shutdown path"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if errEvents != 1 {
		t.Errorf("task-error fired %d times, want 1", errEvents)
	}
}

func TestRunClarifiesVagueInput(t *testing.T) {
	agent := &fakeAgent{}
	loop := newTestLoop(t, hierarchy.DefaultConfig(), agent, nil)

	rounds := 0
	loop.SetClarificationProvider(intent.ProviderFunc(func(ctx context.Context, it *intent.Intent) (string, error) {
		rounds++
		return "the billing module", nil
	}))

	result, err := loop.Run(context.Background(), "maybe fix something")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rounds == 0 {
		t.Error("vague input must trigger the clarification loop")
	}
	if result.Intent.NeedsClarification {
		t.Error("the loop must leave NeedsClarification false")
	}
	if !strings.Contains(result.Intent.ClarificationHistory[0].Answer, "billing") {
		t.Error("clarification answers must be recorded")
	}
}

func TestNewLoopValidation(t *testing.T) {
	parser := intent.NewParser(intent.DefaultParserConfig())
	runner := gates.NewRunner(gates.DefaultConfig(), nil)
	agent := &fakeAgent{}

	if _, err := NewLoop(nil, parser, agent, runner, nil); err == nil {
		t.Error("nil config must be rejected")
	}
	if _, err := NewLoop(hierarchy.DefaultConfig(), nil, agent, runner, nil); err == nil {
		t.Error("nil parser must be rejected")
	}
	if _, err := NewLoop(hierarchy.DefaultConfig(), parser, nil, runner, nil); err == nil {
		t.Error("nil executor must be rejected")
	}
	if _, err := NewLoop(hierarchy.DefaultConfig(), parser, agent, nil, nil); err == nil {
		t.Error("nil gate runner must be rejected")
	}
}
