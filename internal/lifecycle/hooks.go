package lifecycle

import (
	"context"
	"sort"
	"sync"

	"forgeloop/internal/logging"
)

// Registration is one phase handler entry in the registry.
type Registration struct {
	Phase    Phase
	Module   string
	Priority int
	Handler  HandlerFunc
}

// HookRegistry holds phase handlers. It is an explicitly constructed context
// object passed down from the build loop's entry point; tests get isolation
// through NewHookRegistry or Reset rather than package-level state.
type HookRegistry struct {
	mu    sync.RWMutex
	hooks map[Phase][]Registration
}

// NewHookRegistry creates an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[Phase][]Registration)}
}

// Register adds a handler for a phase. Higher priority fires first within
// the phase; ties keep registration order.
func (r *HookRegistry) Register(phase Phase, module string, priority int, handler HandlerFunc) {
	if handler == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[phase] = append(r.hooks[phase], Registration{
		Phase:    phase,
		Module:   module,
		Priority: priority,
		Handler:  handler,
	})
	sort.SliceStable(r.hooks[phase], func(i, j int) bool {
		return r.hooks[phase][i].Priority > r.hooks[phase][j].Priority
	})
	logging.LifecycleDebug("registered %s hook for %s (priority=%d)", phase, module, priority)
}

// Fire invokes every handler registered for the phase, in priority order,
// before returning. Handler errors are collected for diagnostics; wrapped
// (error-boundary) handlers never return one.
func (r *HookRegistry) Fire(ctx context.Context, phase Phase, ev *Event) []error {
	r.mu.RLock()
	regs := make([]Registration, len(r.hooks[phase]))
	copy(regs, r.hooks[phase])
	r.mu.RUnlock()

	var errs []error
	for _, reg := range regs {
		if err := reg.Handler(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Count returns the total number of registered hooks.
func (r *HookRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, regs := range r.hooks {
		total += len(regs)
	}
	return total
}

// CountByPhase returns how many hooks are registered for a phase.
func (r *HookRegistry) CountByPhase(phase Phase) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[phase])
}

// Modules returns the module names registered for a phase, in firing order.
func (r *HookRegistry) Modules(phase Phase) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.hooks[phase]))
	for _, reg := range r.hooks[phase] {
		out = append(out, reg.Module)
	}
	return out
}

// Reset removes every registration.
func (r *HookRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = make(map[Phase][]Registration)
}
