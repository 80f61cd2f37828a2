package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"forgeloop/internal/logging"
)

// LazyAdapter defers a feature adapter's construction to first use. The
// factory runs at most once: success caches the handler set permanently,
// and failure is cached permanently too (logged once), after which every
// phase call is a silent no-op until Reset.
type LazyAdapter struct {
	mu       sync.Mutex
	module   string
	factory  Factory
	handlers *Handlers
	failed   bool
}

// NewLazyAdapter creates a lazy wrapper around the factory.
func NewLazyAdapter(module string, factory Factory) *LazyAdapter {
	return &LazyAdapter{module: module, factory: factory}
}

// ensureInitialized memoizes the factory call. Returns the real handler set,
// or nil when construction failed (now or previously).
func (a *LazyAdapter) ensureInitialized() *Handlers {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.handlers != nil || a.failed {
		return a.handlers
	}

	handlers, err := buildAdapter(Feature(a.module), a.factory)
	if err != nil {
		a.failed = true
		logging.LifecycleError("lazy adapter %s failed to initialize: %v (suppressing further attempts)", a.module, err)
		return nil
	}
	a.handlers = handlers
	logging.LifecycleDebug("lazy adapter %s initialized", a.module)
	return a.handlers
}

// Initialized reports whether the adapter has been successfully constructed.
func (a *LazyAdapter) Initialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handlers != nil
}

// Failed reports whether construction failed permanently.
func (a *LazyAdapter) Failed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failed
}

// Reset clears both the success and failure cache, allowing a fresh
// construction attempt on next use.
func (a *LazyAdapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = nil
	a.failed = false
}

// Handlers returns a handler set whose six phase methods each trigger lazy
// initialization and then delegate to the real handler if one exists. When
// initialization failed, or the real adapter declines a phase, the call is
// a no-op.
func (a *LazyAdapter) Handlers() *Handlers {
	return &Handlers{
		OnBeforeBuild:   a.lazyHandler(PhaseBeforeBuild),
		OnBeforeTask:    a.lazyHandler(PhaseBeforeTask),
		OnAfterTask:     a.lazyHandler(PhaseAfterTask),
		OnTaskError:     a.lazyHandler(PhaseTaskError),
		OnHandoff:       a.lazyHandler(PhaseHandoff),
		OnBuildComplete: a.lazyHandler(PhaseBuildComplete),
	}
}

func (a *LazyAdapter) lazyHandler(phase Phase) HandlerFunc {
	return func(ctx context.Context, ev *Event) error {
		real := a.ensureInitialized()
		handler := real.ForPhase(phase)
		if handler == nil {
			return nil
		}
		return handler(ctx, ev)
	}
}

// LazyRegistry holds lazy adapters keyed by feature. Like HookRegistry it is
// an explicitly constructed context object with an explicit reset, not a
// package-level singleton.
type LazyRegistry struct {
	mu       sync.RWMutex
	adapters map[Feature]*LazyAdapter
}

// NewLazyRegistry creates an empty lazy-adapter registry.
func NewLazyRegistry() *LazyRegistry {
	return &LazyRegistry{adapters: make(map[Feature]*LazyAdapter)}
}

// Register installs a lazy adapter for a feature, replacing any previous one.
func (r *LazyRegistry) Register(feature Feature, factory Factory) *LazyAdapter {
	adapter := NewLazyAdapter(string(feature), factory)
	r.mu.Lock()
	r.adapters[feature] = adapter
	r.mu.Unlock()
	return adapter
}

// Adapter looks up the lazy adapter for a feature.
func (r *LazyRegistry) Adapter(feature Feature) (*LazyAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[feature]
	return adapter, ok
}

// ResetAll resets every registered adapter, allowing fresh construction
// attempts. Registrations themselves are kept.
func (r *LazyRegistry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, adapter := range r.adapters {
		adapter.Reset()
	}
}

// Describe returns a human-readable state line per registered adapter.
func (r *LazyRegistry) Describe() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for feature, adapter := range r.adapters {
		state := "deferred"
		if adapter.Initialized() {
			state = "initialized"
		} else if adapter.Failed() {
			state = "failed"
		}
		out = append(out, fmt.Sprintf("%s: %s", feature, state))
	}
	return out
}
