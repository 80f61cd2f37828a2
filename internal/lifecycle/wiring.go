package lifecycle

import (
	"context"
	"fmt"

	"forgeloop/internal/logging"
)

// FeatureSpec is a feature's static wiring configuration: its hook priority
// and which phases it participates in. A module may decline specific phases
// here even when its adapter exposes a handler for them.
type FeatureSpec struct {
	Priority int
	Phases   []Phase
}

// defaultFeatureSpecs is the closed feature table. Observability wires into
// everything at high priority so it sees every event first; narrower
// features subscribe only to the phases they act on.
var defaultFeatureSpecs = map[Feature]FeatureSpec{
	FeatureModelRouting:   {Priority: 70, Phases: []Phase{PhaseBeforeTask}},
	FeatureResearchCache:  {Priority: 50, Phases: []Phase{PhaseBeforeTask, PhaseAfterTask}},
	FeatureWorkflowEngine: {Priority: 60, Phases: []Phase{PhaseBeforeBuild, PhaseHandoff, PhaseBuildComplete}},
	FeatureLongTermMemory: {Priority: 40, Phases: []Phase{PhaseAfterTask, PhaseBuildComplete}},
	FeatureObservability:  {Priority: 90, Phases: Phases()},
	FeatureModelDatabase:  {Priority: 30, Phases: []Phase{PhaseBeforeBuild}},
	FeatureCollaboration:  {Priority: 50, Phases: []Phase{PhaseBeforeTask, PhaseAfterTask, PhaseTaskError, PhaseHandoff}},
}

// WireOptions control live wiring: which features are enabled and the
// factory for each. Features without a factory are skipped even when
// enabled.
type WireOptions struct {
	Enabled   map[Feature]bool
	Factories map[Feature]Factory
	// Specs overrides the default static configuration per feature.
	Specs map[Feature]FeatureSpec
}

// WireError records a single module's wiring failure.
type WireError struct {
	Feature Feature
	Err     error
}

// WiringResult aggregates what wiring did.
type WiringResult struct {
	AdaptersWired []Feature
	Skipped       []Feature
	HookCount     int
	Errors        []WireError
}

// WireAdapters builds the enabled feature adapters and registers their phase
// handlers into the registry. Disabled features are skipped silently; a
// factory failure is captured per module and does not affect any other
// module's wiring. Every registered handler is wrapped in an error boundary.
func WireAdapters(registry *HookRegistry, opts WireOptions) WiringResult {
	var result WiringResult

	for _, feature := range Features() {
		if !opts.Enabled[feature] {
			result.Skipped = append(result.Skipped, feature)
			continue
		}

		factory, ok := opts.Factories[feature]
		if !ok {
			result.Skipped = append(result.Skipped, feature)
			logging.LifecycleDebug("feature %s enabled but has no factory, skipping", feature)
			continue
		}

		handlers, err := buildAdapter(feature, factory)
		if err != nil {
			result.Errors = append(result.Errors, WireError{Feature: feature, Err: err})
			logging.LifecycleError("failed to build adapter for %s: %v", feature, err)
			continue
		}

		spec := specFor(feature, opts)
		wired := registerHandlers(registry, feature, spec, handlers)
		result.HookCount += wired
		result.AdaptersWired = append(result.AdaptersWired, feature)
		logging.Lifecycle("wired %s: %d hooks (priority=%d)", feature, wired, spec.Priority)
	}

	logging.Lifecycle("adapter wiring complete: %d wired, %d skipped, %d hooks, %d errors",
		len(result.AdaptersWired), len(result.Skipped), result.HookCount, len(result.Errors))
	return result
}

// buildAdapter runs a factory, converting panics into captured errors so one
// bad module cannot take down wiring.
func buildAdapter(feature Feature, factory Factory) (handlers *Handlers, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter factory for %s panicked: %v", feature, r)
		}
	}()

	handlers, err = factory()
	if err != nil {
		return nil, fmt.Errorf("adapter factory for %s failed: %w", feature, err)
	}
	if handlers == nil {
		return nil, fmt.Errorf("adapter factory for %s returned no handlers", feature)
	}
	return handlers, nil
}

func specFor(feature Feature, opts WireOptions) FeatureSpec {
	if spec, ok := opts.Specs[feature]; ok {
		return spec
	}
	return defaultFeatureSpecs[feature]
}

// registerHandlers registers the adapter's handlers for each phase the
// feature's static config enables, skipping phases the adapter declines.
func registerHandlers(registry *HookRegistry, feature Feature, spec FeatureSpec, handlers *Handlers) int {
	wired := 0
	for _, phase := range spec.Phases {
		handler := handlers.ForPhase(phase)
		if handler == nil {
			continue
		}
		registry.Register(phase, string(feature), spec.Priority, boundary(feature, phase, handler))
		wired++
	}
	return wired
}

// boundary wraps a handler so that errors and panics are logged and absorbed.
// Feature modules must never propagate failures into the build loop.
func boundary(feature Feature, phase Phase, handler HandlerFunc) HandlerFunc {
	return func(ctx context.Context, ev *Event) error {
		defer func() {
			if r := recover(); r != nil {
				logging.LifecycleError("%s handler for %s panicked: %v", feature, phase, r)
			}
		}()
		if err := handler(ctx, ev); err != nil {
			logging.LifecycleWarn("%s handler for %s failed: %v", feature, phase, err)
		}
		return nil
	}
}

// WiringSummary is the dry-run diagnostic: it reports what WireAdapters
// would do for the given options without invoking any factory.
func WiringSummary(opts WireOptions) WiringResult {
	var result WiringResult
	for _, feature := range Features() {
		if !opts.Enabled[feature] || opts.Factories[feature] == nil {
			result.Skipped = append(result.Skipped, feature)
			continue
		}
		spec := specFor(feature, opts)
		result.AdaptersWired = append(result.AdaptersWired, feature)
		result.HookCount += len(spec.Phases)
	}
	return result
}
