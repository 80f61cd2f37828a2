// Package lifecycle wires optional feature modules into the build loop.
// Adapters are built (or lazily deferred), wrapped in error boundaries, and
// their phase handlers registered into a hook registry that the build loop
// fires at six fixed points. A failing module never takes down the build.
package lifecycle

import (
	"context"
)

// Phase is one of the six fixed points in a build where hooks fire.
type Phase string

const (
	PhaseBeforeBuild   Phase = "before-build"
	PhaseBeforeTask    Phase = "before-task"
	PhaseAfterTask     Phase = "after-task"
	PhaseTaskError     Phase = "task-error"
	PhaseHandoff       Phase = "handoff"
	PhaseBuildComplete Phase = "build-complete"
)

// Phases returns all phases in build order.
func Phases() []Phase {
	return []Phase{
		PhaseBeforeBuild,
		PhaseBeforeTask,
		PhaseAfterTask,
		PhaseTaskError,
		PhaseHandoff,
		PhaseBuildComplete,
	}
}

// Feature identifies an optional subsystem. The set is closed: adding a
// feature means adding a constant here and a default spec in wiring.go,
// which keeps lookups exhaustive instead of stringly-typed.
type Feature string

const (
	FeatureModelRouting   Feature = "model-routing"
	FeatureResearchCache  Feature = "research-cache"
	FeatureWorkflowEngine Feature = "workflow-engine"
	FeatureLongTermMemory Feature = "long-term-memory"
	FeatureObservability  Feature = "observability"
	FeatureModelDatabase  Feature = "model-database"
	FeatureCollaboration  Feature = "collaboration"
)

// Features returns every known feature in wiring order.
func Features() []Feature {
	return []Feature{
		FeatureModelRouting,
		FeatureResearchCache,
		FeatureWorkflowEngine,
		FeatureLongTermMemory,
		FeatureObservability,
		FeatureModelDatabase,
		FeatureCollaboration,
	}
}

// Event carries build context into hook handlers.
type Event struct {
	BuildID string
	TaskID  string
	Agent   string
	Err     error
	Payload map[string]any
}

// HandlerFunc is one phase handler.
type HandlerFunc func(ctx context.Context, ev *Event) error

// Handlers is the handler set a feature adapter exposes. Any subset of the
// six phases may be nil; a module declines a phase by leaving it nil.
type Handlers struct {
	OnBeforeBuild   HandlerFunc
	OnBeforeTask    HandlerFunc
	OnAfterTask     HandlerFunc
	OnTaskError     HandlerFunc
	OnHandoff       HandlerFunc
	OnBuildComplete HandlerFunc
}

// ForPhase returns the handler for a phase, or nil.
func (h *Handlers) ForPhase(phase Phase) HandlerFunc {
	if h == nil {
		return nil
	}
	switch phase {
	case PhaseBeforeBuild:
		return h.OnBeforeBuild
	case PhaseBeforeTask:
		return h.OnBeforeTask
	case PhaseAfterTask:
		return h.OnAfterTask
	case PhaseTaskError:
		return h.OnTaskError
	case PhaseHandoff:
		return h.OnHandoff
	case PhaseBuildComplete:
		return h.OnBuildComplete
	}
	return nil
}

// Factory builds a feature adapter's handler set. Factories run at most once
// per adapter; failures are captured, never propagated.
type Factory func() (*Handlers, error)
