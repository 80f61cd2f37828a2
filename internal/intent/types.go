// Package intent implements the L0 layer: it turns free-text user input into
// a structured, confidence-scored intent and runs a bounded clarification
// loop before handing off to the planning layers.
package intent

import (
	"context"
	"time"
)

// Type classifies what the user wants done.
type Type string

const (
	TypeCreate  Type = "create"
	TypeFix     Type = "fix"
	TypeModify  Type = "modify"
	TypeTest    Type = "test"
	TypeReview  Type = "review"
	TypeDeploy  Type = "deploy"
	TypeGeneral Type = "general"
)

// Constraint buckets extracted from the input. Multiple may apply.
const (
	ConstraintTimeSensitive = "time-sensitive"
	ConstraintHighQuality   = "high-quality"
	ConstraintMinimalScope  = "minimal-scope"
	ConstraintTested        = "tested"
)

// ClarificationExchange is one Q&A round of the clarification loop.
type ClarificationExchange struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// Intent is one parsed user request.
type Intent struct {
	ID                   string                  `json:"id"`
	RawInput             string                  `json:"raw_input"`
	Type                 Type                    `json:"type"`
	Scope                string                  `json:"scope"`
	Constraints          []string                `json:"constraints,omitempty"`
	Confidence           float64                 `json:"confidence"`
	NeedsClarification   bool                    `json:"needs_clarification"`
	ClarificationHistory []ClarificationExchange `json:"clarification_history,omitempty"`
}

// ClarificationProvider supplies a human or agent answer during the
// clarification loop. It is an external collaborator; an error ends the loop
// and the caller proceeds with the best-effort intent.
type ClarificationProvider interface {
	Answer(ctx context.Context, it *Intent) (string, error)
}

// ProviderFunc adapts a function to the ClarificationProvider interface.
type ProviderFunc func(ctx context.Context, it *Intent) (string, error)

// Answer implements ClarificationProvider.
func (f ProviderFunc) Answer(ctx context.Context, it *Intent) (string, error) {
	return f(ctx, it)
}
