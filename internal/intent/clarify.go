package intent

import (
	"context"
	"fmt"
	"time"

	"forgeloop/internal/logging"
)

// confidenceCeiling caps clarification-boosted confidence. Clarification can
// never make an intent fully certain.
const confidenceCeiling = 0.95

// RunClarificationLoop runs the bounded Q&A loop on an intent that needs
// clarification. Each round asks the provider one question, appends the
// exchange, and boosts confidence by the configured amount. The loop
// terminates when confidence clears the threshold or the round cap is
// reached; in either case NeedsClarification ends up false and the caller
// must proceed with the best-effort intent.
func (p *Parser) RunClarificationLoop(ctx context.Context, it *Intent, provider ClarificationProvider) error {
	if it == nil || !it.NeedsClarification {
		return nil
	}
	if provider == nil {
		it.NeedsClarification = false
		return nil
	}

	for it.NeedsClarification {
		if len(it.ClarificationHistory) >= p.cfg.MaxClarificationRounds {
			// Round cap reached: proceed best-effort.
			it.NeedsClarification = false
			break
		}
		if err := ctx.Err(); err != nil {
			it.NeedsClarification = false
			return err
		}

		question := p.clarificationQuestion(it)
		answer, err := provider.Answer(ctx, it)
		if err != nil {
			logging.IntentDebug("clarification provider failed for %s: %v (proceeding best-effort)", it.ID, err)
			it.NeedsClarification = false
			return nil
		}

		it.ClarificationHistory = append(it.ClarificationHistory, ClarificationExchange{
			Question:  question,
			Answer:    answer,
			Timestamp: time.Now(),
		})

		it.Confidence = min(it.Confidence+p.cfg.ClarificationBoost, confidenceCeiling)
		it.NeedsClarification = it.Confidence < p.cfg.ConfidenceThreshold &&
			len(it.ClarificationHistory) < p.cfg.MaxClarificationRounds

		logging.IntentDebug("clarification round %d for %s: confidence=%.2f",
			len(it.ClarificationHistory), it.ID, it.Confidence)
	}

	logging.Intent("intent %s clarified after %d rounds (confidence=%.2f)",
		it.ID, len(it.ClarificationHistory), it.Confidence)
	return nil
}

// clarificationQuestion picks the most useful question for the current state
// of the intent.
func (p *Parser) clarificationQuestion(it *Intent) string {
	switch {
	case it.Type == TypeGeneral:
		return "What kind of change do you want: creating something new, fixing a bug, or modifying existing behavior?"
	case it.Scope == "project":
		return fmt.Sprintf("Which part of the project should the %s work target?", it.Type)
	case len(it.Constraints) == 0:
		return "Are there constraints to respect, such as deadlines, scope limits, or required tests?"
	default:
		return fmt.Sprintf("Can you add detail to %q so the work can be scoped precisely?", it.RawInput)
	}
}
