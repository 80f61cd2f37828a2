package intent

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"forgeloop/internal/logging"
)

// ParserConfig bounds the clarification loop and fixes the scoring knobs.
type ParserConfig struct {
	// ConfidenceThreshold below which an intent needs clarification.
	ConfidenceThreshold float64
	// MaxClarificationRounds caps the Q&A loop.
	MaxClarificationRounds int
	// ClarificationBoost is added to confidence after each answered round,
	// capped at 0.95.
	ClarificationBoost float64
}

// DefaultParserConfig returns the stock thresholds.
func DefaultParserConfig() ParserConfig {
	return ParserConfig{
		ConfidenceThreshold:    0.7,
		MaxClarificationRounds: 3,
		ClarificationBoost:     0.15,
	}
}

// Parser turns raw input into structured intents. Parsing never fails:
// malformed or empty input simply yields low confidence and defers to the
// clarification loop.
type Parser struct {
	cfg ParserConfig
}

// NewParser creates a parser with the given config, applying defaults for
// zero values.
func NewParser(cfg ParserConfig) *Parser {
	def := DefaultParserConfig()
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if cfg.MaxClarificationRounds <= 0 {
		cfg.MaxClarificationRounds = def.MaxClarificationRounds
	}
	if cfg.ClarificationBoost <= 0 {
		cfg.ClarificationBoost = def.ClarificationBoost
	}
	return &Parser{cfg: cfg}
}

// Config returns the parser's effective config.
func (p *Parser) Config() ParserConfig {
	return p.cfg
}

// Scoring patterns. The heuristic is intentionally simple and deterministic:
// additive weights over fixed pattern sets, clamped to [0,1].
var (
	actionVerbPattern = regexp.MustCompile(`(?i)\b(create|build|implement|add|fix|update|refactor|test)\b`)
	technicalPattern  = regexp.MustCompile(`(?i)\b(api|endpoint|database|schema|function|class|component|module|interface|server|client|service|config|pipeline|deploy|docker|auth|cache|queue)\b`)
	constraintPattern = regexp.MustCompile(`(?i)\b(only|just|must|should|need|require)\b`)
	ambiguityPattern  = regexp.MustCompile(`(?i)\b(maybe|perhaps|something|whatever|anything)\b`)
	scopePattern      = regexp.MustCompile(`(?i)\b(?:for|in|to)\s+(?:the\s+)?(\w+(?:[ \t]+\w+){0,3})`)
	separatorPattern  = regexp.MustCompile(`(?i)\s+(?:and then|and|then)\s+|;|\n`)
)

// Parse builds an intent from raw input.
func (p *Parser) Parse(input string) *Intent {
	trimmed := strings.TrimSpace(input)
	confidence := ScoreConfidence(trimmed)

	it := &Intent{
		ID:          uuid.NewString(),
		RawInput:    input,
		Type:        classifyType(trimmed),
		Scope:       extractScope(trimmed),
		Constraints: extractConstraints(trimmed),
		Confidence:  confidence,
	}
	it.NeedsClarification = confidence < p.cfg.ConfidenceThreshold && p.cfg.MaxClarificationRounds > 0

	logging.IntentDebug("parsed intent %s: type=%s scope=%q confidence=%.2f clarify=%v",
		it.ID, it.Type, it.Scope, it.Confidence, it.NeedsClarification)
	return it
}

// ScoreConfidence scores how confidently the input can be acted on.
// Deterministic, always in [0,1].
func ScoreConfidence(input string) float64 {
	score := 0.5

	if len(input) > 50 {
		score += 0.1
	}
	if len(input) > 100 {
		score += 0.1
	}
	if actionVerbPattern.MatchString(input) {
		score += 0.15
	}
	if technicalPattern.MatchString(input) {
		score += 0.1
	}
	if constraintPattern.MatchString(input) {
		score += 0.05
	}
	if ambiguityPattern.MatchString(input) {
		score -= 0.15
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// classifyType does a priority-ordered keyword match. The first matching
// bucket wins; everything else is general.
func classifyType(input string) Type {
	lower := strings.ToLower(input)

	buckets := []struct {
		typ      Type
		keywords []string
	}{
		{TypeCreate, []string{"create", "build", "implement", "add", "new"}},
		{TypeFix, []string{"fix", "repair", "debug", "resolve", "bug"}},
		{TypeModify, []string{"update", "modify", "change", "refactor", "improve"}},
		{TypeTest, []string{"test", "verify", "validate", "coverage"}},
		{TypeReview, []string{"review", "audit", "inspect", "check"}},
		{TypeDeploy, []string{"deploy", "release", "publish", "ship"}},
	}

	for _, bucket := range buckets {
		for _, kw := range bucket.keywords {
			if strings.Contains(lower, kw) {
				return bucket.typ
			}
		}
	}
	return TypeGeneral
}

// extractScope pulls a short scope phrase out of the input, defaulting to
// "project" when nothing matches.
func extractScope(input string) string {
	m := scopePattern.FindStringSubmatch(input)
	if len(m) < 2 {
		return "project"
	}
	scope := strings.TrimSpace(m[1])
	if scope == "" {
		return "project"
	}
	return scope
}

// extractConstraints checks independent keyword buckets; multiple may apply.
func extractConstraints(input string) []string {
	lower := strings.ToLower(input)

	var constraints []string
	if containsAny(lower, "urgent", "asap", "quickly", "fast", "deadline") {
		constraints = append(constraints, ConstraintTimeSensitive)
	}
	if containsAny(lower, "high-quality", "high quality", "robust", "production-ready", "polished") {
		constraints = append(constraints, ConstraintHighQuality)
	}
	if containsAny(lower, "only", "just", "minimal", "small", "simple") {
		constraints = append(constraints, ConstraintMinimalScope)
	}
	if containsAny(lower, "test", "tested", "coverage", "tdd") {
		constraints = append(constraints, ConstraintTested)
	}
	return constraints
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// DetectMultiIntent splits compound input on conjunction, semicolon, and
// newline separators, keeping only fragments longer than 10 characters.
// When no split yields more than one fragment the original input is returned
// unchanged as a singleton.
func DetectMultiIntent(input string) []string {
	parts := separatorPattern.Split(input, -1)

	var fragments []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if len(part) > 10 {
			fragments = append(fragments, part)
		}
	}

	if len(fragments) <= 1 {
		return []string{input}
	}
	return fragments
}
