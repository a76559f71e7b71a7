package pipeline

import (
	"regexp"
	"strings"
)

// synonyms is the static query-expansion dictionary. Kept small and
// domain-neutral.
var synonyms = map[string][]string{
	"config": {"configuration", "settings"},
	"docs":   {"documentation"},
	"init":   {"initialize", "setup"},
	"auth":   {"authentication", "authorization"},
	"db":     {"database"},
	"err":    {"error"},
	"perf":   {"performance"},
	"arch":   {"architecture"},
}

var whitespacePattern = regexp.MustCompile(`\s+`)

var codeIndicators = []string{"function", "func ", "class ", "error:", "exception", "stack trace", "panic:", "```", "npm ", "pip ", "go run", "import "}
var troubleshootingIndicators = []string{"fail", "error", "bug", "broken", "crash", "not working", "doesn't work", "issue"}
var navigationIndicators = []string{"where is", "find", "locate", "list of", "index of"}
var technicalIndicators = []string{"api", "endpoint", "schema", "protocol", "algorithm", "implementation"}

// EnhanceStep normalizes whitespace, lowercases the text used for matching
// (the original case survives on Context.Query.Text for display), expands a
// small static synonym dictionary, and classifies intent.
type EnhanceStep struct{}

func (EnhanceStep) Name() string { return "enhance" }

func (EnhanceStep) Run(sc *Context) error {
	normalized := whitespacePattern.ReplaceAllString(strings.TrimSpace(sc.Query.Text), " ")
	lower := strings.ToLower(normalized)

	var expanded []string
	for _, tok := range strings.Fields(lower) {
		expanded = append(expanded, tok)
		if syns, ok := synonyms[tok]; ok {
			expanded = append(expanded, syns...)
		}
	}

	sc.Enhanced = EnhancedQuery{
		Text:   strings.Join(expanded, " "),
		Intent: classifyIntent(lower),
	}
	return nil
}

func classifyIntent(lower string) QueryIntent {
	switch {
	case containsAny(lower, codeIndicators):
		return IntentCode
	case containsAny(lower, troubleshootingIndicators):
		return IntentTroubleshooting
	case containsAny(lower, navigationIndicators):
		return IntentNavigation
	case containsAny(lower, technicalIndicators):
		return IntentTechnical
	default:
		return IntentConceptual
	}
}

func containsAny(s string, indicators []string) bool {
	for _, ind := range indicators {
		if strings.Contains(s, ind) {
			return true
		}
	}
	return false
}
