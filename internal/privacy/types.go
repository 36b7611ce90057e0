package privacy

import (
	"strings"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RuleKind distinguishes literal keyword rules from regex rules
type RuleKind string

const (
	// RuleKeyword matches a literal substring
	RuleKeyword RuleKind = "keyword"
	// RuleRegex matches a compiled regular expression
	RuleRegex RuleKind = "regex"
)

// DefaultCategory is used when a rule carries no usable category
const DefaultCategory = "TEXT"

// Rule is a single immutable detection rule
type Rule struct {
	Kind     RuleKind
	Value    string // literal for keyword rules, normalized pattern for regex rules
	Flags    string
	Category string

	re *regexp2.Regexp
}

// SkippedRule records a regex rule that could not be compiled
type SkippedRule struct {
	Pattern  string
	Category string
	Err      error
}

// PatternSet is the compiled, read-only rule set shared by every redaction call
type PatternSet struct {
	Keywords []Rule
	Regex    []Rule
	Exclude  map[string]struct{}
	Skipped  []SkippedRule
}

// Excluded reports whether value must never be redacted
func (p *PatternSet) Excluded(value string) bool {
	_, ok := p.Exclude[value]
	return ok
}

// RuleCount returns the number of active rules
func (p *PatternSet) RuleCount() int {
	if p == nil {
		return 0
	}
	return len(p.Keywords) + len(p.Regex)
}

// Match is a planned substitution: a resolved, non-overlapping span of the input
type Match struct {
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Original    string `json:"-"` // never serialize the sensitive value
	Category    string `json:"category"`
	Placeholder string `json:"placeholder"`
}

// Result is the outcome of redacting a single string
type Result struct {
	Text    string  `json:"text"`
	Matches []Match `json:"matches"`
	// TimedOut lists categories whose regex search hit the match timeout and
	// skipped ahead; text in the skipped stretch may be left unredacted.
	TimedOut []string `json:"timed_out,omitempty"`
}

// Finding summarizes redactions of one category
type Finding struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// SanitizeCategory normalizes a category into an uppercase [A-Z0-9_] token
func SanitizeCategory(input string) string {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return DefaultCategory
	}

	var b strings.Builder
	b.Grow(len(raw))
	lastUnderscore := false
	// full case mapping, so ß becomes SS as in ECMAScript toUpperCase
	for _, r := range cases.Upper(language.Und).String(raw) {
		isWord := (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isWord {
			if lastUnderscore {
				continue
			}
			b.WriteByte('_')
			lastUnderscore = true
			continue
		}
		b.WriteRune(r)
		lastUnderscore = false
	}

	if b.Len() == 0 {
		return DefaultCategory
	}
	return b.String()
}
