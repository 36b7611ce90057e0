package privacy

import (
	"sort"
	"sync/atomic"

	"github.com/raaihank/vibeguard/internal/logger"
	"go.uber.org/zap"
)

// Detector owns the active pattern set and applies it on behalf of the host.
// The pattern set can be swapped at runtime when config is reloaded.
type Detector struct {
	enabled  atomic.Bool
	patterns atomic.Pointer[PatternSet]
	logger   *logger.Logger
}

// New creates a detector from a rule description
func New(enabled bool, cfg PatternConfig, log *logger.Logger) *Detector {
	d := &Detector{logger: log}
	d.Reload(enabled, cfg)
	return d
}

// Reload rebuilds the pattern set and atomically replaces the active one
func (d *Detector) Reload(enabled bool, cfg PatternConfig) {
	set := BuildPatternSet(cfg)

	for _, skipped := range set.Skipped {
		d.logger.Warn("Regex rule skipped",
			zap.String("category", skipped.Category),
			zap.Error(skipped.Err),
		)
	}

	d.patterns.Store(set)
	d.enabled.Store(enabled)

	d.logger.Info("Privacy detector initialized",
		zap.Bool("enabled", enabled),
		zap.Int("keyword_rules", len(set.Keywords)),
		zap.Int("regex_rules", len(set.Regex)),
		zap.Int("skipped_rules", len(set.Skipped)),
		zap.Int("excluded_values", len(set.Exclude)),
	)
}

// Enabled reports whether redaction is active
func (d *Detector) Enabled() bool {
	return d.enabled.Load()
}

// Patterns returns the active pattern set
func (d *Detector) Patterns() *PatternSet {
	return d.patterns.Load()
}

// RedactText redacts a single string
func (d *Detector) RedactText(text string, session *Session) Result {
	if !d.Enabled() {
		return Result{Text: text}
	}
	result := Redact(text, d.Patterns(), session)
	d.warnTimeouts(result.TimedOut)
	if len(result.Matches) > 0 {
		d.logger.Debug("Text redacted",
			zap.Int("replacements", len(result.Matches)),
			zap.Any("findings", Summarize(result.Matches)),
		)
	}
	return result
}

// RestoreText restores placeholders in a single string
func (d *Detector) RestoreText(text string, session *Session) string {
	if !d.Enabled() {
		return text
	}
	return Restore(text, session)
}

// RedactValue redacts every string inside a decoded JSON-like value and
// returns the per-category findings
func (d *Detector) RedactValue(value any, session *Session) (any, []Finding) {
	if !d.Enabled() {
		return value, []Finding{}
	}
	out, matches, timedOut := RedactDeepMatches(value, d.Patterns(), session)
	d.warnTimeouts(timedOut)
	findings := Summarize(matches)
	if len(matches) > 0 {
		d.logger.Debug("Value redacted",
			zap.Int("replacements", len(matches)),
			zap.Any("findings", findings),
		)
	}
	return out, findings
}

func (d *Detector) warnTimeouts(categories []string) {
	if len(categories) == 0 {
		return
	}
	d.logger.Warn("Regex search timed out, skipped to the next whitespace",
		zap.Strings("categories", categories),
		zap.Duration("match_timeout", matchTimeout),
	)
}

// RestoreValue restores every string inside a decoded JSON-like value
func (d *Detector) RestoreValue(value any, session *Session) any {
	if !d.Enabled() {
		return value
	}
	return RestoreDeep(value, session)
}

// Summarize counts substitutions per category, sorted by category
func Summarize(matches []Match) []Finding {
	if len(matches) == 0 {
		return []Finding{}
	}

	counts := make(map[string]int)
	for _, m := range matches {
		counts[m.Category]++
	}

	findings := make([]Finding, 0, len(counts))
	for category, count := range counts {
		findings = append(findings, Finding{Category: category, Count: count})
	}
	sort.Slice(findings, func(i, j int) bool {
		return findings[i].Category < findings[j].Category
	})
	return findings
}

// MergeFindings adds up findings lists, sorted by category
func MergeFindings(lists ...[]Finding) []Finding {
	counts := make(map[string]int)
	for _, list := range lists {
		for _, f := range list {
			counts[f.Category] += f.Count
		}
	}

	merged := make([]Finding, 0, len(counts))
	for category, count := range counts {
		merged = append(merged, Finding{Category: category, Count: count})
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Category < merged[j].Category
	})
	return merged
}
