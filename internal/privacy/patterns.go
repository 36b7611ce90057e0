package privacy

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/spf13/cast"
)

// matchTimeout bounds a single regex search so a pathological user pattern
// cannot stall a redaction call.
const matchTimeout = 500 * time.Millisecond

// KeywordSpec is a literal rule as written in config
type KeywordSpec struct {
	Value    string `json:"value" mapstructure:"value"`
	Category string `json:"category" mapstructure:"category"`
}

// RegexSpec is a regex rule as written in config
type RegexSpec struct {
	Pattern  string `json:"pattern" mapstructure:"pattern"`
	Flags    string `json:"flags" mapstructure:"flags"`
	Category string `json:"category" mapstructure:"category"`
}

// PatternConfig is the user-facing rule description
type PatternConfig struct {
	Keywords []KeywordSpec `json:"keywords" mapstructure:"keywords"`
	Regex    []RegexSpec   `json:"regex" mapstructure:"regex"`
	Builtin  []string      `json:"builtin" mapstructure:"builtin"`
	Exclude  []string      `json:"exclude" mapstructure:"exclude"`
}

// ParsePatternConfig decodes a loosely-typed rule tree (as produced by a JSON
// or YAML decoder). Entries of the wrong shape are dropped rather than failing
// the whole config.
func ParsePatternConfig(raw any) PatternConfig {
	var cfg PatternConfig

	root, err := cast.ToStringMapE(raw)
	if err != nil {
		return cfg
	}

	for _, item := range toSlice(root["keywords"]) {
		entry, err := cast.ToStringMapE(item)
		if err != nil {
			continue
		}
		cfg.Keywords = append(cfg.Keywords, KeywordSpec{
			Value:    cast.ToString(entry["value"]),
			Category: cast.ToString(entry["category"]),
		})
	}

	for _, item := range toSlice(root["regex"]) {
		entry, err := cast.ToStringMapE(item)
		if err != nil {
			continue
		}
		spec := RegexSpec{
			Pattern:  cast.ToString(entry["pattern"]),
			Category: cast.ToString(entry["category"]),
		}
		// non-string flags are treated as absent
		if flags, ok := entry["flags"].(string); ok {
			spec.Flags = flags
		}
		cfg.Regex = append(cfg.Regex, spec)
	}

	for _, item := range toSlice(root["builtin"]) {
		cfg.Builtin = append(cfg.Builtin, cast.ToString(item))
	}

	for _, item := range toSlice(root["exclude"]) {
		cfg.Exclude = append(cfg.Exclude, cast.ToString(item))
	}

	return cfg
}

func toSlice(v any) []any {
	switch items := v.(type) {
	case nil, map[string]any:
		return nil
	case []any:
		return items
	case []string:
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out
	}
	items, err := cast.ToSliceE(v)
	if err != nil {
		return nil
	}
	return items
}

// BuildPatternSet compiles a rule description into an immutable PatternSet.
// Empty entries are dropped, unknown builtins ignored, and regexes that fail
// to compile are recorded in Skipped instead of aborting the build.
func BuildPatternSet(cfg PatternConfig) *PatternSet {
	set := &PatternSet{
		Keywords: make([]Rule, 0, len(cfg.Keywords)),
		Regex:    make([]Rule, 0, len(cfg.Regex)+len(cfg.Builtin)),
		Exclude:  make(map[string]struct{}, len(cfg.Exclude)),
	}

	for _, kw := range cfg.Keywords {
		value := strings.TrimSpace(kw.Value)
		if value == "" {
			continue
		}
		set.Keywords = append(set.Keywords, Rule{
			Kind:     RuleKeyword,
			Value:    value,
			Category: SanitizeCategory(kw.Category),
		})
	}

	for _, rx := range cfg.Regex {
		pattern := strings.TrimSpace(rx.Pattern)
		if pattern == "" {
			continue
		}
		pattern, flags := peelInlineFlags(pattern, rx.Flags)
		set.addRegex(pattern, flags, SanitizeCategory(rx.Category))
	}

	for _, name := range cfg.Builtin {
		rule, ok := builtinRules[strings.TrimSpace(name)]
		if !ok {
			continue
		}
		set.addRegex(rule.pattern, rule.flags, rule.category)
	}

	for _, value := range cfg.Exclude {
		set.Exclude[value] = struct{}{}
	}

	return set
}

func (p *PatternSet) addRegex(pattern, flags, category string) {
	re, err := compileRule(pattern, flags)
	if err != nil {
		p.Skipped = append(p.Skipped, SkippedRule{Pattern: pattern, Category: category, Err: err})
		return
	}
	p.Regex = append(p.Regex, Rule{
		Kind:     RuleRegex,
		Value:    pattern,
		Flags:    flags,
		Category: category,
		re:       re,
	})
}

// peelInlineFlags folds a leading run of (?i) / (?m) groups into flags, for
// rule sets written against engines that only support inline flags.
func peelInlineFlags(pattern, flags string) (string, string) {
	for {
		switch {
		case strings.HasPrefix(pattern, "(?i)"):
			pattern = pattern[4:]
			if !strings.Contains(flags, "i") {
				flags += "i"
			}
		case strings.HasPrefix(pattern, "(?m)"):
			pattern = pattern[4:]
			if !strings.Contains(flags, "m") {
				flags += "m"
			}
		default:
			return pattern, flags
		}
	}
}

// compileRule compiles with ECMAScript semantics: \d, \w, \s and \b are
// ASCII-only, as rule sets for this format are written.
func compileRule(pattern, flags string) (*regexp2.Regexp, error) {
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	for _, f := range flags {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			// ECMAScript mode ignores Singleline
			pattern = dotAll(pattern)
		case 'g', 'u', 'y':
			// global search is implied; the rest have no equivalent
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", f)
		}
	}

	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern: %w", err)
	}
	re.MatchTimeout = matchTimeout
	return re, nil
}

// dotAll rewrites every unescaped '.' outside a character class to [\s\S]
func dotAll(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern))
	escaped, inClass := false, false
	for _, r := range pattern {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '[':
			inClass = true
		case r == ']':
			inClass = false
		case r == '.' && !inClass:
			b.WriteString(`[\s\S]`)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
