package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPatternSet(t *testing.T) {
	t.Run("NormalizesEntries", func(t *testing.T) {
		set := BuildPatternSet(PatternConfig{
			Keywords: []KeywordSpec{
				{Value: "  token-1  ", Category: "api key"},
				{Value: "   ", Category: "blank"},
				{Value: "x", Category: ""},
			},
			Regex: []RegexSpec{
				{Pattern: "  ", Category: "empty"},
				{Pattern: `(?i)(?m)^secret`, Category: "line"},
			},
			Builtin: []string{"email", "not_a_builtin", " ipv4 "},
			Exclude: []string{"127.0.0.1"},
		})

		require.Len(t, set.Keywords, 2)
		assert.Equal(t, "token-1", set.Keywords[0].Value)
		assert.Equal(t, "API_KEY", set.Keywords[0].Category)
		assert.Equal(t, DefaultCategory, set.Keywords[1].Category)

		require.Len(t, set.Regex, 3)
		assert.Equal(t, "^secret", set.Regex[0].Value)
		assert.Equal(t, "im", set.Regex[0].Flags)
		assert.Equal(t, "EMAIL", set.Regex[1].Category)
		assert.Equal(t, "IPV4", set.Regex[2].Category)

		assert.True(t, set.Excluded("127.0.0.1"))
		assert.Equal(t, 5, set.RuleCount())
		assert.Empty(t, set.Skipped)
	})

	t.Run("PeeledFlagsApply", func(t *testing.T) {
		set := BuildPatternSet(PatternConfig{
			Regex: []RegexSpec{{Pattern: `(?i)(?m)^secret\d+$`, Category: "line"}},
		})
		session := newTestSession(SessionOptions{})

		result := Redact("ok\nSECRET42\nsecret7", set, session)
		assert.Len(t, result.Matches, 2)
	})

	t.Run("DotAllFlag", func(t *testing.T) {
		set := BuildPatternSet(PatternConfig{
			Regex: []RegexSpec{
				{Pattern: `begin.end`, Flags: "s", Category: "block"},
				{Pattern: `open.close[.]`, Category: "line"},
			},
		})
		require.Empty(t, set.Skipped)
		session := newTestSession(SessionOptions{})

		result := Redact("begin\nend open\nclose.", set, session)
		require.Len(t, result.Matches, 1)
		assert.Equal(t, "BLOCK", result.Matches[0].Category)

		assert.Equal(t, `a[\s\S]b[.]\.`, dotAll(`a.b[.]\.`))
	})

	t.Run("InvalidRegexSkipped", func(t *testing.T) {
		set := BuildPatternSet(PatternConfig{
			Regex: []RegexSpec{
				{Pattern: `(unclosed`, Category: "broken"},
				{Pattern: `abc`, Flags: "q", Category: "badflag"},
				{Pattern: `abc`, Flags: "gu", Category: "fine"},
			},
		})

		require.Len(t, set.Skipped, 2)
		assert.Equal(t, "BROKEN", set.Skipped[0].Category)
		assert.Equal(t, "BADFLAG", set.Skipped[1].Category)
		require.Len(t, set.Regex, 1)
		assert.Equal(t, "FINE", set.Regex[0].Category)
	})

	t.Run("BuiltinNamesResolve", func(t *testing.T) {
		set := BuildPatternSet(PatternConfig{Builtin: BuiltinNames()})
		assert.Len(t, set.Regex, len(BuiltinNames()))
		assert.Empty(t, set.Skipped)
	})
}

func TestParsePatternConfig(t *testing.T) {
	raw := map[string]any{
		"keywords": []any{
			map[string]any{"value": "alpha", "category": "word"},
			"not an object",
			map[string]any{"value": 42, "category": "number"},
		},
		"regex": []any{
			map[string]any{"pattern": `\d+`, "flags": "i", "category": "digits"},
			map[string]any{"pattern": `x`, "flags": 7},
		},
		"builtin": []any{"email", "uuid"},
		"exclude": []string{"keep-me"},
	}

	cfg := ParsePatternConfig(raw)

	assert.Equal(t, []KeywordSpec{
		{Value: "alpha", Category: "word"},
		{Value: "42", Category: "number"},
	}, cfg.Keywords)
	assert.Equal(t, []RegexSpec{
		{Pattern: `\d+`, Flags: "i", Category: "digits"},
		{Pattern: `x`},
	}, cfg.Regex)
	assert.Equal(t, []string{"email", "uuid"}, cfg.Builtin)
	assert.Equal(t, []string{"keep-me"}, cfg.Exclude)

	t.Run("WrongShapes", func(t *testing.T) {
		assert.Equal(t, PatternConfig{}, ParsePatternConfig(nil))
		assert.Equal(t, PatternConfig{}, ParsePatternConfig("nope"))
		assert.Equal(t, PatternConfig{}, ParsePatternConfig(map[string]any{
			"keywords": map[string]any{"value": "x"},
			"regex":    "abc",
		}))
	})
}

func TestSanitizeCategory(t *testing.T) {
	cases := map[string]string{
		"api_key":       "API_KEY",
		"  email ":      "EMAIL",
		"credit-card #": "CREDIT_CARD_",
		"":              DefaultCategory,
		"   ":           DefaultCategory,
		"电话":            "_",
		"a--b":          "A_B",
		"straße":        "STRASSE",
	}
	for input, want := range cases {
		assert.Equal(t, want, SanitizeCategory(input), input)
	}
}
