package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestore(t *testing.T) {
	set := buildSet(t, PatternConfig{
		Keywords: []KeywordSpec{
			{Value: "alpha", Category: "word"},
			{Value: "beta", Category: "word"},
		},
	})

	t.Run("AdjacentPlaceholders", func(t *testing.T) {
		session := newTestSession(SessionOptions{})
		result := Redact("alphabeta", set, session)
		require.Len(t, result.Matches, 2)

		assert.Equal(t, "alphabeta", Restore(result.Text, session))
	})

	t.Run("UnknownPlaceholderKept", func(t *testing.T) {
		session := newTestSession(SessionOptions{})
		unknown := DefaultPrefix + "EMAIL_0123456789ab__"
		text := "see " + unknown + " please"

		assert.Equal(t, text, Restore(text, session))
	})

	t.Run("MixedKnownAndUnknown", func(t *testing.T) {
		session := newTestSession(SessionOptions{})
		result := Redact("alpha", set, session)
		unknown := DefaultPrefix + "WORD_ffffffffffff__"

		restored := Restore(result.Text+" "+unknown, session)
		assert.Equal(t, "alpha "+unknown, restored)
	})

	t.Run("PlaceholderInsideModelOutput", func(t *testing.T) {
		session := newTestSession(SessionOptions{})
		result := Redact("alpha", set, session)

		reply := "Sure, I will email (" + result.Text + ")."
		assert.Equal(t, "Sure, I will email (alpha).", Restore(reply, session))
	})

	t.Run("OtherPrefixIgnored", func(t *testing.T) {
		session := newTestSession(SessionOptions{Prefix: "__X_"})
		other := newTestSession(SessionOptions{})
		token := other.GetOrCreatePlaceholder("alpha", "word")

		assert.Equal(t, token, Restore(token, session))
	})

	t.Run("CategoryEndingInHexSegment", func(t *testing.T) {
		hexy := buildSet(t, PatternConfig{
			Keywords: []KeywordSpec{{Value: "secret-v", Category: "id_202401011200_"}},
		})
		session := newTestSession(SessionOptions{})

		result := Redact("x secret-v y", hexy, session)
		require.Len(t, result.Matches, 1)
		assert.Contains(t, result.Text, DefaultPrefix+"ID_202401011200__")

		assert.Equal(t, "x secret-v y", Restore(result.Text, session))
		assert.Equal(t, "secret-vsecret-v", Restore(result.Matches[0].Placeholder+result.Matches[0].Placeholder, session))
	})

	t.Run("UnknownTokenBeforeKnownOne", func(t *testing.T) {
		session := newTestSession(SessionOptions{})
		result := Redact("alpha", set, session)
		unknown := DefaultPrefix + "WORD_ffffffffffff__"

		assert.Equal(t, unknown+"alpha", Restore(unknown+result.Text, session))
	})

	t.Run("NoPrefixFastPath", func(t *testing.T) {
		session := newTestSession(SessionOptions{})
		assert.Equal(t, "plain text", Restore("plain text", session))
		assert.Equal(t, "plain text", Restore("plain text", nil))
	})
}

func TestPlaceholderRecognizer(t *testing.T) {
	re := PlaceholderRecognizer(DefaultPrefix)
	assert.Same(t, re, PlaceholderRecognizer(DefaultPrefix))

	cases := map[string]bool{
		"__VG_EMAIL_0123456789ab__":     true,
		"__VG_API_KEY_0123456789AB__":   true,
		"__VG_TEXT_0123456789ab_2__":    true,
		"__VG_EMAIL_0123456789a__":      false,
		"__VG_EMAIL_0123456789abz__":    false,
		"__XX_EMAIL_0123456789ab__":     false,
		"__VG__0123456789ab__":          false,
		"__VG_EMAIL_0123456789ab_two__": false,
	}
	for input, want := range cases {
		m, err := re.FindStringMatch(input)
		require.NoError(t, err)
		got := m != nil && m.String() == input
		assert.Equal(t, want, got, input)
	}

	special := PlaceholderRecognizer("[[p.")
	ok, err := special.MatchString("[[p.X_0123456789ab__")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = special.MatchString("[[pzX_0123456789ab__")
	require.NoError(t, err)
	assert.False(t, ok)
}
