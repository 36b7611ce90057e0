package privacy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepTraversal(t *testing.T) {
	set := buildSet(t, PatternConfig{
		Keywords: []KeywordSpec{{Value: "s3cret", Category: "password"}},
		Builtin:  []string{"email"},
	})

	t.Run("NestedRoundTrip", func(t *testing.T) {
		session := newTestSession(SessionOptions{})
		value := map[string]any{
			"user": "ann@example.com",
			"args": []any{"--password", "s3cret", json.Number("42"), true, nil},
			"meta": map[string]any{
				"tags":  []string{"ann@example.com", "safe"},
				"inner": map[string]any{"note": "pw s3cret"},
			},
		}

		out := RedactDeep(value, set, session)
		redacted, ok := out.(map[string]any)
		require.True(t, ok)

		encoded, err := json.Marshal(redacted)
		require.NoError(t, err)
		assert.NotContains(t, string(encoded), "s3cret")
		assert.NotContains(t, string(encoded), "ann@example.com")
		assert.Equal(t, json.Number("42"), redacted["args"].([]any)[2])
		assert.Equal(t, "safe", redacted["meta"].(map[string]any)["tags"].([]string)[1])

		restored := RestoreDeep(redacted, session).(map[string]any)
		assert.Equal(t, "ann@example.com", restored["user"])
		assert.Equal(t, "s3cret", restored["args"].([]any)[1])
		assert.Equal(t, "pw s3cret", restored["meta"].(map[string]any)["inner"].(map[string]any)["note"])
		assert.Equal(t, []string{"ann@example.com", "safe"}, restored["meta"].(map[string]any)["tags"])
	})

	t.Run("TopLevelString", func(t *testing.T) {
		session := newTestSession(SessionOptions{})
		out := RedactDeep("mail ann@example.com", set, session)
		text, ok := out.(string)
		require.True(t, ok)
		assert.NotContains(t, text, "ann@example.com")
		assert.Equal(t, "mail ann@example.com", RestoreDeep(text, session))
	})

	t.Run("CycleTerminates", func(t *testing.T) {
		session := newTestSession(SessionOptions{})
		node := map[string]any{"secret": "s3cret"}
		node["self"] = node
		list := []any{"s3cret", nil}
		list[1] = list
		node["list"] = list

		out := RedactDeep(node, set, session).(map[string]any)
		assert.NotEqual(t, "s3cret", out["secret"])
		assert.NotEqual(t, "s3cret", list[0])

		RestoreDeep(node, session)
		assert.Equal(t, "s3cret", node["secret"])
		assert.Equal(t, "s3cret", list[0])
	})

	t.Run("SharedSubtreeVisitedOnce", func(t *testing.T) {
		session := newTestSession(SessionOptions{})
		shared := map[string]any{"v": "s3cret"}
		root := []any{shared, shared}

		_, matches, _ := RedactDeepMatches(root, set, session)
		assert.Len(t, matches, 1)
	})

	t.Run("DistinctEqualValuesBothVisited", func(t *testing.T) {
		session := newTestSession(SessionOptions{})
		root := []any{
			map[string]any{"v": "s3cret"},
			map[string]any{"v": "s3cret"},
		}

		_, matches, _ := RedactDeepMatches(root, set, session)
		assert.Len(t, matches, 2)
		for _, item := range root {
			assert.NotEqual(t, "s3cret", item.(map[string]any)["v"])
		}
	})

	t.Run("OpaqueValuesUntouched", func(t *testing.T) {
		session := newTestSession(SessionOptions{})
		type opaque struct{ Secret string }
		o := &opaque{Secret: "s3cret"}
		typed := map[string]string{"k": "s3cret"}
		root := []any{o, typed, 3.5}

		RedactDeep(root, set, session)
		assert.Equal(t, "s3cret", o.Secret)
		assert.Equal(t, "s3cret", typed["k"])
		assert.Equal(t, 3.5, root[2])
	})

	t.Run("NilSession", func(t *testing.T) {
		value := map[string]any{"v": "s3cret"}
		assert.Equal(t, value, RedactDeep(value, set, nil))
		assert.Equal(t, "s3cret", value["v"])
	})
}
