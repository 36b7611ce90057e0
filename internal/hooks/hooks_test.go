package hooks

import (
	"strings"
	"testing"

	"github.com/raaihank/vibeguard/internal/logger"
	"github.com/raaihank/vibeguard/internal/privacy"
	"github.com/raaihank/vibeguard/internal/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHooks(enabled bool) (*Hooks, *sessions.Registry) {
	detector := privacy.New(enabled, privacy.PatternConfig{
		Keywords: []privacy.KeywordSpec{{Value: "sk-live-123", Category: "api_key"}},
		Builtin:  []string{"email"},
	}, logger.NewNop())
	registry := sessions.New(sessions.Config{Prefix: "__VG_", MaxMappings: 100}, logger.NewNop())
	return New(detector, registry, logger.NewNop()), registry
}

func sampleMessages() []any {
	return []any{
		map[string]any{
			"info": map[string]any{"sessionID": "ses_1", "role": "user"},
			"parts": []any{
				map[string]any{"type": "text", "text": "my key is sk-live-123"},
				map[string]any{"type": "text", "text": "ignored sk-live-123", "ignored": true},
				map[string]any{"type": "reasoning", "text": "user wrote to ann@example.com"},
				map[string]any{
					"type": "tool",
					"state": map[string]any{
						"status": "completed",
						"input":  map[string]any{"to": "ann@example.com"},
						"output": "sent to ann@example.com",
					},
				},
				map[string]any{
					"type": "tool",
					"state": map[string]any{
						"status": "error",
						"input":  []any{"sk-live-123"},
						"error":  "bad key sk-live-123",
						"output": "sk-live-123",
					},
				},
				map[string]any{
					"type":  "tool",
					"state": map[string]any{"status": "pending", "raw": "{\"k\":\"sk-live-123\"}"},
				},
				map[string]any{"type": "file", "url": "file://ann@example.com"},
			},
		},
	}
}

func part(messages []any, i int) map[string]any {
	return messages[0].(map[string]any)["parts"].([]any)[i].(map[string]any)
}

func state(messages []any, i int) map[string]any {
	return part(messages, i)["state"].(map[string]any)
}

func TestSessionIDFromMessages(t *testing.T) {
	assert.Equal(t, "ses_1", SessionIDFromMessages(sampleMessages()))
	assert.Equal(t, "ses_2", SessionIDFromMessages([]any{
		map[string]any{"parts": []any{map[string]any{"sessionID": "ses_2"}}},
	}))
	assert.Empty(t, SessionIDFromMessages(nil))
	assert.Empty(t, SessionIDFromMessages([]any{"not a message"}))
}

func TestChatTransform(t *testing.T) {
	h, registry := newTestHooks(true)
	messages := sampleMessages()

	report := h.ChatTransform(messages)

	assert.Equal(t, "ses_1", report.SessionID)
	assert.NotContains(t, part(messages, 0)["text"], "sk-live-123")
	assert.Equal(t, "ignored sk-live-123", part(messages, 1)["text"])
	assert.NotContains(t, part(messages, 2)["text"], "ann@example.com")

	assert.NotContains(t, state(messages, 3)["input"].(map[string]any)["to"], "ann@example.com")
	assert.NotContains(t, state(messages, 3)["output"], "ann@example.com")

	assert.NotContains(t, state(messages, 4)["input"].([]any)[0], "sk-live-123")
	assert.NotContains(t, state(messages, 4)["error"], "sk-live-123")
	assert.Equal(t, "sk-live-123", state(messages, 4)["output"], "output of a failed call is left alone")

	assert.NotContains(t, state(messages, 5)["raw"], "sk-live-123")
	assert.Equal(t, "file://ann@example.com", part(messages, 6)["url"])

	assert.Equal(t, 5, report.Changed)
	assert.Equal(t, []privacy.Finding{
		{Category: "API_KEY", Count: 4},
		{Category: "EMAIL", Count: 3},
	}, report.Findings)

	session, ok := registry.Peek("ses_1")
	require.True(t, ok)
	assert.Equal(t, 2, session.Len())
}

func TestChatTransformWithoutSession(t *testing.T) {
	h, registry := newTestHooks(true)
	messages := []any{
		map[string]any{"parts": []any{map[string]any{"type": "text", "text": "sk-live-123"}}},
	}

	report := h.ChatTransform(messages)

	assert.Equal(t, "sk-live-123", part(messages, 0)["text"])
	assert.Zero(t, report.Changed)
	assert.Zero(t, registry.Len())
}

func TestChatTransformDisabled(t *testing.T) {
	h, _ := newTestHooks(false)
	messages := sampleMessages()

	report := h.ChatTransform(messages)

	assert.Equal(t, "my key is sk-live-123", part(messages, 0)["text"])
	assert.Zero(t, report.Changed)
	assert.Empty(t, report.Findings)
}

func TestRoundTripThroughHooks(t *testing.T) {
	h, _ := newTestHooks(true)
	messages := sampleMessages()
	h.ChatTransform(messages)

	redacted := part(messages, 0)["text"].(string)
	token := strings.TrimPrefix(redacted, "my key is ")

	text, report := h.TextComplete("ses_1", "I will use "+token+" now")
	assert.Equal(t, "I will use sk-live-123 now", text)
	assert.Equal(t, 1, report.Changed)

	args := map[string]any{"headers": map[string]any{"Authorization": "Bearer " + token}}
	out := h.ToolExecuteBefore("ses_1", args).(map[string]any)
	assert.Equal(t, "Bearer sk-live-123", out["headers"].(map[string]any)["Authorization"])

	// A different conversation cannot resolve the token.
	text, _ = h.TextComplete("ses_other", token)
	assert.Equal(t, token, text)

	text, report = h.TextComplete("", token)
	assert.Equal(t, token, text)
	assert.Zero(t, report.Changed)
}
