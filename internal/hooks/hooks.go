// Package hooks applies redaction and restoration at the points where a chat
// host hands data across the trust boundary: before messages are sent to the
// model, after the model's text is complete, and before a tool runs locally.
package hooks

import (
	"github.com/raaihank/vibeguard/internal/logger"
	"github.com/raaihank/vibeguard/internal/privacy"
	"github.com/raaihank/vibeguard/internal/sessions"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// Part types that carry model-visible text
const (
	PartText      = "text"
	PartReasoning = "reasoning"
	PartTool      = "tool"
)

// Report describes what a hook changed. It never carries original values.
type Report struct {
	SessionID string            `json:"session_id"`
	Changed   int               `json:"changed"`
	Findings  []privacy.Finding `json:"findings"`
}

// Hooks binds a detector to the session registry
type Hooks struct {
	detector *privacy.Detector
	registry *sessions.Registry
	logger   *logger.Logger
}

// New creates the lifecycle hooks
func New(detector *privacy.Detector, registry *sessions.Registry, log *logger.Logger) *Hooks {
	return &Hooks{
		detector: detector,
		registry: registry,
		logger:   log,
	}
}

// SessionIDFromMessages finds the conversation id on the first message,
// either in info.sessionID or in the first part's sessionID.
func SessionIDFromMessages(messages []any) string {
	if len(messages) == 0 {
		return ""
	}
	first, ok := messages[0].(map[string]any)
	if !ok {
		return ""
	}

	if info, ok := first["info"].(map[string]any); ok {
		if id := cast.ToString(info["sessionID"]); id != "" {
			return id
		}
	}

	if parts, ok := first["parts"].([]any); ok && len(parts) > 0 {
		if part, ok := parts[0].(map[string]any); ok {
			return cast.ToString(part["sessionID"])
		}
	}

	return ""
}

// ChatTransform redacts, in place, every part of messages that will be sent
// to the model: text and reasoning parts, and tool inputs, outputs, errors
// and pending raw input. Without a session id it does nothing.
func (h *Hooks) ChatTransform(messages []any) Report {
	report := Report{Findings: []privacy.Finding{}}
	if !h.detector.Enabled() || len(messages) == 0 {
		return report
	}

	report.SessionID = SessionIDFromMessages(messages)
	session, ok := h.registry.Get(report.SessionID)
	if !ok {
		return report
	}
	session.Sweep()

	var matches []privacy.Match
	var inputFindings []privacy.Finding
	redactField := func(holder map[string]any, key string) bool {
		before, ok := holder[key].(string)
		if !ok || before == "" {
			return false
		}
		result := h.detector.RedactText(before, session)
		holder[key] = result.Text
		matches = append(matches, result.Matches...)
		if result.Text != before {
			report.Changed++
		}
		return true
	}

	for _, rawMsg := range messages {
		msg, ok := rawMsg.(map[string]any)
		if !ok {
			continue
		}
		parts, _ := msg["parts"].([]any)
		for _, rawPart := range parts {
			part, ok := rawPart.(map[string]any)
			if !ok {
				continue
			}

			switch part["type"] {
			case PartText:
				if ignored, _ := part["ignored"].(bool); ignored {
					continue
				}
				redactField(part, "text")
			case PartReasoning:
				redactField(part, "text")
			case PartTool:
				inputFindings = append(inputFindings, h.redactToolState(part, session, redactField)...)
			}
		}
	}

	report.Findings = privacy.MergeFindings(privacy.Summarize(matches), inputFindings)
	if report.Changed > 0 {
		h.logger.Debug("Messages redacted before request",
			zap.String("session_id", report.SessionID),
			zap.Int("changed_parts", report.Changed),
			zap.Any("findings", report.Findings),
		)
	}
	return report
}

// redactToolState redacts the tool input on every turn, since the executed
// arguments were restored to plaintext locally, then the one text field that
// matches the call status.
func (h *Hooks) redactToolState(part map[string]any, session *privacy.Session, redactField func(map[string]any, string) bool) []privacy.Finding {
	state, ok := part["state"].(map[string]any)
	if !ok {
		return nil
	}

	var findings []privacy.Finding
	switch input := state["input"].(type) {
	case map[string]any, []any:
		state["input"], findings = h.detector.RedactValue(input, session)
	}

	switch state["status"] {
	case "completed":
		redactField(state, "output")
	case "error":
		redactField(state, "error")
	case "pending":
		redactField(state, "raw")
	}
	return findings
}

// TextComplete restores placeholders in the model's finished text
func (h *Hooks) TextComplete(sessionID, text string) (string, Report) {
	report := Report{SessionID: sessionID, Findings: []privacy.Finding{}}
	if !h.detector.Enabled() || text == "" {
		return text, report
	}

	session, ok := h.registry.Get(sessionID)
	if !ok {
		return text, report
	}
	session.Sweep()

	restored := h.detector.RestoreText(text, session)
	if restored != text {
		report.Changed = 1
		h.logger.Debug("Completed text restored", zap.String("session_id", sessionID))
	}
	return restored, report
}

// ToolExecuteBefore restores placeholders inside tool arguments so the tool
// runs against real values. args is modified in place and also returned.
func (h *Hooks) ToolExecuteBefore(sessionID string, args any) any {
	if !h.detector.Enabled() {
		return args
	}

	session, ok := h.registry.Get(sessionID)
	if !ok {
		return args
	}
	session.Sweep()

	return h.detector.RestoreValue(args, session)
}
