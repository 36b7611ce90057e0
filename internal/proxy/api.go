package proxy

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/vibeguard/internal/privacy"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// valueRequest is the body of /v1/redact and /v1/restore. Exactly one of
// Text or Value is used; Text wins when both are present.
type valueRequest struct {
	SessionID string
	Text      *string
	Value     any
}

type valueResponse struct {
	SessionID string            `json:"session_id"`
	Text      *string           `json:"text,omitempty"`
	Value     any               `json:"value,omitempty"`
	Findings  []privacy.Finding `json:"findings,omitempty"`
}

var errSessionRequired = errors.New("session_id is required")

// readValueRequest decodes a valueRequest, keeping numbers in Value exact
func (s *Server) readValueRequest(w http.ResponseWriter, r *http.Request) (valueRequest, error) {
	var req valueRequest

	body, err := readBody(w, r, s.cfg().Server.MaxBodyBytes)
	if err != nil {
		return req, err
	}
	if !gjson.ValidBytes(body) {
		return req, errors.New("body must be a JSON object")
	}

	req.SessionID = gjson.GetBytes(body, "session_id").String()
	if req.SessionID == "" {
		req.SessionID = r.Header.Get(SessionHeader)
	}
	if req.SessionID == "" {
		return req, errSessionRequired
	}

	if text := gjson.GetBytes(body, "text"); text.Type == gjson.String {
		req.Text = &text.Str
		return req, nil
	}
	if raw := gjson.GetBytes(body, "value"); raw.Exists() {
		req.Value, err = privacy.DecodeDocument([]byte(raw.Raw))
		if err != nil {
			return req, err
		}
		return req, nil
	}
	return req, errors.New("text or value is required")
}

// handleRedact replaces sensitive values with placeholders bound to the session
func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	req, err := s.readValueRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, _ := s.registry.Get(req.SessionID)
	session.Sweep()

	start := time.Now()
	resp := valueResponse{SessionID: req.SessionID}
	if req.Text != nil {
		result := s.detector.RedactText(*req.Text, session)
		resp.Text = &result.Text
		resp.Findings = privacy.Summarize(result.Matches)
	} else {
		resp.Value, resp.Findings = s.detector.RedactValue(req.Value, session)
	}

	if len(resp.Findings) > 0 {
		s.recordRedaction(r.Context(), getRequestID(r.Context()), req.SessionID, "api", resp.Findings, time.Since(start))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRestore swaps placeholders back using the session's mappings
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	req, err := s.readValueRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := valueResponse{SessionID: req.SessionID}
	session, ok := s.registry.Peek(req.SessionID)
	if !ok {
		// Nothing was ever redacted under this id, so there is nothing to restore.
		resp.Text, resp.Value = req.Text, req.Value
		writeJSON(w, http.StatusOK, resp)
		return
	}
	session.Sweep()

	changed := false
	if req.Text != nil {
		restored := s.detector.RestoreText(*req.Text, session)
		changed = restored != *req.Text
		resp.Text = &restored
	} else {
		before, _ := privacy.EncodeDocument(req.Value, "")
		resp.Value = s.detector.RestoreValue(req.Value, session)
		after, _ := privacy.EncodeDocument(resp.Value, "")
		changed = string(before) != string(after)
	}

	if changed {
		s.recordRestoration(r.Context(), getRequestID(r.Context()), req.SessionID, "api")
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleChatTransform runs the pre-send hook over a host's message list
func (s *Server) handleChatTransform(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, s.cfg().Server.MaxBodyBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request")
		return
	}
	if !gjson.GetBytes(body, "messages").IsArray() {
		writeError(w, http.StatusBadRequest, "messages must be an array")
		return
	}

	value, err := privacy.DecodeDocument([]byte(gjson.GetBytes(body, "messages").Raw))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	messages, _ := value.([]any)

	start := time.Now()
	report := s.hooks.ChatTransform(messages)
	if len(report.Findings) > 0 {
		s.recordRedaction(r.Context(), getRequestID(r.Context()), report.SessionID, "hook", report.Findings, time.Since(start))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"report":   report,
	})
}

// handleTextComplete runs the completion hook, restoring the model's text
func (s *Server) handleTextComplete(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, s.cfg().Server.MaxBodyBytes)
	if err != nil || !gjson.ValidBytes(body) {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	fields := gjson.GetManyBytes(body, "session_id", "text")
	sessionID, text := fields[0].String(), fields[1].String()

	restored, report := s.hooks.TextComplete(sessionID, text)
	if report.Changed > 0 {
		s.recordRestoration(r.Context(), getRequestID(r.Context()), sessionID, "hook")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"text":   restored,
		"report": report,
	})
}

// handleToolBefore restores placeholders in tool arguments before execution
func (s *Server) handleToolBefore(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, s.cfg().Server.MaxBodyBytes)
	if err != nil || !gjson.ValidBytes(body) {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	sessionID := gjson.GetBytes(body, "session_id").String()
	var args any
	if raw := gjson.GetBytes(body, "args"); raw.Exists() {
		if args, err = privacy.DecodeDocument([]byte(raw.Raw)); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	args = s.hooks.ToolExecuteBefore(sessionID, args)
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"args":       args,
	})
}

// handleDeleteSession drops a session and all of its mappings
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.registry.Remove(id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.logger.Info("Session removed", zap.String("session_id", id))
	w.WriteHeader(http.StatusNoContent)
}
