package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raaihank/vibeguard/internal/cache"
	"github.com/raaihank/vibeguard/internal/privacy"
	"github.com/raaihank/vibeguard/internal/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	sessionKey
)

// SessionHeader carries the caller's conversation id
const SessionHeader = "X-Session-ID"

// sessionIDPaths are looked up in JSON request bodies when the header is absent
var sessionIDPaths = []string{"metadata.session_id", "metadata.user_id", "user"}

// requestSession is the session a proxied request was redacted with, kept on
// the context so the response can be restored against the same mappings
type requestSession struct {
	id      string
	session *privacy.Session
}

// loggingMiddleware logs HTTP requests and responses
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))
		w.Header().Set("X-Request-ID", requestID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		log := s.logger.WithRequestID(requestID)
		log.Debug("HTTP request started",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()),
		)

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		log.Info("HTTP request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status_code", rw.statusCode),
			zap.Duration("duration", duration),
			zap.Int("response_size", rw.size),
		)

		if err := s.stats.Increment(r.Context(), cache.TotalRequests, 1); err != nil {
			log.Warn("Failed to record request", zap.Error(err))
		}

		s.wsHub.BroadcastEvent(websocket.Event{
			Type:      websocket.EventTypeRequestLog,
			Timestamp: time.Now(),
			RequestID: requestID,
			Data: websocket.RequestLogEvent{
				RequestID:    requestID,
				Method:       r.Method,
				Path:         r.URL.Path,
				StatusCode:   rw.statusCode,
				ClientIP:     getClientIP(r),
				UserAgent:    r.UserAgent(),
				Duration:     duration,
				RequestSize:  r.ContentLength,
				ResponseSize: int64(rw.size),
			},
		})
	})
}

// rateLimitMiddleware rejects clients that exceed their token bucket
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(getClientIP(r)) {
			s.logger.WithRequestID(getRequestID(r.Context())).Warn("Rate limit exceeded",
				zap.String("client_ip", getClientIP(r)),
			)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// privacyMiddleware redacts the request body before it is proxied and puts
// the session on the context for the response to be restored with
func (s *Server) privacyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.detector.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		requestID := getRequestID(r.Context())
		log := s.logger.WithRequestID(requestID)

		body, err := readBody(w, r, s.cfg().Server.MaxBodyBytes)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			log.Error("Failed to read request body", zap.Error(err))
			writeError(w, http.StatusBadRequest, "failed to read request")
			return
		}

		rs := s.sessionForRequest(r, body)
		session := rs.session
		session.Sweep()

		start := time.Now()
		var findings []privacy.Finding
		switch {
		case len(body) == 0:
		case isJSON(r.Header.Get("Content-Type"), body):
			var redacted []byte
			redacted, findings, err = s.redactJSONBody(body, session)
			if err != nil {
				log.Warn("Request body is not valid JSON, redacting as text", zap.Error(err))
				redacted, findings = s.redactTextBody(body, session)
			}
			body = redacted
		default:
			body, findings = s.redactTextBody(body, session)
		}

		if len(findings) > 0 {
			log.WithSession(rs.id).Info("Sensitive values redacted from request",
				zap.Any("findings", findings),
			)
			s.recordRedaction(r.Context(), requestID, rs.id, "proxy", findings, time.Since(start))
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		r.Header.Del("Content-Length")

		ctx := context.WithValue(r.Context(), sessionKey, rs)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionForRequest resolves the session named by the X-Session-ID header or
// a well-known body field. Requests without one get a throwaway session that
// lives only as long as the request.
func (s *Server) sessionForRequest(r *http.Request, body []byte) requestSession {
	id := r.Header.Get(SessionHeader)
	if id == "" && gjson.ValidBytes(body) {
		for _, result := range gjson.GetManyBytes(body, sessionIDPaths...) {
			if result.Type == gjson.String && result.Str != "" {
				id = result.Str
				break
			}
		}
	}

	if session, ok := s.registry.Get(id); ok {
		return requestSession{id: id, session: session}
	}
	return requestSession{session: s.registry.Ephemeral()}
}

func (s *Server) redactJSONBody(body []byte, session *privacy.Session) ([]byte, []privacy.Finding, error) {
	value, err := privacy.DecodeDocument(body)
	if err != nil {
		return nil, nil, err
	}
	value, findings := s.detector.RedactValue(value, session)
	out, err := privacy.EncodeDocument(value, "")
	if err != nil {
		return nil, nil, err
	}
	return out, findings, nil
}

func (s *Server) redactTextBody(body []byte, session *privacy.Session) ([]byte, []privacy.Finding) {
	result := s.detector.RedactText(string(body), session)
	return []byte(result.Text), privacy.Summarize(result.Matches)
}

// recordRedaction counts findings and announces them to live clients
func (s *Server) recordRedaction(ctx context.Context, requestID, sessionID, source string, findings []privacy.Finding, took time.Duration) {
	if err := s.stats.RecordFindings(ctx, findings); err != nil {
		s.logger.WithRequestID(requestID).Warn("Failed to record findings", zap.Error(err))
	}

	total := 0
	for _, f := range findings {
		total += f.Count
	}
	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeRedaction,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data: websocket.RedactionEvent{
			SessionID:     sessionID,
			Source:        source,
			Findings:      findings,
			TotalFindings: total,
			ProcessingMS:  float64(took.Nanoseconds()) / 1e6,
		},
	})
}

// recordRestoration counts a restoration that changed something
func (s *Server) recordRestoration(ctx context.Context, requestID, sessionID, source string) {
	if err := s.stats.Increment(ctx, cache.TotalRestorations, 1); err != nil {
		s.logger.WithRequestID(requestID).Warn("Failed to record restoration", zap.Error(err))
	}
	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeRestoration,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data: websocket.RestorationEvent{
			SessionID: sessionID,
			Source:    source,
			Restored:  true,
		},
	})
}

// readBody reads the whole request body, bounded by limit when positive
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	reader := r.Body
	if limit > 0 {
		reader = http.MaxBytesReader(w, r.Body, limit)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// isJSON reports whether a body should be treated as a JSON document
func isJSON(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "json") {
		return true
	}
	return len(body) > 0 && gjson.ValidBytes(body)
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// responseWriter wraps http.ResponseWriter to capture response data
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// Flush lets streamed upstream responses reach the client as they arrive
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// getRequestID extracts request ID from context
func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return "unknown"
}

// sessionFromContext returns the session a proxied request was redacted with
func sessionFromContext(ctx context.Context) (requestSession, bool) {
	rs, ok := ctx.Value(sessionKey).(requestSession)
	return rs, ok
}
