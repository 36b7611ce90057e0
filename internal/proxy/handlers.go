package proxy

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/raaihank/vibeguard/internal/logger"
	"github.com/raaihank/vibeguard/internal/privacy"
	"go.uber.org/zap"
)

// Upstream providers, also used as path prefixes
const (
	providerOpenAI    = "openai"
	providerAnthropic = "anthropic"
	providerOllama    = "ollama"
)

func (s *Server) upstreamURL(provider string) string {
	switch provider {
	case providerOpenAI:
		return s.cfg().Upstream.OpenAI
	case providerAnthropic:
		return s.cfg().Upstream.Anthropic
	case providerOllama:
		return s.cfg().Upstream.Ollama
	default:
		return ""
	}
}

// providerHandler strips the provider prefix and forwards to its upstream
func (s *Server) providerHandler(provider string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target, err := url.Parse(s.upstreamURL(provider))
		if err != nil || target.Host == "" {
			s.logger.Error("Invalid upstream URL",
				zap.String("provider", provider),
				zap.String("upstream", s.upstreamURL(provider)),
				zap.Error(err),
			)
			writeError(w, http.StatusBadGateway, "upstream not configured")
			return
		}

		r.URL.Path = strings.TrimPrefix(r.URL.Path, "/"+provider)
		if r.URL.Path == "" {
			r.URL.Path = "/"
		}
		r.URL.RawPath = ""

		s.proxyRequest(w, r, target, provider)
	})
}

// proxyRequest proxies the request to the target URL
func (s *Server) proxyRequest(w http.ResponseWriter, r *http.Request, target *url.URL, provider string) {
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Header.Del(SessionHeader)
			// Let the transport negotiate compression so responses arrive
			// decoded and can be restored.
			pr.Out.Header.Del("Accept-Encoding")
			if pr.Out.Header.Get("User-Agent") == "" {
				pr.Out.Header.Set("User-Agent", "VibeGuard/"+Version)
			}

			log.Debug("Proxying request",
				zap.String("provider", provider),
				zap.String("target_url", pr.Out.URL.String()),
				zap.String("method", pr.Out.Method),
				zap.Any("headers", s.safeHeaders(pr.Out.Header)),
			)
		},
		Transport:      s.transport,
		FlushInterval:  -1,
		ModifyResponse: s.restoreResponse,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error("Proxy error",
				zap.String("provider", provider),
				zap.Error(err),
			)
			writeError(w, http.StatusBadGateway, fmt.Sprintf("proxy error: %v", err))
		},
	}

	start := time.Now()
	proxy.ServeHTTP(w, r)

	log.Info("Request proxied",
		zap.String("provider", provider),
		zap.Duration("upstream_duration", time.Since(start)),
	)
}

func (s *Server) safeHeaders(h http.Header) map[string]string {
	if !s.cfg().Debug {
		return nil
	}
	return logger.SafeHeaders(h)
}

// restoreResponse swaps placeholders in the upstream response back to the
// values they stand for. JSON bodies are restored value by value, event
// streams line by line as they arrive, other text verbatim.
func (s *Server) restoreResponse(resp *http.Response) error {
	rs, ok := sessionFromContext(resp.Request.Context())
	if !ok || !s.detector.Enabled() || resp.Body == nil {
		return nil
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		s.logger.Debug("Skipping restore of encoded response", zap.String("encoding", enc))
		return nil
	}

	ctx := resp.Request.Context()
	requestID := getRequestID(ctx)
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))

	if strings.Contains(contentType, "text/event-stream") {
		var once sync.Once
		resp.Body = newLineRestorer(resp.Body, func(line string) string {
			restored := s.restoreEventLine(line, rs.session)
			if restored != line {
				once.Do(func() { s.recordRestoration(ctx, requestID, rs.id, "proxy") })
			}
			return restored
		})
		resp.ContentLength = -1
		resp.Header.Del("Content-Length")
		return nil
	}

	if !strings.Contains(contentType, "json") && !strings.HasPrefix(contentType, "text/") {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read upstream response: %w", err)
	}

	restored := s.restoreBody(body, contentType, rs.session)
	if !bytes.Equal(restored, body) {
		s.recordRestoration(ctx, requestID, rs.id, "proxy")
	}

	resp.Body = io.NopCloser(bytes.NewReader(restored))
	resp.ContentLength = int64(len(restored))
	resp.Header.Set("Content-Length", strconv.Itoa(len(restored)))
	return nil
}

func (s *Server) restoreBody(body []byte, contentType string, session *privacy.Session) []byte {
	if strings.Contains(contentType, "json") {
		if value, err := privacy.DecodeDocument(body); err == nil {
			if out, err := privacy.EncodeDocument(s.detector.RestoreValue(value, session), ""); err == nil {
				return out
			}
		}
	}
	return []byte(s.detector.RestoreText(string(body), session))
}

// restoreEventLine restores one server-sent event line. JSON payloads are
// decoded first so restored values are escaped correctly.
func (s *Server) restoreEventLine(line string, session *privacy.Session) string {
	if !strings.Contains(line, session.Prefix()) {
		return line
	}

	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return s.detector.RestoreText(line, session)
	}

	trimmed := strings.TrimSpace(payload)
	value, err := privacy.DecodeDocument([]byte(trimmed))
	if err != nil {
		return s.detector.RestoreText(line, session)
	}
	out, err := privacy.EncodeDocument(s.detector.RestoreValue(value, session), "")
	if err != nil {
		return s.detector.RestoreText(line, session)
	}

	eol := payload[len(strings.TrimRight(payload, "\r\n")):]
	return "data: " + string(out) + eol
}

// lineRestorer rewrites a stream one line at a time
type lineRestorer struct {
	src     io.ReadCloser
	reader  *bufio.Reader
	rewrite func(string) string
	pending []byte
	err     error
}

func newLineRestorer(src io.ReadCloser, rewrite func(string) string) *lineRestorer {
	return &lineRestorer{
		src:     src,
		reader:  bufio.NewReader(src),
		rewrite: rewrite,
	}
}

func (l *lineRestorer) Read(p []byte) (int, error) {
	for len(l.pending) == 0 {
		if l.err != nil {
			return 0, l.err
		}
		line, err := l.reader.ReadString('\n')
		if line != "" {
			l.pending = []byte(l.rewrite(line))
		}
		l.err = err
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

func (l *lineRestorer) Close() error {
	return l.src.Close()
}
