package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/vibeguard/internal/cache"
	"github.com/raaihank/vibeguard/internal/config"
	"github.com/raaihank/vibeguard/internal/hooks"
	"github.com/raaihank/vibeguard/internal/logger"
	"github.com/raaihank/vibeguard/internal/privacy"
	"github.com/raaihank/vibeguard/internal/security"
	"github.com/raaihank/vibeguard/internal/sessions"
	"github.com/raaihank/vibeguard/internal/web"
	"github.com/raaihank/vibeguard/internal/websocket"
	"go.uber.org/zap"
)

// Version is reported by /info and the CLI
var Version = "0.1.0"

const statusInterval = 30 * time.Second

// Server is the redaction service: a JSON API for hosts plus a reverse proxy
// in front of LLM providers
type Server struct {
	config    atomic.Pointer[config.Config]
	logger    *logger.Logger
	detector  *privacy.Detector
	registry  *sessions.Registry
	hooks     *hooks.Hooks
	stats     cache.Recorder
	limiter   *security.RateLimiter
	router    *mux.Router
	server    *http.Server
	wsHub     *websocket.Hub
	transport *http.Transport
	startedAt time.Time

	cancel context.CancelFunc
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	detector := privacy.New(cfg.Enabled, privacy.ParsePatternConfig(cfg.Patterns), log.WithComponent("privacy"))

	registry := sessions.New(sessions.Config{
		Prefix:      cfg.Prefix(),
		TTL:         cfg.Session.TTLDuration(),
		MaxMappings: cfg.Session.MappingLimit(),
		MaxSessions: cfg.Sessions.MaxSessions,
		Lifetime:    cfg.Sessions.TTL,
	}, log.WithComponent("sessions"))

	var stats cache.Recorder = cache.NewMemoryStats()
	if cfg.Stats.Enabled {
		redisStats, err := cache.NewRedisStats(&cache.Config{
			RedisURL:  cfg.Stats.RedisURL,
			KeyPrefix: cfg.Stats.KeyPrefix,
		}, log.WithComponent("stats").Logger)
		if err != nil {
			log.Warn("Redis stats unavailable, counting in memory", zap.Error(err))
		} else {
			stats = redisStats
		}
	}

	wsHub := websocket.NewHub(&websocket.HubConfig{
		BroadcastRedactions:  cfg.WebSocket.Events.BroadcastRedactions,
		BroadcastRequests:    cfg.WebSocket.Events.BroadcastRequests,
		BroadcastSystem:      cfg.WebSocket.Events.BroadcastSystem,
		BroadcastConnections: cfg.WebSocket.Events.BroadcastConnections,
		Username:             cfg.WebSocket.Username,
		Password:             cfg.WebSocket.Password,
	}, log.WithComponent("websocket").Logger)

	server := &Server{
		logger:   log.WithComponent("proxy"),
		detector: detector,
		registry: registry,
		hooks:    hooks.New(detector, registry, log.WithComponent("hooks")),
		stats:    stats,
		limiter:  security.NewRateLimiter(cfg.RateLimit),
		router:   mux.NewRouter(),
		wsHub:    wsHub,
		transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: cfg.Upstream.Timeout,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   16,
		},
		startedAt: time.Now(),
	}

	server.config.Store(cfg)
	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")
	s.router.HandleFunc("/stats", s.handleStats).Methods("GET")

	if s.cfg().WebSocket.Enabled {
		s.router.HandleFunc(s.cfg().WebSocket.Path, s.wsHub.HandleWebSocket).Methods("GET")
		s.router.HandleFunc("/dashboard", web.DashboardHandler(s.cfg().WebSocket.Path)).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/redact", s.handleRedact).Methods("POST")
	api.HandleFunc("/restore", s.handleRestore).Methods("POST")
	api.HandleFunc("/hooks/chat.transform", s.handleChatTransform).Methods("POST")
	api.HandleFunc("/hooks/text.complete", s.handleTextComplete).Methods("POST")
	api.HandleFunc("/hooks/tool.before", s.handleToolBefore).Methods("POST")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	for _, provider := range []string{providerOpenAI, providerAnthropic, providerOllama} {
		sub := s.router.PathPrefix("/" + provider).Subrouter()
		sub.Use(s.loggingMiddleware)
		sub.Use(s.rateLimitMiddleware)
		sub.Use(s.privacyMiddleware)
		sub.PathPrefix("/").Handler(s.providerHandler(provider))
	}
}

// Start starts the HTTP server and the background workers
func (s *Server) Start() error {
	s.logger.Info("Starting VibeGuard server",
		zap.Int("port", s.cfg().Server.Port),
		zap.Bool("redaction_enabled", s.detector.Enabled()),
		zap.String("config_file", s.cfg().LoadedFrom),
		zap.String("upstream_openai", s.cfg().Upstream.OpenAI),
		zap.String("upstream_anthropic", s.cfg().Upstream.Anthropic),
		zap.String("upstream_ollama", s.cfg().Upstream.Ollama),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.wsHub.Run(ctx)
	s.limiter.StartCleanupRoutine(ctx.Done())
	go s.statusLoop(ctx)

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping VibeGuard server")
	if s.cancel != nil {
		s.cancel()
	}
	err := s.server.Shutdown(ctx)
	s.transport.CloseIdleConnections()
	if closeErr := s.stats.Close(); closeErr != nil {
		s.logger.Warn("Failed to close stats store", zap.Error(closeErr))
	}
	return err
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// cfg returns the configuration currently in effect
func (s *Server) cfg() *config.Config {
	return s.config.Load()
}

// Reload applies a changed configuration to the running server. Rules, the
// enabled flag, upstreams and request limits swap immediately; session
// options apply to new sessions. Listener and websocket settings need a
// restart.
func (s *Server) Reload(cfg *config.Config) {
	s.config.Store(cfg)
	s.detector.Reload(cfg.Enabled, privacy.ParsePatternConfig(cfg.Patterns))
	s.registry.Reconfigure(cfg.Prefix(), cfg.Session.TTLDuration(), cfg.Session.MappingLimit())
	s.logger.Info("Configuration reloaded", zap.String("config_file", cfg.LoadedFrom))
	s.broadcastStatus("reloaded")
}

// statusLoop periodically broadcasts a system status event
func (s *Server) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.broadcastStatus("running")
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) broadcastStatus(status string) {
	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeSystemStatus,
		Timestamp: time.Now(),
		Data: websocket.SystemStatusEvent{
			Status:           status,
			Uptime:           time.Since(s.startedAt).Round(time.Second).String(),
			ActiveSessions:   s.registry.Len(),
			ActiveRules:      s.detector.Patterns().RuleCount(),
			ConnectedClients: int(s.wsHub.GetStats().ActiveConnections),
		},
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	patterns := s.detector.Patterns()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":               "vibeguard",
		"version":            Version,
		"redaction_enabled":  s.detector.Enabled(),
		"placeholder_prefix": s.cfg().Prefix(),
		"keyword_rules":      len(patterns.Keywords),
		"regex_rules":        len(patterns.Regex),
		"skipped_rules":      len(patterns.Skipped),
		"active_sessions":    s.registry.Len(),
		"config_file":        s.cfg().LoadedFrom,
	})
}

// handleStats returns the redaction counters
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.stats.Snapshot(r.Context())
	if err != nil {
		s.logger.Error("Failed to read stats", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":     snapshot,
		"websocket": s.wsHub.GetStats(),
		"sessions":  s.registry.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
