// Package sessions keeps one placeholder session per conversation for the
// lifetime of the process.
package sessions

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/raaihank/vibeguard/internal/logger"
	"github.com/raaihank/vibeguard/internal/privacy"
	"go.uber.org/zap"
)

// Config controls how sessions are created and retained
type Config struct {
	Prefix      string
	TTL         time.Duration // per-mapping TTL inside a session
	MaxMappings int
	MaxSessions int              // zero means unbounded
	Lifetime    time.Duration    // whole-session lifetime; zero keeps sessions until evicted
	Clock       func() time.Time // mapping clock for new sessions; nil uses the wall clock
}

// Registry is a bounded, process-wide cache of sessions keyed by the caller's
// session identifier. Sessions are created lazily on first use.
type Registry struct {
	mu     sync.Mutex
	cache  *expirable.LRU[string, *privacy.Session]
	config Config
	logger *logger.Logger
}

// New creates an empty registry
func New(cfg Config, log *logger.Logger) *Registry {
	r := &Registry{
		config: cfg,
		logger: log,
	}
	r.cache = expirable.NewLRU[string, *privacy.Session](cfg.MaxSessions, r.onEvict, cfg.Lifetime)
	return r
}

func (r *Registry) onEvict(id string, session *privacy.Session) {
	r.logger.Debug("Session discarded",
		zap.String("session_id", id),
		zap.Int("mappings", session.Len()),
	)
}

// Get returns the session for id, creating it on first use. An empty id has
// no session.
func (r *Registry) Get(id string) (*privacy.Session, bool) {
	if id == "" {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.cache.Get(id); ok {
		return session, true
	}

	session := r.create()
	r.cache.Add(id, session)
	r.logger.Debug("Session created", zap.String("session_id", id))
	return session, true
}

// Peek returns an existing session without creating one
func (r *Registry) Peek(id string) (*privacy.Session, bool) {
	return r.cache.Peek(id)
}

// Ephemeral returns a fresh session that is not registered, for requests
// that carry no session identifier.
func (r *Registry) Ephemeral() *privacy.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.create()
}

// Remove drops the session for id, reporting whether it existed
func (r *Registry) Remove(id string) bool {
	return r.cache.Remove(id)
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Purge drops every session
func (r *Registry) Purge() {
	r.cache.Purge()
}

// Reconfigure changes the options used for sessions created from now on.
// Existing sessions keep their prefix and limits.
func (r *Registry) Reconfigure(prefix string, ttl time.Duration, maxMappings int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.Prefix = prefix
	r.config.TTL = ttl
	r.config.MaxMappings = maxMappings
}

func (r *Registry) create() *privacy.Session {
	return privacy.NewSession(privacy.SessionOptions{
		Prefix:      r.config.Prefix,
		TTL:         r.config.TTL,
		MaxMappings: r.config.MaxMappings,
		Clock:       r.config.Clock,
	})
}
