package privacy

import (
	"container/list"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultPrefix starts every placeholder token
	DefaultPrefix = "__VG_"

	hashChars   = 12
	tokenSuffix = "__"
	secretSize  = 32
)

// SessionOptions configures a placeholder session
type SessionOptions struct {
	Prefix      string
	TTL         time.Duration // zero disables expiry
	MaxMappings int           // zero disables eviction
	Secret      []byte        // nil generates a random per-session key
	Clock       func() time.Time
}

// mapping is one live placeholder <-> original pair
type mapping struct {
	placeholder string
	original    string
	createdAt   time.Time
}

// Session maps original values to placeholder tokens and back for one
// conversation. Mappings are kept in bijection; creation order is tracked in
// a list so evicting the oldest entry is O(1).
type Session struct {
	mu sync.Mutex

	prefix      string
	ttl         time.Duration
	maxMappings int
	secret      []byte
	now         func() time.Time

	forward map[string]*list.Element // placeholder -> mapping
	reverse map[string]string        // original -> placeholder
	age     *list.List               // oldest createdAt at the front
}

// NewSession creates an empty session
func NewSession(opts SessionOptions) *Session {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	secret := opts.Secret
	if len(secret) == 0 {
		secret = make([]byte, secretSize)
		if _, err := rand.Read(secret); err != nil {
			panic("privacy: failed to generate session secret: " + err.Error())
		}
	} else {
		secret = append([]byte(nil), secret...)
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	ttl := opts.TTL
	if ttl < 0 {
		ttl = 0
	}
	maxMappings := opts.MaxMappings
	if maxMappings < 0 {
		maxMappings = 0
	}

	return &Session{
		prefix:      prefix,
		ttl:         ttl,
		maxMappings: maxMappings,
		secret:      secret,
		now:         now,
		forward:     make(map[string]*list.Element),
		reverse:     make(map[string]string),
		age:         list.New(),
	}
}

// Prefix returns the placeholder prefix of this session
func (s *Session) Prefix() string {
	return s.prefix
}

// Len returns the number of live mappings
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.forward)
}

// Lookup returns the original value behind a placeholder
func (s *Session) Lookup(placeholder string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.forward[placeholder]
	if !ok {
		return "", false
	}
	return el.Value.(*mapping).original, true
}

// LookupReverse returns the placeholder currently assigned to original
func (s *Session) LookupReverse(original string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	placeholder, ok := s.reverse[original]
	return placeholder, ok
}

// Cleanup drops every mapping older than the session TTL
func (s *Session) Cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(now)
}

// Sweep runs Cleanup at the current time of the session clock
func (s *Session) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(s.now())
}

// EvictOldest drops the mapping with the earliest creation time
func (s *Session) EvictOldest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictOldestLocked()
}

// GetOrCreatePlaceholder returns the stable placeholder for original,
// registering a new mapping when none is live.
func (s *Session) GetOrCreatePlaceholder(original, category string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.reverse[original]; ok {
		return existing
	}

	now := s.now()
	s.cleanupLocked(now)

	if s.maxMappings > 0 {
		for len(s.forward) >= s.maxMappings {
			s.evictOldestLocked()
		}
	}

	base := s.basePlaceholder(original, category)
	if placeholder, ok := s.claimLocked(base, original, now); ok {
		return placeholder
	}

	// 12 hex chars collided with another value: probe _2, _3, ...
	stem := strings.TrimSuffix(base, tokenSuffix)
	for n := 2; ; n++ {
		candidate := stem + "_" + strconv.Itoa(n) + tokenSuffix
		if placeholder, ok := s.claimLocked(candidate, original, now); ok {
			return placeholder
		}
	}
}

// claimLocked registers placeholder for original if the slot is free or
// already holds original.
func (s *Session) claimLocked(placeholder, original string, now time.Time) (string, bool) {
	el, taken := s.forward[placeholder]
	if !taken {
		s.forward[placeholder] = s.age.PushBack(&mapping{
			placeholder: placeholder,
			original:    original,
			createdAt:   now,
		})
		s.reverse[original] = placeholder
		return placeholder, true
	}

	m := el.Value.(*mapping)
	if m.original != original {
		return "", false
	}
	m.createdAt = now
	s.age.MoveToBack(el)
	s.reverse[original] = placeholder
	return placeholder, true
}

func (s *Session) basePlaceholder(original, category string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(original))
	sum := hex.EncodeToString(mac.Sum(nil))

	return s.prefix + SanitizeCategory(category) + "_" + sum[:hashChars] + tokenSuffix
}

func (s *Session) cleanupLocked(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for el := s.age.Front(); el != nil; {
		next := el.Next()
		if now.Sub(el.Value.(*mapping).createdAt) > s.ttl {
			s.removeLocked(el)
		}
		el = next
	}
}

func (s *Session) evictOldestLocked() {
	if el := s.age.Front(); el != nil {
		s.removeLocked(el)
	}
}

func (s *Session) removeLocked(el *list.Element) {
	m := s.age.Remove(el).(*mapping)
	delete(s.forward, m.placeholder)
	if s.reverse[m.original] == m.placeholder {
		delete(s.reverse, m.original)
	}
}
