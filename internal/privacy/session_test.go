package privacy

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for TTL tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSessionPlaceholders(t *testing.T) {
	t.Run("StableAndBijective", func(t *testing.T) {
		session := newTestSession(SessionOptions{})

		a := session.GetOrCreatePlaceholder("alice@example.com", "email")
		again := session.GetOrCreatePlaceholder("alice@example.com", "other")
		b := session.GetOrCreatePlaceholder("bob@example.com", "email")

		assert.Equal(t, expectedPlaceholder(DefaultPrefix, "EMAIL", "alice@example.com"), a)
		assert.Equal(t, a, again, "existing mapping wins regardless of category")
		assert.NotEqual(t, a, b)

		original, ok := session.Lookup(a)
		require.True(t, ok)
		assert.Equal(t, "alice@example.com", original)

		placeholder, ok := session.LookupReverse("bob@example.com")
		require.True(t, ok)
		assert.Equal(t, b, placeholder)
		assert.Equal(t, 2, session.Len())
	})

	t.Run("CustomPrefix", func(t *testing.T) {
		session := newTestSession(SessionOptions{Prefix: "<<PII_"})
		token := session.GetOrCreatePlaceholder("x", "Api Key!")
		assert.Equal(t, expectedPlaceholder("<<PII_", "API_KEY_", "x"), token)
		assert.Equal(t, "<<PII_", session.Prefix())
	})

	t.Run("RandomSecretsDiffer", func(t *testing.T) {
		one := NewSession(SessionOptions{})
		two := NewSession(SessionOptions{})
		assert.NotEqual(t,
			one.GetOrCreatePlaceholder("same value", "text"),
			two.GetOrCreatePlaceholder("same value", "text"))
	})

	t.Run("CollisionProbesSuffix", func(t *testing.T) {
		session := newTestSession(SessionOptions{})
		base := session.basePlaceholder("victim", "text")

		// Occupy the base token with a different original.
		session.mu.Lock()
		_, ok := session.claimLocked(base, "squatter", time.Now())
		session.mu.Unlock()
		require.True(t, ok)

		token := session.GetOrCreatePlaceholder("victim", "text")
		assert.Equal(t, strings.TrimSuffix(base, "__")+"_2__", token)

		original, ok := session.Lookup(token)
		require.True(t, ok)
		assert.Equal(t, "victim", original)
		squatter, _ := session.Lookup(base)
		assert.Equal(t, "squatter", squatter)

		// The suffixed token is still recognized for restoration.
		assert.Equal(t, "victim", Restore(token, session))
	})
}

func TestSessionCapacity(t *testing.T) {
	t.Run("EvictsOldestBeforeInsert", func(t *testing.T) {
		set := buildSet(t, PatternConfig{
			Keywords: []KeywordSpec{{Value: "a", Category: "x"}, {Value: "b", Category: "x"}},
		})
		session := newTestSession(SessionOptions{MaxMappings: 1})

		first := Redact("a", set, session)
		tokenA := first.Text
		second := Redact("b", set, session)

		assert.Equal(t, 1, session.Len())
		_, ok := session.LookupReverse("a")
		assert.False(t, ok)
		assert.Equal(t, tokenA, Restore(tokenA, session), "evicted placeholder stays literal")
		assert.Equal(t, "b", Restore(second.Text, session))
	})

	t.Run("EvictOldestOrder", func(t *testing.T) {
		clock := newFakeClock()
		session := newTestSession(SessionOptions{MaxMappings: 3, Clock: clock.Now})

		for _, v := range []string{"one", "two", "three"} {
			session.GetOrCreatePlaceholder(v, "n")
			clock.Advance(time.Second)
		}
		session.GetOrCreatePlaceholder("four", "n")

		_, ok := session.LookupReverse("one")
		assert.False(t, ok)
		for _, v := range []string{"two", "three", "four"} {
			_, ok := session.LookupReverse(v)
			assert.True(t, ok, v)
		}

		session.EvictOldest()
		_, ok = session.LookupReverse("two")
		assert.False(t, ok)
		assert.Equal(t, 2, session.Len())
	})
}

func TestSessionTTL(t *testing.T) {
	clock := newFakeClock()
	session := newTestSession(SessionOptions{TTL: time.Minute, Clock: clock.Now})

	old := session.GetOrCreatePlaceholder("old", "t")
	clock.Advance(45 * time.Second)
	fresh := session.GetOrCreatePlaceholder("fresh", "t")

	clock.Advance(30 * time.Second)
	session.Sweep()

	_, ok := session.Lookup(old)
	assert.False(t, ok, "expired mapping must be gone")
	_, ok = session.Lookup(fresh)
	assert.True(t, ok)

	// Expiry also happens lazily when a new placeholder is created.
	clock.Advance(time.Minute)
	session.GetOrCreatePlaceholder("newer", "t")
	assert.Equal(t, 1, session.Len())

	// Re-encountering an expired value yields the same deterministic token.
	assert.Equal(t, old, session.GetOrCreatePlaceholder("old", "t"))
}

func TestSessionZeroTTLKeepsMappings(t *testing.T) {
	clock := newFakeClock()
	session := newTestSession(SessionOptions{Clock: clock.Now})

	token := session.GetOrCreatePlaceholder("forever", "t")
	clock.Advance(365 * 24 * time.Hour)
	session.Cleanup(clock.Now())

	_, ok := session.Lookup(token)
	assert.True(t, ok)
}

func TestSessionConcurrentUse(t *testing.T) {
	set := buildSet(t, PatternConfig{Builtin: []string{"email"}})
	session := newTestSession(SessionOptions{MaxMappings: 50})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				text := "mail user" + string(rune('a'+j%26)) + "@example.com"
				result := Redact(text, set, session)
				Restore(result.Text, session)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, session.Len(), 50)
}
