package cache

import (
	"context"
	"sync"

	"github.com/raaihank/vibeguard/internal/privacy"
)

// Counter names in the totals hash
const (
	TotalRedactions   = "redactions"
	TotalRestorations = "restorations"
	TotalRequests     = "requests"
)

// Snapshot is a point-in-time copy of the counters
type Snapshot struct {
	Categories map[string]int64 `json:"categories"`
	Totals     map[string]int64 `json:"totals"`
	Backend    string           `json:"backend"`
}

// Recorder accumulates redaction statistics. Implementations only ever see
// categories and counts, never sensitive values.
type Recorder interface {
	RecordFindings(ctx context.Context, findings []privacy.Finding) error
	Increment(ctx context.Context, total string, n int64) error
	Snapshot(ctx context.Context) (*Snapshot, error)
	Close() error
}

// MemoryStats is the in-process Recorder used when Redis is not configured
type MemoryStats struct {
	mu         sync.Mutex
	categories map[string]int64
	totals     map[string]int64
}

// NewMemoryStats creates an empty in-memory recorder
func NewMemoryStats() *MemoryStats {
	return &MemoryStats{
		categories: make(map[string]int64),
		totals:     make(map[string]int64),
	}
}

// RecordFindings adds per-category counts and bumps the redaction total
func (m *MemoryStats) RecordFindings(_ context.Context, findings []privacy.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range findings {
		m.categories[f.Category] += int64(f.Count)
		m.totals[TotalRedactions] += int64(f.Count)
	}
	return nil
}

// Increment bumps a named total
func (m *MemoryStats) Increment(_ context.Context, total string, n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totals[total] += n
	return nil
}

// Snapshot copies the current counters
func (m *MemoryStats) Snapshot(_ context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := &Snapshot{
		Categories: make(map[string]int64, len(m.categories)),
		Totals:     make(map[string]int64, len(m.totals)),
		Backend:    "memory",
	}
	for k, v := range m.categories {
		snap.Categories[k] = v
	}
	for k, v := range m.totals {
		snap.Totals[k] = v
	}
	return snap, nil
}

// Close is a no-op
func (m *MemoryStats) Close() error {
	return nil
}
