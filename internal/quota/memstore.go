package quota

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory UsageStore. It backs deployments without a
// database and the test suite.
type MemStore struct {
	mu      sync.RWMutex
	tiers   map[string]TierName
	entries map[string][]usageEntry
}

type usageEntry struct {
	at     time.Time
	action Action
	n      int
}

// NewMemStore returns an empty in-memory usage store. Unknown users are free
// tier.
func NewMemStore() *MemStore {
	return &MemStore{
		tiers:   make(map[string]TierName),
		entries: make(map[string][]usageEntry),
	}
}

// SetTier assigns a tier to a user.
func (m *MemStore) SetTier(userID string, tier TierName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers[userID] = tier
}

func (m *MemStore) Tier(_ context.Context, userID string) (TierName, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tiers[userID]; ok {
		return t, nil
	}
	return TierFree, nil
}

func (m *MemStore) CountSince(_ context.Context, key string, t time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, e := range m.entries[key] {
		if !e.at.Before(t) {
			total += e.n
		}
	}
	return total, nil
}

func (m *MemStore) Add(_ context.Context, key string, action Action, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = append(m.entries[key], usageEntry{at: time.Now().UTC(), action: action, n: n})
	return nil
}
