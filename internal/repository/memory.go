package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"comer/internal/models"
)

// MemoryLedgerCache is the in-process fallback used when redis is down.
// Entries are stored as JSON so callers never share a ledger value.
type MemoryLedgerCache struct {
	mu         sync.Mutex
	ledgers    map[string]memoryEntry
	rateLimits map[string]*rateLimitEntry
	now        func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemoryLedgerCache() *MemoryLedgerCache {
	return &MemoryLedgerCache{
		ledgers:    make(map[string]memoryEntry),
		rateLimits: make(map[string]*rateLimitEntry),
		now:        time.Now,
	}
}

func (r *MemoryLedgerCache) GetLedger(_ context.Context, experienceID string) (*models.Ledger, error) {
	r.mu.Lock()
	entry, ok := r.ledgers[experienceID]
	if ok && !entry.expiresAt.IsZero() && !r.now().Before(entry.expiresAt) {
		delete(r.ledgers, experienceID)
		ok = false
	}
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}

	var l models.Ledger
	if err := json.Unmarshal(entry.data, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *MemoryLedgerCache) SetLedger(_ context.Context, ledger *models.Ledger, ttl time.Duration) error {
	data, err := json.Marshal(ledger)
	if err != nil {
		return err
	}
	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = r.now().Add(ttl)
	}

	r.mu.Lock()
	r.ledgers[ledger.ExperienceID] = entry
	r.mu.Unlock()
	return nil
}

func (r *MemoryLedgerCache) InvalidateLedger(_ context.Context, experienceID string) error {
	r.mu.Lock()
	delete(r.ledgers, experienceID)
	r.mu.Unlock()
	return nil
}

func (r *MemoryLedgerCache) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{count: 0, expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
