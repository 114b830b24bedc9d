package repository

import (
	"context"
	"sync"
	"time"

	"comer/internal/domain"
	"comer/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverLedgerCache sends calls to primary until it fails, then to
// fallback. Primary is retried once per recoveryInterval.
type FailoverLedgerCache struct {
	primary  domain.LedgerCache
	fallback domain.LedgerCache
	logger   *zerolog.Logger

	mu        sync.Mutex
	down      bool
	lastCheck time.Time
	// ledgers whose primary copy could not be invalidated
	stale map[string]struct{}
}

func NewFailoverLedgerCache(primary, fallback domain.LedgerCache, logger *zerolog.Logger) *FailoverLedgerCache {
	return &FailoverLedgerCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		stale:    make(map[string]struct{}),
	}
}

// usePrimary reports whether the next call should try primary.
func (r *FailoverLedgerCache) usePrimary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.down {
		return true
	}
	if time.Since(r.lastCheck) > recoveryInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverLedgerCache) report(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		if r.down {
			r.logger.Info().Msg("Primary ledger cache recovered")
		}
		r.down = false
		return
	}
	if !r.down {
		r.logger.Error().Err(err).Msg("Primary ledger cache failed, falling back to memory")
	}
	r.down = true
	r.lastCheck = time.Now()
}

func (r *FailoverLedgerCache) IsDegraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.down
}

func (r *FailoverLedgerCache) markStale(experienceID string, stale bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stale {
		r.stale[experienceID] = struct{}{}
	} else {
		delete(r.stale, experienceID)
	}
}

func (r *FailoverLedgerCache) isStale(experienceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.stale[experienceID]
	return ok
}

// GetLedger never returns a primary copy that missed an invalidation; the
// delete is retried first and the read is served by fallback.
func (r *FailoverLedgerCache) GetLedger(ctx context.Context, experienceID string) (*models.Ledger, error) {
	if r.usePrimary() {
		if r.isStale(experienceID) {
			err := r.primary.InvalidateLedger(ctx, experienceID)
			r.report(err)
			if err == nil {
				r.markStale(experienceID, false)
			}
			return r.fallback.GetLedger(ctx, experienceID)
		}
		l, err := r.primary.GetLedger(ctx, experienceID)
		r.report(err)
		if err == nil {
			return l, nil
		}
	}
	return r.fallback.GetLedger(ctx, experienceID)
}

func (r *FailoverLedgerCache) SetLedger(ctx context.Context, ledger *models.Ledger, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.SetLedger(ctx, ledger, ttl)
		r.report(err)
		if err == nil {
			r.markStale(ledger.ExperienceID, false)
			return nil
		}
	}
	return r.fallback.SetLedger(ctx, ledger, ttl)
}

// InvalidateLedger clears both caches. The primary delete is attempted even
// while degraded; a failed delete marks the ledger stale until it succeeds.
func (r *FailoverLedgerCache) InvalidateLedger(ctx context.Context, experienceID string) error {
	fallbackErr := r.fallback.InvalidateLedger(ctx, experienceID)
	err := r.primary.InvalidateLedger(ctx, experienceID)
	r.report(err)
	r.markStale(experienceID, err != nil)
	return fallbackErr
}

func (r *FailoverLedgerCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		r.report(err)
		if err == nil {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
