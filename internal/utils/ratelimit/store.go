package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultCategory = "default"

// entry pairs a limiter with the last time it was handed out.
type entry struct {
	limiter    *Limiter
	lastAccess time.Time
}

// Store manages rate limiters for multiple clients.
// Limiters are keyed by category and client, so one client has an
// independent bucket per category.
type Store struct {
	// limiters maps category and client identifiers to their rate limiters
	limiters map[string]*entry

	// rates defines different rate limits for different categories
	rates map[string]Rate

	mu sync.RWMutex

	// cleanupInterval is both the sweep period and the idle time after which a limiter is dropped
	cleanupInterval time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewStore creates a new store for managing rate limiters and starts its idle sweep.
//
// Parameters:
//   - defaultRate: The rate used by categories without their own setting
//   - cleanupInterval: How often to sweep idle limiters
//
// Returns:
//   - A configured limiter store
func NewStore(defaultRate Rate, cleanupInterval time.Duration) *Store {
	store := &Store{
		limiters:        make(map[string]*entry),
		rates:           map[string]Rate{defaultCategory: defaultRate},
		cleanupInterval: cleanupInterval,
		stop:            make(chan struct{}),
	}

	go store.cleanupRoutine()

	return store
}

// GetLimiter returns the rate limiter for the client within a category,
// creating it from the category's rate on first use.
//
// Parameters:
//   - clientID: The unique identifier for the client (API key id or IP address)
//   - category: The rate category (e.g., "gateway", "management")
//
// Returns:
//   - A rate limiter for the client
func (s *Store) GetLimiter(clientID string, category string) *Limiter {
	key := category + ":" + clientID
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.limiters[key]; exists {
		e.lastAccess = now
		return e.limiter
	}

	rate, exists := s.rates[category]
	if !exists {
		rate = s.rates[defaultCategory]
	}

	limiter := NewLimiter(rate.RequestsPerSecond, rate.Burst)
	s.limiters[key] = &entry{limiter: limiter, lastAccess: now}

	return limiter
}

// SetRate sets a rate limit for a specific category.
// Existing limiters keep their rate until they are evicted.
func (s *Store) SetRate(category string, rate Rate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[category] = rate
}

// Len returns the number of live limiters.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.limiters)
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) cleanupRoutine() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup(time.Now())
		case <-s.stop:
			return
		}
	}
}

// cleanup removes limiters not used within the cleanup interval.
func (s *Store) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.limiters {
		if now.Sub(e.lastAccess) > s.cleanupInterval {
			delete(s.limiters, key)
			removed++
		}
	}

	if removed > 0 {
		log.Debug().Int("removed", removed).Int("remaining", len(s.limiters)).Msg("Evicted idle rate limiters")
	}
}
