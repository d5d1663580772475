package service

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/try-veil/veil-gateway/internal/config"
	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/metrics"
	"github.com/try-veil/veil-gateway/internal/utils/ratelimit"
)

// SecurityService handles request rate limiting for the gateway, the
// management API and the public validation endpoint.
type SecurityService struct {
	rateLimiterStore *ratelimit.Store
	metrics          *metrics.Metrics
}

// NewSecurityService creates a new SecurityService.
//
// Parameters:
//   - cfg: Per-category rates and the idle limiter cleanup interval
//   - m: Metrics for rejected requests; may be nil
//
// Returns:
//   - A configured SecurityService
func NewSecurityService(cfg *config.RateLimitSettings, m *metrics.Metrics) *SecurityService {
	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = constants.DefaultRateLimitCleanup
	}

	limiterStore := ratelimit.NewStore(ratelimit.Rate{
		RequestsPerSecond: constants.DefaultRateLimitRPS,
		Burst:             constants.DefaultRateLimitBurst,
	}, cleanup)

	// Per API key on proxied traffic
	limiterStore.SetRate(constants.RateCategoryGateway, ratelimit.Rate{
		RequestsPerSecond: cfg.GatewayRPS,
		Burst:             cfg.GatewayBurst,
	})

	// Per client IP on /api and /veil/api
	limiterStore.SetRate(constants.RateCategoryManagement, ratelimit.Rate{
		RequestsPerSecond: cfg.ManagementRPS,
		Burst:             cfg.ManagementBurst,
	})

	// Stricter on the public validation endpoint to slow key guessing
	limiterStore.SetRate(constants.RateCategoryValidate, ratelimit.Rate{
		RequestsPerSecond: cfg.ValidateRPS,
		Burst:             cfg.ValidateBurst,
	})

	return &SecurityService{
		rateLimiterStore: limiterStore,
		metrics:          m,
	}
}

// IsRateLimited checks if a client has exceeded their rate limit.
//
// Parameters:
//   - clientID: Identifier for the client (API key id or IP address)
//   - category: The rate category (gateway, management or validate)
//
// Returns:
//   - true if the client is rate limited, false otherwise
//   - How long the client should wait before retrying, when limited
func (s *SecurityService) IsRateLimited(clientID, category string) (bool, time.Duration) {
	limiter := s.rateLimiterStore.GetLimiter(clientID, category)
	if limiter.Allow() {
		return false, 0
	}

	s.metrics.RateLimited(category)
	log.Debug().
		Str("client", clientID).
		Str("category", category).
		Msg("Rate limit exceeded")

	return true, limiter.RetryAfter()
}

// Stop ends the limiter cleanup goroutine.
func (s *SecurityService) Stop() {
	s.rateLimiterStore.Stop()
}
