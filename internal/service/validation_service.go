package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/try-veil/veil-gateway/internal/auth"
	"github.com/try-veil/veil-gateway/internal/cache"
	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/metrics"
	"github.com/try-veil/veil-gateway/internal/models"
	"github.com/try-veil/veil-gateway/internal/repository"
	"github.com/try-veil/veil-gateway/internal/utils"
)

// ValidationService checks presented API keys against the store.
type ValidationService struct {
	keyRepo   repository.APIKeyRepository
	generator *auth.APIKeyService
	cache     *cache.KeyCache
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewValidationService creates a new ValidationService.
// keyCache and m may be nil.
func NewValidationService(
	keyRepo repository.APIKeyRepository,
	generator *auth.APIKeyService,
	keyCache *cache.KeyCache,
	m *metrics.Metrics,
) *ValidationService {
	return &ValidationService{
		keyRepo:   keyRepo,
		generator: generator,
		cache:     keyCache,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ValidateAPIKey resolves a raw key to the principal it identifies.
//
// The checks run in a fixed order and the first failure is returned:
// format, stored key, owner, active, expiry, subscription status, quota.
// An unknown key and a key whose embedded user id differs from its owner
// produce the same error.
//
// Parameters:
//   - ctx: Context for the lookup
//   - rawKey: The key as presented by the client
//
// Returns:
//   - The principal with the stored key's id, subscription and settings
//   - An AppError describing the first failed check
func (s *ValidationService) ValidateAPIKey(ctx context.Context, rawKey string) (*models.Principal, error) {
	principal, err := auth.ParseAPIKey(rawKey)
	if err != nil {
		s.reject(err, "")
		return nil, err
	}

	key, err := s.lookup(ctx, s.generator.Digest(rawKey))
	if err != nil {
		s.reject(err, "")
		return nil, err
	}

	if err := s.check(principal, key); err != nil {
		s.reject(err, key.ID)
		return nil, err
	}

	if key.NearQuota() {
		log.Warn().
			Str(constants.LogFieldKeyID, key.ID).
			Int64("requests_used", key.RequestsUsed).
			Int64("requests_limit", key.RequestsLimit).
			Msg(constants.LogEventQuotaWarning)
	}

	keyID := key.ID
	principal.SubscriptionID = key.SubscriptionID
	principal.APIKeyID = &keyID
	principal.Environment = key.Environment
	principal.Permissions = key.Permissions
	principal.APIConfigID = key.APIConfigID
	principal.KeyDigest = key.KeyDigest

	s.metrics.KeyValidation(metrics.OutcomeValid)

	return principal, nil
}

// lookup returns the key stored under digest, from the cache when possible
func (s *ValidationService) lookup(ctx context.Context, digest string) (*models.APIKey, error) {
	if s.cache != nil {
		if key, ok := s.cache.Get(digest); ok {
			s.metrics.KeyValidation(metrics.OutcomeCacheHit)
			return key, nil
		}
	}

	var epoch uint64
	if s.cache != nil {
		epoch = s.cache.Epoch()
	}

	key, err := s.keyRepo.GetByDigest(ctx, digest)
	if err != nil {
		if utils.IsNotFoundError(err) {
			return nil, utils.NewInvalidCredentialError()
		}
		return nil, utils.NewInternalServerError(err)
	}

	if s.cache != nil {
		s.cache.Set(key, epoch)
	}

	return key, nil
}

// check applies the stored-key rules in order
func (s *ValidationService) check(principal *models.Principal, key *models.APIKey) error {
	switch {
	case key.UserID != principal.UserID:
		return utils.NewInvalidCredentialError()
	case !key.IsActive:
		return utils.NewInactiveKeyError()
	case key.IsExpired(s.now()):
		return utils.NewExpiredKeyError()
	case key.SubscriptionStatus != constants.SubscriptionActive:
		return utils.NewSubscriptionInactiveError(key.SubscriptionStatus)
	case !key.HasQuota():
		return utils.NewQuotaExceededError(key.RequestsUsed, key.RequestsLimit)
	}
	return nil
}

// reject logs and counts a failed validation
func (s *ValidationService) reject(err error, keyID string) {
	var appErr *utils.AppError
	outcome := constants.CodeInternalError
	if errors.As(err, &appErr) {
		outcome = utils.ErrorCode(appErr)
	}
	s.metrics.KeyValidation(outcome)

	log.Debug().
		Str(constants.LogFieldKeyID, keyID).
		Str("outcome", outcome).
		Msg(constants.LogEventKeyRejected)
}

// ConsumeQuota counts one request against the principal's key.
//
// Returns:
//   - QuotaExceededError if the key has no requests left
//   - An error if the principal carries no stored key or the update fails
func (s *ValidationService) ConsumeQuota(ctx context.Context, principal *models.Principal) error {
	keyID := principal.KeyID()
	if keyID == "" {
		return utils.NewInvalidCredentialError()
	}

	ok, err := s.keyRepo.ConsumeQuota(ctx, keyID, s.now())
	if err != nil {
		return utils.NewInternalServerError(err)
	}
	if ok {
		return nil
	}

	// The cached counter is stale once the database refused the increment
	if s.cache != nil {
		s.cache.Invalidate(principal.KeyDigest)
	}

	key, err := s.keyRepo.GetByID(ctx, keyID)
	if err != nil {
		return utils.NewQuotaExceededError(0, 0)
	}
	return utils.NewQuotaExceededError(key.RequestsUsed, key.RequestsLimit)
}
