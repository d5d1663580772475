// Package service provides business logic implementations.
package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/try-veil/veil-gateway/internal/auth"
	"github.com/try-veil/veil-gateway/internal/cache"
	"github.com/try-veil/veil-gateway/internal/config"
	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/models"
	"github.com/try-veil/veil-gateway/internal/repository"
	"github.com/try-veil/veil-gateway/internal/utils"
)

// KeyService handles the lifecycle of API keys: issuance, listing, updates,
// rotation, revocation, quota administration and scheduled maintenance.
type KeyService struct {
	keyRepo   repository.APIKeyRepository
	apiRepo   repository.APIConfigRepository
	generator *auth.APIKeyService
	cache     *cache.KeyCache
	config    *config.APIKeySettings
	now       func() time.Time
}

// NewKeyService creates a new KeyService.
//
// Parameters:
//   - keyRepo: Repository for API key storage
//   - apiRepo: Repository used to resolve the API a key is scoped to
//   - generator: Issues raw keys and their digests
//   - keyCache: Validation cache to invalidate on every mutation; may be nil
//   - cfg: API key settings
//
// Returns:
//   - A configured KeyService
func NewKeyService(
	keyRepo repository.APIKeyRepository,
	apiRepo repository.APIConfigRepository,
	generator *auth.APIKeyService,
	keyCache *cache.KeyCache,
	cfg *config.APIKeySettings,
) *KeyService {
	return &KeyService{
		keyRepo:   keyRepo,
		apiRepo:   apiRepo,
		generator: generator,
		cache:     keyCache,
		config:    cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateKey issues a new API key for userID.
//
// Parameters:
//   - ctx: Context for the operation
//   - userID: The owner of the new key
//   - req: The validated creation request
//
// Returns:
//   - The masked key together with the raw key, which is never available again
//   - KeyLimitReachedError if the subscription already holds the maximum active keys
//   - NotFoundError if api_path names no onboarded API
func (s *KeyService) CreateKey(ctx context.Context, userID int64, req *models.CreateAPIKeyRequest) (*models.APIKeyCreatedResponse, error) {
	expiry, err := s.generator.ParseDuration(req.Duration)
	if err != nil {
		return nil, err
	}

	now := s.now()

	var apiConfigID *int64
	if req.APIPath != "" {
		api, err := s.apiRepo.GetByPath(ctx, req.APIPath)
		if err != nil {
			return nil, err
		}
		apiConfigID = &api.ID
	}

	key, rawKey, err := s.generator.GenerateAPIKey(userID, req.Name, req.Environment, expiry)
	if err != nil {
		return nil, utils.NewInternalServerError(err)
	}

	key.Description = req.Description
	key.SubscriptionID = req.SubscriptionID
	key.APIConfigID = apiConfigID
	if req.Permissions != "" {
		key.Permissions = req.Permissions
	}
	key.RequestsLimit = s.config.DefaultRequestsLimit
	if req.RequestsLimit != nil {
		key.RequestsLimit = *req.RequestsLimit
	}

	if err := s.store(ctx, key, now); err != nil {
		return nil, err
	}

	utils.LogAPIKey(constants.LogEventKeyCreated, key.ID, strconv.FormatInt(userID, 10))

	return &models.APIKeyCreatedResponse{
		APIKeyResponse: key.ToResponse(now),
		Key:            rawKey,
	}, nil
}

// store saves a new key, holding keys bound to a subscription to its active cap
func (s *KeyService) store(ctx context.Context, key *models.APIKey, now time.Time) error {
	if key.SubscriptionID == nil {
		return s.keyRepo.Create(ctx, key)
	}
	return s.keyRepo.CreateWithinLimit(ctx, key, s.activeLimit(), now)
}

// activate turns an inactive key back on, holding it to its subscription's cap
func (s *KeyService) activate(ctx context.Context, key *models.APIKey, now time.Time) error {
	if key.SubscriptionID == nil {
		return nil
	}
	return s.keyRepo.ActivateWithinLimit(ctx, key.ID, *key.SubscriptionID, s.activeLimit(), now)
}

func (s *KeyService) activeLimit() int {
	if s.config.MaxActivePerSubscription <= 0 {
		return constants.DefaultMaxActiveKeysPerSubscription
	}
	return s.config.MaxActivePerSubscription
}

// ListKeys returns one page of the caller's keys in masked form.
//
// Parameters:
//   - ctx: Context for the operation
//   - userID: The owner whose keys are listed
//   - status: active, inactive, expired or all; empty means all
//   - page: 1-based page number
//   - pageSize: Number of keys per page, capped at the maximum page size
//
// Returns:
//   - The keys on the page
//   - The total number of keys matching status
//   - An error if the status is unknown or the query fails
func (s *KeyService) ListKeys(ctx context.Context, userID int64, status string, page, pageSize int) ([]*models.APIKeyResponse, int, error) {
	switch status {
	case "":
		status = constants.KeyStatusAll
	case constants.KeyStatusActive, constants.KeyStatusInactive, constants.KeyStatusExpired, constants.KeyStatusAll:
	default:
		return nil, 0, utils.NewValidationError(constants.QueryParamStatus, "must be one of active, inactive, expired, all")
	}

	if page < 1 {
		page = constants.DefaultPage
	}
	if pageSize < 1 {
		pageSize = constants.DefaultPageSize
	}
	if pageSize > constants.MaxPageSize {
		pageSize = constants.MaxPageSize
	}

	now := s.now()
	keys, total, err := s.keyRepo.ListByUser(ctx, userID, repository.KeyListFilter{
		Status: status,
		Now:    now,
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		return nil, 0, err
	}

	responses := make([]*models.APIKeyResponse, 0, len(keys))
	for _, key := range keys {
		responses = append(responses, key.ToResponse(now))
	}

	return responses, total, nil
}

// GetKey returns a key the caller owns. Admins may read any key.
func (s *KeyService) GetKey(ctx context.Context, userID int64, isAdmin bool, keyID string) (*models.APIKeyResponse, error) {
	key, err := s.ownedKey(ctx, userID, isAdmin, keyID)
	if err != nil {
		return nil, err
	}
	return key.ToResponse(s.now()), nil
}

// ownedKey loads keyID and checks the caller may manage it
func (s *KeyService) ownedKey(ctx context.Context, userID int64, isAdmin bool, keyID string) (*models.APIKey, error) {
	key, err := s.keyRepo.GetByID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if key.UserID != userID && !isAdmin {
		return nil, utils.NewForbiddenError(constants.MsgAccessDenied)
	}
	return key, nil
}

// UpdateKey applies a partial update to the caller's key.
func (s *KeyService) UpdateKey(ctx context.Context, userID int64, isAdmin bool, keyID string, req *models.UpdateAPIKeyRequest) (*models.APIKeyResponse, error) {
	if req.IsEmpty() {
		return nil, utils.NewBadRequestError("No changes were provided")
	}

	key, err := s.ownedKey(ctx, userID, isAdmin, keyID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		key.Name = *req.Name
	}
	if req.Description != nil {
		key.Description = *req.Description
	}
	if req.Permissions != nil {
		key.Permissions = *req.Permissions
	}
	now := s.now()
	if req.IsActive != nil {
		if *req.IsActive && !key.IsActive {
			if err := s.activate(ctx, key, now); err != nil {
				return nil, err
			}
		}
		key.IsActive = *req.IsActive
	}
	key.UpdatedAt = now

	if err := s.keyRepo.Update(ctx, key); err != nil {
		return nil, err
	}
	s.invalidate(key.KeyDigest)

	return key.ToResponse(key.UpdatedAt), nil
}

// RegenerateKey replaces the secret of the caller's key.
// The id and settings are kept and usage starts again from zero.
//
// Returns:
//   - The masked key together with the new raw key
//   - NotFoundError or ForbiddenError if the caller cannot manage the key
//   - ConflictError if the key is inactive
func (s *KeyService) RegenerateKey(ctx context.Context, userID int64, isAdmin bool, keyID, reason string) (*models.APIKeyCreatedResponse, error) {
	current, err := s.ownedKey(ctx, userID, isAdmin, keyID)
	if err != nil {
		return nil, err
	}
	if !current.IsActive {
		return nil, utils.NewConflictError(constants.MsgRegenerateInactiveKey)
	}

	now := s.now()
	var rawKey string
	rotated, err := s.keyRepo.Regenerate(ctx, keyID, func(key *models.APIKey) error {
		raw, err := s.generator.Rotate(key)
		if err != nil {
			return utils.NewInternalServerError(err)
		}
		rawKey = raw
		key.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(current.KeyDigest)

	log.Info().
		Str(constants.LogFieldKeyID, keyID).
		Int64(constants.LogFieldUserID, userID).
		Str("reason", reason).
		Msg(constants.LogEventKeyRegenerated)

	return &models.APIKeyCreatedResponse{
		APIKeyResponse: rotated.ToResponse(now),
		Key:            rawKey,
	}, nil
}

// RevokeKey deactivates the caller's key and records the reason.
// Revoking a key that is already inactive is a conflict and keeps the first reason.
func (s *KeyService) RevokeKey(ctx context.Context, userID int64, isAdmin bool, keyID, reason string) error {
	key, err := s.ownedKey(ctx, userID, isAdmin, keyID)
	if err != nil {
		return err
	}
	if !key.IsActive {
		return utils.NewConflictError(constants.MsgKeyAlreadyInactive)
	}

	if err := s.keyRepo.Revoke(ctx, keyID, reason, s.now()); err != nil {
		return err
	}
	s.invalidate(key.KeyDigest)

	log.Info().
		Str(constants.LogFieldKeyID, keyID).
		Int64(constants.LogFieldUserID, userID).
		Str("reason", reason).
		Msg(constants.LogEventKeyRevoked)

	return nil
}

// DeleteKey permanently removes the caller's key. Unlike RevokeKey no record is kept.
func (s *KeyService) DeleteKey(ctx context.Context, userID int64, isAdmin bool, keyID string) error {
	key, err := s.ownedKey(ctx, userID, isAdmin, keyID)
	if err != nil {
		return err
	}

	if err := s.keyRepo.Delete(ctx, keyID); err != nil {
		return err
	}
	s.invalidate(key.KeyDigest)

	utils.LogAPIKey(constants.LogEventKeyDeleted, keyID, strconv.FormatInt(userID, 10))

	return nil
}

// GetKeyUsage reports the quota consumption of the caller's key.
func (s *KeyService) GetKeyUsage(ctx context.Context, userID int64, isAdmin bool, keyID string) (*models.APIKeyUsageResponse, error) {
	key, err := s.ownedKey(ctx, userID, isAdmin, keyID)
	if err != nil {
		return nil, err
	}
	return key.Usage(s.now()), nil
}

// SearchKeys returns the caller's keys whose name contains term, newest first.
// At most MaxKeySearchResults keys are returned.
func (s *KeyService) SearchKeys(ctx context.Context, userID int64, term string) ([]*models.APIKeyResponse, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, utils.NewValidationError(constants.QueryParamSearch, "is required")
	}
	if len(term) > constants.MaxKeyNameLength {
		return nil, utils.NewValidationError(constants.QueryParamSearch, fmt.Sprintf("must be at most %d characters", constants.MaxKeyNameLength))
	}

	keys, err := s.keyRepo.SearchByName(ctx, userID, term, constants.MaxKeySearchResults)
	if err != nil {
		return nil, err
	}

	now := s.now()
	responses := make([]*models.APIKeyResponse, 0, len(keys))
	for _, key := range keys {
		responses = append(responses, key.ToResponse(now))
	}
	return responses, nil
}

// BulkOperation activates, deactivates or deletes several of the caller's keys.
//
// Parameters:
//   - ctx: Context for the operation
//   - userID: The caller
//   - isAdmin: Whether the caller may manage keys it does not own
//   - req: The key ids, the action and an optional reason used on deactivation
//
// Returns:
//   - A summary with one error entry per key that could not be changed
//   - An error only when the request itself is invalid
func (s *KeyService) BulkOperation(ctx context.Context, userID int64, isAdmin bool, req *models.BulkKeyOperationRequest) (*models.BulkKeyOperationResult, error) {
	if len(req.KeyIDs) == 0 {
		return nil, utils.NewValidationError("key_ids", "is required")
	}
	if len(req.KeyIDs) > constants.MaxBulkKeys {
		return nil, utils.NewValidationError("key_ids", fmt.Sprintf("must contain at most %d keys", constants.MaxBulkKeys))
	}

	var apply func(keyID string) error
	switch req.Action {
	case constants.KeyActionActivate:
		active := true
		apply = func(keyID string) error {
			_, err := s.UpdateKey(ctx, userID, isAdmin, keyID, &models.UpdateAPIKeyRequest{IsActive: &active})
			return err
		}
	case constants.KeyActionDeactivate:
		apply = func(keyID string) error {
			return s.RevokeKey(ctx, userID, isAdmin, keyID, req.Reason)
		}
	case constants.KeyActionDelete:
		apply = func(keyID string) error {
			return s.DeleteKey(ctx, userID, isAdmin, keyID)
		}
	default:
		return nil, utils.NewValidationError("action", "must be one of activate, deactivate, delete")
	}

	result := &models.BulkKeyOperationResult{Errors: []models.BulkKeyError{}}
	for _, keyID := range req.KeyIDs {
		result.Processed++
		if err := apply(keyID); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, models.BulkKeyError{
				KeyID: keyID,
				Error: utils.ParseError(err).Message,
			})
			continue
		}
		result.Successful++
	}

	log.Info().
		Int64(constants.LogFieldUserID, userID).
		Str("action", req.Action).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("Bulk API key operation finished")

	return result, nil
}

// UpdateQuota sets the request limit of any key. Zero means unlimited.
func (s *KeyService) UpdateQuota(ctx context.Context, keyID string, limit int64) (*models.APIKeyResponse, error) {
	if limit < 0 {
		return nil, utils.NewValidationError("requests_limit", "must be zero or greater")
	}
	return s.adminUpdate(ctx, keyID, func(now time.Time) error {
		return s.keyRepo.UpdateQuota(ctx, keyID, limit, now)
	})
}

// ResetUsage sets the request counter of any key back to zero.
func (s *KeyService) ResetUsage(ctx context.Context, keyID string) (*models.APIKeyResponse, error) {
	return s.adminUpdate(ctx, keyID, func(now time.Time) error {
		return s.keyRepo.ResetUsage(ctx, keyID, now)
	})
}

// UpdateSubscriptionStatus mirrors a subscription status change onto a key.
func (s *KeyService) UpdateSubscriptionStatus(ctx context.Context, keyID, status string) (*models.APIKeyResponse, error) {
	switch status {
	case constants.SubscriptionActive, constants.SubscriptionSuspended, constants.SubscriptionCancelled:
	default:
		return nil, utils.NewValidationError("status", "must be one of active, suspended, cancelled")
	}
	return s.adminUpdate(ctx, keyID, func(now time.Time) error {
		return s.keyRepo.UpdateSubscriptionStatus(ctx, keyID, status, now)
	})
}

// adminUpdate runs write, invalidates the cached record and returns the fresh key
func (s *KeyService) adminUpdate(ctx context.Context, keyID string, write func(now time.Time) error) (*models.APIKeyResponse, error) {
	now := s.now()
	if err := write(now); err != nil {
		return nil, err
	}

	key, err := s.keyRepo.GetByID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	s.invalidate(key.KeyDigest)

	return key.ToResponse(now), nil
}

// IssueKeysForAPI issues provider keys bound to an onboarded API.
//
// Parameters:
//   - ctx: Context for the operation
//   - apiConfigID: The API the keys are scoped to
//   - requests: The keys to issue
//
// Returns:
//   - The issued keys with their raw values
//   - An error on the first key that fails; keys issued before it are kept
func (s *KeyService) IssueKeysForAPI(ctx context.Context, apiConfigID int64, requests []models.ProviderKeyDTO) ([]models.IssuedKeyDTO, error) {
	issued := make([]models.IssuedKeyDTO, 0, len(requests))
	now := s.now()

	for _, req := range requests {
		key, rawKey, err := s.generator.GenerateAPIKey(req.UserID, req.Name, "", 0)
		if err != nil {
			return issued, utils.NewInternalServerError(err)
		}

		id := apiConfigID
		key.APIConfigID = &id
		key.SubscriptionID = req.SubscriptionID
		key.RequestsLimit = req.RequestsLimit
		if req.ExpiresAt != nil {
			expiresAt := req.ExpiresAt.UTC()
			if !expiresAt.After(now) {
				return issued, utils.NewValidationError("expires_at", "must be in the future")
			}
			key.ExpiresAt = &expiresAt
		}

		if err := s.store(ctx, key, now); err != nil {
			return issued, err
		}

		utils.LogAPIKey(constants.LogEventKeyCreated, key.ID, strconv.FormatInt(req.UserID, 10))

		issued = append(issued, models.IssuedKeyDTO{
			ID:     key.ID,
			Name:   key.Name,
			UserID: key.UserID,
			Key:    rawKey,
		})
	}

	return issued, nil
}

// SetKeyStatusForAPI activates or deactivates a raw key bound to an API.
// Reactivating a subscription's key is held to the subscription's active cap.
func (s *KeyService) SetKeyStatusForAPI(ctx context.Context, apiConfigID int64, rawKey string, active bool) error {
	digest := s.generator.Digest(rawKey)
	now := s.now()

	if active {
		key, err := s.keyRepo.GetByDigest(ctx, digest)
		if err != nil {
			return err
		}
		if key.APIConfigID == nil || *key.APIConfigID != apiConfigID {
			return utils.NewNotFoundError("APIKey", "")
		}
		if !key.IsActive && key.SubscriptionID != nil {
			if err := s.activate(ctx, key, now); err != nil {
				return err
			}
			s.invalidate(digest)
			return nil
		}
	}

	if err := s.keyRepo.SetActiveForAPI(ctx, digest, apiConfigID, active, now); err != nil {
		return err
	}
	s.invalidate(digest)
	return nil
}

// DeleteKeyForAPI removes a raw key bound to an API.
func (s *KeyService) DeleteKeyForAPI(ctx context.Context, apiConfigID int64, rawKey string) error {
	digest := s.generator.Digest(rawKey)
	if err := s.keyRepo.DeleteForAPI(ctx, digest, apiConfigID); err != nil {
		return err
	}
	s.invalidate(digest)
	return nil
}

// CleanupExpiredKeys deletes keys that expired more than the grace period ago.
func (s *KeyService) CleanupExpiredKeys(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-constants.ExpiredKeyGracePeriod)

	removed, err := s.keyRepo.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired keys: %w", err)
	}

	if removed > 0 {
		// Deleted digests are unknown here, so drop every cached record
		s.clearCache()
		log.Info().
			Int64("removed", removed).
			Time("cutoff", cutoff).
			Msg("Removed " + utils.Plural(int(removed), "expired API key"))
	}

	return removed, nil
}

// ResetAllUsage starts a new quota window for every key.
func (s *KeyService) ResetAllUsage(ctx context.Context) (int64, error) {
	reset, err := s.keyRepo.ResetAllUsage(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to reset key usage: %w", err)
	}

	if reset > 0 {
		s.clearCache()
	}
	log.Info().Int64("keys", reset).Msg("API key usage reset")

	return reset, nil
}

func (s *KeyService) invalidate(digest string) {
	if s.cache != nil {
		s.cache.Invalidate(digest)
	}
}

func (s *KeyService) clearCache() {
	if s.cache != nil {
		s.cache.Clear()
	}
}
