package models

import (
	"time"

	"github.com/try-veil/veil-gateway/internal/constants"
)

// APIKey represents an issued API key.
// The raw key is never stored; KeyDigest is a keyed digest of it and KeyHint
// is a masked form safe to display.
type APIKey struct {
	ID                 string     `json:"id" db:"key_id"`
	UserID             int64      `json:"user_id" db:"user_id"`
	SubscriptionID     *int64     `json:"subscription_id,omitempty" db:"subscription_id"`
	APIConfigID        *int64     `json:"api_config_id,omitempty" db:"api_config_id"`
	Environment        string     `json:"environment" db:"environment"`
	Name               string     `json:"name" db:"name"`
	Description        string     `json:"description,omitempty" db:"description"`
	KeyDigest          string     `json:"-" db:"key_digest"`
	KeyHint            string     `json:"key_hint" db:"key_hint"`
	Permissions        string     `json:"permissions" db:"permissions"`
	IsActive           bool       `json:"is_active" db:"is_active"`
	SubscriptionStatus string     `json:"subscription_status" db:"subscription_status"`
	RequestsUsed       int64      `json:"requests_used" db:"requests_used"`
	RequestsLimit      int64      `json:"requests_limit" db:"requests_limit"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	LastUsedAt         *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	RevokedAt          *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	RevokeReason       string     `json:"revoke_reason,omitempty" db:"revoke_reason"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the database table name for the APIKey model.
func (ak *APIKey) TableName() string {
	return constants.TableAPIKeys
}

// NewAPIKey creates an active key record for userID with read permission
// and an active subscription status. A zero expiry means the key never expires.
func NewAPIKey(userID int64, name, environment string, expiry time.Duration) *APIKey {
	now := time.Now().UTC()
	key := &APIKey{
		UserID:             userID,
		Name:               name,
		Environment:        environment,
		Permissions:        constants.PermissionRead,
		IsActive:           true,
		SubscriptionStatus: constants.SubscriptionActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if expiry > 0 {
		expiresAt := now.Add(expiry)
		key.ExpiresAt = &expiresAt
	}
	return key
}

// IsExpired reports whether the key has an expiry at or before now.
func (ak *APIKey) IsExpired(now time.Time) bool {
	return ak.ExpiresAt != nil && !now.Before(*ak.ExpiresAt)
}

// HasQuota reports whether another request fits in the key's quota.
// A limit of zero means unlimited.
func (ak *APIKey) HasQuota() bool {
	return ak.RequestsLimit == 0 || ak.RequestsUsed < ak.RequestsLimit
}

// NearQuota reports whether usage has crossed the warning ratio of a finite limit.
func (ak *APIKey) NearQuota() bool {
	if ak.RequestsLimit == 0 {
		return false
	}
	return float64(ak.RequestsUsed) >= float64(ak.RequestsLimit)*constants.QuotaWarningRatio
}

// Status classifies the key for listing: expired wins over inactive.
func (ak *APIKey) Status(now time.Time) string {
	switch {
	case ak.IsExpired(now):
		return constants.KeyStatusExpired
	case !ak.IsActive:
		return constants.KeyStatusInactive
	default:
		return constants.KeyStatusActive
	}
}

// AllowsAPI reports whether the key may call the API with the given config id.
// Unscoped keys may call any API.
func (ak *APIKey) AllowsAPI(apiConfigID int64) bool {
	return ak.APIConfigID == nil || *ak.APIConfigID == apiConfigID
}

// CreateAPIKeyRequest represents a request to create a new API key.
type CreateAPIKeyRequest struct {
	Name           string `json:"name" validate:"required,min=1,max=100,key_name"`
	Description    string `json:"description" validate:"omitempty,max=500"`
	SubscriptionID *int64 `json:"subscription_id" validate:"omitempty,gt=0"`
	APIPath        string `json:"api_path" validate:"omitempty,api_path"`
	Environment    string `json:"environment" validate:"omitempty,oneof=live test"`
	Permissions    string `json:"permissions" validate:"omitempty,oneof=read write admin"`
	Duration       string `json:"duration" validate:"omitempty,oneof=30d 90d 180d 365d never"`
	RequestsLimit  *int64 `json:"requests_limit" validate:"omitempty,gte=0"`
}

// UpdateAPIKeyRequest represents a partial update of a key's settings.
type UpdateAPIKeyRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100,key_name"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Permissions *string `json:"permissions" validate:"omitempty,oneof=read write admin"`
	IsActive    *bool   `json:"is_active"`
}

// IsEmpty reports whether the update carries no changes.
func (r *UpdateAPIKeyRequest) IsEmpty() bool {
	return r.Name == nil && r.Description == nil && r.Permissions == nil && r.IsActive == nil
}

// KeyReasonRequest carries the optional reason for a regeneration or revocation.
type KeyReasonRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=255"`
}

// UpdateQuotaRequest sets a new request limit. Zero means unlimited.
type UpdateQuotaRequest struct {
	RequestsLimit *int64 `json:"requests_limit" validate:"required,gte=0"`
}

// UpdateSubscriptionStatusRequest sets the subscription status mirrored on a key.
type UpdateSubscriptionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended cancelled"`
}

// APIKeyResponse is the masked view of a key returned by list and get.
type APIKeyResponse struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description,omitempty"`
	KeyHint            string     `json:"key_hint"`
	Environment        string     `json:"environment"`
	Permissions        string     `json:"permissions"`
	Status             string     `json:"status"`
	IsActive           bool       `json:"is_active"`
	SubscriptionID     *int64     `json:"subscription_id,omitempty"`
	SubscriptionStatus string     `json:"subscription_status"`
	APIConfigID        *int64     `json:"api_config_id,omitempty"`
	RequestsUsed       int64      `json:"requests_used"`
	RequestsLimit      int64      `json:"requests_limit"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	LastUsedAt         *time.Time `json:"last_used_at,omitempty"`
	RevokedAt          *time.Time `json:"revoked_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// ToResponse builds the masked view of the key.
func (ak *APIKey) ToResponse(now time.Time) *APIKeyResponse {
	return &APIKeyResponse{
		ID:                 ak.ID,
		Name:               ak.Name,
		Description:        ak.Description,
		KeyHint:            ak.KeyHint,
		Environment:        ak.Environment,
		Permissions:        ak.Permissions,
		Status:             ak.Status(now),
		IsActive:           ak.IsActive,
		SubscriptionID:     ak.SubscriptionID,
		SubscriptionStatus: ak.SubscriptionStatus,
		APIConfigID:        ak.APIConfigID,
		RequestsUsed:       ak.RequestsUsed,
		RequestsLimit:      ak.RequestsLimit,
		ExpiresAt:          ak.ExpiresAt,
		LastUsedAt:         ak.LastUsedAt,
		RevokedAt:          ak.RevokedAt,
		CreatedAt:          ak.CreatedAt,
	}
}

// BulkKeyOperationRequest applies one action to several of the caller's keys.
type BulkKeyOperationRequest struct {
	KeyIDs []string `json:"key_ids" validate:"required,min=1,max=100,dive,required"`
	Action string   `json:"action" validate:"required,oneof=activate deactivate delete"`
	Reason string   `json:"reason" validate:"omitempty,max=255"`
}

// BulkKeyError names a key a bulk operation could not apply to.
type BulkKeyError struct {
	KeyID string `json:"key_id"`
	Error string `json:"error"`
}

// BulkKeyOperationResult summarises a bulk operation. Keys are handled
// independently, so one failure does not undo the others.
type BulkKeyOperationResult struct {
	Processed  int            `json:"processed"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Errors     []BulkKeyError `json:"errors"`
}

// APIKeyUsageResponse reports how much of its quota a key has consumed.
type APIKeyUsageResponse struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	RequestsUsed      int64      `json:"requests_used"`
	RequestsLimit     int64      `json:"requests_limit"`
	RequestsRemaining *int64     `json:"requests_remaining"`
	UsagePercent      float64    `json:"usage_percent"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

// Usage builds the quota report of the key.
// RequestsRemaining is nil and UsagePercent zero for unlimited keys.
func (ak *APIKey) Usage(now time.Time) *APIKeyUsageResponse {
	usage := &APIKeyUsageResponse{
		ID:            ak.ID,
		Status:        ak.Status(now),
		RequestsUsed:  ak.RequestsUsed,
		RequestsLimit: ak.RequestsLimit,
		LastUsedAt:    ak.LastUsedAt,
		ExpiresAt:     ak.ExpiresAt,
	}
	if ak.RequestsLimit > 0 {
		remaining := ak.RequestsLimit - ak.RequestsUsed
		if remaining < 0 {
			remaining = 0
		}
		usage.RequestsRemaining = &remaining
		usage.UsagePercent = float64(ak.RequestsUsed) * 100 / float64(ak.RequestsLimit)
	}
	return usage
}

// APIKeyCreatedResponse is returned once, on creation or regeneration.
// It is the only time the raw key leaves the service.
type APIKeyCreatedResponse struct {
	*APIKeyResponse
	Key string `json:"key"`
}
