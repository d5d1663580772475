// Package handlers provides HTTP request handlers for the Veil gateway's
// key management, validation and provider APIs.
package handlers

import (
	"context"

	"github.com/try-veil/veil-gateway/internal/models"
)

// KeyServiceInterface defines methods required from the key lifecycle service.
// This interface is used by the key handlers to interact with the key business logic
// without being tightly coupled to the implementation.
type KeyServiceInterface interface {
	// CreateKey issues a new API key for a user.
	//
	// Parameters:
	//   - ctx: Context for the operation
	//   - userID: The owner of the new key
	//   - req: The validated creation request
	//
	// Returns:
	//   - The masked key together with the raw key, shown only once
	//   - An error if creation fails
	CreateKey(ctx context.Context, userID int64, req *models.CreateAPIKeyRequest) (*models.APIKeyCreatedResponse, error)

	// ListKeys returns one page of a user's keys filtered by status.
	//
	// Returns:
	//   - The keys on the page
	//   - The total number of matching keys
	//   - An error if the status is unknown or the query fails
	ListKeys(ctx context.Context, userID int64, status string, page, pageSize int) ([]*models.APIKeyResponse, int, error)

	// GetKey returns a key the caller owns. Admins may read any key.
	GetKey(ctx context.Context, userID int64, isAdmin bool, keyID string) (*models.APIKeyResponse, error)

	// UpdateKey applies a partial update to a key the caller owns.
	UpdateKey(ctx context.Context, userID int64, isAdmin bool, keyID string, req *models.UpdateAPIKeyRequest) (*models.APIKeyResponse, error)

	// RegenerateKey replaces the secret of a key the caller owns.
	RegenerateKey(ctx context.Context, userID int64, isAdmin bool, keyID, reason string) (*models.APIKeyCreatedResponse, error)

	// RevokeKey deactivates a key the caller owns.
	RevokeKey(ctx context.Context, userID int64, isAdmin bool, keyID, reason string) error

	// DeleteKey permanently removes a key the caller owns.
	DeleteKey(ctx context.Context, userID int64, isAdmin bool, keyID string) error

	// GetKeyUsage reports the quota consumption of a key the caller owns.
	GetKeyUsage(ctx context.Context, userID int64, isAdmin bool, keyID string) (*models.APIKeyUsageResponse, error)

	// SearchKeys returns the caller's keys whose name contains term.
	SearchKeys(ctx context.Context, userID int64, term string) ([]*models.APIKeyResponse, error)

	// BulkOperation applies one action to several keys.
	//
	// Returns:
	//   - A per-key summary of what succeeded and what failed
	//   - An error only when the request itself is invalid
	BulkOperation(ctx context.Context, userID int64, isAdmin bool, req *models.BulkKeyOperationRequest) (*models.BulkKeyOperationResult, error)

	// UpdateQuota sets a key's request limit.
	UpdateQuota(ctx context.Context, keyID string, limit int64) (*models.APIKeyResponse, error)

	// ResetUsage sets a key's used request count back to zero.
	ResetUsage(ctx context.Context, keyID string) (*models.APIKeyResponse, error)

	// UpdateSubscriptionStatus sets the subscription status mirrored on a key.
	UpdateSubscriptionStatus(ctx context.Context, keyID, status string) (*models.APIKeyResponse, error)
}

// APIServiceInterface defines methods required from the onboarded API service.
type APIServiceInterface interface {
	OnboardAPI(ctx context.Context, req *models.OnboardAPIRequest) (*models.APIResponseDTO, error)
	ListAPIs(ctx context.Context) ([]*models.APIConfig, error)
	GetAPI(ctx context.Context, id int64) (*models.APIConfig, error)
	GetAPIByPath(ctx context.Context, path string) (*models.APIConfig, error)
	DeleteAPI(ctx context.Context, id int64) error
	AddKeys(ctx context.Context, req *models.APIKeysRequestDTO) (*models.APIResponseDTO, error)
	SetKeyStatus(ctx context.Context, req *models.APIKeyStatusRequestDTO) error
	DeleteKey(ctx context.Context, req *models.APIKeyDeleteRequestDTO) error
}
