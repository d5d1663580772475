package models

import (
	"strings"
	"time"

	"github.com/try-veil/veil-gateway/internal/constants"
)

// APIConfig is an upstream API onboarded by a provider.
// Requests whose path starts with Path are proxied to Upstream.
type APIConfig struct {
	ID                   int64          `json:"id" db:"id"`
	Name                 string         `json:"name" db:"name"`
	Path                 string         `json:"path" db:"path"`
	Upstream             string         `json:"upstream" db:"upstream"`
	RequiredSubscription string         `json:"required_subscription,omitempty" db:"required_subscription"`
	RequestCount         int64          `json:"request_count" db:"request_count"`
	LastAccessed         *time.Time     `json:"last_accessed,omitempty" db:"last_accessed"`
	Methods              []string       `json:"methods"`
	Parameters           []APIParameter `json:"parameters"`
	RequiredHeaders      []string       `json:"required_headers"`
	CreatedAt            time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at" db:"updated_at"`
}

// TableName returns the database table name for the APIConfig model.
func (c *APIConfig) TableName() string {
	return constants.TableAPIConfigs
}

// APIParameter is a request rule for an onboarded API.
// Validation, when set, is a regular expression the value must match.
type APIParameter struct {
	Name       string `json:"name" db:"name" validate:"required,max=100"`
	Type       string `json:"type" db:"param_type" validate:"required,oneof=query path header body"`
	Required   bool   `json:"required" db:"required"`
	Validation string `json:"validation,omitempty" db:"validation" validate:"omitempty,regex_pattern"`
}

// AllowsMethod reports whether method is among the configured methods.
func (c *APIConfig) AllowsMethod(method string) bool {
	for _, m := range c.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// MatchesPath reports whether requestPath falls under the API's path prefix.
// "/weather" matches "/weather" and "/weather/today" but not "/weatherman".
func (c *APIConfig) MatchesPath(requestPath string) bool {
	prefix := strings.TrimSuffix(c.Path, "/")
	if prefix == "" {
		return true
	}
	if !strings.HasPrefix(requestPath, prefix) {
		return false
	}
	return len(requestPath) == len(prefix) || requestPath[len(prefix)] == '/'
}

// OnboardAPIRequest registers or replaces an upstream API.
type OnboardAPIRequest struct {
	Name                 string           `json:"name" validate:"omitempty,max=100,key_name"`
	Path                 string           `json:"path" validate:"required,max=255,api_path"`
	Upstream             string           `json:"upstream" validate:"required,max=2048,upstream_url"`
	RequiredSubscription string           `json:"required_subscription" validate:"omitempty,max=100"`
	Methods              []string         `json:"methods" validate:"required,min=1,dive,http_method"`
	RequiredHeaders      []string         `json:"required_headers" validate:"omitempty,dive,required,max=255"`
	Parameters           []APIParameter   `json:"parameters" validate:"omitempty,dive"`
	APIKeys              []ProviderKeyDTO `json:"api_keys" validate:"omitempty,dive"`
}

// ProviderKeyDTO describes a key a provider issues for an API.
type ProviderKeyDTO struct {
	Name           string     `json:"name" validate:"required,min=1,max=100,key_name"`
	UserID         int64      `json:"user_id" validate:"required,gt=0"`
	SubscriptionID *int64     `json:"subscription_id" validate:"omitempty,gt=0"`
	RequestsLimit  int64      `json:"requests_limit" validate:"gte=0"`
	ExpiresAt      *time.Time `json:"expires_at"`
}

// APIKeysRequestDTO issues additional keys for an onboarded API.
type APIKeysRequestDTO struct {
	Path    string           `json:"path" validate:"required,api_path"`
	APIKeys []ProviderKeyDTO `json:"api_keys" validate:"required,min=1,dive"`
}

// APIKeyStatusRequestDTO activates or deactivates one key of an API.
type APIKeyStatusRequestDTO struct {
	Path     string `json:"path" validate:"required,api_path"`
	APIKey   string `json:"api_key" validate:"required"`
	IsActive *bool  `json:"is_active" validate:"required"`
}

// APIKeyDeleteRequestDTO deletes one key of an API.
type APIKeyDeleteRequestDTO struct {
	Path   string `json:"path" validate:"required,api_path"`
	APIKey string `json:"api_key" validate:"required"`
}

// IssuedKeyDTO is a key issued by a provider operation; Key is shown once.
type IssuedKeyDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	UserID int64  `json:"user_id"`
	Key    string `json:"key"`
}

// APIResponseDTO is the response of provider operations.
type APIResponseDTO struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	API     *APIConfig     `json:"api,omitempty"`
	APIKeys []IssuedKeyDTO `json:"api_keys,omitempty"`
}
