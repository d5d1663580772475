// Package constants provides shared constant values used throughout the application.
//
// The general_const.go file defines routing paths, URL parameter names and
// query parameter names.
package constants

// Base Routes define the root URL paths for different parts of the API.
const (
	// APIBasePath is the root path prefix for consumer and admin endpoints.
	APIBasePath = "/api"

	// VeilBasePath is the root path prefix for provider management endpoints.
	VeilBasePath = "/veil/api"

	// HealthPath is the endpoint for health checks and system status.
	HealthPath = "/health"

	// VersionPath reports build information.
	VersionPath = "/version"
)

// Route Suffixes are mounted beneath the base routes.
const (
	KeysPath            = "/keys"
	KeyDetailPath       = "/{keyID}"
	KeyValidatePath     = "/validate"
	KeyRegeneratePath   = "/regenerate"
	KeyQuotaPath        = "/quota"
	KeyUsageResetPath   = "/usage/reset"
	KeyUsagePath        = "/usage"
	KeyPermanentPath    = "/permanent"
	KeySearchPath       = "/search"
	KeyBulkPath         = "/bulk"
	KeySubscriptionPath = "/subscription-status"
	APIOnboardPath      = "/onboard"
	APIListPath         = "/list"
	APIDetailPath       = "/apis/{apiID}"
	APIKeysStatusPath   = "/keys/status"
)

// URL Parameters define path parameter names used in route definitions.
const (
	// ParamKeyID is the URL parameter for API key identifiers.
	ParamKeyID = "keyID"

	// ParamAPIID is the URL parameter for onboarded API identifiers.
	ParamAPIID = "apiID"
)

// Query Parameters define common query string parameter names.
const (
	// QueryParamAPIKey carries the API key when the header is not used.
	QueryParamAPIKey = "api_key"

	// QueryParamPage is the query parameter for pagination page number.
	QueryParamPage = "page"

	// QueryParamPageSize is the query parameter for pagination page size.
	QueryParamPageSize = "page_size"

	// QueryParamLimit is accepted as an alias for page_size.
	QueryParamLimit = "limit"

	// QueryParamStatus filters key listings.
	QueryParamStatus = "status"

	// QueryParamSearch carries the key name search term.
	QueryParamSearch = "q"

	// QueryParamPath selects a single onboarded API by its path.
	QueryParamPath = "path"
)

// Response Statuses used by provider operations
const (
	ResponseStatusSuccess = "success"
)

// Maintenance job names
const (
	JobCleanupExpiredKeys = "cleanup_expired_keys"
	JobResetUsage         = "reset_usage"
)
