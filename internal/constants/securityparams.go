package constants

// Context Keys
const (
	UserIDContextKey    = "user_id"
	RoleContextKey      = "role"
	RequestIDContextKey = "request_id"
	PrincipalContextKey = "principal"
)

// Auth Token Types
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Platform Roles carried in management JWTs
const (
	RoleConsumer = "consumer"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
)

// API Key Permissions
const (
	PermissionRead  = "read"
	PermissionWrite = "write"
	PermissionAdmin = "admin"
)

// Subscription Statuses
const (
	SubscriptionActive    = "active"
	SubscriptionSuspended = "suspended"
	SubscriptionCancelled = "cancelled"
)

// Key Listing Filters
const (
	KeyStatusActive   = "active"
	KeyStatusInactive = "inactive"
	KeyStatusExpired  = "expired"
	KeyStatusAll      = "all"
)

// Bulk Key Actions
const (
	KeyActionActivate   = "activate"
	KeyActionDeactivate = "deactivate"
	KeyActionDelete     = "delete"
)

// Parameter Locations for onboarded API request rules
const (
	ParamLocationQuery  = "query"
	ParamLocationPath   = "path"
	ParamLocationHeader = "header"
	ParamLocationBody   = "body"
)

// Rate Limit Categories
const (
	RateCategoryGateway    = "gateway"
	RateCategoryManagement = "management"
	RateCategoryValidate   = "validate"
)

// Event Sinks
const (
	EventSinkNone = "none"
	EventSinkLog  = "log"
	EventSinkHTTP = "http"
)

// Cookie Names
const (
	AuthTokenCookie = "auth_token"
	CSRFTokenCookie = "csrf_token"
)
