// Package constants provides shared constant values used throughout the application.
//
// The errorcodes.go file defines constants related to error handling, categorization,
// and messaging. User-facing messages are informative without revealing which
// part of a credential check failed before the key has been matched.
package constants

// Error Types define the categories of errors that can occur in the application.
const (
	// ErrorNotFound indicates that a requested resource could not be found.
	ErrorNotFound = "resource not found"

	// ErrorUnauthorized indicates that authentication is required but was not provided.
	ErrorUnauthorized = "unauthorized access"

	// ErrorForbidden indicates that the requester lacks sufficient permissions.
	ErrorForbidden = "forbidden access"

	// ErrorBadRequest indicates that the request was malformed or invalid.
	ErrorBadRequest = "invalid request"

	// ErrorInternalServer indicates an unexpected internal error.
	ErrorInternalServer = "internal server error"

	// ErrorValidation indicates that input validation failed.
	ErrorValidation = "validation error"

	// ErrorDuplicate indicates an attempt to create a resource that already exists.
	ErrorDuplicate = "duplicate resource"

	// ErrorExpiredToken indicates that an authentication token has expired.
	ErrorExpiredToken = "expired token"

	// ErrorInvalidToken indicates that an authentication token is malformed or invalid.
	ErrorInvalidToken = "invalid token"

	// ErrorMissingCredential indicates that no API key was supplied.
	ErrorMissingCredential = "missing credential"

	// ErrorMalformedCredential indicates that the API key does not have the expected shape.
	ErrorMalformedCredential = "malformed credential"

	// ErrorInvalidCredential indicates that a well-formed API key did not match a stored key.
	ErrorInvalidCredential = "invalid credential"

	// ErrorInactiveKey indicates that the API key has been deactivated or revoked.
	ErrorInactiveKey = "inactive api key"

	// ErrorExpiredKey indicates that the API key is past its expiry.
	ErrorExpiredKey = "expired api key"

	// ErrorSubscriptionInactive indicates that the key's subscription is suspended or cancelled.
	ErrorSubscriptionInactive = "subscription inactive"

	// ErrorQuotaExceeded indicates that the key has used its request allowance.
	ErrorQuotaExceeded = "quota exceeded"

	// ErrorKeyLimitReached indicates that the subscription already holds the maximum active keys.
	ErrorKeyLimitReached = "key limit reached"

	// ErrorRateLimited indicates that the caller is sending requests too quickly.
	ErrorRateLimited = "rate limited"

	// ErrorConflict indicates the request does not fit the resource's current state.
	ErrorConflict = "state conflict"
)

// User-Facing Error Messages define standardized messages that can be safely presented to users.
const (
	// MsgMissingAPIKey is returned when neither the header nor the query parameter carries a key.
	MsgMissingAPIKey = "Missing API key. Provide via X-API-Key header or api_key query parameter"

	// MsgInvalidAPIKeyFormat is returned when the key fails the structural check.
	MsgInvalidAPIKeyFormat = "Invalid API key format"

	// MsgInvalidAPIKey is returned when the key is structurally valid but not accepted.
	MsgInvalidAPIKey = "Invalid API key"

	// MsgAPIKeyInactive is returned for a deactivated or revoked key.
	MsgAPIKeyInactive = "API key is inactive"

	// MsgAPIKeyExpired is returned for a key past its expiry.
	MsgAPIKeyExpired = "API key has expired"

	// MsgSubscriptionInactive is returned when the key's subscription is not active.
	MsgSubscriptionInactive = "Subscription is not active"

	// MsgQuotaExceeded is returned when the key's request quota is used up.
	MsgQuotaExceeded = "API key quota exceeded"

	// MsgKeyLimitReached is returned when a subscription already holds the maximum active keys.
	MsgKeyLimitReached = "Maximum number of active API keys reached for this subscription"

	// MsgKeyAlreadyInactive is returned when revoking a key that is not active.
	MsgKeyAlreadyInactive = "API key is already inactive"

	// MsgRegenerateInactiveKey is returned when regenerating a key that is not active.
	MsgRegenerateInactiveKey = "Cannot regenerate an inactive API key"

	// MsgKeyNotAllowedForAPI is returned when a scoped key is used against a different API.
	MsgKeyNotAllowedForAPI = "API key is not authorized for this API"

	// MsgRateLimited is returned when the caller exceeds its request rate.
	MsgRateLimited = "Too many requests, please try again later"

	// MsgAuthRequired indicates that the user must authenticate to access the resource.
	MsgAuthRequired = "Authentication required"

	// MsgAccessDenied indicates that the user lacks permission for the requested action.
	MsgAccessDenied = "You don't have permission to access this resource"

	// MsgInternalServerError provides a generic server error message.
	MsgInternalServerError = "An internal server error occurred"

	// MsgTokenExpired indicates that the user's authentication token has expired.
	MsgTokenExpired = "Authentication token has expired"

	// MsgInvalidToken indicates that the provided token is invalid.
	MsgInvalidToken = "Invalid token"

	// MsgRequestBodyTooLarge indicates that the request payload exceeds size limits.
	MsgRequestBodyTooLarge = "Request body too large"

	// MsgEmptyRequestBody indicates that a request body was expected but not provided.
	MsgEmptyRequestBody = "Request body must not be empty"

	// MsgMalformedJSON indicates that the request body contains invalid JSON.
	MsgMalformedJSON = "Request body contains malformed JSON"

	// MsgResourceNotFound indicates that the requested resource does not exist.
	MsgResourceNotFound = "The requested resource could not be found"

	// MsgResourceAlreadyExists indicates a duplicate resource conflict.
	MsgResourceAlreadyExists = "A resource with the same unique identifier already exists"

	// MsgMethodNotAllowed indicates that the HTTP method is not supported for the endpoint.
	MsgMethodNotAllowed = "This method is not allowed for this resource"

	// MsgNoMatchingAPI is returned by the gateway when no onboarded API matches the path.
	MsgNoMatchingAPI = "No API registered for this path"

	// MsgUpstreamUnavailable is returned when the upstream cannot be reached.
	MsgUpstreamUnavailable = "Upstream service unavailable"

	// MsgAPIKeyRevoked confirms successful API key revocation.
	MsgAPIKeyRevoked = "API key successfully revoked"

	// MsgAPIKeyDeleted confirms successful API key deletion.
	MsgAPIKeyDeleted = "API key successfully deleted"

	// MsgAPIKeyStatusUpdated confirms an API key status change.
	MsgAPIKeyStatusUpdated = "API key status updated"

	// MsgAPIOnboarded confirms that an API was onboarded or updated.
	MsgAPIOnboarded = "API onboarded successfully"

	// MsgAPIDeleted confirms that an API was removed.
	MsgAPIDeleted = "API deleted successfully"

	// MsgAPIKeysAdded confirms that keys were issued for an API.
	MsgAPIKeysAdded = "API keys added successfully"
)

// Database Error Types define constants for recognizing and handling database-specific errors.
const (
	// DBErrorDuplicateKey is the PostgreSQL error message for unique constraint violations.
	DBErrorDuplicateKey = "duplicate key value violates unique constraint"

	// DBErrorUniqueConstraint is the SQLite error message for unique constraint violations.
	DBErrorUniqueConstraint = "UNIQUE constraint failed"

	// PGErrorDuplicateConstraint is the PostgreSQL error code for unique constraint violations.
	PGErrorDuplicateConstraint = "23505"

	// PGErrorForeignKeyConstraint is the PostgreSQL error code for foreign key violations.
	PGErrorForeignKeyConstraint = "23503"

	// PGErrorNotNullConstraint is the PostgreSQL error code for not-null constraint violations.
	PGErrorNotNullConstraint = "23502"

	// MySQLErrorDuplicateEntry is the MySQL error number for unique constraint violations.
	MySQLErrorDuplicateEntry = 1062

	// MySQLErrorForeignKey is the MySQL error number for foreign key violations.
	MySQLErrorForeignKey = 1452
)

// Logger Constants define values used for structured logging.
const (
	// LogCategoryAuth is the log category for authentication-related events.
	LogCategoryAuth = "auth"

	// LogCategoryGateway is the log category for proxied traffic.
	LogCategoryGateway = "gateway"

	// LogEventAPIKey is the log event type for API key operations.
	LogEventAPIKey = "api_key"

	// LogEventKeyCreated is logged when a key is issued.
	LogEventKeyCreated = "key_created"

	// LogEventKeyRegenerated is logged when a key's secret is rotated.
	LogEventKeyRegenerated = "key_regenerated"

	// LogEventKeyRevoked is logged when a key is revoked.
	LogEventKeyRevoked = "key_revoked"

	// LogEventKeyDeleted is logged when a key is permanently removed.
	LogEventKeyDeleted = "key_deleted"

	// LogEventKeyRejected is logged when a presented key fails validation.
	LogEventKeyRejected = "key_rejected"

	// LogEventQuotaWarning is logged when a key crosses the quota warning ratio.
	LogEventQuotaWarning = "quota_warning"

	// LogFieldRequestID is the log field carrying the request identifier.
	LogFieldRequestID = "request_id"

	// LogFieldUserID is the log field carrying the key owner or caller.
	LogFieldUserID = "user_id"

	// LogFieldKeyID is the log field carrying the API key identifier.
	LogFieldKeyID = "key_id"

	// LogFieldAPIPath is the log field carrying the onboarded API path.
	LogFieldAPIPath = "api_path"

	// LogRedactedValue is used to replace sensitive values in logs.
	LogRedactedValue = "[REDACTED]"
)
