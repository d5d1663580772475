package utils

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/try-veil/veil-gateway/internal/constants"
)

// Custom error types for the application
var (
	ErrNotFound       = errors.New(constants.ErrorNotFound)
	ErrUnauthorized   = errors.New(constants.ErrorUnauthorized)
	ErrForbidden      = errors.New(constants.ErrorForbidden)
	ErrBadRequest     = errors.New(constants.ErrorBadRequest)
	ErrInternalServer = errors.New(constants.ErrorInternalServer)
	ErrValidation     = errors.New(constants.ErrorValidation)
	ErrDuplicate      = errors.New(constants.ErrorDuplicate)
	ErrExpiredToken   = errors.New(constants.ErrorExpiredToken)
	ErrInvalidToken   = errors.New(constants.ErrorInvalidToken)
	ErrConflict       = errors.New(constants.ErrorConflict)
)

// API key errors. MissingCredential and MalformedCredential are raised before
// any storage lookup; the rest require a key that matched a stored record.
var (
	ErrMissingCredential    = errors.New(constants.ErrorMissingCredential)
	ErrMalformedCredential  = errors.New(constants.ErrorMalformedCredential)
	ErrInvalidCredential    = errors.New(constants.ErrorInvalidCredential)
	ErrInactiveKey          = errors.New(constants.ErrorInactiveKey)
	ErrExpiredKey           = errors.New(constants.ErrorExpiredKey)
	ErrSubscriptionInactive = errors.New(constants.ErrorSubscriptionInactive)
	ErrQuotaExceeded        = errors.New(constants.ErrorQuotaExceeded)
	ErrKeyLimitReached      = errors.New(constants.ErrorKeyLimitReached)
	ErrRateLimited          = errors.New(constants.ErrorRateLimited)
)

// AppError represents an application error with additional context
type AppError struct {
	Err        error  // The underlying error
	StatusCode int    // HTTP status code
	Message    string // User-friendly error message
	DevInfo    string // Additional information for developers
	Field      string // Field related to the error (for validation errors)
	Details    map[string]any
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given error and status code
func New(err error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        err,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewWithDevInfo creates a new AppError with developer information
func NewWithDevInfo(err error, statusCode int, message, devInfo string) *AppError {
	return &AppError{
		Err:        err,
		StatusCode: statusCode,
		Message:    message,
		DevInfo:    devInfo,
	}
}

// NewValidationError creates a new validation error for a specific field
func NewValidationError(field, message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Field:      field,
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		StatusCode: http.StatusBadRequest,
		Message:    message,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resourceType string, identifier interface{}) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		StatusCode: http.StatusNotFound,
		Message:    fmt.Sprintf("%s with identifier '%v' not found", resourceType, identifier),
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = constants.MsgAuthRequired
	}
	return &AppError{
		Err:        ErrUnauthorized,
		StatusCode: http.StatusUnauthorized,
		Message:    message,
	}
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(message string) *AppError {
	if message == "" {
		message = constants.MsgAccessDenied
	}
	return &AppError{
		Err:        ErrForbidden,
		StatusCode: http.StatusForbidden,
		Message:    message,
	}
}

// NewInternalServerError creates a new internal server error
func NewInternalServerError(err error) *AppError {
	devInfo := ""
	if err != nil {
		devInfo = err.Error()
	}
	return &AppError{
		Err:        ErrInternalServer,
		StatusCode: http.StatusInternalServerError,
		Message:    constants.MsgInternalServerError,
		DevInfo:    devInfo,
	}
}

// NewDuplicateError creates a new duplicate resource error
func NewDuplicateError(resourceType, field string, value interface{}) *AppError {
	return &AppError{
		Err:        ErrDuplicate,
		StatusCode: http.StatusConflict,
		Message:    fmt.Sprintf("%s with %s '%v' already exists", resourceType, field, value),
		Field:      field,
	}
}

// NewConflictError is returned when a request does not fit the resource's current state
func NewConflictError(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		StatusCode: http.StatusConflict,
		Message:    message,
	}
}

// NewExpiredTokenError creates a new expired token error
func NewExpiredTokenError() *AppError {
	return &AppError{
		Err:        ErrExpiredToken,
		StatusCode: http.StatusUnauthorized,
		Message:    "Token has expired",
	}
}

// NewInvalidTokenError creates a new invalid token error
func NewInvalidTokenError() *AppError {
	return &AppError{
		Err:        ErrInvalidToken,
		StatusCode: http.StatusUnauthorized,
		Message:    constants.MsgInvalidToken,
	}
}

// NewMissingCredentialError is returned when no API key was presented.
func NewMissingCredentialError() *AppError {
	return &AppError{
		Err:        ErrMissingCredential,
		StatusCode: http.StatusUnauthorized,
		Message:    constants.MsgMissingAPIKey,
	}
}

// NewMalformedCredentialError is returned when the key fails the structural check.
// message distinguishes a bad shape from a bad user id segment.
func NewMalformedCredentialError(message string) *AppError {
	return &AppError{
		Err:        ErrMalformedCredential,
		StatusCode: http.StatusUnauthorized,
		Message:    message,
	}
}

// NewInvalidCredentialError is returned for unknown keys and owner mismatches.
func NewInvalidCredentialError() *AppError {
	return &AppError{
		Err:        ErrInvalidCredential,
		StatusCode: http.StatusUnauthorized,
		Message:    constants.MsgInvalidAPIKey,
	}
}

// NewInactiveKeyError is returned for deactivated or revoked keys.
func NewInactiveKeyError() *AppError {
	return &AppError{
		Err:        ErrInactiveKey,
		StatusCode: http.StatusUnauthorized,
		Message:    constants.MsgAPIKeyInactive,
	}
}

// NewExpiredKeyError is returned for keys past their expiry.
func NewExpiredKeyError() *AppError {
	return &AppError{
		Err:        ErrExpiredKey,
		StatusCode: http.StatusUnauthorized,
		Message:    constants.MsgAPIKeyExpired,
	}
}

// NewSubscriptionInactiveError is returned when the key's subscription is suspended or cancelled.
func NewSubscriptionInactiveError(status string) *AppError {
	return &AppError{
		Err:        ErrSubscriptionInactive,
		StatusCode: http.StatusForbidden,
		Message:    constants.MsgSubscriptionInactive,
		Details:    map[string]any{"subscription_status": status},
	}
}

// NewQuotaExceededError is returned when a key has used its allowance.
func NewQuotaExceededError(used, limit int64) *AppError {
	return &AppError{
		Err:        ErrQuotaExceeded,
		StatusCode: http.StatusTooManyRequests,
		Message:    constants.MsgQuotaExceeded,
		DevInfo:    fmt.Sprintf("quota exceeded: %d/%d", used, limit),
		Details:    map[string]any{"requests_used": used, "requests_limit": limit},
	}
}

// NewKeyLimitReachedError is returned when a subscription already holds the maximum active keys.
func NewKeyLimitReachedError(limit int) *AppError {
	return &AppError{
		Err:        ErrKeyLimitReached,
		StatusCode: http.StatusConflict,
		Message:    constants.MsgKeyLimitReached,
		Details:    map[string]any{"max_active_keys": limit},
	}
}

// NewRateLimitedError is returned when a caller exceeds its request rate.
func NewRateLimitedError() *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		StatusCode: http.StatusTooManyRequests,
		Message:    constants.MsgRateLimited,
	}
}

// ParseError attempts to parse various types of errors into an AppError
func ParseError(err error) *AppError {
	// If it's already an AppError, return it
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return NewNotFoundError("Resource", "")
	case errors.Is(err, ErrUnauthorized):
		return NewUnauthorizedError("")
	case errors.Is(err, ErrForbidden):
		return NewForbiddenError("")
	case errors.Is(err, ErrBadRequest):
		return NewBadRequestError(err.Error())
	case errors.Is(err, ErrValidation):
		return NewValidationError("", err.Error())
	case errors.Is(err, ErrDuplicate):
		return NewDuplicateError("Resource", "", "")
	case errors.Is(err, ErrExpiredToken):
		return NewExpiredTokenError()
	case errors.Is(err, ErrInvalidToken):
		return NewInvalidTokenError()
	case errors.Is(err, ErrMissingCredential):
		return NewMissingCredentialError()
	case errors.Is(err, ErrMalformedCredential):
		return NewMalformedCredentialError(constants.MsgInvalidAPIKeyFormat)
	case errors.Is(err, ErrInvalidCredential):
		return NewInvalidCredentialError()
	case errors.Is(err, ErrInactiveKey):
		return NewInactiveKeyError()
	case errors.Is(err, ErrExpiredKey):
		return NewExpiredKeyError()
	case errors.Is(err, ErrRateLimited):
		return NewRateLimitedError()
	}

	// PostgreSQL constraint violations
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case constants.PGErrorDuplicateConstraint:
			return &AppError{
				Err:        ErrDuplicate,
				StatusCode: http.StatusConflict,
				Message:    constants.MsgResourceAlreadyExists,
				DevInfo:    pqErr.Error(),
				Field:      constraintField(pqErr.Constraint),
			}
		case constants.PGErrorForeignKeyConstraint:
			return &AppError{
				Err:        ErrBadRequest,
				StatusCode: http.StatusBadRequest,
				Message:    "This operation violates a foreign key constraint",
				DevInfo:    pqErr.Error(),
			}
		case constants.PGErrorNotNullConstraint:
			field := pqErr.Column
			return &AppError{
				Err:        ErrValidation,
				StatusCode: http.StatusBadRequest,
				Message:    fmt.Sprintf("The %s field cannot be empty", field),
				DevInfo:    pqErr.Error(),
				Field:      field,
			}
		}
	}

	// MySQL constraint violations
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case constants.MySQLErrorDuplicateEntry:
			return &AppError{
				Err:        ErrDuplicate,
				StatusCode: http.StatusConflict,
				Message:    constants.MsgResourceAlreadyExists,
				DevInfo:    myErr.Error(),
			}
		case constants.MySQLErrorForeignKey:
			return &AppError{
				Err:        ErrBadRequest,
				StatusCode: http.StatusBadRequest,
				Message:    "This operation violates a foreign key constraint",
				DevInfo:    myErr.Error(),
			}
		}
	}

	// Driver-agnostic patterns, including sqlite
	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "duplicate key") || strings.Contains(errMsg, "unique constraint"):
		return &AppError{
			Err:        ErrDuplicate,
			StatusCode: http.StatusConflict,
			Message:    constants.MsgResourceAlreadyExists,
			DevInfo:    err.Error(),
		}
	case strings.Contains(errMsg, "no rows"):
		return &AppError{
			Err:        ErrNotFound,
			StatusCode: http.StatusNotFound,
			Message:    constants.MsgResourceNotFound,
			DevInfo:    err.Error(),
		}
	}

	return NewInternalServerError(err)
}

// constraintField extracts the column part of an idx_<field> constraint name.
func constraintField(constraint string) string {
	if idx := strings.Index(constraint, "idx_"); idx >= 0 {
		return constraint[idx+len("idx_"):]
	}
	return ""
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode == http.StatusNotFound
	}
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if an error is a duplicate resource error
func IsDuplicateError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return errors.Is(appErr.Err, ErrDuplicate)
	}
	return errors.Is(err, ErrDuplicate)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return errors.Is(appErr.Err, ErrValidation)
	}
	return errors.Is(err, ErrValidation)
}

// StatusCode returns the HTTP status code for an error
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
