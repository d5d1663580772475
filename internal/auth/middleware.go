// Package auth provides API key issuance and parsing, management token
// verification and the request context helpers shared by the gateway.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/models"
	"github.com/try-veil/veil-gateway/internal/utils"
)

// ContextKey is a custom type for context keys to prevent collisions.
type ContextKey string

// Context keys for storing authenticated identities and request metadata.
const (
	// UserIDContextKey is the context key for storing the authenticated user ID.
	UserIDContextKey ContextKey = constants.UserIDContextKey

	// RoleContextKey is the context key for storing the platform role of the caller.
	RoleContextKey ContextKey = constants.RoleContextKey

	// RequestIDContextKey is the context key for storing the unique request ID.
	RequestIDContextKey ContextKey = constants.RequestIDContextKey

	// PrincipalContextKey is the context key for storing the API key principal.
	PrincipalContextKey ContextKey = constants.PrincipalContextKey
)

// AuthProvider defines methods for different authentication mechanisms.
type AuthProvider interface {
	// Authenticate checks the request and returns the caller if valid.
	//
	// Parameters:
	//   - r: The HTTP request containing authentication credentials
	//
	// Returns:
	//   - userID: The authenticated user's ID
	//   - role: The platform role of the user
	//   - error: An error if authentication fails, nil if successful
	Authenticate(r *http.Request) (int64, string, error)
}

// JWTAuthProvider implements JWT-based authentication for management routes.
type JWTAuthProvider struct {
	jwtService JWTValidator
}

// NewJWTAuthProvider creates a new JWTAuthProvider with the specified JWT validator.
func NewJWTAuthProvider(jwtService JWTValidator) *JWTAuthProvider {
	return &JWTAuthProvider{
		jwtService: jwtService,
	}
}

// Authenticate implements the AuthProvider interface for JWT authentication.
// It reads a bearer token from the Authorization header or the auth cookie.
func (p *JWTAuthProvider) Authenticate(r *http.Request) (int64, string, error) {
	authHeader := r.Header.Get(constants.HeaderAuthorization)
	if authHeader == "" {
		// Check for token in cookie as fallback
		cookie, err := r.Cookie(constants.AuthTokenCookie)
		if err != nil {
			return 0, "", utils.ErrUnauthorized
		}
		authHeader = constants.BearerTokenPrefix + cookie.Value
	}

	if !strings.HasPrefix(authHeader, constants.BearerTokenPrefix) {
		return 0, "", utils.ErrUnauthorized
	}

	token := strings.TrimPrefix(authHeader, constants.BearerTokenPrefix)

	claims, err := p.jwtService.ValidateToken(token, constants.TokenTypeAccess)
	if err != nil {
		return 0, "", err
	}

	return claims.UserID, claims.Role, nil
}

// AuthMiddleware wraps an HTTP handler with authentication.
// It tries each provider in turn and lets the request through on the first success.
//
// Parameters:
//   - next: The HTTP handler to call if authentication succeeds
//   - providers: One or more authentication providers to try
//
// Returns:
//   - An HTTP handler that enforces authentication
func AuthMiddleware(next http.Handler, providers ...AuthProvider) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, requestID := ensureRequestID(r)

		var lastErr error = utils.ErrUnauthorized
		for _, provider := range providers {
			userID, role, err := provider.Authenticate(r)
			if err == nil {
				ctx = context.WithValue(ctx, UserIDContextKey, userID)
				ctx = context.WithValue(ctx, RoleContextKey, role)

				log.Debug().
					Int64(constants.LogFieldUserID, userID).
					Str("role", role).
					Str(constants.LogFieldRequestID, requestID).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("User authenticated")

				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			lastErr = err
		}

		log.Info().
			Err(lastErr).
			Str(constants.LogFieldRequestID, requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Authentication failed")

		var appErr *utils.AppError
		if errors.As(lastErr, &appErr) {
			utils.ErrorFromAppError(w, appErr)
		} else {
			utils.Unauthorized(w, constants.MsgAuthRequired)
		}
	})
}

// RequireAuth is a middleware that requires authentication.
func RequireAuth(providers ...AuthProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return AuthMiddleware(next, providers...)
	}
}

// ensureRequestID makes sure the request carries an X-Request-ID and stores it in the context
func ensureRequestID(r *http.Request) (context.Context, string) {
	requestID, ok := GetRequestID(r)
	if !ok {
		requestID = r.Header.Get(constants.HeaderXRequestID)
	}
	if requestID == "" {
		requestID = uuid.New().String()
		r.Header.Set(constants.HeaderXRequestID, requestID)
	}
	return context.WithValue(r.Context(), RequestIDContextKey, requestID), requestID
}

// WithRequestID returns a copy of ctx carrying requestID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDContextKey, requestID)
}

// WithPrincipal returns a copy of ctx carrying the API key principal
func WithPrincipal(ctx context.Context, principal *models.Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, principal)
}

// GetPrincipal extracts the API key principal from the request context.
func GetPrincipal(r *http.Request) (*models.Principal, bool) {
	principal, ok := r.Context().Value(PrincipalContextKey).(*models.Principal)
	return principal, ok && principal != nil
}

// GetUserID extracts the user ID from the request context.
//
// Parameters:
//   - r: The HTTP request containing the context
//
// Returns:
//   - The user ID if present
//   - A boolean indicating if the user ID was found
func GetUserID(r *http.Request) (int64, bool) {
	userID, ok := r.Context().Value(UserIDContextKey).(int64)
	return userID, ok
}

// GetRole extracts the caller's platform role from the request context.
func GetRole(r *http.Request) (string, bool) {
	role, ok := r.Context().Value(RoleContextKey).(string)
	return role, ok
}

// GetRequestID extracts the request ID from the request context.
func GetRequestID(r *http.Request) (string, bool) {
	requestID, ok := r.Context().Value(RequestIDContextKey).(string)
	return requestID, ok
}

// IsAuthenticated checks if the request is authenticated.
func IsAuthenticated(r *http.Request) bool {
	_, ok := GetUserID(r)
	return ok
}

// IsAdmin reports whether the caller holds the admin role
func IsAdmin(r *http.Request) bool {
	role, _ := GetRole(r)
	return role == constants.RoleAdmin
}

// HasRole reports whether the caller holds one of roles. Admins hold every role.
func HasRole(r *http.Request, roles ...string) bool {
	role, ok := GetRole(r)
	if !ok {
		return false
	}
	if role == constants.RoleAdmin {
		return true
	}
	for _, allowed := range roles {
		if role == allowed {
			return true
		}
	}
	return false
}
