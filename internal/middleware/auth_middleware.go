package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/try-veil/veil-gateway/internal/auth"
	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/models"
	"github.com/try-veil/veil-gateway/internal/utils"
)

// KeyValidator resolves a raw API key to the principal it names.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context, rawKey string) (*models.Principal, error)
}

// JWTAuth is a middleware that requires a valid management token
func JWTAuth(jwtService auth.JWTValidator) func(http.Handler) http.Handler {
	provider := auth.NewJWTAuthProvider(jwtService)
	return auth.RequireAuth(provider)
}

// APIKeyAuth is a middleware that requires a valid API key in the X-API-Key
// header or the api_key query parameter. The validated principal is stored in
// the request context for auth.GetPrincipal.
//
// Parameters:
//   - validator: Resolves and checks the presented key
//
// Returns:
//   - A middleware function rejecting requests without a usable key
func APIKeyAuth(validator KeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := validator.ValidateAPIKey(r.Context(), auth.ExtractAPIKey(r))
			if err != nil {
				requestID, _ := auth.GetRequestID(r)
				log.Debug().
					Err(err).
					Str(constants.LogFieldRequestID, requestID).
					Str("path", r.URL.Path).
					Msg("API key rejected")

				utils.ErrorFromAppError(w, utils.ParseError(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRole is a middleware that requires the caller to hold one of roles.
// It must run after JWTAuth. Admins pass every role check.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := auth.GetUserID(r)
			if !ok {
				utils.Unauthorized(w, constants.MsgAuthRequired)
				return
			}

			if !auth.HasRole(r, roles...) {
				role, _ := auth.GetRole(r)
				log.Info().
					Int64(constants.LogFieldUserID, userID).
					Str("role", role).
					Strs("required", roles).
					Str("path", r.URL.Path).
					Msg("Role check failed")

				utils.Forbidden(w, constants.MsgAccessDenied)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CSRF is a middleware that protects against Cross-Site Request Forgery attacks.
// Only writes authenticated by the auth cookie are checked: bearer tokens and
// API keys are never sent by the browser on its own.
func CSRF() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
				next.ServeHTTP(w, r)
				return
			}

			if r.Header.Get(constants.HeaderAuthorization) != "" {
				next.ServeHTTP(w, r)
				return
			}
			if _, err := r.Cookie(constants.AuthTokenCookie); err != nil {
				next.ServeHTTP(w, r)
				return
			}

			csrfToken := r.Header.Get(constants.HeaderXCSRFToken)
			cookie, err := r.Cookie(constants.CSRFTokenCookie)

			if err != nil || cookie.Value == "" || csrfToken == "" || cookie.Value != csrfToken {
				utils.Forbidden(w, "Invalid or missing CSRF token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders adds security-related HTTP headers to responses
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(constants.HeaderXContentTypeOptions, constants.ContentTypeOptionsNoSniff)
			w.Header().Set(constants.HeaderXFrameOptions, constants.FrameOptionsDeny)
			w.Header().Set(constants.HeaderXXSSProtection, constants.XSSProtectionModeBlock)
			w.Header().Set(constants.HeaderReferrerPolicy, constants.ReferrerPolicyStrictOrigin)
			w.Header().Set(constants.HeaderContentSecurityPolicy, constants.CSPDefaultSrc)
			w.Header().Set(constants.HeaderCacheControl, constants.CacheControlNoStore)

			next.ServeHTTP(w, r)
		})
	}
}
