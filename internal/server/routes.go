// Package server provides the HTTP server for the Veil gateway.
//
// Routes are split into three namespaces: /api for consumers and admins,
// /veil/api for providers, and everything else, which the gateway proxies
// to onboarded upstream APIs.
package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/try-veil/veil-gateway/internal/config"
	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/middleware"
	"github.com/try-veil/veil-gateway/internal/utils"
)

// allowedHeaders are the request headers a browser may send cross-origin
var allowedHeaders = strings.Join([]string{
	"Accept",
	constants.HeaderAuthorization,
	constants.HeaderContentType,
	constants.HeaderXCSRFToken,
	constants.HeaderXRequestID,
	constants.HeaderXAPIKey,
}, ", ")

// SetupRoutes configures the routes for the application.
//
// The configured routes include:
// - Health, version and metrics endpoints (unprotected)
// - Public API key validation
// - Consumer key management (JWT) with admin-only quota and subscription routes
// - Provider API onboarding and key management (JWT, provider role)
// - The gateway catch-all for every other path
func (s *Server) SetupRoutes() {
	r := chi.NewRouter()

	r.Use(corsMiddleware(s.Config.CORS))

	// Base middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery())
	if s.Config.Logging.RequestLog {
		r.Use(middleware.RequestLogger())
	}

	// Health check, version and metrics routes (unprotected)
	r.Group(func(r chi.Router) {
		r.Get(constants.HealthPath, s.health)

		r.Get(constants.VersionPath, func(w http.ResponseWriter, r *http.Request) {
			utils.JSON(w, http.StatusOK, map[string]string{
				"name":        s.Config.App.Name,
				"version":     s.Config.App.Version,
				"environment": s.Config.App.Environment,
			})
		})

		if s.metrics != nil {
			r.Method(http.MethodGet, s.Config.Metrics.Path, s.metrics.Handler())
		}

		r.Get(constants.APIBasePath+"/routes", s.GetAPIRoutes)
	})

	limiter := s.services.securityService
	jwtService := s.authProviders.JWTService
	keys := s.Handlers.KeyHandler

	// Consumer and admin routes
	r.Route(constants.APIBasePath, func(r chi.Router) {
		r.Use(middleware.SecurityHeaders())

		r.Route(constants.KeysPath, func(r chi.Router) {
			// Public key validation, authenticated by the key itself
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(limiter, constants.RateCategoryValidate))
				r.Use(middleware.APIKeyAuth(s.services.validationService))
				r.Post(constants.KeyValidatePath, keys.ValidateKey)
				r.Get(constants.KeyValidatePath, keys.ValidateKey)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(limiter, constants.RateCategoryManagement))
				r.Use(middleware.JWTAuth(jwtService))
				r.Use(middleware.CSRF())

				r.Post("/", keys.CreateKey)
				r.Get("/", keys.ListKeys)
				r.Get(constants.KeySearchPath, keys.SearchKeys)
				r.Post(constants.KeyBulkPath, keys.BulkOperation)

				r.Route(constants.KeyDetailPath, func(r chi.Router) {
					r.Get("/", keys.GetKey)
					r.Patch("/", keys.UpdateKey)
					r.Delete("/", keys.RevokeKey)
					r.Delete(constants.KeyPermanentPath, keys.DeleteKey)
					r.Get(constants.KeyUsagePath, keys.GetKeyUsage)
					r.Post(constants.KeyRegeneratePath, keys.RegenerateKey)

					r.Group(func(r chi.Router) {
						r.Use(middleware.RequireRole(constants.RoleAdmin))
						r.Put(constants.KeyQuotaPath, keys.UpdateQuota)
						r.Post(constants.KeyUsageResetPath, keys.ResetUsage)
						r.Put(constants.KeySubscriptionPath, keys.UpdateSubscriptionStatus)
					})
				})
			})
		})
	})

	// Provider routes
	r.Route(constants.VeilBasePath, func(r chi.Router) {
		r.Use(middleware.SecurityHeaders())
		r.Use(middleware.RateLimit(limiter, constants.RateCategoryManagement))
		r.Use(middleware.JWTAuth(jwtService))
		r.Use(middleware.CSRF())
		r.Use(middleware.RequireRole(constants.RoleProvider))

		apis := s.Handlers.APIHandler
		r.Post(constants.APIOnboardPath, apis.OnboardAPI)
		r.Get(constants.APIListPath, apis.ListAPIs)
		r.Get(constants.APIDetailPath, apis.GetAPI)
		r.Delete(constants.APIDetailPath, apis.DeleteAPI)
		r.Post(constants.KeysPath, apis.AddKeys)
		r.Put(constants.APIKeysStatusPath, apis.SetKeyStatus)
		r.Delete(constants.KeysPath, apis.DeleteKey)
	})

	// Everything else is proxied
	r.Handle("/*", s.Handlers.Gateway)

	s.router = r
}

// health reports whether the database is reachable.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.Db.HealthCheck(r.Context()); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		utils.ServiceUnavailable(w, "Service is not healthy")
		return
	}

	utils.JSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": s.Config.App.Version,
	})
}

// GetRouter returns the configured router.
//
// Returns:
//   - The chi.Router implementation used by the server
//
// This method is primarily used for testing and for
// integrating the router with other components.
func (s *Server) GetRouter() chi.Router {
	return s.router
}

// corsMiddleware creates a CORS middleware for the configured origins.
// A "*" entry allows any origin. Preflight requests are answered with 204.
//
// Parameters:
//   - cfg: Allowed origins and whether credentials may be sent
//
// Returns:
//   - A middleware function that adds CORS headers to responses
func corsMiddleware(cfg config.CORSSettings) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || !originAllowed(cfg.AllowedOrigins, origin) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
			w.Header().Set("Access-Control-Max-Age", "300")
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// route documents one endpoint for GetAPIRoutes
type route struct {
	Description string            `json:"description"`
	Auth        string            `json:"auth"`
	Body        map[string]string `json:"body,omitempty"`
}

// GetAPIRoutes returns documentation about the management routes,
// grouped by category.
func (s *Server) GetAPIRoutes(w http.ResponseWriter, r *http.Request) {
	keys := constants.APIBasePath + constants.KeysPath
	veil := constants.VeilBasePath

	routes := map[string]map[string]route{
		"system": {
			"GET " + constants.HealthPath:  {Description: "Database health check", Auth: "none"},
			"GET " + constants.VersionPath: {Description: "Build information", Auth: "none"},
		},
		"validation": {
			"POST " + keys + constants.KeyValidatePath: {Description: "Validate an API key sent in X-API-Key or ?api_key", Auth: "api_key"},
			"GET " + keys + constants.KeyValidatePath:  {Description: "Validate an API key sent in X-API-Key or ?api_key", Auth: "api_key"},
		},
		"keys": {
			"POST " + keys: {
				Description: "Issue an API key; the raw key is returned once",
				Auth:        "jwt",
				Body: map[string]string{
					"name":            "string - Key name",
					"subscription_id": "number - Optional subscription",
					"environment":     "string - live or test",
					"permissions":     "string - read, write or admin",
					"duration":        "string - 30d, 90d, 180d, 365d or never",
					"requests_limit":  "number - Optional quota, 0 for unlimited",
				},
			},
			"GET " + keys:                                  {Description: "List keys; supports page, page_size and status", Auth: "jwt"},
			"GET " + keys + "/{keyID}":                     {Description: "Get one key", Auth: "jwt"},
			"PATCH " + keys + "/{keyID}":                   {Description: "Update name, description, permissions or is_active", Auth: "jwt"},
			"POST " + keys + "/{keyID}/regenerate":         {Description: "Replace the key secret", Auth: "jwt"},
			"DELETE " + keys + "/{keyID}":                  {Description: "Revoke a key", Auth: "jwt"},
			"DELETE " + keys + "/{keyID}/permanent":        {Description: "Delete a key for good", Auth: "jwt"},
			"GET " + keys + "/{keyID}/usage":               {Description: "Quota usage of a key", Auth: "jwt"},
			"GET " + keys + "/search":                      {Description: "Find keys by name with ?q", Auth: "jwt"},
			"POST " + keys + "/bulk":                       {Description: "Activate, deactivate or delete up to 100 keys", Auth: "jwt"},
			"PUT " + keys + "/{keyID}/quota":               {Description: "Set requests_limit", Auth: "jwt (admin)"},
			"POST " + keys + "/{keyID}/usage/reset":        {Description: "Reset requests_used", Auth: "jwt (admin)"},
			"PUT " + keys + "/{keyID}/subscription-status": {Description: "Mirror a subscription status", Auth: "jwt (admin)"},
		},
		"providers": {
			"POST " + veil + constants.APIOnboardPath:   {Description: "Onboard or replace an API", Auth: "jwt (provider)"},
			"GET " + veil + constants.APIListPath:       {Description: "List APIs, or get one with ?path=", Auth: "jwt (provider)"},
			"GET " + veil + constants.APIDetailPath:     {Description: "Get an API", Auth: "jwt (provider)"},
			"DELETE " + veil + constants.APIDetailPath:  {Description: "Delete an API with its keys", Auth: "jwt (provider)"},
			"POST " + veil + constants.KeysPath:         {Description: "Issue keys for an API", Auth: "jwt (provider)"},
			"PUT " + veil + constants.APIKeysStatusPath: {Description: "Activate or deactivate a key", Auth: "jwt (provider)"},
			"DELETE " + veil + constants.KeysPath:       {Description: "Delete a key", Auth: "jwt (provider)"},
		},
	}

	utils.JSON(w, http.StatusOK, routes)
}
