// Package middleware provides HTTP middleware components.
package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/utils"
)

// RateLimiter reports whether a client has exceeded the rate of a category
// and how long it should wait before retrying.
type RateLimiter interface {
	IsRateLimited(clientID, category string) (bool, time.Duration)
}

// RateLimit is middleware that limits the rate of requests from clients.
// Clients are keyed by IP address.
//
// Parameters:
//   - limiter: The limiter holding per-client token buckets
//   - category: The rate category to apply (management or validate)
//
// Returns:
//   - A middleware function that can be used with an HTTP handler
func RateLimit(limiter RateLimiter, category string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExemptedPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := getClientIP(r)

			if limited, retryAfter := limiter.IsRateLimited(clientIP, category); limited {
				log.Warn().
					Str("client_ip", clientIP).
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Str("category", category).
					Dur("retry_after", retryAfter).
					Msg("Rate limit exceeded")

				utils.TooManyRequests(w, utils.RetryAfterSeconds(retryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client's IP address from the request.
// It checks X-Forwarded-For and X-Real-IP before falling back to RemoteAddr.
func getClientIP(r *http.Request) string {
	if xForwardedFor := r.Header.Get(constants.HeaderXForwardedFor); xForwardedFor != "" {
		// Leftmost entry is the originating client
		ips := strings.Split(xForwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}

	if xRealIP := r.Header.Get(constants.HeaderXRealIP); xRealIP != "" {
		return xRealIP
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// isExemptedPath returns true if the path is never rate limited
func isExemptedPath(path string) bool {
	exemptPaths := []string{
		constants.HealthPath,
		constants.VersionPath,
		constants.DefaultMetricsPath,
	}

	for _, exempt := range exemptPaths {
		if path == exempt {
			return true
		}
	}

	return false
}
