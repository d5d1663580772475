package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/try-veil/veil-gateway/internal/config"
)

func TestCorsMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name            string
		cfg             config.CORSSettings
		method          string
		origin          string
		preflight       bool
		wantStatus      int
		wantOrigin      string
		wantCredentials string
	}{
		{
			name:       "Wildcard echoes the request origin",
			cfg:        config.CORSSettings{AllowedOrigins: []string{"*"}},
			method:     http.MethodGet,
			origin:     "https://any.example.com",
			wantStatus: http.StatusTeapot,
			wantOrigin: "https://any.example.com",
		},
		{
			name:            "Credentials are allowed when configured",
			cfg:             config.CORSSettings{AllowedOrigins: []string{"https://app.example.com"}, AllowCredentials: true},
			method:          http.MethodGet,
			origin:          "https://app.example.com",
			wantStatus:      http.StatusTeapot,
			wantOrigin:      "https://app.example.com",
			wantCredentials: "true",
		},
		{
			name:       "Unknown origins pass through without headers",
			cfg:        config.CORSSettings{AllowedOrigins: []string{"https://app.example.com"}},
			method:     http.MethodGet,
			origin:     "https://other.example.com",
			wantStatus: http.StatusTeapot,
		},
		{
			name:       "Preflight is answered without calling the handler",
			cfg:        config.CORSSettings{AllowedOrigins: []string{"https://app.example.com"}},
			method:     http.MethodOptions,
			origin:     "https://app.example.com",
			preflight:  true,
			wantStatus: http.StatusNoContent,
			wantOrigin: "https://app.example.com",
		},
		{
			name:       "A plain OPTIONS request reaches the handler",
			cfg:        config.CORSSettings{AllowedOrigins: []string{"https://app.example.com"}},
			method:     http.MethodOptions,
			origin:     "https://app.example.com",
			wantStatus: http.StatusTeapot,
			wantOrigin: "https://app.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			req := httptest.NewRequest(tt.method, "/weather", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rr := httptest.NewRecorder()

			// Act
			corsMiddleware(tt.cfg)(next).ServeHTTP(rr, req)

			// Assert
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCredentials, rr.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"https://app.example.com"}

	assert.True(t, originAllowed(allowed, "https://APP.example.com"))
	assert.False(t, originAllowed(allowed, "https://app.example.com.evil"))
	assert.False(t, originAllowed(nil, "https://app.example.com"))
}
