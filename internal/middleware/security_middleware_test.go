package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/middleware"
)

// MockRateLimiter implements the middleware.RateLimiter interface
type MockRateLimiter struct {
	mock.Mock
}

// IsRateLimited mocks the IsRateLimited method
func (m *MockRateLimiter) IsRateLimited(clientID string, category string) (bool, time.Duration) {
	args := m.Called(clientID, category)
	return args.Bool(0), args.Get(1).(time.Duration)
}

func TestSecurityRateLimit(t *testing.T) {
	tests := []struct {
		name               string
		ipAddress          string
		path               string
		isRateLimited      bool
		retryAfter         time.Duration
		expectLookup       bool
		expectedStatus     int
		expectedRetryAfter string
	}{
		{
			name:           "Rate limit not exceeded",
			ipAddress:      "192.168.1.1",
			path:           "/api/keys",
			expectLookup:   true,
			expectedStatus: http.StatusOK,
		},
		{
			name:               "Rate limit exceeded",
			ipAddress:          "192.168.1.2",
			path:               "/api/keys",
			isRateLimited:      true,
			retryAfter:         1500 * time.Millisecond,
			expectLookup:       true,
			expectedStatus:     http.StatusTooManyRequests,
			expectedRetryAfter: "2",
		},
		{
			name:           "Health check is exempted",
			ipAddress:      "192.168.1.3",
			path:           constants.HealthPath,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Metrics is exempted",
			ipAddress:      "192.168.1.4",
			path:           constants.DefaultMetricsPath,
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			limiter := new(MockRateLimiter)
			if tt.expectLookup {
				limiter.On("IsRateLimited", tt.ipAddress, constants.RateCategoryManagement).Return(tt.isRateLimited, tt.retryAfter)
			}
			next := &MockHandler{}
			handler := middleware.RateLimit(limiter, constants.RateCategoryManagement)(next)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.RemoteAddr = tt.ipAddress + ":12345"
			rr := httptest.NewRecorder()

			// Act
			handler.ServeHTTP(rr, req)

			// Assert
			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, tt.expectedStatus == http.StatusOK, next.Called)
			assert.Equal(t, tt.expectedRetryAfter, rr.Header().Get(constants.HeaderRetryAfter))
			limiter.AssertExpectations(t)
		})
	}
}

// Test client address resolution
func TestRateLimitClientAddress(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expectedIP string
	}{
		{
			name:       "Remote address only",
			remoteAddr: "192.168.1.1:12345",
			expectedIP: "192.168.1.1",
		},
		{
			name:       "Remote address without port",
			remoteAddr: "192.168.1.9",
			expectedIP: "192.168.1.9",
		},
		{
			name:       "With X-Forwarded-For header",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{constants.HeaderXForwardedFor: "203.0.113.1, 192.168.1.1"},
			expectedIP: "203.0.113.1",
		},
		{
			name:       "With X-Real-IP header",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{constants.HeaderXRealIP: "203.0.113.2"},
			expectedIP: "203.0.113.2",
		},
		{
			name:       "With multiple headers (X-Forwarded-For takes precedence)",
			remoteAddr: "10.0.0.1:12345",
			headers: map[string]string{
				constants.HeaderXForwardedFor: "203.0.113.3, 192.168.1.1",
				constants.HeaderXRealIP:       "203.0.113.4",
			},
			expectedIP: "203.0.113.3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			limiter := new(MockRateLimiter)
			limiter.On("IsRateLimited", tt.expectedIP, constants.RateCategoryValidate).Return(false, time.Duration(0))
			handler := middleware.RateLimit(limiter, constants.RateCategoryValidate)(&MockHandler{})

			req := httptest.NewRequest(http.MethodGet, "/api/keys/validate", nil)
			req.RemoteAddr = tt.remoteAddr
			for key, value := range tt.headers {
				req.Header.Set(key, value)
			}

			// Act
			handler.ServeHTTP(httptest.NewRecorder(), req)

			// Assert
			limiter.AssertExpectations(t)
		})
	}
}
