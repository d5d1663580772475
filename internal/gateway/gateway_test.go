package gateway_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/try-veil/veil-gateway/internal/config"
	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/events"
	"github.com/try-veil/veil-gateway/internal/gateway"
	"github.com/try-veil/veil-gateway/internal/models"
	"github.com/try-veil/veil-gateway/internal/utils"
)

type fakeRegistry struct {
	mu       sync.Mutex
	apis     []*models.APIConfig
	accesses map[int64]int
}

func (f *fakeRegistry) MatchAPI(ctx context.Context, requestPath string) (*models.APIConfig, error) {
	var best *models.APIConfig
	for _, api := range f.apis {
		if api.MatchesPath(requestPath) && (best == nil || len(api.Path) > len(best.Path)) {
			best = api
		}
	}
	if best == nil {
		return nil, utils.NewNotFoundError("API", requestPath)
	}
	return best, nil
}

func (f *fakeRegistry) RecordAccess(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accesses[id]++
	return nil
}

type fakeValidator struct {
	principals map[string]*models.Principal
	quotaErr   error
	consumed   int
}

func (f *fakeValidator) ValidateAPIKey(ctx context.Context, rawKey string) (*models.Principal, error) {
	if rawKey == "" {
		return nil, utils.NewMissingCredentialError()
	}
	principal, ok := f.principals[rawKey]
	if !ok {
		return nil, utils.NewInvalidCredentialError()
	}
	return principal, nil
}

func (f *fakeValidator) ConsumeQuota(ctx context.Context, principal *models.Principal) error {
	if f.quotaErr != nil {
		return f.quotaErr
	}
	f.consumed++
	return nil
}

type fakeLimiter struct {
	retryAfter time.Duration
}

func (f *fakeLimiter) IsRateLimited(clientID, category string) (bool, time.Duration) {
	return f.retryAfter > 0, f.retryAfter
}

type recordingQueue struct {
	mu     sync.Mutex
	events []events.UsageEvent
}

func (q *recordingQueue) Enqueue(event events.UsageEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, event)
	return nil
}

func (q *recordingQueue) Start() error { return nil }
func (q *recordingQueue) Stop() error  { return nil }

// upstreamRequest is what the fake upstream saw
type upstreamRequest struct {
	Path      string `json:"path"`
	Query     string `json:"query"`
	APIKey    string `json:"api_key"`
	UserID    string `json:"user_id"`
	KeyID     string `json:"key_id"`
	Forwarded string `json:"forwarded_for"`
}

type gatewayFixture struct {
	handler   *gateway.Handler
	registry  *fakeRegistry
	validator *fakeValidator
	limiter   *fakeLimiter
	queue     *recordingQueue
}

func setupGateway(t *testing.T) *gatewayFixture {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
		_ = json.NewEncoder(w).Encode(upstreamRequest{
			Path:      r.URL.Path,
			Query:     r.URL.RawQuery,
			APIKey:    r.Header.Get(constants.HeaderXAPIKey),
			UserID:    r.Header.Get(constants.HeaderXVeilUserID),
			KeyID:     r.Header.Get(constants.HeaderXVeilKeyID),
			Forwarded: r.Header.Get(constants.HeaderXForwardedFor),
		})
	}))
	t.Cleanup(upstream.Close)

	keyID := "key-1"
	scopedID := "key-2"
	otherAPI := int64(99)
	subscriptionID := int64(5)

	registry := &fakeRegistry{
		accesses: make(map[int64]int),
		apis: []*models.APIConfig{
			{
				ID:              1,
				Path:            "/weather",
				Upstream:        upstream.URL,
				Methods:         []string{"GET", "POST"},
				RequiredHeaders: []string{"X-Client"},
				Parameters: []models.APIParameter{
					{Name: "city", Type: constants.ParamLocationQuery, Validation: "^[a-z]+$"},
				},
			},
			{ID: 2, Path: "/weather/v2", Upstream: upstream.URL + "/base", Methods: []string{"GET"}},
			{ID: 3, Path: "/down", Upstream: "http://127.0.0.1:1", Methods: []string{"GET"}},
		},
	}
	validator := &fakeValidator{principals: map[string]*models.Principal{
		"good-key":   {UserID: 7, APIKeyID: &keyID, SubscriptionID: &subscriptionID},
		"scoped-key": {UserID: 8, APIKeyID: &scopedID, APIConfigID: &otherAPI},
	}}
	limiter := &fakeLimiter{}
	queue := &recordingQueue{}

	handler := gateway.NewHandler(
		&config.GatewaySettings{UpstreamTimeout: 5 * time.Second, ForwardIdentityHeaders: true},
		registry, validator, limiter, queue, nil,
	)

	return &gatewayFixture{handler: handler, registry: registry, validator: validator, limiter: limiter, queue: queue}
}

func (f *gatewayFixture) do(method, target, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("X-Client", "tests")
	if key != "" {
		req.Header.Set(constants.HeaderXAPIKey, key)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func TestGateway_Proxy(t *testing.T) {
	t.Run("Request is forwarded without the API prefix and the key", func(t *testing.T) {
		// Arrange
		f := setupGateway(t)

		// Act
		rr := f.do(http.MethodGet, "/weather/today?city=oslo&api_key=good-key", "")
		f.handler.Wait()

		// Assert
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var seen upstreamRequest
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&seen))
		assert.Equal(t, "/today", seen.Path)
		assert.Equal(t, "city=oslo", seen.Query)
		assert.Empty(t, seen.APIKey)
		assert.Equal(t, "7", seen.UserID)
		assert.Equal(t, "key-1", seen.KeyID)
		assert.NotEmpty(t, seen.Forwarded)

		assert.Equal(t, 1, f.validator.consumed)
		assert.Equal(t, 1, f.registry.accesses[1])
		require.Len(t, f.queue.events, 1)
		event := f.queue.events[0]
		assert.Equal(t, "/weather", event.APIPath)
		assert.Equal(t, "key-1", event.APIKeyID)
		assert.Equal(t, http.StatusOK, event.StatusCode)
		assert.True(t, event.Success)
		assert.Positive(t, event.ResponseSize)
	})

	t.Run("Longest prefix wins and the upstream base path is kept", func(t *testing.T) {
		// Arrange
		f := setupGateway(t)

		// Act
		rr := f.do(http.MethodGet, "/weather/v2/today", "good-key")
		f.handler.Wait()

		// Assert
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var seen upstreamRequest
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&seen))
		assert.Equal(t, "/base/today", seen.Path)
		assert.Equal(t, 1, f.registry.accesses[2])
	})

	t.Run("Client identity headers are not trusted", func(t *testing.T) {
		// Arrange
		f := setupGateway(t)
		req := httptest.NewRequest(http.MethodGet, "/weather/today", nil)
		req.Header.Set("X-Client", "tests")
		req.Header.Set(constants.HeaderXAPIKey, "good-key")
		req.Header.Set(constants.HeaderXVeilUserID, "1")
		rr := httptest.NewRecorder()

		// Act
		f.handler.ServeHTTP(rr, req)
		f.handler.Wait()

		// Assert
		var seen upstreamRequest
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&seen))
		assert.Equal(t, "7", seen.UserID)
	})
}

func TestGateway_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		key        string
		arrange    func(f *gatewayFixture)
		wantStatus int
		wantCode   string
	}{
		{name: "No API matches", method: http.MethodGet, target: "/unknown", key: "good-key", wantStatus: http.StatusNotFound, wantCode: constants.CodeNotFound},
		{name: "Missing key", method: http.MethodGet, target: "/weather", wantStatus: http.StatusUnauthorized, wantCode: constants.CodeMissingAPIKey},
		{name: "Unknown key", method: http.MethodGet, target: "/weather", key: "bad-key", wantStatus: http.StatusUnauthorized, wantCode: constants.CodeInvalidAPIKey},
		{name: "Key scoped to another API", method: http.MethodGet, target: "/weather", key: "scoped-key", wantStatus: http.StatusForbidden, wantCode: constants.CodeForbidden},
		{
			name: "Rate limited", method: http.MethodGet, target: "/weather", key: "good-key",
			arrange:    func(f *gatewayFixture) { f.limiter.retryAfter = 1500 * time.Millisecond },
			wantStatus: http.StatusTooManyRequests, wantCode: constants.CodeTooManyRequests,
		},
		{name: "Method not configured", method: http.MethodDelete, target: "/weather", key: "good-key", wantStatus: http.StatusMethodNotAllowed, wantCode: constants.CodeMethodNotAllowed},
		{name: "Parameter fails its rule", method: http.MethodGet, target: "/weather?city=Oslo1", key: "good-key", wantStatus: http.StatusBadRequest, wantCode: constants.CodeValidationError},
		{
			name: "Quota exhausted", method: http.MethodGet, target: "/weather", key: "good-key",
			arrange:    func(f *gatewayFixture) { f.validator.quotaErr = utils.NewQuotaExceededError(10, 10) },
			wantStatus: http.StatusTooManyRequests, wantCode: constants.CodeQuotaExceeded,
		},
		{name: "Upstream unreachable", method: http.MethodGet, target: "/down", key: "good-key", wantStatus: http.StatusBadGateway, wantCode: constants.CodeBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			f := setupGateway(t)
			if tt.arrange != nil {
				tt.arrange(f)
			}

			// Act
			rr := f.do(tt.method, tt.target, tt.key)
			f.handler.Wait()

			// Assert
			assert.Equal(t, tt.wantStatus, rr.Code)
			var resp utils.Response
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestGateway_RateLimitHeaderAndQuotaOrder(t *testing.T) {
	t.Run("Retry-After is rounded up and quota is not charged", func(t *testing.T) {
		// Arrange
		f := setupGateway(t)
		f.limiter.retryAfter = 1500 * time.Millisecond

		// Act
		rr := f.do(http.MethodGet, "/weather", "good-key")

		// Assert
		assert.Equal(t, "2", rr.Header().Get(constants.HeaderRetryAfter))
		assert.Zero(t, f.validator.consumed)
		assert.Empty(t, f.queue.events)
	})

	t.Run("Rejected requests do not reach the upstream", func(t *testing.T) {
		// Arrange
		f := setupGateway(t)
		req := httptest.NewRequest(http.MethodGet, "/weather", nil)
		req.Header.Set(constants.HeaderXAPIKey, "good-key")
		rr := httptest.NewRecorder()

		// Act
		f.handler.ServeHTTP(rr, req)

		// Assert
		body, _ := io.ReadAll(rr.Body)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, string(body), "X-Client")
		assert.Zero(t, f.validator.consumed)
	})
}

func TestValidateRequest(t *testing.T) {
	api := &models.APIConfig{
		Path: "/users",
		Parameters: []models.APIParameter{
			{Name: "id", Type: constants.ParamLocationPath, Required: true, Validation: `^\d+$`},
			{Name: "X-Tenant", Type: constants.ParamLocationHeader, Required: true},
			{Name: "payload", Type: constants.ParamLocationBody, Required: true},
		},
	}

	tests := []struct {
		name    string
		target  string
		tenant  string
		wantErr []string
	}{
		{name: "All rules pass", target: "/users/42/orders", tenant: "acme"},
		{name: "Path segment missing", target: "/users", tenant: "acme", wantErr: []string{"id"}},
		{name: "Path segment fails pattern", target: "/users/abc", tenant: "acme", wantErr: []string{"id"}},
		{name: "Header missing", target: "/users/42", wantErr: []string{"X-Tenant"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.tenant != "" {
				req.Header.Set("X-Tenant", tt.tenant)
			}

			appErr := gateway.ValidateRequest(api, req)

			if len(tt.wantErr) == 0 {
				assert.Nil(t, appErr)
				return
			}
			require.NotNil(t, appErr)
			assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
			for _, field := range tt.wantErr {
				assert.Contains(t, appErr.Details, field)
			}
		})
	}
}
