package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/try-veil/veil-gateway/internal/config"
	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/database"
)

// createTestConfig returns a config on a fresh sqlite file
func createTestConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	return &config.AppConfig{
		App: config.AppSettings{
			Environment: "testing",
			Name:        "veil-test",
			Version:     "1.0.0-test",
		},
		Database: config.DatabaseSettings{
			Driver: constants.DriverSQLite,
			Path:   filepath.Join(t.TempDir(), "veil.db"),
		},
		Server: config.ServerSettings{
			Host:            "localhost",
			Port:            8081,
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			ShutdownTimeout: time.Second,
		},
		JWT: config.JWTSettings{
			Secret: "test-secret",
			Expiry: 15 * time.Minute,
			Issuer: "veil-test",
		},
		APIKey: config.APIKeySettings{
			Environment: "test",
			Pepper:      "test-pepper",
			CacheTTL:    time.Minute,
		},
		Gateway: config.GatewaySettings{
			UpstreamTimeout: 5 * time.Second,
		},
		RateLimit: config.RateLimitSettings{
			GatewayRPS:      100,
			GatewayBurst:    100,
			ManagementRPS:   100,
			ManagementBurst: 100,
			ValidateRPS:     100,
			ValidateBurst:   100,
		},
		Events: config.EventSettings{
			Sink: constants.EventSinkNone,
		},
		Maintenance: config.MaintenanceSettings{
			CleanupSchedule:    "@hourly",
			UsageResetSchedule: "@monthly",
		},
		Metrics: config.MetricsSettings{
			Path: constants.DefaultMetricsPath,
		},
		CORS: config.CORSSettings{
			AllowedOrigins: []string{"https://app.example.com"},
		},
	}
}

// newTestServer builds a fully wired server and shuts it down with the test
func newTestServer(t *testing.T, cfg *config.AppConfig) *Server {
	t.Helper()

	db, err := database.Connect(cfg)
	require.NoError(t, err)

	s, err := NewServerWithDB(cfg, db)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, s.Shutdown(ctx))
	})
	return s
}

// tokenFor signs a management token for userID with role
func tokenFor(t *testing.T, s *Server, userID int64, role string) string {
	t.Helper()
	token, _, err := s.authProviders.JWTService.GenerateAccessToken(userID, role)
	require.NoError(t, err)
	return token
}

// envelope is the response wrapper every endpoint writes
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do sends a request through the router
func do(t *testing.T, s *Server, method, target string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rr := httptest.NewRecorder()
	s.GetRouter().ServeHTTP(rr, req)
	return rr
}

func bearer(token string) map[string]string {
	return map[string]string{constants.HeaderAuthorization: "Bearer " + token}
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func TestNewServerWithDB(t *testing.T) {
	// Arrange
	cfg := createTestConfig(t)

	// Act
	s := newTestServer(t, cfg)

	// Assert
	assert.Equal(t, cfg, s.Config)
	assert.NotNil(t, s.Handlers.KeyHandler)
	assert.NotNil(t, s.Handlers.APIHandler)
	assert.NotNil(t, s.Handlers.Gateway)
	assert.NotNil(t, s.metrics)
	assert.Equal(t, cfg.Server.ServerAddress(), s.httpServer.Addr)
	assert.Equal(t, constants.DefaultIdleTimeout, s.httpServer.IdleTimeout)
}

func TestSystemEndpoints(t *testing.T) {
	s := newTestServer(t, createTestConfig(t))

	t.Run("Health reports a reachable database", func(t *testing.T) {
		rr := do(t, s, http.MethodGet, constants.HealthPath, nil, nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		var data map[string]string
		decode(t, rr, &data)
		assert.Equal(t, "healthy", data["status"])
	})

	t.Run("Version reports build information", func(t *testing.T) {
		rr := do(t, s, http.MethodGet, constants.VersionPath, nil, nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		var data map[string]string
		decode(t, rr, &data)
		assert.Equal(t, "1.0.0-test", data["version"])
	})

	t.Run("Metrics are exposed in the Prometheus format", func(t *testing.T) {
		rr := do(t, s, http.MethodGet, constants.DefaultMetricsPath, nil, nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "go_goroutines")
	})

	t.Run("Route documentation lists the provider routes", func(t *testing.T) {
		rr := do(t, s, http.MethodGet, "/api/routes", nil, nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "POST /veil/api/onboard")
	})
}

func TestMetricsDisabled(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.Metrics.Disabled = true
	s := newTestServer(t, cfg)

	rr := do(t, s, http.MethodGet, constants.DefaultMetricsPath, nil, nil)

	// Falls through to the gateway, which has no API there
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouteAuthorization(t *testing.T) {
	s := newTestServer(t, createTestConfig(t))
	consumer := tokenFor(t, s, 7, constants.RoleConsumer)

	t.Run("Provider routes require a token", func(t *testing.T) {
		rr := do(t, s, http.MethodGet, "/veil/api/list", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("Provider routes reject consumers", func(t *testing.T) {
		rr := do(t, s, http.MethodGet, "/veil/api/list", nil, bearer(consumer))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("Admins pass provider checks", func(t *testing.T) {
		rr := do(t, s, http.MethodGet, "/veil/api/list", nil, bearer(tokenFor(t, s, 1, constants.RoleAdmin)))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Quota updates are admin only", func(t *testing.T) {
		rr := do(t, s, http.MethodPut, "/api/keys/some-id/quota", map[string]int64{"requests_limit": 10}, bearer(consumer))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("Management responses carry security headers", func(t *testing.T) {
		rr := do(t, s, http.MethodGet, "/api/keys", nil, bearer(consumer))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "nosniff", rr.Header().Get(constants.HeaderXContentTypeOptions))
	})
}

func TestConsumerKeyLifecycle(t *testing.T) {
	s := newTestServer(t, createTestConfig(t))
	consumer := bearer(tokenFor(t, s, 42, constants.RoleConsumer))

	// Create
	rr := do(t, s, http.MethodPost, "/api/keys", map[string]interface{}{"name": "cli"}, consumer)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	decode(t, rr, &created)
	require.NotEmpty(t, created.Key)
	assert.Contains(t, created.Key, "sk_test_42_")

	// Validate
	rr = do(t, s, http.MethodPost, "/api/keys/validate", nil, map[string]string{constants.HeaderXAPIKey: created.Key})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var validated struct {
		Valid  bool  `json:"valid"`
		UserID int64 `json:"user_id"`
	}
	decode(t, rr, &validated)
	assert.True(t, validated.Valid)
	assert.Equal(t, int64(42), validated.UserID)

	// Query parameter form
	rr = do(t, s, http.MethodGet, "/api/keys/validate?api_key="+created.Key, nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	// Another user's view
	rr = do(t, s, http.MethodGet, "/api/keys/"+created.ID, nil, bearer(tokenFor(t, s, 43, constants.RoleConsumer)))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// Revoke
	rr = do(t, s, http.MethodDelete, "/api/keys/"+created.ID, nil, consumer)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, s, http.MethodPost, "/api/keys/validate", nil, map[string]string{constants.HeaderXAPIKey: created.Key})
	assert.NotEqual(t, http.StatusOK, rr.Code)
	env := decode(t, rr, nil)
	assert.False(t, env.Success)

	// A second revoke and a regenerate of the revoked key conflict
	rr = do(t, s, http.MethodDelete, "/api/keys/"+created.ID, nil, consumer)
	assert.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())
	rr = do(t, s, http.MethodPost, "/api/keys/"+created.ID+"/regenerate", nil, consumer)
	assert.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())

	// Search is routed ahead of the key id
	rr = do(t, s, http.MethodGet, "/api/keys/search?q=CL", nil, consumer)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var found []struct {
		ID string `json:"id"`
	}
	decode(t, rr, &found)
	require.Len(t, found, 1)
	assert.Equal(t, created.ID, found[0].ID)

	// Usage
	rr = do(t, s, http.MethodGet, "/api/keys/"+created.ID+"/usage", nil, consumer)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// Permanent delete
	rr = do(t, s, http.MethodDelete, "/api/keys/"+created.ID+"/permanent", nil, consumer)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = do(t, s, http.MethodGet, "/api/keys/"+created.ID, nil, consumer)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBulkKeyOperations(t *testing.T) {
	s := newTestServer(t, createTestConfig(t))
	consumer := bearer(tokenFor(t, s, 42, constants.RoleConsumer))

	var ids []string
	for _, name := range []string{"one", "two"} {
		rr := do(t, s, http.MethodPost, "/api/keys", map[string]interface{}{"name": name}, consumer)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var created struct {
			ID string `json:"id"`
		}
		decode(t, rr, &created)
		ids = append(ids, created.ID)
	}

	rr := do(t, s, http.MethodPost, "/api/keys/bulk", map[string]interface{}{
		"key_ids": append(ids, "missing"),
		"action":  constants.KeyActionDeactivate,
	}, consumer)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result struct {
		Processed  int `json:"processed"`
		Successful int `json:"successful"`
		Failed     int `json:"failed"`
	}
	decode(t, rr, &result)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)

	rr = do(t, s, http.MethodGet, "/api/keys?status=inactive", nil, consumer)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var inactive []struct {
		ID string `json:"id"`
	}
	decode(t, rr, &inactive)
	assert.Len(t, inactive, 2)
}

func TestValidateEndpointErrors(t *testing.T) {
	s := newTestServer(t, createTestConfig(t))

	t.Run("A missing key is unauthorized", func(t *testing.T) {
		rr := do(t, s, http.MethodPost, "/api/keys/validate", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("A malformed key is unauthorized", func(t *testing.T) {
		rr := do(t, s, http.MethodPost, "/api/keys/validate", nil, map[string]string{constants.HeaderXAPIKey: "not-a-key"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestProviderOnboardAndProxy(t *testing.T) {
	// Arrange
	var upstreamPath, upstreamQuery, upstreamKey string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamPath = r.URL.Path
		upstreamQuery = r.URL.RawQuery
		upstreamKey = r.Header.Get(constants.HeaderXAPIKey)
		w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
		_, _ = w.Write([]byte(`{"forecast":"sunny"}`))
	}))
	defer upstream.Close()

	s := newTestServer(t, createTestConfig(t))
	provider := bearer(tokenFor(t, s, 3, constants.RoleProvider))

	body := map[string]interface{}{
		"name":     "weather",
		"path":     "/weather",
		"upstream": upstream.URL,
		"methods":  []string{"GET"},
		"parameters": []map[string]interface{}{
			{"name": "city", "type": "query", "required": true},
		},
		"api_keys": []map[string]interface{}{{"name": "partner", "user_id": 12}},
	}

	// Act
	rr := do(t, s, http.MethodPost, "/veil/api/onboard", body, provider)

	// Assert
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var onboarded struct {
		API struct {
			ID   int64  `json:"id"`
			Path string `json:"path"`
		} `json:"api"`
		APIKeys []struct {
			Key string `json:"key"`
		} `json:"api_keys"`
	}
	decode(t, rr, &onboarded)
	require.Len(t, onboarded.APIKeys, 1)
	key := onboarded.APIKeys[0].Key

	t.Run("Proxies with the prefix and key removed", func(t *testing.T) {
		rr := do(t, s, http.MethodGet, "/weather/today?city=oslo&api_key="+key, nil, nil)

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.JSONEq(t, `{"forecast":"sunny"}`, rr.Body.String())
		assert.Equal(t, "/today", upstreamPath)
		assert.Equal(t, "city=oslo", upstreamQuery)
		assert.Empty(t, upstreamKey)
	})

	t.Run("Missing required parameters are rejected", func(t *testing.T) {
		rr := do(t, s, http.MethodGet, "/weather/today", nil, map[string]string{constants.HeaderXAPIKey: key})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Methods outside the API configuration are rejected", func(t *testing.T) {
		rr := do(t, s, http.MethodPost, "/weather/today?city=oslo", nil, map[string]string{constants.HeaderXAPIKey: key})
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})

	t.Run("Requests without a key are unauthorized", func(t *testing.T) {
		rr := do(t, s, http.MethodGet, "/weather/today?city=oslo", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("Unknown paths are not found", func(t *testing.T) {
		rr := do(t, s, http.MethodGet, "/maps/today", nil, map[string]string{constants.HeaderXAPIKey: key})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("The API can be listed by path and deleted", func(t *testing.T) {
		rr := do(t, s, http.MethodGet, "/veil/api/list?path=/weather", nil, provider)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = do(t, s, http.MethodDelete, "/veil/api/apis/"+strconv.FormatInt(onboarded.API.ID, 10), nil, provider)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = do(t, s, http.MethodGet, "/weather/today?city=oslo", nil, map[string]string{constants.HeaderXAPIKey: key})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestSeedAPIs(t *testing.T) {
	// Arrange
	cfg := createTestConfig(t)
	cfg.Gateway.SeedFile = filepath.Join(t.TempDir(), "apis.yaml")
	seed := `
apis:
  - name: maps
    path: /maps
    upstream: http://maps.internal
    methods: [GET]
`
	require.NoError(t, os.WriteFile(cfg.Gateway.SeedFile, []byte(seed), 0o600))

	// Act
	s := newTestServer(t, cfg)

	// Assert
	rr := do(t, s, http.MethodGet, "/veil/api/list", nil, bearer(tokenFor(t, s, 1, constants.RoleAdmin)))
	require.Equal(t, http.StatusOK, rr.Code)
	var apis []struct {
		Path string `json:"path"`
	}
	decode(t, rr, &apis)
	require.Len(t, apis, 1)
	assert.Equal(t, "/maps", apis[0].Path)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, createTestConfig(t))

	t.Run("Answers preflight requests from allowed origins", func(t *testing.T) {
		rr := do(t, s, http.MethodOptions, "/api/keys", nil, map[string]string{
			"Origin":                        "https://app.example.com",
			"Access-Control-Request-Method": http.MethodPost,
		})

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), constants.HeaderXAPIKey)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("Ignores other origins", func(t *testing.T) {
		rr := do(t, s, http.MethodGet, constants.VersionPath, nil, map[string]string{"Origin": "https://evil.example.com"})

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestSetupMaintenanceTasks(t *testing.T) {
	t.Run("Schedules both jobs", func(t *testing.T) {
		s := newTestServer(t, createTestConfig(t))

		require.NoError(t, s.SetupMaintenanceTasks())

		require.NotNil(t, s.cron)
		assert.Len(t, s.cron.Entries(), 2)
	})

	t.Run("Does nothing when disabled", func(t *testing.T) {
		cfg := createTestConfig(t)
		cfg.Maintenance.Disabled = true
		s := newTestServer(t, cfg)

		require.NoError(t, s.SetupMaintenanceTasks())

		assert.Nil(t, s.cron)
	})

	t.Run("Rejects an invalid schedule", func(t *testing.T) {
		cfg := createTestConfig(t)
		cfg.Maintenance.CleanupSchedule = "every now and then"
		s := newTestServer(t, cfg)

		assert.Error(t, s.SetupMaintenanceTasks())
	})
}

func TestMaintenanceJob(t *testing.T) {
	s := newTestServer(t, createTestConfig(t))

	calls := 0
	job := s.maintenanceJob(constants.JobResetUsage, func(ctx context.Context) (int64, error) {
		calls++
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return 3, nil
	})

	job()

	assert.Equal(t, 1, calls)
}
