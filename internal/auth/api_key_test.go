package auth_test

import (
	"errors"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/try-veil/veil-gateway/internal/auth"
	"github.com/try-veil/veil-gateway/internal/config"
	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/utils"
)

var tokenCharset = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func newTestKeyService() *auth.APIKeyService {
	return auth.NewAPIKeyService(&config.APIKeySettings{
		Environment:   constants.APIKeyEnvTest,
		Pepper:        "test-pepper",
		DefaultExpiry: 24 * time.Hour,
	})
}

func TestGenerateAPIKeyToken(t *testing.T) {
	t.Run("tokens are 43 url-safe characters without padding", func(t *testing.T) {
		for i := 0; i < 1000; i++ {
			token, err := auth.GenerateAPIKeyToken()
			if err != nil {
				t.Fatalf("GenerateAPIKeyToken() error = %v", err)
			}
			if len(token) != constants.APIKeyTokenLength {
				t.Fatalf("Expected token length %d, got %d (%q)", constants.APIKeyTokenLength, len(token), token)
			}
			if !tokenCharset.MatchString(token) {
				t.Fatalf("Token %q contains characters outside [A-Za-z0-9_-]", token)
			}
			if strings.ContainsAny(token, "+/=") {
				t.Fatalf("Token %q contains standard base64 characters", token)
			}
		}
	})

	t.Run("tokens do not collide", func(t *testing.T) {
		const samples = 100000
		seen := make(map[string]struct{}, samples)
		for i := 0; i < samples; i++ {
			token, err := auth.GenerateAPIKeyToken()
			if err != nil {
				t.Fatalf("GenerateAPIKeyToken() error = %v", err)
			}
			if _, dup := seen[token]; dup {
				t.Fatalf("Duplicate token after %d samples", i)
			}
			seen[token] = struct{}{}
		}
	})
}

func TestParseAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		rawKey     string
		wantUserID int64
		wantEnv    string
		wantErr    error
		wantMsg    string
	}{
		{
			name:       "live key with numeric user id",
			rawKey:     "sk_live_42_abc123",
			wantUserID: 42,
			wantEnv:    constants.APIKeyEnvLive,
		},
		{
			name:       "test key whose token contains separators",
			rawKey:     "sk_test_7_ab_cd_ef",
			wantUserID: 7,
			wantEnv:    constants.APIKeyEnvTest,
		},
		{
			name:    "empty key",
			rawKey:  "",
			wantErr: utils.ErrMissingCredential,
			wantMsg: constants.MsgMissingAPIKey,
		},
		{
			name:    "no separators",
			rawKey:  "not-a-key",
			wantErr: utils.ErrMalformedCredential,
			wantMsg: constants.MsgInvalidAPIKeyFormat,
		},
		{
			name:    "too few parts",
			rawKey:  "sk_live_42",
			wantErr: utils.ErrMalformedCredential,
			wantMsg: constants.MsgInvalidAPIKeyFormat,
		},
		{
			name:    "wrong prefix",
			rawKey:  "pk_live_42_abc",
			wantErr: utils.ErrMalformedCredential,
			wantMsg: constants.MsgInvalidAPIKeyFormat,
		},
		{
			name:    "unknown environment",
			rawKey:  "sk_prod_42_abc",
			wantErr: utils.ErrMalformedCredential,
			wantMsg: constants.MsgInvalidAPIKeyFormat,
		},
		{
			name:    "non numeric user id",
			rawKey:  "sk_live_abc_x",
			wantErr: utils.ErrMalformedCredential,
			wantMsg: constants.MsgInvalidAPIKey,
		},
		{
			name:    "user id with trailing letters",
			rawKey:  "sk_live_42abc_x",
			wantErr: utils.ErrMalformedCredential,
			wantMsg: constants.MsgInvalidAPIKey,
		},
		{
			name:    "user id beyond int64",
			rawKey:  "sk_live_99999999999999999999_x",
			wantErr: utils.ErrMalformedCredential,
			wantMsg: constants.MsgInvalidAPIKey,
		},
		{
			name:    "signed user id",
			rawKey:  "sk_live_+42_x",
			wantErr: utils.ErrMalformedCredential,
			wantMsg: constants.MsgInvalidAPIKey,
		},
		{
			name:    "empty user id",
			rawKey:  "sk_live__x",
			wantErr: utils.ErrMalformedCredential,
			wantMsg: constants.MsgInvalidAPIKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal, err := auth.ParseAPIKey(tt.rawKey)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseAPIKey() error = %v, want %v", err, tt.wantErr)
				}
				if err.Error() != tt.wantMsg {
					t.Errorf("Expected message %q, got %q", tt.wantMsg, err.Error())
				}
				if utils.StatusCode(err) != constants.StatusUnauthorized {
					t.Errorf("Expected status 401, got %d", utils.StatusCode(err))
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseAPIKey() unexpected error = %v", err)
			}
			if principal.UserID != tt.wantUserID {
				t.Errorf("Expected user id %d, got %d", tt.wantUserID, principal.UserID)
			}
			if principal.Environment != tt.wantEnv {
				t.Errorf("Expected environment %q, got %q", tt.wantEnv, principal.Environment)
			}
			if principal.APIKey != tt.rawKey {
				t.Errorf("Expected raw key to be kept on the principal")
			}
			if principal.SubscriptionID != nil || principal.APIKeyID != nil {
				t.Errorf("Expected nil subscription and key id at the format stage")
			}
		})
	}
}

func TestKeyToken(t *testing.T) {
	if got := auth.KeyToken("sk_live_42_ab_cd"); got != "ab_cd" {
		t.Errorf("Expected token ab_cd, got %q", got)
	}
	if got := auth.KeyToken("sk_live"); got != "" {
		t.Errorf("Expected empty token for short key, got %q", got)
	}
}

func TestExtractAPIKey(t *testing.T) {
	t.Run("header wins over query parameter", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/weather?api_key=from-query", nil)
		r.Header.Set(constants.HeaderXAPIKey, "from-header")

		if got := auth.ExtractAPIKey(r); got != "from-header" {
			t.Errorf("Expected header key, got %q", got)
		}
	})

	t.Run("query parameter is used when header is absent", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/weather?api_key=from-query", nil)

		if got := auth.ExtractAPIKey(r); got != "from-query" {
			t.Errorf("Expected query key, got %q", got)
		}
	})

	t.Run("no key yields empty string", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/weather", nil)

		if got := auth.ExtractAPIKey(r); got != "" {
			t.Errorf("Expected empty key, got %q", got)
		}
	})
}

func TestGenerateAPIKey(t *testing.T) {
	service := newTestKeyService()

	key, rawKey, err := service.GenerateAPIKey(42, "Test Key", "", 48*time.Hour)
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}

	if !strings.HasPrefix(rawKey, "sk_test_42_") {
		t.Errorf("Expected raw key to start with sk_test_42_, got %q", rawKey)
	}
	if len(auth.KeyToken(rawKey)) != constants.APIKeyTokenLength {
		t.Errorf("Expected a %d character token", constants.APIKeyTokenLength)
	}

	principal, err := auth.ParseAPIKey(rawKey)
	if err != nil {
		t.Fatalf("Issued key does not parse: %v", err)
	}
	if principal.UserID != 42 {
		t.Errorf("Expected embedded user id 42, got %d", principal.UserID)
	}

	if key.ID == "" {
		t.Error("Expected key id to be set")
	}
	if key.KeyDigest != service.Digest(rawKey) {
		t.Error("Expected stored digest to match the raw key")
	}
	if strings.Contains(key.KeyHint, auth.KeyToken(rawKey)) {
		t.Error("Expected hint to mask the token")
	}
	if !strings.HasSuffix(key.KeyHint, rawKey[len(rawKey)-4:]) {
		t.Errorf("Expected hint to end with the last four characters, got %q", key.KeyHint)
	}
	if key.ExpiresAt == nil {
		t.Error("Expected expiry to be set")
	}

	t.Run("zero expiry never expires", func(t *testing.T) {
		key, _, err := service.GenerateAPIKey(1, "Forever", constants.APIKeyEnvLive, 0)
		if err != nil {
			t.Fatalf("GenerateAPIKey() error = %v", err)
		}
		if key.ExpiresAt != nil {
			t.Error("Expected no expiry")
		}
		if key.Environment != constants.APIKeyEnvLive {
			t.Errorf("Expected explicit environment to win, got %q", key.Environment)
		}
	})
}

func TestRotate(t *testing.T) {
	service := newTestKeyService()
	key, oldRaw, err := service.GenerateAPIKey(9, "Rotating", "", 0)
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}
	oldDigest := key.KeyDigest
	id := key.ID

	newRaw, err := service.Rotate(key)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	if newRaw == oldRaw {
		t.Error("Expected a new raw key")
	}
	if key.KeyDigest == oldDigest {
		t.Error("Expected a new digest")
	}
	if key.ID != id {
		t.Error("Expected the key id to be kept")
	}
}

func TestKeyDigest(t *testing.T) {
	a := auth.KeyDigest([]byte("pepper-a"), "sk_live_1_token")
	b := auth.KeyDigest([]byte("pepper-b"), "sk_live_1_token")
	again := auth.KeyDigest([]byte("pepper-a"), "sk_live_1_token")

	if len(a) != 64 {
		t.Errorf("Expected 64 hex characters, got %d", len(a))
	}
	if a != again {
		t.Error("Expected digest to be deterministic")
	}
	if a == b {
		t.Error("Expected different peppers to give different digests")
	}

	long := strings.Repeat("p", 200)
	if got := auth.KeyDigest([]byte(long), "sk_live_1_token"); len(got) != 64 {
		t.Errorf("Expected long peppers to be accepted, got %q", got)
	}
}

func TestKeyHint(t *testing.T) {
	hint := auth.KeyHint("sk_live_42_abcdefgh")
	if hint != "sk_live_42_****efgh" {
		t.Errorf("Expected sk_live_42_****efgh, got %q", hint)
	}
}

func TestParseDuration(t *testing.T) {
	service := newTestKeyService()

	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "empty uses default", input: "", expected: 24 * time.Hour},
		{name: "30 days", input: "30d", expected: constants.APIKeyDuration30Days},
		{name: "90 days", input: "90d", expected: constants.APIKeyDuration90Days},
		{name: "180 days", input: "180d", expected: constants.APIKeyDuration180Days},
		{name: "365 days", input: "365d", expected: constants.APIKeyDuration365Days},
		{name: "never", input: "never", expected: 0},
		{name: "invalid", input: "7d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := service.ParseDuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}
