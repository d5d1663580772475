package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/try-veil/veil-gateway/internal/config"
	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/models"
	"github.com/try-veil/veil-gateway/internal/utils"
)

// APIKeyService issues API keys and derives the digest under which they are stored
type APIKeyService struct {
	config *config.APIKeySettings
	pepper []byte
}

// NewAPIKeyService creates a new APIKeyService.
// The configured pepper keys the BLAKE2b digest of every issued key.
func NewAPIKeyService(cfg *config.APIKeySettings) *APIKeyService {
	return &APIKeyService{
		config: cfg,
		pepper: normalizePepper([]byte(cfg.Pepper)),
	}
}

// Environment returns the environment segment used for newly issued keys
func (s *APIKeyService) Environment() string {
	if s.config.Environment == "" {
		return constants.APIKeyEnvLive
	}
	return s.config.Environment
}

// GenerateAPIKey creates a key record for userID together with the raw key.
// The raw key is returned only here; the record carries its digest and hint.
//
// Parameters:
//   - userID: The owner embedded in the key and stored on the record
//   - name: Display name of the key
//   - environment: live or test; empty uses the configured environment
//   - expiry: Lifetime of the key; zero means the key never expires
//
// Returns:
//   - The key record, ready to be persisted
//   - The raw key
//   - An error if the entropy source fails
func (s *APIKeyService) GenerateAPIKey(userID int64, name, environment string, expiry time.Duration) (*models.APIKey, string, error) {
	if environment == "" {
		environment = s.Environment()
	}

	key := models.NewAPIKey(userID, name, environment, expiry)
	key.ID = uuid.New().String()

	rawKey, err := s.Rotate(key)
	if err != nil {
		return nil, "", err
	}

	return key, rawKey, nil
}

// Rotate issues a fresh raw key for an existing record, replacing its digest and hint.
// The record's id, owner and environment are kept.
func (s *APIKeyService) Rotate(key *models.APIKey) (string, error) {
	token, err := GenerateAPIKeyToken()
	if err != nil {
		return "", err
	}

	rawKey := FormatAPIKey(key.Environment, key.UserID, token)
	key.KeyDigest = s.Digest(rawKey)
	key.KeyHint = KeyHint(rawKey)

	return rawKey, nil
}

// Digest returns the stored form of rawKey
func (s *APIKeyService) Digest(rawKey string) string {
	return KeyDigest(s.pepper, rawKey)
}

// GenerateAPIKeyToken returns 32 bytes from crypto/rand encoded as unpadded
// base64url: exactly 43 characters from [A-Za-z0-9_-].
func GenerateAPIKeyToken() (string, error) {
	buf := make([]byte, constants.APIKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FormatAPIKey assembles a key of the form sk_<environment>_<userID>_<token>
func FormatAPIKey(environment string, userID int64, token string) string {
	return strings.Join([]string{
		constants.APIKeyPrefix,
		environment,
		strconv.FormatInt(userID, 10),
		token,
	}, constants.APIKeySeparator)
}

// KeyHint masks the token of rawKey, keeping the structural prefix and the last characters
func KeyHint(rawKey string) string {
	parts := strings.SplitN(rawKey, constants.APIKeySeparator, constants.APIKeyMinParts)
	if len(parts) < constants.APIKeyMinParts {
		return utils.MaskSecret(rawKey, "", constants.APIKeyHintVisibleChars)
	}
	prefix := strings.Join(parts[:constants.APIKeyMinParts-1], constants.APIKeySeparator) + constants.APIKeySeparator
	return utils.MaskSecret(rawKey, prefix, constants.APIKeyHintVisibleChars)
}

// KeyDigest computes the hex encoded BLAKE2b-256 MAC of rawKey under pepper.
// An empty pepper yields a plain BLAKE2b-256 digest.
func KeyDigest(pepper []byte, rawKey string) string {
	// New256 only fails for keys over 64 bytes, which normalizePepper rules out
	h, _ := blake2b.New256(normalizePepper(pepper))
	h.Write([]byte(rawKey))
	return hex.EncodeToString(h.Sum(nil))
}

// normalizePepper shortens peppers longer than the BLAKE2b key size by hashing them
func normalizePepper(pepper []byte) []byte {
	if len(pepper) <= blake2b.Size {
		return pepper
	}
	sum := blake2b.Sum256(pepper)
	return sum[:]
}

// ExtractAPIKey returns the key carried by the X-API-Key header, falling back
// to the api_key query parameter. It returns "" when neither is present.
func ExtractAPIKey(r *http.Request) string {
	if key := r.Header.Get(constants.HeaderXAPIKey); key != "" {
		return key
	}
	return r.URL.Query().Get(constants.QueryParamAPIKey)
}

// ParseAPIKey performs the structural check of a raw key and returns the
// principal it names. Only APIKey and UserID are set; the subscription and
// key id stay nil until the key is matched against storage.
//
// Parameters:
//   - rawKey: The key as presented by the caller
//
// Returns:
//   - The format-stage principal
//   - A MissingCredential error for an empty key, or a MalformedCredential error
//     with "Invalid API key format" for a bad shape and "Invalid API key" for a
//     user id segment that is not a plain decimal int64
//
// The user id segment is parsed strictly: trailing letters, a sign or a value
// beyond int64 are all rejected rather than truncated or clamped.
func ParseAPIKey(rawKey string) (*models.Principal, error) {
	if rawKey == "" {
		return nil, utils.NewMissingCredentialError()
	}

	parts := strings.Split(rawKey, constants.APIKeySeparator)
	if len(parts) < constants.APIKeyMinParts ||
		parts[0] != constants.APIKeyPrefix ||
		(parts[1] != constants.APIKeyEnvLive && parts[1] != constants.APIKeyEnvTest) {
		return nil, utils.NewMalformedCredentialError(constants.MsgInvalidAPIKeyFormat)
	}

	if strings.TrimLeft(parts[2], "0123456789") != "" {
		return nil, utils.NewMalformedCredentialError(constants.MsgInvalidAPIKey)
	}
	userID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, utils.NewMalformedCredentialError(constants.MsgInvalidAPIKey)
	}

	return &models.Principal{
		APIKey:      rawKey,
		UserID:      userID,
		Environment: parts[1],
	}, nil
}

// KeyToken returns the random segment of a structurally valid key
func KeyToken(rawKey string) string {
	parts := strings.Split(rawKey, constants.APIKeySeparator)
	if len(parts) < constants.APIKeyMinParts {
		return ""
	}
	return strings.Join(parts[constants.APIKeyMinParts-1:], constants.APIKeySeparator)
}

// ParseDuration converts a key duration option to a time.Duration.
// "never" returns zero; an empty string returns the configured default.
func (s *APIKeyService) ParseDuration(duration string) (time.Duration, error) {
	switch duration {
	case "":
		return s.config.DefaultExpiry, nil
	case constants.APIKeyDurationFormat30Days:
		return constants.APIKeyDuration30Days, nil
	case constants.APIKeyDurationFormat90Days:
		return constants.APIKeyDuration90Days, nil
	case constants.APIKeyDurationFormat180Days:
		return constants.APIKeyDuration180Days, nil
	case constants.APIKeyDurationFormat365Days:
		return constants.APIKeyDuration365Days, nil
	case constants.APIKeyDurationFormatNever:
		return 0, nil
	default:
		return 0, utils.NewValidationError("duration", "Invalid duration, must be one of: 30d, 90d, 180d, 365d, never")
	}
}
