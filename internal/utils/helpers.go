// Package utils provides utility functions and helpers for common operations
// used throughout the application. It includes string formatting, secret
// masking and header sanitization shared by the gateway and management API.
package utils

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/try-veil/veil-gateway/internal/constants"
)

// sensitiveHeaders are replaced with the redacted marker before headers are logged
var sensitiveHeaders = map[string]bool{
	http.CanonicalHeaderKey(constants.HeaderXAPIKey):       true,
	http.CanonicalHeaderKey(constants.HeaderAuthorization): true,
	"Cookie":              true,
	"Proxy-Authorization": true,
}

// FormatInt64 formats an int64 as a base-10 string.
//
// Parameters:
//   - i: the int64 value to format
//
// Returns:
//   - the string representation of the int64 value
func FormatInt64(i int64) string {
	return strconv.FormatInt(i, 10)
}

// Plural returns a string with the number and the plural form of the word if necessary.
// It handles the simple English pluralization case where adding 's' is sufficient.
//
// Parameters:
//   - count: the count to determine if singular or plural form is needed
//   - word: the base word in singular form
//
// Returns:
//   - a formatted string with the count and appropriate word form
func Plural(count int, word string) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, word)
	}
	return fmt.Sprintf("%d %ss", count, word)
}

// TruncateString truncates a string to the given maximum length and adds ellipsis if necessary.
//
// Parameters:
//   - s: the string to truncate
//   - maxLen: the maximum length of the resulting string (including ellipsis if added)
//
// Returns:
//   - the truncated string, with ellipsis appended if truncation occurred
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// MaskSecret keeps the prefix and the last visible characters of a secret and
// replaces the middle with asterisks. Short secrets are fully masked.
//
// For example: MaskSecret("sk_live_42_abcdefgh", "sk_live_42_", 4) returns "sk_live_42_****efgh"
//
// Parameters:
//   - secret: the value to mask
//   - keepPrefix: a leading part of secret that may be shown as is
//   - visible: how many trailing characters remain visible
//
// Returns:
//   - the masked string
func MaskSecret(secret, keepPrefix string, visible int) string {
	body := strings.TrimPrefix(secret, keepPrefix)
	if !strings.HasPrefix(secret, keepPrefix) {
		keepPrefix = ""
	}
	if len(body) <= visible {
		return keepPrefix + strings.Repeat("*", len(body))
	}
	return keepPrefix + strings.Repeat("*", len(body)-visible) + body[len(body)-visible:]
}

// SanitizeHeaders returns a flat copy of h with credentials redacted,
// suitable for debug logging of proxied requests.
func SanitizeHeaders(h http.Header) map[string]string {
	result := make(map[string]string, len(h))
	for k, v := range h {
		if sensitiveHeaders[http.CanonicalHeaderKey(k)] {
			result[k] = constants.LogRedactedValue
			continue
		}
		result[k] = strings.Join(v, ",")
	}
	return result
}

// RetryAfterSeconds renders a Retry-After value, rounding d up to whole
// seconds with a floor of one.
func RetryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
