package gateway

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/models"
	"github.com/try-veil/veil-gateway/internal/utils"
)

// patterns caches compiled parameter rules by source pattern
var patterns sync.Map

// ValidateRequest checks a request against the header and parameter rules of
// an onboarded API. Body parameters are documentation only and are not checked.
//
// Parameters:
//   - api: The matched API
//   - r: The incoming request
//
// Returns:
//   - nil when every rule passes, or a validation error naming each failing rule
func ValidateRequest(api *models.APIConfig, r *http.Request) *utils.AppError {
	problems := make(map[string]string)

	for _, header := range api.RequiredHeaders {
		if r.Header.Get(header) == "" {
			problems[header] = fmt.Sprintf("missing required header: %s", header)
		}
	}

	query := r.URL.Query()
	for _, param := range api.Parameters {
		var value string
		switch param.Type {
		case constants.ParamLocationQuery:
			value = query.Get(param.Name)
		case constants.ParamLocationHeader:
			value = r.Header.Get(param.Name)
		case constants.ParamLocationPath:
			value = firstPathSegment(api.Path, r.URL.Path)
		default:
			continue
		}

		if value == "" {
			if param.Required {
				problems[param.Name] = fmt.Sprintf("missing required %s parameter: %s", param.Type, param.Name)
			}
			continue
		}

		if param.Validation != "" && !matches(param.Validation, value) {
			problems[param.Name] = fmt.Sprintf("invalid %s parameter: %s", param.Type, param.Name)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return utils.NewValidationErrorWithDetails("Request does not satisfy the API rules", problems)
}

// firstPathSegment returns the segment directly below the API path:
// "/users" and "/users/42/orders" give "42".
func firstPathSegment(apiPath, requestPath string) string {
	rest := strings.TrimPrefix(requestPath, strings.TrimSuffix(apiPath, "/"))
	rest = strings.TrimPrefix(rest, "/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// matches reports whether value matches pattern. A pattern that does not
// compile rejects every value.
func matches(pattern, value string) bool {
	if cached, ok := patterns.Load(pattern); ok {
		re, _ := cached.(*regexp.Regexp)
		return re != nil && re.MatchString(value)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		patterns.Store(pattern, (*regexp.Regexp)(nil))
		return false
	}
	patterns.Store(pattern, re)
	return re.MatchString(value)
}
