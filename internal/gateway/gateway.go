// Package gateway proxies consumer traffic to onboarded upstream APIs.
//
// Each request is matched to an API by longest path prefix, authenticated by
// API key, rate limited, checked against the API's rules, charged against the
// key's quota and then forwarded with the API prefix and the key removed.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/try-veil/veil-gateway/internal/auth"
	"github.com/try-veil/veil-gateway/internal/config"
	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/events"
	"github.com/try-veil/veil-gateway/internal/metrics"
	"github.com/try-veil/veil-gateway/internal/models"
	"github.com/try-veil/veil-gateway/internal/utils"
)

// APIRegistry resolves request paths to onboarded APIs and records access.
type APIRegistry interface {
	MatchAPI(ctx context.Context, requestPath string) (*models.APIConfig, error)
	RecordAccess(ctx context.Context, id int64) error
}

// KeyValidator validates API keys and charges their quota.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context, rawKey string) (*models.Principal, error)
	ConsumeQuota(ctx context.Context, principal *models.Principal) error
}

// RateLimiter decides whether a client may send another request.
type RateLimiter interface {
	IsRateLimited(clientID, category string) (bool, time.Duration)
}

// Handler is the catch-all gateway handler.
type Handler struct {
	apis            APIRegistry
	keys            KeyValidator
	limiter         RateLimiter
	queue           events.Queue
	metrics         *metrics.Metrics
	transport       http.RoundTripper
	forwardIdentity bool

	stats sync.WaitGroup
}

// NewHandler creates the gateway handler.
//
// Parameters:
//   - cfg: Upstream timeout and identity header settings
//   - apis: Registry of onboarded APIs
//   - keys: API key validation and quota
//   - limiter: Per-key rate limiter
//   - queue: Usage event sink
//   - m: Metrics; may be nil
//
// Returns:
//   - A handler ready to mount as the router's fallthrough
func NewHandler(
	cfg *config.GatewaySettings,
	apis APIRegistry,
	keys KeyValidator,
	limiter RateLimiter,
	queue events.Queue,
	m *metrics.Metrics,
) *Handler {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.UpstreamTimeout > 0 {
		transport.ResponseHeaderTimeout = cfg.UpstreamTimeout
	}
	if queue == nil {
		queue = events.NopQueue{}
	}

	return &Handler{
		apis:            apis,
		keys:            keys,
		limiter:         limiter,
		queue:           queue,
		metrics:         m,
		transport:       transport,
		forwardIdentity: cfg.ForwardIdentityHeaders,
	}
}

// ServeHTTP runs the gateway pipeline for one request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	api, err := h.apis.MatchAPI(ctx, r.URL.Path)
	if err != nil {
		if utils.IsNotFoundError(err) {
			utils.NotFound(w, constants.MsgNoMatchingAPI)
			return
		}
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	principal, err := h.keys.ValidateAPIKey(ctx, auth.ExtractAPIKey(r))
	if err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	if !keyAllowed(principal, api) {
		log.Info().
			Str(constants.LogFieldKeyID, principal.KeyID()).
			Str(constants.LogFieldAPIPath, api.Path).
			Msg("Key used against an API it is not scoped to")
		utils.Forbidden(w, constants.MsgKeyNotAllowedForAPI)
		return
	}

	if limited, retryAfter := h.limiter.IsRateLimited(principal.KeyID(), constants.RateCategoryGateway); limited {
		utils.TooManyRequests(w, utils.RetryAfterSeconds(retryAfter))
		return
	}

	if !api.AllowsMethod(r.Method) {
		w.Header().Set("Allow", strings.Join(api.Methods, ", "))
		utils.MethodNotAllowed(w)
		return
	}

	if appErr := ValidateRequest(api, r); appErr != nil {
		utils.ErrorFromAppError(w, appErr)
		return
	}

	if err := h.keys.ConsumeQuota(ctx, principal); err != nil {
		utils.ErrorFromAppError(w, utils.ParseError(err))
		return
	}

	h.recordAccess(api)

	proxy, err := h.proxyFor(api, principal)
	if err != nil {
		utils.InternalServerError(w, err)
		return
	}

	rec := events.NewResponseRecorder(w)
	proxy.ServeHTTP(rec, r)

	h.metrics.GatewayRequest(api.Path, r.Method, rec.StatusCode, rec.ResponseTime())
	if err := h.queue.Enqueue(events.NewUsageEvent(api.Path, r.Method, principal, rec, r.ContentLength)); err != nil && !errors.Is(err, events.ErrQueueFull) {
		log.Debug().Err(err).Msg("Usage event not recorded")
	}
}

// Wait blocks until pending access-stat updates have finished.
func (h *Handler) Wait() {
	h.stats.Wait()
}

// recordAccess bumps the API's request count without holding up the request.
func (h *Handler) recordAccess(api *models.APIConfig) {
	h.stats.Add(1)
	go func(id int64, path string) {
		defer h.stats.Done()

		ctx, cancel := context.WithTimeout(context.Background(), constants.StatsUpdateTimeout)
		defer cancel()

		if err := h.apis.RecordAccess(ctx, id); err != nil {
			log.Warn().Err(err).Str(constants.LogFieldAPIPath, path).Msg("Failed to update API access stats")
		}
	}(api.ID, api.Path)
}

// proxyFor builds the reverse proxy for one matched request.
func (h *Handler) proxyFor(api *models.APIConfig, principal *models.Principal) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(api.Upstream)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimSuffix(api.Path, "/")

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, prefix)
			pr.Out.URL.RawPath = ""

			query := pr.Out.URL.Query()
			if query.Has(constants.QueryParamAPIKey) {
				query.Del(constants.QueryParamAPIKey)
				pr.Out.URL.RawQuery = query.Encode()
			}
			pr.Out.Header.Del(constants.HeaderXAPIKey)

			pr.SetURL(target)
			pr.SetXForwarded()

			pr.Out.Header.Del(constants.HeaderXVeilKeyID)
			pr.Out.Header.Del(constants.HeaderXVeilUserID)
			pr.Out.Header.Del(constants.HeaderXVeilSubscriptionID)
			if h.forwardIdentity {
				pr.Out.Header.Set(constants.HeaderXVeilKeyID, principal.KeyID())
				pr.Out.Header.Set(constants.HeaderXVeilUserID, strconv.FormatInt(principal.UserID, 10))
				if principal.SubscriptionID != nil {
					pr.Out.Header.Set(constants.HeaderXVeilSubscriptionID, strconv.FormatInt(*principal.SubscriptionID, 10))
				}
			}
		},
		Transport: h.transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error().
				Err(err).
				Str(constants.LogFieldAPIPath, api.Path).
				Str("upstream", api.Upstream).
				Interface("headers", utils.SanitizeHeaders(r.Header)).
				Msg("Upstream request failed")
			utils.BadGateway(w, constants.MsgUpstreamUnavailable)
		},
	}, nil
}

// keyAllowed reports whether the principal may call api. Keys bound to an API
// only work against it; APIs that require a subscription reject keys without one.
func keyAllowed(principal *models.Principal, api *models.APIConfig) bool {
	if principal.APIConfigID != nil && *principal.APIConfigID != api.ID {
		return false
	}
	if api.RequiredSubscription != "" && principal.SubscriptionID == nil && principal.APIConfigID == nil {
		return false
	}
	return true
}
