package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/try-veil/veil-gateway/internal/cache"
	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/models"
	"github.com/try-veil/veil-gateway/internal/repository"
	"github.com/try-veil/veil-gateway/internal/utils"
)

// APIService manages onboarded upstream APIs and matches gateway requests to them.
//
// Matching reads an in-memory snapshot of every API, ordered by descending
// path length so the first match is the longest prefix. The snapshot is
// rebuilt after every change made through this service and when it is older
// than the snapshot TTL.
type APIService struct {
	apiRepo    repository.APIConfigRepository
	keyService *KeyService
	cache      *cache.KeyCache
	ttl        time.Duration
	now        func() time.Time

	mu       sync.RWMutex
	snapshot []*models.APIConfig
	loadedAt time.Time
}

// NewAPIService creates a new APIService.
//
// Parameters:
//   - apiRepo: Repository for onboarded APIs
//   - keyService: Issues and manages the provider keys of an API
//   - keyCache: Validation cache, cleared when an API and its keys are deleted; may be nil
//
// Returns:
//   - A configured APIService with an empty snapshot
func NewAPIService(apiRepo repository.APIConfigRepository, keyService *KeyService, keyCache *cache.KeyCache) *APIService {
	return &APIService{
		apiRepo:    apiRepo,
		keyService: keyService,
		cache:      keyCache,
		ttl:        constants.APISnapshotTTL,
		now:        time.Now,
	}
}

// OnboardAPI registers the API at req.Path or replaces the existing one,
// then issues any keys listed in the request.
//
// Returns:
//   - The stored API and the issued keys, each raw key shown only here
//   - An error if the API cannot be stored or a key cannot be issued
func (s *APIService) OnboardAPI(ctx context.Context, req *models.OnboardAPIRequest) (*models.APIResponseDTO, error) {
	cfg := &models.APIConfig{
		Name:                 req.Name,
		Path:                 normalizePath(req.Path),
		Upstream:             strings.TrimSuffix(req.Upstream, "/"),
		RequiredSubscription: req.RequiredSubscription,
		Methods:              normalizeMethods(req.Methods),
		Parameters:           req.Parameters,
		RequiredHeaders:      req.RequiredHeaders,
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Path
	}
	if cfg.Parameters == nil {
		cfg.Parameters = []models.APIParameter{}
	}
	if cfg.RequiredHeaders == nil {
		cfg.RequiredHeaders = []string{}
	}

	created, err := s.apiRepo.Upsert(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.invalidateSnapshot()

	issued, err := s.keyService.IssueKeysForAPI(ctx, cfg.ID, req.APIKeys)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str(constants.LogFieldAPIPath, cfg.Path).
		Str("upstream", cfg.Upstream).
		Bool("created", created).
		Int("keys_issued", len(issued)).
		Msg(constants.MsgAPIOnboarded)

	return &models.APIResponseDTO{
		Status:  constants.ResponseStatusSuccess,
		Message: constants.MsgAPIOnboarded,
		API:     cfg,
		APIKeys: issued,
	}, nil
}

// ListAPIs returns every onboarded API ordered by path.
func (s *APIService) ListAPIs(ctx context.Context) ([]*models.APIConfig, error) {
	return s.apiRepo.List(ctx)
}

// GetAPI returns one onboarded API.
func (s *APIService) GetAPI(ctx context.Context, id int64) (*models.APIConfig, error) {
	return s.apiRepo.GetByID(ctx, id)
}

// GetAPIByPath returns the API registered at exactly path.
func (s *APIService) GetAPIByPath(ctx context.Context, path string) (*models.APIConfig, error) {
	return s.apiRepo.GetByPath(ctx, normalizePath(path))
}

// DeleteAPI removes an API together with its rules and bound keys.
func (s *APIService) DeleteAPI(ctx context.Context, id int64) error {
	if err := s.apiRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateSnapshot()

	// Bound keys went with the API; their digests are no longer known
	if s.cache != nil {
		s.cache.Clear()
	}

	return nil
}

// AddKeys issues additional keys for the API at req.Path.
func (s *APIService) AddKeys(ctx context.Context, req *models.APIKeysRequestDTO) (*models.APIResponseDTO, error) {
	api, err := s.GetAPIByPath(ctx, req.Path)
	if err != nil {
		return nil, err
	}

	issued, err := s.keyService.IssueKeysForAPI(ctx, api.ID, req.APIKeys)
	if err != nil {
		return nil, err
	}

	return &models.APIResponseDTO{
		Status:  constants.ResponseStatusSuccess,
		Message: constants.MsgAPIKeysAdded,
		APIKeys: issued,
	}, nil
}

// SetKeyStatus activates or deactivates one key of the API at req.Path.
func (s *APIService) SetKeyStatus(ctx context.Context, req *models.APIKeyStatusRequestDTO) error {
	api, err := s.GetAPIByPath(ctx, req.Path)
	if err != nil {
		return err
	}
	return s.keyService.SetKeyStatusForAPI(ctx, api.ID, req.APIKey, *req.IsActive)
}

// DeleteKey removes one key of the API at req.Path.
func (s *APIService) DeleteKey(ctx context.Context, req *models.APIKeyDeleteRequestDTO) error {
	api, err := s.GetAPIByPath(ctx, req.Path)
	if err != nil {
		return err
	}
	return s.keyService.DeleteKeyForAPI(ctx, api.ID, req.APIKey)
}

// MatchAPI returns the onboarded API with the longest path prefix of requestPath.
//
// Returns:
//   - The matching API
//   - NotFoundError if no API covers the path
func (s *APIService) MatchAPI(ctx context.Context, requestPath string) (*models.APIConfig, error) {
	configs, err := s.currentSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	for _, cfg := range configs {
		if cfg.MatchesPath(requestPath) {
			return cfg, nil
		}
	}

	return nil, utils.NewNotFoundError("API", requestPath)
}

// RecordAccess counts one proxied request against the API.
func (s *APIService) RecordAccess(ctx context.Context, id int64) error {
	return s.apiRepo.IncrementStats(ctx, id, s.now().UTC())
}

// Refresh reloads the snapshot from the database.
func (s *APIService) Refresh(ctx context.Context) error {
	_, err := s.reload(ctx)
	return err
}

// currentSnapshot returns the snapshot, reloading it when stale
func (s *APIService) currentSnapshot(ctx context.Context) ([]*models.APIConfig, error) {
	s.mu.RLock()
	snapshot, loadedAt := s.snapshot, s.loadedAt
	s.mu.RUnlock()

	if snapshot != nil && s.now().Sub(loadedAt) < s.ttl {
		return snapshot, nil
	}

	return s.reload(ctx)
}

func (s *APIService) reload(ctx context.Context) ([]*models.APIConfig, error) {
	configs, err := s.apiRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(configs, func(i, j int) bool {
		return len(configs[i].Path) > len(configs[j].Path)
	})

	s.mu.Lock()
	s.snapshot = configs
	s.loadedAt = s.now()
	s.mu.Unlock()

	log.Debug().Int("apis", len(configs)).Msg("API snapshot reloaded")

	return configs, nil
}

func (s *APIService) invalidateSnapshot() {
	s.mu.Lock()
	s.snapshot = nil
	s.mu.Unlock()
}

// normalizePath ensures a leading slash and drops a trailing one
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

// normalizeMethods upper-cases methods and drops duplicates, keeping order
func normalizeMethods(methods []string) []string {
	seen := make(map[string]bool, len(methods))
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
