package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/try-veil/veil-gateway/internal/auth"
	"github.com/try-veil/veil-gateway/internal/config"
	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/models"
	"github.com/try-veil/veil-gateway/internal/repository"
	"github.com/try-veil/veil-gateway/internal/utils"
)

// Mock implementations for testing
type MockAPIKeyRepository struct {
	mu       sync.Mutex
	keys     map[string]*models.APIKey
	lookups  int
	failWith error
	// onLookup runs after GetByDigest has read a key, outside the lock
	onLookup func()
}

func NewMockAPIKeyRepository() *MockAPIKeyRepository {
	return &MockAPIKeyRepository{
		keys: make(map[string]*models.APIKey),
	}
}

func (m *MockAPIKeyRepository) Create(ctx context.Context, apiKey *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, exists := m.keys[apiKey.ID]; exists {
		return utils.NewDuplicateError("APIKey", constants.ColumnKeyID, apiKey.ID)
	}
	cp := *apiKey
	m.keys[apiKey.ID] = &cp
	return nil
}

func (m *MockAPIKeyRepository) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok {
		return nil, utils.NewNotFoundError("APIKey", id)
	}
	cp := *key
	return &cp, nil
}

func (m *MockAPIKeyRepository) GetByDigest(ctx context.Context, digest string) (*models.APIKey, error) {
	key, err := m.getByDigest(digest)
	if m.onLookup != nil {
		m.onLookup()
	}
	return key, err
}

func (m *MockAPIKeyRepository) getByDigest(digest string) (*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, key := range m.keys {
		if key.KeyDigest == digest {
			cp := *key
			return &cp, nil
		}
	}
	return nil, utils.NewNotFoundError("APIKey", "")
}

func (m *MockAPIKeyRepository) ListByUser(ctx context.Context, userID int64, filter repository.KeyListFilter) ([]*models.APIKey, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*models.APIKey
	for _, key := range m.keys {
		if key.UserID != userID {
			continue
		}
		if filter.Status != constants.KeyStatusAll && key.Status(filter.Now) != filter.Status {
			continue
		}
		cp := *key
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := len(matched)
	if filter.Offset >= total {
		return []*models.APIKey{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func (m *MockAPIKeyRepository) SearchByName(ctx context.Context, userID int64, term string, limit int) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*models.APIKey
	for _, key := range m.keys {
		if key.UserID == userID && strings.Contains(strings.ToLower(key.Name), strings.ToLower(term)) {
			cp := *key
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MockAPIKeyRepository) CreateWithinLimit(ctx context.Context, apiKey *models.APIKey, limit int, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeCount(*apiKey.SubscriptionID, now) >= limit {
		return utils.NewKeyLimitReachedError(limit)
	}
	if _, exists := m.keys[apiKey.ID]; exists {
		return utils.NewDuplicateError("APIKey", constants.ColumnKeyID, apiKey.ID)
	}
	cp := *apiKey
	m.keys[apiKey.ID] = &cp
	return nil
}

func (m *MockAPIKeyRepository) ActivateWithinLimit(ctx context.Context, id string, subscriptionID int64, limit int, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeCount(subscriptionID, now) >= limit {
		return utils.NewKeyLimitReachedError(limit)
	}
	key, ok := m.keys[id]
	if !ok || key.SubscriptionID == nil || *key.SubscriptionID != subscriptionID {
		return utils.NewNotFoundError("APIKey", id)
	}
	key.IsActive = true
	key.UpdatedAt = now
	return nil
}

func (m *MockAPIKeyRepository) activeCountFor(subscriptionID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeCount(subscriptionID, time.Now())
}

// activeCount must be called with mu held
func (m *MockAPIKeyRepository) activeCount(subscriptionID int64, now time.Time) int {
	count := 0
	for _, key := range m.keys {
		if key.SubscriptionID != nil && *key.SubscriptionID == subscriptionID && key.Status(now) == constants.KeyStatusActive {
			count++
		}
	}
	return count
}

func (m *MockAPIKeyRepository) Update(ctx context.Context, apiKey *models.APIKey) error {
	return m.mutate(apiKey.ID, func(key *models.APIKey) {
		key.Name = apiKey.Name
		key.Description = apiKey.Description
		key.Permissions = apiKey.Permissions
		key.IsActive = apiKey.IsActive
		key.UpdatedAt = apiKey.UpdatedAt
	})
}

func (m *MockAPIKeyRepository) Regenerate(ctx context.Context, id string, rotate func(*models.APIKey) error) (*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok {
		return nil, utils.NewNotFoundError("APIKey", id)
	}
	cp := *key
	if err := rotate(&cp); err != nil {
		return nil, err
	}
	cp.RequestsUsed = 0
	m.keys[id] = &cp
	out := cp
	return &out, nil
}

func (m *MockAPIKeyRepository) Revoke(ctx context.Context, id, reason string, now time.Time) error {
	return m.mutate(id, func(key *models.APIKey) {
		key.IsActive = false
		key.RevokedAt = &now
		key.RevokeReason = reason
	})
}

func (m *MockAPIKeyRepository) UpdateQuota(ctx context.Context, id string, limit int64, now time.Time) error {
	return m.mutate(id, func(key *models.APIKey) { key.RequestsLimit = limit })
}

func (m *MockAPIKeyRepository) ResetUsage(ctx context.Context, id string, now time.Time) error {
	return m.mutate(id, func(key *models.APIKey) { key.RequestsUsed = 0 })
}

func (m *MockAPIKeyRepository) UpdateSubscriptionStatus(ctx context.Context, id, status string, now time.Time) error {
	return m.mutate(id, func(key *models.APIKey) { key.SubscriptionStatus = status })
}

func (m *MockAPIKeyRepository) ConsumeQuota(ctx context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok {
		return false, nil
	}
	if !key.HasQuota() {
		return false, nil
	}
	key.RequestsUsed++
	key.LastUsedAt = &now
	return true, nil
}

func (m *MockAPIKeyRepository) ResetAllUsage(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, key := range m.keys {
		if key.RequestsUsed > 0 {
			key.RequestsUsed = 0
			n++
		}
	}
	return n, nil
}

func (m *MockAPIKeyRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[id]; !ok {
		return utils.NewNotFoundError("APIKey", id)
	}
	delete(m.keys, id)
	return nil
}

func (m *MockAPIKeyRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, key := range m.keys {
		if key.ExpiresAt != nil && key.ExpiresAt.Before(before) {
			delete(m.keys, id)
			n++
		}
	}
	return n, nil
}

func (m *MockAPIKeyRepository) SetActiveForAPI(ctx context.Context, digest string, apiConfigID int64, active bool, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range m.keys {
		if key.KeyDigest == digest && key.APIConfigID != nil && *key.APIConfigID == apiConfigID {
			key.IsActive = active
			return nil
		}
	}
	return utils.NewNotFoundError("APIKey", "")
}

func (m *MockAPIKeyRepository) DeleteForAPI(ctx context.Context, digest string, apiConfigID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, key := range m.keys {
		if key.KeyDigest == digest && key.APIConfigID != nil && *key.APIConfigID == apiConfigID {
			delete(m.keys, id)
			return nil
		}
	}
	return utils.NewNotFoundError("APIKey", "")
}

func (m *MockAPIKeyRepository) mutate(id string, fn func(*models.APIKey)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok {
		return utils.NewNotFoundError("APIKey", id)
	}
	fn(key)
	return nil
}

type MockAPIConfigRepository struct {
	mu      sync.Mutex
	configs map[int64]*models.APIConfig
	nextID  int64
	lists   int
}

func NewMockAPIConfigRepository() *MockAPIConfigRepository {
	return &MockAPIConfigRepository{
		configs: make(map[int64]*models.APIConfig),
		nextID:  1,
	}
}

func (m *MockAPIConfigRepository) Upsert(ctx context.Context, cfg *models.APIConfig) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.configs {
		if existing.Path == cfg.Path {
			cfg.ID = id
			cp := *cfg
			m.configs[id] = &cp
			return false, nil
		}
	}
	cfg.ID = m.nextID
	m.nextID++
	cp := *cfg
	m.configs[cfg.ID] = &cp
	return true, nil
}

func (m *MockAPIConfigRepository) List(ctx context.Context) ([]*models.APIConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	out := make([]*models.APIConfig, 0, len(m.configs))
	for _, cfg := range m.configs {
		cp := *cfg
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *MockAPIConfigRepository) GetByID(ctx context.Context, id int64) (*models.APIConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[id]
	if !ok {
		return nil, utils.NewNotFoundError("API", id)
	}
	cp := *cfg
	return &cp, nil
}

func (m *MockAPIConfigRepository) GetByPath(ctx context.Context, path string) (*models.APIConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cfg := range m.configs {
		if cfg.Path == path {
			cp := *cfg
			return &cp, nil
		}
	}
	return nil, utils.NewNotFoundError("API", path)
}

func (m *MockAPIConfigRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[id]; !ok {
		return utils.NewNotFoundError("API", id)
	}
	delete(m.configs, id)
	return nil
}

func (m *MockAPIConfigRepository) IncrementStats(ctx context.Context, id int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[id]
	if !ok {
		return fmt.Errorf("unknown API %d", id)
	}
	cfg.RequestCount++
	cfg.LastAccessed = &now
	return nil
}

// testKeySettings are the API key settings shared by service tests
func testKeySettings() *config.APIKeySettings {
	return &config.APIKeySettings{
		Environment:              constants.APIKeyEnvTest,
		Pepper:                   "test-pepper",
		MaxActivePerSubscription: 2,
		CacheTTL:                 time.Minute,
		CacheMaxKeys:             100,
	}
}

// newTestKeyService builds a KeyService over fresh in-memory repositories
func newTestKeyService() (*KeyService, *MockAPIKeyRepository, *MockAPIConfigRepository) {
	keyRepo := NewMockAPIKeyRepository()
	apiRepo := NewMockAPIConfigRepository()
	cfg := testKeySettings()
	return NewKeyService(keyRepo, apiRepo, auth.NewAPIKeyService(cfg), nil, cfg), keyRepo, apiRepo
}
