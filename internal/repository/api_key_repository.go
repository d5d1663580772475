// Package repository provides data access for the gateway's API keys and
// onboarded API configurations.
//
// Every query is written with $N placeholders and rebound for the pool's
// dialect, so the same repository serves Postgres, MySQL and SQLite.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/database"
	"github.com/try-veil/veil-gateway/internal/models"
	"github.com/try-veil/veil-gateway/internal/utils"
)

// apiKeyColumns is the column list every key query selects, in scan order
const apiKeyColumns = `key_id, user_id, subscription_id, api_config_id, environment, name, description,
	key_digest, key_hint, permissions, is_active, subscription_status, requests_used, requests_limit,
	expires_at, last_used_at, revoked_at, revoke_reason, created_at, updated_at`

// KeyListFilter narrows a key listing
type KeyListFilter struct {
	Status string
	Now    time.Time
	Limit  int
	Offset int
}

// APIKeyRepository defines methods for interacting with API keys in the database.
type APIKeyRepository interface {
	// Create adds a new API key to the database.
	//
	// Parameters:
	//   - ctx: Context for transaction and cancellation control
	//   - apiKey: The API key to store, with its digest and hint populated
	//
	// Returns:
	//   - DuplicateError if the id or digest already exists
	//   - Other errors for database issues
	Create(ctx context.Context, apiKey *models.APIKey) error

	// GetByID retrieves an API key by its unique identifier.
	GetByID(ctx context.Context, id string) (*models.APIKey, error)

	// GetByDigest retrieves the API key stored under a keyed digest.
	// This is the single lookup behind every key validation.
	//
	// Returns:
	//   - NotFoundError if no key has this digest
	GetByDigest(ctx context.Context, digest string) (*models.APIKey, error)

	// ListByUser returns one page of a user's keys and the total matching the filter.
	ListByUser(ctx context.Context, userID int64, filter KeyListFilter) ([]*models.APIKey, int, error)

	// CreateWithinLimit adds a key bound to a subscription unless the subscription
	// already holds limit unexpired active keys. The count and the insert run in
	// one transaction, serialised per subscription.
	//
	// Returns:
	//   - KeyLimitReachedError if the subscription is at its cap
	//   - DuplicateError if the id or digest already exists
	CreateWithinLimit(ctx context.Context, apiKey *models.APIKey, limit int, now time.Time) error

	// ActivateWithinLimit reactivates a subscription's key under the same cap as CreateWithinLimit.
	ActivateWithinLimit(ctx context.Context, id string, subscriptionID int64, limit int, now time.Time) error

	// SearchByName returns up to limit of a user's keys whose name contains term, newest first.
	// The match ignores case and treats % and _ in term literally.
	SearchByName(ctx context.Context, userID int64, term string, limit int) ([]*models.APIKey, error)

	// Update saves the editable settings of a key: name, description, permissions and is_active.
	Update(ctx context.Context, apiKey *models.APIKey) error

	// Regenerate loads a key, lets rotate replace its secret, and saves the new
	// digest with usage reset, all in one transaction.
	Regenerate(ctx context.Context, id string, rotate func(*models.APIKey) error) (*models.APIKey, error)

	// Revoke deactivates a key and records when and why.
	Revoke(ctx context.Context, id, reason string, now time.Time) error

	// UpdateQuota sets the request limit of a key. Zero means unlimited.
	UpdateQuota(ctx context.Context, id string, limit int64, now time.Time) error

	// ResetUsage sets a key's request counter back to zero.
	ResetUsage(ctx context.Context, id string, now time.Time) error

	// UpdateSubscriptionStatus mirrors the subscription status onto a key.
	UpdateSubscriptionStatus(ctx context.Context, id, status string, now time.Time) error

	// ConsumeQuota atomically counts one request against a key.
	//
	// Returns:
	//   - true if the request fit in the quota and was counted
	//   - false if the quota was already used up
	ConsumeQuota(ctx context.Context, id string, now time.Time) (bool, error)

	// ResetAllUsage zeroes the request counters of every key.
	ResetAllUsage(ctx context.Context, now time.Time) (int64, error)

	// Delete permanently removes a key.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes keys whose expiry is before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)

	// SetActiveForAPI activates or deactivates the key with digest, if it is bound to the API.
	SetActiveForAPI(ctx context.Context, digest string, apiConfigID int64, active bool, now time.Time) error

	// DeleteForAPI removes the key with digest, if it is bound to the API.
	DeleteForAPI(ctx context.Context, digest string, apiConfigID int64) error
}

// SQLAPIKeyRepository is the database/sql implementation of APIKeyRepository.
type SQLAPIKeyRepository struct {
	db *database.Pool
}

// NewAPIKeyRepository creates a new APIKeyRepository.
//
// Parameters:
//   - db: The connection pool, whose dialect decides placeholder style
//
// Returns:
//   - An implementation of the APIKeyRepository interface
func NewAPIKeyRepository(db *database.Pool) APIKeyRepository {
	return &SQLAPIKeyRepository{
		db: db,
	}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAPIKey reads one row selected with apiKeyColumns
func scanAPIKey(row rowScanner) (*models.APIKey, error) {
	var (
		key            models.APIKey
		subscriptionID sql.NullInt64
		apiConfigID    sql.NullInt64
		description    sql.NullString
		revokeReason   sql.NullString
		expiresAt      sql.NullTime
		lastUsedAt     sql.NullTime
		revokedAt      sql.NullTime
	)

	err := row.Scan(
		&key.ID,
		&key.UserID,
		&subscriptionID,
		&apiConfigID,
		&key.Environment,
		&key.Name,
		&description,
		&key.KeyDigest,
		&key.KeyHint,
		&key.Permissions,
		&key.IsActive,
		&key.SubscriptionStatus,
		&key.RequestsUsed,
		&key.RequestsLimit,
		&expiresAt,
		&lastUsedAt,
		&revokedAt,
		&revokeReason,
		&key.CreatedAt,
		&key.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	key.SubscriptionID = nullInt64Ptr(subscriptionID)
	key.APIConfigID = nullInt64Ptr(apiConfigID)
	key.Description = description.String
	key.RevokeReason = revokeReason.String
	key.ExpiresAt = nullTimePtr(expiresAt)
	key.LastUsedAt = nullTimePtr(lastUsedAt)
	key.RevokedAt = nullTimePtr(revokedAt)

	return &key, nil
}

// Create adds a new API key to the database.
func (r *SQLAPIKeyRepository) Create(ctx context.Context, apiKey *models.APIKey) error {
	return r.create(ctx, r.db, apiKey)
}

func (r *SQLAPIKeyRepository) create(ctx context.Context, q database.Querier, apiKey *models.APIKey) error {
	startTime := time.Now()

	query := r.db.Rebind(`
		INSERT INTO api_keys (` + apiKeyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`)

	args := []interface{}{
		apiKey.ID,
		apiKey.UserID,
		int64PtrValue(apiKey.SubscriptionID),
		int64PtrValue(apiKey.APIConfigID),
		apiKey.Environment,
		apiKey.Name,
		apiKey.Description,
		apiKey.KeyDigest,
		apiKey.KeyHint,
		apiKey.Permissions,
		apiKey.IsActive,
		apiKey.SubscriptionStatus,
		apiKey.RequestsUsed,
		apiKey.RequestsLimit,
		timePtrValue(apiKey.ExpiresAt),
		timePtrValue(apiKey.LastUsedAt),
		timePtrValue(apiKey.RevokedAt),
		apiKey.RevokeReason,
		apiKey.CreatedAt,
		apiKey.UpdatedAt,
	}

	_, err := q.ExecContext(ctx, query, args...)

	utils.LogDBQuery(query, args, time.Since(startTime), err)

	if err != nil {
		if utils.IsDuplicateError(utils.ParseError(err)) {
			return utils.NewDuplicateError("APIKey", constants.ColumnKeyID, apiKey.ID)
		}
		return fmt.Errorf("failed to create API key: %w", err)
	}

	log.Info().
		Str(constants.LogFieldKeyID, apiKey.ID).
		Int64(constants.LogFieldUserID, apiKey.UserID).
		Str(constants.ColumnName, apiKey.Name).
		Msg(constants.LogEventAPIKey + " created")

	return nil
}

// GetByID retrieves an API key by ID.
func (r *SQLAPIKeyRepository) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	return r.getOne(ctx, r.db, constants.ColumnKeyID, id)
}

// GetByDigest retrieves an API key by its keyed digest.
func (r *SQLAPIKeyRepository) GetByDigest(ctx context.Context, digest string) (*models.APIKey, error) {
	return r.getOne(ctx, r.db, constants.ColumnKeyDigest, digest)
}

// getOne selects the single key whose column equals value
func (r *SQLAPIKeyRepository) getOne(ctx context.Context, q database.Querier, column, value string) (*models.APIKey, error) {
	startTime := time.Now()

	query := r.db.Rebind(`SELECT ` + apiKeyColumns + ` FROM api_keys WHERE ` + column + ` = $1`)

	key, err := scanAPIKey(q.QueryRowContext(ctx, query, value))

	utils.LogDBQuery(query, []interface{}{value}, time.Since(startTime), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The digest is not echoed back in errors
			if column == constants.ColumnKeyDigest {
				return nil, utils.NewNotFoundError("APIKey", "")
			}
			return nil, utils.NewNotFoundError("APIKey", value)
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}

	return key, nil
}

// statusCondition renders the WHERE fragment for a listing status filter.
// It appends its arguments to args and numbers placeholders after them.
func statusCondition(status string, now time.Time, args []interface{}) (string, []interface{}) {
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch status {
	case constants.KeyStatusActive:
		return " AND is_active = " + next(true) + " AND (expires_at IS NULL OR expires_at > " + next(now) + ")", args
	case constants.KeyStatusInactive:
		return " AND is_active = " + next(false) + " AND (expires_at IS NULL OR expires_at > " + next(now) + ")", args
	case constants.KeyStatusExpired:
		return " AND expires_at IS NOT NULL AND expires_at <= " + next(now), args
	default:
		return "", args
	}
}

// ListByUser returns one page of a user's keys, newest first.
//
// Parameters:
//   - ctx: Context for the query
//   - userID: The owner of the keys
//   - filter: Status filter (active, inactive, expired or all) and paging
//
// Returns:
//   - The keys on the requested page
//   - The total number of keys matching the filter
//   - An error if a query fails
func (r *SQLAPIKeyRepository) ListByUser(ctx context.Context, userID int64, filter KeyListFilter) ([]*models.APIKey, int, error) {
	startTime := time.Now()

	condition, args := statusCondition(filter.Status, filter.Now, []interface{}{userID})

	countQuery := r.db.Rebind(`SELECT COUNT(*) FROM api_keys WHERE user_id = $1` + condition)

	var total int
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	utils.LogDBQuery(countQuery, args, time.Since(startTime), err)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count API keys: %w", err)
	}

	pageArgs := append(append([]interface{}{}, args...), filter.Limit, filter.Offset)
	query := r.db.Rebind(fmt.Sprintf(
		`SELECT %s FROM api_keys WHERE user_id = $1%s ORDER BY created_at DESC, key_id LIMIT $%d OFFSET $%d`,
		apiKeyColumns, condition, len(args)+1, len(args)+2,
	))

	startTime = time.Now()
	rows, err := r.db.QueryContext(ctx, query, pageArgs...)
	utils.LogDBQuery(query, pageArgs, time.Since(startTime), err)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list API keys: %w", err)
	}
	defer rows.Close()

	keys, err := scanAPIKeys(rows, filter.Limit)
	if err != nil {
		return nil, 0, err
	}

	return keys, total, nil
}

// scanAPIKeys drains rows selected with apiKeyColumns
func scanAPIKeys(rows *sql.Rows, capacity int) ([]*models.APIKey, error) {
	keys := make([]*models.APIKey, 0, capacity)
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API key row: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating API key rows: %w", err)
	}

	return keys, nil
}

// likeEscaper escapes LIKE wildcards using '!' as the escape character
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// SearchByName returns a user's keys whose name contains term, newest first.
func (r *SQLAPIKeyRepository) SearchByName(ctx context.Context, userID int64, term string, limit int) ([]*models.APIKey, error) {
	startTime := time.Now()

	query := r.db.Rebind(`
		SELECT ` + apiKeyColumns + ` FROM api_keys
		WHERE user_id = $1 AND LOWER(name) LIKE $2 ESCAPE '!'
		ORDER BY created_at DESC, key_id LIMIT $3
	`)
	args := []interface{}{userID, "%" + likeEscaper.Replace(strings.ToLower(term)) + "%", limit}

	rows, err := r.db.QueryContext(ctx, query, args...)
	utils.LogDBQuery(query, args, time.Since(startTime), err)
	if err != nil {
		return nil, fmt.Errorf("failed to search API keys: %w", err)
	}
	defer rows.Close()

	return scanAPIKeys(rows, limit)
}

// CreateWithinLimit inserts apiKey after checking its subscription's cap in the same transaction.
func (r *SQLAPIKeyRepository) CreateWithinLimit(ctx context.Context, apiKey *models.APIKey, limit int, now time.Time) error {
	if apiKey.SubscriptionID == nil {
		return r.Create(ctx, apiKey)
	}

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := r.claimActiveSlot(ctx, tx, *apiKey.SubscriptionID, limit, now); err != nil {
			return err
		}
		return r.create(ctx, tx, apiKey)
	})
}

// ActivateWithinLimit sets is_active on a subscription's key after checking the cap in the same transaction.
func (r *SQLAPIKeyRepository) ActivateWithinLimit(ctx context.Context, id string, subscriptionID int64, limit int, now time.Time) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := r.claimActiveSlot(ctx, tx, subscriptionID, limit, now); err != nil {
			return err
		}
		return r.execOn(ctx, tx, id, `
			UPDATE api_keys SET is_active = $1, updated_at = $2
			WHERE key_id = $3 AND subscription_id = $4
		`, true, now, id, subscriptionID)
	})
}

// claimActiveSlot fails with KeyLimitReachedError when the subscription already
// holds limit unexpired active keys. Concurrent claims for one subscription wait
// for each other: Postgres takes a transaction advisory lock, MySQL locks the
// counted rows, and SQLite runs on a single connection.
func (r *SQLAPIKeyRepository) claimActiveSlot(ctx context.Context, tx *sql.Tx, subscriptionID int64, limit int, now time.Time) error {
	if r.db.Driver() == constants.DriverPostgres {
		startTime := time.Now()
		lockQuery := `SELECT pg_advisory_xact_lock($1)`
		_, err := tx.ExecContext(ctx, lockQuery, subscriptionID)
		utils.LogDBQuery(lockQuery, []interface{}{subscriptionID}, time.Since(startTime), err)
		if err != nil {
			return fmt.Errorf("failed to lock subscription keys: %w", err)
		}
	}

	countQuery := `
		SELECT COUNT(*) FROM api_keys
		WHERE subscription_id = $1 AND is_active = $2 AND (expires_at IS NULL OR expires_at > $3)
	`
	if r.db.Driver() == constants.DriverMySQL {
		countQuery += ` FOR UPDATE`
	}
	countQuery = r.db.Rebind(countQuery)
	args := []interface{}{subscriptionID, true, now}

	startTime := time.Now()
	var count int
	err := tx.QueryRowContext(ctx, countQuery, args...).Scan(&count)
	utils.LogDBQuery(countQuery, args, time.Since(startTime), err)
	if err != nil {
		return fmt.Errorf("failed to count active API keys: %w", err)
	}

	if count >= limit {
		return utils.NewKeyLimitReachedError(limit)
	}
	return nil
}

// Update saves the editable settings of a key.
func (r *SQLAPIKeyRepository) Update(ctx context.Context, apiKey *models.APIKey) error {
	return r.exec(ctx, apiKey.ID, `
		UPDATE api_keys
		SET name = $1, description = $2, permissions = $3, is_active = $4, updated_at = $5
		WHERE key_id = $6
	`, apiKey.Name, apiKey.Description, apiKey.Permissions, apiKey.IsActive, apiKey.UpdatedAt, apiKey.ID)
}

// Regenerate rotates a key's secret inside a transaction.
// The id and settings are kept; usage starts again from zero.
func (r *SQLAPIKeyRepository) Regenerate(ctx context.Context, id string, rotate func(*models.APIKey) error) (*models.APIKey, error) {
	var rotated *models.APIKey

	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		key, err := r.getOne(ctx, tx, constants.ColumnKeyID, id)
		if err != nil {
			return err
		}

		if err := rotate(key); err != nil {
			return err
		}

		key.RequestsUsed = 0
		startTime := time.Now()
		query := r.db.Rebind(`
			UPDATE api_keys
			SET key_digest = $1, key_hint = $2, requests_used = $3, updated_at = $4
			WHERE key_id = $5
		`)
		args := []interface{}{key.KeyDigest, key.KeyHint, key.RequestsUsed, key.UpdatedAt, key.ID}

		result, err := tx.ExecContext(ctx, query, args...)
		utils.LogDBQuery(query, args, time.Since(startTime), err)
		if err != nil {
			return fmt.Errorf("failed to regenerate API key: %w", err)
		}
		if err := database.RequireAffected(result); err != nil {
			return utils.NewNotFoundError("APIKey", id)
		}

		rotated = key
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rotated, nil
}

// Revoke deactivates a key and records when and why.
func (r *SQLAPIKeyRepository) Revoke(ctx context.Context, id, reason string, now time.Time) error {
	return r.exec(ctx, id, `
		UPDATE api_keys
		SET is_active = $1, revoked_at = $2, revoke_reason = $3, updated_at = $4
		WHERE key_id = $5
	`, false, now, reason, now, id)
}

// UpdateQuota sets the request limit of a key.
func (r *SQLAPIKeyRepository) UpdateQuota(ctx context.Context, id string, limit int64, now time.Time) error {
	return r.exec(ctx, id, `UPDATE api_keys SET requests_limit = $1, updated_at = $2 WHERE key_id = $3`, limit, now, id)
}

// ResetUsage sets a key's request counter back to zero.
func (r *SQLAPIKeyRepository) ResetUsage(ctx context.Context, id string, now time.Time) error {
	return r.exec(ctx, id, `UPDATE api_keys SET requests_used = 0, updated_at = $1 WHERE key_id = $2`, now, id)
}

// UpdateSubscriptionStatus mirrors the subscription status onto a key.
func (r *SQLAPIKeyRepository) UpdateSubscriptionStatus(ctx context.Context, id, status string, now time.Time) error {
	return r.exec(ctx, id, `UPDATE api_keys SET subscription_status = $1, updated_at = $2 WHERE key_id = $3`, status, now, id)
}

// ConsumeQuota counts one request against a key in a single conditional UPDATE,
// so concurrent requests can never push usage past the limit.
func (r *SQLAPIKeyRepository) ConsumeQuota(ctx context.Context, id string, now time.Time) (bool, error) {
	startTime := time.Now()

	query := r.db.Rebind(`
		UPDATE api_keys
		SET requests_used = requests_used + 1, last_used_at = $1
		WHERE key_id = $2 AND (requests_limit = 0 OR requests_used < requests_limit)
	`)
	args := []interface{}{now, id}

	result, err := r.db.ExecContext(ctx, query, args...)

	utils.LogDBQuery(query, args, time.Since(startTime), err)

	if err != nil {
		return false, fmt.Errorf("failed to consume API key quota: %w", err)
	}

	if err := database.RequireAffected(result); err != nil {
		if errors.Is(err, database.ErrNoRowsAffected) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// ResetAllUsage zeroes the request counters of every key that has used any.
func (r *SQLAPIKeyRepository) ResetAllUsage(ctx context.Context, now time.Time) (int64, error) {
	return r.execCount(ctx, `UPDATE api_keys SET requests_used = 0, updated_at = $1 WHERE requests_used > 0`, now)
}

// Delete permanently removes a key.
func (r *SQLAPIKeyRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, id, `DELETE FROM api_keys WHERE key_id = $1`, id)
}

// DeleteExpired removes keys whose expiry is before the cutoff.
func (r *SQLAPIKeyRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return r.execCount(ctx, `DELETE FROM api_keys WHERE expires_at IS NOT NULL AND expires_at < $1`, before)
}

// SetActiveForAPI activates or deactivates a key bound to an API.
func (r *SQLAPIKeyRepository) SetActiveForAPI(ctx context.Context, digest string, apiConfigID int64, active bool, now time.Time) error {
	return r.exec(ctx, "", `
		UPDATE api_keys SET is_active = $1, updated_at = $2
		WHERE key_digest = $3 AND api_config_id = $4
	`, active, now, digest, apiConfigID)
}

// DeleteForAPI removes a key bound to an API.
func (r *SQLAPIKeyRepository) DeleteForAPI(ctx context.Context, digest string, apiConfigID int64) error {
	return r.exec(ctx, "", `DELETE FROM api_keys WHERE key_digest = $1 AND api_config_id = $2`, digest, apiConfigID)
}

// exec runs a write that must touch exactly the key named by id.
// It returns NotFoundError when no row matched.
func (r *SQLAPIKeyRepository) exec(ctx context.Context, id, query string, args ...interface{}) error {
	return r.execOn(ctx, r.db, id, query, args...)
}

func (r *SQLAPIKeyRepository) execOn(ctx context.Context, q database.Querier, id, query string, args ...interface{}) error {
	startTime := time.Now()

	query = r.db.Rebind(query)
	result, err := q.ExecContext(ctx, query, args...)

	utils.LogDBQuery(query, args, time.Since(startTime), err)

	if err != nil {
		return fmt.Errorf("failed to update API key: %w", err)
	}

	if err := database.RequireAffected(result); err != nil {
		if errors.Is(err, database.ErrNoRowsAffected) {
			return utils.NewNotFoundError("APIKey", id)
		}
		return err
	}

	return nil
}

// execCount runs a bulk write and returns the number of rows it touched
func (r *SQLAPIKeyRepository) execCount(ctx context.Context, query string, args ...interface{}) (int64, error) {
	startTime := time.Now()

	query = r.db.Rebind(query)
	result, err := r.db.ExecContext(ctx, query, args...)

	utils.LogDBQuery(query, args, time.Since(startTime), err)

	if err != nil {
		return 0, fmt.Errorf("failed to update API keys: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error getting rows affected: %w", err)
	}

	return count, nil
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// int64PtrValue converts an optional id to a bind value, NULL when unset
func int64PtrValue(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// timePtrValue converts an optional timestamp to a bind value, NULL when unset
func timePtrValue(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// inPlaceholders renders $start..$start+n-1 as a comma separated list
func inPlaceholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
