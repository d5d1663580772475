package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/database"
	"github.com/try-veil/veil-gateway/internal/models"
	"github.com/try-veil/veil-gateway/internal/utils"
)

const apiConfigColumns = `id, name, path, upstream, required_subscription, request_count, last_accessed, created_at, updated_at`

// APIConfigRepository defines methods for storing onboarded APIs and their request rules.
type APIConfigRepository interface {
	// Upsert creates the API at cfg.Path or replaces it, including its methods,
	// parameters and required headers, in a single transaction.
	//
	// Parameters:
	//   - ctx: Context for transaction and cancellation control
	//   - cfg: The API to store; ID, CreatedAt and UpdatedAt are filled in
	//
	// Returns:
	//   - true if the API was created, false if an existing one was replaced
	//   - An error if any statement fails; nothing is written in that case
	Upsert(ctx context.Context, cfg *models.APIConfig) (bool, error)

	// List returns every onboarded API with its rules, ordered by path.
	List(ctx context.Context) ([]*models.APIConfig, error)

	// GetByID retrieves an API with its rules.
	GetByID(ctx context.Context, id int64) (*models.APIConfig, error)

	// GetByPath retrieves the API registered at exactly path.
	GetByPath(ctx context.Context, path string) (*models.APIConfig, error)

	// Delete removes an API. Its rules and bound keys go with it.
	Delete(ctx context.Context, id int64) error

	// IncrementStats counts one proxied request and records when it happened.
	IncrementStats(ctx context.Context, id int64, now time.Time) error
}

// SQLAPIConfigRepository is the database/sql implementation of APIConfigRepository.
type SQLAPIConfigRepository struct {
	db *database.Pool
}

// NewAPIConfigRepository creates a new APIConfigRepository.
func NewAPIConfigRepository(db *database.Pool) APIConfigRepository {
	return &SQLAPIConfigRepository{
		db: db,
	}
}

func scanAPIConfig(row rowScanner) (*models.APIConfig, error) {
	var (
		cfg                  models.APIConfig
		requiredSubscription sql.NullString
		lastAccessed         sql.NullTime
	)

	err := row.Scan(
		&cfg.ID,
		&cfg.Name,
		&cfg.Path,
		&cfg.Upstream,
		&requiredSubscription,
		&cfg.RequestCount,
		&lastAccessed,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cfg.RequiredSubscription = requiredSubscription.String
	cfg.LastAccessed = nullTimePtr(lastAccessed)
	cfg.Methods = []string{}
	cfg.Parameters = []models.APIParameter{}
	cfg.RequiredHeaders = []string{}

	return &cfg, nil
}

// Upsert creates or replaces the API registered at cfg.Path.
func (r *SQLAPIConfigRepository) Upsert(ctx context.Context, cfg *models.APIConfig) (bool, error) {
	created := false
	now := time.Now().UTC()

	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		existing, err := r.getOne(ctx, tx, constants.ColumnPath, cfg.Path)
		if err != nil && !utils.IsNotFoundError(err) {
			return err
		}

		if existing == nil {
			cfg.CreatedAt = now
			cfg.UpdatedAt = now
			id, err := database.Insert(ctx, tx, r.db.Dialect, constants.TableAPIConfigs, constants.ColumnID,
				[]string{
					constants.ColumnName, constants.ColumnPath, constants.ColumnUpstream,
					constants.ColumnRequiredSubscription, constants.ColumnRequestCount,
					constants.ColumnCreatedAt, constants.ColumnUpdatedAt,
				},
				[]interface{}{cfg.Name, cfg.Path, cfg.Upstream, cfg.RequiredSubscription, int64(0), now, now},
			)
			if err != nil {
				return err
			}
			cfg.ID = id
			created = true
		} else {
			cfg.ID = existing.ID
			cfg.CreatedAt = existing.CreatedAt
			cfg.UpdatedAt = now
			cfg.RequestCount = existing.RequestCount
			cfg.LastAccessed = existing.LastAccessed

			if err := r.execTx(ctx, tx, `
				UPDATE api_configs SET name = $1, upstream = $2, required_subscription = $3, updated_at = $4
				WHERE id = $5
			`, cfg.Name, cfg.Upstream, cfg.RequiredSubscription, now, cfg.ID); err != nil {
				return err
			}

			for _, table := range []string{constants.TableAPIMethods, constants.TableAPIParameters, constants.TableAPIRequiredHeaders} {
				if err := r.execTx(ctx, tx, `DELETE FROM `+table+` WHERE api_config_id = $1`, cfg.ID); err != nil {
					return err
				}
			}
		}

		return r.insertRules(ctx, tx, cfg)
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert API %s: %w", cfg.Path, err)
	}

	log.Info().
		Int64("api_id", cfg.ID).
		Str(constants.LogFieldAPIPath, cfg.Path).
		Bool("created", created).
		Msg("API configuration saved")

	return created, nil
}

// insertRules writes the methods, parameters and required headers of cfg
func (r *SQLAPIConfigRepository) insertRules(ctx context.Context, tx *sql.Tx, cfg *models.APIConfig) error {
	methods := make([][]interface{}, 0, len(cfg.Methods))
	for _, m := range cfg.Methods {
		methods = append(methods, []interface{}{cfg.ID, m})
	}
	if err := database.BulkInsert(ctx, tx, r.db.Dialect, constants.TableAPIMethods,
		[]string{constants.ColumnAPIConfigID, constants.ColumnMethod}, methods); err != nil {
		return err
	}

	params := make([][]interface{}, 0, len(cfg.Parameters))
	for _, p := range cfg.Parameters {
		params = append(params, []interface{}{cfg.ID, p.Name, p.Type, p.Required, p.Validation})
	}
	if err := database.BulkInsert(ctx, tx, r.db.Dialect, constants.TableAPIParameters,
		[]string{constants.ColumnAPIConfigID, constants.ColumnName, constants.ColumnParamType, constants.ColumnRequired, constants.ColumnValidation},
		params); err != nil {
		return err
	}

	headers := make([][]interface{}, 0, len(cfg.RequiredHeaders))
	for _, h := range cfg.RequiredHeaders {
		headers = append(headers, []interface{}{cfg.ID, h})
	}
	return database.BulkInsert(ctx, tx, r.db.Dialect, constants.TableAPIRequiredHeaders,
		[]string{constants.ColumnAPIConfigID, constants.ColumnHeaderName}, headers)
}

// List returns every onboarded API with its rules.
func (r *SQLAPIConfigRepository) List(ctx context.Context) ([]*models.APIConfig, error) {
	startTime := time.Now()

	query := `SELECT ` + apiConfigColumns + ` FROM api_configs ORDER BY path`
	rows, err := r.db.QueryContext(ctx, query)
	utils.LogDBQuery(query, nil, time.Since(startTime), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list APIs: %w", err)
	}
	defer rows.Close()

	configs := make([]*models.APIConfig, 0)
	for rows.Next() {
		cfg, err := scanAPIConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API row: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating API rows: %w", err)
	}

	if err := r.loadRules(ctx, r.db, configs); err != nil {
		return nil, err
	}

	return configs, nil
}

// GetByID retrieves an API with its rules.
func (r *SQLAPIConfigRepository) GetByID(ctx context.Context, id int64) (*models.APIConfig, error) {
	cfg, err := r.getOne(ctx, r.db, constants.ColumnID, id)
	if err != nil {
		return nil, err
	}
	if err := r.loadRules(ctx, r.db, []*models.APIConfig{cfg}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetByPath retrieves the API registered at exactly path.
func (r *SQLAPIConfigRepository) GetByPath(ctx context.Context, path string) (*models.APIConfig, error) {
	cfg, err := r.getOne(ctx, r.db, constants.ColumnPath, path)
	if err != nil {
		return nil, err
	}
	if err := r.loadRules(ctx, r.db, []*models.APIConfig{cfg}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (r *SQLAPIConfigRepository) getOne(ctx context.Context, q database.Querier, column string, value interface{}) (*models.APIConfig, error) {
	startTime := time.Now()

	query := r.db.Rebind(`SELECT ` + apiConfigColumns + ` FROM api_configs WHERE ` + column + ` = $1`)
	cfg, err := scanAPIConfig(q.QueryRowContext(ctx, query, value))

	utils.LogDBQuery(query, []interface{}{value}, time.Since(startTime), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewNotFoundError("API", value)
		}
		return nil, fmt.Errorf("failed to get API: %w", err)
	}

	return cfg, nil
}

// loadRules fills the methods, parameters and required headers of configs
// with one query per rule table.
func (r *SQLAPIConfigRepository) loadRules(ctx context.Context, q database.Querier, configs []*models.APIConfig) error {
	if len(configs) == 0 {
		return nil
	}

	byID := make(map[int64]*models.APIConfig, len(configs))
	ids := make([]interface{}, 0, len(configs))
	for _, cfg := range configs {
		byID[cfg.ID] = cfg
		ids = append(ids, cfg.ID)
	}
	in := inPlaceholders(1, len(ids))

	err := r.queryRules(ctx, q, `SELECT api_config_id, method FROM api_methods WHERE api_config_id IN (`+in+`) ORDER BY id`, ids,
		func(rows *sql.Rows) error {
			var id int64
			var method string
			if err := rows.Scan(&id, &method); err != nil {
				return err
			}
			byID[id].Methods = append(byID[id].Methods, method)
			return nil
		})
	if err != nil {
		return err
	}

	err = r.queryRules(ctx, q, `SELECT api_config_id, name, param_type, required, validation FROM api_parameters WHERE api_config_id IN (`+in+`) ORDER BY id`, ids,
		func(rows *sql.Rows) error {
			var id int64
			var p models.APIParameter
			var validation sql.NullString
			if err := rows.Scan(&id, &p.Name, &p.Type, &p.Required, &validation); err != nil {
				return err
			}
			p.Validation = validation.String
			byID[id].Parameters = append(byID[id].Parameters, p)
			return nil
		})
	if err != nil {
		return err
	}

	return r.queryRules(ctx, q, `SELECT api_config_id, header_name FROM api_required_headers WHERE api_config_id IN (`+in+`) ORDER BY id`, ids,
		func(rows *sql.Rows) error {
			var id int64
			var header string
			if err := rows.Scan(&id, &header); err != nil {
				return err
			}
			byID[id].RequiredHeaders = append(byID[id].RequiredHeaders, header)
			return nil
		})
}

// queryRules runs a rule query and hands each row to scan
func (r *SQLAPIConfigRepository) queryRules(ctx context.Context, q database.Querier, query string, args []interface{}, scan func(*sql.Rows) error) error {
	startTime := time.Now()

	query = r.db.Rebind(query)
	rows, err := q.QueryContext(ctx, query, args...)
	utils.LogDBQuery(query, args, time.Since(startTime), err)
	if err != nil {
		return fmt.Errorf("failed to load API rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("failed to scan API rule row: %w", err)
		}
	}

	return rows.Err()
}

// Delete removes an API; foreign keys cascade to its rules and bound keys.
func (r *SQLAPIConfigRepository) Delete(ctx context.Context, id int64) error {
	startTime := time.Now()

	query := r.db.Rebind(`DELETE FROM api_configs WHERE id = $1`)
	result, err := r.db.ExecContext(ctx, query, id)

	utils.LogDBQuery(query, []interface{}{id}, time.Since(startTime), err)

	if err != nil {
		return fmt.Errorf("failed to delete API: %w", err)
	}

	if err := database.RequireAffected(result); err != nil {
		if errors.Is(err, database.ErrNoRowsAffected) {
			return utils.NewNotFoundError("API", id)
		}
		return err
	}

	log.Info().Int64("api_id", id).Msg("API configuration deleted")

	return nil
}

// IncrementStats counts one proxied request.
func (r *SQLAPIConfigRepository) IncrementStats(ctx context.Context, id int64, now time.Time) error {
	return r.execTx(ctx, r.db, `UPDATE api_configs SET request_count = request_count + 1, last_accessed = $1 WHERE id = $2`, now, id)
}

// execTx runs a write on q, which may be the pool or an open transaction
func (r *SQLAPIConfigRepository) execTx(ctx context.Context, q database.Querier, query string, args ...interface{}) error {
	startTime := time.Now()

	query = r.db.Rebind(query)
	_, err := q.ExecContext(ctx, query, args...)

	utils.LogDBQuery(query, args, time.Since(startTime), err)

	if err != nil {
		return fmt.Errorf("failed to update API configuration: %w", err)
	}
	return nil
}
