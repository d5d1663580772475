// Package constants provides shared constant values used throughout the application.
//
// The database_const.go file defines table names, column names and schema
// references. Repositories and migrations build their SQL from these values so
// that a schema rename touches a single place.
package constants

// Table Names define the names of database tables used in the application.
const (
	// TableMigrations records which schema migrations have been applied.
	TableMigrations = "migrations"

	// TableAPIConfigs is the name of the table storing onboarded upstream APIs.
	TableAPIConfigs = "api_configs"

	// TableAPIMethods is the name of the table storing the HTTP methods an API accepts.
	TableAPIMethods = "api_methods"

	// TableAPIParameters is the name of the table storing parameter rules for an API.
	TableAPIParameters = "api_parameters"

	// TableAPIRequiredHeaders is the name of the table storing headers an API requires.
	TableAPIRequiredHeaders = "api_required_headers"

	// TableAPIKeys is the name of the table storing API key information.
	TableAPIKeys = "api_keys"
)

// Common Column Names define frequently used database column names.
const (
	// ColumnID is the generic primary key column name.
	ColumnID = "id"

	// ColumnUserID is the column name for the owning user identifier.
	ColumnUserID = "user_id"

	// ColumnCreatedAt is the column name for creation timestamps.
	ColumnCreatedAt = "created_at"

	// ColumnUpdatedAt is the column name for modification timestamps.
	ColumnUpdatedAt = "updated_at"

	// ColumnName is the column name for resource names.
	ColumnName = "name"

	// ColumnExpiresAt is the column name for expiration timestamps.
	ColumnExpiresAt = "expires_at"
)

// API Config Column Names define the columns of the api_configs table and its children.
const (
	ColumnAPIConfigID          = "api_config_id"
	ColumnPath                 = "path"
	ColumnUpstream             = "upstream"
	ColumnRequiredSubscription = "required_subscription"
	ColumnRequestCount         = "request_count"
	ColumnLastAccessed         = "last_accessed"
	ColumnMethod               = "method"
	ColumnParamType            = "param_type"
	ColumnRequired             = "required"
	ColumnValidation           = "validation"
	ColumnHeaderName           = "header_name"
)

// API Key Column Names define the columns of the api_keys table.
const (
	// ColumnKeyID is the column name for API key identifiers.
	ColumnKeyID = "key_id"

	// ColumnKeyDigest is the column name for the keyed digest of the raw key.
	// The raw key itself is never persisted.
	ColumnKeyDigest = "key_digest"

	// ColumnKeyHint is the column name for the masked display form of a key.
	ColumnKeyHint = "key_hint"

	ColumnSubscriptionID     = "subscription_id"
	ColumnSubscriptionStatus = "subscription_status"
	ColumnDescription        = "description"
	ColumnEnvironment        = "environment"
	ColumnPermissions        = "permissions"
	ColumnIsActive           = "is_active"
	ColumnRequestsUsed       = "requests_used"
	ColumnRequestsLimit      = "requests_limit"
	ColumnLastUsedAt         = "last_used_at"
	ColumnRevokedAt          = "revoked_at"
	ColumnRevokeReason       = "revoke_reason"
)

// Index Names define database index names.
const (
	// IndexAPIKeysUserID speeds up listing keys by owner.
	IndexAPIKeysUserID = "idx_api_keys_user_id"

	// IndexAPIKeysSubscriptionID speeds up the active-keys-per-subscription count.
	IndexAPIKeysSubscriptionID = "idx_api_keys_subscription_id"
)

// Database Schema Names define the names of database schemas.
const (
	// SchemaInformation is the name of the SQL standard information schema.
	SchemaInformation = "information_schema"
)

// Database Drivers define the database/sql driver names the application supports.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// PostgreSQL connection string parameters
const (
	PostgresSSLRequire = "sslmode=require connect_timeout=15"
	PostgresSSLDisable = "sslmode=disable connect_timeout=15"
)
