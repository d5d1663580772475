package migrations

import (
	"fmt"

	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/database"
)

// createIndex renders a CREATE INDEX statement.
// MySQL has no IF NOT EXISTS for indexes; the table is new when this runs.
func createIndex(d database.Dialect, name, table, column string) string {
	if d.Name == constants.DriverMySQL {
		return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", name, table, column)
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, table, column)
}

// configForeignKey ties api_config_id to its api_configs parent.
// It is a table constraint because MySQL ignores inline REFERENCES.
func configForeignKey() string {
	return fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s) ON DELETE CASCADE",
		constants.ColumnAPIConfigID, constants.TableAPIConfigs, constants.ColumnID)
}

// createAPIConfigsTable creates the table of onboarded upstream APIs
func createAPIConfigsTable() Migration {
	return Migration{
		Name:        "create_api_configs_table",
		Description: "Creates the api_configs table",
		TableName:   constants.TableAPIConfigs,
		Statements: func(d database.Dialect) []string {
			return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id %s,
				name VARCHAR(100) NOT NULL,
				path VARCHAR(255) NOT NULL UNIQUE,
				upstream VARCHAR(2048) NOT NULL,
				required_subscription VARCHAR(100),
				request_count %s NOT NULL DEFAULT 0,
				last_accessed %s NULL,
				created_at %s NOT NULL,
				updated_at %s NOT NULL
			)%s`,
				constants.TableAPIConfigs, d.AutoIncrementPK(), d.BigIntType(),
				d.TimestampType(), d.TimestampType(), d.TimestampType(), d.TableOptions())}
		},
	}
}

// createAPIMethodsTable creates the table of allowed HTTP methods per API
func createAPIMethodsTable() Migration {
	return Migration{
		Name:        "create_api_methods_table",
		Description: "Creates the api_methods table",
		TableName:   constants.TableAPIMethods,
		Statements: func(d database.Dialect) []string {
			return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id %s,
				api_config_id %s NOT NULL,
				method VARCHAR(10) NOT NULL,
				%s
			)%s`, constants.TableAPIMethods, d.AutoIncrementPK(), d.BigIntType(), configForeignKey(), d.TableOptions())}
		},
	}
}

// createAPIParametersTable creates the table of parameter rules per API
func createAPIParametersTable() Migration {
	return Migration{
		Name:        "create_api_parameters_table",
		Description: "Creates the api_parameters table",
		TableName:   constants.TableAPIParameters,
		Statements: func(d database.Dialect) []string {
			return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id %s,
				api_config_id %s NOT NULL,
				name VARCHAR(100) NOT NULL,
				param_type VARCHAR(20) NOT NULL,
				required %s NOT NULL,
				validation %s,
				%s
			)%s`, constants.TableAPIParameters, d.AutoIncrementPK(), d.BigIntType(), d.BoolType(), d.TextType(), configForeignKey(), d.TableOptions())}
		},
	}
}

// createAPIRequiredHeadersTable creates the table of headers an API requires
func createAPIRequiredHeadersTable() Migration {
	return Migration{
		Name:        "create_api_required_headers_table",
		Description: "Creates the api_required_headers table",
		TableName:   constants.TableAPIRequiredHeaders,
		Statements: func(d database.Dialect) []string {
			return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id %s,
				api_config_id %s NOT NULL,
				header_name VARCHAR(255) NOT NULL,
				%s
			)%s`, constants.TableAPIRequiredHeaders, d.AutoIncrementPK(), d.BigIntType(), configForeignKey(), d.TableOptions())}
		},
	}
}

// createAPIKeysTable creates the api_keys table.
// Only the keyed digest of a raw key is stored, never the key itself.
func createAPIKeysTable() Migration {
	return Migration{
		Name:        "create_api_keys_table",
		Description: "Creates the api_keys table",
		TableName:   constants.TableAPIKeys,
		Statements: func(d database.Dialect) []string {
			ts := d.TimestampType()
			table := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				key_id VARCHAR(36) PRIMARY KEY,
				user_id %s NOT NULL,
				subscription_id %s NULL,
				api_config_id %s NULL,
				environment VARCHAR(10) NOT NULL,
				name VARCHAR(100) NOT NULL,
				description VARCHAR(500),
				key_digest VARCHAR(64) NOT NULL UNIQUE,
				key_hint VARCHAR(64) NOT NULL,
				permissions VARCHAR(20) NOT NULL,
				is_active %s NOT NULL,
				subscription_status VARCHAR(20) NOT NULL,
				requests_used %s NOT NULL DEFAULT 0,
				requests_limit %s NOT NULL DEFAULT 0,
				expires_at %s NULL,
				last_used_at %s NULL,
				revoked_at %s NULL,
				revoke_reason VARCHAR(255),
				created_at %s NOT NULL,
				updated_at %s NOT NULL,
				%s
			)%s`,
				constants.TableAPIKeys,
				d.BigIntType(), d.BigIntType(), d.BigIntType(),
				d.BoolType(), d.BigIntType(), d.BigIntType(),
				ts, ts, ts, ts, ts, configForeignKey(), d.TableOptions())

			return []string{
				table,
				createIndex(d, constants.IndexAPIKeysUserID, constants.TableAPIKeys, constants.ColumnUserID),
				createIndex(d, constants.IndexAPIKeysSubscriptionID, constants.TableAPIKeys, constants.ColumnSubscriptionID),
			}
		},
	}
}
