package database

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/try-veil/veil-gateway/internal/constants"
)

// Dialect captures the SQL differences between the supported drivers.
// Queries are written with Postgres style $N placeholders and rebound.
type Dialect struct {
	Name string
}

// DialectFor returns the dialect for a driver name, defaulting to Postgres
func DialectFor(driver string) Dialect {
	switch strings.ToLower(driver) {
	case constants.DriverMySQL:
		return Dialect{Name: constants.DriverMySQL}
	case constants.DriverSQLite:
		return Dialect{Name: constants.DriverSQLite}
	default:
		return Dialect{Name: constants.DriverPostgres}
	}
}

// Rebind rewrites $N placeholders.
//
// Postgres keeps them as is. SQLite gets ?N, which keeps numbering.
// MySQL gets positional ?, so every $N must appear once and in order.
func (d Dialect) Rebind(query string) string {
	if d.Name != constants.DriverMySQL && d.Name != constants.DriverSQLite {
		return query
	}

	var b strings.Builder
	b.Grow(len(query))

	for i := 0; i < len(query); i++ {
		c := query[i]
		if c != '$' {
			b.WriteByte(c)
			continue
		}

		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}
		if j == i+1 {
			b.WriteByte(c)
			continue
		}

		b.WriteByte('?')
		if d.Name == constants.DriverSQLite {
			b.WriteString(query[i+1 : j])
		}
		i = j - 1
	}

	return b.String()
}

// Placeholder returns the n-th (1-based) bind parameter in this dialect
func (d Dialect) Placeholder(n int) string {
	switch d.Name {
	case constants.DriverMySQL:
		return "?"
	case constants.DriverSQLite:
		return "?" + strconv.Itoa(n)
	default:
		return "$" + strconv.Itoa(n)
	}
}

// AutoIncrementPK is the column definition for a surrogate integer key
func (d Dialect) AutoIncrementPK() string {
	switch d.Name {
	case constants.DriverMySQL:
		return "BIGINT AUTO_INCREMENT PRIMARY KEY"
	case constants.DriverSQLite:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	default:
		return "BIGSERIAL PRIMARY KEY"
	}
}

// TimestampType is the column type used for instants
func (d Dialect) TimestampType() string {
	switch d.Name {
	case constants.DriverMySQL:
		return "DATETIME(6)"
	case constants.DriverSQLite:
		return "TIMESTAMP"
	default:
		return "TIMESTAMPTZ"
	}
}

// BoolType is the column type used for flags
func (d Dialect) BoolType() string {
	if d.Name == constants.DriverMySQL {
		return "TINYINT(1)"
	}
	return "BOOLEAN"
}

// BigIntType is the column type used for counters and foreign keys
func (d Dialect) BigIntType() string {
	if d.Name == constants.DriverSQLite {
		return "INTEGER"
	}
	return "BIGINT"
}

// TextType is the column type used for unbounded strings
func (d Dialect) TextType() string {
	return "TEXT"
}

// TableOptions is appended to CREATE TABLE statements
func (d Dialect) TableOptions() string {
	if d.Name == constants.DriverMySQL {
		return " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci"
	}
	return ""
}

// SupportsReturning reports whether INSERT ... RETURNING is available
func (d Dialect) SupportsReturning() bool {
	return d.Name != constants.DriverMySQL
}

// TableExistsQuery returns a query and its args that yield a row count for the table
func (d Dialect) TableExistsQuery(table string) (string, []interface{}) {
	switch d.Name {
	case constants.DriverMySQL:
		return fmt.Sprintf("SELECT COUNT(*) FROM %s.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?",
			constants.SchemaInformation), []interface{}{table}
	case constants.DriverSQLite:
		return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?1", []interface{}{table}
	default:
		return fmt.Sprintf("SELECT COUNT(*) FROM %s.tables WHERE table_schema = current_schema() AND table_name = $1",
			constants.SchemaInformation), []interface{}{table}
	}
}
