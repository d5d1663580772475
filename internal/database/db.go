// Package database provides the connection pool, SQL dialect handling and
// transaction helpers shared by the key and API configuration stores.
// Postgres, MySQL and SQLite are supported.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq" // Postgres driver
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/try-veil/veil-gateway/internal/config"
	"github.com/try-veil/veil-gateway/internal/constants"
)

// Pool represents a database connection pool bound to one SQL dialect
type Pool struct {
	*sql.DB
	Dialect Dialect
}

var (
	// dbPool is the global database connection pool
	dbPool *Pool
)

// NewPool wraps an open handle for the given driver name.
func NewPool(db *sql.DB, driver string) *Pool {
	return &Pool{DB: db, Dialect: DialectFor(driver)}
}

// Connect creates a new database connection pool for the configured driver.
//
// For MySQL the target database is created first when it does not exist.
// For SQLite the parent directory of the database file is created.
func Connect(cfg *config.AppConfig) (*Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DBConnectionTimeout)
	defer cancel()

	dbCfg := cfg.Database
	driver := strings.ToLower(dbCfg.Driver)

	log.Info().
		Str("driver", driver).
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Name).
		Str("path", dbCfg.Path).
		Msg("Connecting to database")

	switch driver {
	case constants.DriverMySQL:
		if err := ensureMySQLDatabase(ctx, &dbCfg); err != nil {
			return nil, err
		}
	case constants.DriverSQLite:
		if err := ensureSQLiteDir(dbCfg.Path); err != nil {
			return nil, err
		}
	case constants.DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sql.Open(driverName(driver), dbCfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	if driver == constants.DriverSQLite {
		// SQLite serialises writers; a single connection avoids SQLITE_BUSY storms.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(dbCfg.MaxConns)
		db.SetMaxIdleConns(dbCfg.MinConns)
	}
	db.SetConnMaxLifetime(constants.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(constants.DBConnMaxIdleTime)

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("driver", driver).Msg("Successfully connected to database")

	// Create and store the global database pool
	dbPool = NewPool(db, driver)
	return dbPool, nil
}

// driverName maps a configured driver to its database/sql registration name
func driverName(driver string) string {
	switch driver {
	case constants.DriverMySQL:
		return "mysql"
	case constants.DriverSQLite:
		return "sqlite"
	default:
		return "postgres"
	}
}

// ensureMySQLDatabase connects without a schema and creates the configured one
func ensureMySQLDatabase(ctx context.Context, dbCfg *config.DatabaseSettings) error {
	mc, err := mysql.ParseDSN(dbCfg.ConnectionString())
	if err != nil {
		return fmt.Errorf("invalid mysql configuration: %w", err)
	}
	name := mc.DBName
	mc.DBName = ""

	rootDB, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return fmt.Errorf("failed to connect to root database: %w", err)
	}
	defer rootDB.Close()

	query := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", strings.ReplaceAll(name, "`", ""))
	if _, err := rootDB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}

	log.Info().Msgf("Ensured database '%s' exists", name)
	return nil
}

func ensureSQLiteDir(path string) error {
	if path == "" || strings.Contains(path, ":memory:") {
		return nil
	}
	dir := filepath.Dir(strings.TrimPrefix(path, "file:"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create sqlite directory %s: %w", dir, err)
	}
	return nil
}

// Get returns the global database connection pool
func Get() *Pool {
	if dbPool == nil {
		log.Fatal().Msg("database connection pool not initialized")
	}
	return dbPool
}

// Close closes the database connection pool
func (p *Pool) Close() {
	if p != nil && p.DB != nil {
		log.Info().Msg("Closing database connection pool")
		p.DB.Close()
	}
}

// Driver returns the configured driver name
func (p *Pool) Driver() string {
	return p.Dialect.Name
}

// Rebind rewrites $N placeholders for the pool's dialect
func (p *Pool) Rebind(query string) string {
	return p.Dialect.Rebind(query)
}

// Transaction executes a function within a transaction
func (p *Pool) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	// Start a transaction
	tx, err := p.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Handle panics to ensure proper rollback
	defer func() {
		if r := recover(); r != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("Failed to rollback transaction after panic")
			}
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to rollback transaction: %w", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// HealthCheck performs a health check on the database connection
func (p *Pool) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DBHealthCheckTimeout)
	defer cancel()

	if err := p.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Run a simple query to verify database functionality
	var result int
	if err := p.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query test failed: %w", err)
	}

	if result != 1 {
		return fmt.Errorf("database returned unexpected result: %d", result)
	}

	return nil
}
