// Package migrations provides schema management for the key store.
//
// Executed migrations are tracked in a dedicated migrations table. Every
// migration creates one table, and a missing table is recreated on startup
// even if its migration was recorded, so an interrupted run heals itself.
// Statements are rendered per SQL dialect, so the same migration list serves
// Postgres, MySQL and SQLite.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/database"
)

// Migration represents a database migration.
// Each migration performs a specific schema change and is tracked
// to ensure it runs exactly once.
type Migration struct {
	// Name is a unique identifier for the migration
	Name string
	// Description is a human-readable explanation of what the migration does
	Description string
	// TableName is the table affected by this migration, used for existence checks
	TableName string
	// Statements renders the DDL for a dialect. Each entry is executed on its own.
	Statements func(d database.Dialect) []string
}

// Run executes the migration statements inside tx.
func (mg Migration) Run(ctx context.Context, tx *sql.Tx, d database.Dialect) error {
	for _, stmt := range mg.Statements(d) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Migrator handles database migrations.
type Migrator struct {
	db *database.Pool
}

// NewMigrator creates a new migrator.
//
// Parameters:
//   - db: A database connection pool to use for migrations
//
// Returns:
//   - *Migrator: A configured migrator
func NewMigrator(db *database.Pool) *Migrator {
	return &Migrator{
		db: db,
	}
}

// RunMigrations runs all pending database migrations.
// It creates the migrations table if it doesn't exist, then for each migration
// either runs it or, when its table is already present, records it as done.
//
// Parameters:
//   - ctx: Context for database operations and cancellation
//
// Returns:
//   - error: Any error encountered during migration, nil if successful
func (m *Migrator) RunMigrations(ctx context.Context) error {
	log.Info().Str("driver", m.db.Driver()).Msg("Running database migrations")
	startTime := time.Now()

	if err := m.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	executedMigrations, err := m.getExecutedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get executed migrations: %w", err)
	}

	migrations := GetMigrations()
	migrationsRun := 0
	migrationsRecorded := 0

	for _, migration := range migrations {
		exists, err := m.tableExists(ctx, migration.TableName)
		if err != nil {
			return fmt.Errorf("failed to check if table %s exists: %w", migration.TableName, err)
		}

		_, executed := executedMigrations[migration.Name]

		switch {
		case exists && executed:
			continue

		case exists:
			log.Info().
				Str("migration", migration.Name).
				Str("table", migration.TableName).
				Msg("Table already exists, recording migration as completed")

			if err := m.recordMigration(ctx, m.db, migration); err != nil {
				return err
			}
			migrationsRecorded++

		default:
			if executed {
				log.Warn().
					Str("migration", migration.Name).
					Str("table", migration.TableName).
					Msg("Table doesn't exist but should. Running migration to create it.")
			}

			if err := m.runMigration(ctx, migration, !executed); err != nil {
				return err
			}
			migrationsRun++
		}
	}

	log.Info().
		Int("migrations_run", migrationsRun).
		Int("migrations_recorded", migrationsRecorded).
		Int("total_migrations", len(migrations)).
		Dur("duration", time.Since(startTime)).
		Msg("Database migrations completed")

	return nil
}

// createMigrationsTable creates the migrations table if it doesn't exist.
func (m *Migrator) createMigrationsTable(ctx context.Context) error {
	d := m.db.Dialect
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name VARCHAR(255) PRIMARY KEY,
		description %s,
		executed_at %s NOT NULL
	)%s`, constants.TableMigrations, d.TextType(), d.TimestampType(), d.TableOptions())

	_, err := m.db.ExecContext(ctx, query)
	return err
}

// getExecutedMigrations returns the set of executed migration names.
func (m *Migrator) getExecutedMigrations(ctx context.Context) (map[string]struct{}, error) {
	query := fmt.Sprintf(`SELECT name FROM %s`, constants.TableMigrations)
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close rows")
		}
	}()

	migrations := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		migrations[name] = struct{}{}
	}

	return migrations, rows.Err()
}

// runMigration runs a migration within a transaction.
// The migration is recorded in the same transaction when record is true.
func (m *Migrator) runMigration(ctx context.Context, migration Migration, record bool) error {
	log.Info().
		Str("migration", migration.Name).
		Str("table", migration.TableName).
		Msg("Running migration")

	return m.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := migration.Run(ctx, tx, m.db.Dialect); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}

		if !record {
			return nil
		}
		return m.recordMigration(ctx, tx, migration)
	})
}

// recordMigration marks a migration as executed.
func (m *Migrator) recordMigration(ctx context.Context, q database.Querier, migration Migration) error {
	query := m.db.Rebind(fmt.Sprintf(
		`INSERT INTO %s (name, description, executed_at) VALUES ($1, $2, $3)`,
		constants.TableMigrations,
	))
	if _, err := q.ExecContext(ctx, query, migration.Name, migration.Description, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", migration.Name, err)
	}
	return nil
}

// tableExists checks if a table exists in the current database schema.
func (m *Migrator) tableExists(ctx context.Context, tableName string) (bool, error) {
	query, args := m.db.Dialect.TableExistsQuery(tableName)

	var count int
	if err := m.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetMigrations returns all migrations in dependency order.
//
// Returns:
//   - []Migration: A slice of all migrations to be applied
func GetMigrations() []Migration {
	return []Migration{
		createAPIConfigsTable(),
		createAPIMethodsTable(),
		createAPIParametersTable(),
		createAPIRequiredHeadersTable(),
		createAPIKeysTable(),
	}
}
