package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrNoRowsAffected is returned when a write matched no rows
var ErrNoRowsAffected = errors.New("no rows affected")

// Insert inserts one row and returns its generated integer id.
// Dialects with RETURNING use it; MySQL falls back to LastInsertId.
//
// Parameters:
//   - ctx: Context for the query
//   - q: The pool or an open transaction
//   - d: The dialect of q
//   - table: Target table
//   - idColumn: The auto-increment column to return
//   - columns: Columns to insert, in the same order as values
//   - values: Values to bind
//
// Returns:
//   - The id of the inserted row
//   - An error if the insert fails
func Insert(ctx context.Context, q Querier, d Dialect, table, idColumn string, columns []string, values []interface{}) (int64, error) {
	if len(columns) != len(values) {
		return 0, fmt.Errorf("insert into %s: %d columns but %d values", table, len(columns), len(values))
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = d.Placeholder(i + 1)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)

	log.Debug().
		Str("query", query).
		Str("table", table).
		Msg("Creating database record")

	if d.SupportsReturning() {
		var id int64
		if err := q.QueryRowContext(ctx, query+" RETURNING "+idColumn, values...).Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to create record in %s: %w", table, err)
		}
		return id, nil
	}

	result, err := q.ExecContext(ctx, query, values...)
	if err != nil {
		return 0, fmt.Errorf("failed to create record in %s: %w", table, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// BulkInsert inserts rows with a single multi-row statement and no returned ids.
func BulkInsert(ctx context.Context, q Querier, d Dialect, table string, columns []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	tuples := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*len(columns))
	n := 1
	for _, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("bulk insert into %s: row has %d values, want %d", table, len(row), len(columns))
		}
		placeholders := make([]string, len(row))
		for i := range row {
			placeholders[i] = d.Placeholder(n)
			n++
		}
		tuples = append(tuples, "("+strings.Join(placeholders, ", ")+")")
		args = append(args, row...)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s",
		table,
		strings.Join(columns, ", "),
		strings.Join(tuples, ", "),
	)

	log.Debug().
		Str("table", table).
		Int("rows", len(rows)).
		Msg("Bulk inserting database records")

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to bulk insert into %s: %w", table, err)
	}

	return nil
}

// RequireAffected returns ErrNoRowsAffected when result touched no rows
func RequireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}
