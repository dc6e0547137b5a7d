// Package archiver provides preflight safety checks for a single setting's
// tables, before Phase 1 touches them.
package archiver

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dbsmedya/goarchive/internal/logger"
)

// PreflightError reports a setting whose table, column, or storage-engine
// shape does not match what the engine requires.
type PreflightError struct {
	Check   string
	Table   string
	Message string
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("%s: %s (table: %s)", e.Check, e.Message, e.Table)
}

// PreflightChecker validates a setting's source/target tables before a run
// touches them (SPEC_FULL.md §4.9): the table and its date/primary-key
// columns exist, and the target table's storage engine is transactional.
// Trimmed from the teacher's multi-table FK/trigger/cascade checks, which
// have no analog once each setting governs a single table pair.
type PreflightChecker struct {
	logger *logger.Logger
}

// NewPreflightChecker builds a PreflightChecker.
func NewPreflightChecker(log *logger.Logger) *PreflightChecker {
	if log == nil {
		log = logger.NewDefault()
	}
	return &PreflightChecker{logger: log}
}

// CheckTable validates that table exists in schemaName, that dateCol and
// pkCol are among its columns, and — when requireInnoDB is true — that its
// storage engine is InnoDB.
func (p *PreflightChecker) CheckTable(ctx context.Context, db *sql.DB, schemaName, table, dateCol, pkCol string, requireInnoDB bool) error {
	engine, exists, err := p.tableEngine(ctx, db, schemaName, table)
	if err != nil {
		return fmt.Errorf("preflight: failed to check table %q: %w", table, err)
	}
	if !exists {
		return &PreflightError{Check: "table-exists", Table: table, Message: "table does not exist in schema " + schemaName}
	}
	if requireInnoDB && engine != "InnoDB" {
		return &PreflightError{Check: "storage-engine", Table: table, Message: fmt.Sprintf("storage engine %q is not transactional (InnoDB required)", engine)}
	}

	columns, err := p.columnSet(ctx, db, schemaName, table)
	if err != nil {
		return fmt.Errorf("preflight: failed to list columns for %q: %w", table, err)
	}
	if !columns[dateCol] {
		return &PreflightError{Check: "date-column-exists", Table: table, Message: "date column " + dateCol + " not found"}
	}
	if !columns[pkCol] {
		return &PreflightError{Check: "pk-column-exists", Table: table, Message: "primary key column " + pkCol + " not found"}
	}

	return nil
}

func (p *PreflightChecker) tableEngine(ctx context.Context, db *sql.DB, schemaName, table string) (engine string, exists bool, err error) {
	const query = `SELECT ENGINE FROM information_schema.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`

	err = db.QueryRowContext(ctx, query, schemaName, table).Scan(&engine)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return engine, true, nil
}

func (p *PreflightChecker) columnSet(ctx context.Context, db *sql.DB, schemaName, table string) (map[string]bool, error) {
	const query = `SELECT COLUMN_NAME FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`

	rows, err := db.QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	return columns, rows.Err()
}
