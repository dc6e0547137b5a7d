// Package database manages MySQL connections and executes the archive
// engine's cursor reads, filtered bulk loads, and chunked deletes.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"github.com/dbsmedya/goarchive/internal/config"
	"github.com/dbsmedya/goarchive/internal/sqlutil"
	"github.com/dbsmedya/goarchive/internal/types"
)

// Gateway opens and holds the named connections an archive run needs: the
// online source, the historical destination, and the control connection
// that owns settings/audit/advisory-lock state. It also exposes the
// cursor-batch, filtered-insert, and chunked-delete primitives the engine
// drives each phase with.
type Gateway struct {
	Online  *sql.DB
	History *sql.DB
	Control *sql.DB

	builder *sqlutil.SqlBuilder
}

// NewGateway constructs a Gateway with no open connections.
func NewGateway() *Gateway {
	return &Gateway{builder: sqlutil.NewSqlBuilder()}
}

// Open connects Online, History, and Control from the resolved connection
// configs. Control may be the same logical connection as Online; callers
// pass whichever ConnectionConfig config.Resolve returned for each name.
func (g *Gateway) Open(ctx context.Context, online, history, control config.ConnectionConfig) error {
	var err error

	g.Online, err = connectWithRetry(ctx, online)
	if err != nil {
		return fmt.Errorf("failed to connect to online database: %w", err)
	}

	g.History, err = connectWithRetry(ctx, history)
	if err != nil {
		g.Online.Close()
		return fmt.Errorf("failed to connect to history database: %w", err)
	}

	g.Control, err = connectWithRetry(ctx, control)
	if err != nil {
		g.Online.Close()
		g.History.Close()
		return fmt.Errorf("failed to connect to control database: %w", err)
	}

	return nil
}

// connectWithRetry makes up to three connection attempts, waiting 1s and
// then 2s between them.
func connectWithRetry(ctx context.Context, cfg config.ConnectionConfig) (*sql.DB, error) {
	var db *sql.DB
	var err error

	const maxRetries = 3
	backoff := time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = connect(cfg)
		if err == nil {
			if pingErr := db.PingContext(ctx); pingErr == nil {
				return db, nil
			} else {
				db.Close()
				err = pingErr
			}
		}

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", maxRetries, err)
}

func connect(cfg config.ConnectionConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", BuildDSN(cfg))
	if err != nil {
		return nil, err
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConnections)
	}
	db.SetConnMaxLifetime(10 * time.Minute)

	return db, nil
}

// BuildDSN constructs a MySQL DSN from a resolved connection config.
func BuildDSN(cfg config.ConnectionConfig) string {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/", cfg.User, cfg.Password, cfg.Host, cfg.Port)
	if cfg.Database != "" {
		dsn += cfg.Database
	}

	params := "?parseTime=true&multiStatements=true"
	switch cfg.TLS {
	case "disable":
		params += "&tls=false"
	case "required":
		params += "&tls=true"
	case "preferred", "":
		params += "&tls=preferred"
	}

	return dsn + params
}

// OpenTables connects Online and History for a single table's phases,
// leaving Control unset. Per SPEC_FULL.md §5, the engine opens a Gateway
// once per table, uses it for both of that table's phases and closes it
// when the table is done, not per batch — database/sql's own pool takes
// care of sharing connections across the batches in between.
func (g *Gateway) OpenTables(ctx context.Context, online, history config.ConnectionConfig) error {
	var err error

	g.Online, err = connectWithRetry(ctx, online)
	if err != nil {
		return fmt.Errorf("failed to connect to online database: %w", err)
	}

	g.History, err = connectWithRetry(ctx, history)
	if err != nil {
		g.Online.Close()
		return fmt.Errorf("failed to connect to history database: %w", err)
	}

	return nil
}

// Close closes every open connection, collecting rather than short
// circuiting on the first failure.
func (g *Gateway) Close() error {
	var errs []error

	if g.Control != nil {
		if err := g.Control.Close(); err != nil {
			errs = append(errs, fmt.Errorf("control close: %w", err))
		}
	}
	if g.History != nil {
		if err := g.History.Close(); err != nil {
			errs = append(errs, fmt.Errorf("history close: %w", err))
		}
	}
	if g.Online != nil {
		if err := g.Online.Close(); err != nil {
			errs = append(errs, fmt.Errorf("online close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing connections: %v", errs)
	}
	return nil
}

// Ping verifies every open connection is alive.
func (g *Gateway) Ping(ctx context.Context) error {
	if g.Online != nil {
		if err := g.Online.PingContext(ctx); err != nil {
			return fmt.Errorf("online ping failed: %w", err)
		}
	}
	if g.History != nil {
		if err := g.History.PingContext(ctx); err != nil {
			return fmt.Errorf("history ping failed: %w", err)
		}
	}
	if g.Control != nil {
		if err := g.Control.PingContext(ctx); err != nil {
			return fmt.Errorf("control ping failed: %w", err)
		}
	}
	return nil
}

// SelectBatch runs the cursor-driven batch SELECT against the online
// connection and materializes the result as an ordered slice of Rows.
func (g *Gateway) SelectBatch(ctx context.Context, table, dateCol, pkCol string, withCursor bool, lastDate, lastPK, cutoff any, limit int) ([]types.Row, error) {
	return g.SelectBatchDB(ctx, g.Online, table, dateCol, pkCol, withCursor, lastDate, lastPK, cutoff, limit)
}

// SelectBatchDB is SelectBatch against an explicit connection, used by
// Phase 2's reader to scan the history database instead of online.
func (g *Gateway) SelectBatchDB(ctx context.Context, db *sql.DB, table, dateCol, pkCol string, withCursor bool, lastDate, lastPK, cutoff any, limit int) ([]types.Row, error) {
	query, args := g.builder.BuildSelectBatch(table, dateCol, pkCol, withCursor, lastDate, lastPK, cutoff, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("batch select failed: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// ProbeExisting chunks pks and asks the destination database which of them
// already exist, returning the set of primary keys (as strings) found.
func (g *Gateway) ProbeExisting(ctx context.Context, db *sql.DB, table, pkCol string, pks []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(pks))

	for _, chunk := range sqlutil.ChunkStrings(pks) {
		query, args := g.builder.BuildPKProbe(table, pkCol, chunk)

		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("existence probe failed: %w", err)
		}

		for rows.Next() {
			var pk string
			if err := rows.Scan(&pk); err != nil {
				rows.Close()
				return nil, fmt.Errorf("existence probe scan failed: %w", err)
			}
			existing[pk] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("existence probe iteration failed: %w", err)
		}
		rows.Close()
	}

	return existing, nil
}

// BulkInsertFiltered inserts every row it is given into the destination
// table; filtering out rows already present (see ProbeExisting) is the
// caller's job. It chunks the VALUES list to stay under MaxParamsPerCommand. It
// returns the number of rows actually inserted.
func (g *Gateway) BulkInsertFiltered(ctx context.Context, db *sql.DB, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	paramsPerRow := len(columns)
	rowsPerChunk := sqlutil.MaxParamsPerCommand / paramsPerRow
	if rowsPerChunk < 1 {
		rowsPerChunk = 1
	}

	var inserted int64
	for start := 0; start < len(rows); start += rowsPerChunk {
		end := start + rowsPerChunk
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		query, args := g.builder.BuildBulkInsert(table, columns, chunk)
		result, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return inserted, fmt.Errorf("bulk insert failed: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("bulk insert rows-affected failed: %w", err)
		}
		inserted += affected
	}

	return inserted, nil
}

// DeleteIn deletes rows matching pks from table on the online connection,
// chunking the IN-list to stay under MaxParamsPerCommand. It returns the
// total number of rows affected across all chunks.
func (g *Gateway) DeleteIn(ctx context.Context, table, pkCol string, pks []any) (int64, error) {
	return g.DeleteInDB(ctx, g.Online, table, pkCol, pks)
}

// DeleteInDB is DeleteIn against an explicit connection, used for Phase 2's
// target-side delete (spec.md §4.1 step "delete the batch's primary keys
// from target").
func (g *Gateway) DeleteInDB(ctx context.Context, db *sql.DB, table, pkCol string, pks []any) (int64, error) {
	var deleted int64

	for _, chunk := range sqlutil.ChunkValues(pks) {
		query, args := g.builder.BuildDeleteIn(table, pkCol, chunk)
		result, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return deleted, fmt.Errorf("chunked delete failed: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return deleted, fmt.Errorf("chunked delete rows-affected failed: %w", err)
		}
		deleted += affected
	}

	return deleted, nil
}

// CountBefore reports how many rows in table have dateCol strictly less
// than cutoff, used by the estimate/dry-run command to project a run's
// scope without moving or deleting anything. COUNT(*) is scanned as a
// generic scalar, since drivers disagree on whether it comes back as int64
// or []byte: a []byte value is parsed as decimal text, anything else is
// coerced with types.ToInt64.
func (g *Gateway) CountBefore(ctx context.Context, db *sql.DB, table, dateCol string, cutoff any) (int64, error) {
	query, args := g.builder.BuildCountBefore(table, dateCol, cutoff)

	var raw any
	if err := db.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		return 0, fmt.Errorf("count-before probe failed: %w", err)
	}
	if b, ok := raw.([]byte); ok {
		n, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("count-before probe returned non-numeric value %q: %w", b, err)
		}
		return n, nil
	}
	return types.ToInt64(raw), nil
}

// scanRows materializes a *sql.Rows result into ordered Row values,
// preserving the result set's column order.
func scanRows(rows *sql.Rows) ([]types.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get column names: %w", err)
	}

	var result []types.Row
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, types.RowFromColumns(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}
