package archiver

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dbsmedya/goarchive/internal/database"
	"github.com/dbsmedya/goarchive/internal/types"
)

// BatchCursor is the `(date, primaryKey)` cursor described in spec.md §3.
// It starts unset and advances monotonically within one phase; it is never
// persisted past the phase that owns it.
type BatchCursor struct {
	LastDate any
	LastPK   any
	set      bool
}

// Advance moves the cursor to (date, pk). Called once per batch, with that
// batch's last row's key.
func (c *BatchCursor) Advance(date, pk any) {
	c.LastDate = date
	c.LastPK = pk
	c.set = true
}

// CursorBatchReader produces a lazy sequence of row batches strictly older
// than cutoff, advancing a BatchCursor across calls (spec.md §4.2).
type CursorBatchReader struct {
	gw      *database.Gateway
	db      *sql.DB
	table   string
	dateCol string
	pkCol   string
	cutoff  any
	cursor  BatchCursor
}

// NewCursorBatchReader builds a reader for one table, scoped to one phase.
// db is whichever connection this phase reads from: the online source for
// Phase 1, the history database for Phase 2.
func NewCursorBatchReader(gw *database.Gateway, db *sql.DB, table, dateCol, pkCol string, cutoff any) *CursorBatchReader {
	return &CursorBatchReader{gw: gw, db: db, table: table, dateCol: dateCol, pkCol: pkCol, cutoff: cutoff}
}

// Next returns the next batch of at most size rows, or an empty slice when
// the phase is done (spec.md §4.2: "Emptiness is terminal for this phase").
// Each returned batch's last (date, pk) is strictly greater than the
// cursor passed to the underlying query, guaranteeing forward progress.
func (r *CursorBatchReader) Next(ctx context.Context, size int) ([]types.Row, error) {
	if size <= 0 {
		return nil, &ConfigurationError{Table: r.table, Message: fmt.Sprintf("batch size must be positive, got %d", size)}
	}

	rows, err := r.gw.SelectBatchDB(ctx, r.db, r.table, r.dateCol, r.pkCol, r.cursor.set, r.cursor.LastDate, r.cursor.LastPK, r.cutoff, size)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	last := rows[len(rows)-1]
	dateVal, ok := types.Get(last, r.dateCol)
	if !ok {
		return nil, &ConfigurationError{Table: r.table, Message: fmt.Sprintf("date column %q missing from result row", r.dateCol)}
	}
	pkVal, ok := types.Get(last, r.pkCol)
	if !ok {
		return nil, &ConfigurationError{Table: r.table, Message: fmt.Sprintf("primary key column %q missing from result row", r.pkCol)}
	}
	r.cursor.Advance(dateVal, pkVal)

	return rows, nil
}

// Cursor exposes the reader's current position, mainly for tests asserting
// monotonicity across calls.
func (r *CursorBatchReader) Cursor() BatchCursor {
	return r.cursor
}
