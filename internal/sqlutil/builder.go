package sqlutil

import (
	"fmt"
	"strings"
)

// MaxParamsPerCommand is the hard ceiling on parameters in a single SQL
// command (an IN-list or a multi-row INSERT's value list), kept safely
// under MySQL's own limit.
const MaxParamsPerCommand = 1000

// ChunkStrings splits ids into slices of at most MaxParamsPerCommand
// elements, preserving order.
func ChunkStrings(ids []string) [][]string {
	if len(ids) == 0 {
		return nil
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += MaxParamsPerCommand {
		end := start + MaxParamsPerCommand
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// ChunkValues splits vals into slices of at most MaxParamsPerCommand
// elements, preserving order. Used for interface{} primary-key values.
func ChunkValues(vals []any) [][]any {
	if len(vals) == 0 {
		return nil
	}
	var chunks [][]any
	for start := 0; start < len(vals); start += MaxParamsPerCommand {
		end := start + MaxParamsPerCommand
		if end > len(vals) {
			end = len(vals)
		}
		chunks = append(chunks, vals[start:end])
	}
	return chunks
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// SqlBuilder emits dialect-neutral statements for the cursor reader, the
// filter+bulk-load idempotent upsert, and chunked deletes. All identifiers
// are quoted through QuoteIdentifier; callers never interpolate values into
// the returned SQL text.
type SqlBuilder struct{}

// NewSqlBuilder constructs a SqlBuilder.
func NewSqlBuilder() *SqlBuilder {
	return &SqlBuilder{}
}

// BuildSelectBatch builds the cursor-driven batch SELECT described in
// spec.md §4.2. withCursor indicates whether lastDate/lastPK arguments
// should be appended (false on a phase's first call). The returned SQL
// carries positional placeholders; args holds the matching values in
// order: cutoff, [lastDate, lastDate, lastPK if withCursor], limit.
func (b *SqlBuilder) BuildSelectBatch(table, dateCol, pkCol string, withCursor bool, lastDate, lastPK any, cutoff any, limit int) (string, []any) {
	qTable := QuoteIdentifier(table)
	qDate := QuoteIdentifier(dateCol)
	qPK := QuoteIdentifier(pkCol)

	where := fmt.Sprintf("%s < ?", qDate)
	args := []any{cutoff}

	if withCursor {
		where += fmt.Sprintf(" AND (%s > ? OR (%s = ? AND %s > ?))", qDate, qDate, qPK)
		args = append(args, lastDate, lastDate, lastPK)
	}

	query := fmt.Sprintf(
		"SELECT * FROM %s WHERE %s ORDER BY %s ASC, %s ASC LIMIT ? FOR SHARE SKIP LOCKED",
		qTable, where, qDate, qPK,
	)
	args = append(args, limit)

	return query, args
}

// BuildPKProbe builds the chunked existence probe against the target table
// used by the idempotent upsert (spec.md §4.3 step 2). pks must already be
// chunked to at most MaxParamsPerCommand entries by the caller.
func (b *SqlBuilder) BuildPKProbe(table, pkCol string, pks []string) (string, []any) {
	qTable := QuoteIdentifier(table)
	qPK := QuoteIdentifier(pkCol)

	query := fmt.Sprintf("SELECT CAST(%s AS CHAR) FROM %s WHERE %s IN (%s)",
		qPK, qTable, qPK, placeholders(len(pks)))

	args := make([]any, len(pks))
	for i, pk := range pks {
		args[i] = pk
	}
	return query, args
}

// BuildBulkInsert builds a single multi-row INSERT for the rows not already
// present in the target, per the column order given. rows must already be
// chunked so that len(rows)*len(columns) stays at or under
// MaxParamsPerCommand.
func (b *SqlBuilder) BuildBulkInsert(table string, columns []string, rows [][]any) (string, []any) {
	qTable := QuoteIdentifier(table)
	qCols := make([]string, len(columns))
	for i, c := range columns {
		qCols[i] = QuoteIdentifier(c)
	}

	rowPlaceholder := "(" + placeholders(len(columns)) + ")"
	valueGroups := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		valueGroups[i] = rowPlaceholder
		args = append(args, row...)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		qTable, strings.Join(qCols, ", "), strings.Join(valueGroups, ", "))
	return query, args
}

// BuildDeleteIn builds a chunked DELETE ... WHERE pk IN (...) statement.
// pks must already be chunked to at most MaxParamsPerCommand entries.
func (b *SqlBuilder) BuildDeleteIn(table, pkCol string, pks []any) (string, []any) {
	qTable := QuoteIdentifier(table)
	qPK := QuoteIdentifier(pkCol)

	query := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", qTable, qPK, placeholders(len(pks)))
	return query, pks
}

// BuildCountBefore builds a scalar COUNT(*) probe for rows strictly older
// than cutoff, used by the estimate/dry-run command to
// project how many rows a run would move or export without touching data.
func (b *SqlBuilder) BuildCountBefore(table, dateCol string, cutoff any) (string, []any) {
	qTable := QuoteIdentifier(table)
	qDate := QuoteIdentifier(dateCol)

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s < ?", qTable, qDate)
	return query, []any{cutoff}
}

// BuildColumnExistenceProbe builds a query that reports which of the given
// column names actually exist on table. Nothing in the repository calls it;
// the preflight checker runs its own information_schema query.
func (b *SqlBuilder) BuildColumnExistenceProbe(schema, table string, columns []string) (string, []any) {
	query := `SELECT COLUMN_NAME FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND COLUMN_NAME IN (` + placeholders(len(columns)) + `)`
	args := make([]any, 0, len(columns)+2)
	args = append(args, schema, table)
	for _, c := range columns {
		args = append(args, c)
	}
	return query, args
}
