package pgfleet

import (
	"context"
	"time"
)

const columnsSQL = `
SELECT
    column_name,
    data_type,
    CASE is_nullable WHEN 'YES' THEN true ELSE false END AS nullable,
    COALESCE(column_default, '') AS default_val,
    character_maximum_length,
    numeric_precision,
    numeric_scale
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position;
`

const constraintsSQL = `
SELECT
    tc.constraint_name,
    tc.constraint_type,
    kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
    ON tc.constraint_name = kcu.constraint_name
    AND tc.table_schema = kcu.table_schema
    AND tc.table_name = kcu.table_name
WHERE tc.table_schema = $1 AND tc.table_name = $2;
`

// DescribeTable returns the columns and constraints of one table on the
// database input.Database resolves to. Failures are returned as data in
// Error, exactly as Execute does.
func (r *Router) DescribeTable(ctx context.Context, input DescribeTableInput) *DescribeTableOutput {
	startTime := time.Now()
	schema := input.Schema
	if schema == "" {
		schema = "public"
	}
	out := &DescribeTableOutput{Database: input.Database, Schema: schema, Table: input.Table}

	pool, resolved, err := r.registry.Resolve(input.Database)
	if err != nil {
		out.Error = r.wrapError(input.Database, err)
		return out
	}
	out.Database = resolved

	stmtTimeout, _ := r.timeoutMgr.Resolve(columnsSQL)
	queryCtx, cancel := context.WithTimeout(ctx, stmtTimeout)
	defer cancel()

	conn, err := pool.Acquire(queryCtx)
	if err != nil {
		out.Error = r.wrapError(resolved, err)
		return out
	}
	defer conn.Release()

	rows, err := conn.Query(queryCtx, columnsSQL, schema, input.Table)
	if err != nil {
		out.Error = r.wrapError(resolved, err)
		return out
	}
	columns := []ColumnInfo{}
	for rows.Next() {
		var col ColumnInfo
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &col.Default, &col.MaxLength, &col.Precision, &col.Scale); err != nil {
			rows.Close()
			out.Error = r.wrapError(resolved, err)
			return out
		}
		columns = append(columns, col)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		out.Error = r.wrapError(resolved, err)
		return out
	}

	rows, err = conn.Query(queryCtx, constraintsSQL, schema, input.Table)
	if err != nil {
		out.Error = r.wrapError(resolved, err)
		return out
	}
	constraints := []ConstraintInfo{}
	for rows.Next() {
		var con ConstraintInfo
		if err := rows.Scan(&con.Name, &con.Type, &con.Column); err != nil {
			rows.Close()
			out.Error = r.wrapError(resolved, err)
			return out
		}
		constraints = append(constraints, con)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		out.Error = r.wrapError(resolved, err)
		return out
	}

	out.Columns = columns
	out.Constraints = constraints

	r.logger.Info().
		Str("database", resolved).
		Str("schema", schema).
		Str("table", input.Table).
		Dur("duration", time.Since(startTime)).
		Int("column_count", len(columns)).
		Int("constraint_count", len(constraints)).
		Msg("describe table executed")

	return out
}
