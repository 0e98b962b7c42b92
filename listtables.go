package pgfleet

import (
	"context"
	"time"
)

const listTablesSQL = `
SELECT
    table_name,
    table_type,
    CASE is_insertable_into WHEN 'YES' THEN true ELSE false END AS insertable,
    CASE is_typed WHEN 'YES' THEN true ELSE false END AS typed
FROM information_schema.tables
WHERE table_schema = $1
ORDER BY table_name;
`

// ListTables returns the tables and views of one schema (public by default)
// on the database input.Database resolves to. Failures are returned as data
// in Error, exactly as Execute does.
func (r *Router) ListTables(ctx context.Context, input ListTablesInput) *ListTablesOutput {
	startTime := time.Now()
	schema := input.Schema
	if schema == "" {
		schema = "public"
	}

	pool, resolved, err := r.registry.Resolve(input.Database)
	if err != nil {
		return &ListTablesOutput{Database: input.Database, Schema: schema, Error: r.wrapError(input.Database, err)}
	}

	stmtTimeout, _ := r.timeoutMgr.Resolve(listTablesSQL)
	queryCtx, cancel := context.WithTimeout(ctx, stmtTimeout)
	defer cancel()

	conn, err := pool.Acquire(queryCtx)
	if err != nil {
		return &ListTablesOutput{Database: resolved, Schema: schema, Error: r.wrapError(resolved, err)}
	}
	defer conn.Release()

	rows, err := conn.Query(queryCtx, listTablesSQL, schema)
	if err != nil {
		return &ListTablesOutput{Database: resolved, Schema: schema, Error: r.wrapError(resolved, err)}
	}
	defer rows.Close()

	tables := []TableEntry{}
	for rows.Next() {
		var entry TableEntry
		if err := rows.Scan(&entry.Name, &entry.Type, &entry.Insertable, &entry.Typed); err != nil {
			return &ListTablesOutput{Database: resolved, Schema: schema, Error: r.wrapError(resolved, err)}
		}
		tables = append(tables, entry)
	}
	if err := rows.Err(); err != nil {
		return &ListTablesOutput{Database: resolved, Schema: schema, Error: r.wrapError(resolved, err)}
	}

	r.logger.Info().
		Str("database", resolved).
		Str("schema", schema).
		Dur("duration", time.Since(startTime)).
		Int("table_count", len(tables)).
		Msg("list tables executed")

	return &ListTablesOutput{Database: resolved, Schema: schema, Tables: tables, Count: len(tables)}
}

// wrapError logs an inspector failure and returns the error text with any
// matching error prompt guidance appended.
func (r *Router) wrapError(database string, err error) string {
	errMsg := err.Error()
	prompt, patterns := r.errPrompts.Evaluate(errMsg)

	logEvent := r.logger.Error().Err(err).Str("database", database)
	if len(patterns) > 0 {
		logEvent = logEvent.Strs("error_prompts", patterns)
	}
	logEvent.Msg("introspection failed")

	if prompt != "" {
		errMsg = errMsg + "\n\n" + prompt
	}
	return errMsg
}
