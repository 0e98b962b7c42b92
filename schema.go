package pgfleet

import (
	"context"
	"fmt"
	"strings"
)

const schemaOverviewSQL = `
SELECT
    t.table_name,
    t.table_type,
    c.column_name,
    c.data_type,
    c.is_nullable,
    c.column_default
FROM information_schema.tables t
LEFT JOIN information_schema.columns c
    ON t.table_name = c.table_name
    AND t.table_schema = c.table_schema
WHERE t.table_schema = 'public'
ORDER BY t.table_name, c.ordinal_position;
`

// SchemaOverview renders a markdown overview of every public table on the
// database id resolves to. It backs the schema://tables resource.
func (r *Router) SchemaOverview(ctx context.Context, database string) (string, error) {
	pool, resolved, err := r.registry.Resolve(database)
	if err != nil {
		return "", err
	}

	stmtTimeout, _ := r.timeoutMgr.Resolve(schemaOverviewSQL)
	queryCtx, cancel := context.WithTimeout(ctx, stmtTimeout)
	defer cancel()

	conn, err := pool.Acquire(queryCtx)
	if err != nil {
		return "", fmt.Errorf("schema overview for %q: %w", resolved, err)
	}
	defer conn.Release()

	rows, err := conn.Query(queryCtx, schemaOverviewSQL)
	if err != nil {
		return "", fmt.Errorf("schema overview for %q: %w", resolved, err)
	}
	defer rows.Close()

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Database Schema Overview (%s)\n\n", resolved)
	currentTable := ""
	for rows.Next() {
		var tableName, tableType string
		var columnName, dataType, isNullable, columnDefault *string
		if err := rows.Scan(&tableName, &tableType, &columnName, &dataType, &isNullable, &columnDefault); err != nil {
			return "", fmt.Errorf("schema overview for %q: %w", resolved, err)
		}
		if tableName != currentTable {
			currentTable = tableName
			fmt.Fprintf(&sb, "## Table: %s\n", currentTable)
			fmt.Fprintf(&sb, "Type: %s\n\n", tableType)
			sb.WriteString("| Column | Type | Nullable | Default |\n")
			sb.WriteString("|--------|------|----------|----------|\n")
		}
		if columnName != nil {
			nullable := "No"
			if isNullable != nil && *isNullable == "YES" {
				nullable = "Yes"
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n", *columnName, orNone(dataType), nullable, orNone(columnDefault))
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("schema overview for %q: %w", resolved, err)
	}

	return sb.String(), nil
}

// TableSchema renders a markdown description of one public table on the
// database id resolves to. It backs the schema://table/{table} resource.
func (r *Router) TableSchema(ctx context.Context, database, table string) (string, error) {
	out := r.DescribeTable(ctx, DescribeTableInput{Database: database, Table: table})
	if out.Error != "" {
		return "", fmt.Errorf("table schema for %q: %s", table, out.Error)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Table: %s (%s)\n\n", table, out.Database)
	sb.WriteString("## Columns\n\n")
	sb.WriteString("| Column | Type | Nullable | Default | Max Length | Precision | Scale |\n")
	sb.WriteString("|--------|------|----------|---------|------------|-----------|-------|\n")
	for _, col := range out.Columns {
		nullable := "No"
		if col.Nullable {
			nullable = "Yes"
		}
		def := col.Default
		if def == "" {
			def = "None"
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s | %s |\n",
			col.Name, col.Type, nullable, def, orNA(col.MaxLength), orNA(col.Precision), orNA(col.Scale))
	}

	if len(out.Constraints) > 0 {
		sb.WriteString("\n## Constraints\n\n")
		sb.WriteString("| Constraint | Type | Column |\n")
		sb.WriteString("|------------|------|--------|\n")
		for _, con := range out.Constraints {
			fmt.Fprintf(&sb, "| %s | %s | %s |\n", con.Name, con.Type, con.Column)
		}
	}

	return sb.String(), nil
}

// SQLQueryHelperPrompt is the text of the sql_query_helper prompt.
func SQLQueryHelperPrompt(table, operation string) string {
	if operation == "" {
		operation = "SELECT"
	}
	return fmt.Sprintf(`Help me write a %[1]s query for the '%[2]s' table.

Please consider:
1. The table structure and column types
2. Appropriate WHERE clauses for filtering
3. Proper JOIN syntax if multiple tables are involved
4. Best practices for %[1]s operations

Table: %[2]s
Operation: %[1]s

What would you like to accomplish with this query?
`, operation, table)
}

func orNone(s *string) string {
	if s == nil || *s == "" {
		return "None"
	}
	return *s
}

func orNA(n *int) string {
	if n == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d", *n)
}
