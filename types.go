package pgfleet

// ExecuteInput is the input for the execute_query operation. Database may be
// empty to target the current default database.
type ExecuteInput struct {
	Database string `json:"database,omitempty"`
	SQL      string `json:"sql"`
}

// ExecuteOutput is the result of one statement execution. All failures
// (resolution, execution, timeout) are placed in Error — callers only ever
// check Error, never a Go error. Read statements populate Columns, Rows, and
// RowCount; write/DDL statements populate CommandTag.
type ExecuteOutput struct {
	Database   string                   `json:"database"`
	Read       bool                     `json:"read"`
	Columns    []string                 `json:"columns,omitempty"`
	Rows       []map[string]interface{} `json:"rows,omitempty"`
	RowCount   int                      `json:"row_count"`
	CommandTag string                   `json:"command_tag,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

// ListTablesInput is the input for the list_tables operation.
type ListTablesInput struct {
	Database string `json:"database,omitempty"`
	Schema   string `json:"schema,omitempty"`
}

// TableEntry represents a single table or view in the ListTables output.
type TableEntry struct {
	Name       string `json:"name"`
	Type       string `json:"type"` // BASE TABLE, VIEW, FOREIGN, LOCAL TEMPORARY
	Insertable bool   `json:"insertable"`
	Typed      bool   `json:"typed"`
}

// ListTablesOutput is the output of the list_tables operation.
type ListTablesOutput struct {
	Database string       `json:"database"`
	Schema   string       `json:"schema"`
	Tables   []TableEntry `json:"tables"`
	Count    int          `json:"count"`
	Error    string       `json:"error,omitempty"`
}

// DescribeTableInput is the input for the describe_table operation.
type DescribeTableInput struct {
	Database string `json:"database,omitempty"`
	Table    string `json:"table"`
	Schema   string `json:"schema,omitempty"`
}

// ColumnInfo describes a single column. MaxLength, Precision, and Scale are
// nil when the catalog reports no value for the column's type.
type ColumnInfo struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Nullable  bool   `json:"nullable"`
	Default   string `json:"default,omitempty"`
	MaxLength *int   `json:"max_length,omitempty"`
	Precision *int   `json:"precision,omitempty"`
	Scale     *int   `json:"scale,omitempty"`
}

// ConstraintInfo describes a single constraint/column pairing.
type ConstraintInfo struct {
	Name   string `json:"name"`
	Type   string `json:"type"` // PRIMARY KEY, FOREIGN KEY, UNIQUE, CHECK
	Column string `json:"column"`
}

// DescribeTableOutput is the output of the describe_table operation.
type DescribeTableOutput struct {
	Database    string           `json:"database"`
	Schema      string           `json:"schema"`
	Table       string           `json:"table"`
	Columns     []ColumnInfo     `json:"columns"`
	Constraints []ConstraintInfo `json:"constraints"`
	Error       string           `json:"error,omitempty"`
}
