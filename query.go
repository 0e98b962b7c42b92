package pgfleet

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/fleetdb/pgfleet/internal/errprompt"
	"github.com/fleetdb/pgfleet/internal/timeout"
)

// Router resolves statements to a live pool and executes them. It is the only
// layer that touches connections for caller-supplied SQL; every failure is
// returned as data in the output, never as a Go error, so a single bad
// statement can never take down the service.
type Router struct {
	registry   *Registry
	timeoutMgr *timeout.Manager
	errPrompts *errprompt.Matcher
	logger     zerolog.Logger
}

// NewRouter creates a Router over registry. A zero QueryConfig uses the fixed
// 30-second statement timeout and no error prompts.
func NewRouter(registry *Registry, config QueryConfig, logger zerolog.Logger) (*Router, error) {
	defaultTimeout := time.Duration(config.DefaultTimeoutSeconds) * time.Second
	if defaultTimeout <= 0 {
		defaultTimeout = defaultStatementTimeout * time.Second
	}
	rules := make([]timeout.Rule, len(config.TimeoutRules))
	for i, r := range config.TimeoutRules {
		rules[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	tmgr, err := timeout.NewManager(defaultTimeout, rules)
	if err != nil {
		return nil, err
	}

	prompts := make([]errprompt.Rule, len(config.ErrorPrompts))
	for i, r := range config.ErrorPrompts {
		prompts[i] = errprompt.Rule{Pattern: r.Pattern, Message: r.Message}
	}
	matcher, err := errprompt.NewMatcher(prompts)
	if err != nil {
		return nil, err
	}

	return &Router{
		registry:   registry,
		timeoutMgr: tmgr,
		errPrompts: matcher,
		logger:     logger,
	}, nil
}

// Execute runs one statement against the database input.Database resolves to
// (the default when empty). Statements beginning with SELECT or WITH, after
// trimming and case-folding, are treated as reads: all rows are fetched and
// mapped into ordered field→value records. Everything else is treated as a
// write/DDL statement and returns the driver's command tag. The classification
// controls only result shaping, not transaction behavior.
func (r *Router) Execute(ctx context.Context, input ExecuteInput) *ExecuteOutput {
	startTime := time.Now()

	pool, resolved, err := r.registry.Resolve(input.Database)
	if err != nil {
		return r.failure(input.Database, err)
	}

	read := isReadStatement(input.SQL)
	stmtTimeout, timeoutRule := r.timeoutMgr.Resolve(input.SQL)
	queryCtx, cancel := context.WithTimeout(ctx, stmtTimeout)
	defer cancel()

	conn, err := pool.Acquire(queryCtx)
	if err != nil {
		return r.failure(resolved, err)
	}
	defer conn.Release()

	var output *ExecuteOutput
	if read {
		rows, err := conn.Query(queryCtx, input.SQL)
		if err != nil {
			return r.failure(resolved, err)
		}
		output, err = collectRows(rows)
		if err != nil {
			return r.failure(resolved, err)
		}
	} else {
		tag, err := conn.Exec(queryCtx, input.SQL)
		if err != nil {
			return r.failure(resolved, err)
		}
		output = &ExecuteOutput{CommandTag: tag.String()}
	}
	output.Database = resolved
	output.Read = read

	logEvent := r.logger.Info().
		Str("database", resolved).
		Str("sql", truncateForLog(input.SQL, 200)).
		Bool("read", read).
		Dur("duration", time.Since(startTime)).
		Int("row_count", output.RowCount)
	if timeoutRule != "" {
		logEvent = logEvent.Str("timeout_rule", timeoutRule)
	}
	logEvent.Msg("statement executed")

	return output
}

// isReadStatement applies the coarse read/write classification: trimmed,
// case-folded SQL beginning with SELECT or WITH is a read.
func isReadStatement(sql string) bool {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

// failure converts any error into an ExecuteOutput, appending matching error
// prompt guidance.
func (r *Router) failure(database string, err error) *ExecuteOutput {
	errMsg := err.Error()
	prompt, patterns := r.errPrompts.Evaluate(errMsg)

	logEvent := r.logger.Error().Err(err).Str("database", database)
	if len(patterns) > 0 {
		logEvent = logEvent.Strs("error_prompts", patterns)
	}
	logEvent.Msg("statement failed")

	if prompt != "" {
		errMsg = errMsg + "\n\n" + prompt
	}
	return &ExecuteOutput{Database: database, Error: errMsg}
}

// collectRows reads all rows from pgx.Rows into ordered field→value records.
func collectRows(rows pgx.Rows) (*ExecuteOutput, error) {
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	records := make([]map[string]interface{}, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			record[col] = convertValue(values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &ExecuteOutput{Columns: columns, Rows: records, RowCount: len(records)}, nil
}

// convertValue converts a pgx-returned value to a JSON-friendly Go type.
func convertValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		return convertFloat(float64(val))
	case float64:
		return convertFloat(val)
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if val.NaN {
			return "NaN"
		}
		if val.InfinityModifier == pgtype.Infinity {
			return "Infinity"
		}
		if val.InfinityModifier == pgtype.NegativeInfinity {
			return "-Infinity"
		}
		b, err := val.MarshalJSON()
		if err != nil {
			return nil
		}
		return string(b)
	case pgtype.Interval:
		if !val.Valid {
			return nil
		}
		return formatInterval(val)
	case [16]byte:
		// UUID
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case []byte:
		// bytea, xml — base64 encode
		return base64.StdEncoding.EncodeToString(val)
	case map[string]interface{}:
		record := make(map[string]interface{}, len(val))
		for k, v := range val {
			record[k] = convertValue(v)
		}
		return record
	case []interface{}:
		items := make([]interface{}, len(val))
		for i, v := range val {
			items[i] = convertValue(v)
		}
		return items
	default:
		return val
	}
}

func convertFloat(f float64) interface{} {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	return f
}

func formatInterval(val pgtype.Interval) string {
	parts := []string{}
	if val.Months != 0 {
		years := val.Months / 12
		months := val.Months % 12
		if years != 0 {
			parts = append(parts, fmt.Sprintf("%d year(s)", years))
		}
		if months != 0 {
			parts = append(parts, fmt.Sprintf("%d mon(s)", months))
		}
	}
	if val.Days != 0 {
		parts = append(parts, fmt.Sprintf("%d day(s)", val.Days))
	}
	if val.Microseconds != 0 {
		dur := time.Duration(val.Microseconds) * time.Microsecond
		parts = append(parts, dur.String())
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, " ")
}

// truncateForLog truncates a string for log output to avoid oversized log entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	return s[:truncateAt] + "...[truncated]"
}
