package pgfleet

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// RegisterMCPTools registers the registry, router, and inspector operations
// as MCP tools, plus the schema:// resources and the sql_query_helper prompt.
func RegisterMCPTools(mcpServer *server.MCPServer, registry *Registry, router *Router, logger zerolog.Logger) {
	// execute_query tool
	executeTool := mcp.NewTool("execute_query",
		mcp.WithDescription("Execute a SQL statement against a registered PostgreSQL database. Returns results as JSON."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("The SQL statement to execute"),
		),
		mcp.WithString("database",
			mcp.Description("Database id to run against (defaults to the default database)"),
		),
	)

	mcpServer.AddTool(executeTool, loggedToolHandler(logger, "execute_query", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("sql")
		if err != nil {
			return mcp.NewToolResultError("sql parameter is required"), nil
		}
		output := router.Execute(ctx, ExecuteInput{
			Database: req.GetString("database", ""),
			SQL:      sql,
		})
		if output.Error != "" {
			return mcp.NewToolResultError(output.Error), nil
		}
		return jsonToolResult(output)
	}))

	// list_tables tool
	listTablesTool := mcp.NewTool("list_tables",
		mcp.WithDescription("List all tables in a schema of a registered database."),
		mcp.WithString("database",
			mcp.Description("Database id (defaults to the default database)"),
		),
		mcp.WithString("schema",
			mcp.Description("Schema name (defaults to 'public')"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(listTablesTool, loggedToolHandler(logger, "list_tables", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output := router.ListTables(ctx, ListTablesInput{
			Database: req.GetString("database", ""),
			Schema:   req.GetString("schema", ""),
		})
		if output.Error != "" {
			return mcp.NewToolResultError(output.Error), nil
		}
		return jsonToolResult(output)
	}))

	// describe_table tool
	describeTableTool := mcp.NewTool("describe_table",
		mcp.WithDescription("Describe a table's columns, types, and constraints."),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("The table name to describe"),
		),
		mcp.WithString("database",
			mcp.Description("Database id (defaults to the default database)"),
		),
		mcp.WithString("schema",
			mcp.Description("Schema name (defaults to 'public')"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(describeTableTool, loggedToolHandler(logger, "describe_table", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return mcp.NewToolResultError("table parameter is required"), nil
		}
		output := router.DescribeTable(ctx, DescribeTableInput{
			Database: req.GetString("database", ""),
			Table:    table,
			Schema:   req.GetString("schema", ""),
		})
		if output.Error != "" {
			return mcp.NewToolResultError(output.Error), nil
		}
		return jsonToolResult(output)
	}))

	// list_databases tool
	listDatabasesTool := mcp.NewTool("list_databases",
		mcp.WithDescription("List all registered databases with their live and default status."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(listDatabasesTool, loggedToolHandler(logger, "list_databases", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonToolResult(map[string]interface{}{
			"databases":        registry.Databases(),
			"default_database": registry.DefaultID(),
		})
	}))

	// add_database tool
	addDatabaseTool := mcp.NewTool("add_database",
		mcp.WithDescription("Register a new database connection at runtime. The connection is verified before the database is added."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Unique id for the database (letters, digits, underscores, hyphens)"),
		),
		mcp.WithString("host", mcp.Required(), mcp.Description("Database host")),
		mcp.WithNumber("port", mcp.Description("Database port (defaults to 5432)")),
		mcp.WithString("database", mcp.Required(), mcp.Description("Database name")),
		mcp.WithString("user", mcp.Required(), mcp.Description("Database user")),
		mcp.WithString("password", mcp.Description("Database password")),
		mcp.WithString("project", mcp.Description("Optional project name for grouping")),
		mcp.WithString("project_description", mcp.Description("Optional project description")),
		mcp.WithString("tags", mcp.Description("Optional comma-separated project tags")),
		mcp.WithBoolean("make_default", mcp.Description("Make this database the default")),
	)

	mcpServer.AddTool(addDatabaseTool, loggedToolHandler(logger, "add_database", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id parameter is required"), nil
		}
		spec := DatabaseSpec{
			ID:       id,
			Host:     req.GetString("host", ""),
			Port:     req.GetInt("port", 5432),
			Database: req.GetString("database", ""),
			User:     req.GetString("user", ""),
			Password: req.GetString("password", ""),
		}
		if project := req.GetString("project", ""); project != "" {
			spec.Project = &ProjectInfo{
				Name:        project,
				Description: req.GetString("project_description", ""),
				Tags:        splitTags(req.GetString("tags", "")),
			}
		}

		result, err := registry.Add(ctx, spec, req.GetBool("make_default", false))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonToolResult(mutationResult{
			Database:  result.ID,
			IsDefault: result.IsDefault,
			SaveError: saveErrorText(result.SaveErr),
		})
	}))

	// remove_database tool
	removeDatabaseTool := mcp.NewTool("remove_database",
		mcp.WithDescription("Remove a registered database and close its connection pool. The last remaining database cannot be removed."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Id of the database to remove"),
		),
	)

	mcpServer.AddTool(removeDatabaseTool, loggedToolHandler(logger, "remove_database", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id parameter is required"), nil
		}
		result, err := registry.Remove(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonToolResult(mutationResult{
			Database:   result.RemovedID,
			NewDefault: result.NewDefault,
			SaveError:  saveErrorText(result.SaveErr),
		})
	}))

	// find_databases tool
	findDatabasesTool := mcp.NewTool("find_databases",
		mcp.WithDescription("Find registered databases by project name or tag. Filters are OR'd; with no filters, every database matches."),
		mcp.WithString("project", mcp.Description("Project name to match")),
		mcp.WithString("tag", mcp.Description("Project tag to match")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(findDatabasesTool, loggedToolHandler(logger, "find_databases", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		matches := registry.FindDatabases(req.GetString("project", ""), req.GetString("tag", ""))
		return jsonToolResult(map[string]interface{}{
			"databases": matches,
			"count":     len(matches),
		})
	}))

	registerResources(mcpServer, router)
	registerPrompts(mcpServer)
}

// registerResources registers the markdown schema overview resources.
func registerResources(mcpServer *server.MCPServer, router *Router) {
	overview := mcp.NewResource("schema://tables",
		"Database Schema Overview",
		mcp.WithResourceDescription("Markdown overview of all public tables on the default database"),
		mcp.WithMIMEType("text/markdown"),
	)
	mcpServer.AddResource(overview, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		text, err := router.SchemaOverview(ctx, "")
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "text/markdown", Text: text},
		}, nil
	})

	tableSchema := mcp.NewResourceTemplate("schema://table/{table}",
		"Table Schema",
		mcp.WithTemplateDescription("Markdown description of one public table on the default database"),
		mcp.WithTemplateMIMEType("text/markdown"),
	)
	mcpServer.AddResourceTemplate(tableSchema, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		table := strings.TrimPrefix(req.Params.URI, "schema://table/")
		if table == "" || table == req.Params.URI {
			return nil, errors.New("resource URI must name a table: schema://table/{table}")
		}
		text, err := router.TableSchema(ctx, "", table)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "text/markdown", Text: text},
		}, nil
	})
}

// registerPrompts registers the sql_query_helper prompt.
func registerPrompts(mcpServer *server.MCPServer) {
	prompt := mcp.NewPrompt("sql_query_helper",
		mcp.WithPromptDescription("Generate a helpful prompt for writing SQL queries against a specific table"),
		mcp.WithArgument("table_name",
			mcp.RequiredArgument(),
			mcp.ArgumentDescription("The table to query"),
		),
		mcp.WithArgument("operation",
			mcp.ArgumentDescription("Type of SQL operation (SELECT, INSERT, UPDATE, DELETE)"),
		),
	)
	mcpServer.AddPrompt(prompt, func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		table := req.Params.Arguments["table_name"]
		if table == "" {
			return nil, errors.New("table_name argument is required")
		}
		text := SQLQueryHelperPrompt(table, req.Params.Arguments["operation"])
		return mcp.NewGetPromptResult("SQL query helper", []mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
		}), nil
	})
}

// mutationResult is the tool-facing shape of Add/Remove results. SaveError is
// set when the registry changed in memory but persisting it failed.
type mutationResult struct {
	Database   string `json:"database"`
	IsDefault  bool   `json:"is_default,omitempty"`
	NewDefault string `json:"new_default,omitempty"`
	SaveError  string `json:"save_error,omitempty"`
}

func saveErrorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}

func jsonToolResult(v interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError("failed to marshal result"), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// loggedToolHandler wraps a tool handler to log request and response lengths.
func loggedToolHandler(logger zerolog.Logger, tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)
		logger.Info().
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", respLen).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
