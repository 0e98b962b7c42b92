// Package pgfleet exposes one or more PostgreSQL databases to AI agents
// through the Model Context Protocol (MCP).
//
// Its core is a multi-database connection registry: a named collection of
// pgx connection pools that can be grown and shrunk at runtime without
// downtime, persisted across restarts, and discovered through optional
// project/tag metadata. A query router resolves each call to a live pool
// (explicit id or the floating default), executes the statement under a
// fixed timeout, and returns plain result records — execution failures come
// back as data, never as faults.
//
// # Library Usage
//
//	store := pgfleet.NewStore(".pgfleet/databases.json", logger)
//	registry := pgfleet.NewRegistry(store, logger)
//	registry.ConnectAll(ctx, store.Load())
//	defer registry.DisconnectAll()
//
//	router, err := pgfleet.NewRouter(registry, pgfleet.QueryConfig{}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Use directly
//	output := router.Execute(ctx, pgfleet.ExecuteInput{SQL: "SELECT * FROM users LIMIT 10"})
//
//	// Or register as MCP tools
//	pgfleet.RegisterMCPTools(mcpServer, registry, router, logger)
//
// # Registry semantics
//
// Databases are added only after their pool connects and answers a ping; a
// failed add leaves no trace. Removing the last remaining database is always
// rejected. The default database pointer always names a live database or is
// unset; when the default is removed it floats to the first remaining live
// id. Every successful add/remove rewrites the registry file in full — a
// failed rewrite is reported back to the caller alongside the successful
// in-memory change.
//
// For configuration reference and the pgfleet CLI, see cmd/pgfleet.
package pgfleet
