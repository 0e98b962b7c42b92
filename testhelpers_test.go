package pgfleet_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rickchristie/govner/pgflock/client"

	pgfleet "github.com/fleetdb/pgfleet"
)

const (
	pgflockLockerPort = 9776
	pgflockPassword   = "pgflock"
)

func acquireTestDB(t *testing.T) string {
	t.Helper()
	connStr, err := client.Lock(pgflockLockerPort, t.Name(), pgflockPassword)
	if err != nil {
		t.Fatalf("Failed to acquire test database: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Unlock(pgflockLockerPort, pgflockPassword, connStr)
	})
	return connStr
}

// specFromConnString converts a leased connection string into a DatabaseSpec
// registered under id.
func specFromConnString(t *testing.T, connStr, id string) pgfleet.DatabaseSpec {
	t.Helper()
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("Failed to parse test connection string: %v", err)
	}
	return pgfleet.DatabaseSpec{
		ID:       id,
		Host:     cfg.ConnConfig.Host,
		Port:     int(cfg.ConnConfig.Port),
		Database: cfg.ConnConfig.Database,
		User:     cfg.ConnConfig.User,
		Password: cfg.ConnConfig.Password,
	}
}

// newLiveRegistry connects a registry with one leased database per id, the
// first id being the default. Uses the real dialer.
func newLiveRegistry(t *testing.T, ids ...string) (*pgfleet.Registry, *pgfleet.Router) {
	t.Helper()
	doc := &pgfleet.RegistryDocument{
		Databases: map[string]pgfleet.DatabaseSpec{},
	}
	for i, id := range ids {
		doc.Databases[id] = specFromConnString(t, acquireTestDB(t), id)
		doc.Order = append(doc.Order, id)
		if i == 0 {
			doc.DefaultDatabase = id
		}
	}

	store := pgfleet.NewStore(filepath.Join(t.TempDir(), "databases.json"), testLogger())
	registry := pgfleet.NewRegistry(store, testLogger())
	registry.ConnectAll(context.Background(), doc)
	t.Cleanup(registry.DisconnectAll)

	router, err := pgfleet.NewRouter(registry, pgfleet.QueryConfig{}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create router: %v", err)
	}
	return registry, router
}

func mustExecute(t *testing.T, router *pgfleet.Router, database, sql string) *pgfleet.ExecuteOutput {
	t.Helper()
	output := router.Execute(context.Background(), pgfleet.ExecuteInput{Database: database, SQL: sql})
	if output.Error != "" {
		t.Fatalf("statement failed: %s", output.Error)
	}
	return output
}
