package pgfleet_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	pgfleet "github.com/fleetdb/pgfleet"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

// stubPool returns a real pgxpool.Pool that has never connected: pool
// construction is lazy, so no server is needed until a connection is acquired.
func stubPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	cfg, err := pgxpool.ParseConfig("host=127.0.0.1 port=1 dbname=stub user=stub")
	if err != nil {
		t.Fatalf("failed to parse stub config: %v", err)
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to create stub pool: %v", err)
	}
	return pool
}

// stubDialer counts dial attempts and fails ids present in refuse.
type stubDialer struct {
	t      *testing.T
	calls  atomic.Int64
	refuse map[string]bool
}

func (d *stubDialer) dial(ctx context.Context, spec pgfleet.DatabaseSpec) (*pgxpool.Pool, error) {
	d.calls.Add(1)
	if d.refuse[spec.ID] {
		return nil, errors.New("connection refused")
	}
	return stubPool(d.t), nil
}

func spec(id string) pgfleet.DatabaseSpec {
	return pgfleet.DatabaseSpec{ID: id, Host: "localhost", Port: 5432, Database: id, User: "u", Password: "p"}
}

func docOf(defaultID string, ids ...string) *pgfleet.RegistryDocument {
	doc := &pgfleet.RegistryDocument{
		Databases:       map[string]pgfleet.DatabaseSpec{},
		DefaultDatabase: defaultID,
	}
	for _, id := range ids {
		doc.Databases[id] = spec(id)
		doc.Order = append(doc.Order, id)
	}
	return doc
}

func newTestRegistry(t *testing.T, d *stubDialer, doc *pgfleet.RegistryDocument) *pgfleet.Registry {
	t.Helper()
	store := pgfleet.NewStore(filepath.Join(t.TempDir(), "databases.json"), testLogger())
	r := pgfleet.NewRegistry(store, testLogger(), pgfleet.WithDialFunc(d.dial))
	if doc != nil {
		r.ConnectAll(context.Background(), doc)
	}
	t.Cleanup(r.DisconnectAll)
	return r
}

func TestConnectAllExcludesFailedDatabases(t *testing.T) {
	d := &stubDialer{t: t, refuse: map[string]bool{"broken": true}}
	r := newTestRegistry(t, d, docOf("main", "main", "broken", "analytics"))

	ids := r.ListIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 live ids, got %v", ids)
	}
	for _, id := range ids {
		if id == "broken" {
			t.Error("failed database must be excluded from the live set")
		}
	}
	if r.DefaultID() != "main" {
		t.Errorf("expected default \"main\", got %q", r.DefaultID())
	}

	if _, _, err := r.Resolve("broken"); err == nil {
		t.Error("expected resolve of excluded id to fail")
	}
}

func TestConnectAllReassignsDeadDefault(t *testing.T) {
	d := &stubDialer{t: t, refuse: map[string]bool{"main": true}}
	r := newTestRegistry(t, d, docOf("main", "main", "analytics"))

	if r.DefaultID() != "analytics" {
		t.Errorf("default must move to a live id, got %q", r.DefaultID())
	}
}

func TestConnectAllAllDeadLeavesNoDefault(t *testing.T) {
	d := &stubDialer{t: t, refuse: map[string]bool{"a": true, "b": true}}
	r := newTestRegistry(t, d, docOf("a", "a", "b"))

	if r.DefaultID() != "" {
		t.Errorf("expected no default, got %q", r.DefaultID())
	}
	if len(r.ListIDs()) != 0 {
		t.Errorf("expected no live ids, got %v", r.ListIDs())
	}
	if _, _, err := r.Resolve(""); err == nil {
		t.Error("resolving the default with an empty registry must fail")
	}
}

func TestResolveDefaultAndExplicit(t *testing.T) {
	d := &stubDialer{t: t}
	r := newTestRegistry(t, d, docOf("main", "main", "analytics"))

	_, resolved, err := r.Resolve("")
	if err != nil {
		t.Fatalf("resolve default failed: %v", err)
	}
	if resolved != "main" {
		t.Errorf("expected default resolution to \"main\", got %q", resolved)
	}

	pool, resolved, err := r.Resolve("analytics")
	if err != nil {
		t.Fatalf("resolve explicit failed: %v", err)
	}
	if pool == nil || resolved != "analytics" {
		t.Errorf("unexpected resolution: pool=%v id=%q", pool, resolved)
	}
}

func TestResolveUnknownListsLiveIDs(t *testing.T) {
	d := &stubDialer{t: t}
	r := newTestRegistry(t, d, docOf("main", "main"))

	_, _, err := r.Resolve("ghost")
	if err == nil {
		t.Fatal("expected error for unknown id")
	}
	var unknown *pgfleet.UnknownDatabaseError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownDatabaseError, got %T", err)
	}
	if unknown.Requested != "ghost" {
		t.Errorf("error must name the requested id, got %q", unknown.Requested)
	}
	if len(unknown.Available) != 1 || unknown.Available[0] != "main" {
		t.Errorf("error must list live ids, got %v", unknown.Available)
	}
	if !errors.Is(err, pgfleet.ErrNotFound) {
		t.Error("UnknownDatabaseError must match ErrNotFound")
	}
}

func TestAddThenResolve(t *testing.T) {
	d := &stubDialer{t: t}
	r := newTestRegistry(t, d, docOf("main", "main"))

	result, err := r.Add(context.Background(), spec("staging"), false)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if result.IsDefault {
		t.Error("new database must not become default when one exists and make_default is false")
	}
	if result.SaveErr != nil {
		t.Errorf("unexpected save error: %v", result.SaveErr)
	}

	pool, resolved, err := r.Resolve("staging")
	if err != nil || pool == nil || resolved != "staging" {
		t.Errorf("added database must be resolvable: pool=%v id=%q err=%v", pool, resolved, err)
	}
}

func TestAddFirstDatabaseBecomesDefault(t *testing.T) {
	d := &stubDialer{t: t, refuse: map[string]bool{"dead": true}}
	r := newTestRegistry(t, d, docOf("dead", "dead"))

	result, err := r.Add(context.Background(), spec("first"), false)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if !result.IsDefault {
		t.Error("first live database must become default")
	}
	if r.DefaultID() != "first" {
		t.Errorf("expected default \"first\", got %q", r.DefaultID())
	}
}

func TestAddMakeDefault(t *testing.T) {
	d := &stubDialer{t: t}
	r := newTestRegistry(t, d, docOf("main", "main"))

	result, err := r.Add(context.Background(), spec("staging"), true)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if !result.IsDefault || r.DefaultID() != "staging" {
		t.Errorf("make_default must move the default, got %q", r.DefaultID())
	}
}

func TestAddDuplicateID(t *testing.T) {
	d := &stubDialer{t: t}
	r := newTestRegistry(t, d, docOf("main", "main"))
	before := d.calls.Load()

	_, err := r.Add(context.Background(), spec("main"), false)
	if !errors.Is(err, pgfleet.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if d.calls.Load() != before {
		t.Error("duplicate add must not attempt a connection")
	}
}

func TestAddInvalidID(t *testing.T) {
	d := &stubDialer{t: t}
	r := newTestRegistry(t, d, docOf("main", "main"))
	before := d.calls.Load()

	for _, id := range []string{"", "bad id", "semi;colon", "dot.dot", "sneaky/slash"} {
		_, err := r.Add(context.Background(), spec(id), false)
		if !errors.Is(err, pgfleet.ErrInvalidID) {
			t.Errorf("id %q: expected ErrInvalidID, got %v", id, err)
		}
	}
	if d.calls.Load() != before {
		t.Error("invalid ids must be rejected before any connection attempt")
	}
}

func TestAddConnectFailureLeavesNoOrphan(t *testing.T) {
	d := &stubDialer{t: t, refuse: map[string]bool{"flaky": true}}
	r := newTestRegistry(t, d, docOf("main", "main"))

	_, err := r.Add(context.Background(), spec("flaky"), false)
	var cerr *pgfleet.ConnectError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConnectError, got %v", err)
	}
	if cerr.ID != "flaky" {
		t.Errorf("ConnectError must carry the id, got %q", cerr.ID)
	}

	if _, _, err := r.Resolve("flaky"); err == nil {
		t.Error("failed add must leave no entry behind")
	}
	// The id is free to be used again.
	d.refuse = nil
	if _, err := r.Add(context.Background(), spec("flaky"), false); err != nil {
		t.Errorf("re-add after failure must succeed, got %v", err)
	}
}

func TestRemoveThenResolve(t *testing.T) {
	d := &stubDialer{t: t}
	r := newTestRegistry(t, d, docOf("main", "main", "staging"))

	result, err := r.Remove(context.Background(), "staging")
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if result.NewDefault != "main" {
		t.Errorf("expected default to stay \"main\", got %q", result.NewDefault)
	}
	if _, _, err := r.Resolve("staging"); err == nil {
		t.Error("removed database must be unavailable")
	}
}

func TestRemoveUnknownID(t *testing.T) {
	d := &stubDialer{t: t}
	r := newTestRegistry(t, d, docOf("main", "main", "staging"))

	_, err := r.Remove(context.Background(), "ghost")
	if !errors.Is(err, pgfleet.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveLastDatabaseProtected(t *testing.T) {
	d := &stubDialer{t: t}
	r := newTestRegistry(t, d, docOf("main", "main"))

	_, err := r.Remove(context.Background(), "main")
	if !errors.Is(err, pgfleet.ErrLastConnection) {
		t.Fatalf("expected ErrLastConnection, got %v", err)
	}
	// Registry unchanged.
	if _, _, err := r.Resolve("main"); err != nil {
		t.Errorf("rejected remove must leave the registry unchanged: %v", err)
	}
	if r.DefaultID() != "main" {
		t.Errorf("default must be unchanged, got %q", r.DefaultID())
	}
}

func TestRemoveDefaultReassigns(t *testing.T) {
	d := &stubDialer{t: t}
	r := newTestRegistry(t, d, docOf("a", "a", "b", "c"))

	result, err := r.Remove(context.Background(), "a")
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if result.NewDefault == "" || result.NewDefault == "a" {
		t.Errorf("default must be reassigned to a remaining live id, got %q", result.NewDefault)
	}
	if r.DefaultID() != result.NewDefault {
		t.Errorf("DefaultID %q disagrees with result %q", r.DefaultID(), result.NewDefault)
	}

	// Down to exactly one: it must be the default.
	if _, err := r.Remove(context.Background(), result.NewDefault); err != nil {
		t.Fatalf("second remove failed: %v", err)
	}
	remaining := r.ListIDs()
	if len(remaining) != 1 {
		t.Fatalf("expected one remaining id, got %v", remaining)
	}
	if r.DefaultID() != remaining[0] {
		t.Errorf("sole remaining id %q must be the default, got %q", remaining[0], r.DefaultID())
	}
}

func TestSaveFailureReportedButMutationStands(t *testing.T) {
	// Point the store inside a regular file so every save fails.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	store := pgfleet.NewStore(filepath.Join(blocker, "databases.json"), testLogger())
	d := &stubDialer{t: t}
	r := pgfleet.NewRegistry(store, testLogger(), pgfleet.WithDialFunc(d.dial))
	r.ConnectAll(context.Background(), docOf("main", "main"))
	t.Cleanup(r.DisconnectAll)

	result, err := r.Add(context.Background(), spec("staging"), false)
	if err != nil {
		t.Fatalf("add must succeed in memory: %v", err)
	}
	if result.SaveErr == nil {
		t.Fatal("save failure must be reported to the caller")
	}
	if _, _, err := r.Resolve("staging"); err != nil {
		t.Errorf("in-memory mutation must stand despite save failure: %v", err)
	}
}

func TestDisconnectAllIdempotent(t *testing.T) {
	d := &stubDialer{t: t}
	r := newTestRegistry(t, d, docOf("main", "main", "staging"))

	r.DisconnectAll()
	r.DisconnectAll()

	if len(r.ListIDs()) != 0 {
		t.Errorf("expected no live ids after shutdown, got %v", r.ListIDs())
	}
	if r.DefaultID() != "" {
		t.Errorf("expected no default after shutdown, got %q", r.DefaultID())
	}
}

func TestConcurrentMutationsAndReads(t *testing.T) {
	d := &stubDialer{t: t}
	r := newTestRegistry(t, d, docOf("base", "base"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("db-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Add(context.Background(), spec(id), false); err != nil {
				t.Errorf("add %s: %v", id, err)
				return
			}
			r.ListIDs()
			r.Resolve(id)
			r.Databases()
			if _, err := r.Remove(context.Background(), id); err != nil {
				t.Errorf("remove %s: %v", id, err)
			}
		}()
	}
	wg.Wait()

	ids := r.ListIDs()
	if len(ids) != 1 || ids[0] != "base" {
		t.Errorf("expected only \"base\" to remain, got %v", ids)
	}
	if r.DefaultID() != "base" {
		t.Errorf("default must still be \"base\", got %q", r.DefaultID())
	}
}
