package pgfleet

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DialFunc establishes a connection pool for a spec. The default dial builds
// a pgxpool with the registry's fixed bounds and verifies connectivity with a
// ping. Tests and callers with custom connection setup can replace it via
// WithDialFunc.
type DialFunc func(ctx context.Context, spec DatabaseSpec) (*pgxpool.Pool, error)

// Registry owns one live connection pool per configured database id and the
// floating default pointer. All exported methods are safe for concurrent use:
// mutations (ConnectAll, Add, Remove, DisconnectAll) are serialized by an
// exclusive lock, reads take a shared lock and operate on snapshots.
type Registry struct {
	mu        sync.RWMutex
	specs     map[string]DatabaseSpec // every configured spec
	pools     map[string]*pgxpool.Pool
	order     []string // id insertion order, deterministic within a run
	defaultID string

	store  *Store
	dial   DialFunc
	logger zerolog.Logger
}

// Option is a functional option for NewRegistry().
type Option func(*Registry)

// WithDialFunc replaces the pool construction function.
func WithDialFunc(dial DialFunc) Option {
	return func(r *Registry) {
		r.dial = dial
	}
}

// NewRegistry creates an empty registry persisting through store.
// Call ConnectAll to populate it from a loaded document.
func NewRegistry(store *Store, logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		specs:  make(map[string]DatabaseSpec),
		pools:  make(map[string]*pgxpool.Pool),
		store:  store,
		logger: logger,
	}
	r.dial = r.dialPool
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ConnectAll attempts to establish a pool for every spec in the document.
// A failed attempt is logged and the id is excluded from the live set; it does
// not abort startup. Afterwards the default id is resolved: the document's
// stated default if live, otherwise the first live id, otherwise unset.
func (r *Registry) ConnectAll(ctx context.Context, doc *RegistryDocument) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range doc.Order {
		spec := doc.Databases[id]
		r.specs[id] = spec
		r.order = append(r.order, id)

		pool, err := r.dial(ctx, spec)
		if err != nil {
			cerr := &ConnectError{ID: id, Err: err}
			r.logger.Error().Err(cerr).Str("database", id).Msg("failed to connect database, excluding from live set")
			continue
		}
		r.pools[id] = pool
		r.logger.Info().Str("database", id).Str("connection", maskedConnSummary(spec)).Msg("database connected")
	}

	r.defaultID = ""
	if _, live := r.pools[doc.DefaultDatabase]; live {
		r.defaultID = doc.DefaultDatabase
	} else {
		r.defaultID = r.firstLiveLocked()
	}
	r.logger.Info().
		Int("configured", len(r.specs)).
		Int("live", len(r.pools)).
		Str("default_database", r.defaultID).
		Msg("registry connected")
}

// Resolve returns the live pool for id, or for the current default when id is
// empty, along with the id it resolved to. An unknown or unavailable id yields
// an *UnknownDatabaseError listing the live ids — never a panic or a nil pool
// dispatch.
func (r *Registry) Resolve(id string) (*pgxpool.Pool, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resolved := id
	if resolved == "" {
		resolved = r.defaultID
	}
	if pool, ok := r.pools[resolved]; ok {
		return pool, resolved, nil
	}
	return nil, resolved, &UnknownDatabaseError{Requested: id, Available: r.liveIDsLocked()}
}

// AddResult reports a successful Add. SaveErr is non-nil when the in-memory
// registry changed but persisting it failed — the caller must be told the
// change may not survive a restart.
type AddResult struct {
	ID        string
	IsDefault bool
	SaveErr   error
}

// Add registers a new database and connects its pool. The spec is inserted
// only after the pool is established and verified; a connect failure leaves no
// orphan entry. The new id becomes the default when makeDefault is set or when
// no default exists yet.
func (r *Registry) Add(ctx context.Context, spec DatabaseSpec, makeDefault bool) (*AddResult, error) {
	if err := validateID(spec.ID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[spec.ID]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateID, spec.ID)
	}

	pool, err := r.dial(ctx, spec)
	if err != nil {
		return nil, &ConnectError{ID: spec.ID, Err: err}
	}

	r.specs[spec.ID] = spec
	r.pools[spec.ID] = pool
	r.order = append(r.order, spec.ID)
	if makeDefault || r.defaultID == "" {
		r.defaultID = spec.ID
	}

	saveErr := r.saveLocked()
	r.logger.Info().
		Str("database", spec.ID).
		Str("connection", maskedConnSummary(spec)).
		Bool("is_default", r.defaultID == spec.ID).
		Msg("database added")

	return &AddResult{ID: spec.ID, IsDefault: r.defaultID == spec.ID, SaveErr: saveErr}, nil
}

// RemoveResult reports a successful Remove. NewDefault is empty only when the
// registry somehow has no live databases left. SaveErr follows the same
// contract as AddResult.SaveErr.
type RemoveResult struct {
	RemovedID  string
	NewDefault string
	SaveErr    error
}

// Remove closes the pool for id and deletes its spec. Removing the last
// remaining database is rejected with ErrLastConnection; the registry is left
// unchanged. If the removed id was the default, the default is reassigned to
// the first remaining live id.
func (r *Registry) Remove(ctx context.Context, id string) (*RemoveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[id]; !exists {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if len(r.specs) == 1 {
		return nil, fmt.Errorf("%w: %q", ErrLastConnection, id)
	}

	if pool, live := r.pools[id]; live {
		pool.Close()
	}
	delete(r.pools, id)
	delete(r.specs, id)
	for i, ordered := range r.order {
		if ordered == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.defaultID == id {
		r.defaultID = r.firstLiveLocked()
	}

	saveErr := r.saveLocked()
	r.logger.Info().
		Str("database", id).
		Str("new_default", r.defaultID).
		Msg("database removed")

	return &RemoveResult{RemovedID: id, NewDefault: r.defaultID, SaveErr: saveErr}, nil
}

// DisconnectAll closes every live pool. Called once during orderly shutdown;
// calling it again is a no-op.
func (r *Registry) DisconnectAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, pool := range r.pools {
		pool.Close()
		delete(r.pools, id)
	}
	r.defaultID = ""
}

// ListIDs returns the live database ids. Callers must not depend on a
// particular order across restarts.
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.liveIDsLocked()
}

// DefaultID returns the current default database id, or "" when none is set.
func (r *Registry) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultID
}

// Ping verifies connectivity of the database id resolves to.
func (r *Registry) Ping(ctx context.Context, id string) error {
	pool, resolved, err := r.Resolve(id)
	if err != nil {
		return err
	}
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping %q failed: %w", resolved, err)
	}
	return nil
}

// DatabaseStatus is a password-free view of one configured database.
type DatabaseStatus struct {
	ID        string       `json:"id"`
	Host      string       `json:"host"`
	Port      int          `json:"port"`
	Database  string       `json:"database"`
	User      string       `json:"user"`
	Project   *ProjectInfo `json:"project,omitempty"`
	Live      bool         `json:"live"`
	IsDefault bool         `json:"is_default"`
}

// Databases returns a snapshot of every configured database with live and
// default status, in registry iteration order.
func (r *Registry) Databases() []DatabaseStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]DatabaseStatus, 0, len(r.order))
	for _, id := range r.order {
		spec := r.specs[id]
		_, live := r.pools[id]
		statuses = append(statuses, DatabaseStatus{
			ID:        id,
			Host:      spec.Host,
			Port:      spec.Port,
			Database:  spec.Database,
			User:      spec.User,
			Project:   spec.Project,
			Live:      live,
			IsDefault: id == r.defaultID,
		})
	}
	return statuses
}

// firstLiveLocked returns the first live id in insertion order, or "".
func (r *Registry) firstLiveLocked() string {
	for _, id := range r.order {
		if _, live := r.pools[id]; live {
			return id
		}
	}
	return ""
}

func (r *Registry) liveIDsLocked() []string {
	ids := make([]string, 0, len(r.pools))
	for _, id := range r.order {
		if _, live := r.pools[id]; live {
			ids = append(ids, id)
		}
	}
	return ids
}

// saveLocked persists the current spec set through the store. A nil store
// (library callers that manage persistence themselves) makes this a no-op.
func (r *Registry) saveLocked() error {
	if r.store == nil {
		return nil
	}
	doc := &RegistryDocument{
		Databases:       make(map[string]DatabaseSpec, len(r.specs)),
		DefaultDatabase: r.defaultID,
		Order:           append([]string(nil), r.order...),
	}
	for id, spec := range r.specs {
		doc.Databases[id] = spec
	}
	if err := r.store.Save(doc); err != nil {
		r.logger.Error().Err(err).Msg("failed to persist registry")
		return err
	}
	return nil
}

// dialPool is the default DialFunc: a pgxpool with the registry's fixed
// bounds, verified with a ping so a dead endpoint fails the attempt instead
// of producing a pool that never serves.
func (r *Registry) dialPool(ctx context.Context, spec DatabaseSpec) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connString(spec))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection parameters: %w", err)
	}
	poolConfig.MinConns = poolMinConns
	poolConfig.MaxConns = poolMaxConns
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}
	return pool, nil
}

// connString builds a keyword/value connection string from a spec.
func connString(spec DatabaseSpec) string {
	parts := []string{}
	if spec.Host != "" {
		parts = append(parts, fmt.Sprintf("host=%s", spec.Host))
	}
	if spec.Port > 0 {
		parts = append(parts, fmt.Sprintf("port=%d", spec.Port))
	}
	if spec.Database != "" {
		parts = append(parts, fmt.Sprintf("dbname=%s", spec.Database))
	}
	if spec.User != "" {
		parts = append(parts, fmt.Sprintf("user=%s", spec.User))
	}
	if spec.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", spec.Password))
	}
	return strings.Join(parts, " ")
}
