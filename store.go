package pgfleet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rs/zerolog"
)

// Default environment fallback values, used only when no registry file exists.
const (
	envHost     = "POSTGRES_HOST"
	envPort     = "POSTGRES_PORT"
	envDatabase = "POSTGRES_DATABASE"
	envUser     = "POSTGRES_USER"
	envPassword = "POSTGRES_PASSWORD"
)

// Store loads and saves the registry's durable description.
//
// Load never fails: on a missing, unreadable, or unparseable file it falls
// back to a single-entry document named "default" built from POSTGRES_*
// environment variables. Save rewrites the full document and propagates any
// write failure — silent loss of an add/remove must not appear successful.
type Store struct {
	path   string
	logger zerolog.Logger
}

// NewStore creates a Store persisting to path.
func NewStore(path string, logger zerolog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the file path the store reads and writes.
func (s *Store) Path() string { return s.path }

// Load reads the registry document from the configured path, falling back to
// the environment-derived single-entry document when the file is absent or
// invalid. Ids are ordered lexicographically so iteration is deterministic
// within a process run.
func (s *Store) Load() *RegistryDocument {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("failed to read registry file, falling back to environment")
		}
		return s.fromEnvironment()
	}

	var doc RegistryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("failed to parse registry file, falling back to environment")
		return s.fromEnvironment()
	}
	if len(doc.Databases) == 0 {
		s.logger.Warn().Str("path", s.path).Msg("registry file has no databases, falling back to environment")
		return s.fromEnvironment()
	}

	for id := range doc.Databases {
		spec := doc.Databases[id]
		spec.ID = id
		doc.Databases[id] = spec
		doc.Order = append(doc.Order, id)
	}
	sort.Strings(doc.Order)
	return &doc
}

// Save rewrites the full registry document, creating the parent directory if
// needed. Credentials are written in clear form to the file; the log line
// emitted here masks them.
func (s *Store) Save(doc *RegistryDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry document: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create registry directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write registry file %s: %w", s.path, err)
	}

	summaries := make([]string, 0, len(doc.Databases))
	for _, id := range sortedIDs(doc.Databases) {
		summaries = append(summaries, id+"="+maskedConnSummary(doc.Databases[id]))
	}
	s.logger.Info().
		Str("path", s.path).
		Int("databases", len(doc.Databases)).
		Str("default_database", doc.DefaultDatabase).
		Strs("connections", summaries).
		Msg("registry saved")
	return nil
}

// fromEnvironment builds the single-entry fallback document. Defaults target
// a local server: localhost:5432/postgres as postgres.
func (s *Store) fromEnvironment() *RegistryDocument {
	port := 5432
	if v := os.Getenv(envPort); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}
	spec := DatabaseSpec{
		ID:       "default",
		Host:     envOr(envHost, "localhost"),
		Port:     port,
		Database: envOr(envDatabase, "postgres"),
		User:     envOr(envUser, "postgres"),
		Password: os.Getenv(envPassword),
	}
	s.logger.Info().
		Str("connection", maskedConnSummary(spec)).
		Msg("no registry file, using single database from environment")
	return &RegistryDocument{
		Databases:       map[string]DatabaseSpec{"default": spec},
		DefaultDatabase: "default",
		Order:           []string{"default"},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// maskedConnSummary renders a spec for log output with the password masked.
func maskedConnSummary(spec DatabaseSpec) string {
	password := ""
	if spec.Password != "" {
		password = "*****"
	}
	return fmt.Sprintf("%s@%s:%d/%s password=%s", spec.User, spec.Host, spec.Port, spec.Database, password)
}

func sortedIDs(specs map[string]DatabaseSpec) []string {
	ids := make([]string, 0, len(specs))
	for id := range specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
