package pgfleet

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Registry operation errors. Callers distinguish them with errors.Is/errors.As.
var (
	// ErrInvalidID is returned when a database id contains characters
	// outside [A-Za-z0-9_-] or is empty.
	ErrInvalidID = errors.New("invalid database id")

	// ErrDuplicateID is returned by Add when the id is already registered.
	ErrDuplicateID = errors.New("database id already registered")

	// ErrNotFound is returned when an explicit id names no registered database.
	ErrNotFound = errors.New("database not found")

	// ErrLastConnection is returned by Remove when the id is the only
	// remaining database. The registry never shrinks to zero via Remove.
	ErrLastConnection = errors.New("cannot remove the last database connection")
)

// ConnectError reports that a pool could not be established for a spec.
// During bulk startup it is logged and the id is excluded from the live set;
// during Add it aborts the add.
type ConnectError struct {
	ID  string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect database %q: %v", e.ID, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// UnknownDatabaseError reports a lookup that resolved to no live pool.
// Available lists the ids that are live so callers can report them.
type UnknownDatabaseError struct {
	Requested string
	Available []string
}

func (e *UnknownDatabaseError) Error() string {
	if e.Requested == "" {
		return fmt.Sprintf("no default database is available; available databases: [%s]", strings.Join(e.Available, ", "))
	}
	return fmt.Sprintf("database %q is not available; available databases: [%s]", e.Requested, strings.Join(e.Available, ", "))
}

func (e *UnknownDatabaseError) Is(target error) bool { return target == ErrNotFound }

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// validateID checks an id against the allowed character set before any
// connection attempt is made.
func validateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q must be non-empty and contain only letters, digits, underscores, and hyphens", ErrInvalidID, id)
	}
	return nil
}
