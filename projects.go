package pgfleet

import "fmt"

// Project Index: a derived, read-only view over the registry's metadata.
// It holds no state of its own — every call reads a fresh snapshot.

// FindDatabases returns the databases matching any of the given filters.
// Filters are OR'd: a database matches when projectName equals its project
// name, or when tag is present in its tag set. With no filters every database
// matches, including those without project info. Results are in registry
// iteration order, which is stable only within a single process run.
func (r *Registry) FindDatabases(projectName, tag string) []DatabaseStatus {
	all := r.Databases()
	if projectName == "" && tag == "" {
		return all
	}

	matches := make([]DatabaseStatus, 0, len(all))
	for _, db := range all {
		if projectName != "" && db.Project != nil && db.Project.Name == projectName {
			matches = append(matches, db)
			continue
		}
		if tag != "" && db.Project.HasTag(tag) {
			matches = append(matches, db)
		}
	}
	return matches
}

// PrimaryForProject returns the first database carrying the given project
// name, in registry iteration order. Which database is "first" is not defined
// across restarts; callers with more than one database per project must not
// assume a specific one is primary.
func (r *Registry) PrimaryForProject(name string) (DatabaseStatus, error) {
	for _, db := range r.Databases() {
		if db.Project != nil && db.Project.Name == name {
			return db, nil
		}
	}
	return DatabaseStatus{}, fmt.Errorf("%w: no database carries project %q", ErrNotFound, name)
}
