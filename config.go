package pgfleet

// DatabaseSpec is the static description of one configured database.
// Identity is ID; specs are replaced (remove then add), never mutated in place.
type DatabaseSpec struct {
	ID       string       `json:"-"`
	Host     string       `json:"host"`
	Port     int          `json:"port"`
	Database string       `json:"database"`
	User     string       `json:"user"`
	Password string       `json:"password"`
	Project  *ProjectInfo `json:"project,omitempty"`
}

// ProjectInfo groups databases under a shared project name and tag set.
// Multiple specs may carry the same project name.
type ProjectInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// HasTag reports whether tag is present in the project's tag set.
func (p *ProjectInfo) HasTag(tag string) bool {
	if p == nil {
		return false
	}
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// RegistryDocument is the durable description of the registry: the full
// spec set plus the default-database pointer. It is read in full at startup
// and rewritten in full after every successful add/remove.
type RegistryDocument struct {
	Databases       map[string]DatabaseSpec `json:"databases"`
	DefaultDatabase string                  `json:"default_database,omitempty"`

	// Order preserves the load/add order of ids so that iteration is
	// deterministic within a process run. Not serialized; rebuilt on load.
	Order []string `json:"-"`
}

// ServerConfig holds server-only settings for CLI mode.
type ServerConfig struct {
	Server  ServerSettings `json:"server"`
	Logging LoggingConfig  `json:"logging"`
	Query   QueryConfig    `json:"query"`
}

// ServerSettings holds HTTP server settings for CLI mode.
type ServerSettings struct {
	Port               int    `json:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, stderr, or file path
}

// QueryConfig holds statement execution settings for the query router and
// schema inspector. Zero values fall back to the fixed defaults below.
type QueryConfig struct {
	DefaultTimeoutSeconds int               `json:"default_timeout_seconds"`
	TimeoutRules          []TimeoutRule     `json:"timeout_rules,omitempty"`
	ErrorPrompts          []ErrorPromptRule `json:"error_prompts,omitempty"`
}

// TimeoutRule maps a SQL pattern to a specific timeout duration.
type TimeoutRule struct {
	Pattern        string `json:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ErrorPromptRule maps an error message pattern to a guidance message.
type ErrorPromptRule struct {
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

// Pool bounds and the per-statement timeout the registry runs with.
// These are deliberately not configurable.
const (
	poolMinConns            = 1
	poolMaxConns            = 10
	defaultStatementTimeout = 30 // seconds
)
