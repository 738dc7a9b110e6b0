package pgmcp

// Tool and feature names.
const (
	FeatureIntrospectSchema = "introspect-schema"
	FeatureExecuteSQL       = "execute-sql"
	FeatureTableDocument    = "table-document"
)

// AllFeatures lists every tool the engine can expose.
var AllFeatures = []string{FeatureIntrospectSchema, FeatureExecuteSQL, FeatureTableDocument}

const (
	DefaultRowLimit     = 100
	RowLimitCeiling     = 1000
	DefaultMaxSQLLength = 100000
)

// Config is the base configuration used by library mode via New().
// It is read once; changing it after New has no effect.
type Config struct {
	Pool         PoolConfig         `json:"pool"`
	SafeMode     bool               `json:"safe_mode"`
	Features     []string           `json:"features"` // empty enables all
	Query        QueryConfig        `json:"query"`
	ErrorPrompts []ErrorPromptRule  `json:"error_prompts"`
	Sanitization []SanitizationRule `json:"sanitization"`
	Timezone     string             `json:"timezone"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config
	Connection ConnectionConfig `json:"connection"`
	Server     ServerSettings   `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
}

// ConnectionConfig holds database connection parameters used by CLI mode.
type ConnectionConfig struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	DBName  string `json:"dbname"`
	SSLMode string `json:"sslmode"`

	// Cloud SQL instance connection name (project:region:instance). When set
	// the pool dials through the Cloud SQL connector instead of Host/Port.
	CloudSQLInstance  string `json:"cloudsql_instance"`
	CloudSQLPrivateIP bool   `json:"cloudsql_private_ip"`
}

// PoolConfig holds connection pool settings. Durations use time.ParseDuration syntax.
type PoolConfig struct {
	MaxConns          int    `json:"max_conns"`
	MinConns          int    `json:"min_conns"`
	ConnectTimeout    string `json:"connect_timeout"`
	MaxConnLifetime   string `json:"max_conn_lifetime"`
	MaxConnIdleTime   string `json:"max_conn_idle_time"`
	HealthCheckPeriod string `json:"health_check_period"`
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
	Output string `json:"output"` // stdout, or file path
}

// QueryConfig holds query execution settings. Timeouts of 0 mean none.
type QueryConfig struct {
	DefaultRowLimit          int           `json:"default_row_limit"`
	MaxRowLimit              int           `json:"max_row_limit"`
	MaxSQLLength             int           `json:"max_sql_length"`
	ExecuteTimeoutSeconds    int           `json:"execute_timeout_seconds"`
	IntrospectTimeoutSeconds int           `json:"introspect_timeout_seconds"`
	DocumentTimeoutSeconds   int           `json:"document_timeout_seconds"`
	TimeoutRules             []TimeoutRule `json:"timeout_rules"`
}

// TimeoutRule maps a SQL pattern to a specific execute-sql timeout.
type TimeoutRule struct {
	Pattern        string `json:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ErrorPromptRule maps an error message pattern to a guidance message.
// Kind, when set, restricts the rule to one error kind (e.g. "safety_denied").
type ErrorPromptRule struct {
	Pattern string `json:"pattern"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// SanitizationRule defines a regex-based value sanitization rule.
type SanitizationRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Column      string `json:"column"`
	Description string `json:"description"`
}

// IsKnownFeature reports whether name is one of AllFeatures.
func IsKnownFeature(name string) bool {
	for _, f := range AllFeatures {
		if f == name {
			return true
		}
	}
	return false
}

// IsKnownErrKind reports whether name is a valid ErrorPromptRule.Kind.
func IsKnownErrKind(name string) bool {
	for k := ErrKindFeatureDisabled; k <= ErrKindTimeout; k++ {
		if k.String() == name {
			return true
		}
	}
	return false
}
