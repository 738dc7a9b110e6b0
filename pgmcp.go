package pgmcp

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/rickchristie/pgguard-mcp/internal/errprompt"
	"github.com/rickchristie/pgguard-mcp/internal/sanitize"
	"github.com/rickchristie/pgguard-mcp/internal/sqlguard"
	"github.com/rickchristie/pgguard-mcp/internal/timeout"
)

const (
	defaultMaxConns        = 10
	defaultConnectTimeout  = 5 * time.Second
	defaultMaxConnIdleTime = 30 * time.Second
)

// PostgresMcp is the engine behind the introspect-schema, execute-sql and
// table-document tools. All exported methods are safe for concurrent use.
type PostgresMcp struct {
	config     Config
	pool       *pgxpool.Pool
	dialer     *cloudsqlconn.Dialer
	semaphore  chan struct{}
	features   map[string]bool
	guard      sqlguard.Guard
	sanitizer  *sanitize.Sanitizer
	errPrompts *errprompt.Matcher
	timeoutMgr *timeout.Manager
	logger     zerolog.Logger
}

// Option is a functional option for New().
type Option func(*options)

type options struct {
	cloudSQLInstance  string
	cloudSQLPrivateIP bool
}

// WithCloudSQL dials every pool connection through the Cloud SQL connector
// for the given instance connection name (project:region:instance).
func WithCloudSQL(instance string, privateIP bool) Option {
	return func(o *options) {
		o.cloudSQLInstance = instance
		o.cloudSQLPrivateIP = privateIP
	}
}

// New creates a new PostgresMcp instance.
// connString is the PostgreSQL connection string (must include credentials).
// Panics on invalid config. Returns error only for runtime failures (e.g., pool creation).
func New(ctx context.Context, connString string, config Config, logger zerolog.Logger, opts ...Option) (*PostgresMcp, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if connString == "" {
		panic("pgmcp: connString must be non-empty")
	}
	config = applyDefaults(config)
	validateConfig(config)
	p := newEngine(config, logger)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	applyPoolConfig(poolConfig, config)

	var dialer *cloudsqlconn.Dialer
	if o.cloudSQLInstance != "" {
		var dopts []cloudsqlconn.Option
		if o.cloudSQLPrivateIP {
			dopts = append(dopts, cloudsqlconn.WithDefaultDialOptions(cloudsqlconn.WithPrivateIP()))
		}
		dialer, err = cloudsqlconn.NewDialer(ctx, dopts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create cloud sql dialer: %w", err)
		}
		instance := o.cloudSQLInstance
		poolConfig.ConnConfig.DialFunc = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.Dial(ctx, instance)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		if dialer != nil {
			dialer.Close()
		}
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	p.pool = pool
	p.dialer = dialer
	return p, nil
}

// newEngine builds everything except the pool. config must already be
// defaulted and validated.
func newEngine(config Config, logger zerolog.Logger) *PostgresMcp {
	san, err := sanitize.NewSanitizer(mapSanitizationRules(config.Sanitization))
	if err != nil {
		panic("pgmcp: " + err.Error())
	}
	matcher, err := errprompt.NewMatcher(mapErrorPromptRules(config.ErrorPrompts))
	if err != nil {
		panic("pgmcp: " + err.Error())
	}
	timeoutRules := make([]timeout.Rule, len(config.Query.TimeoutRules))
	for i, r := range config.Query.TimeoutRules {
		timeoutRules[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	tmgr, err := timeout.NewManager(timeout.Config{
		Default: time.Duration(config.Query.ExecuteTimeoutSeconds) * time.Second,
		Rules:   timeoutRules,
	})
	if err != nil {
		panic("pgmcp: " + err.Error())
	}

	features := make(map[string]bool, len(AllFeatures))
	enabled := config.Features
	if len(enabled) == 0 {
		enabled = AllFeatures
	}
	for _, f := range enabled {
		features[f] = true
	}

	return &PostgresMcp{
		config:     config,
		semaphore:  make(chan struct{}, config.Pool.MaxConns),
		features:   features,
		guard:      sqlguard.Guard{SafeMode: config.SafeMode},
		sanitizer:  san,
		errPrompts: matcher,
		timeoutMgr: tmgr,
		logger:     logger,
	}
}

// applyDefaults fills zero values. A configured max row limit above the
// ceiling is clamped.
func applyDefaults(config Config) Config {
	if config.Pool.MaxConns == 0 {
		config.Pool.MaxConns = defaultMaxConns
	}
	if config.Query.DefaultRowLimit == 0 {
		config.Query.DefaultRowLimit = DefaultRowLimit
	}
	if config.Query.MaxRowLimit == 0 || config.Query.MaxRowLimit > RowLimitCeiling {
		config.Query.MaxRowLimit = RowLimitCeiling
	}
	if config.Query.DefaultRowLimit > config.Query.MaxRowLimit {
		config.Query.DefaultRowLimit = config.Query.MaxRowLimit
	}
	if config.Query.MaxSQLLength == 0 {
		config.Query.MaxSQLLength = DefaultMaxSQLLength
	}
	return config
}

func validateConfig(config Config) {
	if config.Pool.MaxConns < 0 {
		panic("pgmcp: pool.max_conns must be > 0")
	}
	if config.Pool.MinConns < 0 || config.Pool.MinConns > config.Pool.MaxConns {
		panic("pgmcp: pool.min_conns must be between 0 and pool.max_conns")
	}
	if config.Query.DefaultRowLimit < 0 {
		panic("pgmcp: query.default_row_limit must be > 0")
	}
	if config.Query.MaxRowLimit < 0 {
		panic("pgmcp: query.max_row_limit must be > 0")
	}
	if config.Query.MaxSQLLength < 0 {
		panic("pgmcp: query.max_sql_length must be > 0")
	}
	if config.Query.ExecuteTimeoutSeconds < 0 {
		panic("pgmcp: query.execute_timeout_seconds must be >= 0")
	}
	if config.Query.IntrospectTimeoutSeconds < 0 {
		panic("pgmcp: query.introspect_timeout_seconds must be >= 0")
	}
	if config.Query.DocumentTimeoutSeconds < 0 {
		panic("pgmcp: query.document_timeout_seconds must be >= 0")
	}
	for _, f := range config.Features {
		if !IsKnownFeature(f) {
			panic(fmt.Sprintf("pgmcp: unknown feature %q (known: %s)", f, strings.Join(AllFeatures, ", ")))
		}
	}
	for _, r := range config.ErrorPrompts {
		if r.Kind != "" && !IsKnownErrKind(r.Kind) {
			panic(fmt.Sprintf("pgmcp: error_prompt with pattern %q has unknown kind %q", r.Pattern, r.Kind))
		}
	}
	for _, rule := range config.Query.TimeoutRules {
		if rule.TimeoutSeconds <= 0 {
			panic(fmt.Sprintf("pgmcp: timeout_rule with pattern %q has timeout_seconds <= 0", rule.Pattern))
		}
	}
	for _, d := range []struct{ name, value string }{
		{"pool.connect_timeout", config.Pool.ConnectTimeout},
		{"pool.max_conn_lifetime", config.Pool.MaxConnLifetime},
		{"pool.max_conn_idle_time", config.Pool.MaxConnIdleTime},
		{"pool.health_check_period", config.Pool.HealthCheckPeriod},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			panic(fmt.Sprintf("pgmcp: invalid %s %q: %v", d.name, d.value, err))
		}
	}
}

// applyPoolConfig copies pool settings and the session timezone onto a parsed pgxpool config.
func applyPoolConfig(poolConfig *pgxpool.Config, config Config) {
	poolConfig.MaxConns = int32(config.Pool.MaxConns)
	poolConfig.MinConns = int32(config.Pool.MinConns)
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	poolConfig.ConnConfig.ConnectTimeout = durationOr(config.Pool.ConnectTimeout, defaultConnectTimeout)
	poolConfig.MaxConnIdleTime = durationOr(config.Pool.MaxConnIdleTime, defaultMaxConnIdleTime)
	if config.Pool.MaxConnLifetime != "" {
		poolConfig.MaxConnLifetime = durationOr(config.Pool.MaxConnLifetime, poolConfig.MaxConnLifetime)
	}
	if config.Pool.HealthCheckPeriod != "" {
		poolConfig.HealthCheckPeriod = durationOr(config.Pool.HealthCheckPeriod, poolConfig.HealthCheckPeriod)
	}

	if config.Timezone != "" {
		tz := config.Timezone
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			escaped := strings.ReplaceAll(tz, "'", "''")
			if _, err := conn.Exec(ctx, fmt.Sprintf("SET timezone = '%s'", escaped)); err != nil {
				return fmt.Errorf("failed to SET timezone: %w", err)
			}
			return nil
		}
	}
}

// durationOr parses s; validateConfig has already rejected bad values.
func durationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Close closes the connection pool and the Cloud SQL dialer, if any.
func (p *PostgresMcp) Close(ctx context.Context) {
	p.pool.Close()
	if p.dialer != nil {
		if err := p.dialer.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("failed to close cloud sql dialer")
		}
	}
}

// Ping checks that a pooled connection can reach the database.
func (p *PostgresMcp) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// SafeMode reports whether execute-sql is restricted to read-only statements.
func (p *PostgresMcp) SafeMode() bool {
	return p.guard.SafeMode
}

// FeatureEnabled reports whether the named tool is enabled.
func (p *PostgresMcp) FeatureEnabled(name string) bool {
	return p.features[name]
}

// acquireSlot blocks until a call slot is free or ctx is done. The returned
// func releases the slot.
func (p *PostgresMcp) acquireSlot(ctx context.Context) (func(), error) {
	select {
	case p.semaphore <- struct{}{}:
		return func() { <-p.semaphore }, nil
	case <-ctx.Done():
		return nil, &Error{
			Kind:    ErrKindTimeout,
			Message: fmt.Sprintf("failed to acquire call slot: all %d slots are in use, context cancelled while waiting", cap(p.semaphore)),
			Cause:   ctx.Err(),
		}
	}
}

// handleError maps err to an *Error, logs it and appends any matching
// error prompts to the message.
func (p *PostgresMcp) handleError(tool string, err error) *Error {
	e := mapError(err)
	kind := e.Kind.String()
	msg := e.Error()
	patterns := p.errPrompts.MatchedPatterns(kind, msg)

	logEvent := p.logger.Error().
		Str("tool", tool).
		Str("kind", kind).
		Err(err)
	if e.Code != "" {
		logEvent = logEvent.Str("sqlstate", e.Code)
	}
	if len(patterns) > 0 {
		logEvent = logEvent.Strs("error_prompts", patterns)
	}
	logEvent.Msg("tool error")

	if prompt := p.errPrompts.Match(kind, msg); prompt != "" {
		return &Error{
			Kind:    e.Kind,
			Message: msg + "\n\n" + prompt,
			Code:    e.Code,
		}
	}
	return e
}

func mapSanitizationRules(rules []SanitizationRule) []sanitize.Rule {
	result := make([]sanitize.Rule, len(rules))
	for i, r := range rules {
		result[i] = sanitize.Rule{
			Pattern:     r.Pattern,
			Replacement: r.Replacement,
			Column:      r.Column,
		}
	}
	return result
}

func mapErrorPromptRules(rules []ErrorPromptRule) []errprompt.Rule {
	result := make([]errprompt.Rule, len(rules))
	for i, r := range rules {
		result[i] = errprompt.Rule{
			Pattern: r.Pattern,
			Message: r.Message,
			Kind:    r.Kind,
		}
	}
	return result
}
