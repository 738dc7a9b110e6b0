// Package configure implements the interactive wizard behind `pgguardmcp configure`.
package configure

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	pgmcp "github.com/rickchristie/pgguard-mcp"
)

// Run runs the interactive configuration wizard.
// Reads existing config (if any), prompts for each field,
// writes updated config to the given path.
func Run(configPath string) error {
	return run(configPath, os.Stdin, os.Stderr)
}

func run(configPath string, input io.Reader, output io.Writer) error {
	cfg, isNew := loadExisting(configPath)
	if isNew {
		applyDefaults(cfg)
	}

	p := &prompter{
		scanner: bufio.NewScanner(input),
		output:  output,
		isNew:   isNew,
	}

	fmt.Fprintf(output, "pgguardmcp configuration wizard\n")
	fmt.Fprintf(output, "Config file: %s\n\n", configPath)

	p.section("Connection")
	cfg.Connection.Host = p.promptString("connection.host", cfg.Connection.Host)
	cfg.Connection.Port = p.promptIntRange("connection.port", cfg.Connection.Port, "must be > 0", 1, math.MaxInt)
	cfg.Connection.DBName = p.promptRequiredString("connection.dbname", cfg.Connection.DBName, "required")
	cfg.Connection.SSLMode = p.promptEnum("connection.sslmode", cfg.Connection.SSLMode, sslModes)
	cfg.Connection.CloudSQLInstance = p.promptStringWithHint("connection.cloudsql_instance", cfg.Connection.CloudSQLInstance, "project:region:instance, empty = direct TCP")
	cfg.Connection.CloudSQLPrivateIP = p.promptBool("connection.cloudsql_private_ip", cfg.Connection.CloudSQLPrivateIP)

	p.section("Server")
	cfg.Server.Port = p.promptIntRange("server.port", cfg.Server.Port, "must be > 0", 1, math.MaxInt)
	cfg.Server.HealthCheckEnabled = p.promptBool("server.health_check_enabled", cfg.Server.HealthCheckEnabled)
	cfg.Server.HealthCheckPath = p.promptStringWithHint("server.health_check_path", cfg.Server.HealthCheckPath, "e.g. /healthz, required when health_check_enabled is true")

	p.section("Logging")
	cfg.Logging.Level = p.promptEnum("logging.level", cfg.Logging.Level, logLevels)
	cfg.Logging.Format = p.promptEnum("logging.format", cfg.Logging.Format, logFormats)
	cfg.Logging.Output = p.promptStringWithHint("logging.output", cfg.Logging.Output, "stdout, stderr, or file path")

	p.section("Pool")
	cfg.Pool.MaxConns = p.promptIntRange("pool.max_conns", cfg.Pool.MaxConns, "must be > 0, also caps concurrent tool calls", 1, math.MaxInt32)
	cfg.Pool.MinConns = p.promptIntRange("pool.min_conns", cfg.Pool.MinConns, "must be >= 0", 0, math.MaxInt32)
	cfg.Pool.ConnectTimeout = p.promptDuration("pool.connect_timeout", cfg.Pool.ConnectTimeout, "Go duration: e.g. 5s, 10s")
	cfg.Pool.MaxConnLifetime = p.promptDuration("pool.max_conn_lifetime", cfg.Pool.MaxConnLifetime, "Go duration: e.g. 1h, 30m, 1h30m")
	cfg.Pool.MaxConnIdleTime = p.promptDuration("pool.max_conn_idle_time", cfg.Pool.MaxConnIdleTime, "Go duration: e.g. 30s, 5m")
	cfg.Pool.HealthCheckPeriod = p.promptDuration("pool.health_check_period", cfg.Pool.HealthCheckPeriod, "Go duration: e.g. 1m, 30s, 1m30s")

	p.section("Query")
	cfg.Query.MaxRowLimit = p.promptIntRange("query.max_row_limit", cfg.Query.MaxRowLimit, fmt.Sprintf("rows, 1 to %d", pgmcp.RowLimitCeiling), 1, pgmcp.RowLimitCeiling)
	cfg.Query.DefaultRowLimit = p.promptIntRange("query.default_row_limit", cfg.Query.DefaultRowLimit, "rows, at most max_row_limit", 1, cfg.Query.MaxRowLimit)
	cfg.Query.MaxSQLLength = p.promptIntRange("query.max_sql_length", cfg.Query.MaxSQLLength, "bytes, must be > 0", 1, math.MaxInt)
	cfg.Query.ExecuteTimeoutSeconds = p.promptIntRange("query.execute_timeout_seconds", cfg.Query.ExecuteTimeoutSeconds, timeoutHint, 0, math.MaxInt32)
	cfg.Query.IntrospectTimeoutSeconds = p.promptIntRange("query.introspect_timeout_seconds", cfg.Query.IntrospectTimeoutSeconds, timeoutHint, 0, math.MaxInt32)
	cfg.Query.DocumentTimeoutSeconds = p.promptIntRange("query.document_timeout_seconds", cfg.Query.DocumentTimeoutSeconds, timeoutHint, 0, math.MaxInt32)

	p.section("General")
	cfg.SafeMode = p.promptBool("safe_mode", cfg.SafeMode)
	cfg.Features = p.promptFeatures(cfg.Features)
	cfg.Timezone = p.promptTimezone(cfg.Timezone)

	p.section("Timeout Rules")
	cfg.Query.TimeoutRules = p.promptTimeoutRules(cfg.Query.TimeoutRules)

	p.section("Error Prompts")
	cfg.ErrorPrompts = p.promptErrorPrompts(cfg.ErrorPrompts)

	p.section("Sanitization Rules")
	cfg.Sanitization = p.promptSanitizationRules(cfg.Sanitization)

	if err := writeConfig(configPath, cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(output, "\nConfiguration saved to %s\n", configPath)
	return nil
}

const timeoutHint = "seconds, 0 = no timeout"

func loadExisting(configPath string) (*pgmcp.ServerConfig, bool) {
	cfg := &pgmcp.ServerConfig{}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, true
	}
	// Start from whatever was parseable.
	_ = json.Unmarshal(data, cfg)
	return cfg, false
}

// applyDefaults sets the values a new configuration starts from.
func applyDefaults(cfg *pgmcp.ServerConfig) {
	cfg.Connection.Host = "localhost"
	cfg.Connection.Port = 5432
	cfg.Connection.SSLMode = "prefer"
	cfg.Server.Port = 8080
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stderr"
	cfg.Pool.MaxConns = 10
	cfg.Pool.ConnectTimeout = "5s"
	cfg.Pool.MaxConnIdleTime = "30s"
	cfg.Query.DefaultRowLimit = pgmcp.DefaultRowLimit
	cfg.Query.MaxRowLimit = pgmcp.RowLimitCeiling
	cfg.Query.MaxSQLLength = pgmcp.DefaultMaxSQLLength
	cfg.SafeMode = true
}

var (
	sslModes   = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"json", "text"}
	errKinds   = []string{"", "feature_disabled", "invalid_input", "safety_denied", "data_access", "timeout"}
)

func writeConfig(configPath string, cfg *pgmcp.ServerConfig) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", configPath, err)
	}
	return nil
}

// prompter handles reading user input and displaying prompts.
type prompter struct {
	scanner *bufio.Scanner
	output  io.Writer
	isNew   bool
	done    bool // input exhausted
}

func (p *prompter) section(name string) {
	fmt.Fprintf(p.output, "\n=== %s ===\n", name)
}

func (p *prompter) readLine() string {
	if p.scanner.Scan() {
		return strings.TrimSpace(p.scanner.Text())
	}
	p.done = true
	return ""
}

func (p *prompter) valueLabel() string {
	if p.isNew {
		return "default"
	}
	return "current"
}

func (p *prompter) promptString(field string, current string) string {
	fmt.Fprintf(p.output, "%s (%s: %q): ", field, p.valueLabel(), current)
	if input := p.readLine(); input != "" {
		return input
	}
	return current
}

func (p *prompter) promptStringWithHint(field string, current string, hint string) string {
	fmt.Fprintf(p.output, "%s [%s] (%s: %q): ", field, hint, p.valueLabel(), current)
	if input := p.readLine(); input != "" {
		return input
	}
	return current
}

// promptRequiredString re-prompts until the result is non-empty.
func (p *prompter) promptRequiredString(field string, current string, hint string) string {
	for {
		v := p.promptStringWithHint(field, current, hint)
		if v != "" {
			return v
		}
		fmt.Fprintf(p.output, "  Value is required, try again.\n")
		if p.done {
			return v
		}
	}
}

// promptIntRange accepts integers in [lo, hi]. Enter keeps current only if it is in range.
func (p *prompter) promptIntRange(field string, current int, hint string, lo, hi int) int {
	for {
		fmt.Fprintf(p.output, "%s [%s] (%s: %d): ", field, hint, p.valueLabel(), current)
		input := p.readLine()
		val := current
		if input != "" {
			v, err := strconv.Atoi(input)
			if err != nil {
				fmt.Fprintf(p.output, "  Invalid integer %q, try again.\n", input)
				if p.done {
					return current
				}
				continue
			}
			val = v
		}
		if val < lo || val > hi {
			fmt.Fprintf(p.output, "  Value must be in [%d, %d], try again.\n", lo, hi)
			if p.done {
				return current
			}
			continue
		}
		return val
	}
}

func (p *prompter) promptBool(field string, current bool) bool {
	for {
		fmt.Fprintf(p.output, "%s (%s: %v): ", field, p.valueLabel(), current)
		input := p.readLine()
		if input == "" {
			return current
		}
		switch strings.ToLower(input) {
		case "true", "t", "yes", "y", "1":
			return true
		case "false", "f", "no", "n", "0":
			return false
		}
		fmt.Fprintf(p.output, "  Invalid value %q, use true/false/yes/no, try again.\n", input)
	}
}

func (p *prompter) promptDuration(field string, current string, hint string) string {
	for {
		fmt.Fprintf(p.output, "%s [%s] (%s: %q): ", field, hint, p.valueLabel(), current)
		input := p.readLine()
		if input == "" {
			return current
		}
		if _, err := time.ParseDuration(input); err != nil {
			fmt.Fprintf(p.output, "  Invalid Go duration %q, try again.\n", input)
			continue
		}
		return input
	}
}

func (p *prompter) promptTimezone(current string) string {
	for {
		fmt.Fprintf(p.output, "timezone [e.g. UTC, America/New_York, empty = server default] (%s: %q): ", p.valueLabel(), current)
		input := p.readLine()
		if input == "" {
			return current
		}
		if _, err := time.LoadLocation(input); err != nil {
			fmt.Fprintf(p.output, "  Invalid timezone %q, please enter a valid IANA timezone.\n", input)
			continue
		}
		return input
	}
}

func (p *prompter) promptEnum(field string, current string, allowed []string) string {
	for {
		fmt.Fprintf(p.output, "%s (%s: %q, options: %s): ", field, p.valueLabel(), current, strings.Join(allowed, ", "))
		input := p.readLine()
		if input == "" {
			return current
		}
		for _, v := range allowed {
			if input == v {
				return input
			}
		}
		fmt.Fprintf(p.output, "  Invalid value %q, must be one of: %s\n", input, strings.Join(allowed, ", "))
	}
}

// promptFeatures reads a comma-separated tool list. "all" clears the list, which enables every tool.
func (p *prompter) promptFeatures(current []string) []string {
	label := "all"
	if len(current) > 0 {
		label = strings.Join(current, ",")
	}
	for {
		fmt.Fprintf(p.output, "features [comma-separated, or all; options: %s] (%s: %q): ",
			strings.Join(pgmcp.AllFeatures, ", "), p.valueLabel(), label)
		input := p.readLine()
		if input == "" {
			return current
		}
		if strings.EqualFold(input, "all") {
			return nil
		}
		var features []string
		var unknown []string
		for _, f := range strings.Split(input, ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			if !pgmcp.IsKnownFeature(f) {
				unknown = append(unknown, f)
				continue
			}
			features = append(features, f)
		}
		if len(unknown) > 0 {
			fmt.Fprintf(p.output, "  Unknown feature(s) %s, try again.\n", strings.Join(unknown, ", "))
			continue
		}
		return features
	}
}

// editList runs the add/remove/continue loop shared by the array field editors.
func editList[T any](p *prompter, label string, items []T, show func(int, T) string, add func() T) []T {
	for {
		if len(items) == 0 {
			fmt.Fprintf(p.output, "  (no entries)\n")
		}
		for i, item := range items {
			fmt.Fprintf(p.output, "  [%d] %s\n", i, show(i, item))
		}
		fmt.Fprintf(p.output, "[a]dd, [r]emove, [c]ontinue? ")
		switch strings.ToLower(p.readLine()) {
		case "a":
			items = append(items, add())
		case "r":
			items = removeByIndex(p, label, items)
		case "c", "":
			return items
		default:
			fmt.Fprintf(p.output, "  Unknown choice, try again.\n")
		}
	}
}

func (p *prompter) promptTimeoutRules(current []pgmcp.TimeoutRule) []pgmcp.TimeoutRule {
	return editList(p, "timeout rule", current,
		func(_ int, r pgmcp.TimeoutRule) string {
			return fmt.Sprintf("pattern=%q timeout_seconds=%d", r.Pattern, r.TimeoutSeconds)
		},
		func() pgmcp.TimeoutRule {
			return pgmcp.TimeoutRule{
				Pattern:        p.promptNewRegexField("pattern"),
				TimeoutSeconds: p.promptNewPositiveIntField("timeout_seconds"),
			}
		})
}

func (p *prompter) promptErrorPrompts(current []pgmcp.ErrorPromptRule) []pgmcp.ErrorPromptRule {
	return editList(p, "error prompt", current,
		func(_ int, r pgmcp.ErrorPromptRule) string {
			return fmt.Sprintf("pattern=%q message=%q kind=%q", r.Pattern, r.Message, r.Kind)
		},
		func() pgmcp.ErrorPromptRule {
			return pgmcp.ErrorPromptRule{
				Pattern: p.promptNewRegexField("pattern"),
				Message: p.promptNewField("message"),
				Kind:    p.promptNewEnumField("kind", errKinds),
			}
		})
}

func (p *prompter) promptSanitizationRules(current []pgmcp.SanitizationRule) []pgmcp.SanitizationRule {
	return editList(p, "sanitization rule", current,
		func(_ int, r pgmcp.SanitizationRule) string {
			return fmt.Sprintf("pattern=%q replacement=%q column=%q description=%q", r.Pattern, r.Replacement, r.Column, r.Description)
		},
		func() pgmcp.SanitizationRule {
			return pgmcp.SanitizationRule{
				Pattern:     p.promptNewRegexField("pattern"),
				Replacement: p.promptNewField("replacement"),
				Column:      p.promptNewField("column (empty = all columns)"),
				Description: p.promptNewField("description"),
			}
		})
}

func (p *prompter) promptNewField(name string) string {
	fmt.Fprintf(p.output, "  %s: ", name)
	return p.readLine()
}

func (p *prompter) promptNewEnumField(name string, allowed []string) string {
	for {
		fmt.Fprintf(p.output, "  %s (empty or one of: %s): ", name, strings.Join(allowed[1:], ", "))
		input := p.readLine()
		for _, v := range allowed {
			if input == v {
				return input
			}
		}
		fmt.Fprintf(p.output, "  Invalid value %q, try again.\n", input)
	}
}

func (p *prompter) promptNewRegexField(name string) string {
	for {
		fmt.Fprintf(p.output, "  %s (regex): ", name)
		input := p.readLine()
		if input == "" {
			return ""
		}
		if _, err := regexp.Compile(input); err != nil {
			fmt.Fprintf(p.output, "  Invalid regex %q: %v, try again.\n", input, err)
			continue
		}
		return input
	}
}

func (p *prompter) promptNewPositiveIntField(name string) int {
	for {
		fmt.Fprintf(p.output, "  %s (must be > 0): ", name)
		input := p.readLine()
		val, err := strconv.Atoi(input)
		if err == nil && val > 0 {
			return val
		}
		fmt.Fprintf(p.output, "  Value is required and must be > 0, try again.\n")
		if p.done {
			return 0
		}
	}
}

func removeByIndex[T any](p *prompter, label string, items []T) []T {
	if len(items) == 0 {
		fmt.Fprintf(p.output, "  No %s entries to remove.\n", label)
		return items
	}
	fmt.Fprintf(p.output, "  Index to remove: ")
	idx, err := strconv.Atoi(p.readLine())
	if err != nil || idx < 0 || idx >= len(items) {
		fmt.Fprintf(p.output, "  Invalid index.\n")
		return items
	}
	return append(items[:idx], items[idx+1:]...)
}
