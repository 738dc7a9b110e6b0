package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	pgmcp "github.com/rickchristie/pgguard-mcp"
)

func newDoctorCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate the configuration file and print agent connection snippets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doctor(os.Stderr, isTTY(os.Stderr.Fd()), resolveConfigPath(*configPath))
		},
	}
}

func doctor(w io.Writer, useColor bool, configPath string) error {
	printBanner(w, useColor)

	config, ok := doctorValidateConfig(w, useColor, configPath)
	if !ok {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'pgguardmcp doctor' again.")
		return nil
	}

	fmt.Fprintln(w)
	printAgentSnippets(w, useColor, config)
	return nil
}

// checker prints check lines and remembers whether any failed.
type checker struct {
	w        io.Writer
	useColor bool
	failed   bool
}

func (c *checker) check(pass bool, msg string) {
	printCheck(c.w, c.useColor, pass, msg)
	if !pass {
		c.failed = true
	}
}

// doctorValidateConfig loads and validates the config file, printing check results.
// Returns the parsed config and true if all checks passed.
func doctorValidateConfig(w io.Writer, useColor bool, configPath string) (*pgmcp.ServerConfig, bool) {
	c := &checker{w: w, useColor: useColor}

	data, err := os.ReadFile(configPath)
	c.check(err == nil, fmt.Sprintf("Config file readable (%s)", configPath))
	if err != nil {
		return nil, false
	}

	var config pgmcp.ServerConfig
	if err := json.Unmarshal(data, &config); err != nil {
		c.check(false, fmt.Sprintf("Config file is valid JSON: %v", err))
		return nil, false
	}
	c.check(true, "Config file is valid JSON")

	if config.Connection.DBName == "" {
		c.check(false, "connection.dbname is set")
	} else {
		c.check(true, fmt.Sprintf("connection.dbname is set (%s)", config.Connection.DBName))
	}

	if inst := config.Connection.CloudSQLInstance; inst != "" {
		c.check(strings.Count(inst, ":") == 2, fmt.Sprintf("connection.cloudsql_instance is project:region:instance (%s)", inst))
	}

	if config.Server.Port <= 0 {
		c.check(false, "server.port is > 0")
	} else {
		c.check(true, fmt.Sprintf("server.port is > 0 (%d)", config.Server.Port))
	}

	if config.Server.HealthCheckEnabled {
		if config.Server.HealthCheckPath == "" {
			c.check(false, "health_check_path is set (required when health_check_enabled)")
		} else {
			c.check(true, fmt.Sprintf("health_check_path is set (%s)", config.Server.HealthCheckPath))
		}
	}

	doctorCheckFeatures(c, config.Config)
	doctorCheckLimits(c, config.Config)
	doctorCheckRegexes(c, config.Config)

	return &config, !c.failed
}

func doctorCheckFeatures(c *checker, config pgmcp.Config) {
	if len(config.Features) == 0 {
		c.check(true, "features: all tools enabled")
	} else {
		known := true
		for _, f := range config.Features {
			if !pgmcp.IsKnownFeature(f) {
				c.check(false, fmt.Sprintf("features: %q is a known tool (%s)", f, strings.Join(pgmcp.AllFeatures, ", ")))
				known = false
			}
		}
		if known {
			c.check(true, fmt.Sprintf("features: %s", strings.Join(config.Features, ", ")))
		}
	}

	for i, rule := range config.ErrorPrompts {
		if rule.Kind != "" && !pgmcp.IsKnownErrKind(rule.Kind) {
			c.check(false, fmt.Sprintf("error_prompts[%d].kind %q is a known error kind", i, rule.Kind))
		}
	}

	if config.SafeMode {
		c.check(true, "safe_mode is on (execute-sql is read-only)")
	} else {
		// Not a failure: writes are a legitimate choice.
		fmt.Fprintln(c.w, "  ! safe_mode is off: execute-sql can modify data")
	}
}

func doctorCheckLimits(c *checker, config pgmcp.Config) {
	q := config.Query
	if q.MaxRowLimit < 0 || q.MaxRowLimit > pgmcp.RowLimitCeiling {
		c.check(false, fmt.Sprintf("query.max_row_limit is between 1 and %d (%d)", pgmcp.RowLimitCeiling, q.MaxRowLimit))
	}
	if q.DefaultRowLimit < 0 {
		c.check(false, fmt.Sprintf("query.default_row_limit is >= 0 (%d)", q.DefaultRowLimit))
	}
	if config.Pool.MaxConns < 0 {
		c.check(false, fmt.Sprintf("pool.max_conns is >= 0 (%d)", config.Pool.MaxConns))
	}
	for name, value := range map[string]string{
		"pool.connect_timeout":     config.Pool.ConnectTimeout,
		"pool.max_conn_idle_time":  config.Pool.MaxConnIdleTime,
		"pool.max_conn_lifetime":   config.Pool.MaxConnLifetime,
		"pool.health_check_period": config.Pool.HealthCheckPeriod,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			c.check(false, fmt.Sprintf("%s is a valid duration: %v", name, err))
		}
	}
	for i, rule := range q.TimeoutRules {
		if rule.TimeoutSeconds <= 0 {
			c.check(false, fmt.Sprintf("timeout_rules[%d].timeout_seconds is > 0", i))
		}
	}
}

func doctorCheckRegexes(c *checker, config pgmcp.Config) {
	regexOK := true
	compile := func(field string, i int, pattern string) {
		if _, err := regexp.Compile(pattern); err != nil {
			c.check(false, fmt.Sprintf("%s[%d] regex compiles: %v", field, i, err))
			regexOK = false
		}
	}
	for i, rule := range config.ErrorPrompts {
		compile("error_prompts", i, rule.Pattern)
	}
	for i, rule := range config.Sanitization {
		compile("sanitization", i, rule.Pattern)
	}
	for i, rule := range config.Query.TimeoutRules {
		compile("timeout_rules", i, rule.Pattern)
	}
	if regexOK {
		c.check(true, "All regex patterns compile")
	}
}

// printCheck prints a colored ✓ or ✗ check line.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	mark, color := "✓", "\033[32m"
	if !pass {
		mark, color = "✗", "\033[31m"
	}
	if useColor {
		fmt.Fprintf(w, "  %s%s\033[0m %s\n", color, mark, msg)
	} else {
		fmt.Fprintf(w, "  %s %s\n", mark, msg)
	}
}

// agentSnippets are MCP client config files. %s is the server URL.
var agentSnippets = []struct {
	title    string
	template string
}{
	{"Claude Code (.mcp.json)", `{
  "mcpServers": {
    "pgguard": {
      "type": "http",
      "url": "%s"
    }
  }
}`},
	{"Gemini CLI (~/.gemini/settings.json)", `{
  "mcpServers": {
    "pgguard": {
      "httpUrl": "%s"
    }
  }
}`},
	{"Cursor (.cursor/mcp.json)", `{
  "mcpServers": {
    "pgguard": {
      "url": "%s"
    }
  }
}`},
	{"OpenCode (opencode.json)", `{
  "mcp": {
    "pgguard": {
      "type": "remote",
      "url": "%s"
    }
  }
}`},
}

// printAgentSnippets prints MCP connection config snippets for various AI agents.
func printAgentSnippets(w io.Writer, useColor bool, config *pgmcp.ServerConfig) {
	url := fmt.Sprintf("http://localhost:%d%s", config.Server.Port, mcpEndpoint)

	if useColor {
		fmt.Fprintf(w, "\033[1;36m%s\033[0m\n\n", "Agent Connection Snippets")
	} else {
		fmt.Fprintf(w, "%s\n\n", "Agent Connection Snippets")
	}

	fmt.Fprintf(w, "  Claude Code command:\n\n    claude mcp add --transport http pgguard %s\n\n", url)
	for _, s := range agentSnippets {
		if useColor {
			fmt.Fprintf(w, "  \033[1m%s\033[0m\n", s.title)
		} else {
			fmt.Fprintf(w, "  %s\n", s.title)
		}
		body := fmt.Sprintf(s.template, url)
		for _, line := range strings.Split(body, "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
		fmt.Fprintln(w)
	}
}
