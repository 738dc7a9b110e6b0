package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	pgmcp "github.com/rickchristie/pgguard-mcp"
)

const envPrefix = "PGGUARDMCP"

// resolveConfigPath picks the --config flag, then $PGGUARDMCP_CONFIG_PATH,
// then the default.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv(envPrefix + "_CONFIG_PATH"); p != "" {
		return p
	}
	return defaultConfigPath
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("safe_mode", true)
	v.SetDefault("features", []string{})
	v.SetDefault("timezone", "")
	v.SetDefault("pool.max_conns", 10)
	v.SetDefault("pool.min_conns", 0)
	v.SetDefault("pool.connect_timeout", "5s")
	v.SetDefault("pool.max_conn_lifetime", "")
	v.SetDefault("pool.max_conn_idle_time", "30s")
	v.SetDefault("pool.health_check_period", "")
	v.SetDefault("query.default_row_limit", pgmcp.DefaultRowLimit)
	v.SetDefault("query.max_row_limit", pgmcp.RowLimitCeiling)
	v.SetDefault("query.max_sql_length", pgmcp.DefaultMaxSQLLength)
	v.SetDefault("query.execute_timeout_seconds", 0)
	v.SetDefault("query.introspect_timeout_seconds", 0)
	v.SetDefault("query.document_timeout_seconds", 0)
	v.SetDefault("connection.host", "")
	v.SetDefault("connection.port", 0)
	v.SetDefault("connection.dbname", "")
	v.SetDefault("connection.sslmode", "")
	v.SetDefault("connection.cloudsql_instance", "")
	v.SetDefault("connection.cloudsql_private_ip", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.health_check_enabled", false)
	v.SetDefault("server.health_check_path", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")
}

// loadServerConfig reads the JSON config file at path and applies
// PGGUARDMCP_* environment overrides (e.g. PGGUARDMCP_SAFE_MODE,
// PGGUARDMCP_SERVER_PORT, PGGUARDMCP_FEATURES=execute-sql,table-document).
func loadServerConfig(path string) (*pgmcp.ServerConfig, error) {
	v := viper.New()
	setConfigDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config pgmcp.ServerConfig
	err := v.Unmarshal(&config, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "json"
		dc.Squash = true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &config, nil
}
