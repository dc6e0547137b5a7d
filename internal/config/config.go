// Package config provides configuration structures and loading for GoArchive.
package config

import (
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
)

// Config represents the complete application configuration.
type Config struct {
	Connections map[string]ConnectionConfig `yaml:"connections" mapstructure:"connections"`
	Control     ConnectionConfig            `yaml:"control" mapstructure:"control"`
	Csv         CsvConfig                   `yaml:"csv" mapstructure:"csv"`
	Retry       RetryConfig                 `yaml:"retry" mapstructure:"retry"`
	BatchSize   BatchSizeConfig             `yaml:"batch_size" mapstructure:"batch_size"`
	Logging     LoggingConfig               `yaml:"logging" mapstructure:"logging"`
}

// ConnectionConfig is a named MySQL connection, resolvable either as a
// logical name from Connections or used directly as a literal DSN.
type ConnectionConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	TLS                string `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// CsvConfig controls cold-tier CSV export (spec.md §6 "Configuration").
type CsvConfig struct {
	Delimiter        string `yaml:"delimiter" mapstructure:"delimiter"`
	MaxRowsPerFile   int    `yaml:"max_rows_per_file" mapstructure:"max_rows_per_file"`
	FileNameTemplate string `yaml:"file_name_template" mapstructure:"file_name_template"`
}

// RetryConfig controls RetryExecutor policy defaults (spec.md §6).
type RetryConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	MaxRetryCount     int  `yaml:"max_retry_count" mapstructure:"max_retry_count"`
	RetryDelaySeconds int  `yaml:"retry_delay_seconds" mapstructure:"retry_delay_seconds"`
}

// BatchSizeConfig controls BatchSizeController defaults (spec.md §4.4).
type BatchSizeConfig struct {
	Min           int `yaml:"min" mapstructure:"min"`
	Max           int `yaml:"max" mapstructure:"max"`
	TargetSeconds int `yaml:"target_seconds" mapstructure:"target_seconds"`
	Default       int `yaml:"default" mapstructure:"default"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config populated with the engine's documented
// defaults (spec.md §4.4, §6).
func DefaultConfig() *Config {
	return &Config{
		Connections: map[string]ConnectionConfig{},
		Csv: CsvConfig{
			Delimiter:        ",",
			MaxRowsPerFile:   100000,
			FileNameTemplate: "{TableName}_{FromDate:yyyyMMdd}_{ToDate:yyyyMMdd}_Part{PartIndex}.csv",
		},
		Retry: RetryConfig{
			Enabled:           true,
			MaxRetryCount:     3,
			RetryDelaySeconds: 5,
		},
		BatchSize: BatchSizeConfig{
			Min:           100,
			Max:           2000,
			TargetSeconds: 20,
			Default:       1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Resolve returns name's connection config. name is first looked up as a
// logical name in Connections; when that misses, it is accepted as a
// literal MySQL DSN/connection string instead (spec.md §3 ArchiveSetting:
// "sourceConnection, targetConnection — either logical names or full
// connection strings"), so a setting can point straight at a database
// without an entry in Connections. Only when neither form resolves is an
// error returned.
func (c *Config) Resolve(name string) (ConnectionConfig, error) {
	if conn, ok := c.Connections[name]; ok {
		return conn, nil
	}

	if conn, ok := parseDSN(name); ok {
		return conn, nil
	}

	return ConnectionConfig{}, &ValidationError{
		Field:   "connections." + name,
		Message: "connection not found in configuration and is not a valid connection string",
	}
}

// parseDSN treats raw as a literal MySQL DSN (the form
// "user:password@tcp(host:port)/dbname?param=value") and extracts a
// ConnectionConfig from it. ok is false when raw does not parse as a DSN.
func parseDSN(raw string) (ConnectionConfig, bool) {
	cfg, err := mysql.ParseDSN(raw)
	if err != nil {
		return ConnectionConfig{}, false
	}

	host := cfg.Addr
	port := 3306
	if h, portStr, err := net.SplitHostPort(cfg.Addr); err == nil {
		if p, err := strconv.Atoi(portStr); err == nil {
			host, port = h, p
		}
	}

	tls := "preferred"
	switch cfg.TLSConfig {
	case "false", "":
		tls = "disable"
	case "true", "skip-verify", "preferred":
		tls = cfg.TLSConfig
	}

	return ConnectionConfig{
		Host:     host,
		Port:     port,
		User:     cfg.User,
		Password: cfg.Passwd,
		Database: cfg.DBName,
		TLS:      tls,
	}, true
}

// ApplyOverrides applies CLI flag overrides to the global configuration.
// Only non-zero/non-empty values are applied.
func (c *Config) ApplyOverrides(logLevel, logFormat string, batchMin, batchMax int, retryDelaySeconds int, csvDelimiter string) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if batchMin > 0 {
		c.BatchSize.Min = batchMin
	}
	if batchMax > 0 {
		c.BatchSize.Max = batchMax
	}
	if retryDelaySeconds > 0 {
		c.Retry.RetryDelaySeconds = retryDelaySeconds
	}
	if csvDelimiter != "" {
		c.Csv.Delimiter = csvDelimiter
	}
}
