package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if len(c.Connections) == 0 {
		errs = append(errs, ValidationError{
			Field:   "connections",
			Message: "at least one connection must be defined",
		})
	}
	for name, conn := range c.Connections {
		errs = append(errs, c.validateConnection("connections."+name, &conn)...)
	}

	errs = append(errs, c.validateConnection("control", &c.Control)...)
	errs = append(errs, c.validateCsv()...)
	errs = append(errs, c.validateRetry()...)
	errs = append(errs, c.validateBatchSize()...)
	errs = append(errs, c.validateLogging()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateConnection(prefix string, conn *ConnectionConfig) ValidationErrors {
	var errs ValidationErrors

	if conn.Host == "" {
		errs = append(errs, ValidationError{Field: prefix + ".host", Message: "host is required"})
	}

	if conn.Port <= 0 || conn.Port > 65535 {
		errs = append(errs, ValidationError{Field: prefix + ".port", Message: "port must be between 1 and 65535"})
	}

	if conn.User == "" {
		errs = append(errs, ValidationError{Field: prefix + ".user", Message: "user is required"})
	}

	if conn.Database == "" {
		errs = append(errs, ValidationError{Field: prefix + ".database", Message: "database name is required"})
	}

	validTLS := map[string]bool{"disable": true, "preferred": true, "required": true, "": true}
	if !validTLS[conn.TLS] {
		errs = append(errs, ValidationError{Field: prefix + ".tls", Message: "tls must be 'disable', 'preferred', or 'required'"})
	}

	if conn.MaxConnections < 0 {
		errs = append(errs, ValidationError{Field: prefix + ".max_connections", Message: "max_connections cannot be negative"})
	}

	if conn.MaxIdleConnections < 0 {
		errs = append(errs, ValidationError{Field: prefix + ".max_idle_connections", Message: "max_idle_connections cannot be negative"})
	}

	return errs
}

func (c *Config) validateCsv() ValidationErrors {
	var errs ValidationErrors

	if c.Csv.Delimiter == "" {
		errs = append(errs, ValidationError{Field: "csv.delimiter", Message: "delimiter cannot be empty"})
	}
	if c.Csv.MaxRowsPerFile <= 0 {
		errs = append(errs, ValidationError{Field: "csv.max_rows_per_file", Message: "max_rows_per_file must be positive"})
	}
	if c.Csv.FileNameTemplate == "" {
		errs = append(errs, ValidationError{Field: "csv.file_name_template", Message: "file_name_template cannot be empty"})
	}

	return errs
}

func (c *Config) validateRetry() ValidationErrors {
	var errs ValidationErrors

	if c.Retry.MaxRetryCount < 0 || c.Retry.MaxRetryCount > 10 {
		errs = append(errs, ValidationError{Field: "retry.max_retry_count", Message: "max_retry_count must be between 0 and 10"})
	}
	if c.Retry.RetryDelaySeconds < 0 || c.Retry.RetryDelaySeconds > 300 {
		errs = append(errs, ValidationError{Field: "retry.retry_delay_seconds", Message: "retry_delay_seconds must be between 0 and 300"})
	}

	return errs
}

func (c *Config) validateBatchSize() ValidationErrors {
	var errs ValidationErrors

	if c.BatchSize.Min <= 0 {
		errs = append(errs, ValidationError{Field: "batch_size.min", Message: "min must be positive"})
	}
	if c.BatchSize.Max < c.BatchSize.Min {
		errs = append(errs, ValidationError{Field: "batch_size.max", Message: "max cannot be less than min"})
	}
	if c.BatchSize.TargetSeconds <= 0 {
		errs = append(errs, ValidationError{Field: "batch_size.target_seconds", Message: "target_seconds must be positive"})
	}
	if c.BatchSize.Default < 0 {
		errs = append(errs, ValidationError{Field: "batch_size.default", Message: "default cannot be negative"})
	}

	return errs
}

func (c *Config) validateLogging() ValidationErrors {
	var errs ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, ValidationError{Field: "logging.level", Message: "level must be 'debug', 'info', 'warn', or 'error'"})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, ValidationError{Field: "logging.format", Message: "format must be 'json' or 'text'"})
	}

	return errs
}
