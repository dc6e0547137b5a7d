package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile           string
	logLevel          string
	logFormat         string
	batchSizeMin      int
	batchSizeMax      int
	retryDelaySeconds int
	csvDelimiter      string
)

var rootCmd = &cobra.Command{
	Use:   "goarchive",
	Short: "Age-based MySQL archival pipeline",
	Long: `goarchive moves rows out of a live database as they age past
configured cutoffs: first into a history database, then out to cold
CSV files on disk, deleting from each tier as the next one confirms
the data landed.

Features:
  - Cursor-driven batch scanning with no offset drift
  - Idempotent filter-then-insert moves, safe to re-run after a crash
  - Adaptive batch sizing toward a target batch duration
  - CSV export with delimiter escaping and size-based partitioning
  - MySQL advisory locking to keep one run active at a time`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "archiver.yaml",
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Processing overrides
	rootCmd.PersistentFlags().IntVar(&batchSizeMin, "batch-size-min", 0,
		"Override minimum adaptive batch size")
	rootCmd.PersistentFlags().IntVar(&batchSizeMax, "batch-size-max", 0,
		"Override maximum adaptive batch size")
	rootCmd.PersistentFlags().IntVar(&retryDelaySeconds, "retry-delay", 0,
		"Override retry delay in seconds")
	rootCmd.PersistentFlags().StringVar(&csvDelimiter, "csv-delimiter", "",
		"Override CSV field delimiter")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel          string
	LogFormat         string
	BatchSizeMin      int
	BatchSizeMax      int
	RetryDelaySeconds int
	CsvDelimiter      string
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:          logLevel,
		LogFormat:         logFormat,
		BatchSizeMin:      batchSizeMin,
		BatchSizeMax:      batchSizeMax,
		RetryDelaySeconds: retryDelaySeconds,
		CsvDelimiter:      csvDelimiter,
	}
}
