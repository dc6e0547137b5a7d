package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommandStructure(t *testing.T) {
	assert.Equal(t, "goarchive", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestGetConfigFileDefault(t *testing.T) {
	assert.Equal(t, "archiver.yaml", cfgFile)
}

func TestGetCLIOverrides(t *testing.T) {
	origLevel, origFormat := logLevel, logFormat
	origMin, origMax := batchSizeMin, batchSizeMax
	origRetry, origDelim := retryDelaySeconds, csvDelimiter
	defer func() {
		logLevel, logFormat = origLevel, origFormat
		batchSizeMin, batchSizeMax = origMin, origMax
		retryDelaySeconds, csvDelimiter = origRetry, origDelim
	}()

	logLevel = "debug"
	logFormat = "text"
	batchSizeMin = 50
	batchSizeMax = 500
	retryDelaySeconds = 2
	csvDelimiter = ";"

	overrides := GetCLIOverrides()
	assert.Equal(t, "debug", overrides.LogLevel)
	assert.Equal(t, "text", overrides.LogFormat)
	assert.Equal(t, 50, overrides.BatchSizeMin)
	assert.Equal(t, 500, overrides.BatchSizeMax)
	assert.Equal(t, 2, overrides.RetryDelaySeconds)
	assert.Equal(t, ";", overrides.CsvDelimiter)
}

func TestRegisteredSubcommands(t *testing.T) {
	want := []string{"run", "estimate", "settings", "plan", "validate", "version"}
	got := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, got[name], "expected %q to be registered", name)
	}
}
