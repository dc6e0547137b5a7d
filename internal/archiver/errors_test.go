package archiver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigurationError_Error(t *testing.T) {
	err := &ConfigurationError{Table: "orders", Message: "primary key column is blank"}
	assert.Equal(t, `configuration error for table "orders": primary key column is blank`, err.Error())
}

func TestTransientDatabaseError_Unwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := &TransientDatabaseError{Op: "select-batch", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "select-batch")
}

func TestQueryExecutionTimeoutError_Unwrap(t *testing.T) {
	inner := errors.New("context deadline exceeded")
	err := &QueryExecutionTimeoutError{Op: "bulk-insert", Err: inner}
	assert.ErrorIs(t, err, inner)
}

func TestFilesystemError_Unwrap(t *testing.T) {
	inner := errors.New("permission denied")
	err := &FilesystemError{Path: "/data/orders", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "/data/orders")
}
