package database

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/goarchive/internal/config"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.ConnectionConfig
		expected string
	}{
		{
			name:     "basic DSN",
			cfg:      config.ConnectionConfig{Host: "localhost", Port: 3306, User: "root", Password: "secret", Database: "testdb", TLS: "preferred"},
			expected: "root:secret@tcp(localhost:3306)/testdb?parseTime=true&multiStatements=true&tls=preferred",
		},
		{
			name:     "DSN without database",
			cfg:      config.ConnectionConfig{Host: "localhost", Port: 3306, User: "root", Password: "secret", TLS: "preferred"},
			expected: "root:secret@tcp(localhost:3306)/?parseTime=true&multiStatements=true&tls=preferred",
		},
		{
			name:     "DSN with TLS disabled",
			cfg:      config.ConnectionConfig{Host: "localhost", Port: 3306, User: "root", Password: "secret", Database: "testdb", TLS: "disable"},
			expected: "root:secret@tcp(localhost:3306)/testdb?parseTime=true&multiStatements=true&tls=false",
		},
		{
			name:     "DSN with TLS required",
			cfg:      config.ConnectionConfig{Host: "localhost", Port: 3306, User: "root", Password: "secret", Database: "testdb", TLS: "required"},
			expected: "root:secret@tcp(localhost:3306)/testdb?parseTime=true&multiStatements=true&tls=true",
		},
		{
			name:     "DSN with custom port",
			cfg:      config.ConnectionConfig{Host: "remote-host", Port: 3307, User: "admin", Password: "p@ssw0rd!", Database: "mydb", TLS: "preferred"},
			expected: "admin:p@ssw0rd!@tcp(remote-host:3307)/mydb?parseTime=true&multiStatements=true&tls=preferred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := BuildDSN(tt.cfg)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestNewGateway(t *testing.T) {
	g := NewGateway()
	require.NotNil(t, g)
	assert.Nil(t, g.Online)
	assert.Nil(t, g.History)
	assert.Nil(t, g.Control)
}

func TestGateway_CloseWithoutOpen(t *testing.T) {
	g := NewGateway()
	assert.NoError(t, g.Close())
}

func TestGateway_SelectBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "created_at"}).
		AddRow(int64(1), "2024-01-01").
		AddRow(int64(2), "2024-01-02")
	mock.ExpectQuery("SELECT \\* FROM `orders`").WillReturnRows(rows)

	g := NewGateway()
	g.Online = db

	result, err := g.SelectBatch(context.Background(), "orders", "created_at", "id", false, nil, nil, "2024-06-01", 100)
	require.NoError(t, err)
	assert.Len(t, result, 2)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGateway_ProbeExisting(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id"}).AddRow("1").AddRow("2")
	mock.ExpectQuery("SELECT CAST\\(`id` AS CHAR\\)").WillReturnRows(rows)

	g := NewGateway()
	existing, err := g.ProbeExisting(context.Background(), db, "orders_history", "id", []string{"1", "2", "3"})
	require.NoError(t, err)
	assert.True(t, existing["1"])
	assert.True(t, existing["2"])
	assert.False(t, existing["3"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGateway_BulkInsertFiltered(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO `orders_history`").WillReturnResult(sqlmock.NewResult(0, 2))

	g := NewGateway()
	inserted, err := g.BulkInsertFiltered(context.Background(), db, "orders_history", []string{"id", "amount"}, [][]any{
		{1, 10}, {2, 20},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), inserted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGateway_BulkInsertFiltered_Empty(t *testing.T) {
	g := NewGateway()
	inserted, err := g.BulkInsertFiltered(context.Background(), nil, "orders_history", []string{"id"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inserted)
}

func TestGateway_CountBefore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM `orders`").WillReturnRows(
		sqlmock.NewRows([]string{"count"}).AddRow(int64(42)),
	)

	g := NewGateway()
	count, err := g.CountBefore(context.Background(), db, "orders", "created_at", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGateway_DeleteInDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM `orders_history`").WillReturnResult(sqlmock.NewResult(0, 2))

	g := NewGateway()
	deleted, err := g.DeleteInDB(context.Background(), db, "orders_history", "id", []any{1, 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGateway_DeleteIn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM `orders`").WillReturnResult(sqlmock.NewResult(0, 3))

	g := NewGateway()
	g.Online = db

	deleted, err := g.DeleteIn(context.Background(), "orders", "id", []any{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	require.NoError(t, mock.ExpectationsWereMet())
}
