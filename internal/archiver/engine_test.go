package archiver

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/goarchive/internal/config"
	"github.com/dbsmedya/goarchive/internal/database"
)

type fakeSettings struct {
	settings []ArchiveSetting
}

func (f *fakeSettings) ListAll(ctx context.Context) ([]ArchiveSetting, error) {
	return f.settings, nil
}

type fakeAudit struct {
	started  int
	details  []TableDetail
	finished []RunStatus
}

func (f *fakeAudit) StartRun(ctx context.Context, totalTables int) (string, error) {
	f.started++
	return "run-1", nil
}

func (f *fakeAudit) RecordTableDetail(ctx context.Context, runID string, detail TableDetail) error {
	f.details = append(f.details, detail)
	return nil
}

func (f *fakeAudit) FinishRun(ctx context.Context, runID string, status RunStatus, message string) error {
	f.finished = append(f.finished, status)
	return nil
}

func newTestEngine(t *testing.T, settings []ArchiveSetting, sourceMock, targetMock *sqlmock.Sqlmock) (*ArchiveEngine, *fakeAudit) {
	t.Helper()

	sourceDB, sMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sourceDB.Close() })

	targetDB, tMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { targetDB.Close() })

	*sourceMock = sMock
	*targetMock = tMock

	cfg := config.DefaultConfig()
	cfg.Connections = map[string]config.ConnectionConfig{
		"shop":         {Database: "shop"},
		"shop_history": {Database: "shop_history"},
	}

	audit := &fakeAudit{}
	engine := NewArchiveEngine(cfg, &fakeSettings{settings: settings}, audit, nil)
	engine.openGateway = func(ctx context.Context, source, target config.ConnectionConfig) (*database.Gateway, error) {
		gw := database.NewGateway()
		gw.Online = sourceDB
		gw.History = targetDB
		return gw, nil
	}

	return engine, audit
}

func baseSetting() ArchiveSetting {
	return ArchiveSetting{
		ID:                    1,
		Enabled:               true,
		TableName:             "orders",
		SourceConnection:      "shop",
		TargetConnection:      "shop_history",
		DateColumn:            "created_at",
		PrimaryKeyColumn:      "id",
		OnlineCutoff:          time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		HistoryCutoff:         time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		BatchSize:             2,
		PhysicalDeleteEnabled: true,
	}
}

// S1 — Basic move.
func TestArchiveEngine_S1_BasicMove(t *testing.T) {
	var sourceMock, targetMock sqlmock.Sqlmock
	engine, audit := newTestEngine(t, []ArchiveSetting{baseSetting()}, &sourceMock, &targetMock)

	// Preflight for source and target.
	sourceMock.ExpectQuery("SELECT ENGINE FROM information_schema.TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"ENGINE"}).AddRow("InnoDB"))
	sourceMock.ExpectQuery("SELECT COLUMN_NAME FROM information_schema.COLUMNS").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id").AddRow("created_at"))
	targetMock.ExpectQuery("SELECT ENGINE FROM information_schema.TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"ENGINE"}).AddRow("InnoDB"))
	targetMock.ExpectQuery("SELECT COLUMN_NAME FROM information_schema.COLUMNS").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id").AddRow("created_at"))

	// Batch 1: pk 1, 2 (batch size 2).
	sourceMock.ExpectQuery("SELECT \\* FROM `orders`").WillReturnRows(
		sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow(int64(1), "2024-01-01").
			AddRow(int64(2), "2024-02-01"),
	)
	targetMock.ExpectQuery("SELECT .* FROM `orders`").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	targetMock.ExpectExec("INSERT INTO `orders`").WillReturnResult(sqlmock.NewResult(0, 2))
	sourceMock.ExpectExec("DELETE FROM `orders`").WillReturnResult(sqlmock.NewResult(0, 2))

	// Batch 2: empty, phase done.
	sourceMock.ExpectQuery("SELECT \\* FROM `orders`").WillReturnRows(
		sqlmock.NewRows([]string{"id", "created_at"}),
	)

	result, err := engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Succeeded)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "orders moved (online>2025-01-01; history>2023-01-01)", result.Messages[0])

	require.NoError(t, sourceMock.ExpectationsWereMet())
	require.NoError(t, targetMock.ExpectationsWereMet())

	require.Len(t, audit.details, 1)
	assert.Equal(t, StatusSuccess, audit.details[0].Status)
	assert.Equal(t, int64(2), audit.details[0].Counters.InsertedToHistory)
	assert.Equal(t, int64(2), audit.details[0].Counters.DeletedFromSource)
}

// S2 — Idempotent re-run: target's pk probe reports every row already
// present, so the bulk-load is skipped but source delete still happens.
func TestArchiveEngine_S2_IdempotentRerun(t *testing.T) {
	var sourceMock, targetMock sqlmock.Sqlmock
	engine, _ := newTestEngine(t, []ArchiveSetting{baseSetting()}, &sourceMock, &targetMock)

	sourceMock.ExpectQuery("SELECT ENGINE FROM information_schema.TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"ENGINE"}).AddRow("InnoDB"))
	sourceMock.ExpectQuery("SELECT COLUMN_NAME FROM information_schema.COLUMNS").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id").AddRow("created_at"))
	targetMock.ExpectQuery("SELECT ENGINE FROM information_schema.TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"ENGINE"}).AddRow("InnoDB"))
	targetMock.ExpectQuery("SELECT COLUMN_NAME FROM information_schema.COLUMNS").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id").AddRow("created_at"))

	sourceMock.ExpectQuery("SELECT \\* FROM `orders`").WillReturnRows(
		sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow(int64(1), "2024-01-01").
			AddRow(int64(2), "2024-02-01"),
	)
	// Both pks already exist in target: bulk-load is skipped entirely.
	targetMock.ExpectQuery("SELECT .* FROM `orders`").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow("1").AddRow("2"),
	)
	sourceMock.ExpectExec("DELETE FROM `orders`").WillReturnResult(sqlmock.NewResult(0, 2))

	sourceMock.ExpectQuery("SELECT \\* FROM `orders`").WillReturnRows(
		sqlmock.NewRows([]string{"id", "created_at"}),
	)

	result, err := engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Succeeded)

	require.NoError(t, sourceMock.ExpectationsWereMet())
	require.NoError(t, targetMock.ExpectationsWereMet())
}

// S5 — Cutoff misconfiguration: no DB calls for the misconfigured setting,
// a warning message is recorded, and subsequent settings still run.
func TestArchiveEngine_S5_CutoffMisconfiguration(t *testing.T) {
	misconfigured := baseSetting()
	misconfigured.TableName = "orders"
	misconfigured.OnlineCutoff = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	misconfigured.HistoryCutoff = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	healthy := baseSetting()
	healthy.ID = 2
	healthy.TableName = "invoices"

	var sourceMock, targetMock sqlmock.Sqlmock
	engine, _ := newTestEngine(t, []ArchiveSetting{misconfigured, healthy}, &sourceMock, &targetMock)

	// Only the healthy setting's preflight + empty-batch queries are expected.
	sourceMock.ExpectQuery("SELECT ENGINE FROM information_schema.TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"ENGINE"}).AddRow("InnoDB"))
	sourceMock.ExpectQuery("SELECT COLUMN_NAME FROM information_schema.COLUMNS").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id").AddRow("created_at"))
	targetMock.ExpectQuery("SELECT ENGINE FROM information_schema.TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"ENGINE"}).AddRow("InnoDB"))
	targetMock.ExpectQuery("SELECT COLUMN_NAME FROM information_schema.COLUMNS").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id").AddRow("created_at"))
	sourceMock.ExpectQuery("SELECT \\* FROM `invoices`").WillReturnRows(
		sqlmock.NewRows([]string{"id", "created_at"}),
	)

	result, err := engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Succeeded)
	require.Len(t, result.Messages, 2)
	assert.Contains(t, result.Messages[0], "online retention must be later than history retention")
	assert.Contains(t, result.Messages[1], "invoices moved")

	require.NoError(t, sourceMock.ExpectationsWereMet())
	require.NoError(t, targetMock.ExpectationsWereMet())
}

func TestArchiveEngine_NoEnabledSettings(t *testing.T) {
	var sourceMock, targetMock sqlmock.Sqlmock
	engine, _ := newTestEngine(t, nil, &sourceMock, &targetMock)

	result, err := engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Succeeded)
	assert.Equal(t, []string{"no enabled settings"}, result.Messages)
}

func TestArchiveEngine_HaltsOnFirstTableFailure(t *testing.T) {
	failing := baseSetting()
	failing.TableName = "orders"

	healthy := baseSetting()
	healthy.ID = 2
	healthy.TableName = "invoices"

	var sourceMock, targetMock sqlmock.Sqlmock
	engine, audit := newTestEngine(t, []ArchiveSetting{failing, healthy}, &sourceMock, &targetMock)

	sourceMock.ExpectQuery("SELECT ENGINE FROM information_schema.TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"ENGINE"}))

	result, err := engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Succeeded)
	require.Len(t, result.Messages, 1)
	assert.Contains(t, result.Messages[0], "orders")

	require.NoError(t, sourceMock.ExpectationsWereMet())
	require.Len(t, audit.finished, 1)
	assert.Equal(t, StatusPartialFail, audit.finished[0])
}
