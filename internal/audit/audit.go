// Package audit writes an archive run's progress to the control database as
// it happens, fulfilling archiver.AuditWriter. Schema and upsert style are
// adapted from the teacher's crash-resume tables (internal/archiver's
// former resume.go): idempotent CREATE TABLE IF NOT EXISTS, INSERT ... ON
// DUPLICATE KEY UPDATE for per-table progress.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/dbsmedya/goarchive/internal/archiver"
	"github.com/dbsmedya/goarchive/internal/logger"
)

const createRunTableSQL = `
CREATE TABLE IF NOT EXISTS archive_runs (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	ended_at TIMESTAMP NULL,
	status VARCHAR(20) NOT NULL,
	host_name VARCHAR(255) NOT NULL,
	total_tables INT NOT NULL DEFAULT 0,
	succeeded_tables INT NOT NULL DEFAULT 0,
	failed_tables INT NOT NULL DEFAULT 0,
	message TEXT,
	INDEX idx_status (status)
) ENGINE=InnoDB;
`

const createDetailTableSQL = `
CREATE TABLE IF NOT EXISTS archive_run_details (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	run_id BIGINT NOT NULL,
	setting_id BIGINT NOT NULL,
	table_name VARCHAR(255) NOT NULL,
	source_scanned BIGINT NOT NULL DEFAULT 0,
	inserted_to_history BIGINT NOT NULL DEFAULT 0,
	deleted_from_source BIGINT NOT NULL DEFAULT 0,
	exported_to_csv BIGINT NOT NULL DEFAULT 0,
	deleted_from_history BIGINT NOT NULL DEFAULT 0,
	status VARCHAR(20) NOT NULL,
	message TEXT,
	UNIQUE KEY uk_run_setting (run_id, setting_id),
	FOREIGN KEY (run_id) REFERENCES archive_runs(id) ON DELETE CASCADE
) ENGINE=InnoDB;
`

// Store is a database/sql-backed archiver.AuditWriter.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewStore builds a Store over db. log may be nil.
func NewStore(db *sql.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Store{db: db, logger: log}
}

// InitializeTables creates archive_runs and archive_run_details if they
// don't already exist. Safe to call on every startup.
func (s *Store) InitializeTables(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createRunTableSQL); err != nil {
		return fmt.Errorf("failed to create archive_runs table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createDetailTableSQL); err != nil {
		return fmt.Errorf("failed to create archive_run_details table: %w", err)
	}
	return nil
}

// StartRun inserts the run header row and returns its id, stringified, as
// the run identifier the engine threads through RecordTableDetail/FinishRun.
func (s *Store) StartRun(ctx context.Context, totalTables int) (string, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO archive_runs (status, host_name, total_tables) VALUES (?, ?, ?)",
		archiver.StatusRunning, host, totalTables,
	)
	if err != nil {
		return "", fmt.Errorf("failed to start audit run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read new audit run id: %w", err)
	}

	s.logger.Infow("archive run started", "run_id", id, "total_tables", totalTables, "host", host)
	return fmt.Sprint(id), nil
}

// RecordTableDetail upserts one setting's outcome for this run, using the
// same INSERT ... ON DUPLICATE KEY UPDATE idiom the teacher's resume log
// used for idempotent per-PK status writes.
func (s *Store) RecordTableDetail(ctx context.Context, runID string, detail archiver.TableDetail) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO archive_run_details
			(run_id, setting_id, table_name, source_scanned, inserted_to_history, deleted_from_source,
			 exported_to_csv, deleted_from_history, status, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
			source_scanned = VALUES(source_scanned),
			inserted_to_history = VALUES(inserted_to_history),
			deleted_from_source = VALUES(deleted_from_source),
			exported_to_csv = VALUES(exported_to_csv),
			deleted_from_history = VALUES(deleted_from_history),
			status = VALUES(status),
			message = VALUES(message)`,
		runID, detail.SettingID, detail.TableName,
		detail.Counters.SourceScanned, detail.Counters.InsertedToHistory, detail.Counters.DeletedFromSource,
		detail.Counters.ExportedToCsv, detail.Counters.DeletedFromHistory, detail.Status, detail.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to record table detail for %q: %w", detail.TableName, err)
	}
	return nil
}

// FinishRun closes out the run header: sets ended_at, the final status and
// message, and rolls up succeeded/failed table counts from the detail rows.
func (s *Store) FinishRun(ctx context.Context, runID string, status archiver.RunStatus, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE archive_runs SET
			ended_at = CURRENT_TIMESTAMP,
			status = ?,
			message = ?,
			succeeded_tables = (SELECT COUNT(*) FROM archive_run_details WHERE run_id = ? AND status = ?),
			failed_tables = (SELECT COUNT(*) FROM archive_run_details WHERE run_id = ? AND status = ?)
		 WHERE id = ?`,
		status, message, runID, archiver.StatusSuccess, runID, archiver.StatusFail, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish audit run %s: %w", runID, err)
	}

	s.logger.Infow("archive run finished", "run_id", runID, "status", status)
	return nil
}
