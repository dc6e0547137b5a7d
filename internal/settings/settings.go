// Package settings provides a CRUD repository over the ArchiveSettings
// table described in spec.md §6, fulfilling archiver.SettingsProvider.
package settings

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dbsmedya/goarchive/internal/archiver"
	"github.com/dbsmedya/goarchive/internal/logger"
)

// createSettingsTableSQL matches the contractual schema in spec.md §6,
// following the teacher's archiver_job table idiom: idempotent creation,
// InnoDB, a unique key on the columns that make a setting row identifiable.
const createSettingsTableSQL = `
CREATE TABLE IF NOT EXISTS archive_settings (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	source_connection VARCHAR(255) NOT NULL,
	target_connection VARCHAR(255) NOT NULL,
	table_name VARCHAR(255) NOT NULL,
	date_column VARCHAR(255) NOT NULL,
	primary_key_column VARCHAR(255) NOT NULL,
	online_cutoff DATE NOT NULL,
	history_cutoff DATE NOT NULL,
	batch_size INT NOT NULL DEFAULT 0,
	csv_enabled TINYINT(1) NOT NULL DEFAULT 0,
	csv_root_folder VARCHAR(1024) NOT NULL DEFAULT '',
	physical_delete_enabled TINYINT(1) NOT NULL DEFAULT 0,
	enabled TINYINT(1) NOT NULL DEFAULT 1,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	UNIQUE KEY uk_source_target_table (source_connection, target_connection, table_name)
) ENGINE=InnoDB;
`

const settingsColumns = "id, source_connection, target_connection, table_name, date_column, primary_key_column, " +
	"online_cutoff, history_cutoff, batch_size, csv_enabled, csv_root_folder, physical_delete_enabled, enabled"

// Store is a database/sql-backed repository over archive_settings, reached
// through the control connection.
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

// InitializeTables creates archive_settings if it doesn't already exist.
// Safe to call on every startup.
func (s *Store) InitializeTables(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createSettingsTableSQL); err != nil {
		return fmt.Errorf("failed to create archive_settings table: %w", err)
	}
	return nil
}

// ListAll returns every setting, enabled or not, in id order. Fulfills
// archiver.SettingsProvider.
func (s *Store) ListAll(ctx context.Context) ([]archiver.ArchiveSetting, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+settingsColumns+" FROM archive_settings ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list archive settings: %w", err)
	}
	defer rows.Close()

	var result []archiver.ArchiveSetting
	for rows.Next() {
		setting, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, setting)
	}
	return result, rows.Err()
}

// Get returns the setting with the given id.
func (s *Store) Get(ctx context.Context, id int64) (*archiver.ArchiveSetting, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+settingsColumns+" FROM archive_settings WHERE id = ?", id)
	setting, err := scanSetting(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("archive setting %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// Create inserts a new setting and returns its assigned id.
func (s *Store) Create(ctx context.Context, setting *archiver.ArchiveSetting) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO archive_settings
			(source_connection, target_connection, table_name, date_column, primary_key_column,
			 online_cutoff, history_cutoff, batch_size, csv_enabled, csv_root_folder,
			 physical_delete_enabled, enabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		setting.SourceConnection, setting.TargetConnection, setting.TableName, setting.DateColumn, setting.PrimaryKeyColumn,
		setting.OnlineCutoff, setting.HistoryCutoff, setting.BatchSize, setting.CsvEnabled, setting.CsvRootFolder,
		setting.PhysicalDeleteEnabled, setting.Enabled,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive setting for table %q: %w", setting.TableName, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new archive setting id: %w", err)
	}
	s.logger.Infow("created archive setting", "table", setting.TableName, "id", id)
	return id, nil
}

// Update overwrites every column of an existing setting by id.
func (s *Store) Update(ctx context.Context, setting *archiver.ArchiveSetting) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE archive_settings SET
			source_connection = ?, target_connection = ?, table_name = ?, date_column = ?, primary_key_column = ?,
			online_cutoff = ?, history_cutoff = ?, batch_size = ?, csv_enabled = ?, csv_root_folder = ?,
			physical_delete_enabled = ?, enabled = ?
		 WHERE id = ?`,
		setting.SourceConnection, setting.TargetConnection, setting.TableName, setting.DateColumn, setting.PrimaryKeyColumn,
		setting.OnlineCutoff, setting.HistoryCutoff, setting.BatchSize, setting.CsvEnabled, setting.CsvRootFolder,
		setting.PhysicalDeleteEnabled, setting.Enabled, setting.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update archive setting %d: %w", setting.ID, err)
	}
	return nil
}

// Delete removes a setting by id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM archive_settings WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete archive setting %d: %w", id, err)
	}
	return nil
}

// SetEnabled flips a setting's enabled flag without touching anything else,
// backing the `settings enable`/`settings disable` CLI subcommands.
func (s *Store) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := s.db.ExecContext(ctx, "UPDATE archive_settings SET enabled = ? WHERE id = ?", enabled, id)
	if err != nil {
		return fmt.Errorf("failed to set enabled=%t for archive setting %d: %w", enabled, id, err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows so scanSetting works for both.
type scanner interface {
	Scan(dest ...any) error
}

func scanSetting(sc scanner) (archiver.ArchiveSetting, error) {
	var s archiver.ArchiveSetting
	err := sc.Scan(
		&s.ID, &s.SourceConnection, &s.TargetConnection, &s.TableName, &s.DateColumn, &s.PrimaryKeyColumn,
		&s.OnlineCutoff, &s.HistoryCutoff, &s.BatchSize, &s.CsvEnabled, &s.CsvRootFolder,
		&s.PhysicalDeleteEnabled, &s.Enabled,
	)
	return s, err
}
