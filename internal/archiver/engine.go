// Package archiver implements the age-based archive run: moving rows from
// an online source into a history target (Phase 1), then optionally
// exporting history rows to CSV and deleting them (Phase 2), per setting.
package archiver

import (
	"context"
	"fmt"
	"time"

	"github.com/dbsmedya/goarchive/internal/config"
	"github.com/dbsmedya/goarchive/internal/csvwriter"
	"github.com/dbsmedya/goarchive/internal/database"
	"github.com/dbsmedya/goarchive/internal/logger"
	"github.com/dbsmedya/goarchive/internal/retry"
	"github.com/dbsmedya/goarchive/internal/types"
)

// ArchiveSetting is one table's archive contract: where its rows live, how
// old they must be to move, and whether a cold CSV tier follows.
type ArchiveSetting struct {
	ID                    int64
	Enabled               bool
	TableName             string
	SourceConnection      string
	TargetConnection      string
	DateColumn            string
	PrimaryKeyColumn      string
	OnlineCutoff          time.Time
	HistoryCutoff         time.Time
	BatchSize             int
	PhysicalDeleteEnabled bool
	CsvEnabled            bool
	CsvRootFolder         string
}

// RunStatus classifies one table's outcome within a run, or the run itself.
type RunStatus string

const (
	StatusRunning     RunStatus = "Running"
	StatusSuccess     RunStatus = "Success"
	StatusPartialFail RunStatus = "PartialFail"
	StatusFail        RunStatus = "Fail"
	StatusSkipped     RunStatus = "Skipped"
)

// TableCounters tallies one table's row movement within a run.
type TableCounters struct {
	SourceScanned      int64
	InsertedToHistory  int64
	DeletedFromSource  int64
	ExportedToCsv      int64
	DeletedFromHistory int64
}

// TableDetail is one setting's outcome, recorded to the audit trail.
type TableDetail struct {
	SettingID int64
	TableName string
	Counters  TableCounters
	Status    RunStatus
	Message   string
}

// SettingsProvider supplies the snapshot of settings a run processes.
// Settings are read once at the start of a run and never mutated by it.
type SettingsProvider interface {
	ListAll(ctx context.Context) ([]ArchiveSetting, error)
}

// AuditWriter records a run's progress as it happens, so a crash mid-run
// still leaves a readable trail of what succeeded.
type AuditWriter interface {
	StartRun(ctx context.Context, totalTables int) (string, error)
	RecordTableDetail(ctx context.Context, runID string, detail TableDetail) error
	FinishRun(ctx context.Context, runID string, status RunStatus, message string) error
}

// RunResult is ArchiveEngine.RunOnce's contract-level return value
// (spec.md §4.1: "runOnce(cancel) -> { succeeded, messages }").
type RunResult struct {
	Succeeded bool
	Messages  []string
}

// ArchiveEngine drives one archive run across every enabled setting.
type ArchiveEngine struct {
	cfg       *config.Config
	settings  SettingsProvider
	audit     AuditWriter
	retryExec *retry.Executor
	csv       *csvwriter.Writer
	preflight *PreflightChecker
	logger    *logger.Logger

	// openGateway is overridable in tests; by default it dials real MySQL
	// connections via database.Gateway.OpenTables.
	openGateway func(ctx context.Context, source, target config.ConnectionConfig) (*database.Gateway, error)
}

// NewArchiveEngine wires an ArchiveEngine from its collaborators. audit may
// be nil when no audit trail is configured.
func NewArchiveEngine(cfg *config.Config, settings SettingsProvider, audit AuditWriter, log *logger.Logger) *ArchiveEngine {
	if log == nil {
		log = logger.NewDefault()
	}

	e := &ArchiveEngine{
		cfg:       cfg,
		settings:  settings,
		audit:     audit,
		retryExec: retry.NewExecutor(log),
		csv:       csvwriter.NewWriter(),
		preflight: NewPreflightChecker(log),
		logger:    log,
	}
	e.openGateway = e.defaultOpenGateway
	return e
}

func (e *ArchiveEngine) defaultOpenGateway(ctx context.Context, source, target config.ConnectionConfig) (*database.Gateway, error) {
	gw := database.NewGateway()
	if err := gw.OpenTables(ctx, source, target); err != nil {
		return nil, err
	}
	return gw, nil
}

// RunOnce executes one archive run over every enabled setting, per
// spec.md §4.1. It halts on the first table that fails outright, but a
// setting skipped for cutoff misconfiguration does not count as a failure.
func (e *ArchiveEngine) RunOnce(ctx context.Context) (RunResult, error) {
	all, err := e.settings.ListAll(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to load archive settings: %w", err)
	}

	var enabled []ArchiveSetting
	for _, s := range all {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	if len(enabled) == 0 {
		return RunResult{Succeeded: true, Messages: []string{"no enabled settings"}}, nil
	}

	var runID string
	if e.audit != nil {
		runID, err = e.audit.StartRun(ctx, len(enabled))
		if err != nil {
			e.logger.Warnw("failed to start audit run; continuing without an audit trail", "error", err)
		}
	}

	var messages []string
	for _, s := range enabled {
		tableLog := e.logger.WithTable(s.TableName)

		onlineCutoff := s.OnlineCutoff.Truncate(24 * time.Hour).UTC()
		historyCutoff := s.HistoryCutoff.Truncate(24 * time.Hour).UTC()

		if !onlineCutoff.After(historyCutoff) {
			msg := fmt.Sprintf("[%s] skipped: online retention must be later than history retention (online=%s, history=%s) (UTC)",
				s.TableName, onlineCutoff.Format("2006-01-02"), historyCutoff.Format("2006-01-02"))
			tableLog.Warnw("skipping setting with misconfigured cutoffs", "message", msg)
			messages = append(messages, msg)

			if e.audit != nil && runID != "" {
				_ = e.audit.RecordTableDetail(ctx, runID, TableDetail{
					SettingID: s.ID, TableName: s.TableName, Status: StatusSkipped, Message: msg,
				})
			}
			continue
		}
		s.OnlineCutoff = onlineCutoff
		s.HistoryCutoff = historyCutoff

		detail := TableDetail{SettingID: s.ID, TableName: s.TableName}

		if err := e.runTable(ctx, s, &detail, tableLog); err != nil {
			msg := fmt.Sprintf("[%s] error: %s", s.TableName, err)
			tableLog.Errorw("table archive failed; halting remaining settings", "error", err)
			messages = append(messages, msg)

			detail.Status = StatusFail
			detail.Message = msg
			if e.audit != nil && runID != "" {
				_ = e.audit.RecordTableDetail(ctx, runID, detail)
				_ = e.audit.FinishRun(ctx, runID, StatusPartialFail, msg)
			}
			return RunResult{Succeeded: false, Messages: messages}, nil
		}

		msg := fmt.Sprintf("%s moved (online>%s; history>%s)",
			s.TableName, s.OnlineCutoff.Format("2006-01-02"), s.HistoryCutoff.Format("2006-01-02"))
		messages = append(messages, msg)
		detail.Status = StatusSuccess
		detail.Message = msg

		if e.audit != nil && runID != "" {
			_ = e.audit.RecordTableDetail(ctx, runID, detail)
		}
	}

	if e.audit != nil && runID != "" {
		_ = e.audit.FinishRun(ctx, runID, StatusSuccess, "run completed")
	}

	return RunResult{Succeeded: true, Messages: messages}, nil
}

// runTable executes Phase 1, and Phase 2 when enabled, for one setting.
func (e *ArchiveEngine) runTable(ctx context.Context, s ArchiveSetting, detail *TableDetail, log *logger.Logger) error {
	sourceConn, err := e.cfg.Resolve(s.SourceConnection)
	if err != nil {
		return fmt.Errorf("resolve source connection %q: %w", s.SourceConnection, err)
	}
	targetConn, err := e.cfg.Resolve(s.TargetConnection)
	if err != nil {
		return fmt.Errorf("resolve target connection %q: %w", s.TargetConnection, err)
	}

	gw, err := e.openGateway(ctx, sourceConn, targetConn)
	if err != nil {
		return fmt.Errorf("open connections: %w", err)
	}
	defer gw.Close()

	if e.preflight != nil {
		if err := e.preflight.CheckTable(ctx, gw.Online, sourceConn.Database, s.TableName, s.DateColumn, s.PrimaryKeyColumn, false); err != nil {
			return err
		}
		if err := e.preflight.CheckTable(ctx, gw.History, targetConn.Database, s.TableName, s.DateColumn, s.PrimaryKeyColumn, true); err != nil {
			return err
		}
	}

	archivePolicy := e.cfg.Retry
	policy := retry.Policy{Enabled: archivePolicy.Enabled, MaxRetryCount: archivePolicy.MaxRetryCount, RetryDelaySeconds: archivePolicy.RetryDelaySeconds}

	if err := e.retryExec.Execute(ctx, s.TableName+"-Archive", policy, func(ctx context.Context) error {
		return e.runPhase1(ctx, gw, s, detail, log)
	}); err != nil {
		return fmt.Errorf("phase 1 (archive): %w", err)
	}

	if s.CsvEnabled {
		if err := e.retryExec.Execute(ctx, s.TableName+"-Csv", policy, func(ctx context.Context) error {
			return e.runPhase2(ctx, gw, s, detail, log)
		}); err != nil {
			return fmt.Errorf("phase 2 (export): %w", err)
		}
	}

	return nil
}

// runPhase1 moves rows older than s.OnlineCutoff from the source table into
// the target table, de-duplicating against target, per spec.md §4.1/§4.3.
func (e *ArchiveEngine) runPhase1(ctx context.Context, gw *database.Gateway, s ArchiveSetting, detail *TableDetail, log *logger.Logger) error {
	reader := NewCursorBatchReader(gw, gw.Online, s.TableName, s.DateColumn, s.PrimaryKeyColumn, s.OnlineCutoff)
	bsc := NewBatchSizeController(e.batchSizeBounds())
	size := InitialBatchSize(s.BatchSize, e.cfg.BatchSize.Default)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := reader.Next(ctx, size)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		detail.Counters.SourceScanned += int64(len(batch))

		start := time.Now()

		inserted, err := e.upsertBatch(ctx, gw, s.TableName, s.PrimaryKeyColumn, batch)
		if err != nil {
			return err
		}
		detail.Counters.InsertedToHistory += inserted

		if s.PhysicalDeleteEnabled {
			pks, err := pkValues(batch, s.PrimaryKeyColumn)
			if err != nil {
				return err
			}
			deleted, err := gw.DeleteIn(ctx, s.TableName, s.PrimaryKeyColumn, pks)
			if err != nil {
				return err
			}
			detail.Counters.DeletedFromSource += deleted
		}

		elapsed := time.Since(start)
		log.Debugf("phase 1 batch: table=%s rows=%d inserted=%d elapsed=%s", s.TableName, len(batch), inserted, elapsed)

		size = bsc.Adjust(size, len(batch), elapsed)
	}
}

// runPhase2 exports rows older than s.HistoryCutoff from the target table to
// CSV, then deletes the exported rows from target, per spec.md §4.1.
func (e *ArchiveEngine) runPhase2(ctx context.Context, gw *database.Gateway, s ArchiveSetting, detail *TableDetail, log *logger.Logger) error {
	reader := NewCursorBatchReader(gw, gw.History, s.TableName, s.DateColumn, s.PrimaryKeyColumn, s.HistoryCutoff)
	bsc := NewBatchSizeController(e.batchSizeBounds())
	size := InitialBatchSize(s.BatchSize, e.cfg.BatchSize.Default)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := reader.Next(ctx, size)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		start := time.Now()

		fromDate, toDate, err := dateRange(batch, s.DateColumn)
		if err != nil {
			return err
		}

		columns := types.Columns(batch[0])
		parts, err := e.csv.WriteParts(batch, columns, csvwriter.Options{
			RootFolder:       s.CsvRootFolder,
			Table:            s.TableName,
			FromDate:         fromDate,
			ToDate:           toDate,
			Delimiter:        e.cfg.Csv.Delimiter,
			MaxRowsPerFile:   e.cfg.Csv.MaxRowsPerFile,
			FileNameTemplate: e.cfg.Csv.FileNameTemplate,
		})
		if err != nil {
			return &FilesystemError{Path: s.CsvRootFolder, Err: err}
		}
		for _, p := range parts {
			detail.Counters.ExportedToCsv += int64(p.RowCount)
		}

		pks, err := pkValues(batch, s.PrimaryKeyColumn)
		if err != nil {
			return err
		}
		deleted, err := gw.DeleteInDB(ctx, gw.History, s.TableName, s.PrimaryKeyColumn, pks)
		if err != nil {
			return err
		}
		detail.Counters.DeletedFromHistory += deleted

		elapsed := time.Since(start)
		log.Debugf("phase 2 batch: table=%s rows=%d parts=%d elapsed=%s", s.TableName, len(batch), len(parts), elapsed)

		size = bsc.Adjust(size, len(batch), elapsed)
	}
}

// upsertBatch implements the filter-then-bulk-load idempotent insert
// described in spec.md §4.3: probe target for existing primary keys, then
// bulk-load only the rows target doesn't already hold.
func (e *ArchiveEngine) upsertBatch(ctx context.Context, gw *database.Gateway, table, pkCol string, batch []types.Row) (int64, error) {
	pkStrs, err := pkStrings(batch, table, pkCol)
	if err != nil {
		return 0, err
	}

	existing, err := gw.ProbeExisting(ctx, gw.History, table, pkCol, pkStrs)
	if err != nil {
		return 0, err
	}

	columns := types.Columns(batch[0])
	var filtered [][]any
	for i, row := range batch {
		if existing[pkStrs[i]] {
			continue
		}
		filtered = append(filtered, types.Values(row))
	}
	if len(filtered) == 0 {
		return 0, nil
	}

	return gw.BulkInsertFiltered(ctx, gw.History, table, columns, filtered)
}

func (e *ArchiveEngine) batchSizeBounds() BatchSizeBounds {
	b := e.cfg.BatchSize
	bounds := DefaultBatchSizeBounds()
	if b.Min > 0 {
		bounds.Min = b.Min
	}
	if b.Max > 0 {
		bounds.Max = b.Max
	}
	if b.TargetSeconds > 0 {
		bounds.TargetSeconds = b.TargetSeconds
	}
	return bounds
}

// pkStrings renders each row's primary key as a string (spec.md §4.3
// "invariant culture"), failing with ConfigurationError on a missing or
// blank key.
func pkStrings(batch []types.Row, table, pkCol string) ([]string, error) {
	result := make([]string, len(batch))
	for i, row := range batch {
		v, ok := types.Get(row, pkCol)
		if !ok || v == nil {
			return nil, &ConfigurationError{Table: table, Message: fmt.Sprintf("primary key column %q missing or null in row %d", pkCol, i)}
		}
		s := fmt.Sprint(v)
		if s == "" {
			return nil, &ConfigurationError{Table: table, Message: fmt.Sprintf("primary key column %q is blank in row %d", pkCol, i)}
		}
		result[i] = s
	}
	return result, nil
}

// pkValues extracts each row's raw primary key value, for chunked deletes.
func pkValues(batch []types.Row, pkCol string) ([]any, error) {
	result := make([]any, len(batch))
	for i, row := range batch {
		v, ok := types.Get(row, pkCol)
		if !ok {
			return nil, &ConfigurationError{Message: fmt.Sprintf("primary key column %q missing in row %d", pkCol, i)}
		}
		result[i] = v
	}
	return result, nil
}

// dateRange computes the (min, max) of a batch's date column, per spec.md
// §4.1 Phase 2 step (i). Rows arrive ordered by dateCol ascending, so the
// first and last row's values bound the batch.
func dateRange(batch []types.Row, dateCol string) (time.Time, time.Time, error) {
	from, err := asTime(batch[0], dateCol)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := asTime(batch[len(batch)-1], dateCol)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func asTime(row types.Row, dateCol string) (time.Time, error) {
	v, ok := types.Get(row, dateCol)
	if !ok {
		return time.Time{}, &ConfigurationError{Message: fmt.Sprintf("date column %q missing from row", dateCol)}
	}
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, &ConfigurationError{Message: fmt.Sprintf("date column %q value %q is not a recognized timestamp", dateCol, t)}
	case []byte:
		return asTime(types.RowFromColumns([]string{dateCol}, []any{string(t)}), dateCol)
	default:
		return time.Time{}, &ConfigurationError{Message: fmt.Sprintf("date column %q has unsupported type %T", dateCol, v)}
	}
}
