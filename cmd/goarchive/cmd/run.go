package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goarchive/internal/archiver"
	"github.com/dbsmedya/goarchive/internal/audit"
	"github.com/dbsmedya/goarchive/internal/database"
	"github.com/dbsmedya/goarchive/internal/lock"
	"github.com/dbsmedya/goarchive/internal/settings"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one archive pass over every enabled setting",
	Long: `Run loads every enabled row in archive_settings, then for each one
in turn moves rows older than its online cutoff into history and, when
CSV export is enabled, exports and deletes history rows older than its
history cutoff.

A MySQL advisory lock held on the control connection for the duration
of the run prevents two runs from overlapping.

Example:
  goarchive run --config archiver.yaml`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := database.SetupSignalHandler()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	controlDB, err := openControl(ctx, cfg)
	if err != nil {
		return err
	}
	defer controlDB.Close()

	runLock := lock.NewJobLock(controlDB, "run")
	if err := runLock.AcquireOrFail(ctx); err != nil {
		return fmt.Errorf("another run is already in progress: %w", err)
	}
	defer runLock.ReleaseLock(context.Background())

	settingsStore := settings.NewStore(controlDB, log)
	if err := settingsStore.InitializeTables(ctx); err != nil {
		return err
	}
	auditStore := audit.NewStore(controlDB, log)
	if err := auditStore.InitializeTables(ctx); err != nil {
		return err
	}

	engine := archiver.NewArchiveEngine(cfg, settingsStore, auditStore, log)

	result, err := engine.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("archive run failed: %w", err)
	}

	for _, msg := range result.Messages {
		fmt.Fprintln(outputWriter, msg)
	}
	if !result.Succeeded {
		return fmt.Errorf("archive run did not complete successfully")
	}
	return nil
}
