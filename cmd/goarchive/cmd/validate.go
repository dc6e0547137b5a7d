package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goarchive/internal/archiver"
	"github.com/dbsmedya/goarchive/internal/config"
	"github.com/dbsmedya/goarchive/internal/database"
	"github.com/dbsmedya/goarchive/internal/settings"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run preflight checks against every enabled setting's tables",
	Long: `Validate connects to each enabled setting's source and target
tables and confirms they exist, carry the configured date and primary
key columns, and (on the target side) use a transactional storage
engine, without moving any data.

Example:
  goarchive validate --config archiver.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

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

	store := settings.NewStore(controlDB, log)
	if err := store.InitializeTables(ctx); err != nil {
		return err
	}

	all, err := store.ListAll(ctx)
	if err != nil {
		return err
	}

	preflight := archiver.NewPreflightChecker(log)
	failed := 0

	printHeader("Validation")
	for _, s := range all {
		if !s.Enabled {
			fmt.Fprintf(outputWriter, "  %-24s skipped (disabled)\n", s.TableName)
			continue
		}

		if err := validateSetting(ctx, cfg, preflight, s); err != nil {
			fmt.Fprintf(outputWriter, "  %-24s FAIL: %s\n", s.TableName, err)
			failed++
			continue
		}
		fmt.Fprintf(outputWriter, "  %-24s OK\n", s.TableName)
	}

	if failed > 0 {
		return fmt.Errorf("%d setting(s) failed validation", failed)
	}
	return nil
}

func validateSetting(ctx context.Context, cfg *config.Config, preflight *archiver.PreflightChecker, s archiver.ArchiveSetting) error {
	sourceConn, err := cfg.Resolve(s.SourceConnection)
	if err != nil {
		return err
	}
	targetConn, err := cfg.Resolve(s.TargetConnection)
	if err != nil {
		return err
	}

	gw := database.NewGateway()
	if err := gw.OpenTables(ctx, sourceConn, targetConn); err != nil {
		return err
	}
	defer gw.Close()

	if err := preflight.CheckTable(ctx, gw.Online, sourceConn.Database, s.TableName, s.DateColumn, s.PrimaryKeyColumn, false); err != nil {
		return err
	}
	return preflight.CheckTable(ctx, gw.History, targetConn.Database, s.TableName, s.DateColumn, s.PrimaryKeyColumn, true)
}
