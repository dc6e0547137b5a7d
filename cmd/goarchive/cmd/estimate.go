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

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Project how many rows each enabled setting would move",
	Long: `Estimate counts, for every enabled setting, how many online rows
are older than the online cutoff and how many history rows are older
than the history cutoff, without moving, exporting, or deleting
anything.

Example:
  goarchive estimate --config archiver.yaml`,
	RunE: runEstimate,
}

func init() {
	rootCmd.AddCommand(estimateCmd)
}

func runEstimate(cmd *cobra.Command, args []string) error {
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

	printHeader("Estimated Archive Scope")
	for _, s := range all {
		fmt.Fprintln(outputWriter, estimateLine(ctx, cfg, s))
	}

	return nil
}

// estimateLine reports one setting's projected row counts as a single
// formatted line, or an explanatory message if its connections or tables
// cannot currently be reached.
func estimateLine(ctx context.Context, cfg *config.Config, s archiver.ArchiveSetting) string {
	if !s.Enabled {
		return fmt.Sprintf("  %-24s disabled", s.TableName)
	}

	sourceConn, err := cfg.Resolve(s.SourceConnection)
	if err != nil {
		return fmt.Sprintf("  %-24s error: %s", s.TableName, err)
	}
	targetConn, err := cfg.Resolve(s.TargetConnection)
	if err != nil {
		return fmt.Sprintf("  %-24s error: %s", s.TableName, err)
	}

	gw := database.NewGateway()
	if err := gw.OpenTables(ctx, sourceConn, targetConn); err != nil {
		return fmt.Sprintf("  %-24s error: %s", s.TableName, err)
	}
	defer gw.Close()

	toMove, err := gw.CountBefore(ctx, gw.Online, s.TableName, s.DateColumn, s.OnlineCutoff)
	if err != nil {
		return fmt.Sprintf("  %-24s error: %s", s.TableName, err)
	}
	toExport, err := gw.CountBefore(ctx, gw.History, s.TableName, s.DateColumn, s.HistoryCutoff)
	if err != nil {
		return fmt.Sprintf("  %-24s error: %s", s.TableName, err)
	}

	return fmt.Sprintf("  %-24s online>%s: %d rows to move    history>%s: %d rows to export",
		s.TableName, s.OnlineCutoff.Format("2006-01-02"), toMove, s.HistoryCutoff.Format("2006-01-02"), toExport)
}
