package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goarchive/internal/archiver"
	"github.com/dbsmedya/goarchive/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage archive_settings rows",
	Long: `Settings lists, adds, enables, disables, and removes the rows in
archive_settings that drive each run: the source/target connections,
table and column names, cutoffs, and CSV export options for one table.`,
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every archive setting",
	RunE:  runSettingsList,
}

var (
	addSource         string
	addTarget         string
	addTable          string
	addDateColumn     string
	addPKColumn       string
	addOnlineCutoff   string
	addHistoryCutoff  string
	addBatchSize      int
	addCsvEnabled     bool
	addCsvRootFolder  string
	addPhysicalDelete bool
)

var settingsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new archive setting",
	RunE:  runSettingsAdd,
}

var settingsEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable an archive setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsSetEnabled(true),
}

var settingsDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable an archive setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsSetEnabled(false),
}

var settingsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an archive setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsRemove,
}

func init() {
	settingsAddCmd.Flags().StringVar(&addSource, "source", "", "Source connection name (required)")
	settingsAddCmd.Flags().StringVar(&addTarget, "target", "", "Target (history) connection name (required)")
	settingsAddCmd.Flags().StringVar(&addTable, "table", "", "Table name, identical on source and target (required)")
	settingsAddCmd.Flags().StringVar(&addDateColumn, "date-column", "", "Age column used for cutoff comparisons (required)")
	settingsAddCmd.Flags().StringVar(&addPKColumn, "pk-column", "", "Primary key column (required)")
	settingsAddCmd.Flags().StringVar(&addOnlineCutoff, "online-cutoff", "", "Rows older than this date (YYYY-MM-DD) move out of online (required)")
	settingsAddCmd.Flags().StringVar(&addHistoryCutoff, "history-cutoff", "", "Rows older than this date (YYYY-MM-DD) export out of history (required)")
	settingsAddCmd.Flags().IntVar(&addBatchSize, "batch-size", 1000, "Starting batch size")
	settingsAddCmd.Flags().BoolVar(&addCsvEnabled, "csv", false, "Enable CSV export for this table")
	settingsAddCmd.Flags().StringVar(&addCsvRootFolder, "csv-root", "", "Root folder for CSV export")
	settingsAddCmd.Flags().BoolVar(&addPhysicalDelete, "physical-delete", true, "Delete source rows after a successful move")
	for _, name := range []string{"source", "target", "table", "date-column", "pk-column", "online-cutoff", "history-cutoff"} {
		settingsAddCmd.MarkFlagRequired(name)
	}

	settingsCmd.AddCommand(settingsListCmd, settingsAddCmd, settingsEnableCmd, settingsDisableCmd, settingsRemoveCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsList(cmd *cobra.Command, args []string) error {
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

	printHeader("Archive Settings")
	for _, s := range all {
		status := "enabled"
		if !s.Enabled {
			status = "disabled"
		}
		fmt.Fprintf(outputWriter, "  [%d] %-20s %s -> %s  online>%s history>%s  %s\n",
			s.ID, s.TableName, s.SourceConnection, s.TargetConnection,
			s.OnlineCutoff.Format("2006-01-02"), s.HistoryCutoff.Format("2006-01-02"), status)
	}
	return nil
}

func runSettingsAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	onlineCutoff, err := time.Parse("2006-01-02", addOnlineCutoff)
	if err != nil {
		return fmt.Errorf("invalid --online-cutoff: %w", err)
	}
	historyCutoff, err := time.Parse("2006-01-02", addHistoryCutoff)
	if err != nil {
		return fmt.Errorf("invalid --history-cutoff: %w", err)
	}

	controlDB, err := openControl(ctx, cfg)
	if err != nil {
		return err
	}
	defer controlDB.Close()

	store := settings.NewStore(controlDB, log)
	if err := store.InitializeTables(ctx); err != nil {
		return err
	}

	setting := &archiver.ArchiveSetting{
		SourceConnection:      addSource,
		TargetConnection:      addTarget,
		TableName:             addTable,
		DateColumn:            addDateColumn,
		PrimaryKeyColumn:      addPKColumn,
		OnlineCutoff:          onlineCutoff,
		HistoryCutoff:         historyCutoff,
		BatchSize:             addBatchSize,
		CsvEnabled:            addCsvEnabled,
		CsvRootFolder:         addCsvRootFolder,
		PhysicalDeleteEnabled: addPhysicalDelete,
		Enabled:               true,
	}

	id, err := store.Create(ctx, setting)
	if err != nil {
		return err
	}
	fmt.Fprintf(outputWriter, "created archive setting %d for table %q\n", id, addTable)
	return nil
}

func runSettingsSetEnabled(enabled bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		id, err := parseSettingID(args[0])
		if err != nil {
			return err
		}

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
		if err := store.SetEnabled(ctx, id, enabled); err != nil {
			return err
		}

		verb := "disabled"
		if enabled {
			verb = "enabled"
		}
		fmt.Fprintf(outputWriter, "%s archive setting %d\n", verb, id)
		return nil
	}
}

func runSettingsRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id, err := parseSettingID(args[0])
	if err != nil {
		return err
	}

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
	if err := store.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(outputWriter, "removed archive setting %d\n", id)
	return nil
}

func parseSettingID(s string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid setting id %q: %w", s, err)
	}
	return id, nil
}
