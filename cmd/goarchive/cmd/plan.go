package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goarchive/internal/archiver"
	"github.com/dbsmedya/goarchive/internal/mermaidascii"
	"github.com/dbsmedya/goarchive/internal/settings"
)

// outputWriter is used for printing output, can be overridden in tests
var outputWriter io.Writer = os.Stdout

// setOutputWriter sets the output writer (used for testing)
func setOutputWriter(w io.Writer) {
	outputWriter = w
}

// resetOutputWriter resets output to stdout (used for testing)
func resetOutputWriter() {
	outputWriter = os.Stdout
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show each table's tier-flow diagram and cutoffs",
	Long: `Plan renders, for every archive setting (enabled or not), the tier flow a row
travels through: online, then history, then (if CSV export is enabled)
cold storage, alongside the configured cutoffs and batch size.

Example:
  goarchive plan --config archiver.yaml`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
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

	for _, s := range all {
		if err := printTierFlow(s); err != nil {
			return fmt.Errorf("failed to render plan for %q: %w", s.TableName, err)
		}
		fmt.Fprintln(outputWriter)
	}

	return nil
}

// printTierFlow renders a single setting's online -> history [-> csv] tier
// diagram using mermaid-ascii, plus a summary of its cutoffs and batch size.
func printTierFlow(s archiver.ArchiveSetting) error {
	output, err := mermaidascii.RenderDiagram(tierFlowSyntax(s), nil)
	if err != nil {
		return err
	}

	status := "enabled"
	if !s.Enabled {
		status = "disabled"
	}

	summaryLines := []string{
		fmt.Sprintf("[ %s ]", s.TableName),
		strings.Repeat("-", len(s.TableName)+4),
		fmt.Sprintf("Status:          %s", status),
		fmt.Sprintf("Online cutoff:   %s", s.OnlineCutoff.Format("2006-01-02")),
		fmt.Sprintf("History cutoff:  %s", s.HistoryCutoff.Format("2006-01-02")),
		fmt.Sprintf("Batch size:      %d", s.BatchSize),
		fmt.Sprintf("CSV export:      %t", s.CsvEnabled),
	}

	printHeader("Tier Flow: %s", s.TableName)
	fmt.Fprintln(outputWriter)
	printSideBySide(output, summaryLines, 4)
	return nil
}

// tierFlowSyntax builds the mermaid graph a row in this setting travels
// through: online to history always, then on to cold CSV storage only when
// export is enabled.
func tierFlowSyntax(s archiver.ArchiveSetting) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	sb.WriteString("    online -->|age past online cutoff| history\n")
	if s.CsvEnabled {
		sb.WriteString("    history -->|age past history cutoff| csv\n")
	}
	return sb.String()
}

// printHeader prints a formatted header
func printHeader(format string, args ...interface{}) {
	title := fmt.Sprintf(format, args...)
	width := len(title) + 4
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
	fmt.Fprintf(outputWriter, "  %s\n", title)
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
}

// printSideBySide prints two blocks of text side by side, padding is the
// minimum spaces between the two columns.
func printSideBySide(leftContent string, rightLines []string, padding int) {
	leftLines := strings.Split(strings.TrimRight(leftContent, "\n"), "\n")

	leftWidth := 0
	for _, line := range leftLines {
		w := visualWidth(line)
		if w > leftWidth {
			leftWidth = w
		}
	}

	leftHeight := len(leftLines)
	rightHeight := len(rightLines)
	maxHeight := leftHeight
	if rightHeight > maxHeight {
		maxHeight = rightHeight
	}

	for i := 0; i < maxHeight; i++ {
		leftPart := ""
		rightPart := ""

		if i < leftHeight {
			leftPart = leftLines[i]
		}
		if i < rightHeight {
			rightPart = rightLines[i]
		}

		fmt.Fprint(outputWriter, leftPart)

		spacesNeeded := leftWidth - visualWidth(leftPart) + padding
		if spacesNeeded > 0 {
			fmt.Fprint(outputWriter, strings.Repeat(" ", spacesNeeded))
		}

		fmt.Fprintln(outputWriter, rightPart)
	}
}

// visualWidth returns the number of runes in s; every rune counts as one
// column, so wide characters are not measured as two
func visualWidth(s string) int {
	width := 0
	for range s {
		width++
	}
	return width
}
