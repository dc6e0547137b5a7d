// Package csvwriter streams ordered, column-tagged rows into UTF-8-with-BOM
// CSV part files, implementing the cold-tier export described in spec.md
// §4.6.
package csvwriter

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dbsmedya/goarchive/internal/types"
)

// utf8BOM is written at the start of every part file (spec.md §4.6, Open
// Question pinned to "always written").
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options configures one WriteParts call.
type Options struct {
	RootFolder       string
	Table            string
	FromDate         time.Time
	ToDate           time.Time
	Delimiter        string
	MaxRowsPerFile   int
	FileNameTemplate string
}

// PartFile describes one file WriteParts produced.
type PartFile struct {
	Path     string
	PartDir  string
	PartIdx  int
	RowCount int
}

// Writer streams rows into one or more delimited part files.
type Writer struct{}

// NewWriter constructs a Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// WriteParts partitions rows into chunks of at most opts.MaxRowsPerFile,
// writing each chunk to its own UTF-8-with-BOM file under
// <RootFolder>/<Table>/<yyyyMM of ToDate>/. The folder is created
// idempotently. Every part file is fully written and closed before
// WriteParts returns, satisfying the invariant that a part file is complete
// before the engine deletes the corresponding source rows (spec.md §3).
func (w *Writer) WriteParts(rows []types.Row, columns []string, opts Options) ([]PartFile, error) {
	if opts.MaxRowsPerFile <= 0 {
		return nil, fmt.Errorf("csvwriter: max rows per file must be positive")
	}
	if opts.Delimiter == "" {
		return nil, fmt.Errorf("csvwriter: delimiter must not be empty")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	partitionDir := filepath.Join(opts.RootFolder, opts.Table, opts.ToDate.Format("200601"))
	if err := os.MkdirAll(partitionDir, 0o755); err != nil {
		return nil, fmt.Errorf("csvwriter: failed to create partition folder %q: %w", partitionDir, err)
	}

	var parts []PartFile
	partIdx := 0
	for start := 0; start < len(rows); start += opts.MaxRowsPerFile {
		end := start + opts.MaxRowsPerFile
		if end > len(rows) {
			end = len(rows)
		}
		partIdx++

		chunk := rows[start:end]
		path, err := w.writeOnePart(partitionDir, columns, chunk, opts, partIdx)
		if err != nil {
			return parts, err
		}

		parts = append(parts, PartFile{
			Path:     path,
			PartDir:  partitionDir,
			PartIdx:  partIdx,
			RowCount: len(chunk),
		})
	}

	return parts, nil
}

func (w *Writer) writeOnePart(dir string, columns []string, chunk []types.Row, opts Options, partIdx int) (string, error) {
	fileName := resolveFileName(opts.FileNameTemplate, opts.Table, opts.FromDate, opts.ToDate, partIdx)
	path := filepath.Join(dir, fileName)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("csvwriter: failed to open part file %q: %w", path, err)
	}
	defer file.Close()

	bw := bufio.NewWriter(file)
	if _, err := bw.Write(utf8BOM); err != nil {
		return "", fmt.Errorf("csvwriter: failed to write BOM to %q: %w", path, err)
	}

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = EscapeCsv(c, opts.Delimiter)
	}
	if _, err := bw.WriteString(strings.Join(header, opts.Delimiter) + "\n"); err != nil {
		return "", fmt.Errorf("csvwriter: failed to write header to %q: %w", path, err)
	}

	for _, row := range chunk {
		fields := make([]string, len(columns))
		for i, c := range columns {
			val, _ := types.Get(row, c)
			fields[i] = EscapeCsv(val, opts.Delimiter)
		}
		if _, err := bw.WriteString(strings.Join(fields, opts.Delimiter) + "\n"); err != nil {
			return "", fmt.Errorf("csvwriter: failed to write row to %q: %w", path, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("csvwriter: failed to flush %q: %w", path, err)
	}

	return path, nil
}

// resolveFileName substitutes the documented tokens into template.
// {PartIndex} is zero-padded to width 2 (spec.md §3 CsvFilePart).
func resolveFileName(template, table string, fromDate, toDate time.Time, partIdx int) string {
	name := template
	name = strings.ReplaceAll(name, "{TableName}", table)
	name = strings.ReplaceAll(name, "{FromDate:yyyyMMdd}", fromDate.Format("20060102"))
	name = strings.ReplaceAll(name, "{ToDate:yyyyMMdd}", toDate.Format("20060102"))
	name = strings.ReplaceAll(name, "{PartIndex}", fmt.Sprintf("%02d", partIdx))
	return name
}

// EscapeCsv stringifies value using invariant-culture formatting and quotes
// it per spec.md §4.6: a nil value becomes the empty string; any value
// whose string form contains delimiter, a double quote, or a newline is
// wrapped in double quotes with internal quotes doubled.
func EscapeCsv(value any, delimiter string) string {
	if value == nil {
		return ""
	}

	s := stringify(value)
	if strings.Contains(s, delimiter) || strings.ContainsAny(s, "\"\n\r") {
		s = strings.ReplaceAll(s, `"`, `""`)
		return `"` + s + `"`
	}
	return s
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format("2006-01-02 15:04:05")
	case bool:
		return strconv.FormatBool(v)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
