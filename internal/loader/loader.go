// Package loader reads one (file, sheet) pair into a finished table.
package loader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/nconklindev/conso2b/internal/detect"
	"github.com/nconklindev/conso2b/internal/types"
)

// Format is the ingestion path chosen from a file name's extension.
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatSpreadsheet
	// FormatLegacySpreadsheet is a BIFF (Excel 97-2003) workbook.
	FormatLegacySpreadsheet
)

var (
	CSVExtensions         = []string{".csv"}
	SpreadsheetExtensions = []string{".xlsx", ".xlsm", ".xlsb"}
	LegacyExtensions      = []string{".xls"}
)

// DefaultNAValues are cell texts read as blank, the same set pandas treats
// as missing by default.
var DefaultNAValues = []string{
	"#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None",
	"n/a", "nan", "null",
}

var ErrUnsupportedFormat = errors.New("unsupported file type")

// IngestError reports a pair that could not be read or parsed.
type IngestError struct {
	File  string
	Sheet string
	Err   error
}

func (e *IngestError) Error() string {
	if e.Sheet == "" {
		return fmt.Sprintf("error reading %s: %v", e.File, e.Err)
	}
	return fmt.Sprintf("error reading %s (sheet %s): %v", e.File, e.Sheet, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// FormatOf picks the ingestion path from the file extension alone.
func FormatOf(name string) Format {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range CSVExtensions {
		if ext == e {
			return FormatCSV
		}
	}
	for _, e := range SpreadsheetExtensions {
		if ext == e {
			return FormatSpreadsheet
		}
	}
	for _, e := range LegacyExtensions {
		if ext == e {
			return FormatLegacySpreadsheet
		}
	}
	return FormatUnknown
}

// formatOf refines FormatOf with the content: a .xls that is really an OOXML
// package goes through excelize.
func formatOf(fd types.FileDescriptor) Format {
	format := FormatOf(fd.Name)
	if format == FormatLegacySpreadsheet && bytes.HasPrefix(fd.Content, zipMagic) {
		return FormatSpreadsheet
	}
	return format
}

// Supported reports whether name has an extension the loader can ingest.
func Supported(name string) bool {
	return FormatOf(name) != FormatUnknown
}

type Options struct {
	Detect        detect.Options
	NAValues      []string
	RawCellValues bool
}

func DefaultOptions() Options {
	return Options{
		Detect:   detect.DefaultOptions(),
		NAValues: DefaultNAValues,
	}
}

type Loader struct {
	detector      *detect.Detector
	naValues      map[string]struct{}
	rawCellValues bool
}

func New(opts Options) *Loader {
	na := make(map[string]struct{}, len(opts.NAValues))
	for _, v := range opts.NAValues {
		na[v] = struct{}{}
	}
	return &Loader{
		detector:      detect.New(opts.Detect),
		naValues:      na,
		rawCellValues: opts.RawCellValues,
	}
}

// Sheets lists the sheet identifiers of a file in workbook order. Delimited
// text exposes the single identifier "CSV".
func (l *Loader) Sheets(fd types.FileDescriptor) ([]string, error) {
	switch formatOf(fd) {
	case FormatCSV:
		return []string{types.CSVSheet}, nil
	case FormatLegacySpreadsheet:
		sheets, err := legacySheets(fd.Content)
		if err != nil {
			return nil, &IngestError{File: fd.Name, Err: err}
		}
		return sheets, nil
	case FormatSpreadsheet:
		f, err := excelize.OpenReader(bytes.NewReader(fd.Content))
		if err != nil {
			return nil, &IngestError{File: fd.Name, Err: fmt.Errorf("open workbook: %w", err)}
		}
		defer f.Close()
		return f.GetSheetList(), nil
	default:
		return nil, &IngestError{File: fd.Name, Err: fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(fd.Name))}
	}
}

// Load reads sheet of fd, detects its header and returns the cleaned table.
// Detection notes are appended to log when it is not nil.
func (l *Loader) Load(fd types.FileDescriptor, sheet string, log *types.ProcessingLog) (*types.Table, error) {
	grid, err := l.ReadGrid(fd, sheet)
	if err != nil {
		return nil, err
	}

	table, _ := l.detector.Table(grid, types.Pair{File: fd.Name, Sheet: sheet}, log)
	return table, nil
}

// ReadGrid returns the raw cells of a sheet with blanks and NA tokens
// normalized to the empty string and rows padded to a common width.
func (l *Loader) ReadGrid(fd types.FileDescriptor, sheet string) (types.RawGrid, error) {
	var (
		rows [][]string
		err  error
	)

	switch formatOf(fd) {
	case FormatCSV:
		rows, err = readCSV(fd.Content)
	case FormatLegacySpreadsheet:
		rows, err = readLegacy(fd.Content, sheet)
	case FormatSpreadsheet:
		rows, err = l.readSpreadsheet(fd.Content, sheet)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(fd.Name))
	}
	if err != nil {
		return nil, &IngestError{File: fd.Name, Sheet: sheet, Err: err}
	}

	return l.normalize(rows), nil
}

func readCSV(content []byte) ([][]string, error) {
	if !utf8.Valid(content) {
		return nil, errors.New("file is not valid UTF-8")
	}

	decoded := transform.NewReader(bytes.NewReader(content), unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		rows = append(rows, record)
	}

	return rows, nil
}

func (l *Loader) readSpreadsheet(content []byte, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: l.rawCellValues})
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}

	return rows, nil
}

func (l *Loader) normalize(rows [][]string) types.RawGrid {
	grid := types.RawGrid(rows)
	width := grid.Width()

	for i, row := range grid {
		if len(row) < width {
			padded := make([]string, width)
			copy(padded, row)
			row = padded
			grid[i] = row
		}
		for j, cell := range row {
			if _, ok := l.naValues[cell]; ok {
				row[j] = ""
			}
		}
	}

	return grid
}
