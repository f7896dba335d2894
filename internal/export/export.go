// Package export serializes a consolidated table for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/nconklindev/conso2b/internal/types"
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ConsolidatedSheet names the single worksheet of an unsplit workbook.
const ConsolidatedSheet = "Consolidated"

const maxSheetName = 31

// ParseFormat accepts "xlsx" or "csv" in any case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", &ExportError{Format: Format(s), Err: fmt.Errorf("unknown format %q", s)}
	}
}

// ExportError reports a failed export. The table being exported is untouched.
type ExportError struct {
	Format Format
	Err    error
}

func (e *ExportError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("export failed: %v", e.Err)
	}
	return fmt.Sprintf("export to %s failed: %v", e.Format, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// SelectColumns returns the columns to export in table order: the selected
// names plus the provenance columns, which are always kept.
func SelectColumns(table *types.Table, selected []string) ([]string, error) {
	want := map[string]bool{
		types.SourceFileColumn: true,
		types.SheetNameColumn:  true,
	}
	for _, name := range selected {
		if table.ColumnIndex(name) < 0 {
			return nil, &ExportError{Err: fmt.Errorf("unknown column %q", name)}
		}
		want[name] = true
	}

	var cols []string
	for _, c := range table.Columns {
		if want[c] {
			cols = append(cols, c)
		}
	}
	return cols, nil
}

// FileName returns the download name for an export started at now.
func FileName(format Format, now time.Time) string {
	return fmt.Sprintf("consolidated_data_%s.%s", now.Format("20060102_150405"), format)
}

// Write dispatches to WriteCSV or WriteXLSX. split only applies to xlsx.
func Write(w io.Writer, format Format, table *types.Table, columns []string, split bool) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, table, columns)
	case FormatXLSX:
		return WriteXLSX(w, table, columns, split)
	default:
		return &ExportError{Format: format, Err: fmt.Errorf("unknown format %q", format)}
	}
}

// WriteFile writes the export into dir under FileName and returns its path.
func WriteFile(dir string, format Format, table *types.Table, columns []string, split bool, now time.Time) (string, error) {
	path := filepath.Join(dir, FileName(format, now))

	f, err := os.Create(path)
	if err != nil {
		return "", &ExportError{Format: format, Err: err}
	}

	if err := Write(f, format, table, columns, split); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", &ExportError{Format: format, Err: err}
	}

	return path, nil
}

// WriteCSV writes a UTF-8 CSV with a byte-order mark so spreadsheet
// applications pick the right encoding.
func WriteCSV(w io.Writer, table *types.Table, columns []string) error {
	idx, err := indices(table, columns)
	if err != nil {
		return &ExportError{Format: FormatCSV, Err: err}
	}

	bom := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	writer := csv.NewWriter(bom)

	if err := writer.Write(columns); err != nil {
		return &ExportError{Format: FormatCSV, Err: err}
	}
	record := make([]string, len(idx))
	for _, row := range table.Rows {
		for i, j := range idx {
			record[i] = row[j]
		}
		if err := writer.Write(record); err != nil {
			return &ExportError{Format: FormatCSV, Err: err}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return &ExportError{Format: FormatCSV, Err: err}
	}
	if err := bom.Close(); err != nil {
		return &ExportError{Format: FormatCSV, Err: err}
	}
	return nil
}

// WriteXLSX writes a workbook with a bold, frozen header row. With split set
// every distinct SheetName value gets its own worksheet, in sorted order;
// otherwise all rows go to a single "Consolidated" sheet.
func WriteXLSX(w io.Writer, table *types.Table, columns []string, split bool) error {
	idx, err := indices(table, columns)
	if err != nil {
		return &ExportError{Format: FormatXLSX, Err: err}
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return &ExportError{Format: FormatXLSX, Err: err}
	}

	groups := []group{{name: ConsolidatedSheet, rows: allRows(table)}}
	if split && table.ColumnIndex(types.SheetNameColumn) >= 0 {
		groups = groupBySheet(table)
	}

	names := make(map[string]bool)
	for i, g := range groups {
		name := uniqueSheetName(SheetName(g.name), names)

		if i == 0 {
			err = f.SetSheetName("Sheet1", name)
		} else {
			_, err = f.NewSheet(name)
		}
		if err != nil {
			return &ExportError{Format: FormatXLSX, Err: fmt.Errorf("create sheet %q: %w", name, err)}
		}

		if err := writeSheet(f, name, headerStyle, table, columns, idx, g.rows); err != nil {
			return &ExportError{Format: FormatXLSX, Err: fmt.Errorf("sheet %q: %w", name, err)}
		}
	}

	if err := f.Write(w); err != nil {
		return &ExportError{Format: FormatXLSX, Err: err}
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, table *types.Table, columns []string, idx, rows []int) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}

	if err := sw.SetPanes(&excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header, excelize.RowOpts{StyleID: headerStyle}); err != nil {
		return err
	}

	for n, r := range rows {
		values := make([]interface{}, len(idx))
		for i, j := range idx {
			values[i] = table.Rows[r][j]
		}
		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, values); err != nil {
			return err
		}
	}

	return sw.Flush()
}

type group struct {
	name string
	rows []int
}

func allRows(table *types.Table) []int {
	rows := make([]int, len(table.Rows))
	for i := range rows {
		rows[i] = i
	}
	return rows
}

func groupBySheet(table *types.Table) []group {
	col := table.ColumnIndex(types.SheetNameColumn)

	byName := make(map[string][]int)
	for i, row := range table.Rows {
		byName[row[col]] = append(byName[row[col]], i)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]group, len(names))
	for i, name := range names {
		groups[i] = group{name: name, rows: byName[name]}
	}
	return groups
}

var sheetNameReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "[", "_", "]", "_",
)

// SheetName turns a SheetName value into a legal worksheet name: characters
// Excel rejects become "_" and the result is cut to 31 characters.
func SheetName(s string) string {
	s = sheetNameReplacer.Replace(s)
	s = strings.Trim(s, "'")
	if s == "" {
		s = "Sheet"
	}
	return truncate(s, maxSheetName)
}

func uniqueSheetName(name string, used map[string]bool) string {
	candidate := name
	for n := 1; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf("_%d", n)
		candidate = truncate(name, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func indices(table *types.Table, columns []string) ([]int, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("no columns selected")
	}
	idx := make([]int, len(columns))
	for i, c := range columns {
		j := table.ColumnIndex(c)
		if j < 0 {
			return nil, fmt.Errorf("unknown column %q", c)
		}
		idx[i] = j
	}
	return idx, nil
}
