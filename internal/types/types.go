package types

// Provenance column names injected in front of every loaded table.
const (
	SourceFileColumn = "SourceFile"
	SheetNameColumn  = "SheetName"
)

// CSVSheet is the only sheet identifier a delimited-text file exposes.
const CSVSheet = "CSV"

// DefaultSentinel replaces every missing cell once a table is cleaned.
const DefaultSentinel = "-"

// RawGrid is an untyped extract as read from a source: no header, no type
// inference. The empty string is the absent cell.
type RawGrid [][]string

// Width returns the length of the widest row.
func (g RawGrid) Width() int {
	w := 0
	for _, row := range g {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}

// Table is a finished extract. Rows are positionally aligned with Columns.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table holds no data rows.
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// ColumnIndex returns the position of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns every value of the named column in row order.
func (t *Table) Column(name string) []string {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values
}

// FileDescriptor is one uploaded file. Sheet identifiers are derived by the
// loader on demand.
type FileDescriptor struct {
	Name    string
	Content []byte
}

// SheetCatalog summarises which sheets the uploaded files expose.
type SheetCatalog struct {
	// Sheets is the sorted union of sheet identifiers.
	Sheets []string
	// PerFile maps a file name to its sheets in workbook order.
	PerFile map[string][]string
	// FileCount maps a sheet identifier to the number of files holding it.
	FileCount map[string]int
}

// Summary describes a consolidated table for display.
type Summary struct {
	Rows         int
	Columns      int
	UniqueSheets int
}

// Pair addresses one (file, sheet) unit of work.
type Pair struct {
	File  string
	Sheet string
}

func (p Pair) String() string {
	return p.File + " - " + p.Sheet
}
