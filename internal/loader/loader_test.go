package loader

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/nconklindev/conso2b/internal/types"
)

type sheetData struct {
	name string
	rows [][]string
}

func workbook(t *testing.T, sheets ...sheetData) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", s.name))
		} else {
			_, err := f.NewSheet(s.name)
			require.NoError(t, err)
		}
		for r, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			values := row
			require.NoError(t, f.SetSheetRow(s.name, cell, &values))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		name     string
		expected Format
	}{
		{"jan.csv", FormatCSV},
		{"JAN.CSV", FormatCSV},
		{"jan.xlsx", FormatSpreadsheet},
		{"jan.xls", FormatLegacySpreadsheet},
		{"JAN.XLS", FormatLegacySpreadsheet},
		{"jan.xlsm", FormatSpreadsheet},
		{"jan.xlsb", FormatSpreadsheet},
		{"jan.txt", FormatUnknown},
		{"jan", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatOf(tt.name))
			assert.Equal(t, tt.expected != FormatUnknown, Supported(tt.name))
		})
	}
}

func TestSheets(t *testing.T) {
	l := New(DefaultOptions())

	sheets, err := l.Sheets(types.FileDescriptor{Name: "a.csv", Content: []byte("x\n1\n")})
	require.NoError(t, err)
	assert.Equal(t, []string{"CSV"}, sheets)

	content := workbook(t,
		sheetData{name: "Read me"},
		sheetData{name: "B2B", rows: [][]string{{"h"}, {"1"}}},
		sheetData{name: "B2BA"},
	)
	sheets, err = l.Sheets(types.FileDescriptor{Name: "a.xlsx", Content: content})
	require.NoError(t, err)
	assert.Equal(t, []string{"Read me", "B2B", "B2BA"}, sheets)
}

func TestSheetsErrors(t *testing.T) {
	l := New(DefaultOptions())

	_, err := l.Sheets(types.FileDescriptor{Name: "notes.txt", Content: []byte("x")})
	var ingestErr *IngestError
	require.ErrorAs(t, err, &ingestErr)
	assert.Equal(t, "notes.txt", ingestErr.File)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = l.Sheets(types.FileDescriptor{Name: "broken.xlsx", Content: []byte("not a zip")})
	require.ErrorAs(t, err, &ingestErr)
	assert.Equal(t, "broken.xlsx", ingestErr.File)
}

func TestLoadSpreadsheetDefaultHeader(t *testing.T) {
	content := workbook(t, sheetData{name: "B2B", rows: [][]string{
		{"h1", "h2"},
		{"1", "2"},
	}})

	table, err := New(DefaultOptions()).Load(types.FileDescriptor{Name: "Jan.xlsx", Content: content}, "B2B", nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"h1", "h2"}, table.Columns)
	assert.Equal(t, [][]string{{"1", "2"}}, table.Rows)
}

func TestLoadSpreadsheetTwoRowHeader(t *testing.T) {
	content := workbook(t, sheetData{name: "B2B", rows: [][]string{
		{"Goods and Services Tax - GSTR-2B"},
		{},
		{"Financial Year", "2024-25"},
		{"Tax Period", "April"},
		{"GSTIN of supplier", "Trade/Legal name", "Invoice details", "", "Tax details"},
		{"", "", "Invoice number", "Invoice Date", "Integrated Tax(₹)"},
		{"27AAAAA0000A1Z5", "Acme", "INV-1", "01/04/2024", "180"},
		{},
		{"29BBBBB1111B1Z3", "Beta", "INV-2", "", "NA"},
	}})
	log := types.NewProcessingLog(nil, nil)

	table, err := New(DefaultOptions()).Load(types.FileDescriptor{Name: "Apr.xlsx", Content: content}, "B2B", log)

	require.NoError(t, err)
	assert.Equal(t, []string{
		"GSTIN of supplier",
		"Trade/Legal name",
		"Invoice details_Invoice number",
		"Invoice Date",
		"Tax details_Integrated Tax(₹)",
	}, table.Columns)
	assert.Equal(t, [][]string{
		{"27AAAAA0000A1Z5", "Acme", "INV-1", "01/04/2024", "180"},
		{"29BBBBB1111B1Z3", "Beta", "INV-2", "-", "-"},
	}, table.Rows)
	require.Equal(t, 1, log.Len())
	assert.Equal(t, "Detected two-row header in Apr.xlsx", log.Entries()[0].Message)
}

func TestLoadCSV(t *testing.T) {
	content := []byte("\xEF\xBB\xBFname,amount,note\nA,NA,\nB,5,\n,,\n")

	table, err := New(DefaultOptions()).Load(types.FileDescriptor{Name: "Feb.csv", Content: content}, types.CSVSheet, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"name", "amount"}, table.Columns)
	assert.Equal(t, [][]string{{"A", "-"}, {"B", "5"}}, table.Rows)
}

func TestLoadCSVMarkerRow(t *testing.T) {
	content := []byte("GSTR-2B export\n\nGSTIN of supplier,Invoice number\n27AAAAA0000A1Z5,INV-9\n")
	log := types.NewProcessingLog(nil, nil)

	table, err := New(DefaultOptions()).Load(types.FileDescriptor{Name: "Mar.csv", Content: content}, types.CSVSheet, log)

	require.NoError(t, err)
	assert.Equal(t, []string{"GSTIN of supplier", "Invoice number"}, table.Columns)
	assert.Equal(t, [][]string{{"27AAAAA0000A1Z5", "INV-9"}}, table.Rows)
	// Blank lines are skipped, so the header is the second record.
	assert.Equal(t, "Found header at row 2 in Mar.csv", log.Entries()[0].Message)
}

func TestLoadCSVRaggedRows(t *testing.T) {
	content := []byte("a,b\n1\n2,,x\n")

	table, err := New(DefaultOptions()).Load(types.FileDescriptor{Name: "r.csv", Content: content}, types.CSVSheet, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "Column_2"}, table.Columns)
	assert.Equal(t, [][]string{{"1", "-"}, {"2", "x"}}, table.Rows)
}

func TestLoadErrors(t *testing.T) {
	l := New(DefaultOptions())
	content := workbook(t, sheetData{name: "B2B", rows: [][]string{{"h"}, {"1"}}})

	tests := []struct {
		name  string
		fd    types.FileDescriptor
		sheet string
	}{
		{"Invalid UTF-8", types.FileDescriptor{Name: "bad.csv", Content: []byte{0xff, 0xfe, 'a', ',', 'b'}}, types.CSVSheet},
		{"Corrupt workbook", types.FileDescriptor{Name: "bad.xlsx", Content: []byte("garbage")}, "B2B"},
		{"Missing sheet", types.FileDescriptor{Name: "ok.xlsx", Content: content}, "B2C"},
		{"Unknown type", types.FileDescriptor{Name: "ok.pdf", Content: content}, "B2B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := l.Load(tt.fd, tt.sheet, nil)

			assert.Nil(t, table)
			var ingestErr *IngestError
			require.ErrorAs(t, err, &ingestErr)
			assert.Equal(t, tt.fd.Name, ingestErr.File)
			assert.Equal(t, tt.sheet, ingestErr.Sheet)
			assert.Contains(t, err.Error(), tt.fd.Name)
		})
	}
}

func TestLegacyWorkbook(t *testing.T) {
	l := New(DefaultOptions())
	ooxml := workbook(t, sheetData{name: "B2B", rows: [][]string{{"h1", "h2"}, {"1", "2"}}})
	oleHeader := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 64)...)

	tests := []struct {
		name    string
		content []byte
		wantErr string
	}{
		{"OOXML package saved as xls", ooxml, ""},
		{"Truncated BIFF stream", oleHeader, "open xls workbook"},
		{"Not a workbook", []byte("garbage"), "open xls workbook"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd := types.FileDescriptor{Name: "Jan.xls", Content: tt.content}

			sheets, sheetsErr := l.Sheets(fd)
			table, loadErr := l.Load(fd, "B2B", nil)

			if tt.wantErr == "" {
				require.NoError(t, sheetsErr)
				require.NoError(t, loadErr)
				assert.Equal(t, []string{"B2B"}, sheets)
				assert.Equal(t, []string{"h1", "h2"}, table.Columns)
				assert.Equal(t, [][]string{{"1", "2"}}, table.Rows)
				return
			}

			var ingestErr *IngestError
			require.ErrorAs(t, sheetsErr, &ingestErr)
			assert.Equal(t, "Jan.xls", ingestErr.File)
			assert.ErrorContains(t, sheetsErr, tt.wantErr)

			assert.Nil(t, table)
			require.ErrorAs(t, loadErr, &ingestErr)
			assert.Equal(t, "B2B", ingestErr.Sheet)
			assert.ErrorContains(t, loadErr, tt.wantErr)
		})
	}
}

func TestTrimTrailingEmpty(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
		want [][]string
	}{
		{"Nothing to trim", [][]string{{"a"}, {"1"}}, [][]string{{"a"}, {"1"}}},
		{"Blank tail", [][]string{{"a"}, {"1"}, nil, {"", ""}}, [][]string{{"a"}, {"1"}}},
		{"Inner blank kept", [][]string{{"a"}, nil, {"1"}}, [][]string{{"a"}, nil, {"1"}}},
		{"All blank", [][]string{nil, {""}}, [][]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, trimTrailingEmpty(tt.rows))
		})
	}
}

func TestReadGridNormalizesNA(t *testing.T) {
	opts := DefaultOptions()
	opts.NAValues = []string{"n/a"}
	content := []byte("x,y\nn/a,NA\n")

	grid, err := New(opts).ReadGrid(types.FileDescriptor{Name: "g.csv", Content: content}, types.CSVSheet)

	require.NoError(t, err)
	assert.Equal(t, types.RawGrid{{"x", "y"}, {"", "NA"}}, grid)
}
