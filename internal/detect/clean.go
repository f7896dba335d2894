package detect

import (
	"github.com/nconklindev/conso2b/internal/columns"
	"github.com/nconklindev/conso2b/internal/types"
)

// Clean turns a detected header and its data rows into a finished table:
// rows and columns with no data are dropped, remaining blanks become
// sentinel, and the header is made unique.
func Clean(header []string, data types.RawGrid, sentinel string) *types.Table {
	width := len(header)

	rows := make([][]string, 0, len(data))
	for _, row := range data {
		if hasData(row, width) {
			rows = append(rows, row)
		}
	}

	// The header never keeps a column alive on its own.
	keep := make([]int, 0, width)
	for col := 0; col < width; col++ {
		for _, row := range rows {
			if col < len(row) && row[col] != "" {
				keep = append(keep, col)
				break
			}
		}
	}

	names := make([]string, len(keep))
	for i, col := range keep {
		names[i] = header[col]
	}

	out := &types.Table{
		Columns: columns.MakeUnique(names),
		Rows:    make([][]string, len(rows)),
	}
	for i, row := range rows {
		cleaned := make([]string, len(keep))
		for j, col := range keep {
			v := ""
			if col < len(row) {
				v = row[col]
			}
			if v == "" {
				v = sentinel
			}
			cleaned[j] = v
		}
		out.Rows[i] = cleaned
	}

	return out
}

func hasData(row []string, width int) bool {
	for i, cell := range row {
		if i >= width {
			break
		}
		if cell != "" {
			return true
		}
	}
	return false
}
