package loader

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/extrame/xls"
)

var zipMagic = []byte("PK\x03\x04")

// openLegacy opens a BIFF workbook. The parser panics on some malformed
// streams, so those are turned into errors.
func openLegacy(content []byte) (wb *xls.WorkBook, err error) {
	defer func() {
		if r := recover(); r != nil {
			wb, err = nil, fmt.Errorf("open xls workbook: %v", r)
		}
	}()

	wb, err = xls.OpenReader(bytes.NewReader(content), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls workbook: %w", err)
	}
	if wb == nil {
		return nil, errors.New("open xls workbook: no workbook stream")
	}
	return wb, nil
}

func legacySheets(content []byte) ([]string, error) {
	wb, err := openLegacy(content)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, wb.NumSheets())
	for i := 0; i < wb.NumSheets(); i++ {
		if ws := wb.GetSheet(i); ws != nil {
			names = append(names, ws.Name)
		}
	}
	return names, nil
}

func readLegacy(content []byte, sheet string) (rows [][]string, err error) {
	wb, err := openLegacy(content)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("read sheet: %v", r)
		}
	}()

	for i := 0; i < wb.NumSheets(); i++ {
		ws := wb.GetSheet(i)
		if ws == nil || ws.Name != sheet {
			continue
		}

		// MaxRow is the index of the last row.
		for r := 0; r <= int(ws.MaxRow); r++ {
			row := ws.Row(r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			cells := make([]string, row.LastCol())
			for c := row.FirstCol(); c < row.LastCol(); c++ {
				cells[c] = row.Col(c)
			}
			rows = append(rows, cells)
		}
		return trimTrailingEmpty(rows), nil
	}

	return nil, fmt.Errorf("read sheet: sheet %s does not exist", sheet)
}

// trimTrailingEmpty drops blank rows after the last populated one, matching
// what excelize returns for OOXML sheets.
func trimTrailingEmpty(rows [][]string) [][]string {
	for len(rows) > 0 {
		last := rows[len(rows)-1]
		blank := true
		for _, c := range last {
			if c != "" {
				blank = false
				break
			}
		}
		if !blank {
			break
		}
		rows = rows[:len(rows)-1]
	}
	return rows
}
