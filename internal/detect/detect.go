// Package detect locates the real header of an untyped grid and cleans the
// rows beneath it into a finished table.
package detect

import (
	"fmt"
	"strings"

	"github.com/nconklindev/conso2b/internal/columns"
	"github.com/nconklindev/conso2b/internal/types"
)

const (
	// DefaultMarkerText locates the header row of a GSTR-2B extract.
	DefaultMarkerText = "GSTIN of supplier"
	// DefaultScanRows bounds the marker-row search.
	DefaultScanRows = 20

	twoRowMainIndex = 4
	twoRowSubIndex  = 5
	twoRowDataIndex = 6
)

// DefaultTwoRowMarkers flag a merged two-row header in the fifth row.
var DefaultTwoRowMarkers = []string{"invoice details", "tax details"}

// Strategy names the header layout that was recognized.
type Strategy int

const (
	StrategyTwoRow Strategy = iota
	StrategyMarker
	StrategyDefault
)

func (s Strategy) String() string {
	switch s {
	case StrategyTwoRow:
		return "two-row"
	case StrategyMarker:
		return "marker-row"
	default:
		return "default"
	}
}

// Options tunes header detection and the value written into absent cells.
type Options struct {
	MarkerText    string
	ScanRows      int
	TwoRowMarkers []string
	Sentinel      string
}

// DefaultOptions returns the settings for GSTR-2B extracts.
func DefaultOptions() Options {
	return Options{
		MarkerText:    DefaultMarkerText,
		ScanRows:      DefaultScanRows,
		TwoRowMarkers: DefaultTwoRowMarkers,
		Sentinel:      types.DefaultSentinel,
	}
}

// Detection is the outcome of the first strategy that matched. Header is
// unique; Data still carries absent cells.
type Detection struct {
	Strategy  Strategy
	HeaderRow int
	Header    []string
	Data      types.RawGrid
}

// Detector turns raw grids into tables. It is safe for concurrent use.
type Detector struct {
	opts Options
}

// New fills unset options with their defaults.
func New(opts Options) *Detector {
	if opts.ScanRows <= 0 {
		opts.ScanRows = DefaultScanRows
	}
	if opts.Sentinel == "" {
		opts.Sentinel = types.DefaultSentinel
	}
	if opts.TwoRowMarkers == nil {
		opts.TwoRowMarkers = DefaultTwoRowMarkers
	}
	return &Detector{opts: opts}
}

// Detect tries the two-row, marker-row and default strategies in that order.
// A strategy that fails internally is reported to log as a warning and
// skipped. log may be nil.
func (d *Detector) Detect(grid types.RawGrid, pair types.Pair, log *types.ProcessingLog) Detection {
	det, ok, err := d.twoRow(grid)
	if err != nil {
		warn(log, pair, "Error in two-row header detection: %v", err)
	} else if ok {
		report(log, types.SeveritySuccess, pair, "Detected two-row header in %s", pair.File)
		return det
	}

	det, ok, err = d.markerRow(grid)
	if err != nil {
		warn(log, pair, "Error finding header row: %v", err)
	} else if ok {
		report(log, types.SeveritySuccess, pair, "Found header at row %d in %s", det.HeaderRow+1, pair.File)
		return det
	}

	report(log, types.SeverityInfo, pair, "Loaded %s with default header", pair.File)
	return d.fallback(grid)
}

// Table runs Detect and cleans the result.
func (d *Detector) Table(grid types.RawGrid, pair types.Pair, log *types.ProcessingLog) (*types.Table, Detection) {
	det := d.Detect(grid, pair, log)
	return Clean(det.Header, det.Data, d.opts.Sentinel), det
}

func (d *Detector) twoRow(grid types.RawGrid) (Detection, bool, error) {
	if len(grid) <= twoRowSubIndex {
		return Detection{}, false, nil
	}

	main := grid[twoRowMainIndex]
	if !rowContainsAny(main, d.opts.TwoRowMarkers) {
		return Detection{}, false, nil
	}

	sub := grid[twoRowSubIndex]
	if len(main) != len(sub) {
		return Detection{}, false, fmt.Errorf("header rows %d and %d have %d and %d cells",
			twoRowMainIndex+1, twoRowSubIndex+1, len(main), len(sub))
	}

	combined := make([]string, len(main))
	for i := range main {
		m := columns.Sanitize(main[i], i)
		s := columns.Sanitize(sub[i], i)
		realMain := !columns.IsPlaceholder(m, i)
		realSub := !columns.IsPlaceholder(s, i)

		switch {
		case realMain && realSub:
			combined[i] = m + "_" + s
		case realMain:
			combined[i] = m
		case realSub:
			combined[i] = s
		default:
			combined[i] = columns.Placeholder(i)
		}
	}

	data := grid[twoRowDataIndex:]
	if err := checkWidth(len(combined), data, twoRowDataIndex); err != nil {
		return Detection{}, false, err
	}

	return Detection{
		Strategy:  StrategyTwoRow,
		HeaderRow: twoRowMainIndex,
		Header:    columns.MakeUnique(combined),
		Data:      data,
	}, true, nil
}

func (d *Detector) markerRow(grid types.RawGrid) (Detection, bool, error) {
	idx := FindHeaderRow(grid, d.opts.MarkerText, d.opts.ScanRows)
	if idx < 0 {
		return Detection{}, false, nil
	}

	header := grid[idx]
	data := grid[idx+1:]
	if err := checkWidth(len(header), data, idx+1); err != nil {
		return Detection{}, false, err
	}

	return Detection{
		Strategy:  StrategyMarker,
		HeaderRow: idx,
		Header:    columns.MakeUnique(header),
		Data:      data,
	}, true, nil
}

func (d *Detector) fallback(grid types.RawGrid) Detection {
	if len(grid) == 0 {
		return Detection{Strategy: StrategyDefault}
	}

	width := grid.Width()
	return Detection{
		Strategy:  StrategyDefault,
		HeaderRow: 0,
		Header:    columns.MakeUnique(pad(grid[0], width)),
		Data:      grid[1:],
	}
}

// FindHeaderRow returns the index of the first of the leading limit rows that
// holds a cell containing marker, compared case-insensitively, or -1.
func FindHeaderRow(grid types.RawGrid, marker string, limit int) int {
	marker = strings.ToLower(marker)
	if marker == "" {
		return -1
	}

	searchLimit := len(grid)
	if limit > 0 && searchLimit > limit {
		searchLimit = limit
	}

	for i := 0; i < searchLimit; i++ {
		for _, cell := range grid[i] {
			if cell != "" && strings.Contains(strings.ToLower(cell), marker) {
				return i
			}
		}
	}

	return -1
}

func rowContainsAny(row []string, markers []string) bool {
	for _, cell := range row {
		text := strings.ToLower(cell)
		for _, m := range markers {
			if m != "" && strings.Contains(text, strings.ToLower(m)) {
				return true
			}
		}
	}
	return false
}

func checkWidth(width int, data types.RawGrid, offset int) error {
	for i, row := range data {
		if len(row) > width {
			return fmt.Errorf("row %d has %d cells but the header has %d", offset+i+1, len(row), width)
		}
	}
	return nil
}

func pad(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

func report(log *types.ProcessingLog, sev types.Severity, pair types.Pair, format string, args ...any) {
	if log == nil {
		return
	}
	log.Addf(sev, types.KindDetect, pair.File, pair.Sheet, format, args...)
}

func warn(log *types.ProcessingLog, pair types.Pair, format string, args ...any) {
	report(log, types.SeverityWarning, pair, format, args...)
}
