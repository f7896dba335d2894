// Package consolidate drives the loader over every selected (file, sheet)
// pair and merges the resulting tables into one.
package consolidate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nconklindev/conso2b/internal/logging"
	"github.com/nconklindev/conso2b/internal/types"
)

// DefaultWorkers bounds how many pairs are loaded at once.
const DefaultWorkers = 4

// ErrNoData is returned when no pair of a run produced a table.
var ErrNoData = errors.New("no data could be loaded from the selected files and sheets")

// Loader is the per-pair ingestion the engine depends on.
type Loader interface {
	Sheets(fd types.FileDescriptor) ([]string, error)
	Load(fd types.FileDescriptor, sheet string, log *types.ProcessingLog) (*types.Table, error)
}

type Options struct {
	Workers  int
	Sentinel string
	Logger   *slog.Logger
}

type Engine struct {
	loader   Loader
	workers  int
	sentinel string
	logger   *slog.Logger
}

func New(loader Loader, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Sentinel == "" {
		opts.Sentinel = types.DefaultSentinel
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		loader:   loader,
		workers:  opts.Workers,
		sentinel: opts.Sentinel,
		logger:   opts.Logger,
	}
}

// Result is the outcome of one run. Table is nil when the run failed.
type Result struct {
	RunID string
	Table *types.Table
	Log   *types.ProcessingLog
}

// Summary reports row, column and distinct sheet counts of the table.
func (r *Result) Summary() types.Summary {
	if r == nil || r.Table == nil {
		return types.Summary{}
	}
	sheets := make(map[string]struct{})
	for _, v := range r.Table.Column(types.SheetNameColumn) {
		sheets[v] = struct{}{}
	}
	return types.Summary{
		Rows:         r.Table.Len(),
		Columns:      len(r.Table.Columns),
		UniqueSheets: len(sheets),
	}
}

type fileOutcome struct {
	available map[string]bool
	log       *types.ProcessingLog
}

type pairOutcome struct {
	table *types.Table
	log   *types.ProcessingLog
}

// Consolidate loads every (file, sheet) pair, files outer and sheets inner,
// and unions the tables in that order. Per-pair problems are logged and
// skipped; only ErrNoData (or a cancelled ctx) fails the run. The returned
// Result always carries the processing log.
//
// progress, when not nil, receives completed/total after each pair, so the
// last value sent is 1. The caller must keep draining it; a send only gives
// up when ctx is done.
func (e *Engine) Consolidate(ctx context.Context, files []types.FileDescriptor, sheets []string, progress chan<- float64) (*Result, error) {
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	started := time.Now()

	res := &Result{
		RunID: runID,
		Log:   types.NewProcessingLog(ctx, e.logger),
	}

	e.logger.InfoContext(ctx, "consolidation started", "files", len(files), "sheets", len(sheets))

	fileOutcomes, pairOutcomes, err := e.loadAll(ctx, files, sheets, progress)
	if err != nil {
		return res, err
	}

	var tables []*types.Table
	for fi := range files {
		res.Log.Merge(fileOutcomes[fi].log)
		for si := range sheets {
			out := pairOutcomes[fi*len(sheets)+si]
			res.Log.Merge(out.log)
			if out.table != nil {
				tables = append(tables, out.table)
			}
		}
	}

	if len(tables) == 0 {
		res.Log.Addf(types.SeverityError, types.KindComplete, "", "", "Consolidation error: %v", ErrNoData)
		e.logger.WarnContext(ctx, "consolidation produced no data", "duration", time.Since(started))
		return res, ErrNoData
	}

	res.Table = Union(tables, e.sentinel)
	res.Log.Addf(types.SeveritySuccess, types.KindComplete, "", "", "Consolidation complete: %d total rows", res.Table.Len())

	e.logger.InfoContext(ctx, "consolidation finished",
		"tables", len(tables),
		"rows", res.Table.Len(),
		"columns", len(res.Table.Columns),
		"duration", time.Since(started),
	)

	return res, nil
}

func (e *Engine) loadAll(ctx context.Context, files []types.FileDescriptor, sheets []string, progress chan<- float64) ([]fileOutcome, []pairOutcome, error) {
	fileOutcomes := make([]fileOutcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for fi, fd := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fileOutcomes[fi] = e.listSheets(fd)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	total := len(files) * len(sheets)
	pairOutcomes := make([]pairOutcome, total)

	var (
		mu        sync.Mutex
		completed int
	)
	report := func(ctx context.Context) {
		mu.Lock()
		defer mu.Unlock()
		completed++
		if progress == nil {
			return
		}
		select {
		case progress <- float64(completed) / float64(total):
		case <-ctx.Done():
		}
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for fi, fd := range files {
		for si, sheet := range sheets {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				pairOutcomes[fi*len(sheets)+si] = e.loadPair(gctx, fd, sheet, fileOutcomes[fi].available)
				report(gctx)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return fileOutcomes, pairOutcomes, nil
}

func (e *Engine) listSheets(fd types.FileDescriptor) fileOutcome {
	out := fileOutcome{
		available: make(map[string]bool),
		log:       types.NewProcessingLog(nil, nil),
	}

	sheets, err := e.loader.Sheets(fd)
	if err != nil {
		out.log.Addf(types.SeverityError, types.KindSheetList, fd.Name, "", "Error reading sheets from %s: %v", fd.Name, err)
		return out
	}
	for _, s := range sheets {
		out.available[s] = true
	}
	return out
}

func (e *Engine) loadPair(ctx context.Context, fd types.FileDescriptor, sheet string, available map[string]bool) pairOutcome {
	out := pairOutcome{log: types.NewProcessingLog(nil, nil)}

	if !available[sheet] {
		out.log.Addf(types.SeverityWarning, types.KindSheetNotFound, fd.Name, sheet, "Sheet '%s' not found in %s", sheet, fd.Name)
		return out
	}

	e.logger.DebugContext(ctx, "loading pair", "file", fd.Name, "sheet", sheet)

	table, err := e.loader.Load(fd, sheet, out.log)
	if err != nil {
		out.log.Addf(types.SeverityError, types.KindIngest, fd.Name, sheet, "Error loading %s - %s: %v", fd.Name, sheet, err)
		return out
	}
	if table.Empty() {
		out.log.Addf(types.SeverityWarning, types.KindEmptyResult, fd.Name, sheet, "No data in %s - %s", fd.Name, sheet)
		return out
	}

	tagged, err := Tag(table, fd.Name, sheet)
	if err != nil {
		out.log.Addf(types.SeverityError, types.KindIngest, fd.Name, sheet, "Error loading %s - %s: %v", fd.Name, sheet, err)
		return out
	}

	out.table = tagged
	out.log.Addf(types.SeveritySuccess, types.KindLoaded, fd.Name, sheet, "Loaded %s - %s: %d rows", fd.Name, sheet, tagged.Len())
	return out
}

// Tag returns a copy of t with the SourceFile and SheetName columns in front.
func Tag(t *types.Table, file, sheet string) (*types.Table, error) {
	for _, name := range []string{types.SourceFileColumn, types.SheetNameColumn} {
		if t.ColumnIndex(name) >= 0 {
			return nil, fmt.Errorf("cannot insert %s, column already exists", name)
		}
	}

	out := &types.Table{
		Columns: append([]string{types.SourceFileColumn, types.SheetNameColumn}, t.Columns...),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, row := range t.Rows {
		tagged := make([]string, 0, len(row)+2)
		tagged = append(tagged, file, sheet)
		out.Rows[i] = append(tagged, row...)
	}
	return out, nil
}

// Union stacks tables in order. The column set is the union of all columns
// by first occurrence; a table lacking a column contributes sentinel there.
func Union(tables []*types.Table, sentinel string) *types.Table {
	index := make(map[string]int)
	var cols []string
	for _, t := range tables {
		for _, c := range t.Columns {
			if _, ok := index[c]; !ok {
				index[c] = len(cols)
				cols = append(cols, c)
			}
		}
	}

	total := 0
	for _, t := range tables {
		total += t.Len()
	}

	out := &types.Table{
		Columns: cols,
		Rows:    make([][]string, 0, total),
	}
	for _, t := range tables {
		positions := make([]int, len(t.Columns))
		for i, c := range t.Columns {
			positions[i] = index[c]
		}
		for _, row := range t.Rows {
			merged := make([]string, len(cols))
			for i := range merged {
				merged[i] = sentinel
			}
			for i, v := range row {
				merged[positions[i]] = v
			}
			out.Rows = append(out.Rows, merged)
		}
	}

	return out
}

// Catalog lists the sheets of every file. Files whose sheets cannot be read
// are reported to log (when not nil) and contribute nothing.
func Catalog(loader Loader, files []types.FileDescriptor, log *types.ProcessingLog) types.SheetCatalog {
	cat := types.SheetCatalog{
		PerFile:   make(map[string][]string, len(files)),
		FileCount: make(map[string]int),
	}

	for _, fd := range files {
		sheets, err := loader.Sheets(fd)
		if err != nil {
			if log != nil {
				log.Addf(types.SeverityError, types.KindSheetList, fd.Name, "", "Error reading sheets from %s: %v", fd.Name, err)
			}
			cat.PerFile[fd.Name] = nil
			continue
		}
		cat.PerFile[fd.Name] = sheets
		seen := make(map[string]bool, len(sheets))
		for _, s := range sheets {
			if seen[s] {
				continue
			}
			seen[s] = true
			if cat.FileCount[s] == 0 {
				cat.Sheets = append(cat.Sheets, s)
			}
			cat.FileCount[s]++
		}
	}

	sort.Strings(cat.Sheets)
	return cat
}
