package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nconklindev/conso2b/internal/consolidate"
	"github.com/nconklindev/conso2b/internal/export"
	"github.com/nconklindev/conso2b/internal/loader"
	"github.com/nconklindev/conso2b/internal/logging"
	"github.com/nconklindev/conso2b/internal/types"
)

func newSheetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sheets FILE...",
		Short: "List the sheets of each file and how many files share them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			files, err := readFiles(args)
			if err != nil {
				return err
			}

			log := types.NewProcessingLog(cmd.Context(), nil)
			cat := consolidate.Catalog(a.loader, files, log)
			printCatalog(cmd.OutOrStdout(), files, cat)
			printLog(cmd.ErrOrStderr(), log)
			return nil
		},
	}
}

func newMergeCmd() *cobra.Command {
	var (
		sheets  []string
		columns []string
		format  string
		split   bool
	)

	cmd := &cobra.Command{
		Use:   "merge FILE...",
		Short: "Consolidate the selected sheets of every file and export the result",
		Example: `  conso2b merge Jan.xlsx Feb.xlsx --sheet B2B --sheet CDNR
  conso2b merge *.xlsx --sheet B2B --column "Invoice number" --format csv --out exports`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			a, err := setup(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			files, err := readFiles(args)
			if err != nil {
				return err
			}

			if len(sheets) == 0 {
				sheets = consolidate.Catalog(a.loader, files, nil).Sheets
				fmt.Fprintf(cmd.ErrOrStderr(), "No --sheet given, using all sheets: %s\n", strings.Join(sheets, ", "))
			}

			res, err := a.engine.Consolidate(cmd.Context(), files, sheets, nil)
			if res != nil {
				printLog(cmd.ErrOrStderr(), res.Log)
			}
			if err != nil {
				return err
			}

			if len(columns) == 0 {
				columns = res.Table.Columns
			}
			selected, err := export.SelectColumns(res.Table, columns)
			if err != nil {
				return err
			}

			path, err := export.WriteFile(a.cfg.ExportDir, outFormat, res.Table, selected, split, time.Now())
			if err != nil {
				return err
			}

			sum := res.Summary()
			logging.FromContext(logging.WithRunID(cmd.Context(), res.RunID)).
				Info("export written", "path", path, "rows", sum.Rows, "columns", len(selected))
			printSkipped(cmd.ErrOrStderr(), res.Log)
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d rows, %d columns, %d sheets)\n", path, sum.Rows, len(selected), sum.UniqueSheets)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&sheets, "sheet", nil, "sheet to consolidate, in processing order (repeatable; default: all)")
	f.StringArrayVar(&columns, "column", nil, "column to export besides SourceFile and SheetName (repeatable; default: every column)")
	f.StringVar(&format, "format", string(export.FormatXLSX), "export format: xlsx or csv")
	f.BoolVar(&split, "split", false, "write one worksheet per sheet name (xlsx only)")
	f.String("out", "", "directory the export is written to (default: export.dir)")

	return cmd
}

// readFiles loads every path into memory, rejecting unsupported types early.
func readFiles(paths []string) ([]types.FileDescriptor, error) {
	files := make([]types.FileDescriptor, 0, len(paths))
	for _, p := range paths {
		if !loader.Supported(p) {
			return nil, fmt.Errorf("%s: %w", p, loader.ErrUnsupportedFormat)
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, types.FileDescriptor{Name: filepath.Base(p), Content: content})
	}
	if dup := duplicateName(files); dup != "" {
		return nil, errors.New("two files share the name " + dup)
	}
	return files, nil
}

func duplicateName(files []types.FileDescriptor) string {
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if seen[f.Name] {
			return f.Name
		}
		seen[f.Name] = true
	}
	return ""
}

func printCatalog(w io.Writer, files []types.FileDescriptor, cat types.SheetCatalog) {
	for _, f := range files {
		fmt.Fprintf(w, "%s: %s\n", f.Name, strings.Join(cat.PerFile[f.Name], ", "))
	}
	fmt.Fprintln(w)
	for _, s := range cat.Sheets {
		fmt.Fprintf(w, "%-30s %d of %d files\n", s, cat.FileCount[s], len(files))
	}
}

func printLog(w io.Writer, log *types.ProcessingLog) {
	for _, e := range log.Entries() {
		fmt.Fprintln(w, e.String())
	}
}

// printSkipped summarizes the pairs that contributed no rows.
func printSkipped(w io.Writer, log *types.ProcessingLog) {
	missing := len(log.Filter(types.KindSheetNotFound))
	failed := len(log.Filter(types.KindIngest))
	if missing+failed == 0 {
		return
	}
	fmt.Fprintf(w, "Skipped: %d missing sheet(s), %d unreadable\n", missing, failed)
}
