package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nconklindev/conso2b/internal/consolidate"
	"github.com/nconklindev/conso2b/internal/export"
	"github.com/nconklindev/conso2b/internal/loader"
	"github.com/nconklindev/conso2b/internal/types"
)

const previewRows = 20

type state int

const (
	stateFilePicker state = iota
	stateSheetSelection
	stateProcessing
	stateSummary
	stateLog
	stateComplete
	stateError
)

// Deps are the collaborators a session runs against.
type Deps struct {
	Loader    consolidate.Loader
	Engine    *consolidate.Engine
	ExportDir string
	Logger    *slog.Logger
}

type Model struct {
	deps  Deps
	state state

	filepicker filepicker.Model
	files      []types.FileDescriptor
	notice     string

	catalog     types.SheetCatalog
	catalogLog  *types.ProcessingLog
	sheetCursor int
	sheets      []string

	progress     progress.Model
	progressChan chan float64
	resultChan   chan consolidateDoneMsg
	cancel       context.CancelFunc

	result       *consolidate.Result
	colCursor    int
	selectedCols map[string]bool
	format       export.Format
	split        bool
	showPreview  bool
	preview      table.Model
	logReturn    state

	outputPath string
	err        error
	width      int
	height     int
}

type fileAddedMsg struct {
	file types.FileDescriptor
	err  error
}

type catalogMsg struct {
	catalog types.SheetCatalog
	log     *types.ProcessingLog
}

type consolidateDoneMsg struct {
	result *consolidate.Result
	err    error
}

type exportDoneMsg struct {
	path string
	err  error
}

type progressMsg float64

type waitForProgressMsg struct{}

func InitialModel(deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.ExportDir == "" {
		deps.ExportDir = "."
	}

	fp := filepicker.New()
	fp.AllowedTypes = append(append(append([]string{}, loader.CSVExtensions...), loader.SpreadsheetExtensions...), loader.LegacyExtensions...)
	fp.CurrentDirectory, _ = os.Getwd()

	fp.Styles.Cursor = lipgloss.NewStyle().Foreground(accent)
	fp.Styles.Symlink = lipgloss.NewStyle().Foreground(highlight)
	fp.Styles.Directory = lipgloss.NewStyle().Foreground(highlight)
	fp.Styles.File = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	fp.Styles.Permission = lipgloss.NewStyle().Foreground(muted)
	fp.Styles.Selected = lipgloss.NewStyle().Foreground(accent).Bold(true)
	fp.Styles.FileSize = lipgloss.NewStyle().Foreground(muted)

	return Model{
		deps:         deps,
		state:        stateFilePicker,
		filepicker:   fp,
		progress:     progress.New(progress.WithGradient("#2E86DE", "#54A0FF")),
		selectedCols: make(map[string]bool),
		format:       export.FormatXLSX,
	}
}

func (m Model) Init() tea.Cmd {
	return m.filepicker.Init()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Leave room for the title, file list and help text.
		height := msg.Height - 18
		if height < 5 {
			height = 5
		}
		m.filepicker.SetHeight(height)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

		switch m.state {
		case stateFilePicker:
			switch msg.String() {
			case "q":
				return m, tea.Quit
			case "n":
				if len(m.files) > 0 {
					return m, m.buildCatalog()
				}
				m.notice = "Add at least one file first"
				return m, nil
			case "x":
				if len(m.files) > 0 {
					removed := m.files[len(m.files)-1]
					m.files = m.files[:len(m.files)-1]
					m.notice = fmt.Sprintf("Removed %s", removed.Name)
				}
				return m, nil
			}

		case stateSheetSelection:
			return m.updateSheetSelection(msg)

		case stateSummary:
			return m.updateSummary(msg)

		case stateLog:
			switch msg.String() {
			case "q":
				return m, tea.Quit
			case "l", "esc", "enter":
				m.state = m.logReturn
			}
			return m, nil

		case stateComplete:
			switch msg.String() {
			case "q", "esc":
				return m, tea.Quit
			case "enter", "b":
				m.state = stateSummary
			}
			return m, nil

		case stateError:
			switch msg.String() {
			case "l":
				if m.result != nil {
					m.logReturn = stateError
					m.state = stateLog
				}
				return m, nil
			case "b":
				if m.result != nil && m.result.Table != nil {
					m.state = stateSummary
				} else {
					m.state = stateSheetSelection
				}
				m.err = nil
				return m, nil
			default:
				return m, tea.Quit
			}
		}

	case fileAddedMsg:
		if msg.err != nil {
			m.notice = ErrorStyle.Render(fmt.Sprintf("✗ %v", msg.err))
			return m, nil
		}
		for i, f := range m.files {
			if f.Name == msg.file.Name {
				m.files[i] = msg.file
				m.notice = fmt.Sprintf("Replaced %s", msg.file.Name)
				return m, nil
			}
		}
		m.files = append(m.files, msg.file)
		m.notice = fmt.Sprintf("Added %s", msg.file.Name)
		return m, nil

	case catalogMsg:
		m.catalog = msg.catalog
		m.catalogLog = msg.log
		m.sheets = keepAvailable(m.sheets, msg.catalog)
		m.sheetCursor = 0
		m.state = stateSheetSelection
		return m, nil

	case consolidateDoneMsg:
		m.cancel = nil
		m.result = msg.result
		if msg.err != nil {
			m.err = msg.err
			m.state = stateError
			return m, nil
		}
		m.resetColumns()
		m.state = stateSummary
		return m, nil

	case exportDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			m.state = stateError
			return m, nil
		}
		m.outputPath = msg.path
		m.state = stateComplete
		return m, nil

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case progressMsg:
		if m.state == stateProcessing {
			cmd := m.progress.SetPercent(float64(msg))
			return m, tea.Batch(cmd, waitForProgress(m.progressChan, m.resultChan))
		}
		return m, nil

	case waitForProgressMsg:
		return m, waitForProgress(m.progressChan, m.resultChan)
	}

	if m.state == stateFilePicker {
		var cmd tea.Cmd
		m.filepicker, cmd = m.filepicker.Update(msg)

		if didSelect, path := m.filepicker.DidSelectFile(msg); didSelect {
			return m, readFile(path)
		}
		if didSelect, path := m.filepicker.DidSelectDisabledFile(msg); didSelect {
			m.notice = ErrorStyle.Render(fmt.Sprintf("✗ %s is not a supported file", filepath.Base(path)))
			return m, cmd
		}

		return m, cmd
	}

	return m, nil
}

func (m Model) updateSheetSelection(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "esc", "b":
		m.state = stateFilePicker
	case "up", "k":
		if m.sheetCursor > 0 {
			m.sheetCursor--
		}
	case "down", "j":
		if m.sheetCursor < len(m.catalog.Sheets)-1 {
			m.sheetCursor++
		}
	case " ":
		if m.sheetCursor < len(m.catalog.Sheets) {
			m.sheets = toggle(m.sheets, m.catalog.Sheets[m.sheetCursor])
		}
	case "a":
		for _, s := range m.catalog.Sheets {
			if indexOf(m.sheets, s) < 0 {
				m.sheets = append(m.sheets, s)
			}
		}
	case "d":
		m.sheets = nil
	case "enter":
		if len(m.sheets) > 0 {
			m.state = stateProcessing
			return m.consolidate()
		}
	}
	return m, nil
}

func (m Model) updateSummary(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cols := m.result.Table.Columns

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "b":
		m.state = stateSheetSelection
	case "up", "k":
		if m.showPreview {
			var cmd tea.Cmd
			m.preview, cmd = m.preview.Update(msg)
			return m, cmd
		}
		if m.colCursor > 0 {
			m.colCursor--
		}
	case "down", "j":
		if m.showPreview {
			var cmd tea.Cmd
			m.preview, cmd = m.preview.Update(msg)
			return m, cmd
		}
		if m.colCursor < len(cols)-1 {
			m.colCursor++
		}
	case " ":
		name := cols[m.colCursor]
		if !locked(name) {
			m.selectedCols[name] = !m.selectedCols[name]
		}
	case "a":
		for _, c := range cols {
			m.selectedCols[c] = true
		}
	case "d":
		for _, c := range cols {
			m.selectedCols[c] = locked(c)
		}
	case "p":
		m.showPreview = !m.showPreview
		if m.showPreview {
			m.preview = buildPreview(m.result.Table, m.exportColumns())
		}
	case "f":
		if m.format == export.FormatXLSX {
			m.format = export.FormatCSV
		} else {
			m.format = export.FormatXLSX
		}
	case "s":
		m.split = !m.split
	case "l":
		m.logReturn = stateSummary
		m.state = stateLog
	case "enter":
		return m, m.export()
	}
	return m, nil
}

func (m *Model) resetColumns() {
	m.selectedCols = make(map[string]bool)
	for _, c := range m.result.Table.Columns {
		m.selectedCols[c] = locked(c)
	}
	m.colCursor = 0
	m.showPreview = false
}

// exportColumns lists the chosen columns in table order.
func (m Model) exportColumns() []string {
	var selected []string
	for _, c := range m.result.Table.Columns {
		if m.selectedCols[c] {
			selected = append(selected, c)
		}
	}
	cols, err := export.SelectColumns(m.result.Table, selected)
	if err != nil {
		return m.result.Table.Columns
	}
	return cols
}

func readFile(path string) tea.Cmd {
	return func() tea.Msg {
		content, err := os.ReadFile(path)
		if err != nil {
			return fileAddedMsg{err: err}
		}
		return fileAddedMsg{file: types.FileDescriptor{Name: filepath.Base(path), Content: content}}
	}
}

func (m Model) buildCatalog() tea.Cmd {
	files := m.files
	l := m.deps.Loader
	return func() tea.Msg {
		log := types.NewProcessingLog(nil, nil)
		return catalogMsg{catalog: consolidate.Catalog(l, files, log), log: log}
	}
}

func (m Model) consolidate() (Model, tea.Cmd) {
	m.progressChan = make(chan float64, 100)
	m.resultChan = make(chan consolidateDoneMsg, 1)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	progressChan := m.progressChan
	resultChan := m.resultChan
	engine := m.deps.Engine
	files := m.files
	sheets := append([]string{}, m.sheets...)

	cmd := tea.Batch(
		func() tea.Msg {
			go func() {
				defer cancel()
				res, err := engine.Consolidate(ctx, files, sheets, progressChan)

				resultChan <- consolidateDoneMsg{result: res, err: err}

				close(progressChan)
				close(resultChan)
			}()

			return waitForProgressMsg{}
		},
		m.progress.SetPercent(0),
	)

	return m, cmd
}

func waitForProgress(progressChan chan float64, resultChan chan consolidateDoneMsg) tea.Cmd {
	return func() tea.Msg {
		if progressChan == nil {
			return nil
		}

		p, ok := <-progressChan
		if !ok {
			res, ok := <-resultChan
			if ok {
				return res
			}
			return nil
		}

		return progressMsg(p)
	}
}

func (m Model) export() tea.Cmd {
	table := m.result.Table
	columns := m.exportColumns()
	format := m.format
	split := m.split && format == export.FormatXLSX
	dir := m.deps.ExportDir
	logger := m.deps.Logger

	return func() tea.Msg {
		path, err := export.WriteFile(dir, format, table, columns, split, time.Now())
		if err != nil {
			var exportErr *export.ExportError
			if !errors.As(err, &exportErr) {
				err = &export.ExportError{Format: format, Err: err}
			}
			logger.Error("export failed", "format", format, "error", err)
			return exportDoneMsg{err: err}
		}
		logger.Info("export written", "path", path, "format", format, "columns", len(columns), "rows", table.Len())
		return exportDoneMsg{path: path}
	}
}

func buildPreview(t *types.Table, columns []string) table.Model {
	idx := make([]int, len(columns))
	cols := make([]table.Column, len(columns))
	n := min(previewRows, t.Len())

	for i, c := range columns {
		idx[i] = t.ColumnIndex(c)
		width := len(c)
		for _, row := range t.Rows[:n] {
			width = max(width, len(row[idx[i]]))
		}
		cols[i] = table.Column{Title: c, Width: min(width, 24)}
	}

	rows := make([]table.Row, n)
	for r, row := range t.Rows[:n] {
		values := make(table.Row, len(idx))
		for i, j := range idx {
			values[i] = row[j]
		}
		rows[r] = values
	}

	tbl := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithHeight(min(n+1, 12)),
		table.WithFocused(true),
	)
	tbl.SetStyles(previewStyles())
	return tbl
}

func locked(column string) bool {
	return column == types.SourceFileColumn || column == types.SheetNameColumn
}

func toggle(list []string, s string) []string {
	if i := indexOf(list, s); i >= 0 {
		return append(list[:i:i], list[i+1:]...)
	}
	return append(list, s)
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func keepAvailable(selected []string, cat types.SheetCatalog) []string {
	var out []string
	for _, s := range selected {
		if cat.FileCount[s] > 0 {
			out = append(out, s)
		}
	}
	return out
}
