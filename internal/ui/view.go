package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nconklindev/conso2b/internal/consolidate"
	"github.com/nconklindev/conso2b/internal/export"
	"github.com/nconklindev/conso2b/internal/types"
)

func (m Model) View() string {
	switch m.state {
	case stateFilePicker:
		return m.viewFilePicker()
	case stateSheetSelection:
		return m.viewSheetSelection()
	case stateProcessing:
		return m.viewProcessing()
	case stateSummary:
		return m.viewSummary()
	case stateLog:
		return m.viewLog()
	case stateComplete:
		return m.viewComplete()
	case stateError:
		return m.viewError()
	}
	return ""
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("📊 conso2b - GSTR-2B Consolidator"))
	s.WriteString("\n")
	s.WriteString(SubtitleStyle.Render("Add the CSV or Excel files to consolidate"))
	s.WriteString("\n\n")
	s.WriteString(m.filepicker.View())
	s.WriteString("\n\n")

	if len(m.files) == 0 {
		s.WriteString(UnselectedStyle.Render("No files added yet"))
	} else {
		s.WriteString(CheckedStyle.Render(fmt.Sprintf("%d file(s) added:", len(m.files))))
		for _, f := range m.files {
			s.WriteString("\n  • " + f.Name)
		}
	}
	if m.notice != "" {
		s.WriteString("\n" + m.notice)
	}
	s.WriteString("\n")
	s.WriteString(HelpStyle.Render("enter: add file • x: remove last • n: next • q: quit"))

	return s.String()
}

func (m Model) viewSheetSelection() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("📊 Select Sheets"))
	s.WriteString("\n")
	s.WriteString(SubtitleStyle.Render(fmt.Sprintf("%d file(s), %d distinct sheet(s)", len(m.files), len(m.catalog.Sheets))))
	s.WriteString("\n\n")

	if m.catalogLog != nil {
		for _, e := range m.catalogLog.Entries() {
			s.WriteString(severityStyle(e.Severity).Render(e.String()))
			s.WriteString("\n")
		}
	}

	if len(m.catalog.Sheets) == 0 {
		s.WriteString(ErrorStyle.Render("No sheets could be read from the added files"))
		s.WriteString("\n")
	}

	for i, sheet := range m.catalog.Sheets {
		cursor := " "
		if m.sheetCursor == i {
			cursor = ">"
		}

		checked := " "
		if indexOf(m.sheets, sheet) >= 0 {
			checked = "✓"
		}

		line := fmt.Sprintf("%s [%s] %s (%d of %d files)", cursor, checked, sheet, m.catalog.FileCount[sheet], len(m.files))

		switch {
		case m.sheetCursor == i:
			line = SelectedStyle.Render(line)
		case checked == "✓":
			line = CheckedStyle.Render(line)
		}

		s.WriteString(line)
		s.WriteString("\n")
	}

	if len(m.sheets) > 0 {
		s.WriteString("\n")
		s.WriteString(fmt.Sprintf("Processing order: %s\n", strings.Join(m.sheets, ", ")))
	}

	s.WriteString(HelpStyle.Render("↑/↓: navigate • space: toggle • a: all • d: none • enter: consolidate • b: back • q: quit"))

	return BoxStyle.Render(s.String())
}

func (m Model) viewProcessing() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("📊 Processing..."))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("Consolidating %d sheet(s) across %d file(s)...", len(m.sheets), len(m.files)))
	s.WriteString("\n\n")
	s.WriteString(m.progress.View())

	return BoxStyle.Render(s.String())
}

func (m Model) viewSummary() string {
	var s strings.Builder

	sum := m.result.Summary()

	s.WriteString(TitleStyle.Render("✓ Consolidation Complete"))
	s.WriteString("\n\n")
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		MetricStyle.Render(fmt.Sprintf("Total rows\n%d", sum.Rows)),
		MetricStyle.Render(fmt.Sprintf("Total columns\n%d", sum.Columns)),
		MetricStyle.Render(fmt.Sprintf("Unique sheets\n%d", sum.UniqueSheets)),
	))
	s.WriteString("\n")

	if problems := countProblems(m.result); problems > 0 {
		s.WriteString(WarningStyle.Render(fmt.Sprintf("! %d warning(s) or error(s), press l to view the log", problems)))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	if m.showPreview {
		s.WriteString(CheckedStyle.Render(fmt.Sprintf("Preview (first %d rows)", min(previewRows, sum.Rows))))
		s.WriteString("\n")
		s.WriteString(m.preview.View())
		s.WriteString("\n")
	} else {
		s.WriteString(m.viewColumns())
	}

	s.WriteString("\n")
	format := "[XLSX]  CSV "
	if m.format == export.FormatCSV {
		format = " XLSX  [CSV]"
	}
	s.WriteString(fmt.Sprintf("Format: %s\n", format))
	if m.format == export.FormatXLSX {
		split := "[ ]"
		if m.split {
			split = "[x]"
		}
		s.WriteString(fmt.Sprintf("Split into separate sheets by SheetName: %s\n", split))
	}

	s.WriteString(HelpStyle.Render("↑/↓: navigate • space: toggle • a/d: all/none • p: preview • f: format • s: split • l: log • enter: export • b: back • q: quit"))

	return BoxStyle.Render(s.String())
}

func (m Model) viewColumns() string {
	var s strings.Builder

	cols := m.result.Table.Columns
	selected := 0
	for _, c := range cols {
		if m.selectedCols[c] {
			selected++
		}
	}
	s.WriteString(CheckedStyle.Render(fmt.Sprintf("Columns to export (%d of %d)", selected, len(cols))))
	s.WriteString("\n")

	// Keep the cursor visible on short terminals.
	visible := max(m.height-24, 8)
	start := 0
	if m.colCursor >= visible {
		start = m.colCursor - visible + 1
	}
	end := min(start+visible, len(cols))

	for i := start; i < end; i++ {
		c := cols[i]

		cursor := " "
		if m.colCursor == i {
			cursor = ">"
		}

		checked := " "
		if m.selectedCols[c] {
			checked = "✓"
		}

		line := fmt.Sprintf("%s [%s] %s", cursor, checked, c)
		switch {
		case locked(c):
			line = LockedStyle.Render(line + " (always included)")
		case m.colCursor == i:
			line = SelectedStyle.Render(line)
		case m.selectedCols[c]:
			line = CheckedStyle.Render(line)
		}

		s.WriteString(line)
		s.WriteString("\n")
	}
	if end < len(cols) {
		s.WriteString(HelpStyle.Render(fmt.Sprintf("... %d more", len(cols)-end)))
		s.WriteString("\n")
	}

	return s.String()
}

func (m Model) viewLog() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("📋 Processing Log"))
	s.WriteString("\n")
	if m.result != nil {
		s.WriteString(SubtitleStyle.Render("Run " + m.result.RunID))
	}
	s.WriteString("\n\n")

	if m.result != nil {
		entries := m.result.Log.Entries()
		limit := max(m.height-12, 10)
		if len(entries) > limit {
			s.WriteString(HelpStyle.Render(fmt.Sprintf("... %d earlier message(s)", len(entries)-limit)))
			s.WriteString("\n")
			entries = entries[len(entries)-limit:]
		}
		for _, e := range entries {
			s.WriteString(severityStyle(e.Severity).Render(e.String()))
			s.WriteString("\n")
		}
	}

	s.WriteString(HelpStyle.Render("l/esc: back • q: quit"))

	return BoxStyle.Render(s.String())
}

func (m Model) viewComplete() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("✓ Export Complete!"))
	s.WriteString("\n\n")

	maxPathLen := m.width - 20
	if maxPathLen < 30 {
		maxPathLen = 30
	}

	outputPath := m.outputPath
	if len(outputPath) > maxPathLen {
		outputPath = "..." + outputPath[len(outputPath)-maxPathLen+3:]
	}

	sum := m.result.Summary()
	s.WriteString(SuccessStyle.Render(fmt.Sprintf("Output: %s", outputPath)))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("Rows exported: %d\n", sum.Rows))
	s.WriteString(fmt.Sprintf("Columns exported: %d\n", len(m.exportColumns())))
	s.WriteString("\n")
	s.WriteString(HelpStyle.Render("enter: back to summary • q: quit"))

	return BoxStyle.Render(s.String())
}

func (m Model) viewError() string {
	var s strings.Builder

	s.WriteString(ErrorStyle.Render("✗ Error"))
	s.WriteString("\n\n")
	if m.err != nil {
		s.WriteString(m.err.Error())
	}
	if errors.Is(m.err, consolidate.ErrNoData) {
		s.WriteString("\n\nCheck that the selected sheets exist in the uploaded files.")
	}
	s.WriteString("\n\n")

	help := "b: back • any other key: exit"
	if m.result != nil {
		help = "l: view log • " + help
	}
	s.WriteString(HelpStyle.Render(help))

	return BoxStyle.Render(s.String())
}

func countProblems(res *consolidate.Result) int {
	n := 0
	for _, e := range res.Log.Entries() {
		if e.Severity >= types.SeverityWarning {
			n++
		}
	}
	return n
}
