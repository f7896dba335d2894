package types

import (
	"context"
	"fmt"
	"log/slog"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// Icon returns the marker shown in front of an entry in the processing log.
func (s Severity) Icon() string {
	switch s {
	case SeveritySuccess:
		return "✓"
	case SeverityWarning:
		return "!"
	case SeverityError:
		return "✗"
	default:
		return "i"
	}
}

func (s Severity) level() slog.Level {
	switch s {
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Kind classifies an entry so callers can react to specific conditions
// without parsing messages.
type Kind int

const (
	KindNone Kind = iota
	KindSheetList
	KindSheetNotFound
	KindEmptyResult
	KindIngest
	KindDetect
	KindLoaded
	KindComplete
)

func (k Kind) String() string {
	switch k {
	case KindSheetList:
		return "sheet_list"
	case KindSheetNotFound:
		return "sheet_not_found"
	case KindEmptyResult:
		return "empty_result"
	case KindIngest:
		return "ingest"
	case KindDetect:
		return "detect"
	case KindLoaded:
		return "loaded"
	case KindComplete:
		return "complete"
	default:
		return "none"
	}
}

type LogEntry struct {
	Severity Severity
	Kind     Kind
	File     string
	Sheet    string
	Message  string
}

func (e LogEntry) String() string {
	return fmt.Sprintf("%s %s", e.Severity.Icon(), e.Message)
}

// ProcessingLog is the append-only log of one consolidation run. When a
// logger is attached every entry is mirrored to it.
type ProcessingLog struct {
	ctx     context.Context
	logger  *slog.Logger
	entries []LogEntry
}

// NewProcessingLog returns a log mirrored to logger. A nil logger keeps the
// entries in memory only.
func NewProcessingLog(ctx context.Context, logger *slog.Logger) *ProcessingLog {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ProcessingLog{ctx: ctx, logger: logger}
}

// Add appends one entry.
func (l *ProcessingLog) Add(entry LogEntry) {
	l.entries = append(l.entries, entry)
	if l.logger != nil {
		l.logger.Log(l.ctx, entry.Severity.level(), entry.Message,
			"severity", entry.Severity.String(),
			"kind", entry.Kind.String(),
			"file", entry.File,
			"sheet", entry.Sheet,
		)
	}
}

// Addf appends an entry with a formatted message.
func (l *ProcessingLog) Addf(sev Severity, kind Kind, file, sheet, format string, args ...any) {
	l.Add(LogEntry{
		Severity: sev,
		Kind:     kind,
		File:     file,
		Sheet:    sheet,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Merge appends every entry of other, in order.
func (l *ProcessingLog) Merge(other *ProcessingLog) {
	if other == nil {
		return
	}
	for _, e := range other.entries {
		l.Add(e)
	}
}

// Entries returns a copy of the entries in append order.
func (l *ProcessingLog) Entries() []LogEntry {
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Filter returns the entries of the given kind.
func (l *ProcessingLog) Filter(kind Kind) []LogEntry {
	var out []LogEntry
	for _, e := range l.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (l *ProcessingLog) Len() int {
	return len(l.entries)
}
