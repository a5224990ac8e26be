package protosrc

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/protosrc/protosrc/internal/types"
)

// Severity classifies a FileLoadError.
type Severity = types.Severity

const (
	SeverityError   = types.SeverityError
	SeverityWarning = types.SeverityWarning
)

// FileLoadError is one diagnostic recorded while loading files.
type FileLoadError struct {
	Filename string
	Line     int // 1-based line number, 0 if the error applies to the whole file
	Column   int // 1-based column, 0 if not applicable
	Message  string
	Severity Severity
}

// String renders the diagnostic as "file:line:col: severity: message",
// omitting the location when there is none.
func (e FileLoadError) String() string {
	var b strings.Builder
	b.WriteString(e.Filename)
	b.WriteByte(':')
	if e.Line > 0 {
		fmt.Fprintf(&b, "%d:%d:", e.Line, e.Column)
	}
	b.WriteByte(' ')
	b.WriteString(e.Severity.String())
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// ErrorRecorder receives diagnostics from the parser and the Database.
type ErrorRecorder interface {
	RecordError(filename string, line, column int, message string)
	RecordWarning(filename string, line, column int, message string)
}

// ErrorCollector is an ErrorRecorder that keeps every diagnostic in memory,
// in recording order. Nothing is deduplicated and nothing is cleared
// automatically; call Reset between independent runs.
type ErrorCollector struct {
	errs []FileLoadError
	types.Logger
}

// NewErrorCollector returns an empty collector. Pass nil for logger to
// disable logging.
func NewErrorCollector(logger *slog.Logger) *ErrorCollector {
	return &ErrorCollector{Logger: types.Logger{L: logger}}
}

func (c *ErrorCollector) RecordError(filename string, line, column int, message string) {
	c.record(SeverityError, filename, line, column, message)
}

func (c *ErrorCollector) RecordWarning(filename string, line, column int, message string) {
	c.record(SeverityWarning, filename, line, column, message)
}

func (c *ErrorCollector) record(sev Severity, filename string, line, column int, message string) {
	e := FileLoadError{
		Filename: filename,
		Line:     line,
		Column:   column,
		Message:  message,
		Severity: sev,
	}
	c.errs = append(c.errs, e)
	c.Log(slog.LevelDebug, "diagnostic recorded",
		slog.String("severity", sev.String()),
		slog.String("file", filename),
		slog.Int("line", line),
		slog.String("message", message))
}

// Errors returns a copy of every recorded diagnostic. It does not clear
// the collector.
func (c *ErrorCollector) Errors() []FileLoadError {
	return slices.Clone(c.errs)
}

// Warnings returns only the diagnostics recorded as warnings.
func (c *ErrorCollector) Warnings() []FileLoadError {
	var out []FileLoadError
	for _, e := range c.errs {
		if e.Severity == SeverityWarning {
			out = append(out, e)
		}
	}
	return out
}

// HasErrors reports whether any diagnostic with error severity was recorded.
func (c *ErrorCollector) HasErrors() bool {
	return slices.ContainsFunc(c.errs, func(e FileLoadError) bool {
		return e.Severity == SeverityError
	})
}

// Len returns the number of recorded diagnostics.
func (c *ErrorCollector) Len() int {
	return len(c.errs)
}

// Reset discards every recorded diagnostic.
func (c *ErrorCollector) Reset() {
	c.errs = nil
}

// discardRecorder drops every diagnostic.
type discardRecorder struct{}

func (discardRecorder) RecordError(string, int, int, string)   {}
func (discardRecorder) RecordWarning(string, int, int, string) {}
