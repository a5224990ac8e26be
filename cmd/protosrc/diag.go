package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/protosrc/protosrc"
)

var (
	fileStyle    = color.New(color.Bold)
	errorStyle   = color.New(color.FgRed, color.Bold)
	warningStyle = color.New(color.FgYellow, color.Bold)
)

// printDiagnostics writes one line per diagnostic in the order recorded.
func printDiagnostics(w io.Writer, diags []protosrc.FileLoadError, useColor bool) {
	for _, d := range diags {
		_, _ = fmt.Fprintln(w, formatDiagnostic(d, useColor))
	}
}

func formatDiagnostic(d protosrc.FileLoadError, useColor bool) string {
	if !useColor {
		return d.String()
	}
	styles := []*color.Color{fileStyle, errorStyle, warningStyle}
	for _, s := range styles {
		s.EnableColor()
	}

	loc := d.Filename
	if d.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", d.Filename, d.Line, d.Column)
	}
	sev := errorStyle
	if d.Severity == protosrc.SeverityWarning {
		sev = warningStyle
	}
	return fileStyle.Sprint(loc) + ": " + sev.Sprint(d.Severity.String()) + ": " + d.Message
}
