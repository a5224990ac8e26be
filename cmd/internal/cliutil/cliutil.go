// Package cliutil provides shared helpers for the protosrc command-line tool.
package cliutil

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Color modes accepted by --color.
const (
	ColorAuto = "auto"
	ColorOn   = "on"
	ColorOff  = "off"
)

// GetOutput creates the output file, or returns stdout when outputFile is
// empty or "-". The returned function closes the file.
func GetOutput(outputFile string, stdout io.Writer) (io.Writer, func() error, error) {
	if outputFile == "" || outputFile == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// PrintError writes a formatted error message to w.
func PrintError(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, "error: "+format+"\n", args...)
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// UseColor resolves a --color mode for output written to w.
func UseColor(mode string, w io.Writer) (bool, error) {
	switch mode {
	case ColorOn:
		return true, nil
	case ColorOff:
		return false, nil
	case ColorAuto, "":
		return IsTerminal(w), nil
	}
	return false, fmt.Errorf("invalid color mode %q (want auto, on or off)", mode)
}
