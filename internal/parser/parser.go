// Package parser parses a single .proto file into a FileDescriptorProto.
//
// Parsing is delegated to protoparse. The parser never resolves imports and
// never links: the caller decides how declared imports are located. Every
// diagnostic is routed to a Reporter supplied per call; nothing is written to
// a process-wide sink, so a caller that passes a no-op reporter gets a silent
// parse.
package parser

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/jhump/protoreflect/desc/protoparse"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/protosrc/protosrc/internal/types"
)

// ErrInvalidSource is returned when the file had syntax or validation errors.
// The individual errors have been handed to the Reporter.
var ErrInvalidSource = protoparse.ErrInvalidSource

// Reporter receives diagnostics produced while parsing. Line and column are
// 1-based; zero means the diagnostic applies to the whole file.
type Reporter interface {
	Report(sev types.Severity, filename string, line, column int, message string)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(sev types.Severity, filename string, line, column int, message string)

func (f ReporterFunc) Report(sev types.Severity, filename string, line, column int, message string) {
	f(sev, filename, line, column, message)
}

// Config controls what the parser produces and reports.
type Config struct {
	// IncludeSourceInfo keeps source code info (locations, comments) in
	// the produced descriptor.
	IncludeSourceInfo bool

	// Validate runs the checks that do not need imported files, such as
	// duplicate field numbers and reserved range conflicts.
	Validate bool

	// ReportWarnings forwards warnings to the Reporter. When false,
	// warnings are dropped.
	ReportWarnings bool
}

// Parser parses one file per call.
type Parser struct {
	config Config
	types.Logger
}

// New returns a Parser. Pass nil for logger to disable logging.
func New(config Config, logger *slog.Logger) *Parser {
	return &Parser{config: config, Logger: types.Logger{L: logger}}
}

// File parses the contents of r as the file called name. Errors found in
// the source are reported to rep and yield ErrInvalidSource; other failures
// (such as a read error) are reported as file-level errors and returned.
func (p *Parser) File(name string, r io.Reader, rep Reporter) (*descriptorpb.FileDescriptorProto, error) {
	consumed := false
	pp := protoparse.Parser{
		IncludeSourceCodeInfo: p.config.IncludeSourceInfo,
		ValidateUnlinkedFiles: p.config.Validate,
		Accessor: func(filename string) (io.ReadCloser, error) {
			if consumed {
				return nil, fmt.Errorf("%s: %w", filename, fs.ErrNotExist)
			}
			consumed = true
			return io.NopCloser(r), nil
		},
		ErrorReporter: func(err protoparse.ErrorWithPos) error {
			p.report(rep, types.SeverityError, name, err)
			return nil
		},
		WarningReporter: func(err protoparse.ErrorWithPos) {
			if p.config.ReportWarnings {
				p.report(rep, types.SeverityWarning, name, err)
			}
		},
	}

	fds, err := pp.ParseFilesButDoNotLink(name)
	if err != nil {
		if !errors.Is(err, ErrInvalidSource) {
			var ewp protoparse.ErrorWithPos
			if errors.As(err, &ewp) {
				p.report(rep, types.SeverityError, name, ewp)
			} else {
				rep.Report(types.SeverityError, name, 0, 0, err.Error())
			}
		}
		p.Log(slog.LevelDebug, "parse failed", slog.String("file", name), slog.Any("error", err))
		return nil, err
	}
	fd, err := single(name, fds, rep)
	if err != nil {
		return nil, err
	}
	if p.TraceEnabled() {
		p.Trace("parsed file",
			slog.String("file", name),
			slog.Int("imports", len(fd.GetDependency())))
	}
	return fd, nil
}

// single returns the only descriptor in fds. Any other count is reported as
// a file-level error.
func single(name string, fds []*descriptorpb.FileDescriptorProto, rep Reporter) (*descriptorpb.FileDescriptorProto, error) {
	if len(fds) == 1 {
		return fds[0], nil
	}
	err := fmt.Errorf("parser: %s: expected 1 descriptor, got %d", name, len(fds))
	rep.Report(types.SeverityError, name, 0, 0, err.Error())
	return nil, err
}

func (p *Parser) report(rep Reporter, sev types.Severity, name string, err protoparse.ErrorWithPos) {
	pos := err.GetPosition()
	filename := pos.Filename
	if filename == "" {
		filename = name
	}
	msg := err.Error()
	if inner := err.Unwrap(); inner != nil {
		msg = inner.Error()
	}
	rep.Report(sev, filename, pos.Line, pos.Col, msg)
}
