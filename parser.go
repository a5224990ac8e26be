package protosrc

import (
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/protosrc/protosrc/internal/parser"
	"github.com/protosrc/protosrc/internal/types"
	"github.com/protosrc/protosrc/zerocopy"
)

// Parser turns the contents of one .proto file into a descriptor. It must
// not resolve imports: the declared dependencies are returned unresolved in
// the descriptor, in declaration order. Problems are recorded to errs and
// signalled by a non-nil error.
type Parser interface {
	Parse(name string, in zerocopy.InputStream, errs ErrorRecorder) (*descriptorpb.FileDescriptorProto, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(name string, in zerocopy.InputStream, errs ErrorRecorder) (*descriptorpb.FileDescriptorProto, error)

func (f ParserFunc) Parse(name string, in zerocopy.InputStream, errs ErrorRecorder) (*descriptorpb.FileDescriptorProto, error) {
	return f(name, in, errs)
}

// ParseConfig controls the default parser.
type ParseConfig struct {
	// IncludeSourceInfo keeps locations and comments in the descriptors.
	IncludeSourceInfo bool

	// Validate runs the checks that need no imported files.
	Validate bool

	// ReportWarnings records parser warnings. When false warnings are
	// dropped.
	ReportWarnings bool

	// Logger receives trace output for each parsed file.
	Logger *slog.Logger
}

// ProtoParser is the default Parser, backed by protoparse.
type ProtoParser struct {
	p *parser.Parser
}

// NewProtoParser returns the default Parser configured by cfg. It writes
// nothing to any global sink; every diagnostic goes to the ErrorRecorder
// passed to Parse.
func NewProtoParser(cfg ParseConfig) *ProtoParser {
	return &ProtoParser{
		p: parser.New(parser.Config{
			IncludeSourceInfo: cfg.IncludeSourceInfo,
			Validate:          cfg.Validate,
			ReportWarnings:    cfg.ReportWarnings,
		}, componentLogger(cfg.Logger, "parser")),
	}
}

// Parse parses the stream as the file called name. Any failure matches
// ErrParse.
func (pp *ProtoParser) Parse(name string, in zerocopy.InputStream, errs ErrorRecorder) (*descriptorpb.FileDescriptorProto, error) {
	if errs == nil {
		errs = discardRecorder{}
	}
	rep := parser.ReporterFunc(func(sev types.Severity, filename string, line, column int, message string) {
		if sev == types.SeverityWarning {
			errs.RecordWarning(filename, line, column, message)
			return
		}
		errs.RecordError(filename, line, column, message)
	})

	fd, err := pp.p.File(name, zerocopy.NewReader(in), rep)
	if err != nil {
		if errors.Is(err, parser.ErrInvalidSource) {
			return nil, fmt.Errorf("%s: %w", name, ErrParse)
		}
		return nil, fmt.Errorf("%s: %w: %w", name, ErrParse, err)
	}
	return fd, nil
}
