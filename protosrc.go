// Package protosrc locates .proto source files, parses them, and resolves
// their transitive imports into a dependency-ordered set of file
// descriptors.
//
// A SourceTree maps canonical slash-separated names such as
// "google/protobuf/any.proto" to byte streams. A Database walks the imports
// of one or more roots through a SourceTree, parsing each file exactly once
// and reporting problems to an ErrorRecorder:
//
//	tree := protosrc.NewDiskTree()
//	tree.MapPath("", "./proto")
//
//	errs := protosrc.NewErrorCollector(nil)
//	db := protosrc.NewDatabase(tree, protosrc.WithErrorRecorder(errs))
//	set, err := db.Resolve("shop/order.proto")
//
// None of the types in this package are safe for concurrent use.
package protosrc

import (
	"context"
	"errors"
	"log/slog"
)

// Sentinel errors.
var (
	// ErrNotFound is matched by errors from SourceTree.Open when the file
	// does not exist. It is fs.ErrNotExist.
	ErrNotFound = errNotFound

	// ErrParse is returned when a file could not be parsed. The details
	// have been recorded to the ErrorRecorder.
	ErrParse = errors.New("parse failed")

	// ErrImportCycle is returned alongside a complete ResolvedSet when the
	// import graph contains a cycle.
	ErrImportCycle = errors.New("import cycle")

	// ErrNoRoots is returned when no root files were given.
	ErrNoRoots = errors.New("no root files provided")
)

// LevelTrace is a custom log level more verbose than Debug.
// Use for per-import logging.
// Enable with: &slog.HandlerOptions{Level: slog.Level(-8)}
const LevelTrace = slog.Level(-8)

// Option configures a Database.
type Option func(*dbConfig)

type dbConfig struct {
	logger *slog.Logger
	parser Parser
	errs   ErrorRecorder
}

// WithLogger sets the logger for debug/trace output.
// If not set, no logging occurs (zero overhead).
func WithLogger(logger *slog.Logger) Option {
	return func(c *dbConfig) { c.logger = logger }
}

// WithParser replaces the default protoparse-backed Parser.
func WithParser(p Parser) Option {
	return func(c *dbConfig) { c.parser = p }
}

// WithErrorRecorder sets where diagnostics are recorded. Equivalent to
// calling RecordErrorsTo after construction.
func WithErrorRecorder(r ErrorRecorder) Option {
	return func(c *dbConfig) { c.errs = r }
}

// logEnabled returns true if logging is enabled at the given level.
func logEnabled(logger *slog.Logger, level slog.Level) bool {
	return logger != nil && logger.Enabled(context.Background(), level)
}

func componentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("component", component))
}
