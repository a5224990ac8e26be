package protosrc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/protosrc/protosrc/internal/graph"
)

// Database resolves .proto files and their transitive imports from a
// SourceTree.
//
// The set of visited file names persists across calls: a file returned by
// one Resolve is neither parsed nor returned again by a later one until
// Reset is called. The tree, parser and recorder are borrowed and must
// outlive the Database. Not safe for concurrent use.
type Database struct {
	tree    SourceTree
	parser  Parser
	errs    ErrorRecorder
	logger  *slog.Logger
	visited map[string]struct{}
	graph   *graph.Graph
}

// NewDatabase returns a Database reading from tree. Without WithParser it
// uses NewProtoParser with default settings; without an ErrorRecorder
// diagnostics are dropped.
func NewDatabase(tree SourceTree, opts ...Option) *Database {
	var cfg dbConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.parser == nil {
		cfg.parser = NewProtoParser(ParseConfig{Logger: cfg.logger})
	}
	if cfg.errs == nil {
		cfg.errs = discardRecorder{}
	}
	return &Database{
		tree:    tree,
		parser:  cfg.parser,
		errs:    cfg.errs,
		logger:  componentLogger(cfg.logger, "database"),
		visited: make(map[string]struct{}),
		graph:   graph.New(0),
	}
}

// RecordErrorsTo directs diagnostics to r. Call it before resolving.
func (db *Database) RecordErrorsTo(r ErrorRecorder) {
	if r == nil {
		r = discardRecorder{}
	}
	db.errs = r
}

// FindFileByName opens and parses a single file without following its
// imports. It neither consults nor updates the visited set.
func (db *Database) FindFileByName(name string) (*descriptorpb.FileDescriptorProto, error) {
	return db.load(name)
}

// Visited reports whether name has been resolved or is being resolved.
func (db *Database) Visited(name string) bool {
	_, ok := db.visited[name]
	return ok
}

// Reset forgets every visited file and the import graph, so the next
// Resolve parses files again.
func (db *Database) Reset() {
	clear(db.visited)
	db.graph = graph.New(0)
}

// ImportGraph returns every file parsed so far in an order where imports
// come first, together with the import cycles among them.
func (db *Database) ImportGraph() (order []string, cycles [][]string) {
	return db.graph.ResolutionOrder()
}

// Imports returns the imports of a parsed file in declaration order.
func (db *Database) Imports(name string) []string {
	return db.graph.Imports(name)
}

// Resolve returns root and every file it transitively imports that has not
// been visited before, ordered so that each file follows all of its
// imports.
//
// If a file cannot be opened or parsed the traversal of root stops: the
// error is returned together with the files completed so far, and the
// files still in progress become unvisited so a later call can retry them.
// An import cycle is recorded as an error diagnostic; the traversal still
// completes and the returned error matches ErrImportCycle, also when the
// same traversal later stops on a failure.
func (db *Database) Resolve(root string) (*ResolvedSet, error) {
	set := &ResolvedSet{}
	if err := db.resolveInto(set, root); err != nil {
		if cerr := db.finish(set); cerr != nil {
			return set, errors.Join(err, cerr)
		}
		return set, err
	}
	return set, db.finish(set)
}

// ResolveAll resolves each root in turn into one set. A root that fails
// does not stop the others; the failures are joined.
func (db *Database) ResolveAll(roots ...string) (*ResolvedSet, error) {
	set := &ResolvedSet{}
	if len(roots) == 0 {
		return set, ErrNoRoots
	}
	var errs []error
	for _, root := range roots {
		if err := db.resolveInto(set, root); err != nil {
			errs = append(errs, err)
		}
	}
	if err := db.finish(set); err != nil {
		errs = append(errs, err)
	}
	return set, errors.Join(errs...)
}

// BuildFileDescriptorSet resolves roots and returns the files as a
// FileDescriptorSet. On failure the set holds whatever was resolved.
func (db *Database) BuildFileDescriptorSet(roots ...string) (*descriptorpb.FileDescriptorSet, error) {
	set, err := db.ResolveAll(roots...)
	return set.FileDescriptorSet(), err
}

// finish fills in the cycles touching set and reports them.
func (db *Database) finish(set *ResolvedSet) error {
	if !set.sawCycle {
		return nil
	}
	members := make(map[string]struct{}, len(set.Files))
	for _, fd := range set.Files {
		members[fd.GetName()] = struct{}{}
	}
	set.Cycles = set.Cycles[:0]
	for _, cycle := range db.graph.FindCycles() {
		for _, name := range cycle {
			if _, ok := members[name]; ok {
				set.Cycles = append(set.Cycles, cycle)
				break
			}
		}
	}
	return fmt.Errorf("%w: %s", ErrImportCycle, formatCycles(set.Cycles))
}

func formatCycles(cycles [][]string) string {
	parts := make([]string, len(cycles))
	for i, c := range cycles {
		parts[i] = strings.Join(c, ", ")
	}
	return "[" + strings.Join(parts, "] [") + "]"
}

// frame is one file whose imports are being visited.
type frame struct {
	name string
	fd   *descriptorpb.FileDescriptorProto
	next int // index of the next import to visit
}

func (db *Database) resolveInto(set *ResolvedSet, root string) error {
	if db.Visited(root) {
		if logEnabled(db.logger, LevelTrace) {
			db.logger.Log(context.Background(), LevelTrace, "already visited", slog.String("file", root))
		}
		return nil
	}
	if logEnabled(db.logger, slog.LevelDebug) {
		db.logger.Debug("resolving", slog.String("root", root))
	}

	db.visited[root] = struct{}{}
	fd, err := db.load(root)
	if err != nil {
		delete(db.visited, root)
		return err
	}
	db.graph.AddNode(root)

	stack := []frame{{name: root, fd: fd}}
	inProgress := map[string]int{root: 0}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		deps := top.fd.GetDependency()
		if top.next == len(deps) {
			set.Files = append(set.Files, top.fd)
			delete(inProgress, top.name)
			stack = stack[:len(stack)-1]
			continue
		}

		dep := deps[top.next]
		top.next++
		from := top.name

		if _, seen := db.visited[dep]; seen {
			db.graph.AddEdge(from, dep)
			if at, ok := inProgress[dep]; ok {
				db.recordCycle(stack[at:], dep)
				set.sawCycle = true
			}
			continue
		}
		if logEnabled(db.logger, LevelTrace) {
			db.logger.Log(context.Background(), LevelTrace, "import",
				slog.String("file", from),
				slog.String("import", dep))
		}

		db.visited[dep] = struct{}{}
		fd, err := db.load(dep)
		if err != nil {
			delete(db.visited, dep)
			for _, f := range stack {
				delete(db.visited, f.name)
			}
			if logEnabled(db.logger, slog.LevelDebug) {
				db.logger.Debug("resolution aborted",
					slog.String("root", root),
					slog.String("file", dep),
					slog.Any("error", err))
			}
			return fmt.Errorf("resolving %s: %w", root, err)
		}
		db.graph.AddEdge(from, dep)
		inProgress[dep] = len(stack)
		stack = append(stack, frame{name: dep, fd: fd})
	}
	return nil
}

func (db *Database) recordCycle(frames []frame, back string) {
	names := make([]string, 0, len(frames)+1)
	for _, f := range frames {
		names = append(names, f.name)
	}
	names = append(names, back)
	from := frames[len(frames)-1].name
	db.errs.RecordError(from, 0, 0, "import cycle: "+strings.Join(names, " -> "))
	if logEnabled(db.logger, slog.LevelDebug) {
		db.logger.Debug("import cycle", slog.Any("files", names))
	}
}

// load opens and parses one file. Failures are recorded to the
// ErrorRecorder before returning.
func (db *Database) load(name string) (*descriptorpb.FileDescriptorProto, error) {
	in, err := db.tree.Open(name)
	if err != nil {
		msg := db.tree.LastErrorMessage()
		if msg == "" {
			msg = err.Error()
		}
		db.errs.RecordError(name, 0, 0, msg)
		return nil, err
	}
	defer func() { _ = closeStream(in) }()

	fd, err := db.parser.Parse(name, in, db.errs)
	if err != nil {
		if !errors.Is(err, ErrParse) {
			err = fmt.Errorf("%s: %w: %w", name, ErrParse, err)
		}
		return nil, err
	}
	if fd == nil {
		db.errs.RecordError(name, 0, 0, "parser returned no descriptor")
		return nil, fmt.Errorf("%s: %w", name, ErrParse)
	}
	if fd.GetName() == "" {
		fd.Name = proto.String(name)
	}
	return fd, nil
}
