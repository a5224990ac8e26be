package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/protosrc/protosrc"
	"github.com/protosrc/protosrc/cmd/internal/cliutil"
	"github.com/protosrc/protosrc/internal/config"
)

// errReported marks a failure whose details were already printed.
var errReported = errors.New("errors reported")

type globalOptions struct {
	configPath string
	includes   []string
	mappings   []string
	system     bool
	warnings   bool
	sourceInfo bool
	verbose    int
	color      string
}

func (o *globalOptions) register(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&o.configPath, "config", "", "configuration file (default: nearest "+config.FileName+")")
	flags.StringArrayVarP(&o.includes, "include", "I", nil, "directory to search for imports (repeatable)")
	flags.StringArrayVarP(&o.mappings, "map", "M", nil, "map a virtual prefix to a disk path, as virtual=disk (repeatable)")
	flags.BoolVar(&o.system, "system", false, "also search the system include directories")
	flags.BoolVar(&o.warnings, "warnings", false, "report parser warnings")
	flags.BoolVar(&o.sourceInfo, "source-info", false, "keep source locations and comments in descriptors")
	flags.CountVarP(&o.verbose, "verbose", "v", "enable debug logging (-vv for trace)")
	flags.StringVar(&o.color, "color", cliutil.ColorAuto, "colorize diagnostics (auto|on|off)")
}

// load merges the configuration file, the environment and the flags that
// were set on the command line, in increasing order of precedence.
func (o *globalOptions) load(flags *pflag.FlagSet) (config.Config, error) {
	path := o.configPath
	if path == "" {
		found, ok, err := config.Find("")
		if err != nil {
			return config.Config{}, err
		}
		if ok {
			path = found
		}
	}
	cfg, err := config.Load(path, nil)
	if err != nil {
		return cfg, err
	}

	if flags.Changed("include") {
		cfg.Include = o.includes
	}
	if flags.Changed("map") {
		cfg.Mappings = cfg.Mappings[:0]
		for _, m := range o.mappings {
			virtual, disk, ok := strings.Cut(m, "=")
			if !ok {
				return cfg, fmt.Errorf("invalid --map %q: want virtual=disk", m)
			}
			cfg.Mappings = append(cfg.Mappings, config.Mapping{Virtual: virtual, Disk: disk})
		}
	}
	if flags.Changed("system") {
		cfg.System = o.system
	}
	if flags.Changed("warnings") {
		cfg.Warnings = o.warnings
	}
	if flags.Changed("source-info") {
		cfg.SourceInfo = o.sourceInfo
	}
	return cfg, cfg.Validate()
}

func (o *globalOptions) logger(w io.Writer) *slog.Logger {
	if o.verbose == 0 {
		return nil
	}
	level := slog.LevelDebug
	if o.verbose >= 2 {
		level = protosrc.LevelTrace
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// tree builds the search tree: explicit mappings first, then include
// directories, then system directories. With none of those the current
// directory is the root.
func buildTree(cfg config.Config, logger *slog.Logger) *protosrc.DiskTree {
	tree := protosrc.NewDiskTree()
	for _, m := range cfg.Mappings {
		tree.MapPath(m.Virtual, m.Disk)
	}
	for _, dir := range cfg.Include {
		tree.MapPath("", dir)
	}
	if cfg.System {
		for _, dir := range protosrc.DiscoverIncludePathsLogged(logger) {
			tree.MapPath("", dir)
		}
	}
	if len(tree.Mappings()) == 0 {
		tree.MapPath("", ".")
	}
	return tree
}

// virtualRoots turns arguments naming files on disk into virtual names.
// Arguments that are not files on disk are taken as virtual names.
func virtualRoots(tree *protosrc.DiskTree, args []string) ([]string, error) {
	roots := make([]string, 0, len(args))
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || info.IsDir() {
			roots = append(roots, arg)
			continue
		}
		name, err := tree.DiskToVirtual(arg)
		switch {
		case errors.Is(err, protosrc.ErrNoMapping):
			return nil, fmt.Errorf("%s: file does not reside within any search path", arg)
		case errors.Is(err, protosrc.ErrShadowed):
			return nil, fmt.Errorf("%s: shadowed by another file named %q earlier in the search path", arg, name)
		case err != nil:
			return nil, err
		}
		roots = append(roots, name)
	}
	return roots, nil
}

// session is one resolution run shared by build, dump and graph.
type session struct {
	cfg    config.Config
	tree   *protosrc.DiskTree
	errs   *protosrc.ErrorCollector
	db     *protosrc.Database
	set    *protosrc.ResolvedSet
	err    error
	stderr io.Writer
	color  bool
}

func (o *globalOptions) resolve(cmd *cobra.Command, args []string) (*session, error) {
	cfg, err := o.load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		args = cfg.Roots
	}
	if len(args) == 0 {
		return nil, protosrc.ErrNoRoots
	}

	stderr := cmd.ErrOrStderr()
	useColor, err := cliutil.UseColor(o.color, stderr)
	if err != nil {
		return nil, err
	}

	logger := o.logger(stderr)
	tree := buildTree(cfg, logger)
	roots, err := virtualRoots(tree, args)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:    cfg,
		tree:   tree,
		errs:   protosrc.NewErrorCollector(logger),
		stderr: stderr,
		color:  useColor,
	}
	parser := protosrc.NewProtoParser(protosrc.ParseConfig{
		IncludeSourceInfo: cfg.SourceInfo,
		Validate:          true,
		ReportWarnings:    cfg.Warnings,
		Logger:            logger,
	})
	s.db = protosrc.NewDatabase(tree,
		protosrc.WithParser(parser),
		protosrc.WithErrorRecorder(s.errs),
		protosrc.WithLogger(logger),
	)
	s.set, s.err = s.db.ResolveAll(roots...)
	return s, nil
}

// report prints the collected diagnostics and returns the error the
// command should fail with, if any.
func (s *session) report() error {
	printDiagnostics(s.stderr, s.errs.Errors(), s.color)
	code := exitCodeFor(s.err)
	if code == exitOK {
		return nil
	}
	return &exitCodeError{code: code, err: errReported}
}

// exitCodeFor maps a resolution error to an exit status: cycles alone give
// exitCycle, anything else exitError.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		if !errors.Is(e, protosrc.ErrImportCycle) {
			return exitError
		}
	}
	return exitCycle
}
