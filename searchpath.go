package protosrc

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/protosrc/protosrc/internal/types"
)

// IncludeEnv names the environment variable that edits the discovered
// include path. A leading colon appends, a trailing colon prepends, and
// anything else replaces the path.
const IncludeEnv = "PROTOSRC_INCLUDE"

// IncludeFileName is the name of the TOML file, looked up in /etc/protosrc
// and in the user configuration directory, that edits the default include
// path:
//
//	include = ["/opt/googleapis"]
//	mode = "append" # or "prepend"; anything else replaces
const IncludeFileName = "include.toml"

// Ways an include file or PROTOSRC_INCLUDE edits the current path.
const (
	modeReplace = "replace"
	modeAppend  = "append"
	modePrepend = "prepend"
)

var errUnknownIncludeKey = errors.New("unknown key")

// includeFile is the decoded form of an include.toml.
type includeFile struct {
	Include []string `toml:"include"`
	Mode    string   `toml:"mode"`
}

// DiscoverIncludePaths returns the system include directories: the
// defaults, edited by the include files and then by PROTOSRC_INCLUDE,
// deduplicated and filtered to directories that exist.
func DiscoverIncludePaths() []string {
	return discoverIncludePaths(os.Getenv, includeFiles(), types.Logger{})
}

// DiscoverIncludePathsLogged is DiscoverIncludePaths with debug logging of
// include files that could not be read.
func DiscoverIncludePathsLogged(logger *slog.Logger) []string {
	return discoverIncludePaths(os.Getenv, includeFiles(), types.Logger{L: logger})
}

// SystemTree returns a DiskTree mapping every discovered include directory
// at the root of the virtual tree, in search order.
func SystemTree(opts ...DiskTreeOption) *DiskTree {
	t := NewDiskTree(opts...)
	WithSystemIncludes()(t)
	return t
}

// WithSystemIncludes maps every discovered include directory at the root
// of the virtual tree, after any mapping added so far.
func WithSystemIncludes() DiskTreeOption {
	return func(t *DiskTree) {
		for _, dir := range DiscoverIncludePaths() {
			t.MapPath("", dir)
		}
	}
}

func discoverIncludePaths(getenv func(string) string, files []string, logger types.Logger) []string {
	paths := includeDefaults()
	for _, path := range files {
		f, err := readIncludeFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case err != nil:
			logger.Log(slog.LevelDebug, "skipping include file", slog.String("path", path), slog.Any("error", err))
			continue
		}
		paths = edit(f.Mode, f.Include, paths)
	}
	if v := getenv(IncludeEnv); v != "" {
		mode, dirs := parseIncludeEnv(v)
		paths = edit(mode, dirs, paths)
	}
	return existingDirs(unique(paths))
}

func includeDefaults() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".local", "include"))
	}
	return append(paths, "/usr/local/include", "/usr/include")
}

func includeFiles() []string {
	files := []string{filepath.Join("/etc/protosrc", IncludeFileName)}
	if dir, err := os.UserConfigDir(); err == nil {
		files = append(files, filepath.Join(dir, "protosrc", IncludeFileName))
	}
	return files
}

// readIncludeFile decodes an include file. Relative directories are taken
// relative to the file.
func readIncludeFile(path string) (includeFile, error) {
	var f includeFile
	meta, err := toml.DecodeFile(path, &f)
	if err != nil {
		return f, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return f, fmt.Errorf("%s: %w: %s", path, errUnknownIncludeKey, undecoded[0])
	}
	for i, dir := range f.Include {
		if !filepath.IsAbs(dir) {
			f.Include[i] = filepath.Join(filepath.Dir(path), dir)
		}
	}
	return f, nil
}

// parseIncludeEnv interprets the colon conventions of PROTOSRC_INCLUDE.
func parseIncludeEnv(value string) (mode string, dirs []string) {
	mode = modeReplace
	switch {
	case strings.HasPrefix(value, ":"):
		mode = modeAppend
	case strings.HasSuffix(value, ":"):
		mode = modePrepend
	}
	dirs = strings.FieldsFunc(value, func(r rune) bool { return r == ':' })
	return mode, dirs
}

func edit(mode string, dirs, current []string) []string {
	switch mode {
	case modeAppend:
		return append(current, dirs...)
	case modePrepend:
		return append(dirs, current...)
	default:
		return dirs
	}
}

func unique(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := paths[:0:0]
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func existingDirs(paths []string) []string {
	var out []string
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			out = append(out, p)
		}
	}
	return out
}
