package protosrc

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/protosrc/protosrc/zerocopy"
)

var errNotFound = fs.ErrNotExist

var (
	// ErrNoMapping is returned by DiskToVirtual when no mapping covers the
	// disk file.
	ErrNoMapping = errors.New("disk file is not under any mapped path")

	// ErrShadowed is returned by DiskToVirtual when the virtual name of a
	// disk file opens a different file through an earlier mapping.
	ErrShadowed = errors.New("virtual file is shadowed by an earlier mapping")
)

const (
	msgVirtualNotFound = "file not found"
	msgInvalidPath     = `backslashes, consecutive slashes, ".", or ".." are not allowed in the virtual path`
	msgAccessDenied    = "read access is denied for file: "
	msgNotInSearchPath = ": file not found in any search path"
)

// SourceTree maps canonical file names to the contents of those files.
//
// Names are relative and slash-separated, for example
// "google/protobuf/timestamp.proto". A failed Open returns an *OpenError;
// when the file simply does not exist the error matches ErrNotFound.
type SourceTree interface {
	// Open returns a stream over the named file. The caller owns the
	// stream and should close it if it implements io.Closer.
	Open(name string) (zerocopy.InputStream, error)

	// LastErrorMessage describes why the most recent Open failed.
	LastErrorMessage() string
}

// OpenError records a failed SourceTree.Open.
type OpenError struct {
	Name    string
	Message string
	Err     error
}

func (e *OpenError) Error() string {
	return "open " + e.Name + ": " + e.Message
}

func (e *OpenError) Unwrap() error { return e.Err }

// --- VirtualTree (in-memory) ---

// VirtualTree is an in-memory SourceTree. Each added file is copied, so the
// caller may reuse its buffer.
type VirtualTree struct {
	files map[string][]byte
}

// NewVirtualTree returns an empty VirtualTree.
func NewVirtualTree() *VirtualTree {
	return &VirtualTree{files: make(map[string][]byte)}
}

// AddFile stores a copy of contents under name, replacing any previous
// file with the same name.
func (t *VirtualTree) AddFile(name string, contents []byte) {
	t.files[name] = slices.Clone(contents)
	if t.files[name] == nil {
		t.files[name] = []byte{}
	}
}

// Open returns a stream over the stored bytes. Opening a missing file does
// not change the tree.
func (t *VirtualTree) Open(name string) (zerocopy.InputStream, error) {
	data, ok := t.files[name]
	if !ok {
		return nil, &OpenError{Name: name, Message: msgVirtualNotFound, Err: errNotFound}
	}
	return zerocopy.NewSliceInputStream(data), nil
}

// LastErrorMessage always reports "file not found"; it is the only way an
// Open on a VirtualTree can fail.
func (t *VirtualTree) LastErrorMessage() string {
	return msgVirtualNotFound
}

// Len returns the number of files in the tree.
func (t *VirtualTree) Len() int {
	return len(t.files)
}

// Names returns the stored file names, sorted.
func (t *VirtualTree) Names() []string {
	names := make([]string, 0, len(t.files))
	for name := range t.files {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// --- DiskTree (mapped directories on a filesystem) ---

// Mapping maps a virtual prefix to a location on disk.
type Mapping struct {
	Virtual string
	Disk    string
}

// DiskTreeOption configures a DiskTree.
type DiskTreeOption func(*DiskTree)

// WithFs sets the filesystem the tree reads from. The default is the
// operating system's filesystem.
func WithFs(fsys afero.Fs) DiskTreeOption {
	return func(t *DiskTree) { t.fs = fsys }
}

// WithBlockSize sets the buffer size of the streams returned by Open.
func WithBlockSize(n int) DiskTreeOption {
	return func(t *DiskTree) { t.blockSize = n }
}

// DiskTree is a SourceTree that reads files through an ordered list of
// mappings from virtual prefixes to disk paths. File contents are not
// cached; every Open reads the filesystem again.
type DiskTree struct {
	fs        afero.Fs
	mappings  []Mapping
	blockSize int
	lastErr   string
}

// NewDiskTree returns a DiskTree with no mappings.
func NewDiskTree(opts ...DiskTreeOption) *DiskTree {
	t := &DiskTree{
		fs:        afero.NewOsFs(),
		blockSize: zerocopy.DefaultBlockSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MapPath maps disk to the virtual location virtual. If disk is a
// directory, every file under it appears under virtual. An empty virtual
// path maps disk to the root of the tree.
//
// When several mappings apply to a name they are tried in the order they
// were added. After
//
//	t.MapPath("bar", "foo/bar")
//	t.MapPath("", "baz")
//
// opening "bar/qux" tries foo/bar/qux, then baz/bar/qux.
func (t *DiskTree) MapPath(virtual, disk string) {
	t.mappings = append(t.mappings, Mapping{
		Virtual: strings.Trim(virtual, "/"),
		Disk:    filepath.Clean(disk),
	})
}

// Mappings returns the registered mappings in search order.
func (t *DiskTree) Mappings() []Mapping {
	return slices.Clone(t.mappings)
}

// Open returns a stream over the first mapped file that exists. The stream
// implements io.Closer and closes the underlying file.
func (t *DiskTree) Open(name string) (zerocopy.InputStream, error) {
	if !validVirtualPath(name) {
		return nil, t.fail(name, msgInvalidPath, fs.ErrInvalid)
	}

	for _, m := range t.mappings {
		rest, ok := matchVirtual(m.Virtual, name)
		if !ok {
			continue
		}
		path := diskJoin(m.Disk, rest)
		f, err := t.fs.Open(path)
		if err != nil {
			// Only a permission failure stops the search. A missing file, a
			// path component that is not a directory and the like fall
			// through to the next mapping.
			if errors.Is(err, fs.ErrPermission) {
				return nil, t.fail(name, msgAccessDenied+path, fs.ErrPermission)
			}
			continue
		}
		if info, err := f.Stat(); err != nil || info.IsDir() {
			_ = f.Close()
			return nil, t.fail(name, msgAccessDenied+path, fs.ErrPermission)
		}
		t.lastErr = ""
		return zerocopy.NewReaderStream(f, zerocopy.WithBlockSize(t.blockSize)), nil
	}

	return nil, t.fail(name, name+msgNotInSearchPath, errNotFound)
}

func (t *DiskTree) fail(name, msg string, err error) error {
	t.lastErr = msg
	return &OpenError{Name: name, Message: msg, Err: err}
}

// LastErrorMessage describes why the most recent Open failed.
func (t *DiskTree) LastErrorMessage() string {
	return t.lastErr
}

// DiskToVirtual returns the virtual name under which diskFile is visible.
// The first mapping whose disk path contains diskFile decides the name.
// It fails with ErrNoMapping when no mapping applies, with ErrShadowed when
// an earlier mapping would open a different file under that name, and with
// ErrNotFound when the file does not exist. The name is returned with
// ErrShadowed and ErrNotFound.
func (t *DiskTree) DiskToVirtual(diskFile string) (string, error) {
	clean := filepath.Clean(diskFile)

	for i, m := range t.mappings {
		rest, ok := matchDisk(m.Disk, clean)
		if !ok {
			continue
		}
		virtual := joinVirtual(m.Virtual, rest)
		if !validVirtualPath(virtual) {
			continue
		}

		for _, earlier := range t.mappings[:i] {
			r, ok := matchVirtual(earlier.Virtual, virtual)
			if !ok {
				continue
			}
			if _, err := t.fs.Stat(diskJoin(earlier.Disk, r)); err == nil {
				return virtual, fmt.Errorf("%s: %w", virtual, ErrShadowed)
			}
		}

		if _, err := t.fs.Stat(clean); err != nil {
			return virtual, fmt.Errorf("%s: %w", diskFile, errNotFound)
		}
		return virtual, nil
	}
	return "", fmt.Errorf("%s: %w", diskFile, ErrNoMapping)
}

// validVirtualPath rejects empty names, absolute names, backslashes and
// empty, "." or ".." components.
func validVirtualPath(name string) bool {
	if name == "" || strings.ContainsRune(name, '\\') {
		return false
	}
	for part := range strings.SplitSeq(name, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

// matchVirtual reports whether name falls under the virtual prefix and
// returns the remainder. A prefix equal to name is a file mapping and
// yields an empty remainder.
func matchVirtual(prefix, name string) (string, bool) {
	switch {
	case prefix == "":
		return name, true
	case name == prefix:
		return "", true
	case strings.HasPrefix(name, prefix+"/"):
		return name[len(prefix)+1:], true
	}
	return "", false
}

// matchDisk is matchVirtual for cleaned disk paths.
func matchDisk(dir, path string) (string, bool) {
	switch {
	case path == dir:
		return "", true
	case dir == ".":
		if filepath.IsAbs(path) || path == ".." || strings.HasPrefix(path, ".."+string(filepath.Separator)) {
			return "", false
		}
		return filepath.ToSlash(path), true
	case strings.HasPrefix(path, dir+string(filepath.Separator)):
		return filepath.ToSlash(path[len(dir)+1:]), true
	case strings.HasSuffix(dir, string(filepath.Separator)) && strings.HasPrefix(path, dir):
		// Root directory.
		return filepath.ToSlash(path[len(dir):]), true
	}
	return "", false
}

func diskJoin(dir, rest string) string {
	if rest == "" {
		return dir
	}
	return filepath.Join(dir, filepath.FromSlash(rest))
}

func joinVirtual(prefix, rest string) string {
	switch {
	case prefix == "":
		return rest
	case rest == "":
		return prefix
	}
	return prefix + "/" + rest
}

// --- FSTree (io/fs, e.g. embed.FS) ---

// FSTree is a SourceTree backed by an fs.FS such as an embed.FS. Names map
// directly to paths in the filesystem.
type FSTree struct {
	fsys    fs.FS
	lastErr string
}

// NewFSTree returns a SourceTree reading from fsys.
func NewFSTree(fsys fs.FS) *FSTree {
	return &FSTree{fsys: fsys}
}

func (t *FSTree) Open(name string) (zerocopy.InputStream, error) {
	if !validVirtualPath(name) {
		t.lastErr = msgInvalidPath
		return nil, &OpenError{Name: name, Message: t.lastErr, Err: fs.ErrInvalid}
	}
	f, err := t.fsys.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			t.lastErr = msgVirtualNotFound
			return nil, &OpenError{Name: name, Message: t.lastErr, Err: errNotFound}
		}
		t.lastErr = msgAccessDenied + name
		return nil, &OpenError{Name: name, Message: t.lastErr, Err: err}
	}
	if info, err := f.Stat(); err != nil || info.IsDir() {
		_ = f.Close()
		t.lastErr = msgAccessDenied + name
		return nil, &OpenError{Name: name, Message: t.lastErr, Err: fs.ErrPermission}
	}
	t.lastErr = ""
	return zerocopy.NewReaderStream(f), nil
}

func (t *FSTree) LastErrorMessage() string {
	return t.lastErr
}

// --- MultiTree (first match wins) ---

// MultiTree combines several SourceTrees.
type MultiTree struct {
	trees   []SourceTree
	lastErr string
}

// Multi combines trees into one. Open tries each tree in order and returns
// the first result that is not a not-found failure.
func Multi(trees ...SourceTree) *MultiTree {
	return &MultiTree{trees: trees}
}

func (t *MultiTree) Open(name string) (zerocopy.InputStream, error) {
	t.lastErr = msgVirtualNotFound
	for _, tree := range t.trees {
		in, err := tree.Open(name)
		if err == nil {
			t.lastErr = ""
			return in, nil
		}
		t.lastErr = tree.LastErrorMessage()
		if !errors.Is(err, errNotFound) {
			return nil, err
		}
	}
	return nil, &OpenError{Name: name, Message: t.lastErr, Err: errNotFound}
}

// LastErrorMessage returns the message of the last tree that failed.
func (t *MultiTree) LastErrorMessage() string {
	return t.lastErr
}

// closeStream closes in if the stream owns a resource.
func closeStream(in zerocopy.InputStream) error {
	if c, ok := in.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
