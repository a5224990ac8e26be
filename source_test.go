package protosrc

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/spf13/afero"

	"github.com/protosrc/protosrc/internal/testutil"
	"github.com/protosrc/protosrc/zerocopy"
)

func readAll(t *testing.T, in zerocopy.InputStream) string {
	t.Helper()
	data, err := io.ReadAll(zerocopy.NewReader(in))
	testutil.NoError(t, err, "read stream")
	testutil.NoError(t, closeStream(in), "close stream")
	return string(data)
}

func TestVirtualTreeRoundTrip(t *testing.T) {
	tree := NewVirtualTree()
	buf := []byte("syntax = \"proto3\";")
	tree.AddFile("a/b.proto", buf)
	buf[0] = 'X' // the tree keeps its own copy

	in, err := tree.Open("a/b.proto")
	testutil.NoError(t, err, "Open")
	testutil.Equal(t, `syntax = "proto3";`, readAll(t, in))
	testutil.Equal(t, 1, tree.Len())
}

func TestVirtualTreeEmptyFile(t *testing.T) {
	tree := NewVirtualTree()
	tree.AddFile("empty.proto", nil)

	in, err := tree.Open("empty.proto")
	testutil.NoError(t, err, "Open")
	testutil.Equal(t, "", readAll(t, in))
}

func TestVirtualTreeReplace(t *testing.T) {
	tree := NewVirtualTree()
	tree.AddFile("x.proto", []byte("old"))
	tree.AddFile("x.proto", []byte("new"))

	in, err := tree.Open("x.proto")
	testutil.NoError(t, err, "Open")
	testutil.Equal(t, "new", readAll(t, in))
	testutil.Equal(t, 1, tree.Len())
}

func TestVirtualTreeNotFound(t *testing.T) {
	tree := NewVirtualTree()
	tree.AddFile("b.proto", []byte("b"))

	in, err := tree.Open("missing.proto")
	testutil.Nil(t, in, "stream")
	testutil.ErrorIs(t, err, ErrNotFound)
	testutil.ErrorIs(t, err, fs.ErrNotExist)
	testutil.Equal(t, "file not found", tree.LastErrorMessage())

	var oe *OpenError
	testutil.True(t, errors.As(err, &oe), "error should be *OpenError")
	testutil.Equal(t, "missing.proto", oe.Name)

	// A failed open leaves the tree unchanged.
	testutil.SliceEqual(t, []string{"b.proto"}, tree.Names())
}

func TestVirtualTreeNames(t *testing.T) {
	tree := NewVirtualTree()
	tree.AddFile("z.proto", nil)
	tree.AddFile("a/b.proto", nil)
	tree.AddFile("m.proto", nil)

	testutil.SliceEqual(t, []string{"a/b.proto", "m.proto", "z.proto"}, tree.Names())
}

func TestDiskTreeSearchOrder(t *testing.T) {
	fsys := testutil.MemFs(t, "/", testutil.Files{
		"p1/a.proto": "from p1",
		"p2/a.proto": "from p2",
		"p2/b.proto": "only p2",
	})
	tree := NewDiskTree(WithFs(fsys))
	tree.MapPath("", "/p1")
	tree.MapPath("", "/p2")

	in, err := tree.Open("a.proto")
	testutil.NoError(t, err, "Open a.proto")
	testutil.Equal(t, "from p1", readAll(t, in))

	in, err = tree.Open("b.proto")
	testutil.NoError(t, err, "Open b.proto")
	testutil.Equal(t, "only p2", readAll(t, in))

	// Removing the first candidate exposes the second.
	testutil.NoError(t, fsys.Remove("/p1/a.proto"), "remove")
	in, err = tree.Open("a.proto")
	testutil.NoError(t, err, "Open a.proto after removal")
	testutil.Equal(t, "from p2", readAll(t, in))

	// No content is cached across opens.
	testutil.NoError(t, fsys.Remove("/p2/a.proto"), "remove")
	_, err = tree.Open("a.proto")
	testutil.ErrorIs(t, err, ErrNotFound)
	testutil.Equal(t, "a.proto: file not found in any search path", tree.LastErrorMessage())
}

func TestDiskTreeOnDisk(t *testing.T) {
	root := testutil.WriteTree(t, testutil.Files{
		"shop/order.proto": "order",
	})
	tree := NewDiskTree(WithBlockSize(3))
	tree.MapPath("", root)

	in, err := tree.Open("shop/order.proto")
	testutil.NoError(t, err, "Open")
	testutil.Equal(t, "order", readAll(t, in))
}

func TestDiskTreeSkipsFileInPlaceOfDirectory(t *testing.T) {
	first := testutil.WriteTree(t, testutil.Files{"shop": "not a directory"})
	second := testutil.WriteTree(t, testutil.Files{"shop/order.proto": "order"})
	tree := NewDiskTree()
	tree.MapPath("", first)
	tree.MapPath("", second)

	in, err := tree.Open("shop/order.proto")
	testutil.NoError(t, err, "Open")
	testutil.Equal(t, "order", readAll(t, in))
	testutil.Equal(t, "", tree.LastErrorMessage())
}

func TestDiskTreeMappings(t *testing.T) {
	fsys := testutil.MemFs(t, "/", testutil.Files{
		"foo/bar/qux.proto":   "foo/bar",
		"baz/bar/qux.proto":   "baz",
		"baz/bar/other.proto": "baz other",
		"single/file.proto":   "single",
	})

	tests := []struct {
		name     string
		mappings []Mapping
		open     string
		want     string
	}{
		{"directory prefix", []Mapping{{"bar", "/foo/bar"}}, "bar/qux.proto", "foo/bar"},
		{"first mapping wins", []Mapping{{"bar", "/foo/bar"}, {"", "/baz"}}, "bar/qux.proto", "foo/bar"},
		{"falls through to root", []Mapping{{"bar", "/foo/bar"}, {"", "/baz"}}, "bar/other.proto", "baz other"},
		{"file mapping", []Mapping{{"alias.proto", "/single/file.proto"}}, "alias.proto", "single"},
		{"trailing slash on prefix", []Mapping{{"bar/", "/foo/bar"}}, "bar/qux.proto", "foo/bar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := NewDiskTree(WithFs(fsys))
			for _, m := range tt.mappings {
				tree.MapPath(m.Virtual, m.Disk)
			}
			in, err := tree.Open(tt.open)
			testutil.NoError(t, err, "Open %s", tt.open)
			testutil.Equal(t, tt.want, readAll(t, in))
		})
	}
}

func TestDiskTreePrefixNeedsSeparator(t *testing.T) {
	fsys := testutil.MemFs(t, "/", testutil.Files{"foo/x.proto": "x"})
	tree := NewDiskTree(WithFs(fsys))
	tree.MapPath("fo", "/foo")

	// "fo" must not match "foo/x.proto".
	_, err := tree.Open("foo/x.proto")
	testutil.ErrorIs(t, err, ErrNotFound)
}

func TestDiskTreeInvalidPaths(t *testing.T) {
	fsys := testutil.MemFs(t, "/", testutil.Files{"root/a.proto": "a"})
	tree := NewDiskTree(WithFs(fsys))
	tree.MapPath("", "/root")

	for _, name := range []string{
		"",
		"/a.proto",
		"./a.proto",
		"x/../a.proto",
		"x//a.proto",
		`x\a.proto`,
		"x/",
		"..",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tree.Open(name)
			testutil.ErrorIs(t, err, fs.ErrInvalid)
			testutil.Equal(t,
				`backslashes, consecutive slashes, ".", or ".." are not allowed in the virtual path`,
				tree.LastErrorMessage())
		})
	}
}

func TestDiskTreeDirectoryIsAccessDenied(t *testing.T) {
	fsys := testutil.MemFs(t, "/", testutil.Files{
		"p1/dir.proto/inner.proto": "x",
		"p2/dir.proto":             "file",
	})
	tree := NewDiskTree(WithFs(fsys))
	tree.MapPath("", "/p1")
	tree.MapPath("", "/p2")

	// A candidate that exists but cannot be read ends the search.
	_, err := tree.Open("dir.proto")
	testutil.ErrorIs(t, err, fs.ErrPermission)
	testutil.False(t, errors.Is(err, ErrNotFound), "access denied is not not-found")
	testutil.Equal(t, "read access is denied for file: "+filepath.Join("/p1", "dir.proto"), tree.LastErrorMessage())
}

func TestDiskTreeUnmapped(t *testing.T) {
	tree := NewDiskTree(WithFs(afero.NewMemMapFs()))
	_, err := tree.Open("a.proto")
	testutil.ErrorIs(t, err, ErrNotFound)
	testutil.Equal(t, "a.proto: file not found in any search path", tree.LastErrorMessage())
}

func TestDiskTreeMappingsCopy(t *testing.T) {
	tree := NewDiskTree(WithFs(afero.NewMemMapFs()))
	tree.MapPath("a", "/x")
	m := tree.Mappings()
	m[0].Virtual = "changed"
	testutil.Equal(t, "a", tree.Mappings()[0].Virtual)
}

func TestDiskToVirtual(t *testing.T) {
	fsys := testutil.MemFs(t, "/", testutil.Files{
		"proto/shop/order.proto": "a",
		"vendor/shop/order.proto": "b",
		"vendor/only.proto":       "c",
	})
	tree := NewDiskTree(WithFs(fsys))
	tree.MapPath("", "/proto")
	tree.MapPath("", "/vendor")
	tree.MapPath("ext", "/external")

	name, err := tree.DiskToVirtual("/proto/shop/order.proto")
	testutil.NoError(t, err, "mapped file")
	testutil.Equal(t, "shop/order.proto", name)

	name, err = tree.DiskToVirtual("/vendor/only.proto")
	testutil.NoError(t, err, "second mapping")
	testutil.Equal(t, "only.proto", name)

	name, err = tree.DiskToVirtual("/vendor/shop/order.proto")
	testutil.ErrorIs(t, err, ErrShadowed)
	testutil.Equal(t, "shop/order.proto", name)

	name, err = tree.DiskToVirtual("/external/dep.proto")
	testutil.ErrorIs(t, err, ErrNotFound)
	testutil.Equal(t, "ext/dep.proto", name)

	_, err = tree.DiskToVirtual("/elsewhere/x.proto")
	testutil.ErrorIs(t, err, ErrNoMapping)
}

func TestDiskToVirtualRelative(t *testing.T) {
	fsys := testutil.MemFs(t, ".", testutil.Files{"api/v1/svc.proto": "x"})
	tree := NewDiskTree(WithFs(fsys))
	tree.MapPath("", ".")

	name, err := tree.DiskToVirtual("api/v1/svc.proto")
	testutil.NoError(t, err, "relative")
	testutil.Equal(t, "api/v1/svc.proto", name)

	_, err = tree.DiskToVirtual("../outside.proto")
	testutil.ErrorIs(t, err, ErrNoMapping)
}

func TestFSTree(t *testing.T) {
	tree := NewFSTree(fstest.MapFS{
		"google/type/date.proto": &fstest.MapFile{Data: []byte("date")},
	})

	in, err := tree.Open("google/type/date.proto")
	testutil.NoError(t, err, "Open")
	testutil.Equal(t, "date", readAll(t, in))

	_, err = tree.Open("google/type/money.proto")
	testutil.ErrorIs(t, err, ErrNotFound)
	testutil.Equal(t, "file not found", tree.LastErrorMessage())

	_, err = tree.Open("google/type")
	testutil.ErrorIs(t, err, fs.ErrPermission)

	_, err = tree.Open("../x.proto")
	testutil.ErrorIs(t, err, fs.ErrInvalid)
}

func TestMultiTreeOrder(t *testing.T) {
	first := NewVirtualTree()
	first.AddFile("a.proto", []byte("first"))
	second := NewVirtualTree()
	second.AddFile("a.proto", []byte("second"))
	second.AddFile("b.proto", []byte("second b"))

	multi := Multi(first, second)

	in, err := multi.Open("a.proto")
	testutil.NoError(t, err, "Open a.proto")
	testutil.Equal(t, "first", readAll(t, in))

	in, err = multi.Open("b.proto")
	testutil.NoError(t, err, "Open b.proto")
	testutil.Equal(t, "second b", readAll(t, in))

	_, err = multi.Open("c.proto")
	testutil.ErrorIs(t, err, ErrNotFound)
	testutil.Equal(t, "file not found", multi.LastErrorMessage())
}

func TestMultiTreeStopsOnHardFailure(t *testing.T) {
	disk := NewDiskTree(WithFs(afero.NewMemMapFs()))
	disk.MapPath("", "/")
	fallback := NewVirtualTree()
	fallback.AddFile("a//b.proto", []byte("x"))

	_, err := Multi(disk, fallback).Open("a//b.proto")
	testutil.ErrorIs(t, err, fs.ErrInvalid)
}

func TestMultiTreeEmpty(t *testing.T) {
	_, err := Multi().Open("a.proto")
	testutil.ErrorIs(t, err, ErrNotFound)
}

func TestOpenErrorMessage(t *testing.T) {
	err := &OpenError{Name: "a.proto", Message: "file not found", Err: os.ErrNotExist}
	testutil.Equal(t, "open a.proto: file not found", err.Error())
}
