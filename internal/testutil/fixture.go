package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

// Files maps slash-separated relative paths to file contents.
type Files map[string]string

// WriteTree writes files under a fresh temporary directory and returns it.
func WriteTree(t testing.TB, files Files) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return root
}

// MemFs returns an in-memory filesystem holding files under root.
func MemFs(t testing.TB, root string, files Files) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", name, err)
		}
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return fs
}

// Proto returns a minimal proto3 file declaring the given imports and one
// message named after msg.
func Proto(msg string, imports ...string) string {
	s := "syntax = \"proto3\";\n\n"
	for _, imp := range imports {
		s += "import \"" + imp + "\";\n"
	}
	s += "\nmessage " + msg + " {}\n"
	return s
}
