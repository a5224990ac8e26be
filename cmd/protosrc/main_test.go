package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
	"gopkg.in/yaml.v3"

	"github.com/protosrc/protosrc/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

// emptyConfig returns a config file that sets nothing, so the tests do not
// pick up a protosrc.toml from a parent directory.
func emptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "protosrc.toml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

func diamond(t *testing.T) string {
	return testutil.WriteTree(t, testutil.Files{
		"a.proto": testutil.Proto("A", "b.proto", "c.proto"),
		"b.proto": testutil.Proto("B", "d.proto"),
		"c.proto": testutil.Proto("C", "d.proto"),
		"d.proto": testutil.Proto("D"),
	})
}

func readSet(t *testing.T, path string) *descriptorpb.FileDescriptorSet {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var set descriptorpb.FileDescriptorSet
	require.NoError(t, proto.Unmarshal(data, &set))
	return &set
}

func fileNames(set *descriptorpb.FileDescriptorSet) []string {
	var names []string
	for _, fd := range set.GetFile() {
		names = append(names, fd.GetName())
	}
	return names
}

func TestBuild(t *testing.T) {
	dir := diamond(t)
	out := filepath.Join(t.TempDir(), "out.pb")

	code, _, stderr := runCLI(t, "build", "--config", emptyConfig(t), "-I", dir, "-o", out, "a.proto")
	require.Equal(t, exitOK, code, stderr)
	require.Equal(t, []string{"d.proto", "b.proto", "c.proto", "a.proto"}, fileNames(readSet(t, out)))
}

func TestBuildToStdout(t *testing.T) {
	dir := diamond(t)

	code, stdout, stderr := runCLI(t, "build", "--config", emptyConfig(t), "-I", dir, "d.proto")
	require.Equal(t, exitOK, code, stderr)

	var set descriptorpb.FileDescriptorSet
	require.NoError(t, proto.Unmarshal([]byte(stdout), &set))
	require.Equal(t, []string{"d.proto"}, fileNames(&set))
}

func TestBuildDiskPathArgument(t *testing.T) {
	dir := diamond(t)
	out := filepath.Join(t.TempDir(), "out.pb")

	code, _, stderr := runCLI(t, "build", "--config", emptyConfig(t), "-I", dir, "-o", out,
		filepath.Join(dir, "b.proto"))
	require.Equal(t, exitOK, code, stderr)
	require.Equal(t, []string{"d.proto", "b.proto"}, fileNames(readSet(t, out)))
}

func TestBuildDiskPathOutsideSearchPath(t *testing.T) {
	dir := diamond(t)
	other := testutil.WriteTree(t, testutil.Files{"x.proto": testutil.Proto("X")})

	code, _, stderr := runCLI(t, "build", "--config", emptyConfig(t), "-I", dir,
		filepath.Join(other, "x.proto"))
	require.Equal(t, exitError, code)
	require.Contains(t, stderr, "does not reside within any search path")
}

func TestBuildMultipleRoots(t *testing.T) {
	dir := diamond(t)
	out := filepath.Join(t.TempDir(), "out.pb")

	code, _, stderr := runCLI(t, "build", "--config", emptyConfig(t), "-I", dir, "-o", out, "c.proto", "b.proto")
	require.Equal(t, exitOK, code, stderr)
	require.Equal(t, []string{"d.proto", "c.proto", "b.proto"}, fileNames(readSet(t, out)))
}

func TestBuildMissingFile(t *testing.T) {
	dir := testutil.WriteTree(t, testutil.Files{
		"a.proto": testutil.Proto("A", "missing.proto"),
	})
	out := filepath.Join(t.TempDir(), "out.pb")

	code, _, stderr := runCLI(t, "build", "--config", emptyConfig(t), "-I", dir, "-o", out, "a.proto")
	require.Equal(t, exitError, code)
	require.Contains(t, stderr, "missing.proto: error:")
	require.NoFileExists(t, out)
}

func TestBuildSyntaxError(t *testing.T) {
	dir := testutil.WriteTree(t, testutil.Files{
		"bad.proto": "syntax = \"proto3\";\n\nmessage {\n",
	})

	code, _, stderr := runCLI(t, "build", "--config", emptyConfig(t), "-I", dir, "-o", filepath.Join(t.TempDir(), "out.pb"), "bad.proto")
	require.Equal(t, exitError, code)
	require.Contains(t, stderr, "bad.proto:3:")
}

func TestBuildCycle(t *testing.T) {
	dir := testutil.WriteTree(t, testutil.Files{
		"a.proto": testutil.Proto("A", "b.proto"),
		"b.proto": testutil.Proto("B", "a.proto"),
	})
	out := filepath.Join(t.TempDir(), "out.pb")

	code, _, stderr := runCLI(t, "build", "--config", emptyConfig(t), "-I", dir, "-o", out, "a.proto")
	require.Equal(t, exitCycle, code)
	require.Contains(t, stderr, "b.proto: error: import cycle: a.proto -> b.proto -> a.proto")
	require.NoFileExists(t, out)
}

func TestNoRoots(t *testing.T) {
	code, _, stderr := runCLI(t, "build", "--config", emptyConfig(t))
	require.Equal(t, exitError, code)
	require.Contains(t, stderr, "no root files provided")
}

func TestRootsFromConfig(t *testing.T) {
	dir := diamond(t)
	cfg := filepath.Join(t.TempDir(), "protosrc.toml")
	require.NoError(t, os.WriteFile(cfg, []byte(
		"include = ["+quote(dir)+"]\nroots = [\"c.proto\"]\n"), 0o644))
	out := filepath.Join(t.TempDir(), "out.pb")

	code, _, stderr := runCLI(t, "build", "--config", cfg, "-o", out)
	require.Equal(t, exitOK, code, stderr)
	require.Equal(t, []string{"d.proto", "c.proto"}, fileNames(readSet(t, out)))
}

func TestUnknownConfigKey(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "protosrc.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("includes = []\n"), 0o644))

	code, _, stderr := runCLI(t, "paths", "--config", cfg)
	require.Equal(t, exitError, code)
	require.Contains(t, stderr, "unknown configuration key")
}

func TestDumpJSON(t *testing.T) {
	dir := diamond(t)

	code, stdout, stderr := runCLI(t, "dump", "--config", emptyConfig(t), "-I", dir, "b.proto")
	require.Equal(t, exitOK, code, stderr)
	require.Contains(t, stdout, `"name"`)
	require.Less(t, strings.Index(stdout, `"d.proto"`), strings.Index(stdout, `"b.proto"`))
}

func TestDumpYAML(t *testing.T) {
	dir := diamond(t)

	code, stdout, stderr := runCLI(t, "dump", "--config", emptyConfig(t), "-I", dir, "--format", "yaml", "b.proto")
	require.Equal(t, exitOK, code, stderr)

	var doc struct {
		File []struct {
			Name       string   `yaml:"name"`
			Dependency []string `yaml:"dependency"`
		} `yaml:"file"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &doc))
	require.Len(t, doc.File, 2)
	require.Equal(t, "d.proto", doc.File[0].Name)
	require.Equal(t, "b.proto", doc.File[1].Name)
	require.Equal(t, []string{"d.proto"}, doc.File[1].Dependency)
	require.NotContains(t, stdout, "{")
}

func TestDumpInvalidFormat(t *testing.T) {
	dir := diamond(t)

	code, _, stderr := runCLI(t, "dump", "--config", emptyConfig(t), "-I", dir, "--format", "xml", "d.proto")
	require.Equal(t, exitError, code)
	require.Contains(t, stderr, "invalid output format")
}

func TestGraph(t *testing.T) {
	dir := diamond(t)

	code, stdout, stderr := runCLI(t, "graph", "--config", emptyConfig(t), "-I", dir, "a.proto")
	require.Equal(t, exitOK, code, stderr)
	require.Equal(t, "d.proto\nb.proto -> d.proto\nc.proto -> d.proto\na.proto -> b.proto, c.proto\n", stdout)
}

func TestGraphDot(t *testing.T) {
	dir := diamond(t)

	code, stdout, stderr := runCLI(t, "graph", "--config", emptyConfig(t), "-I", dir, "--dot", "b.proto")
	require.Equal(t, exitOK, code, stderr)
	require.Equal(t, "digraph imports {\n  \"d.proto\";\n  \"b.proto\";\n  \"b.proto\" -> \"d.proto\";\n}\n", stdout)
}

func TestGraphCycle(t *testing.T) {
	dir := testutil.WriteTree(t, testutil.Files{
		"a.proto": testutil.Proto("A", "b.proto"),
		"b.proto": testutil.Proto("B", "a.proto"),
	})

	code, stdout, _ := runCLI(t, "graph", "--config", emptyConfig(t), "-I", dir, "a.proto")
	require.Equal(t, exitCycle, code)
	require.Contains(t, stdout, "cycle: a.proto, b.proto\n")
}

func TestPaths(t *testing.T) {
	inc := t.TempDir()
	vendor := t.TempDir()

	code, stdout, stderr := runCLI(t, "paths", "--config", emptyConfig(t), "-M", "third_party="+vendor, "-I", inc)
	require.Equal(t, exitOK, code, stderr)
	require.Equal(t, "third_party\t"+vendor+"\n.\t"+inc+"\n", stdout)
}

func TestPathsDefault(t *testing.T) {
	code, stdout, stderr := runCLI(t, "paths", "--config", emptyConfig(t))
	require.Equal(t, exitOK, code, stderr)
	require.Equal(t, ".\t.\n", stdout)
}

func TestPathsInvalidMapping(t *testing.T) {
	code, _, stderr := runCLI(t, "paths", "--config", emptyConfig(t), "-M", "nodisk")
	require.Equal(t, exitError, code)
	require.Contains(t, stderr, "want virtual=disk")
}

func TestConfigPrecedence(t *testing.T) {
	fromFile := t.TempDir()
	fromEnv := t.TempDir()
	fromFlag := t.TempDir()
	cfg := filepath.Join(t.TempDir(), "protosrc.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("include = ["+quote(fromFile)+"]\n"), 0o644))

	code, stdout, _ := runCLI(t, "paths", "--config", cfg)
	require.Equal(t, exitOK, code)
	require.Equal(t, ".\t"+fromFile+"\n", stdout)

	t.Setenv("PROTOSRC_IMPORT_PATH", fromEnv)
	code, stdout, _ = runCLI(t, "paths", "--config", cfg)
	require.Equal(t, exitOK, code)
	require.Equal(t, ".\t"+fromEnv+"\n", stdout)

	code, stdout, _ = runCLI(t, "paths", "--config", cfg, "-I", fromFlag)
	require.Equal(t, exitOK, code)
	require.Equal(t, ".\t"+fromFlag+"\n", stdout)
}

func TestVerboseLogging(t *testing.T) {
	dir := diamond(t)

	code, _, stderr := runCLI(t, "build", "--config", emptyConfig(t), "-vv", "-I", dir,
		"-o", filepath.Join(t.TempDir(), "out.pb"), "a.proto")
	require.Equal(t, exitOK, code, stderr)
	require.Contains(t, stderr, "component=database")
	require.Contains(t, stderr, "import=d.proto")
}

func TestInvalidColor(t *testing.T) {
	dir := diamond(t)

	code, _, stderr := runCLI(t, "build", "--config", emptyConfig(t), "--color", "rainbow", "-I", dir, "d.proto")
	require.Equal(t, exitError, code)
	require.Contains(t, stderr, "invalid color mode")
}

func TestColoredDiagnostics(t *testing.T) {
	dir := testutil.WriteTree(t, testutil.Files{
		"a.proto": testutil.Proto("A", "missing.proto"),
	})

	code, _, stderr := runCLI(t, "build", "--config", emptyConfig(t), "--color", "on", "-I", dir, "a.proto")
	require.Equal(t, exitError, code)
	require.Contains(t, stderr, "\x1b[")
}

func TestVersion(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")
	require.Equal(t, exitOK, code)
	require.True(t, strings.HasPrefix(stdout, "protosrc "))
}

func TestExitCodeFor(t *testing.T) {
	require.Equal(t, exitOK, exitCodeFor(nil))
}

func quote(s string) string {
	return "'" + s + "'"
}
