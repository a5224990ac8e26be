// Command protosrc resolves .proto files and their imports into a
// FileDescriptorSet.
package main

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/protosrc/protosrc/cmd/internal/cliutil"
)

// Exit codes.
const (
	exitOK    = 0 // success
	exitError = 1 // bad usage, missing file, or parse failure
	exitCycle = 2 // resolution finished but the imports contain a cycle
)

// exitCodeError carries a non-default exit status out of a command.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		if ec.err != nil && !errors.Is(ec.err, errReported) {
			cliutil.PrintError(root.ErrOrStderr(), "%v", ec.err)
		}
		return ec.code
	}
	cliutil.PrintError(root.ErrOrStderr(), "%v", err)
	return exitError
}

func newRootCmd() *cobra.Command {
	var opts globalOptions
	root := &cobra.Command{
		Use:   "protosrc",
		Short: "Resolve .proto files and their imports",
		Long: `protosrc locates .proto files through a search path, parses them and
their transitive imports, and emits the files in dependency order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.register(root)

	root.AddCommand(
		newBuildCmd(&opts),
		newDumpCmd(&opts),
		newGraphCmd(&opts),
		newPathsCmd(&opts),
		newVersionCmd(),
	)
	return root
}
