package main

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/protosrc/protosrc/cmd/internal/cliutil"
	"github.com/protosrc/protosrc/zerocopy"
)

func newBuildCmd(opts *globalOptions) *cobra.Command {
	var (
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "build [flags] FILE...",
		Short: "Write a binary FileDescriptorSet",
		Long: `Resolve the given files and their imports and write them as a binary
FileDescriptorSet, ordered so that each file follows its imports.

Nothing is written when any file fails to load.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.resolve(cmd, args)
			if err != nil {
				return err
			}
			if err := s.report(); err != nil {
				return err
			}
			if !cmd.Flags().Changed("output") {
				output = s.cfg.Output
			}
			return writeOutput(cmd.OutOrStdout(), output, force, func(w io.Writer) error {
				out := zerocopy.NewWriterStream(w)
				if err := s.set.MarshalTo(out); err != nil {
					return err
				}
				return out.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&force, "force", false, "write binary output even to a terminal")
	return cmd
}

// writeOutput runs write against the named file, or against stdout when
// name is empty or "-". Binary data is not written to a terminal unless
// forced.
func writeOutput(stdout io.Writer, name string, force bool, write func(io.Writer) error) error {
	w, done, err := cliutil.GetOutput(name, stdout)
	if err != nil {
		return err
	}
	if w == stdout && !force && cliutil.IsTerminal(stdout) {
		return errors.New("refusing to write binary output to a terminal; use -o or --force")
	}
	if err := write(w); err != nil {
		_ = done()
		return err
	}
	return done()
}
