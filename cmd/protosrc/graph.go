package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newGraphCmd(opts *globalOptions) *cobra.Command {
	var dot bool
	cmd := &cobra.Command{
		Use:   "graph [flags] FILE...",
		Short: "Print the import graph",
		Long: `Resolve the given files and print each file in resolution order with the
files it imports, followed by any import cycles.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.resolve(cmd, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			order, cycles := s.db.ImportGraph()
			if dot {
				writeDot(out, order, s.db.Imports)
			} else {
				writeGraph(out, order, cycles, s.db.Imports)
			}
			return s.report()
		},
	}
	cmd.Flags().BoolVar(&dot, "dot", false, "print the graph in Graphviz DOT format")
	return cmd
}

func writeGraph(w io.Writer, order []string, cycles [][]string, imports func(string) []string) {
	for _, name := range order {
		deps := imports(name)
		if len(deps) == 0 {
			_, _ = fmt.Fprintln(w, name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s -> %s\n", name, strings.Join(deps, ", "))
	}
	for _, c := range cycles {
		_, _ = fmt.Fprintf(w, "cycle: %s\n", strings.Join(c, ", "))
	}
}

func writeDot(w io.Writer, order []string, imports func(string) []string) {
	_, _ = fmt.Fprintln(w, "digraph imports {")
	for _, name := range order {
		_, _ = fmt.Fprintf(w, "  %q;\n", name)
		for _, dep := range imports(name) {
			_, _ = fmt.Fprintf(w, "  %q -> %q;\n", name, dep)
		}
	}
	_, _ = fmt.Fprintln(w, "}")
}
