package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPathsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show the search path",
		Long: `Show the virtual-to-disk mappings that would be searched, in order. With
no -I, -M or configured paths the current directory is searched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd.Flags())
			if err != nil {
				return err
			}
			tree := buildTree(cfg, opts.logger(cmd.ErrOrStderr()))
			out := cmd.OutOrStdout()
			for _, m := range tree.Mappings() {
				virtual := m.Virtual
				if virtual == "" {
					virtual = "."
				}
				_, _ = fmt.Fprintf(out, "%s\t%s\n", virtual, m.Disk)
			}
			return nil
		},
	}
}
