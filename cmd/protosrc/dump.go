package main

import (
	"bytes"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"gopkg.in/yaml.v3"

	"github.com/protosrc/protosrc/internal/config"
)

func newDumpCmd(opts *globalOptions) *cobra.Command {
	var (
		output string
		format string
	)
	cmd := &cobra.Command{
		Use:   "dump [flags] FILE...",
		Short: "Print the resolved descriptors as JSON or YAML",
		Long: `Resolve the given files and their imports and print the resulting
FileDescriptorSet in a readable form.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.resolve(cmd, args)
			if err != nil {
				return err
			}
			if err := s.report(); err != nil {
				return err
			}
			if cmd.Flags().Changed("format") {
				s.cfg.Format = format
				if err := s.cfg.Validate(); err != nil {
					return err
				}
			}
			if !cmd.Flags().Changed("output") {
				output = s.cfg.Output
			}

			data, err := protojson.MarshalOptions{
				Multiline: true,
				Indent:    "  ",
			}.Marshal(s.set.FileDescriptorSet())
			if err != nil {
				return fmt.Errorf("encoding descriptors: %w", err)
			}
			if s.cfg.Format == config.FormatYAML {
				if data, err = jsonToYAML(data); err != nil {
					return err
				}
			}
			return writeOutput(cmd.OutOrStdout(), output, true, func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&format, "format", config.FormatJSON, "output format (json|yaml)")
	return cmd
}

// jsonToYAML re-encodes a JSON document as block-style YAML. Key order is
// preserved.
func jsonToYAML(data []byte) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("converting to YAML: %w", err)
	}
	clearStyle(&doc)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("converting to YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("converting to YAML: %w", err)
	}
	return buf.Bytes(), nil
}

func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		clearStyle(c)
	}
}
