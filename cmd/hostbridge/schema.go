package main

import (
	"github.com/spf13/cobra"

	"github.com/wippyai/hostbridge/ir"
)

func newSchemaCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of binding module files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := ir.Schema()
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), out, append(data, '\n'))
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")
	return cmd
}
