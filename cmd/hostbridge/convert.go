package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/ir"
)

func newConvertCmd(a *app) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "convert <in> [out]",
		Short: "Re-encode a binding module as toml, json or msgpack",
		Long: "Convert validates the input and writes it in another format. The output\n" +
			"format comes from --to, then the output extension, then [ir] format in the\n" +
			"configuration file. Without an output path the module goes to stdout.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := ir.Load(args[0])
			if err != nil {
				return err
			}
			out := ""
			if len(args) == 2 {
				out = args[1]
			}
			format, err := outputFormat(to, out, a.cfg.IR.Format)
			if err != nil {
				return err
			}
			data, err := ir.Marshal(format, m)
			if err != nil {
				return err
			}
			a.logger.Debug("converted", zap.String("in", args[0]), zap.String("format", string(format)), zap.Int("bytes", len(data)))
			return writeOutput(cmd.OutOrStdout(), out, data)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "output format (toml, json, msgpack)")
	return cmd
}

func outputFormat(flag, path, fallback string) (ir.Format, error) {
	if flag != "" {
		return ir.ParseFormat(flag)
	}
	if path != "" && path != "-" {
		if f, err := ir.FormatFromPath(path); err == nil {
			return f, nil
		}
	}
	return ir.ParseFormat(fallback)
}
