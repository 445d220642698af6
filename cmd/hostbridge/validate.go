package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/ir"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <module-file>...",
		Short: "Check binding modules and report every problem",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				problems, err := validateFile(path)
				if err != nil {
					return err
				}
				report(cmd.OutOrStdout(), path, problems)
				if len(problems) > 0 {
					failed++
				}
				a.logger.Debug("validated", zap.String("path", path), zap.Int("problems", len(problems)))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d modules invalid", failed, len(args))
			}
			return nil
		},
	}
}

// validateFile decodes path and returns its validation problems. Decoding
// failures are returned as the error.
func validateFile(path string) ([]error, error) {
	format, err := ir.FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	f, err := ir.DecodeFile(fh, format)
	if err != nil {
		return nil, err
	}
	_, err = ir.New(f)
	return ir.Problems(err), nil
}

func report(w io.Writer, path string, problems []error) {
	if len(problems) == 0 {
		fmt.Fprintf(w, "%s %s\n", okColor.Sprint("ok"), path)
		return
	}
	fmt.Fprintf(w, "%s %s\n", failColor.Sprint("invalid"), path)
	for _, p := range problems {
		fmt.Fprintf(w, "  %s\n", p)
	}
}
