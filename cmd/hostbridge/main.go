package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/hostbridge/binding"
	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/wasmhost"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg     Config
	logger  *zap.Logger
	cfgPath string
	verbose bool
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "hostbridge",
		Short:         "Inspect binding descriptors and exercise host wrappers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", defaultConfigFile, "configuration file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log lifecycle events")

	root.AddCommand(
		newInspectCmd(a),
		newValidateCmd(a),
		newConvertCmd(a),
		newSchemaCmd(),
		newBrowseCmd(a),
		newDemoCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	explicit := cmd.Flags().Changed("config")
	cfg, err := LoadConfig(a.cfgPath, explicit)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := newLogger(cfg.Log.Level, a.verbose, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.logger = logger
	bridge.SetLogger(logger.Named("bridge"))
	binding.SetLogger(logger.Named("binding"))
	wasmhost.SetLogger(logger.Named("wasmhost"))
	return nil
}

func newLogger(level string, verbose bool, w io.Writer) (*zap.Logger, error) {
	if verbose {
		level = "debug"
	}
	if level == "" {
		return zap.NewNop(), nil
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), lvl), zap.Development()), nil
}
