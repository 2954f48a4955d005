// Command travel-map builds a map of everything travelled: it lists the
// user's travel-log statuses, fetches their route polylines, merges local GPX
// tracks and writes polylines.json plus an HTML page.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/travel-map/internal/app"
	"github.com/Sternrassler/travel-map/internal/config"
	"github.com/Sternrassler/travel-map/pkg/client"
	"github.com/Sternrassler/travel-map/pkg/logging"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := execute(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command and returns the process exit code. Every failure,
// including flag and argument errors raised by cobra, ends with one
// "Error: ..." line on stderr.
func execute(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(getenv)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

type rootOptions struct {
	configPath string
	logLevel   string
	pretty     bool
}

// newRootCmd builds the CLI. getenv is the only way the environment is read.
func newRootCmd(getenv func(string) string) *cobra.Command {
	opts := rootOptions{}

	cmd := &cobra.Command{
		Use:           "travel-map",
		Short:         "Render travel-log check-ins and GPX tracks onto a map",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, getenv)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "path to the YAML or TOML config file")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error); overrides log.level")
	cmd.Flags().BoolVar(&opts.pretty, "pretty", false, "human-readable console logs; overrides log.pretty")

	return cmd
}

func run(cmd *cobra.Command, opts rootOptions, getenv func(string) string) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if cmd.Flags().Changed("pretty") {
		cfg.Log.Pretty = opts.pretty
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	logCfg.Pretty = cfg.Log.Pretty
	logCfg.Output = cmd.ErrOrStderr()
	logger := logging.Setup(logCfg)

	token := getenv(cfg.API.TokenEnv)
	if token == "" {
		err := fmt.Errorf("%w: set %s", client.ErrMissingCredential, cfg.API.TokenEnv)
		logger.Error().Err(err).Msg("Missing credential")
		return err
	}

	summary, err := app.Run(cmd.Context(), app.Options{
		Config: cfg,
		Token:  token,
		Logger: &logger,
	})
	if err != nil {
		logger.Error().Err(err).Str("run_id", summary.RunID).Msg("Run failed")
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d entries)\n", summary.Output.JSONPath, summary.Output.Features)
	return nil
}
