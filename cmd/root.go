// Package cmd defines the radiko-archiver command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/radikoarchive/radiko-archiver/internal/config"
	"github.com/radikoarchive/radiko-archiver/internal/logging"
)

// Exit codes returned by Execute.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitCanceled = 130
)

// env is what PersistentPreRunE prepares for every subcommand.
type env struct {
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
}

func newRootCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "radiko-archiver",
		Short: "Keeps a radiko program catalog in sync and archives matching broadcasts.",
		Long: `radiko-archiver mirrors the last week of radiko program listings for one
area into a catalog database and records every program whose title matches
a configured keyword with ffmpeg.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(e.cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)
			e.cfg = cfg
			e.logger = logger
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&e.cfgFile, "config", "", "config file (default is ./config.yaml)")

	cmd.AddCommand(newRunCmd(e))
	cmd.AddCommand(newSyncCmd(e))
	cmd.AddCommand(newRecoverCmd(e))
	return cmd
}

// Execute runs the command line against ctx and returns the process exit
// code: 130 when ctx was canceled, 1 on any other failure.
func Execute(ctx context.Context) int {
	e := &env{}
	err := newRootCmd(e).ExecuteContext(ctx)
	if e.logger != nil {
		defer e.logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
	}
	code := exitCode(err)
	switch {
	case code == ExitOK:
	case e.logger == nil:
		fmt.Fprintf(os.Stderr, "radiko-archiver: %v\n", err)
	case code == ExitCanceled:
		e.logger.Info("interrupted", zap.Error(err))
	default:
		e.logger.Error("command failed", zap.Error(err), zap.Stack("stack"))
	}
	return code
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitCanceled
	default:
		return ExitFailure
	}
}
