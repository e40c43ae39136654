package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/radikoarchive/radiko-archiver/internal/app"
)

func newRunCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Runs the scheduler and archive workers until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			e.logger.Info("archiver starting",
				zap.String("area_id", e.cfg.Radiko.AreaID),
				zap.Strings("keywords", e.cfg.Archiver.Keywords),
				zap.Int("concurrency", e.cfg.Archiver.Concurrency),
			)
			return a.Run(ctx)
		},
	}
}

func newSyncCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Synchronizes the program catalog once and exits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.SyncOnce(ctx)
		},
	}
}
