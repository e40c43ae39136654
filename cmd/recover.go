package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/radikoarchive/radiko-archiver/internal/app"
	"github.com/radikoarchive/radiko-archiver/internal/catalog"
)

func newRecoverCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "recover PROGRAM_ID...",
		Short: "Marks programs ARCHIVABLE again so the scheduler retries them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid program id %q", arg)
				}
				ids = append(ids, id)
			}

			ctx := cmd.Context()
			store, closeStore, err := app.OpenStore(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer closeStore()

			for _, id := range ids {
				from, err := app.Recover(ctx, store, id)
				if err != nil {
					return err
				}
				e.logger.Info("program recovered",
					zap.Int64("program_id", id),
					zap.Stringer("from", from),
					zap.Stringer("to", catalog.StatusArchivable),
				)
			}
			return nil
		},
	}
}
