package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/publishgate/pkg/audit"
	"github.com/platinummonkey/publishgate/pkg/maintenance"
)

func newSweepCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired publish keys, stale login handoffs and old audit events once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			b, err := openPersistentStorage(cmd.Context(), cfg.Storage, logger)
			if err != nil {
				return err
			}
			defer b.store.Close()

			_, auditDB, err := openAudit(cmd.Context(), cfg, b.db, logger)
			if err != nil {
				return err
			}
			sweeper, err := maintenance.NewSweeper(maintenance.Chain{
				b.store,
				audit.Retention{Logger: auditDB, Keep: cfg.Audit.Retention},
			}, cfg.Maintenance.SweepSchedule, logger)
			if err != nil {
				return err
			}
			n, err := sweeper.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired records\n", n)
			return nil
		},
	}
}
