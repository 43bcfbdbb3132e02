package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/publishgate/pkg/audit"
)

func newAuditCommand(opts *rootOptions) *cobra.Command {
	var (
		filter audit.SearchFilter
		types  []string
		status string
		since  time.Duration
		format string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Search the audit trail kept in the database",
		Example: `  publishgate audit --user octocat --since 24h
  publishgate audit --package left-pad --type publish.write --status denied --format csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if !cfg.Audit.Database {
				return fmt.Errorf("audit events are not stored in the database, PUBLISHGATE_AUDIT_DATABASE is false")
			}
			b, err := openPersistentStorage(cmd.Context(), cfg.Storage, logger)
			if err != nil {
				return err
			}
			defer b.store.Close()

			_, dbLogger, err := openAudit(cmd.Context(), cfg, b.db, logger)
			if err != nil {
				return err
			}

			for _, t := range types {
				filter.Types = append(filter.Types, audit.EventType(t))
			}
			filter.Status = audit.EventStatus(status)
			if since > 0 {
				from := time.Now().Add(-since)
				filter.Since = &from
			}

			events, err := dbLogger.Search(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return audit.Export(cmd.OutOrStdout(), events, audit.ExportFormat(format))
		},
	}
	cmd.Flags().StringVar(&filter.Username, "user", "", "only events by this GitHub login")
	cmd.Flags().StringVar(&filter.Package, "package", "", "only events about this package")
	cmd.Flags().StringSliceVar(&types, "type", nil, "event types, e.g. publish.write,auth.token_create")
	cmd.Flags().StringVar(&status, "status", "", "success, failure or denied")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this, e.g. 24h")
	cmd.Flags().IntVar(&filter.Limit, "limit", 100, "maximum number of events")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "events to skip, for paging")
	cmd.Flags().StringVar(&format, "format", "json", "json, ndjson or csv")
	return cmd
}
