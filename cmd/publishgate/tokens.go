package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/publishgate/pkg/audit"
	"github.com/platinummonkey/publishgate/pkg/storage"
)

func newTokensCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Inspect and revoke publish keys",
	}
	cmd.AddCommand(newTokensListCommand(opts), newTokensRevokeCommand(opts))
	return cmd
}

func newTokensListCommand(opts *rootOptions) *cobra.Command {
	var user string
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's publish keys by prefix",
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

			keys, err := b.store.GetPublishKeysByUser(cmd.Context(), user)
			if err != nil {
				return fmt.Errorf("failed to load keys for %s: %w", user, err)
			}

			now := time.Now()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PREFIX\tCREATED\tPACKAGE\tEXPIRES\tRELEASE")
			for _, k := range keys {
				if !all && k.Expired(now) {
					continue
				}
				expires := "never"
				if k.Expiration != nil {
					expires = k.Expiration.UTC().Format(time.RFC3339)
				}
				pkg := k.Package
				if pkg == "" {
					pkg = "*"
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%t\n", k.Prefix(), k.CreatedMillis(), pkg, expires, k.ReleaseAs2FA)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "GitHub login that owns the keys")
	cmd.Flags().BoolVar(&all, "all", false, "include expired keys")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newTokensRevokeCommand(opts *rootOptions) *cobra.Command {
	var (
		user    string
		prefix  string
		created int64
	)
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a publish key identified by prefix and creation time",
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
			store := b.store
			defer store.Close()

			auditLog, _, err := openAudit(cmd.Context(), cfg, b.db, logger)
			if err != nil {
				return err
			}

			key, err := store.GetObfuscatedPublishKey(cmd.Context(), user, time.UnixMilli(created), prefix)
			if err != nil {
				return err
			}
			if key == nil {
				return fmt.Errorf("no key with prefix %q created at %d for %s", prefix, created, user)
			}
			if err := store.DeletePublishKey(cmd.Context(), key.Value); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("key %s was already revoked", prefix)
				}
				return err
			}
			event := audit.NewEvent(nil, audit.EventTypeTokenRevoke, audit.EventStatusSuccess)
			event.Username = user
			event.TokenPrefix = key.Prefix()
			event.Package = key.Package
			event.Message = "revoked from the command line"
			if err := auditLog.Log(cmd.Context(), event); err != nil {
				logger.WithError(err).Warn("failed to record audit event")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", key.Prefix())
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "GitHub login that owns the key")
	cmd.Flags().StringVar(&prefix, "prefix", "", "leading characters of the key, as shown by tokens list")
	cmd.Flags().Int64Var(&created, "created", 0, "creation time in unix milliseconds, as shown by tokens list")
	for _, f := range []string{"user", "prefix", "created"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}
