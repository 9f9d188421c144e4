package cmd

import (
	"fmt"
	"time"

	"github.com/microblog-hq/microblog/config"
	"github.com/microblog-hq/microblog/internal/db"
	"github.com/microblog-hq/microblog/internal/logging"
	"github.com/microblog-hq/microblog/internal/services"
	"github.com/microblog-hq/microblog/internal/store"
	"github.com/spf13/cobra"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Manage unconfirmed registrations",
}

var pendingOlderThan time.Duration

var pendingPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete unconfirmed registrations and release their usernames",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		logger, err := logging.New(cfg.Env)
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		ttl := cfg.PendingTTL
		if cmd.Flags().Changed("older-than") {
			ttl = pendingOlderThan
		}

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		accounts := services.NewAccountService(store.NewRegistrationRepository(conn), nil, logger, cfg.Notify.Timeout)

		removed, err := accounts.PruneExpired(cmd.Context(), ttl)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d pending registrations older than %s\n", removed, ttl)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pendingCmd)
	pendingCmd.AddCommand(pendingPruneCmd)
	pendingPruneCmd.Flags().DurationVar(&pendingOlderThan, "older-than", 0, "age cutoff (defaults to PENDING_TTL)")
}
