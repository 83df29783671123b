package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/retail-insights/internal/config"
	"github.com/sells-group/retail-insights/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the history tables in the configured store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd.Context(), cfg)
	},
}

func runMigrate(ctx context.Context, c *config.Config) error {
	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL)
	if err != nil {
		return eris.Wrap(err, "open store")
	}
	defer st.Close() //nolint:errcheck

	if err := st.Migrate(ctx); err != nil {
		return eris.Wrap(err, "migrate store")
	}
	zap.L().Info("store migrated", zap.String("driver", c.Store.Driver))
	return nil
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
