package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dealfanatics/rss-pipeline/internal/app"
	"github.com/dealfanatics/rss-pipeline/internal/platform/config"
)

func newMigrateCommand(rt *session) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  `Connects to Postgres and applies any pending migrations. Migrations also run when the pipeline starts.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withBackend(cmd, func(_ context.Context, b *app.Backend) error {
				if b.Database == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "backend has no schema, nothing to migrate\n")

					return nil
				}

				fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s backend)\n", config.BackendPostgres)

				return nil
			})
		},
	}
}
