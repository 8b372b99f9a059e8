package cli

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dealfanatics/rss-pipeline/internal/app"
	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
)

const fieldWidth = 80

func newRecordsCommand(rt *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect enriched records",
	}

	var (
		pendingKeywords bool
		limit           int
	)

	get := &cobra.Command{
		Use:   "get <record-id>",
		Short: "Show one record's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := rt.format()
			if err != nil {
				return err
			}

			return rt.withBackend(cmd, func(ctx context.Context, b *app.Backend) error {
				rec, err := b.Records.Get(ctx, args[0])
				if err != nil {
					return fmt.Errorf("get record: %w", err)
				}

				return render(cmd.OutOrStdout(), format, rec.Fields, func(tw *tabwriter.Writer) {
					keys := make([]string, 0, len(rec.Fields))
					for k := range rec.Fields {
						keys = append(keys, k)
					}

					sort.Strings(keys)

					for _, k := range keys {
						fmt.Fprintf(tw, "%s\t%s\n", k, truncate(fmt.Sprint(rec.Fields[k]), fieldWidth))
					}
				})
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List record ids, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := rt.format()
			if err != nil {
				return err
			}

			filter := domain.RecordFilter{Limit: limit}
			if pendingKeywords {
				filter.NonEmpty = []string{domain.FieldArticleKeywords}
				filter.Missing = []string{domain.FieldSEOTargetKeywords}
			}

			return rt.withBackend(cmd, func(ctx context.Context, b *app.Backend) error {
				recs, err := b.Records.Query(ctx, filter)
				if err != nil {
					return fmt.Errorf("query records: %w", err)
				}

				ids := make([]string, 0, len(recs))
				for _, rec := range recs {
					ids = append(ids, rec.ID)
				}

				return render(cmd.OutOrStdout(), format, ids, func(tw *tabwriter.Writer) {
					fmt.Fprintln(tw, "ID\tTITLE\tCREATED AT")

					for _, rec := range recs {
						fmt.Fprintf(tw, "%s\t%s\t%s\n", rec.ID, truncate(rec.String(domain.FieldTitle), detailWidth), rec.CreatedAt.Format("2006-01-02 15:04"))
					}
				})
			})
		},
	}

	list.Flags().BoolVar(&pendingKeywords, "pending-keywords", false, "only records still waiting for keyword metrics")
	list.Flags().IntVar(&limit, "limit", defaultDLQLimit, "maximum records to list")

	cmd.AddCommand(get, list)

	return cmd
}
