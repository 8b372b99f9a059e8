package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dealfanatics/rss-pipeline/internal/app"
	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
)

const (
	defaultDLQLimit = 50
	detailWidth     = 60
)

// deadLetterView is the printable form of a dead letter.
type deadLetterView struct {
	ID           string    `json:"id" yaml:"id"`
	Queue        string    `json:"queue" yaml:"queue"`
	Reason       string    `json:"reason" yaml:"reason"`
	ReceiveCount int       `json:"receive_count" yaml:"receive_count"`
	Detail       string    `json:"detail" yaml:"detail"`
	Body         string    `json:"body" yaml:"body"`
	EnqueuedAt   time.Time `json:"enqueued_at" yaml:"enqueued_at"`
	FailedAt     time.Time `json:"failed_at" yaml:"failed_at"`
}

func newDLQCommand(rt *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and redrive dead-lettered messages",
	}

	var limit int

	list := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered messages, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := rt.format()
			if err != nil {
				return err
			}

			return rt.withBackend(cmd, func(ctx context.Context, b *app.Backend) error {
				letters, err := b.Queue.ListDeadLetters(ctx, limit)
				if err != nil {
					return fmt.Errorf("list dead letters: %w", err)
				}

				views := make([]deadLetterView, 0, len(letters))
				for _, dl := range letters {
					views = append(views, toDeadLetterView(dl))
				}

				return render(cmd.OutOrStdout(), format, views, func(tw *tabwriter.Writer) {
					fmt.Fprintln(tw, "ID\tREASON\tRECEIVES\tFAILED AT\tDETAIL")

					for _, v := range views {
						fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
							v.ID, v.Reason, v.ReceiveCount, v.FailedAt.Format(time.RFC3339), truncate(v.Detail, detailWidth))
					}
				})
			})
		},
	}

	list.Flags().IntVar(&limit, "limit", defaultDLQLimit, "maximum messages to list")

	redrive := &cobra.Command{
		Use:   "redrive <message-id>...",
		Short: "Move dead-lettered messages back onto the queue",
		Long: `Moves each message back onto its queue with a fresh receive budget.
Use after fixing the cause of the failure (for example a revoked API key).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withBackend(cmd, func(ctx context.Context, b *app.Backend) error {
				for _, id := range args {
					if err := b.Queue.Redrive(ctx, id); err != nil {
						return fmt.Errorf("redrive %s: %w", id, err)
					}

					fmt.Fprintf(cmd.OutOrStdout(), "redriven %s\n", id)
				}

				return nil
			})
		},
	}

	cmd.AddCommand(list, redrive)

	return cmd
}

func toDeadLetterView(dl domain.DeadLetter) deadLetterView {
	return deadLetterView{
		ID:           dl.ID,
		Queue:        dl.Queue,
		Reason:       dl.Reason,
		ReceiveCount: dl.ReceiveCount,
		Detail:       dl.Detail,
		Body:         string(dl.Body),
		EnqueuedAt:   dl.EnqueuedAt,
		FailedAt:     dl.FailedAt,
	}
}
