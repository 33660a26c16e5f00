package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/connreg/internal/pubsub"
	"github.com/zjrosen/connreg/internal/registry"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print a line whenever the registry changes",
	Long: `Print a line for every change this process observes: edits made by other
applications, discovery updates and reloads. Runs until interrupted.

Examples:
  connreg watch
  connreg watch | while read -r line; do refresh-my-menu; done`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd.Context(), func(store *registry.Store) error {
			return watchEvents(cmd.Context(), store, cmd.OutOrStdout())
		})
	},
}

// watchEvents copies the store's refresh events to w until ctx ends or the
// store closes.
func watchEvents(ctx context.Context, sub pubsub.Subscriber[registry.Change], w io.Writer) error {
	events := sub.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			line := fmt.Sprintf("%s %s generation=%d", ev.Timestamp.Format(time.RFC3339), ev.Type, ev.Payload.Generation)
			if ev.Type == pubsub.UpdatedEvent {
				line += fmt.Sprintf(" query=%q", ev.Payload.Query)
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
