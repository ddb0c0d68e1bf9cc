package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxmerge/internal/compose"
	"github.com/teemow/inboxmerge/internal/filter"
	"github.com/teemow/inboxmerge/internal/inbox"
	"github.com/teemow/inboxmerge/internal/seen"
)

func newInboxCmd() *cobra.Command {
	var (
		sender   string
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Show the merged inbox of all linked accounts",
		Long: `Fetch the inboxes of all linked accounts, keep messages from the
configured senders (filter.senders) and print them newest first.

With --watch the feed is refreshed every --interval (default: refresh.interval)
until interrupted, and messages not shown before are marked NEW.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			ok, err := a.sc.Tokens().IsAuthenticated(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w; run \"inboxmerge login\" first", compose.ErrNotAuthenticated)
			}

			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !watch {
				feed, err := a.sc.Refresh(ctx)
				if err != nil {
					return err
				}
				showFeed(out, a.sc.Seen(), feed, sender, loc)
				return nil
			}

			if interval <= 0 {
				interval = cfg.Refresh.Interval
			}
			poller := a.sc.NewPoller(func(feed inbox.Feed) {
				showFeed(out, a.sc.Seen(), feed, sender, loc)
			})
			poller.Start(ctx, interval)
			return nil
		},
	}

	cmd.Flags().StringVar(&sender, "sender", filter.FilterAll, "Only show senders containing this text (e.g. shopee)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep refreshing until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Refresh interval for --watch")

	return cmd
}

func showFeed(w io.Writer, tracker *seen.Tracker, feed inbox.Feed, sender string, loc *time.Location) {
	isNew := tracker.Classify(feed.Messages).NewIDs()
	renderFeed(w, feed, sender, isNew, time.Now(), loc)
}
