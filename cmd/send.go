package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxmerge/internal/batch"
	"github.com/teemow/inboxmerge/internal/compose"
)

func newSendCmd() *cobra.Command {
	var (
		to      []string
		subject string
		body    string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message from the main account (once per day)",
		Long: `Send one plain-text message from the main account to each --to address.

Only one send per calendar day (in the configured timezone) is allowed. A send
counts when at least one recipient was reached. Without --to the message goes
to every linked account.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			recipients := to
			if len(recipients) == 0 {
				if recipients, err = a.sc.Compose().Recipients(ctx); err != nil {
					return err
				}
			}

			report, err := a.sc.Compose().Send(ctx, compose.Draft{
				Recipients: recipients,
				Subject:    subject,
				Body:       body,
			})
			if errors.Is(err, compose.ErrAllFailed) || err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), batch.FormatResults(report.Results))
			}
			return err
		},
	}

	cmd.Flags().StringSliceVar(&to, "to", nil, "Recipient address (repeatable or comma-separated)")
	cmd.Flags().StringVar(&subject, "subject", "", "Message subject")
	cmd.Flags().StringVar(&body, "body", "", "Message body")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether a send is still allowed today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.sc.Compose().Status(cmd.Context())
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if st.CanSend {
				fmt.Fprintln(out, "A send is allowed today.")
			} else {
				fmt.Fprintln(out, "Today's send has been used.")
			}
			if st.LastSent != nil {
				fmt.Fprintf(out, "Last sent: %s\n", st.LastSent.In(loc).Format(time.RFC1123))
			}
			return nil
		},
	})

	return cmd
}
