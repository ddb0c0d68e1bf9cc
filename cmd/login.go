package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxmerge/internal/google"
)

func newLoginCmd() *cobra.Command {
	var additional bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Print the Google consent URL to link an account",
		Long: `Print the URL that starts the Google consent flow.

Open it in a browser and sign in. Google redirects to the configured
redirect URL with the access token in the #fragment. Pass that full URL to
"inboxmerge callback" (or let "inboxmerge serve" handle the redirect).

The first account you link with plain "login" becomes the main account,
which can send messages. Use --additional for every further account.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireClientID(); err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintln(cmd.OutOrStdout(), a.sc.Flow().AuthorizationURL(!additional))
			return nil
		},
	}

	cmd.Flags().BoolVar(&additional, "additional", false, "Link an additional account instead of the main account")

	return cmd
}

func newCallbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "callback <redirect-url>",
		Short: "Finish linking an account from the redirect URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			return runCallback(cmd.Context(), a, args[0], cmd.OutOrStdout())
		},
	}
}

func runCallback(ctx context.Context, a *app, rawURL string, out io.Writer) error {
	loc, err := google.NewURLLocation(strings.TrimSpace(rawURL))
	if err != nil {
		return err
	}

	result, err := a.sc.Flow().CompleteCallback(ctx, loc)
	if err != nil {
		return err
	}
	switch result.Stage {
	case google.StageNoCallback:
		return fmt.Errorf("no access token found in %q", rawURL)
	case google.StageFragmentPresent:
		return fmt.Errorf("could not resolve the account for this token; it may have expired, try logging in again")
	}

	role := "additional"
	if result.IsMain {
		role = "main"
	}
	fmt.Fprintf(out, "Linked %s as %s account\n", result.Email, role)
	return nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget every linked account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.sc.Tokens().ClearAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out of all accounts")
			return nil
		},
	}
}
