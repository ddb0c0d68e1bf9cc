package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage linked accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List linked accounts with unexpired tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			accounts, err := a.sc.Tokens().ListAccounts(ctx)
			if err != nil {
				return err
			}
			main, hasMain, err := a.sc.Tokens().MainCredential(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(accounts) == 0 {
				fmt.Fprintln(out, "No linked accounts. Run \"inboxmerge login\" to link one.")
				return nil
			}
			for _, acc := range accounts {
				marker := " "
				if hasMain && acc.Email == main.Email {
					marker = "*"
				}
				left := time.Until(time.UnixMilli(acc.ExpiresAt)).Round(time.Minute)
				fmt.Fprintf(out, "%s %s (expires in %s)\n", marker, acc.Email, left)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <email>",
		Short: "Unlink an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.sc.Tokens().RemoveAccount(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete stored accounts whose tokens have expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.sc.Tokens().PruneExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d expired accounts\n", n)
			return nil
		},
	})

	return cmd
}
