package cli

import (
	"fmt"

	"gitid/internal/identity"

	"github.com/spf13/cobra"
)

func newAccountCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage git identity accounts",
	}
	cmd.AddCommand(
		newAccountAddCommand(r),
		newAccountListCommand(r),
		newAccountRemoveCommand(r),
		newAccountSetKeyCommand(r),
		newAccountDeleteKeyCommand(r),
	)
	return cmd
}

func newAccountAddCommand(r *runner) *cobra.Command {
	var account identity.Account

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new account",
		Example: `  gitid account add --name "Work" --email jane@corp.example \
      --git-user "Jane Doe" --priority 2 --signing-key keyring:work`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.dispatch(cmd, "add-account", account)
		},
	}
	cmd.Flags().StringVar(&account.DisplayName, "name", "", "human-readable account name")
	cmd.Flags().StringVar(&account.Email, "email", "", "git author email")
	cmd.Flags().StringVar(&account.GitUserName, "git-user", "", "git author name")
	cmd.Flags().StringVar(&account.SigningKeyRef, "signing-key", "", "signing key reference (keyring:<name> or a literal key id)")
	cmd.Flags().IntVar(&account.Priority, "priority", identity.MaxPriority, "priority, 1 is highest")
	cmd.Flags().StringVar(&account.Color, "color", "", "display color as #rrggbb")
	cmd.Flags().BoolVar(&account.IsDefault, "default", false, "use as the fallback account")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("git-user")
	return cmd
}

func newAccountListCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if r.jsonOut {
				return r.dispatch(cmd, "list-accounts", nil)
			}
			app, err := r.ensureApp()
			if err != nil {
				return err
			}
			for _, a := range app.Accounts.All() {
				marker := " "
				if a.IsDefault {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-20s %-30s p%-2d used %d\n",
					marker, a.DisplayName, a.Email, a.Priority, a.UsageCount)
			}
			return nil
		},
	}
}

func newAccountRemoveCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <account-id>",
		Aliases: []string{"rm"},
		Short:   "Remove an account",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.dispatch(cmd, "remove-account", map[string]string{"account_id": args[0]})
		},
	}
}

func newAccountSetKeyCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "set-key <name> <key>",
		Short: "Store a signing key in the OS credential store",
		Long: `Stores a signing key value under a name in the OS credential store.
Accounts reference it as "keyring:<name>"; the key itself never lands in
a config file.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.ensureApp()
			if err != nil {
				return err
			}
			if err := app.Keys.StoreKey(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored signing key %q (reference it as %q)\n",
				args[0], "keyring:"+args[0])
			return nil
		},
	}
}

func newAccountDeleteKeyCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-key <name>",
		Short: "Remove a signing key from the OS credential store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.ensureApp()
			if err != nil {
				return err
			}
			return app.Keys.DeleteKey(args[0])
		},
	}
}
