package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMappingCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Bind remotes to accounts per project",
	}
	cmd.AddCommand(
		newMappingSetCommand(r),
		newMappingListCommand(r),
	)
	return cmd
}

func newMappingSetCommand(r *runner) *cobra.Command {
	var (
		sign        bool
		defaultPush bool
		defaultPull bool
	)

	cmd := &cobra.Command{
		Use:   "set <project-id> <remote-name> <account-id>",
		Short: "Bind a remote to an account",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.dispatch(cmd, "set-mapping", map[string]any{
				"project_id":      args[0],
				"remote_name":     args[1],
				"account_id":      args[2],
				"sign_commits":    sign,
				"is_default_push": defaultPush,
				"is_default_pull": defaultPull,
			})
		},
	}
	cmd.Flags().BoolVar(&sign, "sign", false, "sign commits when this mapping is active")
	cmd.Flags().BoolVar(&defaultPush, "default-push", false, "use as the project's default push identity")
	cmd.Flags().BoolVar(&defaultPull, "default-pull", false, "use as the project's default pull identity")
	return cmd
}

func newMappingListCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List remote-to-account bindings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := r.ensureApp()
			if err != nil {
				return err
			}
			if r.jsonOut {
				return r.print(cmd, app.Remotes.Mappings())
			}
			for _, m := range app.Remotes.Mappings() {
				flags := ""
				if m.IsDefaultPush {
					flags += " [push]"
				}
				if m.IsDefaultPull {
					flags += " [pull]"
				}
				if m.SignCommits {
					flags += " [sign]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-36s %-10s -> %s%s\n", m.ProjectID, m.RemoteName, m.AccountID, flags)
			}
			return nil
		},
	}
}
