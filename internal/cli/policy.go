package cli

import (
	"fmt"

	"gitid/internal/policy"

	"github.com/spf13/cobra"
)

func newPolicyCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage branch policies",
	}
	cmd.AddCommand(
		newPolicyAddCommand(r),
		newPolicyListCommand(r),
	)
	return cmd
}

func newPolicyAddCommand(r *runner) *cobra.Command {
	var p policy.BranchPolicy
	var enforcement string

	cmd := &cobra.Command{
		Use:   "add <branch-pattern>",
		Short: "Add a branch policy",
		Example: `  gitid policy add '^(main|master)$' --require-account work-account \
      --require-signed --enforcement strict`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.BranchPattern = args[0]
			p.Enforcement = policy.Enforcement(enforcement)
			return r.dispatch(cmd, "add-policy", p)
		},
	}
	cmd.Flags().StringVar(&p.RequiredAccountID, "require-account", "", "account id commits on matching branches must use")
	cmd.Flags().BoolVar(&p.RequireSignedCommits, "require-signed", false, "require a valid commit signature")
	cmd.Flags().BoolVar(&p.RequireLinearHistory, "require-linear", false, "require linear history (no merge commits)")
	cmd.Flags().StringSliceVar(&p.AllowedUserIDs, "allow-user", nil, "user ids allowed to commit; repeatable, empty allows everyone")
	cmd.Flags().StringVar(&enforcement, "enforcement", string(policy.EnforcementWarning),
		"enforcement level: strict, warning, advisory or off")
	return cmd
}

func newPolicyListCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List branch policies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if r.jsonOut {
				return r.dispatch(cmd, "list-policies", nil)
			}
			app, err := r.ensureApp()
			if err != nil {
				return err
			}
			for _, p := range app.Policies.Policies() {
				extras := ""
				if p.RequiredAccountID != "" {
					extras += " account=" + p.RequiredAccountID
				}
				if p.RequireSignedCommits {
					extras += " signed"
				}
				if p.RequireLinearHistory {
					extras += " linear"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-30s %-9s%s\n", p.BranchPattern, p.Enforcement, extras)
			}
			return nil
		},
	}
}
