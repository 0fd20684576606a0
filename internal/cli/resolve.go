package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// projectFlags is the project selector shared by the resolution commands:
// an explicit project id, an explicit path, or the working directory.
type projectFlags struct {
	projectID string
	path      string
}

func (f *projectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.projectID, "project", "", "project id (defaults to the repository at --path)")
	cmd.Flags().StringVar(&f.path, "path", "", "repository path (defaults to the working directory)")
}

func (f *projectFlags) resolve() (projectID, path string, err error) {
	if f.projectID != "" {
		return f.projectID, "", nil
	}
	path = f.path
	if path == "" {
		path, err = workingDir()
		if err != nil {
			return "", "", err
		}
	}
	return "", path, nil
}

// payload builds the common project-selector payload, translating a path
// into the tracked project when needed.
func (f *projectFlags) payload(r *runner) (map[string]any, error) {
	projectID, path, err := f.resolve()
	if err != nil {
		return nil, err
	}
	if projectID == "" {
		app, err := r.ensureApp()
		if err != nil {
			return nil, err
		}
		proj, err := app.Projects.GetByPath(path)
		if err != nil {
			return nil, fmt.Errorf("repository %s is not tracked, run 'gitid project add' first: %w", path, err)
		}
		projectID = proj.ID
	}
	return map[string]any{"project_id": projectID}, nil
}

func newSuggestCommand(r *runner) *cobra.Command {
	var flags projectFlags
	var accept, reject bool

	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest the account this repository should use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := flags.payload(r)
			if err != nil {
				return err
			}
			op := "suggest"
			if accept {
				op = "accept-suggestion"
			} else if reject {
				op = "reject-suggestion"
			}
			return r.dispatch(cmd, op, payload)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&accept, "accept", false, "record the suggestion as accepted")
	cmd.Flags().BoolVar(&reject, "reject", false, "record the suggestion as rejected")
	cmd.MarkFlagsMutuallyExclusive("accept", "reject")
	return cmd
}

func newResolveCommand(r *runner) *cobra.Command {
	var flags projectFlags
	var remoteName, direction string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the identity for a remote operation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := flags.payload(r)
			if err != nil {
				return err
			}
			payload["remote_name"] = remoteName
			payload["direction"] = direction
			return r.dispatch(cmd, "resolve", payload)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&remoteName, "remote", "origin", "remote name")
	cmd.Flags().StringVar(&direction, "direction", "push", "operation direction: push or pull")
	return cmd
}

func newApplyCommand(r *runner) *cobra.Command {
	var flags projectFlags
	var accountID, remoteName string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Write the resolved identity into the repository's local git config",
		Long: `Apply resolves which account the repository should use (or takes one
explicitly with --account) and rewrites user.name, user.email and signing
settings in the repository's local config. Global git config is never
touched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := flags.payload(r)
			if err != nil {
				return err
			}
			payload["account_id"] = accountID
			payload["remote_name"] = remoteName
			return r.dispatch(cmd, "apply", payload)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&accountID, "account", "", "apply this account instead of resolving one")
	cmd.Flags().StringVar(&remoteName, "remote", "", "resolve against this remote")
	return cmd
}

func newValidateCommand(r *runner) *cobra.Command {
	var flags projectFlags
	var branch, accountID, userID string
	var signed bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an identity against the branch policies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := flags.payload(r)
			if err != nil {
				return err
			}
			payload["branch"] = branch
			payload["account_id"] = accountID
			payload["user_id"] = userID
			payload["has_valid_signature"] = signed
			return r.dispatch(cmd, "validate", payload)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&branch, "branch", "", "branch name to validate against")
	cmd.Flags().StringVar(&accountID, "account", "", "account id the commit would use")
	cmd.Flags().StringVar(&userID, "user", "", "user id performing the operation")
	cmd.Flags().BoolVar(&signed, "signed", false, "treat the commit as carrying a valid signature")
	cmd.MarkFlagRequired("branch")
	return cmd
}

func newStatsCommand(r *runner) *cobra.Command {
	var flags projectFlags
	var windowHours int
	var global bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show suggestion accuracy from the audit trail",
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload := map[string]any{"window_hours": windowHours}
			if !global {
				p, err := flags.payload(r)
				if err != nil {
					return err
				}
				payload["project_id"] = p["project_id"]
			}
			return r.dispatch(cmd, "accuracy", payload)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&windowHours, "window", 24*30, "look-back window in hours")
	cmd.Flags().BoolVar(&global, "global", false, "aggregate across all projects")
	return cmd
}
