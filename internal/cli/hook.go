package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gitid/internal/enforcer"
	"gitid/internal/remote"

	"github.com/spf13/cobra"
)

func newHookCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Git hook entry points and installation",
	}
	cmd.AddCommand(
		newHookRunCommand(r, "pre-commit", remote.Direction("")),
		newHookRunCommand(r, "pre-push", remote.DirectionPush),
		newHookInstallCommand(r),
	)
	return cmd
}

// newHookRunCommand builds the command git invokes from an installed hook.
// Its exit code is the verdict: 0 proceeds, 1 aborts the git operation.
func newHookRunCommand(r *runner, name string, direction remote.Direction) *cobra.Command {
	var flags projectFlags
	var branch, remoteName, userID string
	var signed bool

	cmd := &cobra.Command{
		Use:    name,
		Short:  fmt.Sprintf("Run the %s check for the current repository", name),
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := r.ensureApp()
			if err != nil {
				// Loading failed before any policy could be consulted; there
				// is no branch context to fail closed on, so warn and proceed.
				fmt.Fprintf(cmd.ErrOrStderr(), "gitid: %v; proceeding without enforcement\n", err)
				return nil
			}

			payload, err := flags.payload(r)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "gitid: %v; proceeding without enforcement\n", err)
				return nil
			}

			ev := enforcer.Event{
				ProjectID:         payload["project_id"].(string),
				Branch:            branch,
				RemoteName:        remoteName,
				Direction:         direction,
				UserID:            userID,
				HasValidSignature: signed,
			}
			var result enforcer.Result
			if direction == remote.DirectionPush {
				result = app.Enforcer.PrePush(ev)
			} else {
				result = app.Enforcer.PreCommit(ev)
			}

			for _, reason := range result.Reasons {
				fmt.Fprintf(cmd.ErrOrStderr(), "gitid: %s\n", reason)
			}
			for _, warning := range result.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "gitid: warning: %s\n", warning)
			}
			if result.State == enforcer.StateCorrected {
				fmt.Fprintln(cmd.ErrOrStderr(), "gitid: local identity corrected, re-run your git command if the author looks wrong")
			}

			if result.ExitCode != 0 {
				return exitError{code: result.ExitCode, msg: fmt.Sprintf("%s blocked", name)}
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&branch, "branch", "", "branch being committed or pushed (defaults to HEAD)")
	cmd.Flags().StringVar(&remoteName, "remote", "", "remote being pushed to")
	cmd.Flags().StringVar(&userID, "user", "", "user id performing the operation")
	cmd.Flags().BoolVar(&signed, "signed", false, "the proposed commit carries a valid signature")
	return cmd
}

// hookScript is the wrapper written into .git/hooks. It forwards the hook
// arguments git provides and mirrors gitid's exit code back to git.
const hookScript = `#!/bin/sh
# Installed by gitid. Remove this file to disable enforcement.
exec gitid hook %s --path "$(git rev-parse --show-toplevel)" %s
`

func newHookInstallCommand(r *runner) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "install [path]",
		Short: "Install the pre-commit and pre-push hooks into a repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			hooksDir := filepath.Join(abs, ".git", "hooks")
			if _, err := os.Stat(hooksDir); err != nil {
				return fmt.Errorf("%s does not look like a git repository: %w", abs, err)
			}

			hooks := map[string]string{
				"pre-commit": "",
				"pre-push":   `--remote "$1"`,
			}
			for name, extra := range hooks {
				target := filepath.Join(hooksDir, name)
				if _, err := os.Stat(target); err == nil && !force {
					return fmt.Errorf("hook %s already exists, pass --force to overwrite", target)
				}
				content := fmt.Sprintf(hookScript, name, extra)
				if err := os.WriteFile(target, []byte(content), 0o755); err != nil {
					return fmt.Errorf("writing hook %s: %w", target, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "installed %s\n", target)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing hooks")
	return cmd
}
