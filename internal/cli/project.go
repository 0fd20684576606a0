package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newProjectCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage tracked repositories",
	}
	cmd.AddCommand(
		newProjectAddCommand(r),
		newProjectListCommand(r),
	)
	return cmd
}

func newProjectAddCommand(r *runner) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add [path]",
		Short: "Track a repository, discovering its remotes and platform",
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
			return r.dispatch(cmd, "add-project", map[string]string{
				"path": abs,
				"name": name,
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "override the discovered project name")
	return cmd
}

func newProjectListCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tracked repositories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if r.jsonOut {
				return r.dispatch(cmd, "list-projects", nil)
			}
			app, err := r.ensureApp()
			if err != nil {
				return err
			}
			for _, p := range app.Projects.All() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-10s %s\n", p.Name, p.Platform, p.Path)
			}
			return nil
		},
	}
}

// workingDir returns the current directory as an absolute path, for
// commands that default to the repository they are run inside.
func workingDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determining working directory: %w", err)
	}
	return filepath.Abs(wd)
}
