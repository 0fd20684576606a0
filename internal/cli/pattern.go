package cli

import (
	"fmt"

	"gitid/internal/pattern"

	"github.com/spf13/cobra"
)

func newPatternCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pattern",
		Short: "Manage matching patterns",
	}
	cmd.AddCommand(
		newPatternAddCommand(r),
		newPatternListCommand(r),
	)
	return cmd
}

func newPatternAddCommand(r *runner) *cobra.Command {
	var (
		kind       string
		confidence float64
	)

	cmd := &cobra.Command{
		Use:   "add <expression> <account-id>",
		Short: "Add a pattern mapping paths or remote URLs to an account",
		Example: `  gitid pattern add --kind glob 'github.com/acme/*' work-account
  gitid pattern add --kind exact '/home/jane/oss/linux' personal-account`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.dispatch(cmd, "add-pattern", pattern.Pattern{
				Kind:       pattern.Kind(kind),
				Expression: args[0],
				AccountID:  args[1],
				Confidence: confidence,
				Origin:     pattern.OriginUser,
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(pattern.KindGlob), "pattern kind: exact, glob or regex")
	cmd.Flags().Float64Var(&confidence, "confidence", 1.0, "base confidence in [0,1]")
	return cmd
}

func newPatternListCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List patterns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if r.jsonOut {
				return r.dispatch(cmd, "list-patterns", nil)
			}
			app, err := r.ensureApp()
			if err != nil {
				return err
			}
			for _, p := range app.Patterns {
				fmt.Fprintf(cmd.OutOrStdout(), "%-7s %-40s -> %s (%.2f, %s)\n",
					p.Kind, p.Expression, p.AccountID, p.Confidence, p.Origin)
			}
			return nil
		},
	}
}
