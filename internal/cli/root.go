// Package cli wires the resolution core into a cobra command tree. Every
// command talks to the core through the api boundary; no command reaches
// into registries or the store directly.
package cli

import (
	"encoding/json"
	"fmt"

	"gitid/internal/api"
	"gitid/internal/logging"

	"github.com/spf13/cobra"
)

// exitError carries a specific process exit code out of a command. Hook
// commands use it so git sees the verdict.
type exitError struct {
	code int
	msg  string
}

func (e exitError) Error() string { return e.msg }

// ExitCode extracts the process exit code an error asks for. Plain errors
// map to 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee exitError
	if ok := asExitError(err, &ee); ok {
		return ee.code
	}
	return 1
}

func asExitError(err error, target *exitError) bool {
	ee, ok := err.(exitError)
	if ok {
		*target = ee
	}
	return ok
}

// runner holds what every subcommand needs: the loaded application and
// the logger. The application is loaded once, on first use, so commands
// like completion never touch the store.
type runner struct {
	logger *logging.AppLogger
	app    *api.App

	jsonOut bool
}

func (r *runner) ensureApp() (*api.App, error) {
	if r.app != nil {
		return r.app, nil
	}
	app, err := api.LoadDefault(r.logger)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	r.app = app
	return app, nil
}

// dispatch routes one operation through the api boundary and prints the
// response, honoring --json.
func (r *runner) dispatch(cmd *cobra.Command, op string, payload any) error {
	app, err := r.ensureApp()
	if err != nil {
		return err
	}

	var raw json.RawMessage
	if payload != nil {
		raw, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	resp := app.Dispatch(api.Request{Operation: op, Payload: raw})
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}
	return r.print(cmd, resp.Data)
}

func (r *runner) print(cmd *cobra.Command, data any) error {
	if data == nil {
		return nil
	}
	if r.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	switch v := data.(type) {
	case string:
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	default:
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
}

// NewRootCommand builds the full gitid command tree.
func NewRootCommand(logger *logging.AppLogger) *cobra.Command {
	r := &runner{logger: logger}

	root := &cobra.Command{
		Use:   "gitid",
		Short: "Per-repository git identity management",
		Long: `gitid resolves which git identity each repository should use, suggests
accounts from learned patterns, and enforces branch policies through
git hooks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&r.jsonOut, "json", false, "print machine-readable JSON output")

	root.AddCommand(
		newAccountCommand(r),
		newProjectCommand(r),
		newPatternCommand(r),
		newPolicyCommand(r),
		newMappingCommand(r),
		newSuggestCommand(r),
		newResolveCommand(r),
		newApplyCommand(r),
		newValidateCommand(r),
		newHookCommand(r),
		newExportCommand(r),
		newImportCommand(r),
		newStatsCommand(r),
	)
	return root
}
