package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"gitid/internal/api"

	"github.com/spf13/cobra"
)

func exportReq(includeAccounts bool) api.Request {
	payload, _ := json.Marshal(map[string]bool{"include_accounts": includeAccounts})
	return api.Request{Operation: "export", Payload: payload}
}

func newExportCommand(r *runner) *cobra.Command {
	var includeAccounts bool
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export patterns, policies and mappings as a shareable bundle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := r.ensureApp()
			if err != nil {
				return err
			}
			resp := app.Dispatch(exportReq(includeAccounts))
			if !resp.Success {
				return fmt.Errorf("%s", resp.Error)
			}
			data, _ := resp.Data.(string)
			if output == "" || output == "-" {
				fmt.Fprint(cmd.OutOrStdout(), data)
				return nil
			}
			if err := os.WriteFile(output, []byte(data), 0o600); err != nil {
				return fmt.Errorf("writing bundle: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().BoolVar(&includeAccounts, "include-accounts", false,
		"include account records (never includes signing key material)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func newImportCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <bundle-file>",
		Short: "Import a bundle, validating every record before anything is applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading bundle: %w", err)
			}
			return r.dispatch(cmd, "import", map[string]string{"data": string(data)})
		},
	}
	return cmd
}
