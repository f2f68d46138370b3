package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewScriptsCommand groups the detector source commands
func NewScriptsCommand(container *CLIContainer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scripts",
		Short: "Inspect and synchronize detector scripts",
	}
	cmd.AddCommand(newScriptsListCommand(container))
	cmd.AddCommand(newScriptsSyncCommand(container))
	cmd.AddCommand(newScriptsStatusCommand(container))
	return cmd
}

func newScriptsListCommand(container *CLIContainer) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the detectors the configured source provides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			descriptors, diags, err := container.ScriptManager.Discover(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(container.stdout(), map[string]any{
					"detectors":   descriptors,
					"diagnostics": diags,
				})
			}
			fmt.Fprint(container.stdout(), RenderDescriptors(descriptors, diags))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newScriptsSyncCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch every detector body so analysis works offline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := container.ScriptManager.Sync(cmd.Context())
			if err != nil {
				return err
			}
			out := container.stdout()
			if result.FromSnapshot {
				fmt.Fprintln(out, warnStyle.Render("! repository unreachable, listed from the cached index"))
			}
			fmt.Fprintf(out, "Synced %d of %d detectors\n", result.Loaded, result.Descriptors)
			for _, d := range result.Diagnostics {
				fmt.Fprintln(out, warnStyle.Render("! "+d.String()))
			}
			return nil
		},
	}
}

func newScriptsStatusCommand(container *CLIContainer) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show when the detector source was last synchronized",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := container.ScriptManager.Status()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(container.stdout(), status)
			}
			fmt.Fprint(container.stdout(), RenderStatus(status))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
