package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"maadoctor.app/cli/internal/core/domainerr"
)

// NewSolutionCommand shows the remediation document for an error code
func NewSolutionCommand(container *CLIContainer) *cobra.Command {
	var (
		refresh bool
		raw     bool
	)
	cmd := &cobra.Command{
		Use:   "solution <code>",
		Short: "Show how to fix a known error",
		Long: `Print the solution document for an error code such as E001.

Remote solutions are cached; --refresh fetches a fresh copy.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := container.AnalysisService.Resolve(cmd.Context(), args[0], refresh)
			if errors.Is(err, domainerr.ErrNotFound) {
				return fmt.Errorf("no solution available for %s", args[0])
			}
			if err != nil {
				return err
			}
			if raw {
				fmt.Fprint(container.stdout(), doc.Content)
				return nil
			}
			fmt.Fprint(container.stdout(), RenderSolution(doc))
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch again instead of using the cache")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the markdown source")
	return cmd
}
