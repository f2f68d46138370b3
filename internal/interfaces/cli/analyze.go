package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// AnalyzeFlags holds command-line flags for the analyze command
type AnalyzeFlags struct {
	Interactive bool
	JSON        bool
	Keep        bool
}

// NewAnalyzeCommand creates the analyze command
func NewAnalyzeCommand(container *CLIContainer) *cobra.Command {
	flags := &AnalyzeFlags{}

	cmd := &cobra.Command{
		Use:   "analyze <archive.zip|directory>",
		Short: "Run every detector over a log archive or directory",
		Long: `Extract a log archive (or use a directory as is), run every available
detector against it and print the known problems found.

Examples:
  maadoctor analyze ./logs.zip
  maadoctor analyze ./debug --json
  maadoctor analyze ./logs.zip --interactive`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, container, flags, args[0])
		},
	}

	cmd.Flags().BoolVarP(&flags.Interactive, "interactive", "i", false, "Browse results and solutions interactively")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVar(&flags.Keep, "keep", false, "Keep the extracted archive after the run")

	return cmd
}

func runAnalyze(cmd *cobra.Command, container *CLIContainer, flags *AnalyzeFlags, path string) error {
	if flags.Interactive && flags.JSON {
		return fmt.Errorf("--interactive and --json cannot be combined")
	}
	svc := container.AnalysisService
	if !flags.Keep {
		defer func() {
			if err := svc.Cleanup(); err != nil {
				container.Logger.Warn("failed to remove extracted logs", "error", err)
			}
		}()
	}

	rep, dir, err := svc.AnalyzePath(cmd.Context(), path)
	if err != nil {
		return err
	}

	out := container.stdout()
	switch {
	case flags.JSON:
		return writeJSON(out, rep)
	case flags.Interactive:
		return runBrowser(cmd.Context(), container, rep)
	default:
		fmt.Fprint(out, RenderReport(rep, dir))
		return nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
