package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"maadoctor.app/cli/internal/application/ports"
	"maadoctor.app/cli/internal/application/services"
	"maadoctor.app/cli/internal/infrastructure/config"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// CLIContainer holds the dependencies commands use. The service fields are
// filled by Initialize once flags have been parsed.
type CLIContainer struct {
	Config          *config.Config
	Logger          hclog.Logger
	AnalysisService *services.AnalysisService
	ScriptManager   *services.ScriptManager
	CacheStore      ports.CacheStore

	// Initialize builds the services from the config file and flag overrides.
	Initialize func(configPath string, overrides map[string]any) error
	// Shutdown stops plugin processes.
	Shutdown func() error

	Out io.Writer
	Err io.Writer
}

func (c *CLIContainer) stdout() io.Writer {
	if c.Out != nil {
		return c.Out
	}
	return os.Stdout
}

func (c *CLIContainer) stderr() io.Writer {
	if c.Err != nil {
		return c.Err
	}
	return os.Stderr
}

// flagOverrides maps persistent flags to config keys.
var flagOverrides = map[string]string{
	"source":    "source.mode",
	"layout":    "source.layout",
	"path":      "source.path",
	"url":       "source.url",
	"cache-dir": "cache.dir",
	"workers":   "engine.workers",
	"timeout":   "engine.timeout",
}

// NewRootCommand builds the maadoctor command tree.
func NewRootCommand(container *CLIContainer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "maadoctor",
		Short: "Diagnose known problems in application log archives",
		Long: `maadoctor inspects a log archive or directory with a set of detectors,
reports the known problems it finds and shows how to fix them.

Detectors and solutions come from a local scripts directory or a remote
repository that is cached for offline use.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || container.Initialize == nil {
				return nil
			}
			configPath, _ := cmd.Flags().GetString("config")
			if err := container.Initialize(configPath, collectOverrides(cmd)); err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if container.Shutdown == nil {
				return nil
			}
			return container.Shutdown()
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file path (default is $HOME/.maadoctor/config.yaml)")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("source", "", "Script source: local or remote")
	flags.String("layout", "", "Local source layout: folder or index")
	flags.String("path", "", "Local scripts directory")
	flags.String("url", "", "Remote scripts repository URL")
	flags.String("cache-dir", "", "Cache directory")
	flags.Int("workers", 0, "Detectors run in parallel")
	flags.Duration("timeout", 0, "Time limit for one detector")

	rootCmd.AddCommand(NewAnalyzeCommand(container))
	rootCmd.AddCommand(NewScriptsCommand(container))
	rootCmd.AddCommand(NewSolutionCommand(container))
	rootCmd.AddCommand(NewCacheCommand(container))
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// collectOverrides returns config overrides for the flags set on the command line.
func collectOverrides(cmd *cobra.Command) map[string]any {
	overrides := make(map[string]any)
	for flag, key := range flagOverrides {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		overrides[key] = f.Value.String()
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		overrides["log.level"] = "debug"
	}
	return overrides
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context, container *CLIContainer) int {
	rootCmd := NewRootCommand(container)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(container.stderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}
