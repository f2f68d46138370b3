package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"maadoctor.app/cli/internal/application/ports"
)

// NewCacheCommand groups the cache maintenance commands
func NewCacheCommand(container *CLIContainer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear cached scripts and solutions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show cache location and usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := container.CacheStore.Info()
			if err != nil {
				return err
			}
			fmt.Fprint(container.stdout(), RenderCacheInfo(info))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:       "clear [index|bodies|solutions]...",
		Short:     "Remove cached entries, all namespaces by default",
		ValidArgs: namespaceNames(),
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			namespaces := ports.Namespaces
			if len(args) > 0 {
				namespaces = make([]ports.Namespace, len(args))
				for i, a := range args {
					namespaces[i] = ports.Namespace(a)
				}
			}
			total := 0
			for _, ns := range namespaces {
				n, err := container.CacheStore.Clear(ns)
				if err != nil {
					return fmt.Errorf("clear %s: %w", ns, err)
				}
				total += n
			}
			fmt.Fprintf(container.stdout(), "Removed %d cached entries\n", total)
			return nil
		},
	})
	return cmd
}

func namespaceNames() []string {
	names := make([]string, len(ports.Namespaces))
	for i, ns := range ports.Namespaces {
		names[i] = string(ns)
	}
	return names
}
