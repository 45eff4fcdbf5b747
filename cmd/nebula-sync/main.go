package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/nebula-sync/pkg/connectors/registry"

	// Import all available connectors to register them
	_ "github.com/ajitpratap0/nebula-sync/pkg/connectors/jsonl"
	_ "github.com/ajitpratap0/nebula-sync/pkg/connectors/sqlite"
)

var version = "0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "nebula-sync",
		Short: "Nebula Sync - destination sync engine",
		Long: `Nebula Sync reads records and state messages from a source as JSON lines,
buffers them on local disk and loads them into a destination connector.
Checkpoints are written to stdout once the destination has persisted every
record they cover. Logs go to stderr.`,
		SilenceUsage: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Nebula Sync v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "connectors",
		Short: "List available destination connectors",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available Destination Connectors:")
			for _, info := range registry.ListDestinations() {
				fmt.Fprintf(out, "  - %s (%s): %s\n", info.Name, info.Version, info.Description)
			}
		},
	})

	root.AddCommand(newCheckConfigCommand())
	root.AddCommand(newRunCommand())
	return root
}

func newCheckConfigCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate a configuration and print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if catalogPath := v.GetString(flagCatalog); catalogPath != "" {
				catalog, err := loadCatalog(catalogPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "catalog: %d streams\n", len(catalog.Streams))
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
			return nil
		},
	}
	bindFlags(cmd, v)
	return cmd
}
