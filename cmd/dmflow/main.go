// Command dmflow runs the campaign flow API and its maintenance tools.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "dmflow",
		Short:        "Campaign flowchart backend for tabletop game masters",
		SilenceUsage: true,
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().String("config", "", "optional YAML config file; environment variables take precedence")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(mcpCmd())
	root.AddCommand(versionCmd())
	return root
}
