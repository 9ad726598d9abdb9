package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tools-common",
	Short: "Shared build tasks for our tooling projects",
	Long: `This command bundles the build steps that are shared between our tooling
projects: fetching type definitions, linting, compiling, testing and packaging.`,
}

// Execute runs the CLI and exits on error.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
