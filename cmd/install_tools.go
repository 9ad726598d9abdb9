package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Polymer/tools-common/pkg"
)

var installToolsCmd = &cobra.Command{
	Use:   "install-tools",
	Short: "Installs the pinned development tools",
	Long: `Installs the Go tools pinned in the module's tools.go into its .tools
directory. Put that directory on your PATH to use them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return pkg.InstallTools()
	},
}

func init() {
	rootCmd.AddCommand(installToolsCmd)
}
