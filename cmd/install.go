// File: cmd/install.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/lancet/internal/browser"
	"github.com/xkilldash9x/lancet/internal/observability"
)

// installCmd downloads the Playwright driver and browsers. Run once per
// machine before anything else.
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Download the browser binaries Lancet drives.",
	RunE: func(cmd *cobra.Command, args []string) error {
		observability.GetLogger().Info("Installing browsers.")
		return browser.Install()
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}
