// Command fieldsync is the offline-first field reporting client: workers
// record construction progress and photos locally, and a durable sync
// queue pushes everything to the project backend whenever connectivity
// allows.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Offline-first progress reporting for fiber construction crews",
	Long: `fieldsync records work entries and photos on the device and syncs
them to the project backend when a connection is available.

All reads are served from the local mirror, so the tool is fully usable
in the field with no signal. Writes are queued durably and pushed in
order once connectivity returns.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default ~/.config/fieldsync/config.yaml)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(entryCmd)
	rootCmd.AddCommand(photoCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(daemonCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
