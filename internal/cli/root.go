// Package cli implements the wptsyncd command-line interface, grounded
// on the teacher's internal/cli cobra/viper setup.
package cli

import (
	"github.com/spf13/cobra"
)

var cfgFile string

// resolveConfigPath returns the --config flag value, or the default
// in-tree config path when it was never set.
func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "wpt-sync.yaml"
}

var rootCmd = &cobra.Command{
	Use:   "wptsyncd",
	Short: "wpt try-push sync engine",
	Long: `wptsyncd drives the Try-Push sync engine: it receives webhook events
for an upstream GitHub-hosted test repo and a downstream VCS-hosted
integration repo, schedules try pushes, and tracks their CI results.`,
	SilenceUsage: true,
}

// Execute runs the root command; its child commands are registered in init.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./wpt-sync.yaml)")
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(configCmd)
}
