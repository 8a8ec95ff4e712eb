package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mozilla/wpt-sync/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(resolveConfigPath())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "root: %s\n", cfg.Root)
		fmt.Fprintf(cmd.OutOrStdout(), "landing: %s\n", cfg.Landing)
		fmt.Fprintf(cmd.OutOrStdout(), "stability_count: %d\n", cfg.StabilityCount)
		fmt.Fprintf(cmd.OutOrStdout(), "report_context: %s\n", cfg.ReportContext)
		for syncType, url := range cfg.Integration {
			fmt.Fprintf(cmd.OutOrStdout(), "integration[%s]: %s\n", syncType, url)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
