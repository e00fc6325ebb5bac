package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-ssvep/configs"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration after defaults, file and environment are merged",
	RunE: func(cmd *cobra.Command, args []string) error {
		format := appConfig.OutputFormat
		if format == "table" {
			format = "yaml"
		}
		return encode(cmd.OutOrStdout(), format, appConfig)
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration without running anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := configs.ValidateConfig(appConfig); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid (%d targets, window of %d samples)\n",
			len(appConfig.Classifier.Patterns), appConfig.Classifier.WindowSize())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}
