package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing autovideo worker configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  autovideo-worker config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml in ., ./configs, or /etc/autovideo)
  - Environment variables (AUTOVIDEO_SERVER_PORT, AUTOVIDEO_DATABASE_DSN, etc.)
  - Command-line flags (for some options)

Environment variables use the AUTOVIDEO_ prefix and underscores for nesting.
Example: server.port -> AUTOVIDEO_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	v := viper.New()
	config.SetDefaults(v)

	out, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Print(string(out))
	return nil
}
