package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"vkdump/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage vkdump configuration files.

Configuration is loaded in order of priority:
  - Command line flags
  - Environment variables (VKDUMP_*)
  - .env file
  - Configuration file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Show the merged configuration from every source, with the access token masked.`,
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".vkdump.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	exampleConfig := `# vkdump configuration file
#
# Every option can also be set through environment variables prefixed
# with VKDUMP_, for example VKDUMP_ACCESS_TOKEN or VKDUMP_OUTPUT_DIR.

api:
  # VK access token. Prefer 'vkdump auth login' over writing it here.
  access_token: ""

  # VK API version.
  version: "5.131"

# The minimum gap between any two API calls defaults to 350ms, safely
# under VK's 3 requests per second per token. Override it with the
# VKDUMP_MIN_INTERVAL_MS environment variable.

retry:
  # Retry attempts for transient failures before giving up.
  max_attempts: 3

output:
  # Archives land in <base_directory>/club<ID>/.
  base_directory: "."

dump:
  # Items per API page, up to 1000. Large pages can trip the vendor's
  # response size limit; the dumper shrinks them automatically.
  page_size: 100

  # Fetch community statistics (requires an admin token).
  include_stats: false

  # Statistics start date, DD/MM/YYYY. Implies include_stats.
  stats_from: ""

logging:
  # Log level: debug, info, warn, error.
  level: "info"

  # Log file path. Empty logs to stdout only.
  file: ""
`

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	fmt.Printf("Configuration file created: %s\n", configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	display := *cfg
	if display.API.AccessToken != "" {
		if len(display.API.AccessToken) > 8 {
			display.API.AccessToken = display.API.AccessToken[:4] + "..." + display.API.AccessToken[len(display.API.AccessToken)-4:]
		} else {
			display.API.AccessToken = "***"
		}
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}
	fmt.Print(string(data))
	return nil
}
