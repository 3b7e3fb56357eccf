package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"stravasync/pkg/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage stravasync configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (STRAVASYNC_*)
  - Configuration file
  - Default values (lowest priority)`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with defaults",
	Long: `Write the default configuration to '.stravasync.yaml' in the current
directory, or to the path given with --config.`,
	RunE: runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging all sources. Credential values
are masked.`,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".stravasync.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Never print secrets
	masked := *cfg
	masked.Strava.ClientSecret = maskSecret(cfg.Strava.ClientSecret)
	masked.Strava.RefreshToken = maskSecret(cfg.Strava.RefreshToken)
	masked.Strava.AccessToken = maskSecret(cfg.Strava.AccessToken)

	out, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	fmt.Print(string(out))
	return nil
}
