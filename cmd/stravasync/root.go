package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stravasync/pkg/auth"
	"stravasync/pkg/config"
	"stravasync/pkg/fetcher"
	"stravasync/pkg/logger"
	"stravasync/pkg/strava"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	dataDir    string
	profile    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stravasync",
	Short: "Mirror your Strava activities into local JSON files",
	Long: `stravasync maintains a local mirror of a Strava athlete's activity
history: one JSON file per activity plus an ordered index, built
incrementally across runs.

Every run resumes where the last one left off. The API request budget
is tracked in a persisted sliding window, so a run that exhausts the
budget stops cleanly and a later run picks up the remaining pages.

Credentials are stored securely via 'stravasync auth login', or supplied
through STRAVASYNC_* environment variables.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.stravasync.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "data directory for the local mirror (default ./data)")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "stored credential profile to use")
}

// loadConfig resolves configuration from flags, environment and file.
func loadConfig() (*config.Config, error) {
	flags := make(map[string]interface{})
	if dataDir != "" {
		flags["data-dir"] = dataDir
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}
	return config.Load(configFile, flags)
}

// buildRunner wires credentials, the API client and the runner together.
// Credential precedence: explicit access token, then client credentials
// from config or environment, then the stored profile.
func buildRunner(cfg *config.Config, log logger.Logger) (*fetcher.Runner, error) {
	tokens, err := resolveTokens(cfg, log)
	if err != nil {
		return nil, err
	}

	client := strava.New(&cfg.Strava, tokens, cfg.Fetch.MaxRetries, log)
	return fetcher.NewRunner(cfg, client, log), nil
}

func resolveTokens(cfg *config.Config, log logger.Logger) (strava.TokenSource, error) {
	if cfg.Strava.AccessToken != "" {
		return strava.StaticToken(cfg.Strava.AccessToken), nil
	}

	tokenURL := strava.TokenURL(cfg.Strava.BaseURL)

	if cfg.Strava.ClientID != "" && cfg.Strava.ClientSecret != "" && cfg.Strava.RefreshToken != "" {
		creds := &auth.Credentials{
			Profile:      auth.DefaultProfile,
			ClientID:     cfg.Strava.ClientID,
			ClientSecret: cfg.Strava.ClientSecret,
			RefreshToken: cfg.Strava.RefreshToken,
		}
		// Config-supplied credentials are not written back to any store.
		return auth.NewTokenSource(nil, creds, tokenURL, log), nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	var creds *auth.Credentials
	if profile != "" {
		creds, err = manager.Retrieve(profile)
	} else {
		creds, err = manager.RetrieveDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("no credentials available: %w (run 'stravasync auth login')", err)
	}

	return auth.NewTokenSource(manager, creds, tokenURL, log), nil
}
