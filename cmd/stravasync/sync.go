package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"stravasync/pkg/fetcher"
	"stravasync/pkg/logger"
)

var (
	// Sync command flags
	perPage     int
	pageDelayMS int
	maxRequests int
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch new activities into the local mirror",
	Long: `Fetch the athlete's activities page by page, newest first, storing
each activity not yet present as its own JSON file and appending it to
the activity index.

The run stops in one of three ways:
  - completed: an empty page was reached; the mirror is up to date
  - blocked:   the request budget for the current window is spent;
               rerun after the printed time to continue
  - failed:    a transport or storage error stopped the run

Blocked is a normal outcome, not an error: progress made before the
stop is already on disk and the next run resumes from it.`,
	Example: `  # Sync into ./data
  stravasync sync

  # Sync into a specific directory with a smaller request budget
  stravasync sync --data-dir ~/strava --max-requests 50`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().IntVar(&perPage, "per-page", 30, "activities per page request")
	syncCmd.Flags().IntVar(&pageDelayMS, "page-delay", 500, "delay between page fetches in milliseconds")
	syncCmd.Flags().IntVar(&maxRequests, "max-requests", 100, "request budget per window")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if perPage != 30 {
		cfg.Fetch.PerPage = perPage
	}
	if pageDelayMS != 500 {
		cfg.Fetch.PageDelay = time.Duration(pageDelayMS) * time.Millisecond
	}
	if maxRequests != 100 {
		cfg.RateLimit.MaxRequests = maxRequests
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	runner, err := buildRunner(cfg, log)
	if err != nil {
		return err
	}

	outcome, summary := runner.Run()
	printSyncSummary(outcome, summary)

	if outcome.Kind == fetcher.OutcomeFailed {
		os.Exit(1)
	}
	return nil
}

func printSyncSummary(outcome fetcher.Outcome, summary *fetcher.Summary) {
	fmt.Printf("Outcome:        %s\n", outcome)
	fmt.Printf("Pages fetched:  %d\n", summary.PagesProcessed)
	fmt.Printf("Activities:     %d seen, %d stored\n", summary.ItemsSeen, summary.ItemsStored)
	if summary.SaveErrors > 0 {
		fmt.Printf("Save errors:    %d\n", summary.SaveErrors)
	}
	if outcome.Kind == fetcher.OutcomeBlocked {
		fmt.Printf("Resume after:   %s (in %s)\n",
			outcome.NextAllowed.Local().Format(time.RFC1123),
			time.Until(outcome.NextAllowed).Round(time.Second))
	}
}
