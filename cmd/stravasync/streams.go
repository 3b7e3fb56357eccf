package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stravasync/pkg/fetcher"
	"stravasync/pkg/logger"
)

var streamTypesFlag string

// streamsCmd represents the streams command
var streamsCmd = &cobra.Command{
	Use:   "streams",
	Short: "Backfill time-series streams for stored activities",
	Long: `Fetch per-activity time-series streams (time, distance, heartrate,
altitude and so on) for activities already in the local mirror.

Each indexed activity is checked against the stream files already on
disk; only missing stream types are requested, one API call per
activity. Requests draw from the same budget as 'sync', so a blocked
outcome here also delays the next sync.`,
	Example: `  # Backfill the default stream types
  stravasync streams

  # Only heart rate and power
  stravasync streams --types heartrate,watts`,
	RunE: runStreams,
}

func init() {
	rootCmd.AddCommand(streamsCmd)

	streamsCmd.Flags().StringVar(&streamTypesFlag, "types", "", "comma-separated stream types to fetch (default from config)")
}

func runStreams(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if streamTypesFlag != "" {
		var types []string
		for _, t := range strings.Split(streamTypesFlag, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
		cfg.Fetch.StreamTypes = types
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	runner, err := buildRunner(cfg, log)
	if err != nil {
		return err
	}

	outcome, summary := runner.RunStreams()
	printStreamSummary(outcome, summary)

	if outcome.Kind == fetcher.OutcomeFailed {
		os.Exit(1)
	}
	return nil
}

func printStreamSummary(outcome fetcher.Outcome, summary *fetcher.StreamSummary) {
	fmt.Printf("Outcome:         %s\n", outcome)
	fmt.Printf("Activities:      %d needing streams, %d without any\n", summary.ActivitiesScanned, summary.EmptyActivities)
	fmt.Printf("Streams stored:  %d (%d requests)\n", summary.StreamsStored, summary.RequestsMade)
	if summary.SaveErrors > 0 {
		fmt.Printf("Save errors:     %d\n", summary.SaveErrors)
	}
	if outcome.Kind == fetcher.OutcomeBlocked {
		fmt.Printf("Resume after:    %s (in %s)\n",
			outcome.NextAllowed.Local().Format(time.RFC1123),
			time.Until(outcome.NextAllowed).Round(time.Second))
	}
}
