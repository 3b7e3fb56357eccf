package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"stravasync/pkg/logger"
	"stravasync/pkg/store"
)

var statsJSON bool

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show totals for the local mirror",
	Long: `Summarize the local mirror without touching the API: activity counts,
distance and moving time, broken down by activity type.

Works entirely from the activity index, so it is safe to run while
another sync is blocked on the request budget.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "emit the per-type totals as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	if st.Len() == 0 {
		fmt.Println("No activities stored yet. Run 'stravasync sync' first.")
		return nil
	}

	counts := st.TypeCounts()

	if statsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(counts)
	}

	var totalCount int
	var totalDistance float64
	var totalMoving int64
	for _, tc := range counts {
		totalCount += tc.Count
		totalDistance += tc.Distance
		totalMoving += tc.MovingTime
	}

	fmt.Printf("Activities: %d\n", totalCount)
	fmt.Printf("Distance:   %.1f km\n", totalDistance/1000)
	fmt.Printf("Moving:     %s\n", formatDuration(totalMoving))
	fmt.Println()

	fmt.Printf("%-20s %8s %12s %12s\n", "TYPE", "COUNT", "DISTANCE", "MOVING")
	for _, tc := range counts {
		fmt.Printf("%-20s %8d %9.1f km %12s\n",
			tc.Type, tc.Count, tc.Distance/1000, formatDuration(tc.MovingTime))
	}
	return nil
}

// openStore opens the mirror read-only: index loaded, no run lock taken.
func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	st, err := store.New(cfg.Storage.DataDirectory, cfg.Storage.NameMaxLength, logger.Nop())
	if err != nil {
		return nil, err
	}
	if err := st.LoadIndex(); err != nil {
		return nil, err
	}
	return st, nil
}

func formatDuration(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%02dm", h, m)
}
