package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stravasync/pkg/store"
)

var (
	// List command flags
	listType  string
	listMatch string
	listSince string
	listUntil string
	listLimit int
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List activities in the local mirror",
	Long: `List activities from the local index, optionally filtered by type
and date range. Dates are given as YYYY-MM-DD; the range is inclusive
of --since and exclusive of --until.`,
	Example: `  # Most recent 20 activities
  stravasync list

  # All rides in July 2024
  stravasync list --type Ride --since 2024-07-01 --until 2024-08-01`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listType, "type", "t", "", "filter by activity type (Ride, Run, ...)")
	listCmd.Flags().StringVarP(&listMatch, "match", "m", "", "filter by name substring (case-insensitive)")
	listCmd.Flags().StringVar(&listSince, "since", "", "earliest start date (YYYY-MM-DD)")
	listCmd.Flags().StringVar(&listUntil, "until", "", "start date upper bound, exclusive (YYYY-MM-DD)")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum entries to print (0 for all)")
}

func runList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	entries, err := filterEntries(st)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No matching activities.")
		return nil
	}

	// Index order is newest first, same as the API returns pages.
	if listLimit > 0 && len(entries) > listLimit {
		entries = entries[:listLimit]
	}

	fmt.Printf("%-12s %-10s %-20s %10s %10s\n", "ID", "DATE", "TYPE", "DISTANCE", "MOVING")
	for _, e := range entries {
		fmt.Printf("%-12d %-10s %-20s %7.1f km %10s   %s\n",
			e.ID,
			e.Start().Format("2006-01-02"),
			e.Type,
			e.Distance/1000,
			formatDuration(e.MovingTime),
			e.Name)
	}
	return nil
}

func filterEntries(st *store.Store) ([]store.IndexEntry, error) {
	since, until, err := parseDateRange()
	if err != nil {
		return nil, err
	}

	var entries []store.IndexEntry
	switch {
	case !since.IsZero() || !until.IsZero():
		if since.IsZero() {
			since = time.Unix(0, 0).UTC()
		}
		if until.IsZero() {
			until = time.Now().UTC().AddDate(1, 0, 0)
		}
		entries = st.ByDateRange(since, until)
		if listType != "" {
			var filtered []store.IndexEntry
			for _, e := range entries {
				if strings.EqualFold(e.Type, listType) {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}
	case listType != "":
		entries = st.ByType(listType)
	default:
		entries = st.Entries()
	}

	if listMatch != "" {
		needle := strings.ToLower(listMatch)
		var filtered []store.IndexEntry
		for _, e := range entries {
			if strings.Contains(strings.ToLower(e.Name), needle) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	return entries, nil
}

func parseDateRange() (since, until time.Time, err error) {
	if listSince != "" {
		since, err = time.Parse("2006-01-02", listSince)
		if err != nil {
			return since, until, fmt.Errorf("invalid --since date: %w", err)
		}
	}
	if listUntil != "" {
		until, err = time.Parse("2006-01-02", listUntil)
		if err != nil {
			return since, until, fmt.Errorf("invalid --until date: %w", err)
		}
	}
	return since, until, nil
}
