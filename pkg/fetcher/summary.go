package fetcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Summary is the observational record of one sync invocation. It is written
// once at run end and never read back by the core.
type Summary struct {
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	Outcome        string         `json:"outcome"`
	PagesProcessed int            `json:"pages_processed"`
	ItemsSeen      int            `json:"items_seen"`
	ItemsStored    int            `json:"items_stored"`
	SaveErrors     int            `json:"save_errors"`
	TypeCounts     map[string]int `json:"type_counts"`
	NextAllowed    *time.Time     `json:"next_allowed,omitempty"`
}

// NewSummary returns a summary stamped with the current start time.
func NewSummary() *Summary {
	return &Summary{
		StartedAt:  time.Now().UTC(),
		TypeCounts: make(map[string]int),
	}
}

// Finish stamps the end time and the run outcome.
func (s *Summary) Finish(outcome Outcome) {
	s.FinishedAt = time.Now().UTC()
	s.Outcome = string(outcome.Kind)
	if outcome.Kind == OutcomeBlocked {
		next := outcome.NextAllowed.UTC()
		s.NextAllowed = &next
	}
}

// Write persists the summary as a standalone JSON document in dir.
func (s *Summary) Write(dir string) (string, error) {
	name := fmt.Sprintf("run_summary_%s.json", s.StartedAt.Format("20060102T150405Z"))
	return writeSummary(filepath.Join(dir, name), s)
}

// StreamSummary is the observational record of one stream augmentation run.
type StreamSummary struct {
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        time.Time  `json:"finished_at"`
	Outcome           string     `json:"outcome"`
	ActivitiesScanned int        `json:"activities_scanned"`
	RequestsMade      int        `json:"requests_made"`
	StreamsStored     int        `json:"streams_stored"`
	EmptyActivities   int        `json:"empty_activities"`
	SaveErrors        int        `json:"save_errors"`
	NextAllowed       *time.Time `json:"next_allowed,omitempty"`
}

// NewStreamSummary returns a stream summary stamped with the current start time.
func NewStreamSummary() *StreamSummary {
	return &StreamSummary{StartedAt: time.Now().UTC()}
}

// Finish stamps the end time and the run outcome.
func (s *StreamSummary) Finish(outcome Outcome) {
	s.FinishedAt = time.Now().UTC()
	s.Outcome = string(outcome.Kind)
	if outcome.Kind == OutcomeBlocked {
		next := outcome.NextAllowed.UTC()
		s.NextAllowed = &next
	}
}

// Write persists the summary as a standalone JSON document in dir.
func (s *StreamSummary) Write(dir string) (string, error) {
	name := fmt.Sprintf("streams_summary_%s.json", s.StartedAt.Format("20060102T150405Z"))
	return writeSummary(filepath.Join(dir, name), s)
}

func writeSummary(path string, v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode run summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write run summary: %w", err)
	}
	return path, nil
}
