package integration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stravasync/pkg/config"
	"stravasync/pkg/fetcher"
	"stravasync/pkg/logger"
	"stravasync/pkg/store"
	"stravasync/pkg/strava"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func integrationConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.DataDirectory = t.TempDir()
	cfg.Strava.BaseURL = baseURL
	cfg.Strava.AccessToken = "integration-token"
	cfg.Fetch.PageDelay = 0
	return cfg
}

func newIntegrationRunner(cfg *config.Config) *fetcher.Runner {
	client := strava.New(&cfg.Strava, strava.StaticToken(cfg.Strava.AccessToken), cfg.Fetch.MaxRetries, logger.Nop())
	return fetcher.NewRunner(cfg, client, logger.Nop())
}

func manyActivities(count int) []map[string]interface{} {
	activities := make([]map[string]interface{}, count)
	base := time.Date(2024, 8, 2, 6, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		// Newest first, like the real collection.
		start := base.Add(-time.Duration(i) * 24 * time.Hour)
		activities[i] = mockActivity(
			int64(count-i),
			fmt.Sprintf("Ride %d", count-i),
			"Ride",
			start.Format(time.RFC3339),
		)
	}
	return activities
}

func TestSyncMirrorsWholeCollection(t *testing.T) {
	server := NewMockStravaServer(manyActivities(75))
	defer server.Close()

	cfg := integrationConfig(t, server.URL())
	outcome, summary := newIntegrationRunner(cfg).Run()

	require.Equal(t, fetcher.OutcomeCompleted, outcome.Kind)
	assert.Equal(t, 75, summary.ItemsStored)
	assert.Equal(t, 4, summary.PagesProcessed, "two full pages, one partial, then the empty page")

	st, err := store.New(cfg.Storage.DataDirectory, cfg.Storage.NameMaxLength, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, st.LoadIndex())
	assert.Equal(t, 75, st.Len())

	// Spot-check a stored file: full payload plus the provenance block.
	entries := st.Entries()
	data, err := os.ReadFile(filepath.Join(st.ActivitiesDir(), entries[0].Filename))
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "kudos_count")
	assert.Contains(t, doc, "_fetch_metadata")
}

func TestSyncIsIncrementalAcrossRuns(t *testing.T) {
	server := NewMockStravaServer(manyActivities(40))
	defer server.Close()

	cfg := integrationConfig(t, server.URL())

	outcome, first := newIntegrationRunner(cfg).Run()
	require.Equal(t, fetcher.OutcomeCompleted, outcome.Kind)
	require.Equal(t, 40, first.ItemsStored)

	outcome, second := newIntegrationRunner(cfg).Run()
	require.Equal(t, fetcher.OutcomeCompleted, outcome.Kind)
	assert.Equal(t, 0, second.ItemsStored, "everything was already mirrored")
	assert.Equal(t, 40, second.ItemsSeen)
}

func TestSyncBlocksOn429AndRefusesRestart(t *testing.T) {
	server := NewMockStravaServer(manyActivities(200))
	defer server.Close()
	server.RejectAfter(2) // two pages, then 429

	cfg := integrationConfig(t, server.URL())

	outcome, summary := newIntegrationRunner(cfg).Run()
	require.Equal(t, fetcher.OutcomeBlocked, outcome.Kind)
	assert.Equal(t, 2, summary.PagesProcessed)
	assert.Equal(t, 60, summary.ItemsStored, "pages fetched before the 429 are kept")
	assert.False(t, outcome.NextAllowed.IsZero())

	requestsAfterFirstRun := server.Requests()

	// The cooldown is durable: the next run stops before any API call.
	outcome, _ = newIntegrationRunner(cfg).Run()
	require.Equal(t, fetcher.OutcomeBlocked, outcome.Kind)
	assert.Equal(t, requestsAfterFirstRun, server.Requests())

	// And the partial mirror survived.
	st, err := store.New(cfg.Storage.DataDirectory, cfg.Storage.NameMaxLength, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, st.LoadIndex())
	assert.Equal(t, 60, st.Len())
}

func TestStreamsBackfill(t *testing.T) {
	server := NewMockStravaServer(manyActivities(3))
	defer server.Close()
	for id := int64(1); id <= 2; id++ {
		server.SetStreams(id, map[string]interface{}{
			"time":      map[string]interface{}{"data": []int{0, 1, 2}, "series_type": "time", "resolution": "high"},
			"heartrate": map[string]interface{}{"data": []int{120, 125, 130}, "series_type": "time", "resolution": "high"},
		})
	}
	// Activity 3 has no streams: the server answers 404.

	cfg := integrationConfig(t, server.URL())
	cfg.Fetch.StreamTypes = []string{"time", "heartrate"}

	outcome, _ := newIntegrationRunner(cfg).Run()
	require.Equal(t, fetcher.OutcomeCompleted, outcome.Kind)

	streamOutcome, summary := newIntegrationRunner(cfg).RunStreams()
	require.Equal(t, fetcher.OutcomeCompleted, streamOutcome.Kind)
	assert.Equal(t, 4, summary.StreamsStored, "two types for each of two activities")
	assert.Equal(t, 1, summary.EmptyActivities)

	st, err := store.New(cfg.Storage.DataDirectory, cfg.Storage.NameMaxLength, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, st.LoadIndex())

	stored, err := st.StoredStreamTypes(1)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	none, err := st.StoredStreamTypes(3)
	require.NoError(t, err)
	assert.Empty(t, none)

	// A second backfill finds nothing missing for 1 and 2, retries 3.
	streamOutcome, second := newIntegrationRunner(cfg).RunStreams()
	require.Equal(t, fetcher.OutcomeCompleted, streamOutcome.Kind)
	assert.Equal(t, 0, second.StreamsStored)
	assert.Equal(t, 1, second.ActivitiesScanned)
}
