package fetcher

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stravasync/pkg/config"
	errs "stravasync/pkg/errors"
	"stravasync/pkg/logger"
	"stravasync/pkg/ratelimit"
	"stravasync/pkg/store"
	"stravasync/pkg/strava"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is an in-memory ActivityAPI. Pages beyond the configured ones
// are empty, which is the real API's end-of-collection signal.
type fakeAPI struct {
	pages     [][]strava.Activity
	pageErr   map[int]error
	streams   map[int64]strava.StreamSet
	streamErr map[int64]error

	pageCalls   int
	streamCalls int
}

func (f *fakeAPI) FetchActivitiesPage(page, perPage int) ([]strava.Activity, error) {
	f.pageCalls++
	if err, ok := f.pageErr[page]; ok {
		return nil, err
	}
	if page <= len(f.pages) {
		return f.pages[page-1], nil
	}
	return nil, nil
}

func (f *fakeAPI) FetchActivityStreams(activityID int64, types []string) (strava.StreamSet, error) {
	f.streamCalls++
	if err, ok := f.streamErr[activityID]; ok {
		return nil, err
	}
	return f.streams[activityID], nil
}

func makeActivities(firstID int64, count int) []strava.Activity {
	activities := make([]strava.Activity, count)
	for i := range activities {
		activities[i] = strava.Activity{
			ID:         firstID + int64(i),
			Name:       fmt.Sprintf("Activity %d", firstID+int64(i)),
			Type:       "Ride",
			SportType:  "Ride",
			StartDate:  time.Date(2024, 8, 2, 6, 0, 0, 0, time.UTC).Add(-time.Duration(i) * time.Hour),
			Distance:   10000,
			MovingTime: 1800,
		}
	}
	return activities
}

func newFixture(t *testing.T, maxRequests int) (*store.Store, *ratelimit.Tracker) {
	t.Helper()

	st, err := store.New(t.TempDir(), 60, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, st.LoadIndex())

	cfg := &config.RateLimitConfig{
		MaxRequests:   maxRequests,
		Window:        15 * time.Minute,
		WarningMargin: 5,
	}
	tracker := ratelimit.NewTracker(
		filepath.Join(st.MetadataDir(), "rate_limit_state.json"), cfg, logger.Nop())
	require.NoError(t, tracker.Load())

	return st, tracker
}

func newTestCollector(api *fakeAPI, st *store.Store, tracker *ratelimit.Tracker) *Collector {
	c := NewCollector(api, st, tracker, 30, 0, 5, logger.Nop())
	c.sleep = func(time.Duration) {}
	return c
}

func preStore(t *testing.T, st *store.Store, activities []strava.Activity) {
	t.Helper()
	for _, a := range activities {
		result := st.Put(a)
		require.True(t, result.OK, "pre-store Put failed: %v", result.Err)
		st.Append(a, result.Filename)
	}
}

func TestCollectorStoresNewActivities(t *testing.T) {
	st, tracker := newFixture(t, 100)

	page1 := makeActivities(1, 30)
	preStore(t, st, page1[:5]) // a previous run already stored five

	api := &fakeAPI{pages: [][]strava.Activity{page1}}
	collector := newTestCollector(api, st, tracker)

	summary := NewSummary()
	outcome := collector.Run(summary)

	assert.Equal(t, OutcomeCompleted, outcome.Kind)
	assert.Equal(t, 2, summary.PagesProcessed, "content page plus the empty page")
	assert.Equal(t, 30, summary.ItemsSeen)
	assert.Equal(t, 25, summary.ItemsStored)
	assert.Equal(t, 0, summary.SaveErrors)
	assert.Equal(t, 25, summary.TypeCounts["Ride"])
	assert.Equal(t, 2, api.pageCalls)
	assert.Equal(t, 2, tracker.Count(), "one budget unit per page fetch")
	assert.Equal(t, 30, st.Len())
}

func TestCollectorSecondRunFindsNothingNew(t *testing.T) {
	st, tracker := newFixture(t, 100)

	page1 := makeActivities(1, 30)
	api := &fakeAPI{pages: [][]strava.Activity{page1}}

	first := NewSummary()
	require.Equal(t, OutcomeCompleted, newTestCollector(api, st, tracker).Run(first).Kind)
	require.Equal(t, 30, first.ItemsStored)

	second := NewSummary()
	outcome := newTestCollector(api, st, tracker).Run(second)

	assert.Equal(t, OutcomeCompleted, outcome.Kind)
	assert.Equal(t, 30, second.ItemsSeen)
	assert.Equal(t, 0, second.ItemsStored)
	assert.Equal(t, 30, st.Len())
}

func TestCollectorBlockedWhenBudgetExhausted(t *testing.T) {
	st, tracker := newFixture(t, 1)

	api := &fakeAPI{pages: [][]strava.Activity{makeActivities(1, 30)}}
	collector := newTestCollector(api, st, tracker)

	summary := NewSummary()
	outcome := collector.Run(summary)

	assert.Equal(t, OutcomeBlocked, outcome.Kind)
	assert.False(t, outcome.NextAllowed.IsZero())
	assert.Equal(t, 1, summary.PagesProcessed, "page one landed before the budget ran out")
	assert.Equal(t, 30, summary.ItemsStored, "everything fetched before the stop is kept")
	assert.Equal(t, 1, api.pageCalls)

	// The cooldown is durable: a fresh tracker sees it.
	restarted := ratelimit.NewTracker(
		filepath.Join(st.MetadataDir(), "rate_limit_state.json"),
		&config.RateLimitConfig{MaxRequests: 1, Window: 15 * time.Minute, WarningMargin: 5},
		logger.Nop())
	require.NoError(t, restarted.Load())
	blocked, next := restarted.Blocked()
	assert.True(t, blocked)
	assert.Equal(t, outcome.NextAllowed.UnixMilli(), next.UnixMilli())
}

func TestCollectorRemoteRateLimit(t *testing.T) {
	st, tracker := newFixture(t, 100)

	api := &fakeAPI{
		pageErr: map[int]error{
			1: &errs.Error{Type: errs.ErrorTypeRateLimit, Message: "rate limit exceeded", Code: 429},
		},
	}
	collector := newTestCollector(api, st, tracker)

	summary := NewSummary()
	outcome := collector.Run(summary)

	assert.Equal(t, OutcomeBlocked, outcome.Kind)
	assert.False(t, outcome.NextAllowed.IsZero())
	assert.Equal(t, 0, summary.PagesProcessed)
	assert.Equal(t, 0, st.Len())

	blocked, _ := tracker.Blocked()
	assert.True(t, blocked, "a 429 forces the local cooldown")
}

func TestCollectorFetchFailure(t *testing.T) {
	st, tracker := newFixture(t, 100)

	api := &fakeAPI{
		pages: [][]strava.Activity{makeActivities(1, 30)},
		pageErr: map[int]error{
			2: &errs.Error{Type: errs.ErrorTypeNetwork, Message: "connection reset", Code: 0},
		},
	}
	collector := newTestCollector(api, st, tracker)

	summary := NewSummary()
	outcome := collector.Run(summary)

	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.Error(t, outcome.Err)
	assert.Equal(t, 30, st.Len(), "page one progress is kept, no rollback")
	assert.Equal(t, 30, summary.ItemsStored)
}

func TestCollectorSaveErrorContinuesPage(t *testing.T) {
	st, tracker := newFixture(t, 100)

	activities := makeActivities(1, 3)
	// Occupy activity 2's target filename with a directory so the write fails.
	blocked := store.ActivityFilename(activities[1].ID, activities[1].StartDate, activities[1].Name, 60)
	require.NoError(t, os.Mkdir(filepath.Join(st.ActivitiesDir(), blocked), 0755))

	api := &fakeAPI{pages: [][]strava.Activity{activities}}
	collector := newTestCollector(api, st, tracker)

	summary := NewSummary()
	outcome := collector.Run(summary)

	assert.Equal(t, OutcomeCompleted, outcome.Kind, "a save failure does not abort the run")
	assert.Equal(t, 3, summary.ItemsSeen)
	assert.Equal(t, 2, summary.ItemsStored)
	assert.Equal(t, 1, summary.SaveErrors)

	assert.True(t, st.Exists(1))
	assert.False(t, st.Exists(2), "failed save must not be indexed")
	assert.True(t, st.Exists(3))
}

func TestCollectorPeriodicFlush(t *testing.T) {
	st, tracker := newFixture(t, 100)

	api := &fakeAPI{pages: [][]strava.Activity{makeActivities(1, 30)}}
	collector := NewCollector(api, st, tracker, 30, 0, 1, logger.Nop())
	collector.sleep = func(time.Duration) {}

	summary := NewSummary()
	require.Equal(t, OutcomeCompleted, collector.Run(summary).Kind)

	// flushPages=1 means page one was flushed during the run, without
	// waiting for the runner's final flush.
	reloaded, err := store.New(filepath.Dir(st.MetadataDir()), 60, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, reloaded.LoadIndex())
	assert.Equal(t, 30, reloaded.Len())
}

func TestCollectorPacesBetweenPages(t *testing.T) {
	st, tracker := newFixture(t, 100)

	api := &fakeAPI{pages: [][]strava.Activity{makeActivities(1, 30), makeActivities(31, 30)}}
	collector := NewCollector(api, st, tracker, 30, 500*time.Millisecond, 5, logger.Nop())

	var sleeps []time.Duration
	collector.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	summary := NewSummary()
	require.Equal(t, OutcomeCompleted, collector.Run(summary).Kind)

	// No delay before page one; one before each subsequent fetch.
	require.Len(t, sleeps, 2)
	assert.Equal(t, 500*time.Millisecond, sleeps[0])
}
