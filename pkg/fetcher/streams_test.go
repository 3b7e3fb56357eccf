package fetcher

import (
	"encoding/json"
	"testing"
	"time"

	errs "stravasync/pkg/errors"
	"stravasync/pkg/logger"
	"stravasync/pkg/ratelimit"
	"stravasync/pkg/store"
	"stravasync/pkg/strava"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAugmenter(api *fakeAPI, st *store.Store, tracker *ratelimit.Tracker, types []string) *Augmenter {
	a := NewAugmenter(api, st, tracker, types, 0, logger.Nop())
	a.sleep = func(time.Duration) {}
	return a
}

func fullStreamSet() strava.StreamSet {
	return strava.StreamSet{
		"time":      {Data: json.RawMessage(`[0,1,2]`), SeriesType: "time", Resolution: "high"},
		"heartrate": {Data: json.RawMessage(`[120,121,125]`), SeriesType: "time", Resolution: "high"},
	}
}

func TestAugmenterFetchesOnlyMissingTypes(t *testing.T) {
	st, tracker := newFixture(t, 100)

	activities := makeActivities(1, 2)
	preStore(t, st, activities)

	entries := st.Entries()
	// Activity 1 already has its time stream on disk.
	require.NoError(t, st.PutStream(entries[0], "time", fullStreamSet()["time"]))

	api := &fakeAPI{streams: map[int64]strava.StreamSet{
		1: fullStreamSet(),
		2: fullStreamSet(),
	}}
	augmenter := newTestAugmenter(api, st, tracker, []string{"time", "heartrate"})

	summary := NewStreamSummary()
	outcome := augmenter.Run(summary)

	assert.Equal(t, OutcomeCompleted, outcome.Kind)
	assert.Equal(t, 2, summary.ActivitiesScanned)
	assert.Equal(t, 2, summary.RequestsMade, "one call per activity with missing streams")
	// Activity 1 stores only heartrate; activity 2 stores both.
	assert.Equal(t, 3, summary.StreamsStored)
	assert.Equal(t, 0, summary.SaveErrors)

	for _, id := range []int64{1, 2} {
		stored, err := st.StoredStreamTypes(id)
		require.NoError(t, err)
		assert.Contains(t, stored, "time")
		assert.Contains(t, stored, "heartrate")
	}
}

func TestAugmenterSkipsFullyStoredActivities(t *testing.T) {
	st, tracker := newFixture(t, 100)

	preStore(t, st, makeActivities(1, 2))
	for _, entry := range st.Entries() {
		require.NoError(t, st.PutStream(entry, "time", fullStreamSet()["time"]))
		require.NoError(t, st.PutStream(entry, "heartrate", fullStreamSet()["heartrate"]))
	}

	api := &fakeAPI{}
	augmenter := newTestAugmenter(api, st, tracker, []string{"time", "heartrate"})

	summary := NewStreamSummary()
	outcome := augmenter.Run(summary)

	assert.Equal(t, OutcomeCompleted, outcome.Kind)
	assert.Equal(t, 0, summary.RequestsMade)
	assert.Equal(t, 0, api.streamCalls)
	assert.Equal(t, 0, tracker.Count(), "no budget spent when nothing is missing")
}

func TestAugmenterToleratesActivitiesWithoutStreams(t *testing.T) {
	st, tracker := newFixture(t, 100)
	preStore(t, st, makeActivities(1, 2))

	api := &fakeAPI{
		streamErr: map[int64]error{
			1: &errs.Error{Type: errs.ErrorTypeNotFound, Message: "resource not found", Code: 404},
		},
		streams: map[int64]strava.StreamSet{
			2: {}, // present but empty
		},
	}
	augmenter := newTestAugmenter(api, st, tracker, []string{"time"})

	summary := NewStreamSummary()
	outcome := augmenter.Run(summary)

	assert.Equal(t, OutcomeCompleted, outcome.Kind, "missing streams are a skip, not a failure")
	assert.Equal(t, 2, summary.EmptyActivities)
	assert.Equal(t, 0, summary.StreamsStored)
}

func TestAugmenterBlockedWhenBudgetExhausted(t *testing.T) {
	st, tracker := newFixture(t, 1)
	preStore(t, st, makeActivities(1, 2))

	api := &fakeAPI{streams: map[int64]strava.StreamSet{
		1: fullStreamSet(),
		2: fullStreamSet(),
	}}
	augmenter := newTestAugmenter(api, st, tracker, []string{"time"})

	summary := NewStreamSummary()
	outcome := augmenter.Run(summary)

	assert.Equal(t, OutcomeBlocked, outcome.Kind)
	assert.Equal(t, 1, summary.RequestsMade)
	assert.False(t, outcome.NextAllowed.IsZero())

	stored, err := st.StoredStreamTypes(1)
	require.NoError(t, err)
	assert.Contains(t, stored, "time", "progress before the stop is durable")
}

func TestAugmenterRemoteRateLimit(t *testing.T) {
	st, tracker := newFixture(t, 100)
	preStore(t, st, makeActivities(1, 1))

	api := &fakeAPI{
		streamErr: map[int64]error{
			1: &errs.Error{Type: errs.ErrorTypeRateLimit, Message: "rate limit exceeded", Code: 429},
		},
	}
	augmenter := newTestAugmenter(api, st, tracker, []string{"time"})

	summary := NewStreamSummary()
	outcome := augmenter.Run(summary)

	assert.Equal(t, OutcomeBlocked, outcome.Kind)
	blocked, _ := tracker.Blocked()
	assert.True(t, blocked)
}

func TestAugmenterStoresOnlyRequestedTypes(t *testing.T) {
	st, tracker := newFixture(t, 100)
	preStore(t, st, makeActivities(1, 1))

	// The server returns more types than asked for.
	set := fullStreamSet()
	set["watts"] = strava.Stream{Data: json.RawMessage(`[200]`), SeriesType: "time"}
	api := &fakeAPI{streams: map[int64]strava.StreamSet{1: set}}

	augmenter := newTestAugmenter(api, st, tracker, []string{"time"})

	summary := NewStreamSummary()
	require.Equal(t, OutcomeCompleted, augmenter.Run(summary).Kind)

	stored, err := st.StoredStreamTypes(1)
	require.NoError(t, err)
	assert.Contains(t, stored, "time")
	assert.NotContains(t, stored, "watts")
	assert.NotContains(t, stored, "heartrate")
	assert.Equal(t, 1, summary.StreamsStored)
}
