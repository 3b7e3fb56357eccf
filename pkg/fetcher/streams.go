package fetcher

import (
	"errors"
	"time"

	errs "stravasync/pkg/errors"
	"stravasync/pkg/logger"
	"stravasync/pkg/ratelimit"
	"stravasync/pkg/store"
)

// Augmenter backfills time-series streams for activities already in the
// store. For each indexed activity it derives the stream types already on
// disk from filenames, fetches only the missing ones, and charges the same
// budget tracker as the collector.
type Augmenter struct {
	api     ActivityAPI
	store   *store.Store
	tracker *ratelimit.Tracker
	logger  logger.Logger

	streamTypes []string
	pause       time.Duration

	sleep func(time.Duration)
}

// NewAugmenter creates an augmenter requesting the given stream types.
func NewAugmenter(api ActivityAPI, st *store.Store, tracker *ratelimit.Tracker, streamTypes []string, pause time.Duration, log logger.Logger) *Augmenter {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Augmenter{
		api:         api,
		store:       st,
		tracker:     tracker,
		logger:      log,
		streamTypes: streamTypes,
		pause:       pause,
		sleep:       time.Sleep,
	}
}

// Run walks the index and fetches missing streams until done or blocked.
func (a *Augmenter) Run(summary *StreamSummary) Outcome {
	requested := 0

	for _, entry := range a.store.Entries() {
		stored, err := a.store.StoredStreamTypes(entry.ID)
		if err != nil {
			return Failed(err)
		}

		missing := a.missingTypes(stored)
		if len(missing) == 0 {
			continue
		}

		summary.ActivitiesScanned++

		if requested > 0 && a.pause > 0 {
			a.sleep(a.pause)
		}

		allowed := a.tracker.TryConsume()
		if err := a.tracker.Persist(); err != nil {
			a.logger.WithError(err).Warn("failed to persist rate limit state")
		}
		if !allowed {
			next, _ := a.tracker.NextAllowed()
			a.logger.WarnWithFields("request budget exhausted", map[string]interface{}{
				"next_allowed": next,
			})
			return Blocked(next)
		}
		if a.tracker.NearExhaustion() {
			a.logger.WarnWithFields("request budget nearly exhausted", map[string]interface{}{
				"remaining": a.tracker.Remaining(),
			})
		}

		requested++
		summary.RequestsMade++

		streams, err := a.api.FetchActivityStreams(entry.ID, missing)
		if err != nil {
			if errs.IsRateLimit(err) {
				a.tracker.OnRejected()
				if perr := a.tracker.Persist(); perr != nil {
					a.logger.WithError(perr).Warn("failed to persist rate limit state")
				}
				next, _ := a.tracker.NextAllowed()
				return Blocked(next)
			}
			if isNotFound(err) {
				// The remote has no streams for this activity. Not an error.
				summary.EmptyActivities++
				a.logger.InfoWithFields("no streams available", map[string]interface{}{
					"activity_id": entry.ID,
				})
				continue
			}
			return Failed(err)
		}

		if len(streams) == 0 {
			summary.EmptyActivities++
			a.logger.InfoWithFields("no streams returned", map[string]interface{}{
				"activity_id": entry.ID,
			})
			continue
		}

		wanted := make(map[string]struct{}, len(missing))
		for _, t := range missing {
			wanted[t] = struct{}{}
		}

		for streamType, stream := range streams {
			if _, ok := wanted[streamType]; !ok {
				continue
			}
			if err := a.store.PutStream(entry, streamType, stream); err != nil {
				summary.SaveErrors++
				a.logger.WithError(err).WithFields(map[string]interface{}{
					"activity_id": entry.ID,
					"stream_type": streamType,
				}).Error("failed to save stream")
				continue
			}
			summary.StreamsStored++
		}
	}

	return Completed()
}

// missingTypes returns the requested stream types not yet stored, in the
// requested order.
func (a *Augmenter) missingTypes(stored map[string]struct{}) []string {
	var missing []string
	for _, t := range a.streamTypes {
		if _, ok := stored[t]; !ok {
			missing = append(missing, t)
		}
	}
	return missing
}

func isNotFound(err error) bool {
	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		return apiErr.Type == errs.ErrorTypeNotFound
	}
	return false
}
