package fetcher

import (
	"time"

	errs "stravasync/pkg/errors"
	"stravasync/pkg/logger"
	"stravasync/pkg/ratelimit"
	"stravasync/pkg/store"
	"stravasync/pkg/strava"
)

// ActivityAPI is the remote collection surface the collector consumes.
// *strava.Client implements it; tests substitute fakes.
type ActivityAPI interface {
	FetchActivitiesPage(page, perPage int) ([]strava.Activity, error)
	FetchActivityStreams(activityID int64, types []string) (strava.StreamSet, error)
}

// Collector walks the remote activity collection page by page, skipping
// activities already indexed and charging the budget tracker before every
// remote call. Pages are requested strictly in increasing order from 1;
// an empty page is the sole completion signal.
type Collector struct {
	api     ActivityAPI
	store   *store.Store
	tracker *ratelimit.Tracker
	logger  logger.Logger

	perPage    int
	pageDelay  time.Duration
	flushPages int

	sleep func(time.Duration)
}

// NewCollector creates a collector over the given store and budget tracker.
func NewCollector(api ActivityAPI, st *store.Store, tracker *ratelimit.Tracker, perPage int, pageDelay time.Duration, flushPages int, log logger.Logger) *Collector {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Collector{
		api:        api,
		store:      st,
		tracker:    tracker,
		logger:     log,
		perPage:    perPage,
		pageDelay:  pageDelay,
		flushPages: flushPages,
		sleep:      time.Sleep,
	}
}

// Run drives the collection until completion, budget exhaustion, or a
// fatal fetch error, recording progress into summary. Whatever was
// durably written before a stop remains valid; there is no rollback.
func (c *Collector) Run(summary *Summary) Outcome {
	page := 1

	for {
		if page > 1 && c.pageDelay > 0 {
			// Pacing between page fetches; not counted against the budget.
			c.sleep(c.pageDelay)
		}

		if blocked := c.consumeBudget(); blocked != nil {
			return *blocked
		}

		activities, err := c.api.FetchActivitiesPage(page, c.perPage)
		if err != nil {
			if errs.IsRateLimit(err) {
				return c.rejected()
			}
			c.logger.WithError(err).WithField("page", page).Error("page fetch failed")
			return Failed(err)
		}

		summary.PagesProcessed++

		if len(activities) == 0 {
			c.logger.InfoWithFields("collection exhausted", map[string]interface{}{
				"pages": summary.PagesProcessed,
			})
			return Completed()
		}

		c.processPage(page, activities, summary)

		if page%c.flushPages == 0 {
			if err := c.store.FlushIndex(); err != nil {
				c.logger.WithError(err).Warn("periodic index flush failed")
			}
		}

		page++
	}
}

// consumeBudget charges one budget unit, persisting the tracker state after
// every outcome. A non-nil result is the blocked outcome to return.
func (c *Collector) consumeBudget() *Outcome {
	allowed := c.tracker.TryConsume()
	if err := c.tracker.Persist(); err != nil {
		c.logger.WithError(err).Warn("failed to persist rate limit state")
	}

	if !allowed {
		next, _ := c.tracker.NextAllowed()
		c.logger.WarnWithFields("request budget exhausted", map[string]interface{}{
			"next_allowed": next,
			"wait":         time.Until(next).Round(time.Second),
		})
		outcome := Blocked(next)
		return &outcome
	}

	if c.tracker.NearExhaustion() {
		c.logger.WarnWithFields("request budget nearly exhausted", map[string]interface{}{
			"remaining": c.tracker.Remaining(),
		})
	}

	return nil
}

// rejected handles a remote 429: same cooldown path as local exhaustion.
func (c *Collector) rejected() Outcome {
	c.tracker.OnRejected()
	if err := c.tracker.Persist(); err != nil {
		c.logger.WithError(err).Warn("failed to persist rate limit state")
	}
	next, _ := c.tracker.NextAllowed()
	return Blocked(next)
}

// processPage stores new activities in page order. A failed save is counted
// and logged but never aborts the page; no index entry is appended for it.
func (c *Collector) processPage(page int, activities []strava.Activity, summary *Summary) {
	stored := 0

	for _, activity := range activities {
		summary.ItemsSeen++

		if c.store.Exists(activity.ID) {
			c.logger.DebugWithFields("skipping stored activity", map[string]interface{}{
				"activity_id": activity.ID,
			})
			continue
		}

		result := c.store.Put(activity)
		if !result.OK {
			summary.SaveErrors++
			c.logger.WithError(result.Err).WithFields(map[string]interface{}{
				"activity_id": activity.ID,
				"filename":    result.Filename,
			}).Error("failed to save activity")
			continue
		}

		c.store.Append(activity, result.Filename)
		summary.ItemsStored++
		summary.TypeCounts[activity.Type]++
		stored++
	}

	c.logger.InfoWithFields("page processed", map[string]interface{}{
		"page":    page,
		"items":   len(activities),
		"stored":  stored,
		"skipped": len(activities) - stored,
	})
}
