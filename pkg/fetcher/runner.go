package fetcher

import (
	"path/filepath"
	"time"

	"stravasync/pkg/config"
	"stravasync/pkg/logger"
	"stravasync/pkg/ratelimit"
	"stravasync/pkg/store"
)

const rateLimitStateFileName = "rate_limit_state.json"

// Runner orchestrates a single invocation: directories and state are
// initialized, the collector (or augmenter) is driven to its outcome, and
// all state is persisted before control returns. The runner owns the single
// tracker and store instances for the run's duration and holds an exclusive
// filesystem lock so concurrent runs cannot race on the shared counter.
type Runner struct {
	cfg    *config.Config
	api    ActivityAPI
	logger logger.Logger
}

// NewRunner creates a runner for one storage directory.
func NewRunner(cfg *config.Config, api ActivityAPI, log logger.Logger) *Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Runner{cfg: cfg, api: api, logger: log}
}

// Run executes one activity sync invocation and returns its typed outcome
// plus the written summary. The summary is written on every terminal path.
func (r *Runner) Run() (Outcome, *Summary) {
	summary := NewSummary()

	st, tracker, outcome := r.setup()
	if outcome != nil {
		summary.Finish(*outcome)
		return *outcome, summary
	}
	defer tracker.Unlock()

	if blocked, next := tracker.Blocked(); blocked {
		r.logger.WarnWithFields("run blocked by persisted cooldown", map[string]interface{}{
			"next_allowed": next,
			"wait":         time.Until(next).Round(time.Second),
		})
		// The index was never loaded; flushing here would clobber it.
		result := Blocked(next)
		if err := tracker.Persist(); err != nil {
			r.logger.WithError(err).Warn("failed to persist rate limit state")
		}
		summary.Finish(result)
		if _, err := summary.Write(st.MetadataDir()); err != nil {
			r.logger.WithError(err).Warn("failed to write run summary")
		}
		return result, summary
	}

	if err := st.LoadIndex(); err != nil {
		result := Failed(err)
		summary.Finish(result)
		return result, summary
	}

	collector := NewCollector(
		r.api, st, tracker,
		r.cfg.Fetch.PerPage, r.cfg.Fetch.PageDelay, r.cfg.Fetch.FlushPages,
		r.logger,
	)

	result := collector.Run(summary)
	return r.finish(result, summary, st, tracker)
}

// RunStreams executes one stream augmentation invocation.
func (r *Runner) RunStreams() (Outcome, *StreamSummary) {
	summary := NewStreamSummary()

	st, tracker, outcome := r.setup()
	if outcome != nil {
		summary.Finish(*outcome)
		return *outcome, summary
	}
	defer tracker.Unlock()

	if blocked, next := tracker.Blocked(); blocked {
		r.logger.WarnWithFields("run blocked by persisted cooldown", map[string]interface{}{
			"next_allowed": next,
			"wait":         time.Until(next).Round(time.Second),
		})
		result := Blocked(next)
		if err := tracker.Persist(); err != nil {
			r.logger.WithError(err).Warn("failed to persist rate limit state")
		}
		summary.Finish(result)
		if _, err := summary.Write(st.MetadataDir()); err != nil {
			r.logger.WithError(err).Warn("failed to write run summary")
		}
		return result, summary
	}

	if err := st.LoadIndex(); err != nil {
		result := Failed(err)
		summary.Finish(result)
		return result, summary
	}

	augmenter := NewAugmenter(
		r.api, st, tracker,
		r.cfg.Fetch.StreamTypes, r.cfg.Fetch.PageDelay,
		r.logger,
	)

	result := augmenter.Run(summary)

	if err := tracker.Persist(); err != nil {
		r.logger.WithError(err).Warn("failed to persist rate limit state")
	}

	summary.Finish(result)
	if _, err := summary.Write(st.MetadataDir()); err != nil {
		r.logger.WithError(err).Warn("failed to write run summary")
	}

	return result, summary
}

// setup creates the store and the locked, loaded tracker. A non-nil outcome
// is the failure to report.
func (r *Runner) setup() (*store.Store, *ratelimit.Tracker, *Outcome) {
	st, err := store.New(r.cfg.Storage.DataDirectory, r.cfg.Storage.NameMaxLength, r.logger)
	if err != nil {
		outcome := Failed(err)
		return nil, nil, &outcome
	}

	tracker := ratelimit.NewTracker(
		filepath.Join(st.MetadataDir(), rateLimitStateFileName),
		&r.cfg.RateLimit,
		r.logger,
	)

	if err := tracker.Lock(); err != nil {
		outcome := Failed(err)
		return nil, nil, &outcome
	}

	if err := tracker.Load(); err != nil {
		tracker.Unlock()
		outcome := Failed(err)
		return nil, nil, &outcome
	}

	return st, tracker, nil
}

// finish flushes the index, persists the tracker and writes the summary.
// Runs on every terminal path of the collector.
func (r *Runner) finish(result Outcome, summary *Summary, st *store.Store, tracker *ratelimit.Tracker) (Outcome, *Summary) {
	if err := st.FlushIndex(); err != nil {
		r.logger.WithError(err).Error("final index flush failed")
		if result.Kind == OutcomeCompleted {
			result = Failed(err)
		}
	}

	if err := tracker.Persist(); err != nil {
		r.logger.WithError(err).Warn("failed to persist rate limit state")
	}

	summary.Finish(result)
	if _, err := summary.Write(st.MetadataDir()); err != nil {
		r.logger.WithError(err).Warn("failed to write run summary")
	}

	r.logger.InfoWithFields("run finished", map[string]interface{}{
		"outcome":      string(result.Kind),
		"pages":        summary.PagesProcessed,
		"items_seen":   summary.ItemsSeen,
		"items_stored": summary.ItemsStored,
		"save_errors":  summary.SaveErrors,
	})

	return result, summary
}
