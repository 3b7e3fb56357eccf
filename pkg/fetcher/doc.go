// Package fetcher drives the incremental sync against the Strava API.
//
// The Collector walks the activity list page by page, newest first,
// skipping activities already in the store and charging the request
// budget before every remote call. An empty page is the only completion
// signal; there is no total count to compare against.
//
// Every run ends in exactly one of three outcomes:
//
//   - Completed: the collection was fully enumerated.
//   - Blocked: the request budget ran out, locally or via a 429. The run
//     stopped voluntarily and a later run resumes from the durable state.
//     This is a normal outcome, not an error.
//   - Failed: a transport or storage error stopped the run. Progress
//     already written stays valid; nothing is rolled back.
//
// The Augmenter follows the same pattern for per-activity time-series
// streams, fetching only the types not yet on disk.
//
// The Runner owns a whole invocation: it creates the store and tracker,
// takes the run lock, refuses to start under a persisted cooldown, and
// guarantees the index flush, tracker persist and summary write happen on
// every terminal path.
package fetcher
