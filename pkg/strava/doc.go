// Package strava implements the HTTP client for the Strava v3 API.
//
// The client covers the two read endpoints the mirror needs: the
// paginated athlete activity list and per-activity streams. Responses
// are decoded into Activity values that keep every field the server
// sent; fields the mirror does not interpret ride along as raw JSON and
// are written back out unchanged.
//
// Transient network and 5xx failures are retried with exponential
// backoff. A 429 is never retried here: the rate budget tracker owns
// that case and the error is surfaced immediately as a typed rate limit
// error.
package strava
