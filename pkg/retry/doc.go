// Package retry provides retry logic with configurable backoff strategies.
//
// Transient failures (network errors, 5xx responses) are retried with
// exponential backoff and jitter. Rate limit rejections are deliberately
// not retryable: the budget tracker decides when requests may resume,
// and retrying a 429 would only burn more budget.
//
// Usage:
//
//	retrier := retry.NewRetrier(retry.DefaultConfig(log))
//	err := retrier.Do(func() error {
//	    return client.fetch(url)
//	})
package retry
