// Package retry provides a single retry-with-backoff helper, used for
// SOAP actions and the Device Manager's assignment backoff. Device
// description-XML fetches (internal/ssdp) make a single attempt and do
// not go through it.
// It replaces the several ad-hoc retry loops the original system had
// scattered across its SOAP client, CLI and worker threads.
package retry

import (
	"context"
	"time"
)

// Op is the operation to retry. A nil error means success.
type Op func(attempt int) error

// Do calls op up to attempts times (attempt 0 is the first try), sleeping
// backoff(attempt) between failures. It returns the last error if every
// attempt fails, or nil on the first success. It returns ctx.Err()
// immediately if the context is canceled, including between attempts.
func Do(ctx context.Context, attempts int, backoff func(attempt int) time.Duration, op Op) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		d := backoff(attempt)
		if d <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
	return lastErr
}

// FixedBackoff returns a backoff function that always waits d — the
// shape spec.md §4.2 uses for SOAP retries ("a 2s pause between
// attempts").
func FixedBackoff(d time.Duration) func(attempt int) time.Duration {
	return func(int) time.Duration { return d }
}

// ExponentialBackoff returns a backoff function computing
// base * 2^attempt, the shape spec.md §4.1 uses for assignment retries
// ("delay = 5s x 2^retry_count").
func ExponentialBackoff(base time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		return base * time.Duration(uint64(1)<<uint(attempt))
	}
}
