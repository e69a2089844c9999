// Package retry provides the shared exponential-backoff helpers: Policy/Do
// for an outbound call worth a few immediate attempts before the caller
// falls back to its own retry path (the oracle lookup), and NextDelay for
// worker pools that schedule a delayed redelivery.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	initialInterval = 30 * time.Second
	maxInterval     = 30 * time.Minute
	maxElapsedTime  = 2 * time.Minute
)

// Policy builds a bounded exponential backoff for in-process retries of a
// single outbound call (the fetcher's oracle lookup), capped at a short
// total elapsed time since a worker would rather nack back to the queue
// than block a goroutine for long.
func Policy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialInterval
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = maxElapsedTime
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	return backoff.WithContext(b, ctx)
}

// Do runs op with retries under Policy, returning the last error once
// retries are exhausted.
func Do(ctx context.Context, op func() error) error {
	return backoff.Retry(op, Policy(ctx))
}

// NextDelay computes the delay before the next attempt for a job that has
// failed `attempts` times, following min(2^attempts*base, cap). Used by
// worker pools that schedule a future queue redelivery (nack-with-delay)
// rather than retrying an operation in the same goroutine.
func NextDelay(attempts int, base, cap time.Duration) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempts))) * base
	if d > cap {
		return cap
	}
	return d
}
