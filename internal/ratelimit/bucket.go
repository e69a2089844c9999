// Package ratelimit gates outbound oracle calls through a single
// process-wide token bucket per configured QPS, halving on a 429 response
// and doubling back up once a call succeeds again.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Bucket struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	baseQPS     float64
	currentQPS  float64
	backedOff   bool
}

func NewBucket(qps float64) *Bucket {
	return &Bucket{
		limiter:    rate.NewLimiter(rate.Limit(qps), max(1, int(qps))),
		baseQPS:    qps,
		currentQPS: qps,
	}
}

// Wait blocks until a token is available or ctx is done.
func (b *Bucket) Wait(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

// ReportRateLimited halves the bucket's rate in response to a 429. Repeated
// calls keep halving, with a floor so the bucket never goes fully silent.
func (b *Bucket) ReportRateLimited() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.currentQPS /= 2
	if b.currentQPS < 0.1 {
		b.currentQPS = 0.1
	}
	b.backedOff = true
	b.limiter.SetLimit(rate.Limit(b.currentQPS))
}

// ReportSuccess doubles the rate back toward baseQPS after a prior
// rate-limit backoff. A success observed while not backed off is a no-op —
// only recovery from a 429 should move the rate.
func (b *Bucket) ReportSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.backedOff {
		return
	}
	b.currentQPS *= 2
	if b.currentQPS >= b.baseQPS {
		b.currentQPS = b.baseQPS
		b.backedOff = false
	}
	b.limiter.SetLimit(rate.Limit(b.currentQPS))
}

// Tokens reports the current burst capacity available in the bucket.
func (b *Bucket) Tokens() float64 {
	return b.limiter.Tokens()
}

// NextTokenInterval is how long a caller would need to wait right now for a
// single token, used to size a sleep-then-retry loop without consuming one.
func (b *Bucket) NextTokenInterval() time.Duration {
	r := b.limiter.Reserve()
	delay := r.Delay()
	r.Cancel()
	return delay
}
