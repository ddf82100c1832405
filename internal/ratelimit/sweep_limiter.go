package ratelimit

import (
	"context"
	"time"
)

const sweepKey = "facturo:ratelimit:dunning_sweep"

// SweepLimiter bounds how often the HTTP sweep trigger may fire. A nil
// limiter always allows.
type SweepLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewSweepLimiter(bucket *TokenBucket) *SweepLimiter {
	if bucket == nil {
		return nil
	}
	// One trigger per minute sustained, small burst for retries.
	return &SweepLimiter{bucket: bucket, rate: 1.0 / 60.0, burst: 3}
}

func (l *SweepLimiter) Allow(ctx context.Context) (bool, time.Duration, error) {
	if l == nil || l.bucket == nil {
		return true, 0, nil
	}
	res, err := l.bucket.Allow(ctx, sweepKey, l.rate, l.burst)
	if err != nil {
		// Redis being down must not block dunning.
		return true, 0, nil
	}
	return res.Allowed, res.RetryAfter, nil
}
