// Package ratelimit provides fixed-window rate limiting keyed by
// (bucket, identity), with HTTP header rendering for every outcome.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// Bucket configures one logical limit, e.g. form submissions.
type Bucket struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Result is the outcome of a single check. The slot is already consumed when
// Allowed is true; check and consume are one atomic operation.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration // set only when denied
}

// Limiter checks and consumes one slot for identity in the bucket's current
// window. Deny is reported through Result, not through the error.
type Limiter interface {
	Check(ctx context.Context, bucket Bucket, identity string) (Result, error)
}

// SetHeaders writes the standard rate-limit response headers. Retry-After is
// attached only on throttled outcomes.
func SetHeaders(h http.Header, r Result) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(r.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(r.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(r.Reset.Unix(), 10))
	if !r.Allowed {
		seconds := int(r.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		h.Set("Retry-After", strconv.Itoa(seconds))
	}
}

// windowStart truncates now to the bucket's window.
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

func resultFor(bucket Bucket, count int, start time.Time, now time.Time) Result {
	reset := start.Add(bucket.Window)
	remaining := bucket.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	r := Result{
		Allowed:   count <= bucket.Limit,
		Limit:     bucket.Limit,
		Remaining: remaining,
		Reset:     reset,
	}
	if !r.Allowed {
		r.RetryAfter = reset.Sub(now)
	}
	return r
}
