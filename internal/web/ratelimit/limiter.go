// Package ratelimit throttles search requests per client
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Limiter decides whether a client may run another search
type Limiter interface {
	Allow(ctx context.Context, key string) (*Decision, error)
}

// Decision is the state of a client's window after a request
type Decision struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Allowed   bool
}

// RetryAfter returns how long a client should wait, in whole seconds
func (d *Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(wait.Seconds())) * time.Second
}
