package policy

import (
	"github.com/loomrun/loom"
	"golang.org/x/time/rate"
)

// RateLimitPolicy admits jobs no faster than a configured rate, the way a
// policy guarding a rate-limited external API would. Unlike
// ResourceCountingPolicy it has nothing to give back: CanRun either
// consumes a token or it doesn't, and Release/Free are no-ops.
type RateLimitPolicy struct {
	limiter *rate.Limiter
}

// NewRateLimitPolicy admits up to burst jobs immediately, then at most one
// every 1/r seconds thereafter.
func NewRateLimitPolicy(r rate.Limit, burst int) *RateLimitPolicy {
	return &RateLimitPolicy{limiter: rate.NewLimiter(r, burst)}
}

func (p *RateLimitPolicy) CanRun(job loom.Job) bool {
	return p.limiter.Allow()
}

func (p *RateLimitPolicy) Release(job loom.Job) {}

func (p *RateLimitPolicy) Free(job loom.Job) {}
