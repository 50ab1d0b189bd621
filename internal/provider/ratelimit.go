package provider

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Throttle enforces a per-host request budget so a burst of messages cannot
// burn through the free-tier quotas of the market-data APIs. Each host gets
// its own token bucket; Wait blocks until a token is available or ctx ends.
type Throttle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewThrottle creates a throttle allowing rps requests per second per host,
// with a burst of up to twice that.
func NewThrottle(rps float64) *Throttle {
	if rps <= 0 {
		rps = 5
	}
	burst := int(rps * 2)
	if burst < 1 {
		burst = 1
	}
	return &Throttle{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (t *Throttle) limiter(host string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[host]
	if !ok {
		l = rate.NewLimiter(t.rps, t.burst)
		t.limiters[host] = l
	}
	return l
}

// Wait blocks until the host's bucket has a token or the context is done.
func (t *Throttle) Wait(ctx context.Context, host string) error {
	return t.limiter(host).Wait(ctx)
}
