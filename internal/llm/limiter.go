package llm

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter wraps a rate.Limiter that backs off when the provider
// answers 429 and recovers gradually on success. The rate never exceeds
// the configured requests-per-minute and never drops below a quarter of it.
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates a limiter allowing requestsPerMinute calls.
// A non-positive value disables limiting.
func NewAdaptiveLimiter(requestsPerMinute int) *AdaptiveLimiter {
	if requestsPerMinute <= 0 {
		return &AdaptiveLimiter{limiter: rate.NewLimiter(rate.Inf, 1), maxRate: rate.Inf, minRate: rate.Inf, currentRate: rate.Inf}
	}
	r := rate.Limit(float64(requestsPerMinute) / 60)
	burst := max(1, requestsPerMinute/10)
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(r, burst),
		maxRate:     r,
		minRate:     r / 4,
		currentRate: r,
	}
}

// Wait blocks until a call is allowed or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate by 20%, up to the configured maximum.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentRate >= a.maxRate {
		return
	}
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate after a 429.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentRate == rate.Inf {
		return
	}
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("llm: reducing request rate after 429",
		zap.Float64("requests_per_minute", float64(a.currentRate)*60),
	)
}

// Limit returns the current rate in events per second.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}
