// Package ratelimit implements per-(user, endpoint) token bucket
// admission control. Buckets hold fractional tokens replenished
// continuously by elapsed time and capped at limit+burst; one whole
// token is consumed per admitted request. All state is process-local
// and rebuilt on restart.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chattrain/chattrain/internal/config"
	"github.com/chattrain/chattrain/internal/errors"
	"github.com/chattrain/chattrain/internal/logging"
)

// Endpoint classes with independently configured limits.
const (
	EndpointWebSocketMessage = "websocket_message"
	EndpointAPIRequest       = "api_request"
	EndpointLogin            = "login"
	EndpointFeedback         = "feedback"
)

const (
	historyRetention = time.Hour
	bucketRetention  = time.Hour
	sweepInterval    = 5 * time.Minute

	// Theoretical capacity is expressed in concurrent pilot users, the
	// denominator of the system load figure.
	capacityUsers = 5
)

// Decision is an immutable snapshot of one rate-limit check.
type Decision struct {
	Allowed         bool
	TokensRemaining float64
	Limit           int
	ResetAt         time.Time
}

// bucket is the token state for one (user, endpoint) pair. The mutex
// serializes refill+consume for that pair only; distinct pairs never
// contend.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

type requestRecord struct {
	endpoint string
	at       time.Time
	allowed  bool
}

// Limiter is a token bucket rate limiter keyed by user and endpoint.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*bucket // userID -> endpoint -> bucket

	histMu  sync.Mutex
	history map[string][]requestRecord

	limits            map[string]int
	requestsPerMinute int
	burstAllowance    int
	enabled           bool

	logger  logging.Logger
	sweeper *time.Ticker
	stop    chan struct{}
	stopped sync.Once

	now func() time.Time // overridable for tests
}

// NewLimiter creates a rate limiter from configuration and starts its
// background sweep.
func NewLimiter(cfg config.RateLimitConfig, logger logging.Logger) *Limiter {
	if logger == nil {
		logger = logging.NopLogger{}
	}

	rpm := cfg.RequestsPerMinute
	l := &Limiter{
		buckets:           make(map[string]map[string]*bucket),
		history:           make(map[string][]requestRecord),
		requestsPerMinute: rpm,
		burstAllowance:    cfg.BurstAllowance,
		enabled:           cfg.Enabled,
		limits: map[string]int{
			EndpointWebSocketMessage: rpm,
			EndpointAPIRequest:       rpm * 2,
			EndpointLogin:            10,
			EndpointFeedback:         max(rpm/2, 1),
		},
		logger: logger.WithComponent("ratelimit"),
		stop:   make(chan struct{}),
		now:    time.Now,
	}

	l.sweeper = time.NewTicker(sweepInterval)
	go l.runSweeper()

	l.logger.Info(context.Background(), "rate limiter initialized",
		"requests_per_minute", rpm,
		"burst_allowance", cfg.BurstAllowance,
		"enabled", cfg.Enabled)

	return l
}

// limitFor returns the configured limit for an endpoint, falling back
// to the steady-state default for unknown endpoints.
func (l *Limiter) limitFor(endpoint string) int {
	if limit, ok := l.limits[endpoint]; ok {
		return limit
	}
	return l.requestsPerMinute
}

// Check consumes one token for the given user and endpoint. It returns
// a rate-limit error when no whole token is available; the returned
// Decision is valid in both cases.
func (l *Limiter) Check(userID, endpoint string) (Decision, error) {
	limit := l.limitFor(endpoint)

	if !l.enabled {
		return Decision{
			Allowed:         true,
			TokensRemaining: float64(limit + l.burstAllowance),
			Limit:           limit,
		}, nil
	}

	now := l.now()
	b := l.getBucket(userID, endpoint, limit, now)

	b.mu.Lock()
	l.refill(b, limit, now)

	decision := Decision{
		Limit:           limit,
		TokensRemaining: b.tokens,
		ResetAt:         l.resetEstimate(b.tokens, now),
	}

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		decision.Allowed = true
		decision.TokensRemaining = b.tokens
		b.mu.Unlock()

		l.recordRequest(userID, endpoint, now, true)
		return decision, nil
	}
	b.mu.Unlock()

	l.recordRequest(userID, endpoint, now, false)

	retryAfter := time.Minute / time.Duration(limit)
	err := errors.NewRateLimitError(
		fmt.Sprintf("rate limit exceeded for endpoint %s: %d requests per minute", endpoint, limit),
		retryAfter,
	)
	l.logger.Warn(context.Background(), err, "rate limit exceeded",
		"user_id", userID,
		"endpoint", endpoint,
		"limit", limit)

	return decision, err
}

// getBucket returns the bucket for the pair, creating a full one on
// first use. Creation double-checks under the write lock.
func (l *Limiter) getBucket(userID, endpoint string, limit int, now time.Time) *bucket {
	l.mu.RLock()
	if endpoints, ok := l.buckets[userID]; ok {
		if b, ok := endpoints[endpoint]; ok {
			l.mu.RUnlock()
			return b
		}
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	endpoints, ok := l.buckets[userID]
	if !ok {
		endpoints = make(map[string]*bucket)
		l.buckets[userID] = endpoints
	}
	if b, ok := endpoints[endpoint]; ok {
		return b
	}

	b := &bucket{
		tokens:     float64(limit),
		lastRefill: now,
	}
	endpoints[endpoint] = b
	return b
}

// refill replenishes tokens by elapsed time, capped at limit+burst.
// Burst capacity is a permanently available buffer, not a one-shot
// allowance. Caller holds b.mu.
func (l *Limiter) refill(b *bucket, limit int, now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}

	max := float64(limit + l.burstAllowance)
	b.tokens += elapsed / 60.0 * float64(limit)
	if b.tokens > max {
		b.tokens = max
	}
	b.lastRefill = now
}

func (l *Limiter) resetEstimate(tokens float64, now time.Time) time.Time {
	if tokens >= 1.0 {
		return now
	}
	return now.Add(time.Duration(float64(time.Minute) / float64(l.requestsPerMinute)))
}

func (l *Limiter) recordRequest(userID, endpoint string, now time.Time, allowed bool) {
	cutoff := now.Add(-historyRetention)

	l.histMu.Lock()
	defer l.histMu.Unlock()

	kept := l.history[userID][:0]
	for _, rec := range l.history[userID] {
		if rec.at.After(cutoff) {
			kept = append(kept, rec)
		}
	}
	l.history[userID] = append(kept, requestRecord{endpoint: endpoint, at: now, allowed: allowed})
}

// ResetUser clears all bucket and history state for a user.
func (l *Limiter) ResetUser(userID string) {
	l.mu.Lock()
	delete(l.buckets, userID)
	l.mu.Unlock()

	l.histMu.Lock()
	delete(l.history, userID)
	l.histMu.Unlock()

	l.logger.Info(context.Background(), "reset rate limits", "user_id", userID)
}

// ResetUserEndpoint refills a single endpoint bucket for a user back to
// its full limit.
func (l *Limiter) ResetUserEndpoint(userID, endpoint string) {
	limit := l.limitFor(endpoint)

	l.mu.Lock()
	defer l.mu.Unlock()

	endpoints, ok := l.buckets[userID]
	if !ok {
		return
	}
	if b, ok := endpoints[endpoint]; ok {
		b.mu.Lock()
		b.tokens = float64(limit)
		b.lastRefill = l.now()
		b.mu.Unlock()
	}
}

// runSweeper discards stale buckets and history on a fixed cadence,
// independent of check frequency.
func (l *Limiter) runSweeper() {
	for {
		select {
		case <-l.sweeper.C:
			l.sweep()
		case <-l.stop:
			l.sweeper.Stop()
			return
		}
	}
}

func (l *Limiter) sweep() {
	now := l.now()
	bucketCutoff := now.Add(-bucketRetention)
	historyCutoff := now.Add(-historyRetention)

	l.mu.Lock()
	for userID, endpoints := range l.buckets {
		for endpoint, b := range endpoints {
			b.mu.Lock()
			stale := b.lastRefill.Before(bucketCutoff)
			b.mu.Unlock()
			if stale {
				delete(endpoints, endpoint)
			}
		}
		if len(endpoints) == 0 {
			delete(l.buckets, userID)
		}
	}
	active := len(l.buckets)
	l.mu.Unlock()

	l.histMu.Lock()
	for userID, records := range l.history {
		kept := records[:0]
		for _, rec := range records {
			if rec.at.After(historyCutoff) {
				kept = append(kept, rec)
			}
		}
		if len(kept) == 0 {
			delete(l.history, userID)
		} else {
			l.history[userID] = kept
		}
	}
	l.histMu.Unlock()

	l.logger.Debug(context.Background(), "rate limiter sweep complete", "active_users", active)
}

// Stop halts the background sweeper. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopped.Do(func() {
		close(l.stop)
	})
}
