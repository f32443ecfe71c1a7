package ratelimit

import "time"

// EndpointTokens is the current token state for one endpoint of a user.
type EndpointTokens struct {
	TokensRemaining float64   `json:"tokens_remaining"`
	Limit           int       `json:"limit"`
	ResetAt         time.Time `json:"reset_at"`
}

// UserStats is a derived read-only view of one user's rate-limit state.
type UserStats struct {
	UserID             string                    `json:"user_id"`
	RequestsLastMinute int                       `json:"requests_last_minute"`
	RequestsLastHour   int                       `json:"requests_last_hour"`
	TokenBuckets       map[string]EndpointTokens `json:"token_buckets"`
}

// SystemStats is a derived read-only view of system-wide admission load.
type SystemStats struct {
	ActiveUsers             int            `json:"active_users"`
	RequestsPerMinuteSystem int            `json:"requests_per_minute_system"`
	RequestsLastHour        int            `json:"requests_last_hour"`
	EndpointLimits          map[string]int `json:"endpoint_limits"`
	SystemCapacity          int            `json:"system_capacity"`
	LoadPercentage          float64        `json:"load_percentage"`
}

// UserStats reports request history counts and refreshed token levels
// for every endpoint the user has touched. Reading refreshes buckets
// but consumes nothing.
func (l *Limiter) UserStats(userID string) UserStats {
	now := l.now()
	lastMinute := now.Add(-time.Minute)

	stats := UserStats{
		UserID:       userID,
		TokenBuckets: make(map[string]EndpointTokens),
	}

	l.histMu.Lock()
	for _, rec := range l.history[userID] {
		stats.RequestsLastHour++
		if rec.at.After(lastMinute) {
			stats.RequestsLastMinute++
		}
	}
	l.histMu.Unlock()

	l.mu.RLock()
	endpoints := make(map[string]*bucket, len(l.buckets[userID]))
	for endpoint, b := range l.buckets[userID] {
		endpoints[endpoint] = b
	}
	l.mu.RUnlock()

	for endpoint, b := range endpoints {
		limit := l.limitFor(endpoint)
		b.mu.Lock()
		l.refill(b, limit, now)
		stats.TokenBuckets[endpoint] = EndpointTokens{
			TokensRemaining: b.tokens,
			Limit:           limit,
			ResetAt:         l.resetEstimate(b.tokens, now),
		}
		b.mu.Unlock()
	}

	return stats
}

// SystemStats reports aggregate admission state across all users.
func (l *Limiter) SystemStats() SystemStats {
	now := l.now()
	lastMinute := now.Add(-time.Minute)

	l.mu.RLock()
	activeUsers := len(l.buckets)
	limits := make(map[string]int, len(l.limits))
	for endpoint, limit := range l.limits {
		limits[endpoint] = limit
	}
	l.mu.RUnlock()

	var total, recent int
	l.histMu.Lock()
	for _, records := range l.history {
		for _, rec := range records {
			total++
			if rec.at.After(lastMinute) {
				recent++
			}
		}
	}
	l.histMu.Unlock()

	capacity := l.requestsPerMinute * capacityUsers
	load := 0.0
	if capacity > 0 {
		load = float64(recent) / float64(capacity) * 100.0
	}

	return SystemStats{
		ActiveUsers:             activeUsers,
		RequestsPerMinuteSystem: recent,
		RequestsLastHour:        total,
		EndpointLimits:          limits,
		SystemCapacity:          capacity,
		LoadPercentage:          load,
	}
}
