//go:build property

package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/chattrain/chattrain/internal/config"
	"github.com/chattrain/chattrain/internal/logging"
)

// TestLimiterProperties validates admission invariants across random
// request interleavings.
func TestLimiterProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1357)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("cold-start admissions never exceed the limit", prop.ForAll(
		func(rpm int, burst int, attempts int) bool {
			l := NewLimiter(config.RateLimitConfig{
				RequestsPerMinute: rpm,
				BurstAllowance:    burst,
				Enabled:           true,
			}, logging.NopLogger{})
			defer l.Stop()

			frozen := time.Now()
			l.now = func() time.Time { return frozen }

			admitted := 0
			for range attempts {
				if _, err := l.Check("prop-user", EndpointWebSocketMessage); err == nil {
					admitted++
				}
			}
			// Fresh buckets hold limit tokens; burst headroom only
			// accrues over idle time, which a frozen clock never grants.
			return admitted == min(attempts, rpm)
		},
		gen.IntRange(1, 60),
		gen.IntRange(0, 20),
		gen.IntRange(1, 200),
	))

	properties.Property("one user's exhaustion never affects another", prop.ForAll(
		func(userCount int, exhausted int) bool {
			l := NewLimiter(config.RateLimitConfig{
				RequestsPerMinute: 10,
				BurstAllowance:    2,
				Enabled:           true,
			}, logging.NopLogger{})
			defer l.Stop()

			frozen := time.Now()
			l.now = func() time.Time { return frozen }

			for range exhausted {
				l.Check("greedy", EndpointWebSocketMessage)
			}

			for i := range userCount {
				decision, err := l.Check(fmt.Sprintf("user-%d", i), EndpointWebSocketMessage)
				if err != nil || !decision.Allowed {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 10),
		gen.IntRange(13, 100),
	))

	properties.Property("tokens never exceed limit+burst after arbitrary idle", prop.ForAll(
		func(idleSeconds int) bool {
			l := NewLimiter(config.RateLimitConfig{
				RequestsPerMinute: 20,
				BurstAllowance:    5,
				Enabled:           true,
			}, logging.NopLogger{})
			defer l.Stop()

			current := time.Now()
			l.now = func() time.Time { return current }

			l.Check("idle-user", EndpointWebSocketMessage)

			current = current.Add(time.Duration(idleSeconds) * time.Second)
			decision, err := l.Check("idle-user", EndpointWebSocketMessage)
			if err != nil {
				return false
			}
			// After consuming one, at most limit+burst-1 remain.
			return decision.TokensRemaining <= float64(24)+1e-9
		},
		gen.IntRange(0, 7200),
	))

	properties.TestingRun(t)
}
