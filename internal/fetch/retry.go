package fetch

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// attemptState tracks one URL through the bounded retry state machine:
// Pending -> Attempting -> (Success | BackingOff -> Attempting | PermanentlyFailed).
// Attempt count and next-eligible time are explicit so the machine is
// testable with an injected clock.
type attemptState struct {
	attempts     int
	nextEligible time.Time
}

// BackoffPolicy computes jittered exponential delays between attempts.
type BackoffPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultBackoffPolicy returns the policy used when config leaves it unset.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Exhausted reports whether the attempt budget is spent.
func (p BackoffPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// Backoff returns the wait duration before the next attempt. The delay grows
// exponentially, capped at MaxDelay, with half the delay randomized as jitter
// so synchronized workers do not hammer a recovering host in lockstep.
func (p BackoffPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
