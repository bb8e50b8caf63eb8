package rentaly

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy describes the reconnect delay curve: Base × 2^attempt plus up
// to Jitter × that value, capped at Max.
type BackoffPolicy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// Delay computes the delay for a zero-based attempt using a random value in [0, 1).
func (p BackoffPolicy) Delay(attempt int, random float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := float64(p.Base) * math.Pow(2, float64(attempt))
	total := base + base*p.Jitter*random
	if p.Max > 0 {
		total = math.Min(total, float64(p.Max))
	}
	return time.Duration(math.Round(total))
}

type reconnector struct {
	policy      BackoffPolicy
	maxAttempts int
	attempt     int
	random      func() float64
}

func newReconnector(cfg *Config) *reconnector {
	return &reconnector{
		policy: BackoffPolicy{
			Base:   cfg.ReconnectBaseDelay,
			Max:    cfg.ReconnectMaxDelay,
			Jitter: math.Max(cfg.ReconnectJitter, 0),
		},
		maxAttempts: cfg.MaxReconnectAttempts,
		random:      rand.Float64, // #nosec G404 -- jitter only
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.attempt < r.maxAttempts
}

// next returns the 1-based attempt number and the delay to wait before it.
func (r *reconnector) next() (int, time.Duration) {
	delay := r.policy.Delay(r.attempt, r.random())
	r.attempt++
	return r.attempt, delay
}

func (r *reconnector) reset() {
	r.attempt = 0
}
