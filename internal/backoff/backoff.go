// Package backoff computes retry delays. It generalizes the teacher's
// Supervision.calculateBackoff (exponential delay with a cap and jitter,
// used there to space out process restarts) to the retry policies this
// service needs: agent re-initialize attempts and idempotent agent call
// retries (§4.C), and delivery retries (§4.H).
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Config configures a backoff sequence.
type Config struct {
	Initial    time.Duration
	Multiplier float64 // defaults to 2.0 when zero
	Max        time.Duration
	Jitter     float64 // fraction of the delay to randomize, 0.0-1.0
}

// Default is the 2x/cap-30s backoff used by the agent client pool's
// re-initialize attempts and idempotent-call retries (§4.C).
var Default = Config{Initial: 2 * time.Second, Multiplier: 2, Max: 30 * time.Second, Jitter: 0.2}

// Delivery is the base-10s/cap-5min backoff used by the delivery dispatcher
// (§4.H).
var Delivery = Config{Initial: 10 * time.Second, Multiplier: 2, Max: 5 * time.Minute, Jitter: 0.1}

// Delay returns the delay before retry attempt n (1-indexed: the delay
// before the first retry is Delay(1)).
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 1 || c.Initial <= 0 {
		return 0
	}
	mult := c.Multiplier
	if mult == 0 {
		mult = 2.0
	}
	delay := float64(c.Initial) * math.Pow(mult, float64(attempt-1))
	if c.Max > 0 && delay > float64(c.Max) {
		delay = float64(c.Max)
	}
	if c.Jitter > 0 {
		delay += delay * c.Jitter * (rand.Float64()*2 - 1)
		if delay < 0 {
			delay = 0
		}
	}
	return time.Duration(delay)
}
