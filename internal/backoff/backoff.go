// Package backoff computes exponential retry delays with jitter.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy parameterizes exponential backoff.
type Policy struct {
	// InitialMs is the delay before the first retry.
	InitialMs float64
	// MaxMs caps the computed delay.
	MaxMs float64
	// Factor is the exponential growth factor per attempt.
	Factor float64
	// Jitter is the randomization fraction (0.0-1.0) applied to the delay.
	Jitter float64
}

// ToolRetryPolicy is the spec §4.3 default for tool dispatch retries:
// 500ms initial, 4s cap, +-20% jitter.
func ToolRetryPolicy() Policy {
	return Policy{InitialMs: 500, MaxMs: 4000, Factor: 2, Jitter: 0.2}
}

// Compute returns the backoff duration for the given attempt (1-indexed).
func Compute(p Policy, attempt int) time.Duration {
	return ComputeWithRand(p, attempt, rand.Float64()) //nolint:gosec // jitter, not security-sensitive
}

// ComputeWithRand is Compute with an injectable random sample in [0,1) for
// deterministic tests.
func ComputeWithRand(p Policy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := p.InitialMs * math.Pow(p.Factor, exp)
	jitter := base * p.Jitter * (2*randomValue - 1) // +-Jitter fraction
	total := math.Min(p.MaxMs, math.Max(0, base+jitter))
	return time.Duration(math.Round(total)) * time.Millisecond
}
