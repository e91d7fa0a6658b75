package scheduler

import "math/rand"

// Temporizer decides how many sweeps a unit that asked to retry sits out.
type Temporizer struct {
	// Delay returns the number of sweeps to wait before the given attempt, counted from 1.
	Delay func(attempt int) int
	// MaxAttempts is the number of retries after which the unit is treated as unresolved.
	MaxAttempts int
}

// RandomTemporizer waits base sweeps plus up to jitter extra sweeps drawn from rng.
func RandomTemporizer(base, jitter, maxAttempts int, rng *rand.Rand) Temporizer {
	if jitter < 0 {
		jitter = 0
	}
	return Temporizer{
		Delay: func(int) int {
			return base + rng.Intn(jitter+1)
		},
		MaxAttempts: maxAttempts,
	}
}

// FixedTemporizer always waits the same number of sweeps.
func FixedTemporizer(sweeps, maxAttempts int) Temporizer {
	return Temporizer{
		Delay:       func(int) int { return sweeps },
		MaxAttempts: maxAttempts,
	}
}
