package infra

import "time"

const (
	backoffBase = 500 * time.Millisecond
	backoffMax  = 30 * time.Second
)

// CalculateBackoff returns an exponential delay for the given attempt, capped at backoffMax.
func CalculateBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return backoffBase
	}
	if attempt > 16 {
		return backoffMax
	}
	d := backoffBase << uint(attempt)
	if d > backoffMax {
		return backoffMax
	}
	return d
}
