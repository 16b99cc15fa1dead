package server

import "time"

// restartPolicy bounds crash-restart cycles. After maxAttempts consecutive
// crashes the instance stays crashed until a manual Start, which resets the
// counter. The curve is a tunable, not a contract.
type restartPolicy struct {
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func (p restartPolicy) shouldRestart(restartCount int) bool {
	if p.maxAttempts <= 0 {
		return false
	}
	return restartCount < p.maxAttempts
}

// backoffDuration returns the delay before restart attempt restartCount,
// doubling from the initial value up to the cap.
func (p restartPolicy) backoffDuration(restartCount int) time.Duration {
	initial := p.initialBackoff
	if initial <= 0 {
		initial = 1 * time.Second
	}
	if restartCount < 0 {
		restartCount = 0
	}
	max := p.maxBackoff
	if max < initial {
		max = initial
	}
	delay := initial
	for i := 0; i < restartCount; i++ {
		if delay >= max {
			return max
		}
		delay *= 2
		if delay <= 0 { // overflowed
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
