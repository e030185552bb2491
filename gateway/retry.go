package gateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// phase is where a delivery stands after an attempt
type phase int

const (
	phaseAttempting phase = iota
	phaseBackingOff
	phaseDelivered
	phaseRejected
	phaseExhausted
)

// String returns the string representation of the phase
func (p phase) String() string {
	switch p {
	case phaseAttempting:
		return "attempting"
	case phaseBackingOff:
		return "backing_off"
	case phaseDelivered:
		return "delivered"
	case phaseRejected:
		return "rejected"
	case phaseExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

/* retryState is the delivery attempt state machine
 *
 *   attempting --ok--> delivered
 *   attempting --4xx--> rejected
 *   attempting --retryable--> backing_off --> attempting
 *   attempting --retryable, no attempts left--> exhausted
 *
 * It lives for one Deliver call and is never shared.
 */
type retryState struct {
	phase    phase
	attempts int
	max      int
	delay    time.Duration
	lastErr  error
	backoff  *backoff.ExponentialBackOff
}

func newRetryState(maxAttempts int, initial time.Duration) *retryState {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	b.Reset()

	return &retryState{
		phase:   phaseAttempting,
		max:     maxAttempts,
		backoff: b,
	}
}

// observe records the result of one attempt and moves to the next phase
func (s *retryState) observe(err error) phase {
	s.attempts++
	s.lastErr = err
	s.delay = 0

	switch {
	case err == nil:
		s.phase = phaseDelivered
	case !retryable(err):
		s.phase = phaseRejected
	case s.attempts >= s.max:
		s.phase = phaseExhausted
	default:
		s.phase = phaseBackingOff
		s.delay = s.backoff.NextBackOff()
	}
	return s.phase
}

// resume leaves backing_off once the delay has elapsed
func (s *retryState) resume() {
	s.phase = phaseAttempting
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
