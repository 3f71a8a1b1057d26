// Package retry runs an operation again with exponential backoff and jitter.
// The worker uses it to wait for Postgres and RabbitMQ at startup and around
// Telegram calls.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy is a backoff schedule.
type Policy struct {
	// Attempts counts the first call.
	Attempts int
	Base     time.Duration
	Max      time.Duration
	Factor   float64

	// Jitter spreads each delay by +/- this fraction.
	Jitter float64
}

var (
	// Startup outlasts a compose stack bringing Postgres or RabbitMQ up
	// next to the worker: roughly 20s across six attempts.
	Startup = Policy{Attempts: 6, Base: 500 * time.Millisecond, Max: 10 * time.Second, Factor: 2, Jitter: 0.2}

	// Telegram stays well inside one trigger request.
	Telegram = Policy{Attempts: 5, Base: 100 * time.Millisecond, Max: 5 * time.Second, Factor: 1.5, Jitter: 0.1}
)

// Delay is the pause after the given failed attempt (1-based), before jitter.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.Base) * math.Pow(p.Factor, float64(attempt-1))
	if p.Max > 0 && d > float64(p.Max) {
		d = float64(p.Max)
	}
	return time.Duration(d)
}

func (p Policy) jittered(attempt int) time.Duration {
	d := float64(p.Delay(attempt))
	if p.Jitter > 0 {
		d += d * p.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(max(d, 0))
}

// marked carries an explicit retry decision made by the operation.
type marked struct {
	err   error
	retry bool
}

func (m *marked) Error() string { return m.err.Error() }
func (m *marked) Unwrap() error { return m.err }

// Retryable marks err as worth another attempt regardless of the classifier.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err, retry: true}
}

// Permanent stops retrying and returns err as is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err}
}

// Retrier applies a Policy to operations. Unmarked errors are retried only
// when the classifier accepts them.
type Retrier struct {
	policy   Policy
	classify func(error) bool
	onRetry  func(attempt int, err error, delay time.Duration)
}

// New returns a Retrier that retries only errors marked Retryable.
func New(p Policy) *Retrier {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	return &Retrier{policy: p}
}

// If sets the classifier for unmarked errors.
func (r *Retrier) If(classify func(error) bool) *Retrier {
	r.classify = classify
	return r
}

// OnRetry sets a callback run before each pause.
func (r *Retrier) OnRetry(fn func(attempt int, err error, delay time.Duration)) *Retrier {
	r.onRetry = fn
	return r
}

// Do calls op until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx ends. The returned error never carries a retry mark.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		retry := false
		var m *marked
		if errors.As(err, &m) {
			retry = m.retry
			err = m.err
		} else if r.classify != nil {
			retry = r.classify(err)
		}
		last = err

		if !retry || attempt >= r.policy.Attempts {
			return err
		}

		delay := r.policy.jittered(attempt)
		if r.onRetry != nil {
			r.onRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last
		case <-timer.C:
		}
	}
}
