// Package poll runs a probe on a fixed interval until it reports success,
// the configured timeout elapses or the caller's context is cancelled.
package poll

import (
	"context"
	"errors"
	"time"
)

// DefaultInterval matches the one second cadence the bridge was tuned for.
const DefaultInterval = time.Second

// ErrTimeout is the cause recorded when Options.Timeout elapses.
var ErrTimeout = errors.New("deadline elapsed before the condition was met")

// State of a polling operation. Polling is the only non-terminal state.
type State int

const (
	Polling State = iota
	Found
	TimedOut
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Polling:
		return "polling"
	case Found:
		return "found"
	case TimedOut:
		return "timed-out"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options configures a polling loop.
type Options struct {
	// Interval between scans. Zero means DefaultInterval.
	Interval time.Duration
	// Timeout bounds the whole operation. Zero disables the bound and the
	// loop only stops on success or context cancellation.
	Timeout time.Duration
	// Immediate runs the first scan before waiting for the first tick.
	Immediate bool
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout < 0 {
		o.Timeout = 0
	}
	return o
}

// Probe performs one scan. Returning found=false with a nil error keeps the
// loop going. A non-nil error is treated as transient and retried on the
// next tick unless it was wrapped with Permanent.
type Probe[T any] func(ctx context.Context) (value T, found bool, err error)

// Result is the terminal outcome of Until.
type Result[T any] struct {
	State    State
	Value    T
	Attempts int
	// Err is set for TimedOut, Cancelled and Failed.
	Err error
	// LastErr is the most recent transient probe error, kept for diagnostics.
	LastErr error
}

// Get returns the value on success and Err otherwise.
func (r Result[T]) Get() (T, error) {
	if r.State == Found {
		return r.Value, nil
	}
	var zero T
	return zero, r.Err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as terminal: Until stops and reports Failed.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Until scans with probe once per interval until it succeeds. The ticker is
// stopped as soon as a terminal state is reached and is never restarted.
func Until[T any](ctx context.Context, opts Options, probe Probe[T]) Result[T] {
	opts = opts.withDefaults()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, opts.Timeout, ErrTimeout)
		defer cancel()
	}

	res := Result[T]{State: Polling}

	scan := func() bool {
		res.Attempts++
		value, found, err := probe(ctx)
		var perm *permanentError
		switch {
		case errors.As(err, &perm):
			res.State = Failed
			res.Err = perm.err
			return true
		case err != nil:
			res.LastErr = err
			return false
		case found:
			res.State = Found
			res.Value = value
			return true
		}
		return false
	}

	if err := ctx.Err(); err != nil {
		res.finish(ctx)
		return res
	}

	if opts.Immediate && scan() {
		return res
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			res.finish(ctx)
			return res
		case <-ticker.C:
			if scan() {
				return res
			}
		}
	}
}

func (r *Result[T]) finish(ctx context.Context) {
	if errors.Is(context.Cause(ctx), ErrTimeout) {
		r.State = TimedOut
		r.Err = ErrTimeout
		return
	}
	r.State = Cancelled
	r.Err = ctx.Err()
}
