package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned without invoking the operation while the
	// breaker is open or its half-open probe slot is taken.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrUnavailable is returned when every attempt failed transiently.
	ErrUnavailable = errors.New("dependency unavailable")

	// ErrTimeout marks a single attempt that exceeded Config.Timeout.
	ErrTimeout = errors.New("attempt timed out")
)

type Config struct {
	Name string

	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Timeout     time.Duration

	// The breaker trips once at least MinimumThroughput calls were seen in
	// the current SamplingDuration window and the failed share reaches
	// FailureRatio.
	FailureRatio      float64
	MinimumThroughput int
	SamplingDuration  time.Duration
	BreakDuration     time.Duration
}

// Policy runs operations under a per-attempt timeout, a retry budget with
// exponential backoff and full jitter, and a circuit breaker that accounts
// for the whole retry budget as one call.
type Policy struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker[any]
	log     *logrus.Logger
}

func New(cfg Config, log *logrus.Logger) *Policy {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}

	p := &Policy{cfg: cfg, log: log}

	p.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.SamplingDuration,
		Timeout:     cfg.BreakDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(max(cfg.MinimumThroughput, 1)) {
				return false
			}

			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			entry := log.WithFields(logrus.Fields{
				"policy": name,
				"from":   from.String(),
				"to":     to.String(),
			})

			if to == gobreaker.StateOpen {
				entry.Warn("circuit breaker opened")
				return
			}

			entry.Info("circuit breaker state changed")
		},
	})

	return p
}

func (p *Policy) Name() string {
	return p.cfg.Name
}

// State is "closed", "half-open" or "open".
func (p *Policy) State() string {
	return p.breaker.State().String()
}

// Do runs op under the policy. The context passed to op is bounded by the
// per-attempt timeout.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Execute(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})

	return err
}

// Execute is Do for operations that return a value.
func Execute[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	res, err := p.breaker.Execute(func() (any, error) {
		return p.retry(ctx, func(ctx context.Context) (any, error) {
			return op(ctx)
		})
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return zero, fmt.Errorf("%s: %w", p.cfg.Name, ErrCircuitOpen)
	case err != nil:
		return zero, err
	}

	v, _ := res.(T)

	return v, nil
}

func (p *Policy) retry(ctx context.Context, op func(ctx context.Context) (any, error)) (any, error) {
	var (
		res     any
		attempt int
	)

	operation := func() error {
		attempt++

		var err error

		res, err = p.attempt(ctx, op)

		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case IsPermanent(err):
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, wait time.Duration) {
		p.log.WithFields(logrus.Fields{
			"policy":  p.cfg.Name,
			"attempt": attempt,
			"wait":    wait,
		}).WithError(err).Warn("operation failed, retrying")
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(p.newBackOff(), uint64(p.cfg.MaxAttempts-1)),
		ctx,
	)

	err := backoff.RetryNotify(operation, b, notify)

	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case IsPermanent(err):
		return nil, err
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrUnavailable, p.cfg.Name, attempt, err)
}

// attempt bounds a single call by the timeout even when op ignores its
// context; a late result is discarded.
func (p *Policy) attempt(ctx context.Context, op func(ctx context.Context) (any, error)) (any, error) {
	if p.cfg.Timeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	type result struct {
		v   any
		err error
	}

	done := make(chan result, 1)

	go func() {
		v, err := op(attemptCtx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %w", ErrTimeout, p.cfg.Timeout, r.err)
		}

		return r.v, r.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("%w after %s", ErrTimeout, p.cfg.Timeout)
	}
}

func (p *Policy) newBackOff() backoff.BackOff {
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     p.cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.cfg.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()

	return &fullJitter{next: exp}
}

// fullJitter draws each wait uniformly from [0, d] where d is the
// exponential delay for the attempt.
type fullJitter struct {
	next backoff.BackOff
}

func (j *fullJitter) NextBackOff() time.Duration {
	d := j.next.NextBackOff()
	if d == backoff.Stop || d <= 0 {
		return d
	}

	return rand.N(d + 1)
}

func (j *fullJitter) Reset() {
	j.next.Reset()
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err as non-retryable. Permanent failures are returned as
// is and do not count against the breaker.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
