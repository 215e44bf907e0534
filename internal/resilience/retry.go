// Package resilience retries remote record store operations with backoff.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/marginboard/internal/shared"
)

// Class is how a failure is treated by the retry loop.
type Class string

const (
	ClassTerminal    Class = "terminal"
	ClassRateLimited Class = "rate_limited"
	ClassTransient   Class = "transient"
)

// rateLimitFactor doubles the standard backoff for 429 responses.
const rateLimitFactor = 2

// Classify inspects the status code carried by err.
func Classify(err error) Class {
	status := shared.StatusOf(err)
	switch {
	case status == 429:
		return ClassRateLimited
	case status >= 400 && status < 500:
		return ClassTerminal
	default:
		return ClassTransient
	}
}

// Policy configures attempts and delays.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxBackoff  time.Duration
	// AttemptTimeout bounds a single attempt. Zero disables it.
	AttemptTimeout time.Duration
}

// DefaultPolicy is used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxBackoff: 8 * time.Second, AttemptTimeout: 15 * time.Second}
}

// Validate rejects policies that could loop zero times or never back off.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return shared.NewConfigError("RETRY_MAX_ATTEMPTS", "must be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return shared.NewConfigError("RETRY_BASE_DELAY", "must not be negative, got %s", p.BaseDelay)
	}
	if p.MaxBackoff < p.BaseDelay {
		return shared.NewConfigError("RETRY_MAX_BACKOFF", "must be at least RETRY_BASE_DELAY (%s < %s)", p.MaxBackoff, p.BaseDelay)
	}
	if p.AttemptTimeout < 0 {
		return shared.NewConfigError("RETRY_ATTEMPT_TIMEOUT", "must not be negative, got %s", p.AttemptTimeout)
	}
	return nil
}

// Delay returns the wait before the retry that follows failed attempt n (1-based).
func (p Policy) Delay(class Class, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := time.Duration(1)
	if class == ClassRateLimited {
		factor = rateLimitFactor
	}
	delay := p.BaseDelay * factor
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// RetryFunc is invoked before each retry with the failed attempt number.
type RetryFunc func(attempt int, err error)

// Observer receives retry decisions, typically a metrics counter.
type Observer func(class Class)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Executor runs operations under a Policy.
type Executor struct {
	policy   Policy
	sleep    Sleeper
	logger   *slog.Logger
	observer Observer
}

// Option customises an Executor.
type Option func(*Executor)

// WithSleeper replaces the wall-clock wait between attempts.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) { e.sleep = s }
}

// WithLogger logs retry decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithObserver reports every retried failure.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// NewExecutor validates policy and builds an Executor.
func NewExecutor(policy Policy, opts ...Option) (*Executor, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	e := &Executor{policy: policy, sleep: sleepContext}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Policy returns the executor's policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("resilience: gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do runs op until it succeeds, fails terminally or attempts run out.
func Do[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error), onRetry RetryFunc) (T, error) {
	var zero T
	if e == nil {
		return zero, shared.NewConfigError("RETRY_MAX_ATTEMPTS", "executor not configured")
	}
	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		result, err := runAttempt(ctx, e.policy.AttemptTimeout, op)
		if err == nil {
			return result, nil
		}
		lastErr = err

		class := Classify(err)
		if class == ClassTerminal {
			return zero, err
		}
		if attempt == e.policy.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return zero, fmt.Errorf("resilience: %w: %w", ctx.Err(), lastErr)
		}

		delay := e.policy.Delay(class, attempt)
		if e.observer != nil {
			e.observer(class)
		}
		if e.logger != nil {
			e.logger.Warn("retrying store operation",
				slog.Int("attempt", attempt),
				slog.String("class", string(class)),
				slog.Duration("delay", delay),
				slog.Any("error", err))
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if err := e.sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("resilience: %w: %w", err, lastErr)
		}
	}
	return zero, &ExhaustedError{Attempts: e.policy.MaxAttempts, Err: lastErr}
}

// Run is Do for operations without a result.
func Run(ctx context.Context, e *Executor, op func(context.Context) error, onRetry RetryFunc) error {
	_, err := Do(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, onRetry)
	return err
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsExhausted reports whether err came from running out of attempts.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}
