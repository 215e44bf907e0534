package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/marginboard/internal/shared"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func newTestExecutor(t *testing.T, policy Policy) (*Executor, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	exec, err := NewExecutor(policy, WithSleeper(rec.sleep))
	require.NoError(t, err)
	return exec, rec
}

func storeErr(status int) error {
	return shared.NewStoreError("update", status, fmt.Errorf("status %d", status))
}

func TestDoTerminalErrorIsNotRetried(t *testing.T) {
	exec, rec := newTestExecutor(t, Policy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, MaxBackoff: time.Second})

	calls := 0
	retries := 0
	_, err := Do(context.Background(), exec, func(ctx context.Context) (int, error) {
		calls++
		return 0, storeErr(http.StatusNotFound)
	}, func(int, error) { retries++ })

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, retries)
	assert.Empty(t, rec.delays)
	assert.Equal(t, http.StatusNotFound, shared.StatusOf(err))
	assert.False(t, IsExhausted(err))
}

func TestDoRateLimitedThenSucceeds(t *testing.T) {
	exec, rec := newTestExecutor(t, Policy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, MaxBackoff: 10 * time.Second})

	calls := 0
	var attempts []int
	result, err := Do(context.Background(), exec, func(ctx context.Context) (string, error) {
		calls++
		if calls <= 3 {
			return "", storeErr(http.StatusTooManyRequests)
		}
		return "saved", nil
	}, func(attempt int, err error) {
		attempts = append(attempts, attempt)
		assert.Equal(t, http.StatusTooManyRequests, shared.StatusOf(err))
	})

	require.NoError(t, err)
	assert.Equal(t, "saved", result)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []int{1, 2, 3}, attempts)
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}, rec.delays)
}

func TestDoTransientExhaustsAndReturnsLastError(t *testing.T) {
	exec, rec := newTestExecutor(t, Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxBackoff: 150 * time.Millisecond})

	calls := 0
	_, err := Do(context.Background(), exec, func(ctx context.Context) (int, error) {
		calls++
		if calls == 3 {
			return 0, storeErr(http.StatusBadGateway)
		}
		return 0, errors.New("connection reset")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, IsExhausted(err))
	assert.Equal(t, http.StatusBadGateway, shared.StatusOf(err), "the last observed error is surfaced")
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 150 * time.Millisecond}, rec.delays)
}

func TestDoSingleAttempt(t *testing.T) {
	exec, rec := newTestExecutor(t, Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxBackoff: time.Millisecond})

	err := Run(context.Background(), exec, func(ctx context.Context) error {
		return errors.New("boom")
	}, func(int, error) { t.Fatal("no retry expected") })

	require.Error(t, err)
	assert.EqualError(t, errors.Unwrap(err), "boom")
	assert.Empty(t, rec.delays)
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec, err := NewExecutor(Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxBackoff: time.Millisecond},
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}))
	require.NoError(t, err)

	calls := 0
	opErr := errors.New("timeout")
	err = Run(ctx, exec, func(ctx context.Context) error {
		calls++
		return opErr
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, opErr)
}

func TestDoAttemptTimeout(t *testing.T) {
	exec, _ := newTestExecutor(t, Policy{MaxAttempts: 2, BaseDelay: 0, MaxBackoff: 0, AttemptTimeout: 10 * time.Millisecond})

	calls := 0
	err := Run(context.Background(), exec, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewExecutorRejectsInvalidPolicy(t *testing.T) {
	_, err := NewExecutor(Policy{MaxAttempts: 0, BaseDelay: time.Second, MaxBackoff: time.Second})
	var cfgErr *shared.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "RETRY_MAX_ATTEMPTS", cfgErr.Key)

	_, err = NewExecutor(Policy{MaxAttempts: 2, BaseDelay: time.Second, MaxBackoff: time.Millisecond})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "RETRY_MAX_BACKOFF", cfgErr.Key)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassTerminal, Classify(storeErr(400)))
	assert.Equal(t, ClassTerminal, Classify(storeErr(401)))
	assert.Equal(t, ClassTerminal, Classify(storeErr(409)))
	assert.Equal(t, ClassRateLimited, Classify(storeErr(429)))
	assert.Equal(t, ClassTransient, Classify(storeErr(500)))
	assert.Equal(t, ClassTransient, Classify(storeErr(503)))
	assert.Equal(t, ClassTransient, Classify(errors.New("dial tcp: refused")))
	assert.Equal(t, ClassTransient, Classify(fmt.Errorf("wrapped: %w", storeErr(0))))
	assert.Equal(t, ClassTerminal, Classify(fmt.Errorf("wrapped: %w", storeErr(403))))
}

func TestPolicyDelayCaps(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxBackoff: 5 * time.Second}
	assert.Equal(t, time.Second, p.Delay(ClassTransient, 1))
	assert.Equal(t, 2*time.Second, p.Delay(ClassTransient, 2))
	assert.Equal(t, 4*time.Second, p.Delay(ClassTransient, 3))
	assert.Equal(t, 5*time.Second, p.Delay(ClassTransient, 4))
	assert.Equal(t, 2*time.Second, p.Delay(ClassRateLimited, 1))
	assert.Equal(t, 4*time.Second, p.Delay(ClassRateLimited, 2))
	assert.Equal(t, 5*time.Second, p.Delay(ClassRateLimited, 3))
}
