package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"pqcall/internal/domain"
	"pqcall/internal/resilience"
)

var errDownstream = errors.New("downstream boom")

func testBreaker(mock *clock.Mock) *resilience.Breaker {
	return resilience.NewBreaker("test_op", resilience.BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
		CallTimeout:      time.Second,
	}, mock, nil)
}

func failN(t *testing.T, b *resilience.Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := b.Execute(context.Background(), func(context.Context) error {
			return errDownstream
		})
		require.ErrorIs(t, err, errDownstream)
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	mock := clock.NewMock()
	b := testBreaker(mock)

	failN(t, b, 3)
	require.Equal(t, resilience.StateOpen, b.Stats().State)

	// Open circuit rejects immediately without invoking the function.
	invoked := false
	err := b.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})
	require.Equal(t, domain.CodeServiceUnavailable, domain.FailureCode(err))
	require.False(t, invoked)
}

func TestBreaker_SuccessResetsClosedCounter(t *testing.T) {
	mock := clock.NewMock()
	b := testBreaker(mock)

	failN(t, b, 2)
	require.NoError(t, b.Execute(context.Background(), func(context.Context) error { return nil }))

	// The two earlier failures no longer count.
	failN(t, b, 2)
	require.Equal(t, resilience.StateClosed, b.Stats().State)
}

func TestBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	mock := clock.NewMock()
	b := testBreaker(mock)
	failN(t, b, 3)

	// Before the recovery timeout, still rejecting.
	mock.Add(29 * time.Second)
	err := b.Execute(context.Background(), func(context.Context) error { return nil })
	require.Equal(t, domain.CodeServiceUnavailable, domain.FailureCode(err))

	// After the timeout one trial is admitted; its failure reopens the
	// circuit for a fresh recovery period.
	mock.Add(2 * time.Second)
	failN(t, b, 1)
	require.Equal(t, resilience.StateOpen, b.Stats().State)

	invoked := false
	err = b.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})
	require.Equal(t, domain.CodeServiceUnavailable, domain.FailureCode(err))
	require.False(t, invoked)
}

func TestBreaker_HalfOpenClosesAfterSuccesses(t *testing.T) {
	mock := clock.NewMock()
	b := testBreaker(mock)
	failN(t, b, 3)
	mock.Add(31 * time.Second)

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Execute(context.Background(), func(context.Context) error { return nil }))
	}
	stats := b.Stats()
	require.Equal(t, resilience.StateClosed, stats.State)
	require.Equal(t, 0, stats.FailureCount)
}

func TestBreaker_TimeoutCountsAsFailure(t *testing.T) {
	mock := clock.NewMock()
	b := resilience.NewBreaker("slow_op", resilience.BreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		CallTimeout:      20 * time.Millisecond,
	}, mock, nil)

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done() // never returns on its own
		return ctx.Err()
	})
	require.Equal(t, domain.CodeTimeout, domain.FailureCode(err))
	require.Equal(t, resilience.StateOpen, b.Stats().State)
}

func TestBreaker_ForceOverrides(t *testing.T) {
	mock := clock.NewMock()
	b := testBreaker(mock)

	b.ForceOpen()
	err := b.Execute(context.Background(), func(context.Context) error { return nil })
	require.Equal(t, domain.CodeServiceUnavailable, domain.FailureCode(err))

	b.ForceClose()
	require.NoError(t, b.Execute(context.Background(), func(context.Context) error { return nil }))
	require.Equal(t, resilience.StateClosed, b.Stats().State)
}

func TestBreakerSet_LazyPerName(t *testing.T) {
	mock := clock.NewMock()
	set := resilience.NewBreakerSet(resilience.BreakerConfig{FailureThreshold: 1}, mock, nil)

	require.Error(t, set.Execute(context.Background(), "validate_token", func(context.Context) error {
		return errDownstream
	}))

	stats := set.Stats()
	require.Len(t, stats, 1)
	require.Equal(t, resilience.StateOpen, stats["validate_token"].State)

	// A different operation gets its own closed breaker.
	require.NoError(t, set.Execute(context.Background(), "create_session", func(context.Context) error {
		return nil
	}))
	require.Equal(t, resilience.StateClosed, set.Get("create_session").Stats().State)
}
