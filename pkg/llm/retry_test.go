package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func testPolicy(s *recordingSleeper) RetryPolicy {
	p := DefaultRetryPolicy()
	p.Sleep = s.Sleep
	return p
}

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	sleeper := &recordingSleeper{}
	calls := 0

	err := testPolicy(sleeper).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &StatusError{Code: http.StatusServiceUnavailable}
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	sleeper := &recordingSleeper{}
	calls := 0
	var retried []int

	err := testPolicy(sleeper).Do(context.Background(), func(context.Context) error {
		calls++
		return &StatusError{Code: http.StatusTooManyRequests}
	}, func(attempt int, _ error) { retried = append(retried, attempt) })

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
	assert.ErrorIs(t, err, ErrRetriesExhausted)

	var re *RetryError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 3, re.Attempts)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
}

func TestRetryPolicy_NonRetryableStatus(t *testing.T) {
	sleeper := &recordingSleeper{}
	calls := 0

	err := testPolicy(sleeper).Do(context.Background(), func(context.Context) error {
		calls++
		return &StatusError{Code: http.StatusBadRequest}
	}, nil)

	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeper.waits)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
}

func TestRetryPolicy_ConnectionErrorsAreRetried(t *testing.T) {
	sleeper := &recordingSleeper{}
	calls := 0

	err := testPolicy(sleeper).Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return &ConnError{Err: errors.New("connection refused")}
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicy_OtherErrorsAreNotRetried(t *testing.T) {
	calls := 0
	boom := errors.New("bad json")

	err := testPolicy(&recordingSleeper{}).Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	}, nil)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_SleepInterrupted(t *testing.T) {
	p := DefaultRetryPolicy()
	p.Sleep = func(context.Context, time.Duration) error { return context.Canceled }

	err := p.Do(context.Background(), func(context.Context) error {
		return &StatusError{Code: http.StatusBadGateway}
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
}
