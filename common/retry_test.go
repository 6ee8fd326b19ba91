package common

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, NewBackoff(time.Millisecond, 2*time.Millisecond), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 4, NewBackoff(time.Millisecond, 2*time.Millisecond), func(ctx context.Context) error {
		calls++
		return errors.Errorf("failure %d", calls)
	})
	assert.EqualError(t, err, "failure 4")
	assert.Equal(t, 4, calls)
}

func TestRetry_StopsOnPermanent(t *testing.T) {
	calls := 0
	sentinel := errors.New("do not retry")
	err := Retry(context.Background(), 5, NewBackoff(time.Millisecond, 2*time.Millisecond), func(ctx context.Context) error {
		calls++
		return AsPermanent(sentinel)
	})
	assert.Equal(t, sentinel, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, 10, NewBackoff(time.Second, time.Second), func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestAsPermanent_Nil(t *testing.T) {
	assert.Nil(t, AsPermanent(nil))
}
