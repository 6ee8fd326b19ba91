package common

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
)

type (
	// Permanent represents an error which should not be retried
	Permanent struct {
		Err error
	}
)

// Error implementation for Permanent
func (p *Permanent) Error() string {
	return p.Err.Error()
}

// Unwrap returns the wrapped error
func (p *Permanent) Unwrap() error {
	return p.Err
}

// AsPermanent marks err so that Retry gives up on it immediately
func AsPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &Permanent{Err: err}
}

// NewBackoff builds the exponential backoff used between retry attempts
func NewBackoff(min, max time.Duration) *backoff.Backoff {
	return &backoff.Backoff{
		Min:    min,
		Max:    max,
		Factor: 2,
		Jitter: true,
	}
}

// Retry will attempt an action up to times attempts, sleeping according to b between attempts. It stops early when
// the action returns a Permanent error or when ctx is done; the last error seen is returned.
func Retry(ctx context.Context, times int, b *backoff.Backoff, action func(ctx context.Context) error) error {
	var lastErr error
	for i := 0; i < times; i++ {
		err := action(ctx)
		if err == nil {
			return nil
		}

		var permanent *Permanent
		if errors.As(err, &permanent) {
			return permanent.Err
		}
		lastErr = err

		if i == times-1 {
			break
		}

		delay := b.Duration()
		select {
		case <-ctx.Done():
			return errors.Wrap(lastErr, ctx.Err().Error())
		case <-time.After(delay):
		}
	}
	return lastErr
}
