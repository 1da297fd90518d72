// Package retry provides a bounded, fixed-delay retry combinator shared by
// every remote call.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// Policy bounds how often and how quickly a failed call is repeated.
type Policy struct {
	// MaxRetries is the number of attempts made after the first one.
	MaxRetries int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
	// OnRetry, if set, is called before each wait with the attempt that just failed.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy allows two retries one second apart.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 2, Delay: time.Second}
}

// Do runs op until it succeeds, fails with an error isTransient rejects,
// exhausts the policy, or ctx is done. It returns the number of attempts made
// and the last error. A nil isTransient treats every error as transient.
func Do(ctx context.Context, p Policy, isTransient func(error) bool, op func(context.Context) error) (int, error) {
	attempts := 0
	call := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if isTransient != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	// WithMaxRetries treats zero as unlimited.
	if p.MaxRetries <= 0 {
		err := call()
		if perm, ok := err.(*backoff.PermanentError); ok {
			err = perm.Err
		}
		return attempts, err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(p.MaxRetries)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempts, err, wait)
		}
	}
	err := backoff.RetryNotify(call, b, notify)
	return attempts, err
}
