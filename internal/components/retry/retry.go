// Package retry runs an operation under a bounded retry policy. Each call site
// (captcha answers, login attempts, mailbox polls) owns its own Policy.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how often and how fast an operation is retried.
type Policy struct {
	// MaxAttempts counts the first attempt, values below 1 mean 1.
	MaxAttempts int
	// Delay is the constant wait between two attempts.
	Delay time.Duration
}

// Stop marks err as final, the policy will not retry after it.
func Stop(err error) error {
	return backoff.Permanent(err)
}

// Do calls op until it returns nil, returns an error wrapped with Stop, the
// attempts are used up or ctx is done. op receives the 1-based attempt
// number. The returned error is the last one op produced.
func (p Policy) Do(ctx context.Context, op func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	b = backoff.WithMaxRetries(b, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		return op(attempt)
	}, b)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}
