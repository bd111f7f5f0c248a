package worker

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/ppiankov/creatorcheck/internal/model"
)

// RetryPolicy bounds the attempts made for one record. Delays grow
// exponentially from BaseDelay, capped at MaxDelay, plus up to MaxJitter
// of random jitter.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxJitter   time.Duration

	// Timer replaces the wall clock between attempts; nil uses time.After
	Timer retry.Timer
}

// PolicyFromConfig builds a policy from the retry settings
func PolicyFromConfig(cfg model.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		MaxJitter:   cfg.MaxJitter,
	}
}

// Do calls fn until it succeeds, attempts run out or ctx is done. It returns
// the number of attempts made and the last error. Errors marked with
// retry.Unrecoverable and errors after ctx is done are not retried.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		// retry-go treats zero as "until success"
		attempts = 1
	}

	delayType := retry.BackOffDelay
	if p.MaxJitter > 0 {
		delayType = retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(p.BaseDelay),
		retry.MaxDelay(p.MaxDelay),
		retry.MaxJitter(p.MaxJitter),
		retry.DelayType(delayType),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && retry.IsRecoverable(err)
		}),
	}
	if p.Timer != nil {
		opts = append(opts, retry.WithTimer(p.Timer))
	}

	made := 0
	err := retry.Do(func() error {
		made++
		return fn(ctx)
	}, opts...)

	return made, err
}
