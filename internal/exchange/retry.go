package exchange

import (
	"context"
	"time"
)

// RetryPolicy bounds how often a throttled or transport-failed call is
// re-attempted. All other outcomes terminate on the first attempt.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Do runs fn until it returns a non-retryable result, the attempt budget is
// spent, or ctx is cancelled. The last result is returned either way.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) Result) Result {
	p = p.normalized()

	var result Result
	delay := p.BaseDelay
	for attempt := 1; ; attempt++ {
		result = fn(ctx)
		result.Attempts = attempt
		if !result.Outcome.Retryable() || attempt >= p.MaxAttempts {
			return result
		}

		select {
		case <-ctx.Done():
			result.Outcome = OutcomeTransportError
			result.Message = ctx.Err().Error()
			return result
		case <-time.After(delay):
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
