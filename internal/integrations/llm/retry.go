package llm

import (
	"context"
	"errors"
	"time"

	"trialdesk/internal/logging"
)

const maxRetryBackoff = 30 * time.Second

type retryingGenerator struct {
	next       TextGenerator
	maxRetries int
	backoff    time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// WithRetry retries network and rate-limit failures up to maxRetries times
// with exponential backoff. Rejected and malformed replies are returned at once.
func WithRetry(next TextGenerator, maxRetries int, backoff time.Duration) TextGenerator {
	if maxRetries <= 0 {
		return next
	}
	return &retryingGenerator{next: next, maxRetries: maxRetries, backoff: backoff, sleep: sleepContext}
}

func (r *retryingGenerator) Generate(ctx context.Context, prompt, input string) (string, error) {
	delay := r.backoff
	for attempt := 0; ; attempt++ {
		reply, err := r.next.Generate(ctx, prompt, input)
		if err == nil {
			return reply, nil
		}
		var se *ServiceError
		if !errors.As(err, &se) || !se.Retryable() || attempt >= r.maxRetries {
			return "", err
		}
		logging.L().Infof("llm retry attempt=%d/%d kind=%s delay=%s", attempt+1, r.maxRetries, se.Kind, delay)
		if err := r.sleep(ctx, delay); err != nil {
			return "", err
		}
		delay *= 2
		if delay > maxRetryBackoff {
			delay = maxRetryBackoff
		}
	}
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
