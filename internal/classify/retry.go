package classify

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/chadiek/callscreen/internal/metrics"
)

// withRetry runs fn, retrying only rate-limit failures with exponential
// backoff. Once retries are exhausted the last rate-limit error is returned.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	maxRetries := c.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := c.InitialBackoff
	sleep := c.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrRateLimited) || attempt >= maxRetries {
			return err
		}
		log.Printf("classify: %s rate limited, retry %d/%d in %s", op, attempt+1, maxRetries, delay)
		metrics.RateLimitRetries.Inc()
		if serr := sleep(ctx, delay); serr != nil {
			return serr
		}
		delay *= 2
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
