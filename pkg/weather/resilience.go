package weather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// RetryPolicy controls exponential backoff between attempts.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var (
	ErrRateLimited  = errors.New("weather provider rate limited")
	ErrServerStatus = errors.New("weather provider server error")
	ErrBadStatus    = errors.New("weather provider returned unexpected status")
	ErrCircuitOpen  = errors.New("weather provider circuit open")
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.InitialInterval << attempt
	if p.MaxInterval > 0 && (d > p.MaxInterval || d <= 0) {
		d = p.MaxInterval
	}
	return d
}

// getWithRetry issues GET url through the breaker, retrying transient failures.
// 4xx responses other than 429 are not retried.
func getWithRetry(ctx context.Context, client HTTPDoer, cb *gobreaker.CircuitBreaker, policy RetryPolicy, url string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		result, err := cb.Execute(func() (interface{}, error) {
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			if err := statusError(resp.StatusCode); err != nil {
				resp.Body.Close()
				return nil, err
			}
			return resp, nil
		})
		if err == nil {
			return result.(*http.Response), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		if errors.Is(err, ErrBadStatus) || ctx.Err() != nil || attempt >= policy.MaxRetries {
			return nil, err
		}

		timer := time.NewTimer(policy.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func statusError(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return fmt.Errorf("%w: %d", ErrServerStatus, code)
	case code < 200 || code >= 300:
		return fmt.Errorf("%w: %d", ErrBadStatus, code)
	default:
		return nil
	}
}
