package reasoner

import (
	"context"
	"errors"
	"time"
)

// timeoutClient bounds every evaluation. Deadline expiry is reported as
// UNAVAILABLE so the pipeline degrades instead of failing the application.
type timeoutClient struct {
	inner   Client
	timeout time.Duration
}

// WithTimeout wraps a client with a per-evaluation deadline.
func WithTimeout(inner Client, timeout time.Duration) Client {
	if timeout <= 0 {
		return inner
	}
	return &timeoutClient{inner: inner, timeout: timeout}
}

func (t *timeoutClient) Evaluate(ctx context.Context, req Request) Result {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	res := t.inner.Evaluate(ctx, req)
	if res.Status == StatusError && (errors.Is(res.Err, context.DeadlineExceeded) || ctx.Err() != nil) {
		return Unavailable(res.Err)
	}
	return res
}
