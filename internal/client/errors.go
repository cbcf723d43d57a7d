package client

import "fmt"

// ErrTransient is a failure worth retrying later: the gateway was unreachable,
// kept answering 5xx, or kept rate limiting.
type ErrTransient struct {
	Op  string
	Err error
}

func (e ErrTransient) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e ErrTransient) Unwrap() error { return e.Err }

// ErrRateLimited indicates retries were exhausted on 429 responses
type ErrRateLimited struct {
	RetryAfter int
}

func (e ErrRateLimited) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %d seconds", e.RetryAfter)
	}
	return "rate limited"
}

// APIError is a non-retryable gateway response. Detail is already translated
// for display.
type APIError struct {
	Status int
	Detail string
}

func (e APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Detail)
}
