package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrInvalidLimit      = errors.New("invalid limit")
	ErrInvalidInterval   = errors.New("invalid interval")
	ErrKeyRequired       = errors.New("key is required")
	ErrStoreRequired     = errors.New("store is required")
	ErrUnknownDomain     = errors.New("unknown rate limit domain")
)

// ExceededError is returned by Guard when a domain limit is hit.
// It matches ErrRateLimitExceeded with errors.Is.
type ExceededError struct {
	Domain     Domain
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s: %s, retry after %ds", ErrRateLimitExceeded, e.Domain, e.RetryAfterSeconds())
}

func (e *ExceededError) Unwrap() error { return ErrRateLimitExceeded }

// RetryAfterSeconds rounds up so clients never retry early.
func (e *ExceededError) RetryAfterSeconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}
