// Package httpx provides the shared outbound HTTP fabric: a host-partitioned
// sliding-window rate limiter, Retry-After cooldowns, and exponential backoff
// retry. It is the only retry layer in the system; engines never retry above
// it.
package httpx

import (
	"errors"
	"fmt"
)

// ClientError is a terminal 4xx (other than 429). The request is wrong; no
// retry will help.
type ClientError struct {
	StatusCode int
	Host       string
	Body       string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("venue client error: %s returned %d", e.Host, e.StatusCode)
}

// TransientError is a 5xx or 429 that survived all retry attempts.
type TransientError struct {
	StatusCode int
	Host       string
	Attempts   int
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("venue transient error: %s returned %d after %d attempts", e.Host, e.StatusCode, e.Attempts)
}

// UnreachableError is a network-level failure that survived all retry
// attempts.
type UnreachableError struct {
	Host     string
	Attempts int
	Err      error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("venue unreachable: %s after %d attempts: %v", e.Host, e.Attempts, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// IsTerminal reports whether err is a ClientError, i.e. retrying or waiting
// will not produce data this tick.
func IsTerminal(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}
