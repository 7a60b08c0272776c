package slackapi

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotInChannel    = errors.New("not authorized for channel")
	ErrAuthFailed      = errors.New("authentication failed")
	ErrChannelNotFound = errors.New("channel not found")
)

// RateLimitedError is the throttling outcome of a remote call. It carries the
// delay the server asked for and is the only error the executor retries.
type RateLimitedError struct {
	Method     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s", e.Method, e.RetryAfter)
}

// APIError is an ok=false response from the Web API.
type APIError struct {
	Method     string
	StatusCode int
	Code       string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 && e.StatusCode != 200 {
		return fmt.Sprintf("%s: http %d %s", e.Method, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Method, e.Code)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotInChannel:
		return e.Code == "not_in_channel"
	case ErrAuthFailed:
		switch e.Code {
		case "invalid_auth", "not_authed", "account_inactive", "token_revoked", "token_expired":
			return true
		}
		return e.StatusCode == 401
	case ErrChannelNotFound:
		return e.Code == "channel_not_found"
	}
	return false
}
