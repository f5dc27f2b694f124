package reddit

import (
	"errors"
	"fmt"
)

// AuthError means the token exchange failed or a request came back 401
// even after re-authenticating. Fatal to the current scan or stream
// attempt.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("reddit authentication failed (status %d): %s", e.StatusCode, e.Message)
}

// NotFoundError means the subreddit does not exist. Permanently
// skippable for the rest of the run.
type NotFoundError struct {
	Subreddit string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("subreddit r/%s not found", e.Subreddit)
}

// ForbiddenError means the subreddit is private, quarantined or the
// client is blocked. Permanently skippable for the rest of the run.
type ForbiddenError struct {
	Subreddit string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("access to r/%s is forbidden", e.Subreddit)
}

// RateLimitedError means the upstream returned 429. Retryable after a
// cooldown.
type RateLimitedError struct {
	Subreddit string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited while requesting r/%s", e.Subreddit)
}

// TransientError covers 5xx responses, timeouts and network failures.
// Retryable with backoff.
type TransientError struct {
	Subreddit  string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient error for r/%s: %v", e.Subreddit, e.Err)
	}
	return fmt.Sprintf("transient error for r/%s: status %d", e.Subreddit, e.StatusCode)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Retryable reports whether err is worth retrying with backoff: rate
// limits, 5xx responses, timeouts and connection errors.
func Retryable(err error) bool {
	var rl *RateLimitedError
	var tr *TransientError
	return errors.As(err, &rl) || errors.As(err, &tr)
}

// Permanent reports whether err marks the subreddit as skippable for
// the remainder of the run.
func Permanent(err error) bool {
	var nf *NotFoundError
	var fb *ForbiddenError
	return errors.As(err, &nf) || errors.As(err, &fb)
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// classifyStatus maps a non-200 listing response to the error taxonomy.
func classifyStatus(subreddit string, status int, body string) error {
	switch {
	case status == 401:
		return &AuthError{StatusCode: status, Message: body}
	case status == 403:
		return &ForbiddenError{Subreddit: subreddit}
	case status == 404:
		return &NotFoundError{Subreddit: subreddit}
	case status == 429:
		return &RateLimitedError{Subreddit: subreddit}
	case status >= 500:
		return &TransientError{Subreddit: subreddit, StatusCode: status}
	default:
		return fmt.Errorf("reddit API returned status %d for r/%s", status, subreddit)
	}
}
