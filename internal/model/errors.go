package model

import (
	"errors"
	"fmt"
	"time"
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// FetchErrorKind classifies why a source fetch produced no postings.
type FetchErrorKind string

const (
	FetchTimeout     FetchErrorKind = "timeout"
	FetchUnreachable FetchErrorKind = "unreachable"
	FetchBadResponse FetchErrorKind = "bad_response"
	FetchEmpty       FetchErrorKind = "empty"
)

// FetchError is the only error shape that crosses the fetch boundary.
type FetchError struct {
	SourceID string
	Kind     FetchErrorKind
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source %s: %s: %v", e.SourceID, e.Kind, e.Err)
	}
	return fmt.Sprintf("source %s: %s", e.SourceID, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchErrorKindOf returns the kind of a *FetchError anywhere in err's chain,
// or "" when err is not a fetch error.
func FetchErrorKindOf(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// ErrPersistenceUnavailable means the store cannot be reached at all. It is
// the only error that halts a batch.
var ErrPersistenceUnavailable = errors.New("persistence layer unavailable")

// ErrMalformedResponse marks a response that arrived but could not be
// understood. Repeating the request will not help.
var ErrMalformedResponse = errors.New("malformed response")

// ErrLocked is returned by a RunLocker when another run holds the user.
var ErrLocked = errors.New("run already in progress")
