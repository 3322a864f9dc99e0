package steamapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Gateway errors. Every error returned by the Gateway wraps exactly one of
// these, so callers can branch with errors.Is.
var (
	// ErrNotFound is returned for 404 responses: the identity is gone or
	// never existed. It is terminal for the call.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned for 401 and 403 responses: the resource
	// exists but is private or the key may not read it. It is terminal for the call.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited is returned when 429 responses persisted through every backoff.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient is returned when transport errors or 5xx responses
	// persisted through every retry. The work should be deferred, not discarded.
	ErrTransient = errors.New("transient failure")
)

// Outcome classifies the result of one Gateway call.
type Outcome int

const (
	// OutcomeOK means a 2xx response with a body.
	OutcomeOK Outcome = iota

	// OutcomeNotFound means a 404 response.
	OutcomeNotFound

	// OutcomeUnauthorized means a 401 or 403 response.
	OutcomeUnauthorized

	// OutcomeRateLimited means a 429 response.
	OutcomeRateLimited

	// OutcomeTransient means a transport error, timeout or any other status.
	OutcomeTransient
)

// String returns the label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Err returns the sentinel error for this outcome, or nil for OutcomeOK.
func (o Outcome) Err() error {
	switch o {
	case OutcomeOK:
		return nil
	case OutcomeNotFound:
		return ErrNotFound
	case OutcomeUnauthorized:
		return ErrUnauthorized
	case OutcomeRateLimited:
		return ErrRateLimited
	default:
		return ErrTransient
	}
}

// Terminal reports whether retrying the same call later cannot help.
func (o Outcome) Terminal() bool {
	return o == OutcomeNotFound || o == OutcomeUnauthorized
}

// outcomeForStatus maps an HTTP status code to an Outcome.
func outcomeForStatus(code int) Outcome {
	switch {
	case code >= 200 && code < 300:
		return OutcomeOK
	case code == http.StatusNotFound:
		return OutcomeNotFound
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return OutcomeUnauthorized
	case code == http.StatusTooManyRequests:
		return OutcomeRateLimited
	default:
		return OutcomeTransient
	}
}

// Error describes a failed Gateway call.
type Error struct {
	// Endpoint is the endpoint that was called.
	Endpoint Endpoint

	// StatusCode is the last HTTP status seen, or 0 for transport errors.
	StatusCode int

	// Outcome is the classification of the failure.
	Outcome Outcome

	// Attempts is the number of HTTP attempts made.
	Attempts int

	// Cause is the underlying transport or decode error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s after %d attempt(s)", e.Endpoint.Name(), e.Outcome, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the outcome sentinel and the cause.
func (e *Error) Unwrap() []error {
	errs := []error{e.Outcome.Err()}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Classify returns the Outcome carried by err.
// nil is OutcomeOK; errors not produced by the Gateway are OutcomeTransient.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Outcome
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, ErrRateLimited):
		return OutcomeRateLimited
	default:
		return OutcomeTransient
	}
}
