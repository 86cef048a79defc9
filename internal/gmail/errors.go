package gmail

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// ProviderError represents a failure reported by the remote provider.
type ProviderError struct {
	Op        string // adapter operation, e.g. "list_messages"
	Code      int    // HTTP status code, 0 when unknown
	Message   string
	Retryable bool // transient (429 or >=500); eligible for backoff retry
	RateLimit bool // specifically a quota/rate signal (429)
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("gmail %s: provider error %d: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("gmail %s: provider error: %s", e.Op, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// InvalidParameterError indicates a caller bug. It is never retried.
type InvalidParameterError struct {
	Param  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Param, e.Reason)
}

// NotFoundError indicates the referenced resource no longer exists.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// IsRetryable reports whether err is a transient provider failure that the
// adapter's retry loop may attempt again.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsRateLimit reports whether err carries the provider's rate-limit signal.
func IsRateLimit(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RateLimit
	}
	return false
}

// IsNotFound reports whether err means the resource does not exist.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsInvalidParameter reports whether err is a caller bug.
func IsInvalidParameter(err error) bool {
	var ip *InvalidParameterError
	return errors.As(err, &ip)
}

// classifyAPIError translates a google API error into the adapter's error
// types. 429 and >=500 are transient; 404 is a missing resource; 400 is a
// caller bug and must never be retried.
func classifyAPIError(op, resource, id string, err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		// Transport-level failures (connection reset, DNS) are transient.
		return &ProviderError{
			Op:        op,
			Message:   err.Error(),
			Retryable: true,
			Err:       err,
		}
	}

	switch {
	case apiErr.Code == http.StatusNotFound:
		return &NotFoundError{Resource: resource, ID: id}
	case apiErr.Code == http.StatusBadRequest:
		return &InvalidParameterError{Param: resource, Reason: apiErr.Message}
	case apiErr.Code == http.StatusTooManyRequests:
		return &ProviderError{
			Op:        op,
			Code:      apiErr.Code,
			Message:   apiErr.Message,
			Retryable: true,
			RateLimit: true,
			Err:       err,
		}
	case apiErr.Code >= http.StatusInternalServerError:
		return &ProviderError{
			Op:        op,
			Code:      apiErr.Code,
			Message:   apiErr.Message,
			Retryable: true,
			Err:       err,
		}
	default:
		return &ProviderError{
			Op:      op,
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Err:     err,
		}
	}
}

// retriesExhausted wraps the final transient error once the retry budget is
// spent. The result is no longer retryable, so callers treat it as fatal for
// that call site.
func retriesExhausted(op string, attempts int, last error) error {
	code := 0
	rateLimit := false
	var pe *ProviderError
	if errors.As(last, &pe) {
		code = pe.Code
		rateLimit = pe.RateLimit
	}
	return &ProviderError{
		Op:        op,
		Code:      code,
		Message:   fmt.Sprintf("giving up after %d attempts", attempts),
		Retryable: false,
		RateLimit: rateLimit,
		Err:       last,
	}
}
