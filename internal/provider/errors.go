package provider

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// TransientError marks a failure worth retrying: rate limits, server errors,
// timeouts, and empty results from polling APIs.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transient provider error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transient provider error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a failure that retrying cannot fix: bad payloads,
// authentication failures, unsupported models.
type FatalError struct {
	Status int
	Err    error
}

func (e *FatalError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fatal provider error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("fatal provider error: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// ExhaustedError reports a consumed retry budget. The last underlying error
// is preserved for diagnosis.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry budget exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// ErrEmptyResult marks a provider call that completed without producing
// output. Treated as transient: polling APIs do this while work is pending.
var ErrEmptyResult = errors.New("provider returned empty result")

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	if errors.Is(err, ErrEmptyResult) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// IsFatal reports whether err must abort the run instead of skipping the item.
func IsFatal(err error) bool {
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return true
	}
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}

// classifyStatus converts an HTTP status into the transient/fatal taxonomy.
// 429 and every 5xx are transient; any other non-2xx is fatal.
func classifyStatus(status int, body string) error {
	err := fmt.Errorf("status %d: %s", status, body)
	if status == http.StatusTooManyRequests || status >= 500 {
		return &TransientError{Status: status, Err: err}
	}
	return &FatalError{Status: status, Err: err}
}
