package docstore

import (
	"errors"
	"fmt"
	"net/http"
)

// SubStatusConcurrencyConflict marks a 412 response as an optimistic-concurrency conflict.
// Handlers that retry must treat responses carrying this marker as permanent.
const SubStatusConcurrencyConflict = 999

var (
	ErrBadRequest          = errors.New("docstore: bad request")
	ErrNotFound            = errors.New("docstore: not found")
	ErrConflict            = errors.New("docstore: conflict")
	ErrPreconditionFailed  = errors.New("docstore: precondition failed")
	ErrConcurrencyConflict = errors.New("docstore: concurrency conflict")
	ErrThrottled           = errors.New("docstore: request rate too large")
	ErrNoMoreResults       = errors.New("docstore: no more results")
)

// StatusError is returned for every non-success response.
// It matches the package sentinels with errors.Is.
type StatusError struct {
	Op         Op
	StatusCode int
	SubStatus  int
	Message    string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("docstore: %s failed with status %d", e.Op, e.StatusCode)
	if e.SubStatus != 0 {
		msg += fmt.Sprintf(".%d", e.SubStatus)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is maps the status code (and sub status) onto the sentinels
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.StatusCode == http.StatusBadRequest
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrPreconditionFailed:
		return e.StatusCode == http.StatusPreconditionFailed
	case ErrConcurrencyConflict:
		return e.SubStatus == SubStatusConcurrencyConflict
	case ErrThrottled:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// ErrorFromResponse returns nil for success responses and a *StatusError otherwise
func ErrorFromResponse(op Op, resp *Response) error {
	if resp == nil {
		return fmt.Errorf("docstore: %s returned no response", op)
	}
	if resp.Success() {
		return nil
	}
	return &StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		SubStatus:  resp.SubStatus,
		Message:    resp.Message,
	}
}

// StatusCode extracts the status code of a *StatusError in err's chain, or 0
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
