package pipeline

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dAudit/lib/docstore"
	"net/http"
)

// ErrRetriesExhausted matches every *TransientError
var ErrRetriesExhausted = errors.New("retries exhausted")

// TransientError reports that a request still failed for a transient reason after the
// configured number of retries
type TransientError struct {
	Attempts   int   // number of times the request was sent
	LastStatus int   // status code of the last response, 0 if there was none
	Err        error // error of the last attempt, nil if it produced a response
}

func (e *TransientError) Error() string {
	msg := fmt.Sprintf("failed to persist after %s attempt", Ordinal(e.Attempts))
	if e.LastStatus != 0 {
		msg += fmt.Sprintf(", last status %d", e.LastStatus)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransientError) Unwrap() error { return e.Err }

// Is matches ErrRetriesExhausted, and docstore.ErrThrottled if the last response was a 429
func (e *TransientError) Is(target error) bool {
	switch target {
	case ErrRetriesExhausted:
		return true
	case docstore.ErrThrottled:
		return e.LastStatus == http.StatusTooManyRequests
	}
	return false
}
