package pipeline

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dAudit/lib/docstore"
	"github.com/ValentinKolb/dAudit/lib/settings"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

var log = logger.GetLogger("pipeline")

// --------------------------------------------------------------------------
// Throttling Handler
// --------------------------------------------------------------------------

// ThrottlingHandler retries requests that failed for a transient reason with exponential
// backoff and randomized jitter.
//
// A request is retried when the inner handler returns an error (other than a context error),
// or a non-success status that is not permanent. Permanent statuses are 400, 404, 409, 412
// and every response carrying the concurrency conflict marker. WithRetryPolicy(RetryEveryFailure)
// retries every non-success status except the marked conflicts.
//
// The delay before retry n (1-based) is |base^n ± j| milliseconds, where base is
// ExponentialRetryInMilliseconds and j is drawn uniformly from the inclusive range spanned by
// the two randomized thresholds, with a random sign. After MaximumExponentialRetries retries a
// *TransientError is returned, the request was then sent MaximumExponentialRetries+1 times.
//
// Thread-safety: a single handler serves any number of concurrent requests, each request
// sleeps only on its own goroutine.
type ThrottlingHandler struct {
	next      docstore.Handler
	settings  settings.ThrottleSettings
	intN      func(n int) int
	sleep     func(ctx context.Context, d time.Duration) error
	retryable func(resp *docstore.Response, err error) bool
}

// ThrottlingOption configures a ThrottlingHandler
type ThrottlingOption func(h *ThrottlingHandler)

// WithRandom replaces the random source, intN(n) must return a value in [0, n)
func WithRandom(intN func(n int) int) ThrottlingOption {
	return func(h *ThrottlingHandler) { h.intN = intN }
}

// WithSleep replaces the context aware sleep between attempts
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ThrottlingOption {
	return func(h *ThrottlingHandler) { h.sleep = sleep }
}

// WithRetryPolicy replaces Retryable as the decision whether a result is attempted again
func WithRetryPolicy(retryable func(resp *docstore.Response, err error) bool) ThrottlingOption {
	return func(h *ThrottlingHandler) { h.retryable = retryable }
}

// NewThrottlingHandler wraps next
func NewThrottlingHandler(next docstore.Handler, s settings.ThrottleSettings, opts ...ThrottlingOption) *ThrottlingHandler {
	h := &ThrottlingHandler{
		next:      next,
		settings:  s,
		intN:      rand.IntN,
		sleep:     sleepContext,
		retryable: Retryable,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Throttling returns the handler as a middleware for docstore.Chain
func Throttling(s settings.ThrottleSettings, opts ...ThrottlingOption) docstore.Middleware {
	return func(next docstore.Handler) docstore.Handler {
		return NewThrottlingHandler(next, s, opts...)
	}
}

// Send implements docstore.Handler
func (h *ThrottlingHandler) Send(ctx context.Context, req *docstore.Request) (*docstore.Response, error) {
	maxRetries := int(h.settings.MaximumExponentialRetries())

	for attempt := 0; ; attempt++ {
		resp, err := h.next.Send(ctx, req)
		if !h.retryable(resp, err) {
			return resp, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if attempt >= maxRetries {
			metrics.GetOrCreateCounter(fmt.Sprintf(`daudit_pipeline_retries_exhausted_total{op=%q}`, req.Op)).Inc()
			terr := &TransientError{Attempts: attempt + 1, LastStatus: statusOf(resp), Err: err}
			log.Errorf("Giving up on %s in %s/%s (partition %q): %v", req.Op, req.Database, req.Collection, req.PartitionKey, terr)
			return nil, terr
		}

		retry := attempt + 1
		delay := h.Backoff(retry)
		metrics.GetOrCreateCounter(fmt.Sprintf(`daudit_pipeline_retries_total{op=%q}`, req.Op)).Inc()
		log.Warningf("Backend rejected %s (status %d, %v), this is the %s attempt, retrying in %s",
			req.Op, statusOf(resp), err, Ordinal(retry), delay)

		if err := h.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// Backoff returns the delay before the given retry (1-based)
func (h *ThrottlingHandler) Backoff(retry int) time.Duration {
	lo := h.settings.RandomizedMinThresholdInMilliseconds()
	hi := h.settings.RandomizedMaxThresholdInMilliseconds()
	if lo > hi {
		lo, hi = hi, lo
	}

	jitter := lo + h.intN(hi-lo+1)
	if h.intN(2) == 0 {
		jitter = -jitter
	}

	ms := math.Abs(math.Pow(float64(h.settings.ExponentialRetryInMilliseconds()), float64(retry)) + float64(jitter))
	return millis(ms)
}

// Retryable reports whether a result of the inner handler is worth another attempt
func Retryable(resp *docstore.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return true
	}
	if resp.Success() || resp.SubStatus == docstore.SubStatusConcurrencyConflict {
		return false
	}
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusPreconditionFailed:
		return false
	}
	return true
}

// RetryEveryFailure retries every error and non-success status, only context errors and
// marked concurrency conflicts are final
func RetryEveryFailure(resp *docstore.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return resp == nil || !(resp.Success() || resp.SubStatus == docstore.SubStatusConcurrencyConflict)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// millis converts milliseconds to a Duration, saturating at the largest Duration
func millis(ms float64) time.Duration {
	d := ms * float64(time.Millisecond)
	if math.IsNaN(d) || d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func statusOf(resp *docstore.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

// Ordinal renders 1 as "1st", 2 as "2nd", 11 as "11th" and so on
func Ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
