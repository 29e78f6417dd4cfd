package pipeline

import (
	"context"
	"github.com/ValentinKolb/dAudit/lib/docstore"
	"github.com/VictoriaMetrics/metrics"
	"net/http"
)

// ConcurrencyHandler marks every 412 Precondition Failed response as an optimistic-concurrency
// conflict (SubStatus 999) before handing it back. It never retries and keeps no state.
type ConcurrencyHandler struct {
	next docstore.Handler
}

// NewConcurrencyHandler wraps next
func NewConcurrencyHandler(next docstore.Handler) *ConcurrencyHandler {
	return &ConcurrencyHandler{next: next}
}

// Concurrency returns the handler as a middleware for docstore.Chain
func Concurrency() docstore.Middleware {
	return func(next docstore.Handler) docstore.Handler {
		return NewConcurrencyHandler(next)
	}
}

// Send implements docstore.Handler
func (h *ConcurrencyHandler) Send(ctx context.Context, req *docstore.Request) (*docstore.Response, error) {
	resp, err := h.next.Send(ctx, req)
	if err == nil && resp != nil && resp.StatusCode == http.StatusPreconditionFailed {
		resp.SubStatus = docstore.SubStatusConcurrencyConflict
		metrics.GetOrCreateCounter(`daudit_pipeline_concurrency_conflicts_total`).Inc()
		log.Debugf("Concurrency conflict on %s of %s in partition %q", req.Op, req.Collection, req.PartitionKey)
	}
	return resp, err
}
