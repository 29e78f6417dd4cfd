package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dAudit/lib/docstore"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/spf13/cast"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	defaultPageSize = 100

	// request unit costs
	readCharge      = 1.0
	writeCharge     = 5.0
	queryBaseCharge = 2.5
	queryScanCharge = 0.05 // per document evaluated
	kbCharge        = 1.0  // per started kilobyte moved
)

// Executor answers docstore requests from a Store. It is the terminal handler of an
// in-process pipeline and the backend of the RPC server.
//
// Thread-safety: Send is safe for concurrent use.
type Executor struct {
	store    Store
	quota    *quota
	pageSize int
	now      func() time.Time
}

// ExecutorOption configures an Executor
type ExecutorOption func(e *Executor)

// WithQuota limits every partition to unitsPerSecond request units with the given burst.
// Requests over the budget are answered with 429 and a retry-after hint.
func WithQuota(unitsPerSecond float64, burst int) ExecutorOption {
	return func(e *Executor) {
		if unitsPerSecond > 0 {
			e.quota = newQuota(unitsPerSecond, burst)
		}
	}
}

// WithPageSize sets the page size used when a query does not ask for one
func WithPageSize(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithClock replaces time.Now, used by tests
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an executor on top of store
func NewExecutor(store Store, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:    store,
		pageSize: defaultPageSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close closes the underlying store
func (e *Executor) Close() error {
	return e.store.Close()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see docstore.Handler)
// --------------------------------------------------------------------------

// Send executes a request. The error is only set if ctx is done, every other failure is
// reported as a status code in the response.
func (e *Executor) Send(ctx context.Context, req *docstore.Request) (*docstore.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return failure(http.StatusBadRequest, "nil request"), nil
	}
	if req.Database == "" || req.Collection == "" {
		return failure(http.StatusBadRequest, "database and collection are required"), nil
	}

	loc := Location{Database: req.Database, Collection: req.Collection, PartitionKey: req.PartitionKey}

	// admission control, charged before the work is done
	if resp := e.admit(loc, estimateCharge(req)); resp != nil {
		return resp, nil
	}

	var resp *docstore.Response
	switch req.Op {
	case docstore.OpCreate, docstore.OpUpsert, docstore.OpReplace:
		resp = e.write(loc, req)
	case docstore.OpRead:
		resp = e.read(loc, req.ID)
	case docstore.OpDelete:
		resp = e.delete(loc, req.ID)
	case docstore.OpQuery:
		resp = e.query(loc, req)
	default:
		resp = failure(http.StatusBadRequest, fmt.Sprintf("unsupported operation %s", req.Op))
	}
	return resp, nil
}

// --------------------------------------------------------------------------
// Operations
// --------------------------------------------------------------------------

func (e *Executor) write(loc Location, req *docstore.Request) *docstore.Response {
	id, err := documentID(req.Body)
	if err != nil {
		return failure(http.StatusBadRequest, err.Error())
	}

	doc := Document{
		ID:   id,
		ETag: uuid.NewString(),
		TS:   e.now().Unix(),
		Body: req.Body,
	}

	status := http.StatusOK
	switch req.Op {
	case docstore.OpCreate:
		err = e.store.Create(loc, doc)
		status = http.StatusCreated
	case docstore.OpUpsert:
		err = e.store.Upsert(loc, doc)
	case docstore.OpReplace:
		err = e.store.Replace(loc, doc, req.IfMatch)
	}
	if err != nil {
		return storeFailure(err)
	}

	return &docstore.Response{
		StatusCode:    status,
		ETag:          doc.ETag,
		Body:          doc.Body,
		RequestCharge: writeCharge + kilobytes(len(doc.Body)),
	}
}

func (e *Executor) read(loc Location, id string) *docstore.Response {
	if id == "" {
		return failure(http.StatusBadRequest, "document id is required")
	}
	doc, err := e.store.Read(loc, id)
	if err != nil {
		return storeFailure(err)
	}
	return &docstore.Response{
		StatusCode:    http.StatusOK,
		ETag:          doc.ETag,
		Body:          doc.Body,
		RequestCharge: readCharge + kilobytes(len(doc.Body)),
	}
}

func (e *Executor) delete(loc Location, id string) *docstore.Response {
	if id == "" {
		return failure(http.StatusBadRequest, "document id is required")
	}
	if err := e.store.Delete(loc, id); err != nil {
		return storeFailure(err)
	}
	return &docstore.Response{StatusCode: http.StatusNoContent, RequestCharge: writeCharge}
}

// query evaluates the full result set on every page and slices the requested window,
// the continuation token carries the offset of the next page
func (e *Executor) query(loc Location, req *docstore.Request) *docstore.Response {
	q := docstore.Query{}
	if req.Query != nil {
		q = *req.Query
	}
	if q.PartitionKey != "" && q.PartitionKey != loc.PartitionKey {
		return failure(http.StatusBadRequest, "query partition key does not match the request")
	}

	offset, err := decodeToken(req.Continuation)
	if err != nil {
		return failure(http.StatusBadRequest, err.Error())
	}

	type match struct {
		fields map[string]any
		body   []byte
	}
	var matches []match
	scanned := 0
	var decodeErr error

	err = e.store.Scan(loc, func(_ string, doc Document) bool {
		scanned++
		var fields map[string]any
		if err := json.Unmarshal(doc.Body, &fields); err != nil {
			decodeErr = fmt.Errorf("document %s is not a json object: %w", doc.ID, err)
			return false
		}
		if q.Matches(fields) {
			matches = append(matches, match{fields: fields, body: doc.Body})
		}
		return true
	})
	if err == nil {
		err = decodeErr
	}
	if err != nil {
		return storeFailure(err)
	}

	// scan order is unspecified, fall back to id order if no ordering was requested
	sort.SliceStable(matches, func(i, j int) bool {
		if q.OrderBy == "" {
			return cast.ToString(matches[i].fields["id"]) < cast.ToString(matches[j].fields["id"])
		}
		return q.Less(matches[i].fields, matches[j].fields)
	})

	pageSize := req.MaxItemCount
	if pageSize <= 0 {
		pageSize = e.pageSize
	}
	total := len(matches)
	start := min(offset, total)
	end := start + min(pageSize, total-start)

	resp := &docstore.Response{
		StatusCode: http.StatusOK,
		TotalCount: total,
		Items:      make([][]byte, 0, end-start),
	}
	returned := 0
	for _, m := range matches[start:end] {
		resp.Items = append(resp.Items, m.body)
		returned += len(m.body)
	}
	if end < total {
		resp.Continuation = encodeToken(end, total)
	}
	resp.RequestCharge = queryBaseCharge + queryScanCharge*float64(scanned) + kilobytes(returned)
	return resp
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// admit consumes charge request units from the partition's budget, returns a 429 response
// if the budget is exhausted
func (e *Executor) admit(loc Location, charge float64) *docstore.Response {
	if e.quota == nil {
		return nil
	}
	wait, ok := e.quota.take(loc, charge, e.now())
	if ok {
		return nil
	}
	metrics.GetOrCreateCounter(`daudit_engine_throttled_total`).Inc()
	log.Debugf("Throttled %s/%s partition %q, retry after %s", loc.Database, loc.Collection, loc.PartitionKey, wait)
	return &docstore.Response{
		StatusCode:   http.StatusTooManyRequests,
		RetryAfterMs: int64((wait + time.Millisecond - 1) / time.Millisecond),
		Message:      "request rate is large",
	}
}

// estimateCharge is the admission cost of a request, known before execution
func estimateCharge(req *docstore.Request) float64 {
	switch req.Op {
	case docstore.OpCreate, docstore.OpUpsert, docstore.OpReplace:
		return writeCharge + kilobytes(len(req.Body))
	case docstore.OpDelete:
		return writeCharge
	case docstore.OpQuery:
		return queryBaseCharge
	default:
		return readCharge
	}
}

func kilobytes(n int) float64 {
	return math.Ceil(float64(n) / 1024 * kbCharge)
}

// documentID extracts the mandatory "id" field of a json document
func documentID(body []byte) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("document body is required")
	}
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return "", fmt.Errorf("document is not a json object: %v", err)
	}
	if strings.TrimSpace(head.ID) == "" {
		return "", fmt.Errorf("document has no id")
	}
	return head.ID, nil
}

func failure(status int, message string) *docstore.Response {
	return &docstore.Response{StatusCode: status, Message: message}
}

// storeFailure maps store errors onto status codes
func storeFailure(err error) *docstore.Response {
	switch {
	case errors.Is(err, ErrExists):
		return failure(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotExists):
		return failure(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrETagMismatch):
		return failure(http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, ErrStoreIsClosed):
		return failure(http.StatusServiceUnavailable, err.Error())
	default:
		log.Errorf("Store failure: %v", err)
		return failure(http.StatusInternalServerError, err.Error())
	}
}
